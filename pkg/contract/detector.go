package contract

import "context"

// Detector: 行级换行检测能力（单一入口，输入为已切分的有序行序列）。
// 约束：
//  1. lines 在调用期间不可变；行尾空白已由调用方剥离；
//  2. 空文档快速失败（ErrInvalidInput）；
//  3. 返回向量长度恒为 len(lines)-1；
//  4. ctx 取消时尽快返回，不返回部分结果。
type Detector interface {
	Detect(ctx context.Context, lines []string, id DocumentID) (Decisions, error)
}
