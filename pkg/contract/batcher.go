package contract

import "context"

// Batcher: 自 start 起贪心取一段连续行，以换行拼接为一段文本，
// 使其 token 计数不超过配置预算。
// 约束：
//  1. 要求 start < len(lines)，否则返回 ErrInvalidInput；
//  2. 返回的 end 为开区间上界：第一条放不下的行号，或 len(lines)；
//  3. 只要还有剩余行就绝不返回空批：首行单独超预算时仍单独发出
//     （保证检测循环的推进）。
type Batcher interface {
	Next(ctx context.Context, lines []string, start Index) (text string, end Index, err error)
}
