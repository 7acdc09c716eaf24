package contract

// DocumentID: 逻辑文档ID（通常为路径，需规范化，跨平台一致）。
// 同时作为 oracle 缓存键的一部分，运行间必须稳定。
type DocumentID string

// Index: 单文档内稳定递增的行号（0..n-1）。
type Index int

// Decisions: 相邻行对判定向量，长度固定为 行数-1，构造后不再扩缩。
// decisions[g] == true 表示原始第 g 行与第 g+1 行被 oracle 归并到
// 同一重排输出单元（即该换行为软换行候选）。
type Decisions []bool

// Meta: 可选的轻量元信息；核心流程不读取其键值。
type Meta map[string]string
