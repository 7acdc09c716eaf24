package diag

import "sync"

// 进程内最小计数器。
// 名称：
// - op_total{comp,stage,result}
// - error_total{comp,code}

var (
	metricsMu sync.Mutex
	opTotal   = map[[3]string]int64{}
	errTotal  = map[[2]string]int64{}
)

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	metricsMu.Lock()
	opTotal[[3]string{comp, stage, result}]++
	metricsMu.Unlock()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	metricsMu.Lock()
	errTotal[[2]string{comp, code}]++
	metricsMu.Unlock()
}

// OpCount 读取操作计数（诊断/测试用）。
func OpCount(comp, stage, result string) int64 {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	return opTotal[[3]string{comp, stage, result}]
}

// ErrorCount 读取错误计数（诊断/测试用）。
func ErrorCount(comp, code string) int64 {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	return errTotal[[2]string{comp, code}]
}
