package textio

import "strings"

// Lines 将整段文本切分为有序行序列（CRLF→LF 归一，丢弃末尾的单个换行）。
// 与 oracle 输出的行语义一致：尾部换行不产生空行。
func Lines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// DocumentLines 为检测入口准备文档行：按 Lines 切分后剥离每行尾部空白
// （输入约定：行尾空白由调用方剥离）。
func DocumentLines(s string) []string {
	out := Lines(s)
	for i, l := range out {
		out[i] = strings.TrimRight(l, " \t\r")
	}
	return out
}
