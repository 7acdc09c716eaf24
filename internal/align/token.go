package align

import (
	"strings"
	"unicode/utf8"
)

// lcsToken: 单词级对齐令牌。
// sym 为词表符号（仅在一次 Align 调用内有意义）；length 为原词字符数
// （用于命中率加权，与符号宽度无关）；line 为来源行号。
type lcsToken struct {
	sym    uint32
	length int
	line   int
}

// encodePair 将输入/输出行集编码为单词粒度的符号序列，加速 LCS。
// 词表按输入侧首次出现顺序构建，与输入侧去重单词一一对应；
// 输出侧查同一词表，未见过的词不可能参与匹配，直接丢弃以缩短序列。
// 词表生命周期仅限本次调用，不得跨调用复用。
func encodePair(inputLines, outputLines []string) (in, out []lcsToken) {
	dict := make(map[string]uint32)
	for lineID, line := range inputLines {
		for _, w := range strings.Fields(line) {
			sym, ok := dict[w]
			if !ok {
				sym = uint32(len(dict))
				dict[w] = sym
			}
			in = append(in, lcsToken{sym: sym, length: utf8.RuneCountInString(w), line: lineID})
		}
	}
	for lineID, line := range outputLines {
		for _, w := range strings.Fields(line) {
			if sym, ok := dict[w]; ok {
				out = append(out, lcsToken{sym: sym, length: utf8.RuneCountInString(w), line: lineID})
			}
		}
	}
	return in, out
}

// wordWeight 返回一行的单词字符总数（空白行为 0）。
func wordWeight(line string) int {
	n := 0
	for _, w := range strings.Fields(line) {
		n += utf8.RuneCountInString(w)
	}
	return n
}
