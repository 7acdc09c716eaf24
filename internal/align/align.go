package align

// HitThreshold: 输出行命中率下限。低于该值的输出行分组整体丢弃——
// 多由 oracle 加段/改写/幻觉（道歉、评论文本）造成，不可作为对齐证据。
const HitThreshold = 0.6

// Groups: 输出行号 → 至少贡献了一个匹配单词的输入行号集合。
// 每次 Align 调用重建，不持久。
type Groups map[int]map[int]struct{}

// Align 将 inputLines 每行的单词用 LCS 对齐到 outputLines 每行的单词中，
// 并计算两侧每行的命中率（匹配单词总字符数 / 本行单词总字符数）。
// 命中率低于 HitThreshold 的输出行自 groups 中整体移除。
// 纯计算、确定性；零单词行命中率记 0 且不参与阈值判定（也不会出现在 groups）。
func Align(inputLines, outputLines []string) (groups Groups, inputHitRate, outputHitRate []float64) {
	// 切分粒度采用空白隔开的单词而非字符，符号压缩后 LCS 代价以词数计。
	inTok, outTok := encodePair(inputLines, outputLines)

	inSyms := make([]uint32, len(inTok))
	for i, t := range inTok {
		inSyms[i] = t.sym
	}
	outSyms := make([]uint32, len(outTok))
	for i, t := range outTok {
		outSyms[i] = t.sym
	}

	inputHitRate = make([]float64, len(inputLines))
	outputHitRate = make([]float64, len(outputLines))
	groups = make(Groups)

	matched := lcsIndex(inSyms, outSyms)
	for inIdx, outIdx := range matched {
		if outIdx < 0 {
			continue
		}
		it, ot := inTok[inIdx], outTok[outIdx]
		set, ok := groups[ot.line]
		if !ok {
			set = make(map[int]struct{})
			groups[ot.line] = set
		}
		set[it.line] = struct{}{}
		inputHitRate[it.line] += float64(it.length)
		outputHitRate[ot.line] += float64(ot.length)
	}

	// 归一化；零单词行不做除法（命中率保持 0，视作无对齐证据）。
	for p := range inputLines {
		if w := wordWeight(inputLines[p]); w > 0 {
			inputHitRate[p] /= float64(w)
		}
	}
	for p := range outputLines {
		if w := wordWeight(outputLines[p]); w > 0 {
			outputHitRate[p] /= float64(w)
		}
	}

	// 置信过滤：低命中率输出行连带其输入行证据一并丢弃。
	for p, rate := range outputHitRate {
		if wordWeight(outputLines[p]) == 0 {
			continue
		}
		if rate < HitThreshold {
			delete(groups, p)
		}
	}
	return groups, inputHitRate, outputHitRate
}

// MaxOutputLine 返回 groups 中最大的输出行号；空 groups 返回 -1。
func MaxOutputLine(g Groups) int {
	max := -1
	for p := range g {
		if p > max {
			max = p
		}
	}
	return max
}

// MaxInputLine 返回 groups 全部集合中最大的输入行号；无证据返回 -1。
func MaxInputLine(g Groups) int {
	max := -1
	for _, set := range g {
		for l := range set {
			if l > max {
				max = l
			}
		}
	}
	return max
}
