package align

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestAlignIdentity oracle 原样返回时：每行命中率 1.0，仅自映射
func TestAlignIdentity(t *testing.T) {
	lines := []string{"The quick brown fox", "jumps over", "the lazy dog."}
	groups, irate, orate := Align(lines, lines)
	require.Len(t, groups, len(lines))
	for p := range lines {
		require.InDelta(t, 1.0, irate[p], 1e-9)
		require.InDelta(t, 1.0, orate[p], 1e-9)
		require.Equal(t, map[int]struct{}{p: {}}, groups[p])
	}
}

// TestAlignMerged 三行折行并为一行输出：同组包含全部来源行
func TestAlignMerged(t *testing.T) {
	in := []string{"The quick brown fox", "jumps over", "the lazy dog.", "", "A new paragraph starts here."}
	out := []string{"The quick brown fox jumps over the lazy dog.", "A new paragraph starts here."}
	groups, irate, orate := Align(in, out)

	require.Equal(t, map[int]struct{}{0: {}, 1: {}, 2: {}}, groups[0])
	require.Equal(t, map[int]struct{}{4: {}}, groups[1])
	for _, p := range []int{0, 1, 2, 4} {
		require.InDelta(t, 1.0, irate[p], 1e-9)
	}
	// 空行无证据且不除零
	require.Equal(t, 0.0, irate[3])
	require.InDelta(t, 1.0, orate[0], 1e-9)
	require.InDelta(t, 1.0, orate[1], 1e-9)
}

// TestAlignFabricatedLineFiltered 完全捏造的输出行（与输入无共词）不得出现在 groups
func TestAlignFabricatedLineFiltered(t *testing.T) {
	in := []string{"alpha beta gamma", "delta epsilon"}
	out := []string{"alpha beta gamma delta epsilon", "sorry cannot comply apologies"}
	groups, _, orate := Align(in, out)
	_, exists := groups[1]
	require.False(t, exists, "fabricated output line must be filtered")
	require.Equal(t, 0.0, orate[1])
	require.Contains(t, groups, 0)
}

// TestAlignLowHitRateFiltered 命中率低于 0.6 的输出行整组移除
func TestAlignLowHitRateFiltered(t *testing.T) {
	in := []string{"aa bb"}
	// 输出行仅 aa（2 字符）来自输入，又混入长幻觉词拉低命中率：
	// 2/20 < 0.6
	out := []string{"aa hallucin8 fabricat8"}
	groups, _, orate := Align(in, out)
	require.Less(t, orate[0], HitThreshold)
	require.Empty(t, groups)
}

// TestAlignDeterministic 相同输入恒得相同输出
func TestAlignDeterministic(t *testing.T) {
	in := []string{"one two three", "four five", "six"}
	out := []string{"one two three four five", "six"}
	g1, i1, o1 := Align(in, out)
	for k := 0; k < 10; k++ {
		g2, i2, o2 := Align(in, out)
		require.Equal(t, g1, g2)
		require.Equal(t, i1, i2)
		require.Equal(t, o1, o2)
	}
}

// TestAlignRatesBounded 命中率恒在 [0,1]
func TestAlignRatesBounded(t *testing.T) {
	in := []string{"x y z", "", "  ", "x x y"}
	out := []string{"x y", "", "z q x"}
	_, irate, orate := Align(in, out)
	for _, r := range append(append([]float64{}, irate...), orate...) {
		require.GreaterOrEqual(t, r, 0.0)
		require.LessOrEqual(t, r, 1.0)
	}
}

// TestEncodePairDropsUnknown 输出侧词表外单词被丢弃
func TestEncodePairDropsUnknown(t *testing.T) {
	in, out := encodePair([]string{"a b"}, []string{"a c b"})
	require.Len(t, in, 2)
	require.Len(t, out, 2) // c 不在输入词表，被丢弃
	require.Equal(t, in[0].sym, out[0].sym)
	require.Equal(t, in[1].sym, out[1].sym)
}

// TestEncodePairLength length 为字符数而非字节数
func TestEncodePairLength(t *testing.T) {
	in, _ := encodePair([]string{"héllo 世界"}, nil)
	require.Len(t, in, 2)
	require.Equal(t, 5, in[0].length)
	require.Equal(t, 2, in[1].length)
}

// TestMaxHelpers 分组极值辅助
func TestMaxHelpers(t *testing.T) {
	require.Equal(t, -1, MaxOutputLine(Groups{}))
	require.Equal(t, -1, MaxInputLine(Groups{}))
	g := Groups{2: {0: {}, 3: {}}, 5: {1: {}}}
	require.Equal(t, 5, MaxOutputLine(g))
	require.Equal(t, 3, MaxInputLine(g))
}
