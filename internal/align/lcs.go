package align

// lcsIndex 计算 a 与 b 的最长公共子序列的索引级对应：
// 返回切片 r（len(r)==len(a)），r[i] 为 a[i] 在某条 LCS 中匹配到的
// b 下标，未匹配为 -1。经典 O(len(a)*len(b)) 动态规划加回溯。
// 复杂度以单词数计（符号已压缩），批文本受 token 预算约束，
// 故表规模有界；切勿退化为按字符对齐。
func lcsIndex(a, b []uint32) []int {
	n, m := len(a), len(b)
	r := make([]int, n)
	for i := range r {
		r[i] = -1
	}
	if n == 0 || m == 0 {
		return r
	}
	// dp[(i)*(m+1)+j] = LCS(a[:i], b[:j]) 长度
	w := m + 1
	dp := make([]int32, (n+1)*w)
	for i := 1; i <= n; i++ {
		ai := a[i-1]
		row := i * w
		prev := row - w
		for j := 1; j <= m; j++ {
			if ai == b[j-1] {
				dp[row+j] = dp[prev+j-1] + 1
			} else if dp[prev+j] >= dp[row+j-1] {
				dp[row+j] = dp[prev+j]
			} else {
				dp[row+j] = dp[row+j-1]
			}
		}
	}
	// 回溯出一条匹配路径
	i, j := n, m
	for i > 0 && j > 0 {
		switch {
		case a[i-1] == b[j-1]:
			r[i-1] = j - 1
			i--
			j--
		case dp[(i-1)*w+j] >= dp[i*w+j-1]:
			i--
		default:
			j--
		}
	}
	return r
}
