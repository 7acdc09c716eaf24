package contract

import (
	"path"
	"strings"
)

// NormalizeDocumentID 规范化路径，统一为跨平台稳定的 DocumentID。
// 规则：
// - 使用正斜杠分隔符
// - 清理多余分隔符与路径片段（.、..）
// - 保留相对/绝对语义，不做隐式绝对化
func NormalizeDocumentID(p string) DocumentID {
	s := strings.ReplaceAll(p, "\\", "/")
	// path.Clean 在 POSIX 语义下清理路径（此处已是 '/' 分隔）
	return DocumentID(path.Clean(s))
}
