// Package filesystem 从文件、目录或 STDIN 摄取待判定的折行文档。
// 每个常规文件即一个文档；DocumentID 为规范化后的路径（STDIN 为 "stdin"）。
package filesystem

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"llmhlb/pkg/contract"
)

// Options 为文档摄取的可选配置。
type Options struct {
	// BufSize 读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// ExcludeDirNames: 目录递归时跳过的目录基名（不区分大小写）。
	// 例如 [".git","node_modules","vendor"]。不影响单文件 root。
	ExcludeDirNames []string `json:"exclude_dir_names"`
}

// Reader 实现 contract.Reader。
type Reader struct {
	bufSize int
	exclude map[string]struct{}
}

func New(opts *Options) *Reader {
	const defaultBuf = 64 * 1024
	b := defaultBuf
	if opts != nil && opts.BufSize > 0 {
		b = opts.BufSize
	}
	ex := make(map[string]struct{})
	if opts != nil {
		for _, name := range opts.ExcludeDirNames {
			if name != "" {
				ex[strings.ToLower(name)] = struct{}{}
			}
		}
	}
	return &Reader{bufSize: b, exclude: ex}
}

var _ contract.Reader = (*Reader)(nil)

// Iterate 按词典序深度优先遍历 roots，对每个文档调用 yield。
// roots 为空或仅含 "-" 时读取 STDIN；"-" 不能与其他根混用。
func (r *Reader) Iterate(ctx context.Context, roots []string, yield func(docID contract.DocumentID, rc io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(roots) == 0 || (len(roots) == 1 && roots[0] == "-") {
		return yield(contract.DocumentID("stdin"), r.newDocStream(os.Stdin))
	}
	for _, root := range roots {
		if root == "-" {
			return errors.New("stdin '-' cannot be mixed with other roots")
		}
	}
	for _, root := range roots {
		if err := r.ingestRoot(ctx, root, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) ingestRoot(ctx context.Context, root string, yield func(contract.DocumentID, io.ReadCloser) error) error {
	info, err := os.Lstat(root)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		// 仅跟随指向常规文件的符号链接；目标失效则报错
		target, err := os.Stat(root)
		if err != nil {
			return err
		}
		if !target.Mode().IsRegular() {
			return nil
		}
		return r.emit(ctx, root, yield)
	}
	if info.IsDir() {
		return r.walk(ctx, root, yield)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	return r.emit(ctx, root, yield)
}

// walk 遍历目录树：跳过排除目录与非常规文件，
// 目录符号链接不跟随，文件符号链接解析后摄取。
func (r *Reader) walk(ctx context.Context, dir string, yield func(contract.DocumentID, io.ReadCloser) error) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			if path == dir {
				return nil
			}
			if _, skip := r.exclude[strings.ToLower(d.Name())]; skip {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			target, terr := os.Stat(path)
			if terr != nil {
				return terr
			}
			if !target.Mode().IsRegular() {
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}
		return r.emit(ctx, path, yield)
	})
}

func (r *Reader) emit(ctx context.Context, path string, yield func(contract.DocumentID, io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	doc := r.newDocStream(f)
	if err := yield(contract.NormalizeDocumentID(path), doc); err != nil {
		_ = doc.Close()
		return err
	}
	return nil
}

// docStream 组合缓冲读取与底层 Closer。
type docStream struct {
	*bufio.Reader
	c io.Closer
}

func (r *Reader) newDocStream(c io.ReadCloser) *docStream {
	return &docStream{Reader: bufio.NewReaderSize(c, r.bufSize), c: c}
}

func (d *docStream) Close() error { return d.c.Close() }
