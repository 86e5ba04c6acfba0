package disk

import (
	"os"
	"path/filepath"
)

// fileTreeVisitor 接收目录树遍历事件；postVisitDirectory 在子节点全部访问后触发，
// 因此可以安全地删除刚被清空的目录。
type fileTreeVisitor interface {
	preVisitDirectory(dir string)
	visitFile(path string)
	postVisitDirectory(dir string)
}

// walkFileTree 深度优先遍历 dir；读取失败的目录按空目录处理。
func walkFileTree(dir string, v fileTreeVisitor) {
	v.preVisitDirectory(dir)
	entries, _ := os.ReadDir(dir)
	for _, entry := range entries {
		child := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			walkFileTree(child, v)
			continue
		}
		v.visitFile(child)
	}
	v.postVisitDirectory(dir)
}

// deleteContents 删除 dir 下的全部内容，保留 dir 本身。
func deleteContents(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		return err
	}
	var firstErr error
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
