package disk

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileType 区分正文文件与临时文件，取值即文件扩展名。
type FileType string

const (
	FileTypeContent FileType = ".cnt"
	FileTypeTemp    FileType = ".tmp"
)

func fileTypeFromExtension(ext string) (FileType, bool) {
	switch FileType(ext) {
	case FileTypeContent:
		return FileTypeContent, true
	case FileTypeTemp:
		return FileTypeTemp, true
	}
	return "", false
}

// FileInfo 由文件名推导出的类型与资源 ID。所有文件名的解析与拼装都经过这里。
type FileInfo struct {
	Type       FileType
	ResourceID string
}

func (i FileInfo) String() string {
	return string(i.Type) + "(" + i.ResourceID + ")"
}

// Path 返回正文文件在 parent 目录下的完整路径。
func (i FileInfo) Path(parent string) string {
	return filepath.Join(parent, i.ResourceID+string(i.Type))
}

// tempName 生成 <id>.<unique>.tmp 形式的临时文件名。
func (i FileInfo) tempName() string {
	return i.ResourceID + "." + uuid.NewString() + string(FileTypeTemp)
}

// ParseFileInfo 从文件名解析 FileInfo；扩展名未知或缺少资源 ID 时返回 false。
func ParseFileInfo(name string) (FileInfo, bool) {
	name = filepath.Base(name)
	pos := strings.LastIndexByte(name, '.')
	if pos <= 0 {
		return FileInfo{}, false
	}
	fileType, ok := fileTypeFromExtension(name[pos:])
	if !ok {
		return FileInfo{}, false
	}
	resourceID := name[:pos]
	if fileType == FileTypeTemp {
		num := strings.LastIndexByte(resourceID, '.')
		if num <= 0 {
			return FileInfo{}, false
		}
		resourceID = resourceID[:num]
	}
	return FileInfo{Type: fileType, ResourceID: resourceID}, true
}
