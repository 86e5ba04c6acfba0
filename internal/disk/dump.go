package disk

import (
	"fmt"
	"io"
)

const dumpTypeUndefined = "undefined"

// DumpInfo 读取每个条目的文件头，按图片类型汇总。
func (s *DefaultDiskStorage) DumpInfo() (*DumpInfo, error) {
	entries, err := s.Entries()
	if err != nil {
		return nil, err
	}
	info := &DumpInfo{TypeCounts: map[string]int{}}
	for _, entry := range entries {
		item, err := dumpEntry(entry)
		if err != nil {
			return nil, err
		}
		info.TypeCounts[item.Type]++
		info.Entries = append(info.Entries, item)
	}
	return info, nil
}

func dumpEntry(entry *Entry) (DumpInfoEntry, error) {
	header, err := readHeader(entry.Resource(), 4)
	if err != nil {
		return DumpInfoEntry{}, fmt.Errorf("dump entry %s: %w", entry.ID(), err)
	}
	item := DumpInfoEntry{
		ID:   entry.ID(),
		Path: entry.Resource().Path(),
		Type: typeOfBytes(header),
		Size: entry.Size(),
	}
	if item.Type == dumpTypeUndefined && len(header) >= 4 {
		item.FirstBits = fmt.Sprintf("0x%02X 0x%02X 0x%02X 0x%02X", header[0], header[1], header[2], header[3])
	}
	return item, nil
}

func readHeader(resource *FileResource, n int) ([]byte, error) {
	f, err := resource.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}

// typeOfBytes 只看前两个字节的魔数。
func typeOfBytes(b []byte) string {
	if len(b) < 2 {
		return dumpTypeUndefined
	}
	switch {
	case b[0] == 0xFF && b[1] == 0xD8:
		return "jpg"
	case b[0] == 0x89 && b[1] == 0x50:
		return "png"
	case b[0] == 0x52 && b[1] == 0x49:
		return "webp"
	case b[0] == 0x47 && b[1] == 0x49:
		return "gif"
	}
	return dumpTypeUndefined
}
