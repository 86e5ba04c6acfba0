package version

import (
	"fmt"
	"runtime"
)

// Name 是二进制与日志中使用的服务名。
const Name = "imagecache"

// Version/Commit 可在构建时通过 -ldflags 注入。
var (
	Version = "0.1.0"
	Commit  = "dev"
)

// Full 返回 "imagecache <version> (<commit>)"。
func Full() string {
	return fmt.Sprintf("%s %s (%s)", Name, Version, Commit)
}

// Platform 返回构建使用的 Go 版本与目标平台。
func Platform() string {
	return fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
