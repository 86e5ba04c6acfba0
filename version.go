package main

import (
	"fmt"

	"github.com/any-hub/imagecache/internal/version"
)

// printVersion 输出版本、提交与构建平台。
func printVersion() {
	fmt.Fprintf(stdOut, "%s\n%s\n", version.Full(), version.Platform())
}
