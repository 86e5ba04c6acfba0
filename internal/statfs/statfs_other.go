//go:build !(linux || darwin || freebsd)

package statfs

import "errors"

func availableBytes(string) (uint64, error) {
	return 0, errors.New("statfs not supported on this platform")
}
