//go:build unix

package aria2conf

import (
	"os"
	"syscall"
)

// fileOwner returns the numeric owner of the file described by info.
func fileOwner(info os.FileInfo) (int, int, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}

	return int(stat.Uid), int(stat.Gid), true
}
