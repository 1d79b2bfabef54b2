//go:build unix

package robustio

import (
	"os"
	"syscall"
)

func statSys(fi os.FileInfo) (FileID, bool) {
	stat, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return FileID{}, false
	}
	return FileID{device: uint64(stat.Dev), inode: uint64(stat.Ino)}, true
}
