//go:build !windows

package imagesink

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// freeBytes reports available disk space at dir, grounded on the
// teacher's internal/datastore/diskspace_unix.go.
func freeBytes(dir string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return 0, err
	}
	if stat.Bsize <= 0 {
		return 0, fmt.Errorf("imagesink: invalid block size %d from filesystem at %s", stat.Bsize, dir)
	}
	bsize := uint64(stat.Bsize)
	return stat.Bavail * bsize, nil
}
