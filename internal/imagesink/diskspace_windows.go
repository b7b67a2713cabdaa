//go:build windows

package imagesink

import (
	"golang.org/x/sys/windows"
)

// freeBytes reports available disk space at dir, grounded on the
// teacher's internal/datastore/diskspace_windows.go.
func freeBytes(dir string) (uint64, error) {
	pathPtr, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return 0, err
	}
	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &free, &total, &totalFree); err != nil {
		return 0, err
	}
	return free, nil
}
