//go:build windows

package localfs

import (
	"os"

	"golang.org/x/sys/windows"
)

func canRead(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}

// canWrite reports the read-only attribute; ACLs are left to the write itself.
func canWrite(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return err
	}
	if attrs&windows.FILE_ATTRIBUTE_READONLY != 0 {
		return os.ErrPermission
	}
	return nil
}
