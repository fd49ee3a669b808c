//go:build windows

package platform

import "golang.org/x/sys/windows"

// DriveRoots returns the live lettered drives (`C:\`, `D:\`, ...) so the
// discoverer can treat each one as a volume candidate.
func DriveRoots() []string {
	n, err := windows.GetLogicalDriveStrings(0, nil)
	if err != nil || n == 0 {
		return nil
	}
	buf := make([]uint16, n)
	if _, err := windows.GetLogicalDriveStrings(n, &buf[0]); err != nil {
		return nil
	}

	var roots []string
	start := 0
	for i, c := range buf {
		if c == 0 {
			if i > start {
				roots = append(roots, windows.UTF16ToString(buf[start:i]))
			}
			start = i + 1
		}
	}
	return roots
}
