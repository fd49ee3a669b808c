//go:build !windows

package platform

// DriveRoots returns nil: only Windows mounts volumes as lettered drives.
func DriveRoots() []string {
	return nil
}
