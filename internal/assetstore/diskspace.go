package assetstore

import (
	"fmt"

	"golang.org/x/sys/unix"

	"podbay/internal/services"
)

// EnsureFreeSpace fails when the staging filesystem has fewer than need
// bytes available. need<=0 skips the check (unknown content length).
func (s *Store) EnsureFreeSpace(need int64) error {
	if need <= 0 {
		return nil
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(s.stagingDir, &stat); err != nil {
		// Statfs failing is not itself fatal; the write will surface
		// a real error if the disk is unusable.
		return nil
	}
	available := int64(stat.Bavail) * int64(stat.Bsize)
	if available < need {
		return services.Wrap(services.ErrFilesystem, "assets", "free space",
			fmt.Sprintf("need %d bytes, %d available in %s", need, available, s.stagingDir), nil)
	}
	return nil
}
