package storage

import (
	"os"
	"path/filepath"

	"github.com/facegate/facegate-go/internal/errors"
)

// MountOptions carries per-attempt mount tuning. The bus clock is lowered on
// every boot retry; marginal cards that fail at full speed often come up at a
// slower clock.
type MountOptions struct {
	BusClockKHz int
}

// Medium abstracts the storage medium under the gateway: mount lifecycle and
// a filesystem root for file access. The production implementation is a
// directory on the host; tests substitute fault-injecting media.
type Medium interface {
	// Mount makes the medium available. It is called once at boot per retry
	// attempt and once per runtime remount.
	Mount(opts MountOptions) error
	// Unmount releases the medium. Errors are advisory.
	Unmount() error
	// Reset re-initializes the bus. Called between failed mount attempts.
	Reset() error
	// Root returns the mounted filesystem root. Only valid while mounted.
	Root() string
}

// DirMedium is a Medium backed by a plain directory.
type DirMedium struct {
	path string
}

// NewDirMedium returns a Medium rooted at the given directory.
func NewDirMedium(path string) *DirMedium {
	return &DirMedium{path: path}
}

// Mount ensures the backing directory exists and is writable.
func (d *DirMedium) Mount(opts MountOptions) error {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return errors.New(err).
			Component("storage").
			Category(errors.CategoryMount).
			Context("path", d.path).
			Build()
	}
	// Probe writability; a read-only or vanished medium must fail the mount,
	// not the first ledger write.
	probe := filepath.Join(d.path, ".mount_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return errors.New(err).
			Component("storage").
			Category(errors.CategoryMount).
			Context("path", d.path).
			Build()
	}
	_ = os.Remove(probe)
	return nil
}

// Unmount is a no-op for a directory medium.
func (d *DirMedium) Unmount() error { return nil }

// Reset is a no-op for a directory medium.
func (d *DirMedium) Reset() error { return nil }

// Root returns the backing directory.
func (d *DirMedium) Root() string { return d.path }
