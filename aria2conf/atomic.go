package aria2conf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteFileAtomic replaces path with data. The bytes are written and synced to
// a temporary file in the same directory which is then renamed over path, so
// readers observe either the old or the new content and never a partial
// write. The new file takes the permissions and, where the platform allows,
// the owner of like.
func WriteFileAtomic(path string, data []byte, like os.FileInfo) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("unable to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	// Remove the temp file on any failure below. After a successful
	// rename it no longer exists and the removal is a no-op.
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("unable to write temp file: %w", err)
	}
	if err := tmp.Chmod(like.Mode().Perm()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("unable to set permissions: %w", err)
	}
	if err := keepOwner(tmp, like); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("unable to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("unable to move temp file into place: %w", err)
	}

	// Persist the rename itself. Not every platform can sync a
	// directory, so failures are ignored.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	return nil
}

// keepOwner hands tmp to the owner of like. Only a privileged process may give
// a file away, so a refused chown is logged and the file keeps the owner of
// the running process.
func keepOwner(tmp *os.File, like os.FileInfo) error {
	uid, gid, ok := fileOwner(like)
	if !ok {
		return nil
	}

	err := tmp.Chown(uid, gid)
	switch {
	case err == nil:
		return nil

	case errors.Is(err, fs.ErrPermission):
		log.Warnf("Unable to keep owner %d:%d of %s: %v", uid, gid,
			like.Name(), err)

		return nil

	default:
		return fmt.Errorf("unable to set owner: %w", err)
	}
}
