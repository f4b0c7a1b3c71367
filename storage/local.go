package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalBackend implements Backend over the local filesystem. Rename is
// os.Rename, which POSIX guarantees to be atomic within a filesystem.
type LocalBackend struct{}

func (LocalBackend) Exists(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return true, nil
	} else if os.IsNotExist(err) {
		return false, nil
	} else {
		return false, err
	}
}

func (LocalBackend) MakeDirs(path string) error {
	return os.MkdirAll(path, 0755)
}

func (lb LocalBackend) Copy(src string, dst string, overwrite bool) error {
	if !overwrite {
		if exists, err := lb.Exists(dst); err != nil {
			return err
		} else if exists {
			return errors.New(fmt.Sprintf(
				"%s already exists and overwrite is disabled", dst))
		}
	}
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()
	dstFile, err := os.OpenFile(dst, os.O_TRUNC|os.O_RDWR|os.O_CREATE, 0755)
	if err != nil {
		return err
	}
	if _, err = io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return err
	}
	return dstFile.Close()
}

func (lb LocalBackend) Rename(src string, dst string, overwrite bool) error {
	if !overwrite {
		if exists, err := lb.Exists(dst); err != nil {
			return err
		} else if exists {
			return errors.New(fmt.Sprintf(
				"%s already exists and overwrite is disabled", dst))
		}
	}
	if filepath.Dir(src) != filepath.Dir(dst) {
		// Cross-directory renames can cross filesystem boundaries, where
		// os.Rename loses atomicity. Stage a copy next to the destination
		// and rename within the directory.
		staged := dst + ".staging"
		if err := lb.Copy(src, staged, true); err != nil {
			return err
		}
		if err := os.Rename(staged, dst); err != nil {
			os.Remove(staged)
			return err
		}
		return os.Remove(src)
	}
	return os.Rename(src, dst)
}

func (LocalBackend) Remote() bool {
	return false
}
