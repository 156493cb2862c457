package archive

import (
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/havogt/serialbox2/internal/errors"
	"github.com/havogt/serialbox2/internal/model"
)

// prepareDirectory validates directory for mode, creating it for Write and
// Append when absent
func prepareDirectory(directory string, mode model.OpenMode) error {
	if directory == "" {
		return errors.InvalidArgument("archive directory cannot be empty", nil)
	}

	isDir, err := isDirectory(directory)
	if err != nil {
		return errors.Filesystem(fmt.Sprintf("cannot stat '%s'", directory), err).
			WithDetail("directory", directory)
	}

	switch mode {
	case model.OpenModeRead:
		if !isDir {
			return errors.NotFound(directory)
		}
		return nil

	case model.OpenModeWrite:
		if isDir {
			empty, err := isEmptyDirectory(directory)
			if err != nil {
				return errors.Filesystem(fmt.Sprintf("cannot list '%s'", directory), err).
					WithDetail("directory", directory)
			}
			if !empty {
				return errors.DirectoryNotEmpty(directory)
			}
			return nil
		}
	}

	if !isDir {
		if err := os.MkdirAll(directory, 0o755); err != nil {
			return errors.Filesystem(fmt.Sprintf("cannot create directory '%s'", directory), err).
				WithDetail("directory", directory)
		}
	}
	return nil
}

func isDirectory(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func isEmptyDirectory(path string) (bool, error) {
	dir, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer dir.Close()

	_, err = dir.Readdirnames(1)
	if err == io.EOF {
		return true, nil
	}
	return false, err
}
