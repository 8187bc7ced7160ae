package bundle

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// CopyFiles copies each file into the directory dest, keeping its name and permissions.
// dest is created if necessary. It returns the paths of the copies.
func CopyFiles(files []string, dest string) ([]string, error) {
	err := os.MkdirAll(dest, 0770)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to create %s", dest)
	}

	result := make([]string, 0, len(files))
	for _, file := range files {
		destPath := filepath.Join(dest, filepath.Base(file))
		err = copyFile(file, destPath)
		if err != nil {
			return result, err
		}

		result = append(result, destPath)
	}

	return result, nil
}

func copyFile(src, dest string) error {
	srcHdl, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", src)
	}
	defer srcHdl.Close()

	info, err := srcHdl.Stat()
	if err != nil {
		return eris.Wrapf(err, "failed to stat %s", src)
	}
	if info.IsDir() {
		return eris.Errorf("%s is a directory", src)
	}

	destHdl, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dest)
	}

	_, err = io.Copy(destHdl, srcHdl)
	if err != nil {
		destHdl.Close()
		return eris.Wrapf(err, "failed to copy %s to %s", src, dest)
	}

	return destHdl.Close()
}
