package bundle

import (
	"io"
	"os"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
)

// Compress writes a brotli compressed copy of r to w
func Compress(w io.Writer, r io.Reader) error {
	brw := brotli.NewWriterLevel(w, brotli.BestCompression)

	_, err := io.Copy(brw, r)
	if err != nil {
		brw.Close()
		return err
	}

	return brw.Close()
}

// CompressFile writes a brotli compressed copy of path next to it (path + ".br") and
// returns the new file's path.
func CompressFile(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "failed to open %s", path)
	}
	defer src.Close()

	destPath := path + ".br"
	dest, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrapf(err, "failed to create %s", destPath)
	}

	err = Compress(dest, src)
	if err != nil {
		dest.Close()
		return "", eris.Wrapf(err, "failed to compress %s", path)
	}

	err = dest.Close()
	if err != nil {
		return "", eris.Wrapf(err, "failed to write %s", destPath)
	}
	return destPath, nil
}
