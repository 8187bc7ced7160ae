package bundle

import (
	"archive/tar"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/ulikunitz/xz"
)

func getProgressBar(length int64, desc string, visible bool) *progressbar.ProgressBar {
	if !visible || os.Getenv("CI") == "true" {
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.DefaultBytes(length, desc)
}

type packItem struct {
	path string
	name string
	info fs.FileInfo
}

func collectPackItems(dir, skip string) ([]packItem, int64, error) {
	items := make([]packItem, 0)
	total := int64(0)

	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir || path == skip {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		if !info.IsDir() && !info.Mode().IsRegular() {
			// symlinks, sockets, ...
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		items = append(items, packItem{path: path, name: filepath.ToSlash(rel), info: info})
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})

	return items, total, err
}

// PackDir writes the regular files and directories below dir into a .tar.xz archive at
// output. Names inside the archive are relative to dir. If output is inside dir, it's
// skipped.
func PackDir(dir, output string, showProgress bool) error {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	output, err = filepath.Abs(output)
	if err != nil {
		return err
	}

	items, total, err := collectPackItems(dir, output)
	if err != nil {
		return eris.Wrapf(err, "failed to list %s", dir)
	}

	err = os.MkdirAll(filepath.Dir(output), 0770)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", filepath.Dir(output))
	}

	hdl, err := os.Create(output)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", output)
	}
	defer hdl.Close()

	xzw, err := xz.NewWriter(hdl)
	if err != nil {
		return eris.Wrap(err, "failed to initialize xz")
	}

	tw := tar.NewWriter(xzw)
	bar := getProgressBar(total, "         pack", showProgress)

	for _, item := range items {
		err = writePackItem(tw, item, bar)
		if err != nil {
			return err
		}
	}

	err = tw.Close()
	if err != nil {
		return eris.Wrap(err, "failed to finish the tar stream")
	}

	err = xzw.Close()
	if err != nil {
		return eris.Wrap(err, "failed to finish the xz stream")
	}

	bar.Finish()
	return hdl.Close()
}

func writePackItem(tw *tar.Writer, item packItem, bar *progressbar.ProgressBar) error {
	header, err := tar.FileInfoHeader(item.info, "")
	if err != nil {
		return eris.Wrapf(err, "failed to build header for %s", item.path)
	}

	header.Name = item.name
	if item.info.IsDir() {
		header.Name += "/"
	}

	err = tw.WriteHeader(header)
	if err != nil {
		return eris.Wrapf(err, "failed to write header for %s", item.path)
	}

	if item.info.IsDir() {
		return nil
	}

	src, err := os.Open(item.path)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", item.path)
	}
	defer src.Close()

	_, err = io.Copy(io.MultiWriter(tw, bar), src)
	if err != nil {
		return eris.Wrapf(err, "failed to pack %s", item.path)
	}
	return nil
}
