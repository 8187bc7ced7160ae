package bundle

import (
	"bytes"
	"io"
	"os"

	"github.com/rotisserie/eris"
)

// Separator is written between two concatenated files
const Separator = "\n"

// ConcatTo writes the contents of files to w, separated by Separator
func ConcatTo(w io.Writer, files []string) error {
	for idx, file := range files {
		if idx > 0 {
			_, err := io.WriteString(w, Separator)
			if err != nil {
				return err
			}
		}

		err := appendFile(w, file)
		if err != nil {
			return err
		}
	}

	return nil
}

func appendFile(w io.Writer, file string) error {
	hdl, err := os.Open(file)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", file)
	}
	defer hdl.Close()

	_, err = io.Copy(w, hdl)
	if err != nil {
		return eris.Wrapf(err, "failed to read %s", file)
	}
	return nil
}

// Concat returns the contents of files, separated by Separator
func Concat(files []string) ([]byte, error) {
	buffer := bytes.Buffer{}
	err := ConcatTo(&buffer, files)
	if err != nil {
		return nil, err
	}

	return buffer.Bytes(), nil
}
