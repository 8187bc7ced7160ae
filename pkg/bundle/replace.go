package bundle

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// ReplaceFile copies src to dest and replaces every occurrence of oldText with newText on
// the way. It returns the number of replacements.
func ReplaceFile(src, dest, oldText, newText string) (int, error) {
	if oldText == "" {
		return 0, eris.New("the text to replace must not be empty")
	}

	content, err := os.ReadFile(src)
	if err != nil {
		return 0, eris.Wrapf(err, "failed to read %s", src)
	}

	count := bytes.Count(content, []byte(oldText))
	content = bytes.ReplaceAll(content, []byte(oldText), []byte(newText))

	err = writeFile(dest, content)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func writeFile(dest string, content []byte) error {
	err := os.MkdirAll(filepath.Dir(dest), 0770)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", filepath.Dir(dest))
	}

	err = os.WriteFile(dest, content, 0644)
	if err != nil {
		return eris.Wrapf(err, "failed to write %s", dest)
	}
	return nil
}
