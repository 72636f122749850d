package job

import (
	"bufio"
	"io"
	"os"

	"github.com/distccd-go/distccd/internal/tempdir"
)

func writeFilePayload(r *bufio.Reader, path string, length uint32) error {
	if err := tempdir.MkAncestorDirs(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.CopyN(f, r, int64(length))
	return err
}

func symlinkCompat(target, path string) error {
	_ = os.Remove(path)
	return os.Symlink(target, path)
}

func readFileCompat(path string) ([]byte, error) {
	return os.ReadFile(path)
}
