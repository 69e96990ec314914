package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
)

// ErrMemberNotFound is returned when the archive does not contain the requested file.
var ErrMemberNotFound = errors.New("member not found in archive")

// ExtractFile copies the first entry of the .tgz at archivePath whose path
// ends with suffix (e.g. "bin/mongod") to dest, marked executable.
func ExtractFile(fs afero.Fs, archivePath, suffix, dest string) error {
	f, err := fs.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("read gzip header: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %s in %s", ErrMemberNotFound, suffix, archivePath)
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || !matches(hdr.Name, suffix) {
			continue
		}
		return writeMember(fs, tr, dest)
	}
}

func matches(name, suffix string) bool {
	clean := path.Clean(strings.TrimPrefix(name, "./"))
	return clean == suffix || strings.HasSuffix(clean, "/"+suffix)
}

func writeMember(fs afero.Fs, r io.Reader, dest string) error {
	if err := fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}
	tmp := dest + ".tmp"
	out, err := fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		_ = fs.Remove(tmp)
		return fmt.Errorf("extract %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := fs.Chmod(tmp, 0o755); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp, err)
	}
	return fs.Rename(tmp, dest)
}
