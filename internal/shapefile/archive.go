package shapefile

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned for zip entries that point outside the archive root
var ErrUnsafePath = errors.New("zip entry escapes the archive root")

// maxEntrySize bounds a single extracted file
const maxEntrySize = 512 << 20

// ArchiveFile is one file taken out of an uploaded zip
type ArchiveFile struct {
	Name string
	Data []byte
}

// ExtractZip reads every regular file in a zip archive. Directory structure
// is flattened to base names; macOS resource forks are skipped.
func ExtractZip(r io.ReaderAt, size int64) ([]ArchiveFile, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("error opening zip file: %w", err)
	}

	files := make([]ArchiveFile, 0, len(zr.File))
	for _, zf := range zr.File {
		name := strings.ReplaceAll(zf.Name, "\\", "/")
		if zf.FileInfo().IsDir() || strings.HasSuffix(name, "/") {
			continue
		}
		if path.IsAbs(name) || strings.HasPrefix(path.Clean(name), "../") || path.Clean(name) == ".." {
			return nil, fmt.Errorf("%w: %s", ErrUnsafePath, zf.Name)
		}
		base := path.Base(name)
		if strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(base, "._") {
			continue
		}
		if zf.UncompressedSize64 > maxEntrySize {
			return nil, fmt.Errorf("zip entry %s is too large", base)
		}

		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("error reading %s from zip: %w", base, err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("error reading %s from zip: %w", base, err)
		}
		files = append(files, ArchiveFile{Name: base, Data: data})
	}
	return files, nil
}

// BuildZip writes the given files into a zip archive under their base names
func BuildZip(w io.Writer, paths []string) error {
	zw := zip.NewWriter(w)
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		if seen[name] {
			continue
		}
		seen[name] = true

		if err := addToZip(zw, p, name); err != nil {
			zw.Close()
			return err
		}
	}
	return zw.Close()
}

func addToZip(zw *zip.Writer, src, name string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", name, err)
	}
	defer in.Close()

	entry, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("error adding %s to zip: %w", name, err)
	}
	if _, err := io.Copy(entry, in); err != nil {
		return fmt.Errorf("error adding %s to zip: %w", name, err)
	}
	return nil
}
