// Package backup archives a directory tree to a zstd-compressed tar file
// and restores it again.
package backup

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/akneni/tynkerbase-uninstall/internal/constants"
	"github.com/akneni/tynkerbase-uninstall/internal/logger"
	"github.com/klauspost/compress/zstd"
)

// Extension is appended to every archive name.
const Extension = ".tar.zst"

const timestampFormat = "20060102T150405Z"

var (
	// ErrUnsafePath is returned when an archive entry would land outside the
	// restore destination.
	ErrUnsafePath = errors.New("archive entry escapes destination")
	// ErrDestInsideSource is returned when the archive would be written into
	// the tree being archived.
	ErrDestInsideSource = errors.New("backup directory is inside the source tree")
)

// Within reports whether path is dir or lies beneath it. Both are cleaned
// lexically; symlinks are not resolved.
func Within(dir, path string) bool {
	dir, path = filepath.Clean(dir), filepath.Clean(path)
	if path == dir {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(dir, string(os.PathSeparator))+string(os.PathSeparator))
}

// now is replaced in tests.
var now = time.Now

// ArchiveName returns the file name used for an archive of src taken at t.
func ArchiveName(src string, t time.Time) string {
	return filepath.Base(filepath.Clean(src)) + "-" + t.UTC().Format(timestampFormat) + Extension
}

// Archive writes src to a new archive inside dir and returns its path.
// Regular files, directories and symlinks are stored; other file types are
// skipped. A partially written archive is removed on failure.
func Archive(src, dir string) (_ string, err error) {
	if Within(src, dir) {
		return "", fmt.Errorf("%s in %s: %w", dir, src, ErrDestInsideSource)
	}
	if err := os.MkdirAll(dir, constants.DirMode); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	path := filepath.Join(dir, ArchiveName(src, now()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(path)
		}
	}()

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		f.Close()
		return "", fmt.Errorf("failed to start zstd encoder: %w", err)
	}
	tw := tar.NewWriter(zw)

	walkErr := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		return addEntry(tw, p, filepath.ToSlash(rel), d)
	})

	// close in reverse order of wrapping; the first error wins
	closeErrs := []error{tw.Close(), zw.Close(), f.Close()}
	if walkErr != nil {
		return "", fmt.Errorf("failed to archive %s: %w", src, walkErr)
	}
	for _, cerr := range closeErrs {
		if cerr != nil {
			return "", fmt.Errorf("failed to finish archive: %w", cerr)
		}
	}

	logger.Debug("archive written", "src", src, "archive", path)
	return path, nil
}

func addEntry(tw *tar.Writer, path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	mode := info.Mode()
	var link string
	switch {
	case mode.IsRegular(), mode.IsDir():
	case mode&fs.ModeSymlink != 0:
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	default:
		logger.Debug("skipping special file", "path", path, "mode", mode.String())
		return nil
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	if mode.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	if !mode.IsRegular() {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// Restore extracts archive into dest, creating dest if needed.
func Restore(archive, dest string) error {
	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to start zstd decoder: %w", err)
	}
	defer zr.Close()

	dest = filepath.Clean(dest)
	if err := os.MkdirAll(dest, constants.DirMode); err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("%s: %w", hdr.Name, ErrUnsafePath)
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}
		if hdr.Typeflag == tar.TypeSymlink {
			if err := checkLink(dest, target, hdr.Linkname); err != nil {
				return err
			}
		}

		if err := extractEntry(tr, hdr, target); err != nil {
			return fmt.Errorf("failed to extract %s: %w", hdr.Name, err)
		}
	}
}

// safeJoin maps an entry name to a path under dest. The name must be relative
// and must not climb out of dest, and no existing component between dest and
// the result may be a symlink.
func safeJoin(dest, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%s: %w", name, ErrUnsafePath)
	}
	target := filepath.Join(dest, filepath.FromSlash(name))
	if target == dest {
		return target, nil
	}
	if !Within(dest, target) {
		return "", fmt.Errorf("%s: %w", name, ErrUnsafePath)
	}

	rel, err := filepath.Rel(dest, target)
	if err != nil {
		return "", err
	}
	cur := dest
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return "", err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return "", fmt.Errorf("%s: through symlink %s: %w", name, cur, ErrUnsafePath)
		}
	}
	return target, nil
}

// checkLink rejects symlink targets that are absolute or resolve outside dest.
func checkLink(dest, target, link string) error {
	if filepath.IsAbs(link) || strings.HasPrefix(link, "/") {
		return fmt.Errorf("link %s -> %s: %w", target, link, ErrUnsafePath)
	}
	if !Within(dest, filepath.Join(filepath.Dir(target), filepath.FromSlash(link))) {
		return fmt.Errorf("link %s -> %s: %w", target, link, ErrUnsafePath)
	}
	return nil
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, target string) error {
	mode := hdr.FileInfo().Mode()

	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, mode.Perm()|0700)

	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), constants.DirMode); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		return out.Close()

	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), constants.DirMode); err != nil {
			return err
		}
		return os.Symlink(hdr.Linkname, target)

	default:
		logger.Debug("skipping unsupported archive entry", "name", hdr.Name, "type", string(hdr.Typeflag))
		return nil
	}
}
