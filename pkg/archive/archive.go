// Package archive unpacks Cassandra distribution archives (.tar.gz, .tgz,
// .tar and .zip) into a directory.
package archive

import (
	"archive/tar"
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// SkipFunc reports whether an archive entry (slash separated, relative) should
// be left out. Skipping a directory skips everything below it.
type SkipFunc func(name string) bool

// SkipDirs skips any entry that has a path element equal to one of names.
func SkipDirs(names ...string) SkipFunc {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool {
		for _, part := range strings.Split(strings.Trim(name, "/"), "/") {
			if set[part] {
				return true
			}
		}
		return false
	}
}

// Extract unpacks src into dest. The format is chosen from the file name.
func Extract(ctx context.Context, src, dest string, skip SkipFunc) error {
	if skip == nil {
		skip = func(string) bool { return false }
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create destination %s: %w", dest, err)
	}

	lower := strings.ToLower(src)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return extractTarGz(ctx, src, dest, skip)
	case strings.HasSuffix(lower, ".tar"):
		f, err := os.Open(src)
		if err != nil {
			return fmt.Errorf("failed to open archive %s: %w", src, err)
		}
		defer f.Close()
		return extractTar(ctx, f, dest, skip)
	case strings.HasSuffix(lower, ".zip"):
		return extractZip(ctx, src, dest, skip)
	default:
		return fmt.Errorf("unsupported archive format: %s", src)
	}
}

func extractTarGz(ctx context.Context, src, dest string, skip SkipFunc) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", src, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to read gzip stream %s: %w", src, err)
	}
	defer gz.Close()

	return extractTar(ctx, gz, dest, skip)
}

func extractTar(ctx context.Context, r io.Reader, dest string, skip SkipFunc) error {
	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar entry: %w", err)
		}

		if skip(hdr.Name) {
			continue
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, os.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("failed to create directory for %s: %w", target, err)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("failed to create symlink %s: %w", target, err)
			}
		default:
			// Device files, hard links and the like never appear in Cassandra archives
		}
	}
}

func extractZip(ctx context.Context, src, dest string, skip SkipFunc) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", src, err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if skip(zf.Name) {
			continue
		}

		target, err := safeJoin(dest, zf.Name)
		if err != nil {
			return err
		}

		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", target, err)
			}
			continue
		}

		rc, err := zf.Open()
		if err != nil {
			return fmt.Errorf("failed to open zip entry %s: %w", zf.Name, err)
		}
		mode := zf.Mode().Perm()
		if mode == 0 {
			mode = 0644
		}
		err = writeFile(target, rc, mode)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", target, err)
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return out.Close()
}

// safeJoin joins an archive entry name onto dest, refusing entries that would
// escape dest.
func safeJoin(dest, name string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	target := filepath.Join(dest, filepath.FromSlash(clean))
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes destination %s", name, dest)
	}
	return target, nil
}
