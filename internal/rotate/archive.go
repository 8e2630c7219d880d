package rotate

import (
	"compress/gzip"
	"io"
	"os"
	"strconv"

	"github.com/logspam/logspam/internal/errors"
)

// archiveFile identifies one rotated archive of an output file
type archiveFile struct {
	name       string
	index      int
	compressed bool
}

// archivePath builds the on-disk path for an archive slot
func archivePath(name string, index int, compressed bool) string {
	if compressed {
		return name + "." + strconv.Itoa(index) + ".gz"
	}
	return name + "." + strconv.Itoa(index)
}

func (a *archiveFile) path() string {
	return archivePath(a.name, a.index, a.compressed)
}

// isCompressed reports whether the archive at the given index is gzipped.
// Archives can be mixed when the compress flag changed between runs.
func isCompressed(outputFile string, index int) (bool, error) {
	if _, err := os.Stat(archivePath(outputFile, index, true)); err == nil {
		return true, nil
	}

	if _, err := os.Stat(archivePath(outputFile, index, false)); err == nil {
		return false, nil
	} else {
		return false, err
	}
}

// findArchives walks archive indexes from 1 until the first missing slot, so
// the returned slice is dense and ordered newest-first.
func findArchives(outputFile string) []archiveFile {
	archives := make([]archiveFile, 0)

	for i := 1; ; i++ {
		compressed, err := isCompressed(outputFile, i)
		if err != nil {
			return archives
		}
		archives = append(archives, archiveFile{name: outputFile, index: i, compressed: compressed})
	}
}

// shiftUp renames the archive into the next higher index slot, refusing to
// overwrite existing data.
func (a *archiveFile) shiftUp() error {
	target := archivePath(a.name, a.index+1, a.compressed)
	if _, err := os.Stat(target); err == nil {
		return errors.ErrRotateTargetBusy.WithDetails("target", target)
	}

	if err := os.Rename(a.path(), target); err != nil {
		return errors.FileError("RENAME_FAILED", "Failed to move archive", err)
	}

	a.index++
	return nil
}

// nextFreeFile finds the first unused "<prefix>.N" path
func nextFreeFile(prefix string) string {
	for i := 1; ; i++ {
		candidate := prefix + "." + strconv.Itoa(i)
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}

// copyFile copies src to dst without compression
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.FileError("OPEN_FAILED", "Failed to open source file", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.FileError("CREATE_FAILED", "Failed to create archive file", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.FileError("COPY_FAILED", "Failed to copy archive data", err)
	}

	return nil
}

// gzipFile compresses src into dst
func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.FileError("OPEN_FAILED", "Failed to open source file", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.FileError("CREATE_FAILED", "Failed to create archive file", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()

	if _, err := io.Copy(gz, in); err != nil {
		return errors.FileError("COMPRESS_FAILED", "Failed to compress archive data", err)
	}

	return nil
}
