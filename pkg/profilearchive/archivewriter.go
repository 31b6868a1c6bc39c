package profilearchive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// newZipWriter creates a zip.Writer whose deflate compressor honors the
// configured level.
func newZipWriter(out io.Writer, level Level) *zip.Writer {
	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level.flateLevel())
	})
	return zw
}

// newTarWriter wraps a compressed stream in a tar writer.
func newTarWriter(out io.Writer) *tar.Writer {
	return tar.NewWriter(out)
}

// archiveWriter defines an interface for a generic archive creation utility.
// This allows the main build logic to be format-agnostic.
type archiveWriter interface {
	// AddFile adds a file from the filesystem to the archive using a pre-calculated relative path.
	AddFile(absPath, relPath string, info os.FileInfo, buf []byte) error
	// Close finalizes and closes the archive writer.
	Close() error
}

// zipArchiveWriter implements archiveWriter for .zip files.
type zipArchiveWriter struct {
	zipWriter *zip.Writer
	level     Level
}

func (zw *zipArchiveWriter) AddFile(absSrcPath, relPath string, info os.FileInfo, buf []byte) error {
	// Create a zip header from the file info.
	// zip.Create() would use default permissions and the current time; by using
	// FileInfoHeader we preserve the original file's mode and modification time.
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create zip header for %s: %w", relPath, err)
	}
	header.Name = relPath
	if zw.level == None {
		header.Method = zip.Store
	} else {
		header.Method = zip.Deflate
	}

	// The file is opened before the header is written so that an unreadable
	// file (e.g. locked by another process) never leaves a dangling entry.
	fileToZip, err := os.Open(absSrcPath)
	if err != nil {
		return fmt.Errorf("failed to open file %s for zipping: %w", absSrcPath, err)
	}
	defer fileToZip.Close()

	writer, err := zw.zipWriter.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create entry for %s in zip: %w", relPath, err)
	}

	if _, err := io.CopyBuffer(writer, fileToZip, buf); err != nil {
		return fmt.Errorf("failed to copy file %s to zip: %w", absSrcPath, err)
	}
	return nil
}

func (zw *zipArchiveWriter) Close() error {
	if err := zw.zipWriter.Close(); err != nil {
		return fmt.Errorf("failed to close zip writer: %w", err)
	}
	return nil
}

// tarArchiveWriter implements archiveWriter for .tar.gz or .tar.zst files.
type tarArchiveWriter struct {
	tarWriter        *tar.Writer
	compressedWriter io.WriteCloser
}

func (tw *tarArchiveWriter) AddFile(absSrcPath, relPath string, info os.FileInfo, buf []byte) error {
	// FileInfoHeader automatically preserves file permissions (Mode) and modification time.
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to create tar header for %s: %w", absSrcPath, err)
	}
	header.Name = relPath

	fileToTar, err := os.Open(absSrcPath)
	if err != nil {
		return fmt.Errorf("failed to open file %s for taring: %w", absSrcPath, err)
	}
	defer fileToTar.Close()

	if err := tw.tarWriter.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", relPath, err)
	}

	if _, err := io.CopyBuffer(tw.tarWriter, fileToTar, buf); err != nil {
		return fmt.Errorf("failed to copy file %s to tar: %w", absSrcPath, err)
	}
	return nil
}

// Close finalizes and closes the tar and underlying compressors in the correct order.
func (tw *tarArchiveWriter) Close() error {
	// Writers must be closed in the correct order: tar first, then compressor.
	if err := tw.tarWriter.Close(); err != nil {
		return err
	}
	return tw.compressedWriter.Close()
}
