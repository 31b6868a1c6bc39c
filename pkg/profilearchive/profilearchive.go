// Package profilearchive implements the Compress backup strategy: it builds a
// single compressed container per profile from the profile's entire directory
// tree.
//
// The container is built by hand instead of delegating to a one-shot
// directory archiver: the walk must include hidden and system files, must
// omit files whose base name matches the exclusion set, and must survive
// individual unreadable files (e.g. locked by another process) without
// aborting the whole artifact.
package profilearchive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/paulschiretz/profile-backup/pkg/exclusion"
	"github.com/paulschiretz/profile-backup/pkg/plog"
	"github.com/paulschiretz/profile-backup/pkg/util"
)

// Plan carries the per-run archive settings.
type Plan struct {
	Format Format
	Level  Level

	// ExcludeFiles are the base-name glob patterns omitted from the archive.
	ExcludeFiles []string
}

// OutcomeStatus tags the two expected, non-error results of an archive build.
type OutcomeStatus int

const (
	// Created means the artifact was produced and its size recorded.
	Created OutcomeStatus = iota
	// SkippedEmpty means the source tree held zero entries and no artifact
	// was produced. This is an expected condition, not a failure.
	SkippedEmpty
)

// Outcome is the tagged result of an archive build, so callers can
// distinguish an expected skip from a genuine fault without sentinel errors.
type Outcome struct {
	Status OutcomeStatus

	// CompressedSizeBytes is the artifact's size on disk; set when Status is Created.
	CompressedSizeBytes int64
}

// tempFilePattern is the naming scheme for in-progress archives. Stale
// matches from crashed runs are removed before a new build starts.
const tempFilePattern = "profile-backup-*.tmp"

// Archiver builds profile archives. It is stateless between calls and safe
// to reuse across profiles within a run.
type Archiver struct {
	ioWriterPool *sync.Pool
	ioBufferPool *sync.Pool
}

// NewArchiver creates an Archiver with pooled I/O buffers of the given size.
func NewArchiver(bufferSizeKB int) *Archiver {
	bufferSize := bufferSizeKB * 1024
	return &Archiver{
		ioWriterPool: &sync.Pool{
			New: func() any {
				return bufio.NewWriterSize(io.Discard, bufferSize)
			},
		},
		ioBufferPool: &sync.Pool{
			New: func() any {
				b := make([]byte, bufferSize)
				return &b
			},
		},
	}
}

// Archive builds the artifact for one profile directory.
//
// An existing artifact at absArchivePath is removed first; the new content is
// written to a temporary file in the same directory and renamed into place.
// A source tree with zero entries at any depth (hidden included, before
// exclusion filtering) yields a SkippedEmpty outcome and no artifact.
func (a *Archiver) Archive(ctx context.Context, absSourcePath, absArchivePath string, p *Plan) (Outcome, error) {
	select {
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	default:
	}

	empty, err := isEmptyTree(absSourcePath)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to inspect source directory %s: %w", absSourcePath, err)
	}
	if empty {
		plog.Info("Profile directory is empty, skipping archive", "source", absSourcePath)
		return Outcome{Status: SkippedEmpty}, nil
	}

	// Overwrite semantics: the prior artifact is deleted up front so a failed
	// build never leaves a stale artifact masquerading as current.
	if err := os.Remove(absArchivePath); err != nil && !os.IsNotExist(err) {
		return Outcome{}, fmt.Errorf("failed to remove existing archive %s: %w", absArchivePath, err)
	}

	cleanupStaleTempFiles(filepath.Dir(absArchivePath))

	if err := a.buildArchive(ctx, absSourcePath, absArchivePath, p); err != nil {
		return Outcome{}, err
	}

	info, err := os.Stat(absArchivePath)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to stat finished archive %s: %w", absArchivePath, err)
	}
	return Outcome{Status: Created, CompressedSizeBytes: info.Size()}, nil
}

// buildArchive writes the archive to a temp file and renames it into place.
func (a *Archiver) buildArchive(ctx context.Context, absSourcePath, absArchivePath string, p *Plan) (retErr error) {
	// The temp file lives in the target directory to keep the rename atomic.
	targetF, err := os.CreateTemp(filepath.Dir(absArchivePath), tempFilePattern)
	if err != nil {
		return fmt.Errorf("failed to create temp archive: %w", err)
	}
	tempName := targetF.Name()

	// Ensure cleanup on error
	defer func() {
		if retErr != nil {
			targetF.Close()
			os.Remove(tempName)
		}
	}()

	if err := a.writeArchive(ctx, absSourcePath, targetF, p); err != nil {
		return err
	}

	// Close explicitly to flush to disk before rename.
	if err := targetF.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempName, absArchivePath); err != nil {
		return fmt.Errorf("failed to rename temp archive to final path: %w", err)
	}
	return nil
}

func (a *Archiver) writeArchive(ctx context.Context, absSourcePath string, targetF *os.File, p *Plan) (retErr error) {
	// Get a buffered writer from the pool; it sits between the compressor and
	// the disk to reduce syscalls.
	bufWriter := a.ioWriterPool.Get().(*bufio.Writer)
	bufWriter.Reset(targetF)
	defer func() {
		bufWriter.Reset(io.Discard)
		a.ioWriterPool.Put(bufWriter)
	}()

	archiver, err := newArchiveWriter(bufWriter, p.Format, p.Level)
	if err != nil {
		return err
	}

	// Robust cleanup
	defer func() {
		if err := archiver.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("archive writer close failed: %w", err)
		}
		if err := bufWriter.Flush(); err != nil && retErr == nil {
			retErr = fmt.Errorf("buffer flush failed: %w", err)
		}
	}()

	excludes := exclusion.NewSet(p.ExcludeFiles)

	return filepath.WalkDir(absSourcePath, func(absSrcPath string, d os.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if walkErr != nil {
			// A failed root enumeration is fatal; deeper failures only cost
			// the affected subtree.
			if absSrcPath == absSourcePath {
				return walkErr
			}
			plog.Warn("Skipping unreadable entry", "path", absSrcPath, "error", walkErr)
			return nil
		}

		// Directories carry no entries of their own; hierarchy is preserved
		// through the entries' relative paths.
		if d.IsDir() {
			return nil
		}

		if excludes.Matches(d.Name()) {
			plog.Notice("EXCLUDE", "source", absSourcePath, "file", d.Name())
			return nil
		}

		info, err := d.Info()
		if err != nil {
			plog.Warn("Skipping file; cannot read file info", "path", absSrcPath, "error", err)
			return nil
		}

		relPath, err := filepath.Rel(absSourcePath, absSrcPath)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", absSrcPath, err)
		}
		relPath = util.NormalizePath(relPath)

		plog.Notice("ADD", "source", absSourcePath, "file", relPath)

		// A failure to add one individual file (e.g. locked by another
		// process) is logged and skipped; the archive is still produced
		// with the remaining files.
		err = func() error {
			bufPtr := a.ioBufferPool.Get().(*[]byte)
			defer a.ioBufferPool.Put(bufPtr)
			return archiver.AddFile(absSrcPath, relPath, info, *bufPtr)
		}()
		if err != nil {
			plog.Warn("Failed to add file to archive, skipping", "file", relPath, "error", err)
		}
		return nil
	})
}

// newArchiveWriter sets up the appropriate archive writer chain for the format.
func newArchiveWriter(out io.Writer, format Format, level Level) (archiveWriter, error) {
	switch format {
	case Zip:
		zw := newZipWriter(out, level)
		return &zipArchiveWriter{zipWriter: zw, level: level}, nil
	case TarGz:
		gzipWriter, err := pgzip.NewWriterLevel(out, level.pgzipLevel())
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		return &tarArchiveWriter{tarWriter: newTarWriter(gzipWriter), compressedWriter: gzipWriter}, nil
	case TarZst:
		zstdWriter, err := zstd.NewWriter(out, zstd.WithEncoderLevel(level.zstdLevel()))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return &tarArchiveWriter{tarWriter: newTarWriter(zstdWriter), compressedWriter: zstdWriter}, nil
	default:
		return nil, fmt.Errorf("unsupported archive format: %s", format)
	}
}

// errTreeNotEmpty is a walk sentinel used to stop enumeration on the first hit.
var errTreeNotEmpty = errors.New("tree not empty")

// isEmptyTree reports whether the directory holds zero entries at any depth.
// Hidden and system files count; the walk stops at the first entry found.
func isEmptyTree(absSourcePath string) (bool, error) {
	err := filepath.WalkDir(absSourcePath, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == absSourcePath {
			return nil
		}
		return errTreeNotEmpty
	})
	if errors.Is(err, errTreeNotEmpty) {
		return false, nil
	}
	return err == nil, err
}

// cleanupStaleTempFiles removes leftover in-progress archives from previous
// crashed runs so they don't accumulate in the destination.
func cleanupStaleTempFiles(dirPath string) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "profile-backup-") && strings.HasSuffix(name, ".tmp") {
			plog.Debug("Removing stale temporary archive", "file", name)
			os.Remove(filepath.Join(dirPath, name))
		}
	}
}
