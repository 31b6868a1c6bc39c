package profilearchive

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/pgzip"
)

// writeTree creates a file tree under root. Keys use forward slashes.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			t.Fatalf("failed to create dir for %s: %v", rel, err)
		}
		if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", rel, err)
		}
	}
}

func readZipNames(t *testing.T, archivePath string) []string {
	t.Helper()
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		t.Fatalf("failed to open archive %s: %v", archivePath, err)
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func readTarGzNames(t *testing.T, archivePath string) []string {
	t.Helper()
	f, err := os.Open(archivePath)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		t.Fatalf("failed to open gzip stream: %v", err)
	}
	defer gz.Close()

	var names []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read tar entry: %v", err)
		}
		names = append(names, hdr.Name)
	}
	sort.Strings(names)
	return names
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestArchiveZipWithExclusions(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{
		"docs/report.txt":  "quarterly numbers",
		".hidden/note.txt": "hidden files are included",
		"NTUSER.DAT":       "registry hive",
		"ntuser.dat.LOG1":  "hive transaction log",
		"sub/ntuser.ini":   "excluded at any depth",
	})

	archivePath := filepath.Join(dst, "10000.zip")
	a := NewArchiver(64)
	outcome, err := a.Archive(context.Background(), src, archivePath, &Plan{
		Format:       Zip,
		Level:        Optimal,
		ExcludeFiles: []string{"ntuser*"},
	})
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if outcome.Status != Created {
		t.Fatalf("outcome status = %v, want Created", outcome.Status)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if outcome.CompressedSizeBytes != info.Size() {
		t.Errorf("CompressedSizeBytes = %d, disk size = %d", outcome.CompressedSizeBytes, info.Size())
	}

	got := readZipNames(t, archivePath)
	want := []string{".hidden/note.txt", "docs/report.txt"}
	if !equalStrings(got, want) {
		t.Errorf("archive entries = %v, want %v", got, want)
	}
}

func TestArchiveEmptyProfileIsSkipped(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	archivePath := filepath.Join(dst, "99991.zip")

	a := NewArchiver(64)
	outcome, err := a.Archive(context.Background(), src, archivePath, &Plan{Format: Zip, Level: Optimal})
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if outcome.Status != SkippedEmpty {
		t.Fatalf("outcome status = %v, want SkippedEmpty", outcome.Status)
	}
	if _, err := os.Stat(archivePath); !os.IsNotExist(err) {
		t.Error("no artifact should exist for an empty profile")
	}
}

func TestArchiveTreeWithOnlyEmptyDirsIsSkippedNot(t *testing.T) {
	// A tree containing an empty subdirectory is not empty: it has an entry.
	src := t.TempDir()
	dst := t.TempDir()
	if err := os.Mkdir(filepath.Join(src, "emptydir"), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	a := NewArchiver(64)
	outcome, err := a.Archive(context.Background(), src, filepath.Join(dst, "10000.zip"), &Plan{Format: Zip, Level: Optimal})
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if outcome.Status != Created {
		t.Fatalf("outcome status = %v, want Created", outcome.Status)
	}
}

func TestArchiveOverwritesExistingArtifact(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{"file.txt": "fresh content"})

	archivePath := filepath.Join(dst, "10000.zip")
	if err := os.WriteFile(archivePath, []byte("stale junk, not a zip"), 0644); err != nil {
		t.Fatalf("failed to plant stale artifact: %v", err)
	}

	a := NewArchiver(64)
	if _, err := a.Archive(context.Background(), src, archivePath, &Plan{Format: Zip, Level: Optimal}); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	got := readZipNames(t, archivePath)
	if !equalStrings(got, []string{"file.txt"}) {
		t.Errorf("archive entries = %v, want [file.txt]", got)
	}
}

func TestArchiveCleansStaleTempFiles(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{"file.txt": "content"})

	stale := filepath.Join(dst, "profile-backup-123456.tmp")
	if err := os.WriteFile(stale, []byte("leftover"), 0644); err != nil {
		t.Fatalf("failed to plant stale temp file: %v", err)
	}

	a := NewArchiver(64)
	if _, err := a.Archive(context.Background(), src, filepath.Join(dst, "10000.zip"), &Plan{Format: Zip, Level: Optimal}); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale temp file should have been removed")
	}
	entries, err := os.ReadDir(dst)
	if err != nil {
		t.Fatalf("failed to read destination: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "10000.zip" {
			t.Errorf("unexpected leftover entry in destination: %s", e.Name())
		}
	}
}

func TestArchiveSkipsUnreadableFile(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{"good.txt": "readable"})

	// A dangling symlink enumerates like a regular file but cannot be opened.
	if err := os.Symlink(filepath.Join(src, "missing-target"), filepath.Join(src, "broken.txt")); err != nil {
		t.Skipf("cannot create symlinks on this system: %v", err)
	}

	archivePath := filepath.Join(dst, "10000.zip")
	a := NewArchiver(64)
	outcome, err := a.Archive(context.Background(), src, archivePath, &Plan{Format: Zip, Level: Optimal})
	if err != nil {
		t.Fatalf("a single unreadable file must not fail the archive: %v", err)
	}
	if outcome.Status != Created {
		t.Fatalf("outcome status = %v, want Created", outcome.Status)
	}

	got := readZipNames(t, archivePath)
	if !equalStrings(got, []string{"good.txt"}) {
		t.Errorf("archive entries = %v, want only the readable file", got)
	}
}

func TestArchiveTarGz(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":     "alpha",
		"sub/b.txt": "beta",
	})

	archivePath := filepath.Join(dst, "10000.tar.gz")
	a := NewArchiver(64)
	outcome, err := a.Archive(context.Background(), src, archivePath, &Plan{Format: TarGz, Level: Fastest})
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if outcome.Status != Created {
		t.Fatalf("outcome status = %v, want Created", outcome.Status)
	}

	got := readTarGzNames(t, archivePath)
	want := []string{"a.txt", "sub/b.txt"}
	if !equalStrings(got, want) {
		t.Errorf("archive entries = %v, want %v", got, want)
	}
}

func TestArchiveZipLevelNoneStoresEntries(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "uncompressed"})

	archivePath := filepath.Join(dst, "10000.zip")
	a := NewArchiver(64)
	if _, err := a.Archive(context.Background(), src, archivePath, &Plan{Format: Zip, Level: None}); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	r, err := zip.OpenReader(archivePath)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer r.Close()
	if len(r.File) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(r.File))
	}
	if r.File[0].Method != zip.Store {
		t.Errorf("entry method = %d, want Store", r.File[0].Method)
	}
}

func TestArchiveCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewArchiver(64)
	_, err := a.Archive(ctx, t.TempDir(), filepath.Join(t.TempDir(), "10000.zip"), &Plan{Format: Zip, Level: Optimal})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestArchiveExpiredDeadline(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	a := NewArchiver(64)
	_, err := a.Archive(ctx, t.TempDir(), filepath.Join(t.TempDir(), "10000.zip"), &Plan{Format: Zip, Level: Optimal})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestParseFormatAndLevelDefaults(t *testing.T) {
	f, err := ParseFormat("")
	if err != nil || f != Zip {
		t.Errorf("ParseFormat(\"\") = %v, %v; want Zip", f, err)
	}
	l, err := ParseLevel("")
	if err != nil || l != Optimal {
		t.Errorf("ParseLevel(\"\") = %v, %v; want Optimal", l, err)
	}
	if _, err := ParseFormat("rar"); err == nil {
		t.Error("expected error for unsupported format")
	}
	if _, err := ParseLevel("turbo"); err == nil {
		t.Error("expected error for unsupported level")
	}
}

func TestArtifactName(t *testing.T) {
	testCases := []struct {
		format Format
		expect string
	}{
		{Zip, "10000.zip"},
		{TarGz, "10000.tar.gz"},
		{TarZst, "10000.tar.zst"},
	}
	for _, tc := range testCases {
		if got := tc.format.ArtifactName("10000"); got != tc.expect {
			t.Errorf("ArtifactName = %q, want %q", got, tc.expect)
		}
	}
}
