// Package preflight validates the environment before a backup run begins.
// The checks are stateless and idempotent with one exception: the target
// writability check creates the target directory, since a probe that cannot
// create it would fail the run anyway.
package preflight

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// MirrorTool is the external utility the mirror backup mode shells out to.
const MirrorTool = "robocopy"

// NotFoundError reports a required external dependency that is absent from
// the environment.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("required dependency %q was not found", e.Name)
}

// CheckSourceAccessible validates that the source root exists and is a
// directory.
func CheckSourceAccessible(srcPath string) error {
	info, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("source directory %s does not exist", srcPath)
		}
		return fmt.Errorf("cannot stat source directory %s: %w", srcPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source path %s is not a directory", srcPath)
	}
	return nil
}

// CheckTargetAccessible ensures the backup target is usable before any
// artifact is written. It gives friendlier errors than letting os.MkdirAll
// fail: the volume root is verified first, then the path itself or, if the
// path does not exist yet, its parent.
func CheckTargetAccessible(targetPath string) error {
	if err := checkVolumeExists(targetPath); err != nil {
		return err
	}

	info, err := os.Stat(targetPath)
	if os.IsNotExist(err) {
		parentDir := filepath.Dir(targetPath)
		if _, err := os.Stat(parentDir); os.IsNotExist(err) {
			return fmt.Errorf("target path and its parent directory do not exist: %s", parentDir)
		} else if err != nil {
			return fmt.Errorf("cannot access parent directory %s: %w", parentDir, err)
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("cannot access target path: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("target path exists but is not a directory: %s", targetPath)
	}
	return nil
}

// CheckTargetWritable ensures the target directory can be created and is
// writable by creating and deleting a probe file.
func CheckTargetWritable(targetPath string) error {
	if err := os.MkdirAll(targetPath, 0755); err != nil {
		return fmt.Errorf("failed to create target directory %s: %w", targetPath, err)
	}

	tempFile := filepath.Join(targetPath, ".profile-backup-writetest.tmp")
	f, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("target directory %s is not writable: %w", targetPath, err)
	}
	f.Close()
	_ = os.Remove(tempFile)
	return nil
}

// CheckMirrorToolAvailable verifies the mirror utility is resolvable on the
// PATH. Only relevant when the run uses the mirror backup mode.
func CheckMirrorToolAvailable() error {
	if _, err := exec.LookPath(MirrorTool); err != nil {
		return &NotFoundError{Name: MirrorTool}
	}
	return nil
}
