// Package profilemirror implements the Mirror backup strategy: the profile's
// destination directory is synchronized to exactly match the source,
// including deletions of destination files no longer present in the source.
//
// The heavy lifting is delegated to the Windows robocopy utility, which is
// battle-tested for exactly this job; this package owns argument
// construction, destination preparation and exit-status classification.
package profilemirror

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/paulschiretz/profile-backup/pkg/plog"
)

// Plan carries the per-run mirror settings.
type Plan struct {
	// RetryCount and RetryWait bound robocopy's retries on transient I/O errors.
	RetryCount int
	RetryWait  time.Duration

	// ExcludeFiles are the base-name glob patterns passed to the tool's
	// file-exclusion flag.
	ExcludeFiles []string
}

// Result reports a completed mirror invocation.
type Result struct {
	// ExitCode is the external tool's numeric exit status (0-7 on success).
	ExitCode int
}

// ExitError reports a mirror invocation that the external tool classified as
// failed (exit status 8 or above).
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("robocopy failed with exit code %d", e.Code)
}

// Mirrorer runs mirror operations. It is stateless and safe to reuse across
// profiles within a run.
type Mirrorer struct{}

// NewMirrorer creates a new Mirrorer.
func NewMirrorer() *Mirrorer {
	return &Mirrorer{}
}

// Mirror synchronizes absDestPath to match absSourcePath. The destination
// directory is created first if absent. The tool's exit status is always
// captured in the Result; statuses of 8 or above additionally yield an
// *ExitError.
func (m *Mirrorer) Mirror(ctx context.Context, absSourcePath, absDestPath string, p *Plan) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	if err := os.MkdirAll(absDestPath, 0755); err != nil {
		return Result{}, fmt.Errorf("failed to create destination directory %s: %w", absDestPath, err)
	}

	t := &mirrorTask{
		src:          absSourcePath,
		dst:          absDestPath,
		retryCount:   p.RetryCount,
		retryWait:    p.RetryWait,
		excludeFiles: p.ExcludeFiles,
		ctx:          ctx,
	}

	code, err := t.execute()
	if err != nil {
		return Result{ExitCode: code}, err
	}
	if !isMirrorSuccessCode(code) {
		return Result{ExitCode: code}, &ExitError{Code: code}
	}

	plog.Info("Mirror completed", "destination", absDestPath, "exitCode", code, "details", describeExitCode(code))
	return Result{ExitCode: code}, nil
}

// mirrorTask holds the state for a single tool invocation.
type mirrorTask struct {
	src string
	dst string

	retryCount   int
	retryWait    time.Duration
	excludeFiles []string
	ctx          context.Context
}

// isMirrorSuccessCode reports whether a robocopy exit status counts as
// success. Codes 0-7 are bit combinations of benign sub-states; 8 and above
// indicate copy failures or fatal errors.
func isMirrorSuccessCode(code int) bool {
	return code >= 0 && code < 8
}

// describeExitCode renders the benign robocopy status bits for logging.
func describeExitCode(code int) string {
	if code == 0 {
		return "nothing to copy"
	}
	var parts []string
	if code&1 != 0 {
		parts = append(parts, "files copied")
	}
	if code&2 != 0 {
		parts = append(parts, "extra destination entries")
	}
	if code&4 != 0 {
		parts = append(parts, "mismatched entries")
	}
	if len(parts) == 0 {
		return fmt.Sprintf("status %d", code)
	}
	return strings.Join(parts, ", ")
}
