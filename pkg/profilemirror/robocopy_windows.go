//go:build windows

package profilemirror

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/paulschiretz/profile-backup/pkg/plog"
)

// execute invokes the Windows `robocopy` utility to perform the directory
// mirror and returns its raw exit status. Classification of the status is
// left to the caller; only failures to launch the process at all are
// reported as an error here.
func (t *mirrorTask) execute() (int, error) {
	// Robocopy command arguments:
	// /MIR     :: MIRror a directory tree (equivalent to /E plus /PURGE).
	// /DCOPY:T :: preserve directory timestamps.
	// /R:n     :: Retry n times on failed copies.
	// /W:n     :: Wait n seconds between retries.
	// /NP      :: No Progress - don't display % copied.
	// /NJH     :: No Job Header.
	args := []string{t.src, t.dst, "/MIR", "/DCOPY:T", "/NP", "/NJH"}
	args = append(args, "/R:"+strconv.Itoa(t.retryCount))
	args = append(args, "/W:"+strconv.Itoa(int(t.retryWait/time.Second)))

	// If the log level is above NOTICE, suppress robocopy's file/dir list.
	if !plog.Default().Enabled(context.Background(), plog.LevelNotice) {
		args = append(args, "/NFL") // No File List - don't log individual files.
		args = append(args, "/NDL") // No Directory List - don't log individual directories.
	}

	// Add files to exclude.
	if len(t.excludeFiles) > 0 {
		args = append(args, "/XF")
		args = append(args, t.excludeFiles...)
	}

	plog.Info("Starting mirror with robocopy", "source", t.src, "destination", t.dst)
	cmd := exec.CommandContext(t.ctx, "robocopy", args...)

	// Pipe robocopy's stdout and stderr directly to our program's
	// stdout/stderr for real-time logging.
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	// Robocopy returns non-zero exit codes for success cases (e.g., files
	// were copied), so any exit status is a valid outcome for the caller.
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := errors.AsType[*exec.ExitError](err); ok {
		return exitErr.ExitCode(), nil
	}
	// The process could not be started or was killed by cancellation.
	if t.ctx.Err() != nil {
		return 0, t.ctx.Err()
	}
	return 0, err
}
