//go:build !windows

package profilemirror

import "errors"

// execute fails on non-Windows platforms; the mirror strategy depends on the
// robocopy utility.
func (t *mirrorTask) execute() (int, error) {
	return 0, errors.New("the mirror backup mode requires robocopy and is only available on Windows")
}
