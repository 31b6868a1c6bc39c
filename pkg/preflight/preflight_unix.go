//go:build !windows

package preflight

// checkVolumeExists is a no-op outside Windows; there is no drive letter or
// share root to probe.
func checkVolumeExists(path string) error {
	return nil
}
