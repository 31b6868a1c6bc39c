//go:build !windows

package pathacl

import "errors"

var errUnsupported = errors.New("path access control management is only available on Windows")

type unsupportedManager struct{}

// NewManager returns a Manager whose operations all fail; access control
// configuration depends on the Windows security descriptor APIs.
func NewManager() Manager {
	return &unsupportedManager{}
}

func (m *unsupportedManager) Grant(path string, e Entry) error       { return errUnsupported }
func (m *unsupportedManager) Entries(path string) ([]Entry, error)   { return nil, errUnsupported }
func (m *unsupportedManager) RemoveEntry(path string, e Entry) error { return errUnsupported }
func (m *unsupportedManager) DisableInheritance(path string) error   { return errUnsupported }
