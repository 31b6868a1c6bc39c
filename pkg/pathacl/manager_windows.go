//go:build windows

package pathacl

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// ACE header constants not surfaced by the windows package.
const (
	aceTypeAccessAllowed = 0x0
	aceTypeAccessDenied  = 0x1

	aceFlagObjectInherit    = 0x01
	aceFlagContainerInherit = 0x02
	aceFlagInherited        = 0x10
)

type windowsManager struct{}

// NewManager returns the Manager backed by the Windows security descriptor
// APIs.
func NewManager() Manager {
	return &windowsManager{}
}

func (m *windowsManager) Grant(path string, e Entry) error {
	sid, err := windows.StringToSid(e.Principal)
	if err != nil {
		return fmt.Errorf("invalid principal %q: %w", e.Principal, err)
	}

	access := windows.EXPLICIT_ACCESS{
		AccessPermissions: accessMask(e.Rights),
		AccessMode:        windows.GRANT_ACCESS,
		Inheritance:       inheritanceFlags(path, e.Scope),
		Trustee: windows.TRUSTEE{
			TrusteeForm:  windows.TRUSTEE_IS_SID,
			TrusteeType:  windows.TRUSTEE_IS_UNKNOWN,
			TrusteeValue: windows.TrusteeValueFromSID(sid),
		},
	}

	oldDACL, _, err := readDACL(path)
	if err != nil {
		return err
	}
	newDACL, err := windows.ACLFromEntries([]windows.EXPLICIT_ACCESS{access}, oldDACL)
	if err != nil {
		return fmt.Errorf("failed to merge entry for %s into acl of %s: %w", e.Principal, path, err)
	}
	return writeDACL(path, newDACL, false)
}

func (m *windowsManager) Entries(path string) ([]Entry, error) {
	dacl, _, err := readDACL(path)
	if err != nil {
		return nil, err
	}
	if dacl == nil {
		return nil, nil
	}

	var entries []Entry
	forEachAce(dacl, func(ace *windows.ACCESS_ALLOWED_ACE) {
		if ace.Header.AceType != aceTypeAccessAllowed {
			return
		}
		sid := (*windows.SID)(unsafe.Pointer(&ace.SidStart))
		entries = append(entries, Entry{
			Principal: sid.String(),
			Rights:    rightsFromMask(ace.Mask),
			Scope:     scopeFromFlags(ace.Header.AceFlags),
			Inherited: ace.Header.AceFlags&aceFlagInherited != 0,
		})
	})
	return entries, nil
}

func (m *windowsManager) RemoveEntry(path string, e Entry) error {
	sid, err := windows.StringToSid(e.Principal)
	if err != nil {
		return fmt.Errorf("invalid principal %q: %w", e.Principal, err)
	}

	dacl, _, err := readDACL(path)
	if err != nil {
		return err
	}
	if dacl == nil {
		return nil
	}

	var kept []windows.EXPLICIT_ACCESS
	forEachAce(dacl, func(ace *windows.ACCESS_ALLOWED_ACE) {
		aceSid := (*windows.SID)(unsafe.Pointer(&ace.SidStart))
		if ace.Header.AceType == aceTypeAccessAllowed && windows.EqualSid(aceSid, sid) {
			return
		}
		kept = append(kept, explicitAccessFromAce(ace, aceSid))
	})

	newDACL, err := windows.ACLFromEntries(kept, nil)
	if err != nil {
		return fmt.Errorf("failed to rebuild acl of %s: %w", path, err)
	}
	return writeDACL(path, newDACL, false)
}

func (m *windowsManager) DisableInheritance(path string) error {
	dacl, _, err := readDACL(path)
	if err != nil {
		return err
	}

	// Keep only the explicit entries; the protected write below prevents the
	// parent's entries from flowing back in.
	var explicit []windows.EXPLICIT_ACCESS
	if dacl != nil {
		forEachAce(dacl, func(ace *windows.ACCESS_ALLOWED_ACE) {
			if ace.Header.AceFlags&aceFlagInherited != 0 {
				return
			}
			aceSid := (*windows.SID)(unsafe.Pointer(&ace.SidStart))
			explicit = append(explicit, explicitAccessFromAce(ace, aceSid))
		})
	}

	newDACL, err := windows.ACLFromEntries(explicit, nil)
	if err != nil {
		return fmt.Errorf("failed to rebuild acl of %s: %w", path, err)
	}
	return writeDACL(path, newDACL, true)
}

func readDACL(path string) (*windows.ACL, *windows.SECURITY_DESCRIPTOR, error) {
	sd, err := windows.GetNamedSecurityInfo(path, windows.SE_FILE_OBJECT, windows.DACL_SECURITY_INFORMATION)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read security info of %s: %w", path, err)
	}
	dacl, _, err := sd.DACL()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read dacl of %s: %w", path, err)
	}
	return dacl, sd, nil
}

func writeDACL(path string, dacl *windows.ACL, protected bool) error {
	info := windows.SECURITY_INFORMATION(windows.DACL_SECURITY_INFORMATION)
	if protected {
		info |= windows.PROTECTED_DACL_SECURITY_INFORMATION
	}
	if err := windows.SetNamedSecurityInfo(path, windows.SE_FILE_OBJECT, info, nil, nil, dacl, nil); err != nil {
		return fmt.Errorf("failed to write dacl of %s: %w", path, err)
	}
	return nil
}

// forEachAce walks the DACL until the ace index runs past the end.
func forEachAce(dacl *windows.ACL, fn func(*windows.ACCESS_ALLOWED_ACE)) {
	for i := uint32(0); ; i++ {
		var ace *windows.ACCESS_ALLOWED_ACE
		if err := windows.GetAce(dacl, i, &ace); err != nil {
			return
		}
		fn(ace)
	}
}

// explicitAccessFromAce converts a raw ACE back into the form ACLFromEntries
// accepts, preserving the exact mask, mode and inheritance flags.
func explicitAccessFromAce(ace *windows.ACCESS_ALLOWED_ACE, sid *windows.SID) windows.EXPLICIT_ACCESS {
	mode := windows.ACCESS_MODE(windows.GRANT_ACCESS)
	if ace.Header.AceType == aceTypeAccessDenied {
		mode = windows.DENY_ACCESS
	}
	inheritance := uint32(windows.NO_INHERITANCE)
	if ace.Header.AceFlags&aceFlagObjectInherit != 0 {
		inheritance |= windows.OBJECT_INHERIT_ACE
	}
	if ace.Header.AceFlags&aceFlagContainerInherit != 0 {
		inheritance |= windows.CONTAINER_INHERIT_ACE
	}
	return windows.EXPLICIT_ACCESS{
		AccessPermissions: ace.Mask,
		AccessMode:        mode,
		Inheritance:       inheritance,
		Trustee: windows.TRUSTEE{
			TrusteeForm:  windows.TRUSTEE_IS_SID,
			TrusteeType:  windows.TRUSTEE_IS_UNKNOWN,
			TrusteeValue: windows.TrusteeValueFromSID(sid),
		},
	}
}

func accessMask(r Rights) windows.ACCESS_MASK {
	switch r {
	case Read:
		return windows.GENERIC_READ
	default:
		return windows.GENERIC_ALL
	}
}

func rightsFromMask(mask windows.ACCESS_MASK) Rights {
	const fileAllAccess = 0x1F01FF
	if mask&windows.GENERIC_ALL != 0 || mask&fileAllAccess == fileAllAccess {
		return FullControl
	}
	return Read
}

func scopeFromFlags(flags uint8) Scope {
	if flags&(aceFlagObjectInherit|aceFlagContainerInherit) != 0 {
		return ThisAndChildren
	}
	return ThisItemOnly
}

// inheritanceFlags maps a grant scope to ACE inheritance bits. Inheritance
// bits only make sense on directories; on files they would be rejected.
func inheritanceFlags(path string, s Scope) uint32 {
	if s != ThisAndChildren {
		return windows.NO_INHERITANCE
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return windows.NO_INHERITANCE
	}
	return windows.SUB_CONTAINERS_AND_OBJECTS_INHERIT
}
