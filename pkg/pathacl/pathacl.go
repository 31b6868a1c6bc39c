// Package pathacl brings a backup artifact's permission state to the
// required access policy. The same layered, order-sensitive procedure is
// applied whether the artifact is a file (compressed archive) or a directory
// (mirrored profile): explicit grants first, then replication of filtered
// source entries, then inheritance is cut and anything inherited discarded.
//
// The underlying permission facility is modeled as the Manager interface and
// passed in explicitly, so tests can substitute a fake and non-Windows
// builds fail loudly instead of at link time.
package pathacl

// Rights enumerates the access rights this tool grants.
type Rights string

const (
	// FullControl grants every right on the object.
	FullControl Rights = "full-control"
	// Read grants read-only access.
	Read Rights = "read"
)

// Scope controls how far a grant propagates from a directory artifact.
// File artifacts always behave as ThisItemOnly.
type Scope string

const (
	// ThisItemOnly applies the grant to the artifact itself.
	ThisItemOnly Scope = "this-item-only"
	// ThisAndChildren applies the grant to the artifact and everything below it.
	ThisAndChildren Scope = "this-and-children"
)

// Entry is one access control entry on a filesystem object, reduced to the
// view this tool needs.
type Entry struct {
	// Principal is the security identifier in its textual S-1-... form.
	Principal string
	Rights    Rights
	Scope     Scope
	// Inherited marks entries propagated from a parent rather than set
	// explicitly on the object.
	Inherited bool
}

// Manager is the permission-management facility, keyed by path and
// principal. The production implementation drives the Windows security
// descriptor APIs; tests supply fakes.
type Manager interface {
	// Grant adds (or merges) an allow entry for the principal on the path.
	Grant(path string, e Entry) error
	// Entries returns the current access entries on the path, explicit and
	// inherited.
	Entries(path string) ([]Entry, error)
	// RemoveEntry removes all allow entries for the entry's principal from
	// the path.
	RemoveEntry(path string, e Entry) error
	// DisableInheritance makes the path stop inheriting from its parent and
	// discards any entries that were inherited, leaving only explicit ones.
	DisableInheritance(path string) error
}
