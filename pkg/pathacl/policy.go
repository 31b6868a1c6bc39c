package pathacl

import (
	"path/filepath"
	"strings"
)

// Well-known principals used by the default policy. The built-in users
// principal (S-1-5-32-545) is deliberately absent: backup artifacts must end
// up unreadable by ordinary local users.
const (
	// AdministratorsSID is the built-in local administrators group.
	AdministratorsSID = "S-1-5-32-544"
	// LocalSystemSID is the operating system's own account.
	LocalSystemSID = "S-1-5-18"
)

// DefaultReplicateFilter matches principals in the domain/machine identifier
// space, which is where per-user account SIDs live.
const DefaultReplicateFilter = "S-1-5-21-*"

// Grant is one ordered element of an AccessPolicy.
type Grant struct {
	Principal string `json:"principal"`
	Rights    Rights `json:"rights"`
	Scope     Scope  `json:"scope"`
}

// Policy is the typed access policy applied to every backup artifact. It is
// built once per run and applied by the Configurator; the grant order is
// significant and preserved.
type Policy struct {
	// Grants are applied first, in order.
	Grants []Grant `json:"grants"`

	// ReplicateFilter is a case-insensitive glob matched against the
	// principal of each of the source profile's existing entries; matching
	// entries are replicated onto the artifact as FullControl.
	//
	// Note the filter is a plain textual match: if unrelated principals
	// share the matched prefix, all of them are granted. Keep the filter as
	// narrow as the deployment allows.
	ReplicateFilter string `json:"replicateFilter"`
}

// NewPolicy builds the standard policy: FullControl for the local
// administrators and system principals, then for each extra identity in
// configured order.
func NewPolicy(extraIdentities []string, replicateFilter string) *Policy {
	if replicateFilter == "" {
		replicateFilter = DefaultReplicateFilter
	}
	grants := []Grant{
		{Principal: AdministratorsSID, Rights: FullControl, Scope: ThisAndChildren},
		{Principal: LocalSystemSID, Rights: FullControl, Scope: ThisAndChildren},
	}
	for _, id := range extraIdentities {
		if id = strings.TrimSpace(id); id != "" {
			grants = append(grants, Grant{Principal: id, Rights: FullControl, Scope: ThisAndChildren})
		}
	}
	return &Policy{Grants: grants, ReplicateFilter: replicateFilter}
}

// matchesReplicateFilter reports whether a source-entry principal should be
// replicated onto the artifact.
func (p *Policy) matchesReplicateFilter(principal string) bool {
	if p.ReplicateFilter == "" {
		return false
	}
	match, err := filepath.Match(strings.ToLower(p.ReplicateFilter), strings.ToLower(principal))
	if err != nil {
		// An invalid filter pattern replicates nothing.
		return false
	}
	return match
}
