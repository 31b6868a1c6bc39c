package pathacl

import (
	"fmt"

	"github.com/paulschiretz/profile-backup/pkg/plog"
)

// Configurator applies an access Policy to backup artifacts through a
// Manager.
type Configurator struct {
	mgr Manager
}

// NewConfigurator creates a Configurator backed by the given Manager.
func NewConfigurator(mgr Manager) *Configurator {
	return &Configurator{mgr: mgr}
}

// Apply brings the artifact's permission state to the policy in strict order:
//
//  1. the policy's explicit grants, in configured order,
//  2. replication of the source profile's entries whose principal matches
//     the filter, each as FullControl,
//  3. inheritance disabled, discarding any inherited entries.
//
// Each step is idempotent, so re-applying the whole sequence converges to
// the same end state. Errors are not absorbed here; a failing sub-step fails
// the profile at the orchestrator boundary.
func (c *Configurator) Apply(artifactPath, sourceProfilePath string, p *Policy) error {
	for _, g := range p.Grants {
		e := Entry{Principal: g.Principal, Rights: g.Rights, Scope: g.Scope}
		if err := c.mgr.Grant(artifactPath, e); err != nil {
			return fmt.Errorf("failed to grant %s to %s on %s: %w", g.Rights, g.Principal, artifactPath, err)
		}
		plog.Notice("GRANT", "artifact", artifactPath, "principal", g.Principal, "rights", string(g.Rights))
	}

	srcEntries, err := c.mgr.Entries(sourceProfilePath)
	if err != nil {
		return fmt.Errorf("failed to read source entries of %s: %w", sourceProfilePath, err)
	}
	replicated := make(map[string]struct{})
	for _, src := range srcEntries {
		if !p.matchesReplicateFilter(src.Principal) {
			continue
		}
		// Two source entries for the same principal collapse into one grant.
		if _, done := replicated[src.Principal]; done {
			continue
		}
		replicated[src.Principal] = struct{}{}

		e := Entry{Principal: src.Principal, Rights: FullControl, Scope: ThisAndChildren}
		if err := c.mgr.Grant(artifactPath, e); err != nil {
			return fmt.Errorf("failed to replicate entry for %s onto %s: %w", src.Principal, artifactPath, err)
		}
		plog.Notice("REPLICATE", "artifact", artifactPath, "principal", src.Principal)
	}

	// Cutting inheritance last fixes the explicit entries added above as the
	// artifact's complete permission set. Anything the artifact inherited
	// from the destination root, including grants for the default local
	// users principal, is discarded here.
	if err := c.mgr.DisableInheritance(artifactPath); err != nil {
		return fmt.Errorf("failed to disable inheritance on %s: %w", artifactPath, err)
	}
	plog.Debug("Inheritance disabled", "artifact", artifactPath)
	return nil
}
