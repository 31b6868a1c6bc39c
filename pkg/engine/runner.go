// Package engine orchestrates a backup run: environment validation, profile
// selection, the per-profile backup strategy, and access control lockdown of
// each produced artifact.
//
// Profiles are processed strictly one after another. A profile that fails is
// recorded and the run moves on; only environment-level faults (preflight,
// profile enumeration, cancellation) abort the run as a whole.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/paulschiretz/profile-backup/pkg/backupresult"
	"github.com/paulschiretz/profile-backup/pkg/pathacl"
	"github.com/paulschiretz/profile-backup/pkg/planner"
	"github.com/paulschiretz/profile-backup/pkg/plog"
	"github.com/paulschiretz/profile-backup/pkg/preflight"
	"github.com/paulschiretz/profile-backup/pkg/profile"
	"github.com/paulschiretz/profile-backup/pkg/profilearchive"
	"github.com/paulschiretz/profile-backup/pkg/profilemirror"
)

// The runner consumes its leaf workers through narrow interfaces so tests
// can substitute fakes for the pieces that touch robocopy or the Windows
// security APIs.

// Validator runs environment checks before any artifact is written.
type Validator interface {
	Validate(ctx context.Context, p *preflight.Plan) error
}

// Archiver builds one compressed artifact per profile.
type Archiver interface {
	Archive(ctx context.Context, absSourcePath, absArchivePath string, p *profilearchive.Plan) (profilearchive.Outcome, error)
}

// Mirrorer synchronizes one destination directory per profile.
type Mirrorer interface {
	Mirror(ctx context.Context, absSourcePath, absDestPath string, p *profilemirror.Plan) (profilemirror.Result, error)
}

// Configurator applies the access policy to a finished artifact.
type Configurator interface {
	Apply(artifactPath, sourceProfilePath string, p *pathacl.Policy) error
}

// Runner executes backup plans with the workers it was constructed with.
type Runner struct {
	validator    Validator
	archiver     Archiver
	mirrorer     Mirrorer
	configurator Configurator
}

// NewRunner creates a new Runner and feeds it with the leaf workers.
func NewRunner(v Validator, a Archiver, m Mirrorer, c Configurator) *Runner {
	return &Runner{
		validator:    v,
		archiver:     a,
		mirrorer:     m,
		configurator: c,
	}
}

// ExecuteBackup runs the whole plan and returns one result per selected
// profile. The returned aggregator is valid even when an error is returned;
// it holds the results of the profiles processed up to that point.
func (r *Runner) ExecuteBackup(ctx context.Context, p *planner.BackupPlan) (*backupresult.Aggregator, error) {
	agg := backupresult.NewAggregator()

	// Check for cancellation at the very beginning.
	select {
	case <-ctx.Done():
		return agg, ctx.Err()
	default:
	}

	if err := r.validator.Validate(ctx, p.Preflight); err != nil {
		return agg, fmt.Errorf("preflight failed: %w", err)
	}

	profiles, err := profile.Select(p.SourceRoot, p.ProfilePattern)
	if err != nil {
		return agg, fmt.Errorf("failed to enumerate profiles: %w", err)
	}
	if len(profiles) == 0 {
		plog.Warn("No matching profile directories found", "source", p.SourceRoot, "pattern", p.ProfilePattern.String())
		return agg, nil
	}
	plog.Info("Selected profiles", "count", len(profiles), "source", p.SourceRoot)

	for _, prof := range profiles {
		// Cancellation ends the run between profiles; the current profile is
		// never left half-recorded.
		select {
		case <-ctx.Done():
			return agg, ctx.Err()
		default:
		}

		agg.Add(r.backupProfile(ctx, prof, p))
	}

	return agg, nil
}

// backupProfile runs the configured strategy for one profile and always
// returns a terminal result. Failures are captured in the result instead of
// propagating, which isolates them from the remaining profiles.
func (r *Runner) backupProfile(ctx context.Context, prof profile.Profile, p *planner.BackupPlan) *backupresult.Result {
	var artifactPath string
	switch p.Mode {
	case planner.Compress:
		artifactPath = filepath.Join(p.TargetRoot, p.Archive.Format.ArtifactName(prof.Name))
	default:
		artifactPath = filepath.Join(p.TargetRoot, prof.Name)
	}

	res := backupresult.New(prof.Name, prof.SourcePath, artifactPath, p.Mode.String())
	plog.Info("Backing up profile", "profile", prof.Name, "mode", p.Mode.String(), "destination", artifactPath)

	switch p.Mode {
	case planner.Compress:
		outcome, err := r.archiver.Archive(ctx, prof.SourcePath, artifactPath, p.Archive)
		if err != nil {
			res.MarkFailed(err)
			plog.Error("Profile backup failed", "profile", prof.Name, "error", err)
			return res
		}
		if outcome.Status == profilearchive.SkippedEmpty {
			// No artifact exists, so there is nothing to lock down either.
			res.MarkSkipped("profile directory is empty")
			return res
		}
		res.SetCompressedSize(outcome.CompressedSizeBytes)

	case planner.Mirror:
		result, err := r.mirrorer.Mirror(ctx, prof.SourcePath, artifactPath, p.Mirror)
		if err != nil {
			// The exit code is only meaningful when the tool actually ran;
			// launch failures and cancellation carry none.
			var exitErr *profilemirror.ExitError
			if errors.As(err, &exitErr) {
				res.SetMirrorExitCode(exitErr.Code)
			}
			res.MarkFailed(err)
			plog.Error("Profile backup failed", "profile", prof.Name, "error", err)
			return res
		}
		res.SetMirrorExitCode(result.ExitCode)

	default:
		res.MarkFailed(fmt.Errorf("unsupported backup mode: %s", p.Mode))
		return res
	}

	// The artifact only counts as backed up once its permissions are locked
	// down; an artifact readable by every local user is worse than none.
	if err := r.configurator.Apply(artifactPath, prof.SourcePath, p.AccessPolicy); err != nil {
		res.MarkFailed(fmt.Errorf("access control configuration failed: %w", err))
		plog.Error("Profile backup failed", "profile", prof.Name, "error", err)
		return res
	}

	res.MarkSuccess()
	plog.Info("Profile backed up", "profile", prof.Name, "destination", artifactPath)
	return res
}
