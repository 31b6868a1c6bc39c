package preflight

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Plan selects which environment checks a run needs.
type Plan struct {
	SourceRoot string
	TargetRoot string

	// RequireMirrorTool is set when the run uses the mirror backup mode,
	// which shells out to an external utility.
	RequireMirrorTool bool
}

// Validator runs the selected checks. The checks are independent, so they
// run concurrently; the first failure wins.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate runs all checks the plan selects and returns the first error.
func (v *Validator) Validate(ctx context.Context, p *Plan) error {
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		return CheckSourceAccessible(p.SourceRoot)
	})
	g.Go(func() error {
		if err := CheckTargetAccessible(p.TargetRoot); err != nil {
			return err
		}
		return CheckTargetWritable(p.TargetRoot)
	})
	if p.RequireMirrorTool {
		g.Go(func() error {
			return CheckMirrorToolAvailable()
		})
	}

	return g.Wait()
}
