package orchestrator

import (
	"context"

	"github.com/perfgo/texforge/model"
)

// AutoFixer attempts to repair a template after a failed render.
type AutoFixer interface {
	AttemptAutoFix(ctx context.Context, templatePath, diagnostic string, tc model.TestCase) model.FixResult
}

// NoopAutoFixer records the attempt without changing anything.
type NoopAutoFixer struct{}

// AttemptAutoFix implements AutoFixer.
func (NoopAutoFixer) AttemptAutoFix(context.Context, string, string, model.TestCase) model.FixResult {
	return model.FixResult{
		Success:   false,
		Attempted: true,
		Reason:    "auto-fix engine not yet implemented",
	}
}
