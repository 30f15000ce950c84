package workflow

import (
	"fmt"
	"strings"

	"github.com/okian/refbox/internal/domain/model"
)

func trimmed(s string) string { return strings.TrimSpace(s) }

func errUnknownCategory(c model.JudgingCategory) error {
	return fmt.Errorf("unknown judging category %q: %w", c, model.ErrNotFound)
}

func fieldError(fieldID, reason string) error {
	return fmt.Errorf("field %s %s: %w", fieldID, reason, model.ErrPreconditionFailed)
}

func feedbackError() error {
	return fmt.Errorf("feedback is required before locking: %w", model.ErrPreconditionFailed)
}

func transitionError(from, to string) error {
	return fmt.Errorf("cannot move from %s to %s: %w", from, to, model.ErrInvalidTransition)
}

func authError(role model.Role, action string) error {
	return fmt.Errorf("role %s may not %s: %w", role, action, model.ErrUnauthorized)
}
