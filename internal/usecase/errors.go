package usecase

import (
	"errors"
	"fmt"

	"github.com/potatocaustic/real-karma-league/internal/domain/document"
)

var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrFailedPrecondition    = errors.New("failed precondition")
	ErrAlreadyExists         = errors.New("already exists")
	ErrAlreadyExecuted       = fmt.Errorf("%w: already executed", ErrFailedPrecondition)
	ErrRelegationTie         = fmt.Errorf("%w: worst major record is tied", ErrFailedPrecondition)
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// storeError translates document store sentinels into usecase sentinels.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, document.ErrNotFound):
		return fmt.Errorf("%s: %w: %v", op, ErrNotFound, err)
	case errors.Is(err, document.ErrAlreadyExists):
		return fmt.Errorf("%s: %w: %v", op, ErrAlreadyExists, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
