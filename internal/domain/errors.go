package domain

import (
	"errors"
	"fmt"
)

// Error classes. Every domain error wraps exactly one of these.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrDeadlineExceeded  = errors.New("prediction deadline exceeded")
)

// Domain errors
var (
	ErrMatchNotFound      = fmt.Errorf("match %w", ErrNotFound)
	ErrUserNotFound       = fmt.Errorf("user %w", ErrNotFound)
	ErrPredictionNotFound = fmt.Errorf("prediction %w", ErrNotFound)

	ErrEmptyTeamName   = fmt.Errorf("%w: team name must not be empty", ErrValidation)
	ErrNegativeScore   = fmt.Errorf("%w: score must be a pair of non-negative integers", ErrValidation)
	ErrMissingScore    = fmt.Errorf("%w: finished match requires both scores", ErrValidation)
	ErrMissingGuess    = fmt.Errorf("%w: prediction requires both scores", ErrValidation)
	ErrUnknownStatus   = fmt.Errorf("%w: unknown match status", ErrValidation)
	ErrInvalidRule     = fmt.Errorf("%w: points rule values must be non-negative", ErrValidation)
	ErrInvalidUserID   = fmt.Errorf("%w: user id must be positive", ErrValidation)
	ErrInvalidRequest  = fmt.Errorf("%w: invalid request", ErrValidation)
	ErrUnknownClassify = fmt.Errorf("%w: unknown outcome classifier", ErrValidation)
	ErrDuplicateMatch  = fmt.Errorf("%w: external id already belongs to another match", ErrValidation)

	ErrMatchFinished     = fmt.Errorf("%w: match already finished", ErrInvalidTransition)
	ErrResultChanged     = fmt.Errorf("%w: finished match result cannot change", ErrInvalidTransition)
	ErrTeamsImmutable    = fmt.Errorf("%w: teams of a finished match cannot change", ErrInvalidTransition)
	ErrStatusRegression  = fmt.Errorf("%w: match status cannot move backwards", ErrInvalidTransition)
	ErrPredictionLocked  = fmt.Errorf("%w: predictions on a finished match are immutable", ErrInvalidTransition)
	ErrMatchNotFinished  = fmt.Errorf("%w: match has no final result yet", ErrInvalidTransition)
	ErrDeadlinePassed    = fmt.Errorf("%w: cutoff has passed", ErrDeadlineExceeded)
	ErrPredictionsClosed = fmt.Errorf("%w: match is finished", ErrDeadlineExceeded)

	ErrInternalError = errors.New("internal server error")

	// ErrStaleLeaderboard is returned when a projection built from an older
	// snapshot would overwrite a newer one
	ErrStaleLeaderboard = errors.New("a newer leaderboard is already stored")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error was caused by malformed input
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidTransitionError checks if an error was caused by an illegal state change
func IsInvalidTransitionError(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsDeadlineExceededError checks if a prediction was refused by the deadline gate
func IsDeadlineExceededError(err error) bool {
	return errors.Is(err, ErrDeadlineExceeded)
}
