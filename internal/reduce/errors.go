package reduce

import (
	"errors"
	"fmt"

	"github.com/banshee-data/calibration.report/internal/catalog"
)

var (
	// ErrZeroIntensity is returned when a run's total pulse intensity is
	// zero, so its histogram cannot be normalised.
	ErrZeroIntensity = errors.New("zero total pulse intensity")

	// ErrEmptyGroup is returned when a statistics group has no finite
	// members after filtering.
	ErrEmptyGroup = errors.New("empty statistics group")
)

// RunError attaches the run that failed to an underlying error.
type RunError struct {
	RunID int
	Index int
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %d (index %d): %v", e.RunID, e.Index, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// GroupError reports a sub-group whose statistics are undefined.
type GroupError struct {
	Group catalog.SubGroup
	Err   error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("group %s: %v", e.Group, e.Err)
}

func (e *GroupError) Unwrap() error { return e.Err }
