package ctdf

import (
	"fmt"
	"strings"
	"time"
)

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

type InvalidRouteError struct {
	TrainID string
	From    string
	To      string
	Reason  string
}

func (e *InvalidRouteError) Error() string {
	if e.From != "" && e.To != "" {
		return fmt.Sprintf("invalid route for train %q: sections %q and %q %s", e.TrainID, e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("invalid route for train %q: %s", e.TrainID, e.Reason)
}

type AlreadyResolvedError struct {
	DisruptionID string
	ResolvedAt   time.Time
}

func (e *AlreadyResolvedError) Error() string {
	return fmt.Sprintf("disruption %q already resolved at %s", e.DisruptionID, e.ResolvedAt.Format(time.RFC3339))
}

type UnknownTrainError struct {
	SectionID string
	TrainIDs  []string
}

func (e *UnknownTrainError) Error() string {
	return fmt.Sprintf("trains not active on section %q: %s", e.SectionID, strings.Join(e.TrainIDs, ", "))
}

// InfeasibleOverrideError carries what is left wrong with the schedule after
// a pinned order was applied. The schedule itself is still returned.
type InfeasibleOverrideError struct {
	SectionID  string
	Conflicts  []Conflict
	Violations []OverrideViolation
}

func (e *InfeasibleOverrideError) Error() string {
	return fmt.Sprintf("override on section %q is infeasible: %d conflicts, %d pinned order violations", e.SectionID, len(e.Conflicts), len(e.Violations))
}

type RecomputationFailure struct {
	ServiceDate string
	Version     uint64
	Err         error
}

func (e *RecomputationFailure) Error() string {
	return fmt.Sprintf("recomputation of %s failed (serving version %d): %v", e.ServiceDate, e.Version, e.Err)
}

func (e *RecomputationFailure) Unwrap() error {
	return e.Err
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
