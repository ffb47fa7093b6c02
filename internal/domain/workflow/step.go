package workflow

import (
	"fmt"
	"time"
)

// StepStatus is the serialized status discriminant of a step state.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusSkipped   StepStatus = "skipped"
)

// Decision is the outcome recorded on a completed step.
type Decision string

const (
	DecisionApproved       Decision = "approved"
	DecisionRejected       Decision = "rejected"
	DecisionRequestChanges Decision = "request_changes"
)

// StepState is the closed set of step states. A decision exists only on the
// Completed variant, so "pending with a decision" cannot be constructed.
type StepState interface {
	Status() StepStatus
	stepState()
}

// StepPending is created but not yet reached by the chain.
type StepPending struct{}

// StepActive is the single step currently awaiting a decision.
type StepActive struct {
	StartedAt time.Time
}

// StepCompleted carries the approver's decision. Terminal.
type StepCompleted struct {
	Decision    Decision
	Comment     *string
	StartedAt   time.Time
	CompletedAt time.Time
}

// StepSkipped is a never-reached step terminated because the chain ended
// early. Terminal.
type StepSkipped struct{}

func (StepPending) Status() StepStatus   { return StepStatusPending }
func (StepActive) Status() StepStatus    { return StepStatusActive }
func (StepCompleted) Status() StepStatus { return StepStatusCompleted }
func (StepSkipped) Status() StepStatus   { return StepStatusSkipped }

func (StepPending) stepState()   {}
func (StepActive) stepState()    {}
func (StepCompleted) stepState() {}
func (StepSkipped) stepState()   {}

// Step is one approval task within an instance. Like Instance, it is mutated
// only through pure transition methods, with Version as the optimistic-lock
// counter.
type Step struct {
	ID            string
	InstanceID    string
	TenantID      string
	DisplayNumber int64
	DefStepID     string
	Name          string
	Type          string
	AssignedTo    *string
	Version       int
	State         StepState
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewStep holds the parameters for creating a pending step.
type NewStep struct {
	ID            string
	InstanceID    string
	TenantID      string
	DisplayNumber int64
	DefStepID     string
	Name          string
	Type          string
	AssignedTo    *string
	Now           time.Time
}

// CreateStep creates a new step in Pending at version 1.
func CreateStep(params NewStep) Step {
	return Step{
		ID:            params.ID,
		InstanceID:    params.InstanceID,
		TenantID:      params.TenantID,
		DisplayNumber: params.DisplayNumber,
		DefStepID:     params.DefStepID,
		Name:          params.Name,
		Type:          params.Type,
		AssignedTo:    params.AssignedTo,
		Version:       1,
		State:         StepPending{},
		CreatedAt:     params.Now,
		UpdatedAt:     params.Now,
	}
}

// Status returns the state discriminant.
func (s Step) Status() StepStatus {
	return s.State.Status()
}

// IsAssignedTo reports whether the step is assigned to the given user.
func (s Step) IsAssignedTo(userID string) bool {
	return s.AssignedTo != nil && *s.AssignedTo == userID
}

// Activated transitions Pending to Active when the chain reaches this step.
// The version is not bumped: activation rides on the write that moved the
// chain here.
func (s Step) Activated(now time.Time) (Step, error) {
	if _, ok := s.State.(StepPending); !ok {
		return Step{}, fmt.Errorf("activation requires pending status, got %s: %w", s.Status(), ErrInvalidTransition)
	}
	s.State = StepActive{StartedAt: now}
	s.UpdatedAt = now
	return s, nil
}

// Approve completes an active step with an approval decision.
// Increments the version.
func (s Step) Approve(comment *string, now time.Time) (Step, error) {
	return s.completed(DecisionApproved, comment, now)
}

// Reject completes an active step with a rejection decision.
// Increments the version.
func (s Step) Reject(comment *string, now time.Time) (Step, error) {
	return s.completed(DecisionRejected, comment, now)
}

// RequestChanges completes an active step with a request-changes decision.
// Increments the version.
func (s Step) RequestChanges(comment *string, now time.Time) (Step, error) {
	return s.completed(DecisionRequestChanges, comment, now)
}

func (s Step) completed(decision Decision, comment *string, now time.Time) (Step, error) {
	active, ok := s.State.(StepActive)
	if !ok {
		return Step{}, fmt.Errorf("a decision requires active status, got %s: %w", s.Status(), ErrInvalidTransition)
	}
	s.State = StepCompleted{
		Decision:    decision,
		Comment:     comment,
		StartedAt:   active.StartedAt,
		CompletedAt: now,
	}
	s.Version++
	s.UpdatedAt = now
	return s, nil
}

// Skip terminates a not-yet-reached step because the chain ended early.
// Only Pending steps can be skipped; an Active step must be explicitly
// decided. The version is not bumped.
func (s Step) Skip(now time.Time) (Step, error) {
	if _, ok := s.State.(StepPending); !ok {
		return Step{}, fmt.Errorf("skipping requires pending status, got %s: %w", s.Status(), ErrInvalidTransition)
	}
	s.State = StepSkipped{}
	s.UpdatedAt = now
	return s, nil
}

// StepRecord is the flat persistence shape of a step.
type StepRecord struct {
	ID            string
	InstanceID    string
	TenantID      string
	DisplayNumber int64
	DefStepID     string
	Name          string
	Type          string
	AssignedTo    *string
	Status        StepStatus
	Decision      *Decision
	Comment       *string
	Version       int
	StartedAt     *time.Time
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Record flattens the step for persistence.
func (s Step) Record() StepRecord {
	rec := StepRecord{
		ID:            s.ID,
		InstanceID:    s.InstanceID,
		TenantID:      s.TenantID,
		DisplayNumber: s.DisplayNumber,
		DefStepID:     s.DefStepID,
		Name:          s.Name,
		Type:          s.Type,
		AssignedTo:    s.AssignedTo,
		Status:        s.Status(),
		Version:       s.Version,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	switch st := s.State.(type) {
	case StepActive:
		t := st.StartedAt
		rec.StartedAt = &t
	case StepCompleted:
		decision := st.Decision
		started, completedAt := st.StartedAt, st.CompletedAt
		rec.Decision = &decision
		rec.Comment = st.Comment
		rec.StartedAt = &started
		rec.CompletedAt = &completedAt
	}
	return rec
}

// StepFromRecord reconstructs a step from its flat persistence shape,
// rejecting records inconsistent with the declared status.
func StepFromRecord(rec StepRecord) (Step, error) {
	state, err := stepStateFromRecord(rec)
	if err != nil {
		return Step{}, err
	}
	return Step{
		ID:            rec.ID,
		InstanceID:    rec.InstanceID,
		TenantID:      rec.TenantID,
		DisplayNumber: rec.DisplayNumber,
		DefStepID:     rec.DefStepID,
		Name:          rec.Name,
		Type:          rec.Type,
		AssignedTo:    rec.AssignedTo,
		Version:       rec.Version,
		State:         state,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}, nil
}

func stepStateFromRecord(rec StepRecord) (StepState, error) {
	badRecord := func(reason string) error {
		return fmt.Errorf("step %s with status %s %s: %w", rec.ID, rec.Status, reason, ErrInvalidState)
	}

	switch rec.Status {
	case StepStatusPending:
		if rec.StartedAt != nil || rec.CompletedAt != nil || rec.Decision != nil {
			return nil, badRecord("carries completion fields")
		}
		return StepPending{}, nil

	case StepStatusActive:
		if rec.StartedAt == nil {
			return nil, badRecord("is missing started_at")
		}
		if rec.CompletedAt != nil || rec.Decision != nil {
			return nil, badRecord("carries completion fields")
		}
		return StepActive{StartedAt: *rec.StartedAt}, nil

	case StepStatusCompleted:
		if rec.StartedAt == nil || rec.CompletedAt == nil || rec.Decision == nil {
			return nil, badRecord("is missing started_at, completed_at or decision")
		}
		switch *rec.Decision {
		case DecisionApproved, DecisionRejected, DecisionRequestChanges:
		default:
			return nil, fmt.Errorf("step %s has unknown decision %q: %w", rec.ID, *rec.Decision, ErrInvalidState)
		}
		return StepCompleted{
			Decision:    *rec.Decision,
			Comment:     rec.Comment,
			StartedAt:   *rec.StartedAt,
			CompletedAt: *rec.CompletedAt,
		}, nil

	case StepStatusSkipped:
		if rec.StartedAt != nil || rec.CompletedAt != nil || rec.Decision != nil {
			return nil, badRecord("carries completion fields")
		}
		return StepSkipped{}, nil

	default:
		return nil, fmt.Errorf("unknown step status %q: %w", rec.Status, ErrInvalidState)
	}
}
