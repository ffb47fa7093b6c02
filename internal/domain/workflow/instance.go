package workflow

import (
	"encoding/json"
	"fmt"
	"time"
)

// InstanceStatus is the serialized status discriminant of an instance state.
type InstanceStatus string

const (
	InstanceStatusDraft            InstanceStatus = "draft"
	InstanceStatusPending          InstanceStatus = "pending"
	InstanceStatusInProgress       InstanceStatus = "in_progress"
	InstanceStatusApproved         InstanceStatus = "approved"
	InstanceStatusRejected         InstanceStatus = "rejected"
	InstanceStatusCancelled        InstanceStatus = "cancelled"
	InstanceStatusChangesRequested InstanceStatus = "changes_requested"
)

// InstanceState is the closed set of instance states. Each variant carries
// exactly the fields that are meaningful in that state, so combinations like
// "approved with no completion time" cannot be constructed.
type InstanceState interface {
	Status() InstanceStatus
	instanceState()
}

// Draft is the initial state: created but not yet submitted.
type Draft struct{}

// Pending is submitted but not yet seated at its first approval step.
type Pending struct {
	SubmittedAt time.Time
}

// InProgress is actively moving through the approval chain.
type InProgress struct {
	CurrentStepID string
	SubmittedAt   time.Time
}

// Approved is the terminal success state.
type Approved struct {
	CurrentStepID string
	SubmittedAt   time.Time
	CompletedAt   time.Time
}

// Rejected is the terminal rejection state.
type Rejected struct {
	CurrentStepID string
	SubmittedAt   time.Time
	CompletedAt   time.Time
}

// ChangesRequested is a non-terminal detour: the initiator may resubmit.
type ChangesRequested struct {
	CurrentStepID string
	SubmittedAt   time.Time
}

// Cancelled is terminal. The step and submission fields are nil when the
// instance was cancelled before reaching the corresponding lifecycle point.
type Cancelled struct {
	CurrentStepID *string
	SubmittedAt   *time.Time
	CompletedAt   time.Time
}

func (Draft) Status() InstanceStatus            { return InstanceStatusDraft }
func (Pending) Status() InstanceStatus          { return InstanceStatusPending }
func (InProgress) Status() InstanceStatus       { return InstanceStatusInProgress }
func (Approved) Status() InstanceStatus         { return InstanceStatusApproved }
func (Rejected) Status() InstanceStatus         { return InstanceStatusRejected }
func (ChangesRequested) Status() InstanceStatus { return InstanceStatusChangesRequested }
func (Cancelled) Status() InstanceStatus        { return InstanceStatusCancelled }

func (Draft) instanceState()            {}
func (Pending) instanceState()          {}
func (InProgress) instanceState()       {}
func (Approved) instanceState()         {}
func (Rejected) instanceState()         {}
func (ChangesRequested) instanceState() {}
func (Cancelled) instanceState()        {}

// Instance is one concrete request created from a definition. It is mutated
// only through the transition methods below, which are pure: they return a
// new value and never touch storage.
//
// Version is the optimistic-lock counter; persistence writes must be
// conditioned on the version the copy was read at.
type Instance struct {
	ID                string
	TenantID          string
	DefinitionID      string
	DefinitionVersion int
	DisplayNumber     int64
	Title             string
	FormData          json.RawMessage
	InitiatedBy       string
	Version           int
	State             InstanceState
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewInstance holds the parameters for creating a draft instance.
type NewInstance struct {
	ID                string
	TenantID          string
	DefinitionID      string
	DefinitionVersion int
	DisplayNumber     int64
	Title             string
	FormData          json.RawMessage
	InitiatedBy       string
	Now               time.Time
}

// CreateInstance creates a new instance in Draft at version 1.
func CreateInstance(params NewInstance) Instance {
	return Instance{
		ID:                params.ID,
		TenantID:          params.TenantID,
		DefinitionID:      params.DefinitionID,
		DefinitionVersion: params.DefinitionVersion,
		DisplayNumber:     params.DisplayNumber,
		Title:             params.Title,
		FormData:          params.FormData,
		InitiatedBy:       params.InitiatedBy,
		Version:           1,
		State:             Draft{},
		CreatedAt:         params.Now,
		UpdatedAt:         params.Now,
	}
}

// Status returns the state discriminant.
func (i Instance) Status() InstanceStatus {
	return i.State.Status()
}

// CurrentStepID returns the seated step id for states that carry one.
func (i Instance) CurrentStepID() (string, bool) {
	switch s := i.State.(type) {
	case InProgress:
		return s.CurrentStepID, true
	case Approved:
		return s.CurrentStepID, true
	case Rejected:
		return s.CurrentStepID, true
	case ChangesRequested:
		return s.CurrentStepID, true
	case Cancelled:
		if s.CurrentStepID != nil {
			return *s.CurrentStepID, true
		}
	}
	return "", false
}

// SubmittedAt returns the submission time for states that carry one.
func (i Instance) SubmittedAt() (time.Time, bool) {
	switch s := i.State.(type) {
	case Pending:
		return s.SubmittedAt, true
	case InProgress:
		return s.SubmittedAt, true
	case Approved:
		return s.SubmittedAt, true
	case Rejected:
		return s.SubmittedAt, true
	case ChangesRequested:
		return s.SubmittedAt, true
	case Cancelled:
		if s.SubmittedAt != nil {
			return *s.SubmittedAt, true
		}
	}
	return time.Time{}, false
}

// CompletedAt returns the completion time for terminal states.
func (i Instance) CompletedAt() (time.Time, bool) {
	switch s := i.State.(type) {
	case Approved:
		return s.CompletedAt, true
	case Rejected:
		return s.CompletedAt, true
	case Cancelled:
		return s.CompletedAt, true
	}
	return time.Time{}, false
}

// Submit transitions Draft to Pending. The version is not bumped: seating
// the first step immediately after carries the bump for the whole submit.
func (i Instance) Submit(now time.Time) (Instance, error) {
	if _, ok := i.State.(Draft); !ok {
		return Instance{}, fmt.Errorf("submit requires draft status, got %s: %w", i.Status(), ErrInvalidTransition)
	}
	i.State = Pending{SubmittedAt: now}
	i.UpdatedAt = now
	return i, nil
}

// WithCurrentStep seats a freshly submitted instance at its first step,
// transitioning Pending to InProgress. Increments the version.
func (i Instance) WithCurrentStep(stepID string, now time.Time) (Instance, error) {
	s, ok := i.State.(Pending)
	if !ok {
		return Instance{}, fmt.Errorf("seating a step requires pending status, got %s: %w", i.Status(), ErrInvalidTransition)
	}
	i.State = InProgress{CurrentStepID: stepID, SubmittedAt: s.SubmittedAt}
	i.Version++
	i.UpdatedAt = now
	return i, nil
}

// AdvanceToNextStep moves an in-progress instance to the next approval step.
// Increments the version.
func (i Instance) AdvanceToNextStep(nextStepID string, now time.Time) (Instance, error) {
	s, ok := i.State.(InProgress)
	if !ok {
		return Instance{}, fmt.Errorf("advancing requires in_progress status, got %s: %w", i.Status(), ErrInvalidTransition)
	}
	i.State = InProgress{CurrentStepID: nextStepID, SubmittedAt: s.SubmittedAt}
	i.Version++
	i.UpdatedAt = now
	return i, nil
}

// CompleteWithApproval finishes an in-progress instance as Approved.
// Increments the version.
func (i Instance) CompleteWithApproval(now time.Time) (Instance, error) {
	s, ok := i.State.(InProgress)
	if !ok {
		return Instance{}, fmt.Errorf("approval completion requires in_progress status, got %s: %w", i.Status(), ErrInvalidTransition)
	}
	i.State = Approved{CurrentStepID: s.CurrentStepID, SubmittedAt: s.SubmittedAt, CompletedAt: now}
	i.Version++
	i.UpdatedAt = now
	return i, nil
}

// CompleteWithRejection finishes an in-progress instance as Rejected.
// Increments the version.
func (i Instance) CompleteWithRejection(now time.Time) (Instance, error) {
	s, ok := i.State.(InProgress)
	if !ok {
		return Instance{}, fmt.Errorf("rejection completion requires in_progress status, got %s: %w", i.Status(), ErrInvalidTransition)
	}
	i.State = Rejected{CurrentStepID: s.CurrentStepID, SubmittedAt: s.SubmittedAt, CompletedAt: now}
	i.Version++
	i.UpdatedAt = now
	return i, nil
}

// CompleteWithRequestChanges moves an in-progress instance to
// ChangesRequested. No completion time is stamped: the detour is
// non-terminal and the initiator may resubmit. Increments the version.
func (i Instance) CompleteWithRequestChanges(now time.Time) (Instance, error) {
	s, ok := i.State.(InProgress)
	if !ok {
		return Instance{}, fmt.Errorf("requesting changes requires in_progress status, got %s: %w", i.Status(), ErrInvalidTransition)
	}
	i.State = ChangesRequested{CurrentStepID: s.CurrentStepID, SubmittedAt: s.SubmittedAt}
	i.Version++
	i.UpdatedAt = now
	return i, nil
}

// Resubmitted restarts a ChangesRequested instance with replaced form data,
// seated at the first step of a brand-new chain. Increments the version.
func (i Instance) Resubmitted(formData json.RawMessage, firstStepID string, now time.Time) (Instance, error) {
	s, ok := i.State.(ChangesRequested)
	if !ok {
		return Instance{}, fmt.Errorf("resubmit requires changes_requested status, got %s: %w", i.Status(), ErrInvalidTransition)
	}
	i.FormData = formData
	i.State = InProgress{CurrentStepID: firstStepID, SubmittedAt: s.SubmittedAt}
	i.Version++
	i.UpdatedAt = now
	return i, nil
}

// Cancel terminates a not-yet-completed instance, preserving whatever step
// and submission context existed. Fails from Approved, Rejected and
// Cancelled. The version is not bumped.
func (i Instance) Cancel(now time.Time) (Instance, error) {
	var currentStepID *string
	var submittedAt *time.Time

	switch s := i.State.(type) {
	case Draft:
	case Pending:
		t := s.SubmittedAt
		submittedAt = &t
	case InProgress:
		id, t := s.CurrentStepID, s.SubmittedAt
		currentStepID, submittedAt = &id, &t
	case ChangesRequested:
		id, t := s.CurrentStepID, s.SubmittedAt
		currentStepID, submittedAt = &id, &t
	default:
		return Instance{}, fmt.Errorf("cannot cancel a completed workflow (status %s): %w", i.Status(), ErrInvalidTransition)
	}

	i.State = Cancelled{CurrentStepID: currentStepID, SubmittedAt: submittedAt, CompletedAt: now}
	i.UpdatedAt = now
	return i, nil
}

// InstanceRecord is the flat persistence shape of an instance.
type InstanceRecord struct {
	ID                string
	TenantID          string
	DefinitionID      string
	DefinitionVersion int
	DisplayNumber     int64
	Title             string
	FormData          json.RawMessage
	Status            InstanceStatus
	Version           int
	CurrentStepID     *string
	InitiatedBy       string
	SubmittedAt       *time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Record flattens the instance for persistence.
func (i Instance) Record() InstanceRecord {
	rec := InstanceRecord{
		ID:                i.ID,
		TenantID:          i.TenantID,
		DefinitionID:      i.DefinitionID,
		DefinitionVersion: i.DefinitionVersion,
		DisplayNumber:     i.DisplayNumber,
		Title:             i.Title,
		FormData:          i.FormData,
		Status:            i.Status(),
		Version:           i.Version,
		InitiatedBy:       i.InitiatedBy,
		CreatedAt:         i.CreatedAt,
		UpdatedAt:         i.UpdatedAt,
	}
	if stepID, ok := i.CurrentStepID(); ok {
		rec.CurrentStepID = &stepID
	}
	if t, ok := i.SubmittedAt(); ok {
		rec.SubmittedAt = &t
	}
	if t, ok := i.CompletedAt(); ok {
		rec.CompletedAt = &t
	}
	return rec
}

// InstanceFromRecord reconstructs an instance from its flat persistence
// shape. Records whose fields are inconsistent with the declared status are
// rejected: the state variants cannot represent them.
func InstanceFromRecord(rec InstanceRecord) (Instance, error) {
	state, err := instanceStateFromRecord(rec)
	if err != nil {
		return Instance{}, err
	}
	return Instance{
		ID:                rec.ID,
		TenantID:          rec.TenantID,
		DefinitionID:      rec.DefinitionID,
		DefinitionVersion: rec.DefinitionVersion,
		DisplayNumber:     rec.DisplayNumber,
		Title:             rec.Title,
		FormData:          rec.FormData,
		InitiatedBy:       rec.InitiatedBy,
		Version:           rec.Version,
		State:             state,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}, nil
}

func instanceStateFromRecord(rec InstanceRecord) (InstanceState, error) {
	badRecord := func(reason string) error {
		return fmt.Errorf("instance %s with status %s %s: %w", rec.ID, rec.Status, reason, ErrInvalidState)
	}

	switch rec.Status {
	case InstanceStatusDraft:
		if rec.CurrentStepID != nil || rec.SubmittedAt != nil || rec.CompletedAt != nil {
			return nil, badRecord("carries lifecycle fields")
		}
		return Draft{}, nil

	case InstanceStatusPending:
		if rec.SubmittedAt == nil {
			return nil, badRecord("is missing submitted_at")
		}
		if rec.CurrentStepID != nil || rec.CompletedAt != nil {
			return nil, badRecord("carries fields of a later state")
		}
		return Pending{SubmittedAt: *rec.SubmittedAt}, nil

	case InstanceStatusInProgress:
		if rec.CurrentStepID == nil || rec.SubmittedAt == nil {
			return nil, badRecord("is missing current_step_id or submitted_at")
		}
		if rec.CompletedAt != nil {
			return nil, badRecord("carries completed_at")
		}
		return InProgress{CurrentStepID: *rec.CurrentStepID, SubmittedAt: *rec.SubmittedAt}, nil

	case InstanceStatusApproved:
		if rec.CurrentStepID == nil || rec.SubmittedAt == nil || rec.CompletedAt == nil {
			return nil, badRecord("is missing current_step_id, submitted_at or completed_at")
		}
		return Approved{CurrentStepID: *rec.CurrentStepID, SubmittedAt: *rec.SubmittedAt, CompletedAt: *rec.CompletedAt}, nil

	case InstanceStatusRejected:
		if rec.CurrentStepID == nil || rec.SubmittedAt == nil || rec.CompletedAt == nil {
			return nil, badRecord("is missing current_step_id, submitted_at or completed_at")
		}
		return Rejected{CurrentStepID: *rec.CurrentStepID, SubmittedAt: *rec.SubmittedAt, CompletedAt: *rec.CompletedAt}, nil

	case InstanceStatusChangesRequested:
		if rec.CurrentStepID == nil || rec.SubmittedAt == nil {
			return nil, badRecord("is missing current_step_id or submitted_at")
		}
		if rec.CompletedAt != nil {
			return nil, badRecord("carries completed_at")
		}
		return ChangesRequested{CurrentStepID: *rec.CurrentStepID, SubmittedAt: *rec.SubmittedAt}, nil

	case InstanceStatusCancelled:
		if rec.CompletedAt == nil {
			return nil, badRecord("is missing completed_at")
		}
		return Cancelled{CurrentStepID: rec.CurrentStepID, SubmittedAt: rec.SubmittedAt, CompletedAt: *rec.CompletedAt}, nil

	default:
		return nil, fmt.Errorf("unknown instance status %q: %w", rec.Status, ErrInvalidState)
	}
}
