package domain

// Status is the lifecycle state of a tracked document. The state graph is
// fixed and small; transitions happen only through the lifecycle service.
type Status string

const (
	StatusAcquired          Status = "ACQUIRED"
	StatusIndexed           Status = "INDEXED"
	StatusInTreatment       Status = "IN_TREATMENT"
	StatusPendingValidation Status = "PENDING_VALIDATION"
	StatusArchived          Status = "ARCHIVED"
	StatusRejected          Status = "REJECTED"

	// StatusTreated is a legacy in-progress state kept for documents recorded
	// before validation became a dedicated stage. It shares InTreatment's
	// outgoing edges; no new transition produces it.
	StatusTreated Status = "TREATED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusAcquired, StatusIndexed, StatusInTreatment, StatusTreated,
		StatusPendingValidation, StatusArchived, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions exist from s.
func (s Status) IsTerminal() bool {
	return s == StatusArchived || s == StatusRejected
}

// allowedTransitions is the single source of truth for the state graph.
// Archived and Rejected are terminal and deliberately absent.
var allowedTransitions = map[Status][]Status{
	StatusAcquired:          {StatusIndexed},
	StatusIndexed:           {StatusInTreatment},
	StatusInTreatment:       {StatusPendingValidation, StatusIndexed, StatusRejected},
	StatusTreated:           {StatusPendingValidation, StatusIndexed, StatusRejected},
	StatusPendingValidation: {StatusArchived, StatusIndexed, StatusRejected},
}

// CanTransition reports whether the fixed transition table allows moving
// from one status to another. Pure and actor-independent; authorization is
// a separate check. Self-transitions are not in the table and return false.
func CanTransition(from, to Status) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Action is the closed vocabulary of lifecycle operations a caller can
// request. Each action maps to exactly one target status.
type Action string

const (
	ActionIndex              Action = "index"
	ActionAssignForTreatment Action = "assignForTreatment"
	ActionExecuteTreatment   Action = "executeTreatment"
	ActionReturnToIndexing   Action = "returnToIndexing"
	ActionReject             Action = "reject"
	ActionValidateAndArchive Action = "validateAndArchive"
)

func (a Action) String() string { return string(a) }

func (a Action) IsValid() bool {
	_, ok := actionTargets[a]
	return ok
}

var actionTargets = map[Action]Status{
	ActionIndex:              StatusIndexed,
	ActionAssignForTreatment: StatusInTreatment,
	ActionExecuteTreatment:   StatusPendingValidation,
	ActionReturnToIndexing:   StatusIndexed,
	ActionReject:             StatusRejected,
	ActionValidateAndArchive: StatusArchived,
}

// TargetStatus returns the status the action leads to.
// The second return is false for an unknown action.
func (a Action) TargetStatus() (Status, bool) {
	s, ok := actionTargets[a]
	return s, ok
}

// validatorGatedActions require the validator of record for the document's
// assigned service (admins and supervisors excepted).
var validatorGatedActions = map[Action]bool{
	ActionReturnToIndexing:   true,
	ActionReject:             true,
	ActionValidateAndArchive: true,
}

// RequiresValidator reports whether the action is reserved to the assigned
// service's validator.
func (a Action) RequiresValidator() bool {
	return validatorGatedActions[a]
}
