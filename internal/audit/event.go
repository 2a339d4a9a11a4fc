package audit

import "time"

// Action names what happened.
type Action string

// Action constants.
const (
	ActionLogin            Action = "login"
	ActionRegister         Action = "register"
	ActionTokenRejected    Action = "token_rejected"
	ActionAccessDenied     Action = "access_denied"
	ActionStaffCreate      Action = "staff_create"
	ActionStaffPermissions Action = "staff_permissions"
	ActionStaffDelete      Action = "staff_delete"
	ActionRecordCreate     Action = "record_create"
	ActionRecordUpdate     Action = "record_update"
	ActionRecordDelete     Action = "record_delete"
)

// Outcome is the result of the action.
type Outcome string

// Outcome constants.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Event is one auditable occurrence. Details must never carry secrets or
// password hashes.
type Event struct {
	ID            string         `json:"id"`
	Action        Action         `json:"action"`
	Outcome       Outcome        `json:"outcome"`
	PrincipalID   string         `json:"principalId,omitempty"`
	PrincipalKind string         `json:"principalKind,omitempty"`
	SourceIP      string         `json:"sourceIp,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	Time          time.Time      `json:"time"`
}
