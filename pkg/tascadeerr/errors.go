// Package tascadeerr provides the structured error taxonomy used across
// every Tascade component, ported from the teacher's ServiceError pattern.
package tascadeerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a distinct error kind raised by the engine. Callers should
// branch on Code, not on the formatted message.
type Code string

// ErrorCode is retained as an alias so call sites read naturally as
// tascadeerr.ErrorCode, matching the teacher's ErrorCode naming.
type ErrorCode = Code

const (
	// Validation
	InvalidArgument Code = "INVALID_ARGUMENT"
	TaskNotFound    Code = "TASK_NOT_FOUND"
	ProjectNotFound Code = "PROJECT_NOT_FOUND"

	// DAG
	DependencyProjectMismatch Code = "DEPENDENCY_PROJECT_MISMATCH"
	DependencyTaskNotFound    Code = "DEPENDENCY_TASK_NOT_FOUND"
	CycleDetected             Code = "CYCLE_DETECTED"
	ShortIDConflict           Code = "SHORT_ID_CONFLICT"

	// State machine
	IllegalTransition  Code = "ILLEGAL_TRANSITION"
	PreconditionFailed Code = "PRECONDITION_FAILED"

	// Concurrency / scheduling
	LeaseConflict       Code = "LEASE_CONFLICT"
	LeaseExpired        Code = "LEASE_EXPIRED"
	FencingStale        Code = "FENCING_STALE"
	ReservationConflict Code = "RESERVATION_CONFLICT"
	ClaimsPaused        Code = "CLAIMS_PAUSED"

	// Replan
	PlanStale           Code = "PLAN_STALE"
	PlanVersionConflict Code = "PLAN_VERSION_CONFLICT"

	// Gate
	GateEvidenceRequired   Code = "GATE_EVIDENCE_REQUIRED"
	GateSelfReview         Code = "GATE_SELF_REVIEW"
	GateForceRequiresAdmin Code = "GATE_FORCE_REQUIRES_ADMIN"

	// Auth
	Unauthenticated       Code = "UNAUTHENTICATED"
	RoleScopeViolation    Code = "ROLE_SCOPE_VIOLATION"
	ProjectScopeViolation Code = "PROJECT_SCOPE_VIOLATION"

	// Service
	Internal   Code = "INTERNAL"
	StoreError Code = "STORE_ERROR"
	Timeout    Code = "TIMEOUT"
)

// Error is a structured error carrying a stable Code, a human message, the
// HTTP status an external transport would map it to, and arbitrary details.
// It is errors.As-compatible so callers can recover the Code without string
// matching on Error().
type Error struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails attaches a key/value pair and returns the same error for chaining.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an Error with no wrapped cause.
func New(code Code, message string, httpStatus int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap creates an Error that carries an underlying cause.
func Wrap(code Code, message string, httpStatus int, err error) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Constructors, one per spec.md §7 error kind.

func InvalidArgumentf(field, reason string) *Error {
	return New(InvalidArgument, "invalid argument", http.StatusBadRequest).
		WithDetails("field", field).WithDetails("reason", reason)
}

func TaskNotFoundErr(taskID string) *Error {
	return New(TaskNotFound, "task not found", http.StatusNotFound).WithDetails("task_id", taskID)
}

func ProjectNotFoundErr(projectID string) *Error {
	return New(ProjectNotFound, "project not found", http.StatusNotFound).WithDetails("project_id", projectID)
}

func DependencyProjectMismatchErr(fromID, toID string) *Error {
	return New(DependencyProjectMismatch, "dependency endpoints span projects", http.StatusBadRequest).
		WithDetails("from", fromID).WithDetails("to", toID)
}

func DependencyTaskNotFoundErr(taskID string) *Error {
	return New(DependencyTaskNotFound, "dependency references unknown task", http.StatusBadRequest).
		WithDetails("task_id", taskID)
}

func CycleDetectedErr(path []string) *Error {
	return New(CycleDetected, "edge would introduce a cycle", http.StatusConflict).WithDetails("path", path)
}

func ShortIDConflictErr(shortID string) *Error {
	return New(ShortIDConflict, "short id already in use", http.StatusConflict).WithDetails("short_id", shortID)
}

func IllegalTransitionErr(from, event string) *Error {
	return New(IllegalTransition, "no transition defined for state/event pair", http.StatusConflict).
		WithDetails("from", from).WithDetails("event", event)
}

func PreconditionFailedErr(reason string) *Error {
	return New(PreconditionFailed, "transition precondition failed", http.StatusConflict).WithDetails("reason", reason)
}

func LeaseConflictErr(taskID string) *Error {
	return New(LeaseConflict, "an active lease or reservation already covers this task", http.StatusConflict).
		WithDetails("task_id", taskID)
}

func LeaseExpiredErr(token string) *Error {
	return New(LeaseExpired, "lease token has expired", http.StatusConflict).WithDetails("token", token)
}

func FencingStaleErr(token string, expected, got int64) *Error {
	return New(FencingStale, "fencing counter does not match current lease", http.StatusConflict).
		WithDetails("token", token).WithDetails("expected", expected).WithDetails("got", got)
}

func ReservationConflictErr(taskID string) *Error {
	return New(ReservationConflict, "task is reserved for another agent", http.StatusConflict).
		WithDetails("task_id", taskID)
}

func ClaimsPausedErr(projectID string) *Error {
	return New(ClaimsPaused, "claims are paused for this project", http.StatusConflict).
		WithDetails("project_id", projectID)
}

func PlanStaleErr(seen, current int64) *Error {
	return New(PlanStale, "seen plan version is behind the current project plan version", http.StatusConflict).
		WithDetails("seen_plan_version", seen).WithDetails("current_plan_version", current)
}

func PlanVersionConflictErr(expected, got int64) *Error {
	return New(PlanVersionConflict, "plan version lock conflict", http.StatusConflict).
		WithDetails("expected", expected).WithDetails("got", got)
}

func GateEvidenceRequiredErr(ruleName string) *Error {
	return New(GateEvidenceRequired, "gate requires recorded evidence before this transition", http.StatusConflict).
		WithDetails("rule", ruleName)
}

func GateSelfReviewErr(actorID string) *Error {
	return New(GateSelfReview, "reviewer may not approve their own work", http.StatusForbidden).
		WithDetails("actor_id", actorID)
}

func GateForceRequiresAdminErr() *Error {
	return New(GateForceRequiresAdmin, "forcing a gate decision requires an admin principal", http.StatusForbidden)
}

func UnauthenticatedErr(reason string) *Error {
	return New(Unauthenticated, "request is not authenticated", http.StatusUnauthorized).WithDetails("reason", reason)
}

func RoleScopeViolationErr(required string) *Error {
	return New(RoleScopeViolation, "principal's role scopes do not grant this capability", http.StatusForbidden).
		WithDetails("required_capability", required)
}

func ProjectScopeViolationErr(principalProject, targetProject string) *Error {
	return New(ProjectScopeViolation, "principal is not authorized for the target project", http.StatusForbidden).
		WithDetails("principal_project_id", principalProject).WithDetails("target_project_id", targetProject)
}

func InternalErr(message string, err error) *Error {
	return Wrap(Internal, message, http.StatusInternalServerError, err)
}

func StoreErr(operation string, err error) *Error {
	return Wrap(StoreError, "store operation failed", http.StatusInternalServerError, err).
		WithDetails("operation", operation)
}

func TimeoutErr(operation string) *Error {
	return New(Timeout, "operation timed out", http.StatusGatewayTimeout).WithDetails("operation", operation)
}

// Is reports whether err is a *Error with the given code.
func Is(err error, code Code) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}

// As extracts a *Error from err's chain, if present.
func As(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// HTTPStatus returns the HTTP status an external transport should use for err.
func HTTPStatus(err error) int {
	if te, ok := As(err); ok {
		return te.HTTPStatus
	}
	return http.StatusInternalServerError
}
