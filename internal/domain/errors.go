package domain

import "errors"

var (
	// ErrRoomNotFound is returned when no room exists for a code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomExists signals a room-code collision during creation.
	ErrRoomExists = errors.New("room already exists")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrParticipantNotFound is returned when a connection acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in room")
	// ErrUnauthorized is returned for host-only actions from non-hosts, or when a
	// required credential is missing.
	ErrUnauthorized = errors.New("not authorized")
	// ErrRoomFinished rejects joins and submissions on a finished room.
	ErrRoomFinished = errors.New("room already finished")
	// ErrLateJoinDisallowed rejects joins once play started and late join is off.
	ErrLateJoinDisallowed = errors.New("late join not allowed")
	// ErrInvalidTransition rejects an action the room's current status forbids.
	ErrInvalidTransition = errors.New("invalid room state for action")
	// ErrDuplicateSubmission rejects a second answer for the same question.
	ErrDuplicateSubmission = errors.New("answer already submitted for question")
	// ErrVersionConflict signals a stale-version write; the transaction wrapper
	// retries it and it never escapes to callers.
	ErrVersionConflict = errors.New("room version conflict")
	// ErrBusy is returned once the conflict retry budget is exhausted.
	ErrBusy = errors.New("room busy, retry the action")
)
