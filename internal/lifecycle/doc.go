// Package lifecycle implements the task status state machine.
//
//	published --claim--> occupied --mark_complete--> pending_publisher_confirmation
//	pending_publisher_confirmation --confirm_completion--> completed
//	pending_publisher_confirmation --request_revision--> occupied
//
// completed is terminal. There are no time-driven transitions: deadlines are
// informational only.
package lifecycle
