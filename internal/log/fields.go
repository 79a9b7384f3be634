// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldRoom      = "room"
	FieldRoomURL   = "room_url"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"
	FieldReason    = "reason"

	// State fields
	FieldNewState = "new_state"

	// Session fields
	FieldVoice = "voice"
	FieldFlow  = "flow"
)
