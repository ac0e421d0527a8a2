package wire

import "fmt"

// Event is the 4-byte event code carried by session-dialect frames.
type Event uint32

const (
	EventNone Event = 0

	// Connection-scoped events.
	EventStartConnection    Event = 1
	EventFinishConnection   Event = 2
	EventConnectionStarted  Event = 50
	EventConnectionFailed   Event = 51
	EventConnectionFinished Event = 52

	// Session-scoped events.
	EventStartSession    Event = 100
	EventCancelSession   Event = 101
	EventFinishSession   Event = 102
	EventSessionStarted  Event = 150
	EventSessionCanceled Event = 151
	EventSessionFinished Event = 152
	EventSessionFailed   Event = 153
	EventUsageResponse   Event = 154
	EventTaskRequest     Event = 200

	// Synthesis output.
	EventTTSSentenceStart Event = 350
	EventTTSSentenceEnd   Event = 351
	EventTTSResponse      Event = 352
)

var eventNames = map[Event]string{
	EventNone:               "None",
	EventStartConnection:    "StartConnection",
	EventFinishConnection:   "FinishConnection",
	EventConnectionStarted:  "ConnectionStarted",
	EventConnectionFailed:   "ConnectionFailed",
	EventConnectionFinished: "ConnectionFinished",
	EventStartSession:       "StartSession",
	EventCancelSession:      "CancelSession",
	EventFinishSession:      "FinishSession",
	EventSessionStarted:     "SessionStarted",
	EventSessionCanceled:    "SessionCanceled",
	EventSessionFinished:    "SessionFinished",
	EventSessionFailed:      "SessionFailed",
	EventUsageResponse:      "UsageResponse",
	EventTaskRequest:        "TaskRequest",
	EventTTSSentenceStart:   "TTSSentenceStart",
	EventTTSSentenceEnd:     "TTSSentenceEnd",
	EventTTSResponse:        "TTSResponse",
}

// String returns the event name, or Event(n) for unknown codes.
func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Event(%d)", uint32(e))
}

// Known reports whether e is a recognised event code.
func (e Event) Known() bool {
	_, ok := eventNames[e]
	return ok
}

// SessionScoped reports whether frames carrying e also carry a session id.
func (e Event) SessionScoped() bool {
	return e >= EventStartSession
}
