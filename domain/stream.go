package domain

// Stream event types sent on the outbound relay stream.
const (
	StreamEventContent = "content"
	StreamEventDone    = "done"
	StreamEventError   = "error"
)

// StreamEvent is one frame of the outbound chunked response. It only exists
// on the wire and is never persisted.
type StreamEvent struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}
