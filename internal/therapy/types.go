// Package therapy implements the client for the conversational-response
// service.
package therapy

// Role tags a transcript turn by speaker.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the conversation transcript. Turns are immutable
// once appended; their order is the conversation order and is replayed
// verbatim to the service on every call.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SessionState is the coarse progress hint sent with each request. It is
// advisory; the service alone decides termination.
type SessionState string

const (
	StateBeginning   SessionState = "beginning"
	StateProgressing SessionState = "progressing"
)

// Request carries the full transcript; the service is stateless per call.
type Request struct {
	Messages     []Turn       `json:"messages"`
	SessionState SessionState `json:"sessionState"`
}

// Response is the service's next move. Reasoning is diagnostic only and is
// never used for control flow.
type Response struct {
	Question  string `json:"question"`
	ShouldEnd bool   `json:"shouldEnd"`
	Reasoning string `json:"reasoning"`
}
