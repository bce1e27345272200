package session

// Role identifies which side of the conversation produced a turn.
type Role string

const (
	// RoleUser is the counterparty (the suspected scammer) messaging in.
	RoleUser Role = "user"
	// RoleAssistant is the honeypot persona replying out.
	RoleAssistant Role = "assistant"
)

// Turn is a single message within a session. Immutable once appended.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserTurn builds an inbound turn.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn builds a honeypot reply turn.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}
