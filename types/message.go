package types

import "time"

// Role 会话消息角色。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is one entry of the persisted conversation history.
type ChatMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Step is one entry of the append-only execution trace.
type Step struct {
	Name   string `json:"step"`
	Detail string `json:"detail"`
}
