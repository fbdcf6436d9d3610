package store

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	DefaultTitle   = "New Chat"
	titleMaxLength = 40
)

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"` // "user" or "assistant"
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type DocStatus string

const (
	DocStatusUploading DocStatus = "uploading"
	DocStatusReady     DocStatus = "ready"
	DocStatusError     DocStatus = "error"
)

// UploadStatus is the outcome of the latest upload made from a conversation.
type UploadStatus struct {
	ConversationID string    `json:"conversation_id"`
	Status         DocStatus `json:"status"`
	DocName        string    `json:"doc_name,omitempty"`
	Error          string    `json:"error,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}
