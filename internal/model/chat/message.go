package chat

import (
	"encoding/json"
	"time"

	"github.com/brightdoor/brokerchat/internal/model/entity"
)

// Message roles as stored and served. Historical rows may carry other labels
// ("assistant", "bot"); NormalizeRole folds them before anything is served.
const (
	RoleUser = "user"
	RoleAI   = "ai"
)

// Rich content variants attached to AI messages.
const (
	RichContentProperty = "property"
	RichContentDocument = "document"
	RichContentReport   = "report"
)

// RichContent is a typed structured attachment distinct from the plain text,
// e.g. a property card rendered next to the reply.
type RichContent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Message is a single immutable turn in a conversation.
type Message struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"sessionId"`
	Role        string            `json:"role"`
	Content     string            `json:"content"`
	Entities    []entity.Detected `json:"entities"`
	RichContent *RichContent      `json:"richContent,omitempty"`
	Suggestions []string          `json:"suggestions"`
	Attachment  string            `json:"attachment,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// NormalizeRole maps legacy sender labels onto the two canonical roles.
func NormalizeRole(role string) string {
	switch role {
	case RoleUser:
		return RoleUser
	case "assistant", "bot", RoleAI:
		return RoleAI
	default:
		return role
	}
}

// Normalize returns a copy with the role folded and optional fields defaulted
// to empty so clients never see null where a list is expected.
func Normalize(m Message) Message {
	m.Role = NormalizeRole(m.Role)
	if m.Entities == nil {
		m.Entities = []entity.Detected{}
	}
	if m.Suggestions == nil {
		m.Suggestions = []string{}
	}
	return m
}
