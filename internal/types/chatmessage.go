package types

import (
  "time"

  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
)

const (
  ChatMessageRoleUser      = "USER"
  ChatMessageRoleAssistant = "ASSISTANT"
)

// ChatMessage rows are immutable once written except for the two feedback
// fields. MessageOrder is the per-session ordering key: strictly increasing
// in insertion order, unlike CreatedAt which can tie.
type ChatMessage struct {
  ID                uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
  SessionID         uuid.UUID           `gorm:"index:idx_chat_message_session_order,unique;not null" json:"sessionID"`
  Session           *ChatSession        `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"-"`

  Role              string              `gorm:"column:role;not null" json:"role"`
  Content           string              `gorm:"column:content;type:text;not null" json:"content"`
  Reasoning         *string             `gorm:"column:reasoning;type:text" json:"reasoning,omitempty"`

  // ContextSnapshot is the exact request payload sent to the model backend,
  // kept for auditability.
  ContextSnapshot   datatypes.JSONMap   `gorm:"column:context_snapshot" json:"contextSnapshot,omitempty"`
  LLMUsage          datatypes.JSONMap   `gorm:"column:llm_usage" json:"llmUsage,omitempty"`

  FeedbackThumbs    *int                `gorm:"column:feedback_thumbs" json:"feedbackThumbs,omitempty"`
  FeedbackText      *string             `gorm:"column:feedback_text" json:"feedbackText,omitempty"`

  MessageOrder      int64               `gorm:"column:message_order;index:idx_chat_message_session_order,unique;not null" json:"messageOrder"`

  CreatedAt         time.Time           `gorm:"not null" json:"createdAt"`
  UpdatedAt         time.Time           `gorm:"not null" json:"updatedAt"`
}

func (ChatMessage) TableName() string {
  return "chat_message"
}

func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
  if m.ID == uuid.Nil {
    m.ID = uuid.New()
  }
  return nil
}
