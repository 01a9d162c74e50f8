package types

import (
  "time"

  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
)

// EntryPointType enumerates the contexts a chat session can originate from.
type EntryPointType string

const (
  EntryPointConceptCoach EntryPointType = "CONCEPT_COACH"
)

// SupportsDedup reports whether sessions for this entry point are reused
// across requests with the same entry-point context.
func (t EntryPointType) SupportsDedup() bool {
  return t == EntryPointConceptCoach
}

func (t EntryPointType) Valid() bool {
  return t == EntryPointConceptCoach
}

type ChatSession struct {
  ID                  uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
  UserID              uuid.UUID           `gorm:"index;not null" json:"userID"`
  User                *User               `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
  ChildID             uuid.UUID           `gorm:"index;not null" json:"childID"`
  Child               *Child              `gorm:"constraint:OnDelete:CASCADE;foreignKey:ChildID;references:ID" json:"-"`

  Title               string              `gorm:"column:title" json:"title"`
  EntryPointType      EntryPointType      `gorm:"column:entry_point_type;not null" json:"entryPointType"`
  EntryPointContext   datatypes.JSONMap   `gorm:"column:entry_point_context" json:"entryPointContext"`

  CreatedAt           time.Time           `gorm:"not null" json:"createdAt"`
  UpdatedAt           time.Time           `gorm:"not null" json:"updatedAt"`
}

func (ChatSession) TableName() string {
  return "chat_session"
}

func (s *ChatSession) BeforeCreate(tx *gorm.DB) error {
  if s.ID == uuid.Nil {
    s.ID = uuid.New()
  }
  return nil
}
