package types

import (
  "time"

  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
)

type User struct {
  ID                        uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
  Email                     string              `gorm:"uniqueIndex;not null;column:email" json:"email"`
  FirstName                 string              `gorm:"column:first_name" json:"firstName"`
  LastName                  string              `gorm:"column:last_name" json:"lastName"`

  // Memory is an open document used to bias prompt construction
  // (e.g. {"challenging_subjects": ["Maths"]}).
  Memory                    datatypes.JSONMap   `gorm:"column:memory" json:"memory,omitempty"`

  AIChatRequestDailyCount   int                 `gorm:"column:ai_chat_request_daily_count;not null;default:0" json:"-"`
  LastAIChatRequestDate     *time.Time          `gorm:"column:last_ai_chat_request_date" json:"-"`

  CreatedAt                 time.Time           `gorm:"not null" json:"createdAt"`
  UpdatedAt                 time.Time           `gorm:"not null" json:"updatedAt"`
}

func (User) TableName() string {
  return "user"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
  if u.ID == uuid.Nil {
    u.ID = uuid.New()
  }
  return nil
}
