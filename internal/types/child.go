package types

import (
  "time"

  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
)

type Child struct {
  ID              uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
  UserID          uuid.UUID           `gorm:"index;not null" json:"userID"`
  User            *User               `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
  SchoolYearID    *int64              `gorm:"index" json:"schoolYearID,omitempty"`
  SchoolYear      *SchoolYear         `gorm:"constraint:OnDelete:SET NULL;foreignKey:SchoolYearID;references:ID" json:"schoolYear,omitempty"`

  Name            string              `gorm:"not null;column:name" json:"name"`

  // Memory is an open document used to bias prompt construction
  // (e.g. {"interests": ["dinosaurs", "space"]}).
  Memory          datatypes.JSONMap   `gorm:"column:memory" json:"memory,omitempty"`

  CreatedAt       time.Time           `gorm:"not null" json:"createdAt"`
  UpdatedAt       time.Time           `gorm:"not null" json:"updatedAt"`
}

func (Child) TableName() string {
  return "child"
}

func (c *Child) BeforeCreate(tx *gorm.DB) error {
  if c.ID == uuid.Nil {
    c.ID = uuid.New()
  }
  return nil
}
