package types

import (
  "gorm.io/datatypes"
)

// Curriculum master data. Rows are populated by the import scripts and are
// read-only to the chat core, so they keep their imported integer ids.

type SchoolYear struct {
  ID          int64     `gorm:"primaryKey" json:"id"`
  YearName    string    `gorm:"not null;column:year_name" json:"yearName"`
}

func (SchoolYear) TableName() string {
  return "school_year"
}

type Subject struct {
  ID            int64     `gorm:"primaryKey" json:"id"`
  SubjectName   string    `gorm:"not null;column:subject_name" json:"subjectName"`
}

func (Subject) TableName() string {
  return "subject"
}

type Concept struct {
  ID                    int64       `gorm:"primaryKey" json:"id"`
  SubjectID             *int64      `gorm:"index" json:"subjectID,omitempty"`
  Subject               *Subject    `gorm:"constraint:OnDelete:SET NULL;foreignKey:SubjectID;references:ID" json:"subject,omitempty"`
  ConceptName           string      `gorm:"not null;column:concept_name" json:"conceptName"`
  ConceptDescription    string      `gorm:"column:concept_description" json:"conceptDescription"`
}

func (Concept) TableName() string {
  return "concept"
}

type ConceptMetadata struct {
  ID                int64               `gorm:"primaryKey" json:"id"`
  ConceptID         int64               `gorm:"uniqueIndex;not null" json:"conceptID"`
  Concept           *Concept            `gorm:"constraint:OnDelete:CASCADE;foreignKey:ConceptID;references:ID" json:"concept,omitempty"`

  WhyImportant      datatypes.JSONMap   `gorm:"column:why_important" json:"whyImportant,omitempty"`
  ParentGuide       datatypes.JSONMap   `gorm:"column:parent_guide" json:"parentGuide,omitempty"`
  DifficultyStats   datatypes.JSONMap   `gorm:"column:difficulty_stats" json:"difficultyStats,omitempty"`
}

func (ConceptMetadata) TableName() string {
  return "concept_metadata"
}
