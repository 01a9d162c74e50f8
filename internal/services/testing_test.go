package services

import (
  "context"
  "testing"

  gormsqlite "github.com/glebarez/sqlite"
  "github.com/google/uuid"
  "github.com/stretchr/testify/require"
  "gorm.io/datatypes"
  "gorm.io/gorm"

  "github.com/yayska-org/yayska-backend/internal/logger"
  "github.com/yayska-org/yayska-backend/internal/requestdata"
  "github.com/yayska-org/yayska-backend/internal/types"
)

func openTestDB(t *testing.T) *gorm.DB {
  t.Helper()
  db, err := gorm.Open(gormsqlite.Open(":memory:"), &gorm.Config{})
  require.NoError(t, err)
  require.NoError(t, db.AutoMigrate(
    &types.User{},
    &types.SchoolYear{},
    &types.Subject{},
    &types.Concept{},
    &types.ConceptMetadata{},
    &types.Child{},
    &types.ChatSession{},
    &types.ChatMessage{},
  ))
  return db
}

func testLogger(t *testing.T) *logger.Logger {
  t.Helper()
  log, err := logger.New("development")
  require.NoError(t, err)
  return log
}

func seedUser(t *testing.T, db *gorm.DB, memory datatypes.JSONMap) *types.User {
  t.Helper()
  u := &types.User{
    ID:        uuid.New(),
    Email:     uuid.NewString() + "@example.com",
    FirstName: "Aoife",
    Memory:    memory,
  }
  require.NoError(t, db.Create(u).Error)
  return u
}

func seedChild(t *testing.T, db *gorm.DB, userID uuid.UUID, memory datatypes.JSONMap) *types.Child {
  t.Helper()
  c := &types.Child{ID: uuid.New(), UserID: userID, Name: "Liam", Memory: memory}
  require.NoError(t, db.Create(c).Error)
  return c
}

func seedConceptWithMetadata(t *testing.T, db *gorm.DB, conceptID int64, name, subjectName string) {
  t.Helper()
  subject := &types.Subject{ID: conceptID * 100, SubjectName: subjectName}
  require.NoError(t, db.Create(subject).Error)
  require.NoError(t, db.Create(&types.Concept{
    ID:                 conceptID,
    SubjectID:          &subject.ID,
    ConceptName:        name,
    ConceptDescription: "About " + name,
  }).Error)
  require.NoError(t, db.Create(&types.ConceptMetadata{
    ID:        conceptID,
    ConceptID: conceptID,
    WhyImportant: datatypes.JSONMap{
      "practical_value": "Useful in daily life",
    },
    ParentGuide: datatypes.JSONMap{
      "key_points": []interface{}{"point one", "point two"},
    },
  }).Error)
}

func seedSession(t *testing.T, db *gorm.DB, userID, childID uuid.UUID, conceptID int64) *types.ChatSession {
  t.Helper()
  s := &types.ChatSession{
    ID:                uuid.New(),
    UserID:            userID,
    ChildID:           childID,
    Title:             "New Chat",
    EntryPointType:    types.EntryPointConceptCoach,
    EntryPointContext: datatypes.JSONMap{"concept_id": float64(conceptID)},
  }
  require.NoError(t, db.Create(s).Error)
  return s
}

func authedCtx(userID uuid.UUID, email string) context.Context {
  return requestdata.WithRequestData(context.Background(), &requestdata.RequestData{
    UserID: userID,
    Email:  email,
  })
}
