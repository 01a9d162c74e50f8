package repos

import (
  "testing"

  gormsqlite "github.com/glebarez/sqlite"
  "github.com/google/uuid"
  "github.com/stretchr/testify/require"
  "gorm.io/gorm"

  "github.com/yayska-org/yayska-backend/internal/logger"
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

func seedUser(t *testing.T, db *gorm.DB) *types.User {
  t.Helper()
  u := &types.User{ID: uuid.New(), Email: uuid.NewString() + "@example.com", FirstName: "Aoife"}
  require.NoError(t, db.Create(u).Error)
  return u
}

func seedChild(t *testing.T, db *gorm.DB, userID uuid.UUID) *types.Child {
  t.Helper()
  c := &types.Child{ID: uuid.New(), UserID: userID, Name: "Liam"}
  require.NoError(t, db.Create(c).Error)
  return c
}

func seedSession(t *testing.T, db *gorm.DB, userID, childID uuid.UUID, contextData map[string]interface{}) *types.ChatSession {
  t.Helper()
  s := &types.ChatSession{
    ID:                uuid.New(),
    UserID:            userID,
    ChildID:           childID,
    Title:             "New Chat",
    EntryPointType:    types.EntryPointConceptCoach,
    EntryPointContext: contextData,
  }
  require.NoError(t, db.Create(s).Error)
  return s
}
