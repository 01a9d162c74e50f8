package repos

import (
  "context"
  "encoding/json"
  "testing"
  "time"

  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"

  "github.com/yayska-org/yayska-backend/internal/types"
)

func TestConceptKeyCanonicalForms(t *testing.T) {
  // Request decoding hands integers over as float64, JSONMap columns read
  // back from the database hand them over as json.Number; every spelling
  // must collapse to the same key.
  assert.Equal(t, "42", ConceptKey(map[string]interface{}{"concept_id": float64(42)}))
  assert.Equal(t, "42", ConceptKey(map[string]interface{}{"concept_id": json.Number("42")}))
  assert.Equal(t, "42", ConceptKey(map[string]interface{}{"concept_id": "42"}))
  assert.Equal(t, "42", ConceptKey(map[string]interface{}{"concept_id": 42}))
  assert.Equal(t, "", ConceptKey(map[string]interface{}{"other": 1}))
  assert.Equal(t, "", ConceptKey(nil))
  assert.Equal(t, "", ConceptKey(map[string]interface{}{"concept_id": nil}))
}

func TestFindDedupSessionMatchesByConceptKey(t *testing.T) {
  db := openTestDB(t)
  repo := NewChatSessionRepo(db, testLogger(t))
  ctx := context.Background()

  user := seedUser(t, db)
  child := seedChild(t, db, user.ID)
  seedSession(t, db, user.ID, child.ID, map[string]interface{}{"concept_id": float64(1)})
  target := seedSession(t, db, user.ID, child.ID, map[string]interface{}{"concept_id": float64(2)})

  found, err := repo.FindDedupSession(ctx, nil, user.ID, child.ID, types.EntryPointConceptCoach, "2")
  require.NoError(t, err)
  require.NotNil(t, found)
  assert.Equal(t, target.ID, found.ID)

  found, err = repo.FindDedupSession(ctx, nil, user.ID, child.ID, types.EntryPointConceptCoach, "99")
  require.NoError(t, err)
  assert.Nil(t, found)
}

func TestFindDedupSessionScopedToUserAndChild(t *testing.T) {
  db := openTestDB(t)
  repo := NewChatSessionRepo(db, testLogger(t))
  ctx := context.Background()

  user := seedUser(t, db)
  child := seedChild(t, db, user.ID)
  otherChild := seedChild(t, db, user.ID)
  seedSession(t, db, user.ID, child.ID, map[string]interface{}{"concept_id": float64(5)})

  found, err := repo.FindDedupSession(ctx, nil, user.ID, otherChild.ID, types.EntryPointConceptCoach, "5")
  require.NoError(t, err)
  assert.Nil(t, found, "sessions for a sibling must not be reused")
}

func TestGetUserSessionsPaginatesWithTotal(t *testing.T) {
  db := openTestDB(t)
  repo := NewChatSessionRepo(db, testLogger(t))
  ctx := context.Background()

  user := seedUser(t, db)
  child := seedChild(t, db, user.ID)
  for i := 0; i < 5; i++ {
    seedSession(t, db, user.ID, child.ID, map[string]interface{}{"concept_id": float64(i)})
  }

  sessions, total, err := repo.GetUserSessions(ctx, nil, user.ID, 2, 0)
  require.NoError(t, err)
  assert.Equal(t, int64(5), total)
  assert.Len(t, sessions, 2)

  sessions, total, err = repo.GetUserSessions(ctx, nil, user.ID, 2, 4)
  require.NoError(t, err)
  assert.Equal(t, int64(5), total)
  assert.Len(t, sessions, 1)
}

func TestRecentConceptSessionsExcludesCurrent(t *testing.T) {
  db := openTestDB(t)
  repo := NewChatSessionRepo(db, testLogger(t))
  ctx := context.Background()

  user := seedUser(t, db)
  child := seedChild(t, db, user.ID)
  current := seedSession(t, db, user.ID, child.ID, map[string]interface{}{"concept_id": float64(1)})
  other := seedSession(t, db, user.ID, child.ID, map[string]interface{}{"concept_id": float64(2)})

  sessions, err := repo.RecentConceptSessions(ctx, nil, user.ID, child.ID, current.ID, 10)
  require.NoError(t, err)
  require.Len(t, sessions, 1)
  assert.Equal(t, other.ID, sessions[0].ID)
}

func TestTouchUpdatedAt(t *testing.T) {
  db := openTestDB(t)
  repo := NewChatSessionRepo(db, testLogger(t))
  ctx := context.Background()

  user := seedUser(t, db)
  child := seedChild(t, db, user.ID)
  session := seedSession(t, db, user.ID, child.ID, map[string]interface{}{"concept_id": float64(1)})

  before, err := repo.GetSessionByID(ctx, nil, session.ID)
  require.NoError(t, err)

  time.Sleep(5 * time.Millisecond)
  require.NoError(t, repo.TouchUpdatedAt(ctx, nil, session.ID))

  after, err := repo.GetSessionByID(ctx, nil, session.ID)
  require.NoError(t, err)
  assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
}
