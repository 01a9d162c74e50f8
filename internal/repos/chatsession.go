package repos

import (
  "context"
  "encoding/json"
  "errors"
  "fmt"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/yayska-org/yayska-backend/internal/apperr"
  "github.com/yayska-org/yayska-backend/internal/logger"
  "github.com/yayska-org/yayska-backend/internal/types"
)

type ChatSessionRepo interface {
  CreateSession(ctx context.Context, tx *gorm.DB, session *types.ChatSession) (*types.ChatSession, error)
  GetSessionByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ChatSession, error)
  GetSessionForUser(ctx context.Context, tx *gorm.DB, id, userID uuid.UUID) (*types.ChatSession, error)
  // FindDedupSession returns the most recently created session matching
  // (user, child, entry point) whose entry-point context carries the same
  // concept id, compared by canonical string form. Nil when none match.
  FindDedupSession(ctx context.Context, tx *gorm.DB, userID, childID uuid.UUID, entryPoint types.EntryPointType, conceptKey string) (*types.ChatSession, error)
  GetUserSessions(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]*types.ChatSession, int64, error)
  // RecentConceptSessions lists the most recently touched CONCEPT_COACH
  // sessions for (user, child), excluding one session id.
  RecentConceptSessions(ctx context.Context, tx *gorm.DB, userID, childID, excludeSessionID uuid.UUID, limit int) ([]*types.ChatSession, error)
  TouchUpdatedAt(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type chatSessionRepo struct {
  db    *gorm.DB
  log   *logger.Logger
}

func NewChatSessionRepo(db *gorm.DB, baseLog *logger.Logger) ChatSessionRepo {
  return &chatSessionRepo{
    db:  db,
    log: baseLog.With("repo", "ChatSessionRepo"),
  }
}

func (csr *chatSessionRepo) CreateSession(ctx context.Context, tx *gorm.DB, session *types.ChatSession) (*types.ChatSession, error) {
  if tx == nil {
    tx = csr.db
  }
  if session.ID == uuid.Nil {
    session.ID = uuid.New()
  }
  if err := tx.WithContext(ctx).Create(session).Error; err != nil {
    csr.log.Error("failed to create chat session", "error", err)
    return nil, err
  }
  return session, nil
}

func (csr *chatSessionRepo) GetSessionByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ChatSession, error) {
  if tx == nil {
    tx = csr.db
  }
  var s types.ChatSession
  if err := tx.WithContext(ctx).
    Where("id = ?", id).
    First(&s).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, apperr.NotFound("chat session with id %s not found", id)
    }
    return nil, err
  }
  return &s, nil
}

func (csr *chatSessionRepo) GetSessionForUser(ctx context.Context, tx *gorm.DB, id, userID uuid.UUID) (*types.ChatSession, error) {
  if tx == nil {
    tx = csr.db
  }
  var s types.ChatSession
  if err := tx.WithContext(ctx).
    Where("id = ? AND user_id = ?", id, userID).
    First(&s).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, apperr.NotFound("chat session with id %s not found", id)
    }
    return nil, err
  }
  return &s, nil
}

func (csr *chatSessionRepo) FindDedupSession(ctx context.Context, tx *gorm.DB, userID, childID uuid.UUID, entryPoint types.EntryPointType, conceptKey string) (*types.ChatSession, error) {
  if tx == nil {
    tx = csr.db
  }
  var candidates []*types.ChatSession
  if err := tx.WithContext(ctx).
    Where("user_id = ? AND child_id = ? AND entry_point_type = ?", userID, childID, entryPoint).
    Order("created_at DESC").
    Find(&candidates).Error; err != nil {
    csr.log.Error("failed to search for dedup chat session", "error", err)
    return nil, err
  }
  for _, s := range candidates {
    if ConceptKey(s.EntryPointContext) == conceptKey {
      return s, nil
    }
  }
  return nil, nil
}

func (csr *chatSessionRepo) GetUserSessions(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]*types.ChatSession, int64, error) {
  if tx == nil {
    tx = csr.db
  }
  var total int64
  if err := tx.WithContext(ctx).
    Model(&types.ChatSession{}).
    Where("user_id = ?", userID).
    Count(&total).Error; err != nil {
    return nil, 0, err
  }
  var sessions []*types.ChatSession
  if err := tx.WithContext(ctx).
    Where("user_id = ?", userID).
    Order("updated_at DESC, created_at DESC").
    Limit(limit).
    Offset(offset).
    Find(&sessions).Error; err != nil {
    csr.log.Error("failed to get chat sessions by userID", "error", err)
    return nil, 0, err
  }
  return sessions, total, nil
}

func (csr *chatSessionRepo) RecentConceptSessions(ctx context.Context, tx *gorm.DB, userID, childID, excludeSessionID uuid.UUID, limit int) ([]*types.ChatSession, error) {
  if tx == nil {
    tx = csr.db
  }
  var sessions []*types.ChatSession
  if err := tx.WithContext(ctx).
    Where("user_id = ? AND child_id = ? AND entry_point_type = ? AND id <> ?",
      userID, childID, types.EntryPointConceptCoach, excludeSessionID).
    Order("updated_at DESC").
    Limit(limit).
    Find(&sessions).Error; err != nil {
    csr.log.Error("failed to get recent concept sessions", "error", err)
    return nil, err
  }
  return sessions, nil
}

func (csr *chatSessionRepo) TouchUpdatedAt(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
  if tx == nil {
    tx = csr.db
  }
  if err := tx.WithContext(ctx).
    Model(&types.ChatSession{}).
    Where("id = ?", id).
    Update("updated_at", time.Now()).Error; err != nil {
    csr.log.Error("failed to touch chat session updated_at", "error", err, "sessionID", id)
    return err
  }
  return nil
}

// ConceptKey renders the concept id carried in an entry-point context map in
// its canonical string form. Request decoding turns numbers into float64, so
// integral floats collapse back to their integer spelling; JSONMap columns
// read back from the database yield json.Number.
func ConceptKey(contextData map[string]interface{}) string {
  if contextData == nil {
    return ""
  }
  raw, ok := contextData["concept_id"]
  if !ok || raw == nil {
    return ""
  }
  switch v := raw.(type) {
  case float64:
    if v == float64(int64(v)) {
      return fmt.Sprintf("%d", int64(v))
    }
    return fmt.Sprintf("%v", v)
  case json.Number:
    return v.String()
  case string:
    return v
  default:
    return fmt.Sprintf("%v", v)
  }
}
