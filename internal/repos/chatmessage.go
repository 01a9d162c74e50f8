package repos

import (
  "context"
  "errors"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/yayska-org/yayska-backend/internal/apperr"
  "github.com/yayska-org/yayska-backend/internal/logger"
  "github.com/yayska-org/yayska-backend/internal/types"
)

type ChatMessageRepo interface {
  // CreateMessage assigns the next per-session ordering key and inserts the
  // row. Callers writing an exchange run this inside one transaction so the
  // user message always lands before its assistant reply.
  CreateMessage(ctx context.Context, tx *gorm.DB, msg *types.ChatMessage) (*types.ChatMessage, error)
  GetBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, limit, offset int) ([]*types.ChatMessage, error)
  // RecentHistory returns the newest n messages for a session, oldest first.
  RecentHistory(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, n int) ([]*types.ChatMessage, error)
  // GetAssistantMessageForUser resolves a message only when it is
  // assistant-authored and lives in a session owned by the given user.
  GetAssistantMessageForUser(ctx context.Context, tx *gorm.DB, messageID, sessionID, userID uuid.UUID) (*types.ChatMessage, error)
  UpdateFeedback(ctx context.Context, tx *gorm.DB, messageID uuid.UUID, vote int, text *string) (*types.ChatMessage, error)
}

type chatMessageRepo struct {
  db    *gorm.DB
  log   *logger.Logger
}

func NewChatMessageRepo(db *gorm.DB, baseLog *logger.Logger) ChatMessageRepo {
  return &chatMessageRepo{
    db:  db,
    log: baseLog.With("repo", "ChatMessageRepo"),
  }
}

func (cmr *chatMessageRepo) CreateMessage(ctx context.Context, tx *gorm.DB, msg *types.ChatMessage) (*types.ChatMessage, error) {
  if tx == nil {
    tx = cmr.db
  }
  if msg.ID == uuid.Nil {
    msg.ID = uuid.New()
  }
  var maxOrder int64
  if err := tx.WithContext(ctx).
    Model(&types.ChatMessage{}).
    Where("session_id = ?", msg.SessionID).
    Select("COALESCE(MAX(message_order), 0)").
    Scan(&maxOrder).Error; err != nil {
    cmr.log.Error("failed to read max message order", "error", err, "sessionID", msg.SessionID)
    return nil, err
  }
  msg.MessageOrder = maxOrder + 1
  if err := tx.WithContext(ctx).Create(msg).Error; err != nil {
    cmr.log.Error("failed to create chat message", "error", err, "sessionID", msg.SessionID)
    return nil, err
  }
  return msg, nil
}

func (cmr *chatMessageRepo) GetBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, limit, offset int) ([]*types.ChatMessage, error) {
  if tx == nil {
    tx = cmr.db
  }
  var msgs []*types.ChatMessage
  if err := tx.WithContext(ctx).
    Where("session_id = ?", sessionID).
    Order("message_order ASC").
    Limit(limit).
    Offset(offset).
    Find(&msgs).Error; err != nil {
    cmr.log.Error("failed to get chat messages by sessionID", "error", err, "sessionID", sessionID)
    return nil, err
  }
  return msgs, nil
}

func (cmr *chatMessageRepo) RecentHistory(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, n int) ([]*types.ChatMessage, error) {
  if tx == nil {
    tx = cmr.db
  }
  var msgs []*types.ChatMessage
  if err := tx.WithContext(ctx).
    Where("session_id = ?", sessionID).
    Order("message_order DESC").
    Limit(n).
    Find(&msgs).Error; err != nil {
    cmr.log.Error("failed to get recent chat history", "error", err, "sessionID", sessionID)
    return nil, err
  }
  // reverse to oldest-first
  for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
    msgs[i], msgs[j] = msgs[j], msgs[i]
  }
  return msgs, nil
}

func (cmr *chatMessageRepo) GetAssistantMessageForUser(ctx context.Context, tx *gorm.DB, messageID, sessionID, userID uuid.UUID) (*types.ChatMessage, error) {
  if tx == nil {
    tx = cmr.db
  }
  var msg types.ChatMessage
  err := tx.WithContext(ctx).
    Joins("JOIN chat_session ON chat_session.id = chat_message.session_id").
    Where("chat_message.id = ? AND chat_message.session_id = ? AND chat_session.user_id = ? AND chat_message.role = ?",
      messageID, sessionID, userID, types.ChatMessageRoleAssistant).
    First(&msg).Error
  if err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, apperr.NotFound("assistant message with id %s not found in session %s", messageID, sessionID)
    }
    return nil, err
  }
  return &msg, nil
}

func (cmr *chatMessageRepo) UpdateFeedback(ctx context.Context, tx *gorm.DB, messageID uuid.UUID, vote int, text *string) (*types.ChatMessage, error) {
  if tx == nil {
    tx = cmr.db
  }
  if err := tx.WithContext(ctx).
    Model(&types.ChatMessage{}).
    Where("id = ?", messageID).
    Updates(map[string]interface{}{
      "feedback_thumbs": vote,
      "feedback_text":   text,
    }).Error; err != nil {
    cmr.log.Error("failed to update message feedback", "error", err, "messageID", messageID)
    return nil, err
  }
  var msg types.ChatMessage
  if err := tx.WithContext(ctx).
    Where("id = ?", messageID).
    First(&msg).Error; err != nil {
    return nil, err
  }
  return &msg, nil
}
