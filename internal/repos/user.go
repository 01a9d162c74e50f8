package repos

import (
  "context"
  "errors"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/yayska-org/yayska-backend/internal/apperr"
  "github.com/yayska-org/yayska-backend/internal/logger"
  "github.com/yayska-org/yayska-backend/internal/types"
)

type UserRepo interface {
  GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.User, error)
  // ResetDailyCount starts a new counting day for the user: count back to 1,
  // date to today.
  ResetDailyCount(ctx context.Context, tx *gorm.DB, id uuid.UUID, today time.Time) error
  // IncrementDailyCount bumps the counter by one. No row lock is taken; the
  // caller has already read and checked the pre-increment value.
  IncrementDailyCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type userRepo struct {
  db    *gorm.DB
  log   *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
  return &userRepo{
    db:  db,
    log: baseLog.With("repo", "UserRepo"),
  }
}

func (ur *userRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.User, error) {
  if tx == nil {
    tx = ur.db
  }
  var u types.User
  if err := tx.WithContext(ctx).
    Where("id = ?", id).
    First(&u).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, apperr.NotFound("user with id %s not found", id)
    }
    return nil, err
  }
  return &u, nil
}

func (ur *userRepo) ResetDailyCount(ctx context.Context, tx *gorm.DB, id uuid.UUID, today time.Time) error {
  if tx == nil {
    tx = ur.db
  }
  if err := tx.WithContext(ctx).
    Model(&types.User{}).
    Where("id = ?", id).
    Updates(map[string]interface{}{
      "ai_chat_request_daily_count": 1,
      "last_ai_chat_request_date":   today,
    }).Error; err != nil {
    ur.log.Error("failed to reset daily AI request count", "error", err, "userID", id)
    return err
  }
  return nil
}

func (ur *userRepo) IncrementDailyCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
  if tx == nil {
    tx = ur.db
  }
  if err := tx.WithContext(ctx).
    Model(&types.User{}).
    Where("id = ?", id).
    Update("ai_chat_request_daily_count", gorm.Expr("ai_chat_request_daily_count + 1")).Error; err != nil {
    ur.log.Error("failed to increment daily AI request count", "error", err, "userID", id)
    return err
  }
  return nil
}
