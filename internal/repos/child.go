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

type ChildRepo interface {
  GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Child, error)
  GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Child, error)
}

type childRepo struct {
  db    *gorm.DB
  log   *logger.Logger
}

func NewChildRepo(db *gorm.DB, baseLog *logger.Logger) ChildRepo {
  return &childRepo{
    db:  db,
    log: baseLog.With("repo", "ChildRepo"),
  }
}

func (cr *childRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Child, error) {
  if tx == nil {
    tx = cr.db
  }
  var c types.Child
  if err := tx.WithContext(ctx).
    Preload("SchoolYear").
    Where("id = ?", id).
    First(&c).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, apperr.NotFound("child with id %s not found", id)
    }
    return nil, err
  }
  return &c, nil
}

func (cr *childRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Child, error) {
  if tx == nil {
    tx = cr.db
  }
  var children []*types.Child
  if err := tx.WithContext(ctx).
    Preload("SchoolYear").
    Where("user_id = ?", userID).
    Order("created_at ASC").
    Find(&children).Error; err != nil {
    cr.log.Error("failed to get children by userID", "error", err, "userID", userID)
    return nil, err
  }
  return children, nil
}
