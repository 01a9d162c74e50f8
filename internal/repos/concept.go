package repos

import (
  "context"
  "errors"

  "gorm.io/gorm"

  "github.com/yayska-org/yayska-backend/internal/apperr"
  "github.com/yayska-org/yayska-backend/internal/logger"
  "github.com/yayska-org/yayska-backend/internal/types"
)

// ConceptDetail joins a concept with its subject and teaching metadata, with
// the metadata documents reduced to the fields prompt assembly reads.
type ConceptDetail struct {
  Concept           *types.Concept
  SubjectName       string
  PracticalValue    string
  KeyPoints         []string
  CommonBarriers    []string
}

type ConceptRepo interface {
  GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.Concept, error)
  GetByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]*types.Concept, error)
  GetDetail(ctx context.Context, tx *gorm.DB, id int64) (*ConceptDetail, error)
}

type conceptRepo struct {
  db    *gorm.DB
  log   *logger.Logger
}

func NewConceptRepo(db *gorm.DB, baseLog *logger.Logger) ConceptRepo {
  return &conceptRepo{
    db:  db,
    log: baseLog.With("repo", "ConceptRepo"),
  }
}

func (cr *conceptRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.Concept, error) {
  if tx == nil {
    tx = cr.db
  }
  var c types.Concept
  if err := tx.WithContext(ctx).
    Preload("Subject").
    Where("id = ?", id).
    First(&c).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, apperr.NotFound("concept with id %d not found", id)
    }
    return nil, err
  }
  return &c, nil
}

func (cr *conceptRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]*types.Concept, error) {
  if tx == nil {
    tx = cr.db
  }
  if len(ids) == 0 {
    return nil, nil
  }
  var concepts []*types.Concept
  if err := tx.WithContext(ctx).
    Preload("Subject").
    Where("id IN ?", ids).
    Find(&concepts).Error; err != nil {
    cr.log.Error("failed to get concepts by ids", "error", err)
    return nil, err
  }
  return concepts, nil
}

func (cr *conceptRepo) GetDetail(ctx context.Context, tx *gorm.DB, id int64) (*ConceptDetail, error) {
  if tx == nil {
    tx = cr.db
  }
  concept, err := cr.GetByID(ctx, tx, id)
  if err != nil {
    return nil, err
  }
  detail := &ConceptDetail{Concept: concept}
  if concept.Subject != nil {
    detail.SubjectName = concept.Subject.SubjectName
  }

  var meta types.ConceptMetadata
  err = tx.WithContext(ctx).
    Where("concept_id = ?", id).
    First(&meta).Error
  if err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      // Metadata is generated offline and can lag behind concept imports.
      return detail, nil
    }
    return nil, err
  }
  detail.PracticalValue = stringField(meta.WhyImportant, "practical_value")
  detail.KeyPoints = stringListField(meta.ParentGuide, "key_points")
  detail.CommonBarriers = stringListField(meta.DifficultyStats, "common_barriers")
  return detail, nil
}

func stringField(doc map[string]interface{}, key string) string {
  if doc == nil {
    return ""
  }
  if s, ok := doc[key].(string); ok {
    return s
  }
  return ""
}

func stringListField(doc map[string]interface{}, key string) []string {
  if doc == nil {
    return nil
  }
  raw, ok := doc[key].([]interface{})
  if !ok {
    return nil
  }
  var out []string
  for _, v := range raw {
    if s, ok := v.(string); ok {
      out = append(out, s)
    }
  }
  return out
}
