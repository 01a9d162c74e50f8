package services

import (
  "context"
  "encoding/json"
  "fmt"
  "strconv"
  "strings"
  "time"

  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"

  "github.com/yayska-org/yayska-backend/internal/apperr"
  "github.com/yayska-org/yayska-backend/internal/llm"
  "github.com/yayska-org/yayska-backend/internal/logger"
  "github.com/yayska-org/yayska-backend/internal/prompts"
  "github.com/yayska-org/yayska-backend/internal/repos"
  "github.com/yayska-org/yayska-backend/internal/types"
)

const (
  historyWindow         = 10
  recentConceptsWindow  = 10
)

// AssembledContext is the bundle the prompt renderer consumes: the three
// context blocks plus the replayable conversation history reduced to
// (role, content).
type AssembledContext struct {
  Parent      prompts.ParentContext
  Child       prompts.ChildContext
  Learning    prompts.LearningContext
  History     []llm.Message
}

// ChatContextService fuses profile memory, cross-session topic history and
// concept teaching metadata into the prompt context for one exchange.
type ChatContextService interface {
  Build(ctx context.Context, tx *gorm.DB, userID uuid.UUID, session *types.ChatSession) (*AssembledContext, error)
}

type chatContextService struct {
  log             *logger.Logger
  userRepo        repos.UserRepo
  childRepo       repos.ChildRepo
  conceptRepo     repos.ConceptRepo
  sessionRepo     repos.ChatSessionRepo
  messageRepo     repos.ChatMessageRepo

  now             func() time.Time
}

func NewChatContextService(
  log *logger.Logger,
  userRepo repos.UserRepo,
  childRepo repos.ChildRepo,
  conceptRepo repos.ConceptRepo,
  sessionRepo repos.ChatSessionRepo,
  messageRepo repos.ChatMessageRepo,
) ChatContextService {
  return &chatContextService{
    log:         log.With("service", "ChatContextService"),
    userRepo:    userRepo,
    childRepo:   childRepo,
    conceptRepo: conceptRepo,
    sessionRepo: sessionRepo,
    messageRepo: messageRepo,
    now:         time.Now,
  }
}

func (ccs *chatContextService) Build(ctx context.Context, tx *gorm.DB, userID uuid.UUID, session *types.ChatSession) (*AssembledContext, error) {
  user, err := ccs.userRepo.GetByID(ctx, tx, userID)
  if err != nil {
    return nil, err
  }
  child, err := ccs.childRepo.GetByID(ctx, tx, session.ChildID)
  if err != nil {
    return nil, err
  }
  roster, err := ccs.childRepo.GetByUserID(ctx, tx, userID)
  if err != nil {
    return nil, err
  }

  learning, err := ccs.buildLearningContext(ctx, tx, userID, session)
  if err != nil {
    return nil, err
  }

  parent := prompts.ParentContext{
    Name:            user.FirstName,
    NotesFromMemory: applyParentRules(user.Memory, learning.CurrentSubject),
  }
  for _, c := range roster {
    parent.Children = append(parent.Children, prompts.ChildSummary{
      Name:       c.Name,
      ClassLevel: schoolYearLabel(c),
    })
  }

  childCtx := prompts.ChildContext{
    Name:            child.Name,
    ClassLevel:      schoolYearLabel(child),
    NotesFromMemory: applyChildRules(child.Memory),
  }

  history, err := ccs.conversationHistory(ctx, tx, session.ID)
  if err != nil {
    return nil, err
  }

  return &AssembledContext{
    Parent:   parent,
    Child:    childCtx,
    Learning: *learning,
    History:  history,
  }, nil
}

func (ccs *chatContextService) buildLearningContext(ctx context.Context, tx *gorm.DB, userID uuid.UUID, session *types.ChatSession) (*prompts.LearningContext, error) {
  // Only CONCEPT_COACH sessions exist today; every session carries a
  // concept id in its entry-point context.
  conceptID, ok := conceptIDFromContext(session.EntryPointContext)
  if !ok {
    return nil, apperr.Persistence(nil, "could not construct learning context: no concept_id on session %s", session.ID)
  }
  detail, err := ccs.conceptRepo.GetDetail(ctx, tx, conceptID)
  if err != nil {
    if apperr.IsNotFound(err) {
      // Without the active concept there is nothing sensible to send to
      // the model; the exchange cannot proceed.
      return nil, apperr.Persistence(err, "could not construct learning context for concept_id: %d", conceptID)
    }
    return nil, err
  }

  recent, err := ccs.recentConceptChats(ctx, tx, userID, session)
  if err != nil {
    return nil, err
  }

  return &prompts.LearningContext{
    CurrentConceptID:   detail.Concept.ID,
    CurrentConceptName: detail.Concept.ConceptName,
    CurrentSubject:     detail.SubjectName,
    ShortDescription:   detail.Concept.ConceptDescription,
    PracticalValue:     detail.PracticalValue,
    KeyPoints:          detail.KeyPoints,
    CommonBarriers:     detail.CommonBarriers,
    RecentConceptChats: recent,
  }, nil
}

func (ccs *chatContextService) recentConceptChats(ctx context.Context, tx *gorm.DB, userID uuid.UUID, session *types.ChatSession) ([]prompts.ConceptHistoryItem, error) {
  sessions, err := ccs.sessionRepo.RecentConceptSessions(ctx, tx, userID, session.ChildID, session.ID, recentConceptsWindow)
  if err != nil {
    return nil, err
  }
  var ids []int64
  for _, s := range sessions {
    if id, ok := conceptIDFromContext(s.EntryPointContext); ok {
      ids = append(ids, id)
    }
  }
  concepts, err := ccs.conceptRepo.GetByIDs(ctx, tx, ids)
  if err != nil {
    return nil, err
  }
  byID := make(map[int64]*types.Concept, len(concepts))
  for _, c := range concepts {
    byID[c.ID] = c
  }

  now := ccs.now()
  var items []prompts.ConceptHistoryItem
  for _, s := range sessions {
    id, ok := conceptIDFromContext(s.EntryPointContext)
    if !ok {
      continue
    }
    concept, ok := byID[id]
    if !ok {
      continue
    }
    item := prompts.ConceptHistoryItem{
      ConceptID:   id,
      ConceptName: concept.ConceptName,
      ViewedAgo:   timeAgo(s.UpdatedAt, now),
    }
    if concept.Subject != nil {
      item.Subject = concept.Subject.SubjectName
    }
    items = append(items, item)
  }
  return items, nil
}

func (ccs *chatContextService) conversationHistory(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]llm.Message, error) {
  rows, err := ccs.messageRepo.RecentHistory(ctx, tx, sessionID, historyWindow)
  if err != nil {
    return nil, err
  }
  history := make([]llm.Message, 0, len(rows))
  for _, row := range rows {
    // Reasoning traces, usage and feedback are never replayed into the
    // model input.
    history = append(history, llm.Message{
      Role:    strings.ToLower(row.Role),
      Content: row.Content,
    })
  }
  return history, nil
}

func schoolYearLabel(c *types.Child) string {
  if c.SchoolYear != nil {
    return c.SchoolYear.YearName
  }
  return ""
}

// conceptIDFromContext normalizes the concept id carried in an entry-point
// context map. Request decoding hands numbers over as float64; JSONMap
// columns read back from the database yield json.Number.
func conceptIDFromContext(contextData map[string]interface{}) (int64, bool) {
  if contextData == nil {
    return 0, false
  }
  switch v := contextData["concept_id"].(type) {
  case float64:
    return int64(v), true
  case int64:
    return v, true
  case int:
    return int64(v), true
  case json.Number:
    id, err := v.Int64()
    if err != nil {
      return 0, false
    }
    return id, true
  case string:
    id, err := strconv.ParseInt(v, 10, 64)
    if err != nil {
      return 0, false
    }
    return id, true
  default:
    return 0, false
  }
}

// Memory rules. Each rule inspects a free-form memory document and emits
// zero or more prompt instructions. New rules slot in without changing the
// document shape.

type parentMemoryRule func(mem datatypes.JSONMap, currentSubject string) []string

var parentMemoryRules = []parentMemoryRule{challengingSubjectsRule}

func applyParentRules(mem datatypes.JSONMap, currentSubject string) []string {
  var notes []string
  for _, rule := range parentMemoryRules {
    notes = append(notes, rule(mem, currentSubject)...)
  }
  return notes
}

func challengingSubjectsRule(mem datatypes.JSONMap, currentSubject string) []string {
  subjects := memoryStringList(mem, "challenging_subjects")
  if len(subjects) == 0 {
    return nil
  }
  for _, s := range subjects {
    if currentSubject != "" && strings.EqualFold(s, currentSubject) {
      return []string{fmt.Sprintf(
        "The parent finds %s challenging to support. Keep explanations especially simple, concrete and encouraging for this topic.",
        s,
      )}
    }
  }
  return []string{fmt.Sprintf(
    "The parent has mentioned finding these subjects challenging to support: %s. Bear this in mind when the conversation drifts there.",
    strings.Join(subjects, ", "),
  )}
}

type childMemoryRule func(mem datatypes.JSONMap) []string

var childMemoryRules = []childMemoryRule{interestsBridgeRule}

func applyChildRules(mem datatypes.JSONMap) []string {
  var notes []string
  for _, rule := range childMemoryRules {
    notes = append(notes, rule(mem)...)
  }
  return notes
}

func interestsBridgeRule(mem datatypes.JSONMap) []string {
  interests := memoryStringList(mem, "interests")
  if len(interests) == 0 {
    return nil
  }
  return []string{fmt.Sprintf(
    "The child is interested in: %s. Use these as an entry point or bridge into the topic, but still introduce adjacent, unfamiliar material — do not narrow their exposure to only what is already familiar.",
    strings.Join(interests, ", "),
  )}
}

func memoryStringList(mem datatypes.JSONMap, key string) []string {
  if mem == nil {
    return nil
  }
  raw, ok := mem[key].([]interface{})
  if !ok {
    return nil
  }
  var out []string
  for _, v := range raw {
    if s, ok := v.(string); ok && s != "" {
      out = append(out, s)
    }
  }
  return out
}

// timeAgo renders a coarse relative-time string using successive
// day/month/year thresholds rather than calendar arithmetic.
func timeAgo(t, now time.Time) string {
  diff := now.Sub(t)
  days := int(diff.Hours() / 24)

  switch {
  case days > 365:
    return fmt.Sprintf("over %d %s ago", days/365, plural(days/365, "year"))
  case days > 30:
    return fmt.Sprintf("about %d %s ago", days/30, plural(days/30, "month"))
  case days > 0:
    return fmt.Sprintf("%d %s ago", days, plural(days, "day"))
  case diff < time.Hour:
    return "less than an hour ago"
  default:
    hours := int(diff.Hours())
    return fmt.Sprintf("about %d %s ago", hours, plural(hours, "hour"))
  }
}

func plural(n int, unit string) string {
  if n == 1 {
    return unit
  }
  return unit + "s"
}
