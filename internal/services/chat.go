package services

import (
  "context"
  "fmt"
  "strings"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/yayska-org/yayska-backend/internal/apperr"
  "github.com/yayska-org/yayska-backend/internal/llm"
  "github.com/yayska-org/yayska-backend/internal/logger"
  "github.com/yayska-org/yayska-backend/internal/prompts"
  "github.com/yayska-org/yayska-backend/internal/repos"
  "github.com/yayska-org/yayska-backend/internal/requestdata"
  "github.com/yayska-org/yayska-backend/internal/types"
)

const (
  defaultSessionTitle     = "New Chat"
  chatTemperature         = 0.5
  chatMaxTokens           = 4096
  streamFinalizeTimeout   = 15 * time.Second
)

type SessionList struct {
  Items   []*types.ChatSession    `json:"items"`
  Total   int64                   `json:"total"`
}

type ChatService interface {
  // Session level
  FindOrCreateSession(ctx context.Context, childID uuid.UUID, entryPoint types.EntryPointType, contextData map[string]interface{}) (*types.ChatSession, error)
  GetUserSessions(ctx context.Context, limit, offset int) (*SessionList, error)

  // Message level
  GetSessionMessages(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*types.ChatMessage, error)
  SendUserMessage(ctx context.Context, sessionID uuid.UUID, content string) (*types.ChatMessage, error)
  StreamUserMessage(ctx context.Context, sessionID uuid.UUID, content string) (<-chan string, error)
  UpdateMessageFeedback(ctx context.Context, sessionID, messageID uuid.UUID, vote int, text *string) (*types.ChatMessage, error)
}

type chatService struct {
  db              *gorm.DB
  log             *logger.Logger
  sessionRepo     repos.ChatSessionRepo
  messageRepo     repos.ChatMessageRepo
  conceptRepo     repos.ConceptRepo
  contextSvc      ChatContextService
  gateway         *llm.Gateway
  model           llm.Model
}

func NewChatService(
  db *gorm.DB,
  log *logger.Logger,
  sessionRepo repos.ChatSessionRepo,
  messageRepo repos.ChatMessageRepo,
  conceptRepo repos.ConceptRepo,
  contextSvc ChatContextService,
  gateway *llm.Gateway,
  model llm.Model,
) ChatService {
  return &chatService{
    db:          db,
    log:         log.With("service", "ChatService"),
    sessionRepo: sessionRepo,
    messageRepo: messageRepo,
    conceptRepo: conceptRepo,
    contextSvc:  contextSvc,
    gateway:     gateway,
    model:       model,
  }
}

//----------------------------------------------------------------------------
// Session resolution
//----------------------------------------------------------------------------

func (cs *chatService) FindOrCreateSession(ctx context.Context, childID uuid.UUID, entryPoint types.EntryPointType, contextData map[string]interface{}) (*types.ChatSession, error) {
  userID, err := callerID(ctx)
  if err != nil {
    return nil, err
  }
  if !entryPoint.Valid() {
    return nil, apperr.Validation("unknown entry point type %q", entryPoint)
  }

  var sessionID uuid.UUID
  if entryPoint.SupportsDedup() {
    conceptKey := repos.ConceptKey(contextData)
    if conceptKey == "" {
      return nil, apperr.Validation("concept_id is required for %s entry point", entryPoint)
    }
    existing, err := cs.sessionRepo.FindDedupSession(ctx, nil, userID, childID, entryPoint, conceptKey)
    if err != nil {
      return nil, err
    }
    if existing != nil {
      sessionID = existing.ID
    }
  }

  if sessionID == uuid.Nil {
    created, err := cs.sessionRepo.CreateSession(ctx, nil, &types.ChatSession{
      UserID:            userID,
      ChildID:           childID,
      Title:             cs.deriveTitle(ctx, entryPoint, contextData),
      EntryPointType:    entryPoint,
      EntryPointContext: contextData,
    })
    if err != nil {
      return nil, err
    }
    sessionID = created.ID
  }

  // Re-read the full row so the caller always observes a fully populated
  // record, whichever path produced the id.
  session, err := cs.sessionRepo.GetSessionByID(ctx, nil, sessionID)
  if err != nil {
    if apperr.IsNotFound(err) {
      return nil, apperr.Persistence(err, "chat session not found after creation")
    }
    return nil, err
  }
  return session, nil
}

func (cs *chatService) deriveTitle(ctx context.Context, entryPoint types.EntryPointType, contextData map[string]interface{}) string {
  if entryPoint == types.EntryPointConceptCoach {
    if conceptID, ok := conceptIDFromContext(contextData); ok {
      if concept, err := cs.conceptRepo.GetByID(ctx, nil, conceptID); err == nil {
        return fmt.Sprintf("Coaching on %s", concept.ConceptName)
      }
    }
  }
  return defaultSessionTitle
}

func (cs *chatService) GetUserSessions(ctx context.Context, limit, offset int) (*SessionList, error) {
  userID, err := callerID(ctx)
  if err != nil {
    return nil, err
  }
  sessions, total, err := cs.sessionRepo.GetUserSessions(ctx, nil, userID, limit, offset)
  if err != nil {
    return nil, err
  }
  return &SessionList{Items: sessions, Total: total}, nil
}

func (cs *chatService) GetSessionMessages(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*types.ChatMessage, error) {
  userID, err := callerID(ctx)
  if err != nil {
    return nil, err
  }
  if _, err := cs.sessionRepo.GetSessionForUser(ctx, nil, sessionID, userID); err != nil {
    return nil, err
  }
  return cs.messageRepo.GetBySessionID(ctx, nil, sessionID, limit, offset)
}

//----------------------------------------------------------------------------
// Buffered exchange
//----------------------------------------------------------------------------

func (cs *chatService) SendUserMessage(ctx context.Context, sessionID uuid.UUID, content string) (*types.ChatMessage, error) {
  userID, err := callerID(ctx)
  if err != nil {
    return nil, err
  }
  session, err := cs.sessionRepo.GetSessionForUser(ctx, nil, sessionID, userID)
  if err != nil {
    return nil, err
  }

  req, snapshot, err := cs.prepareModelRequest(ctx, userID, session, content)
  if err != nil {
    return nil, err
  }

  completion, err := cs.gateway.Complete(ctx, *req)
  if err != nil {
    return nil, apperr.Upstream(err, "model backend failed")
  }

  usage := enrichUsage(completion.Usage, completion.Content)
  var assistant *types.ChatMessage
  err = cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    if _, err := cs.messageRepo.CreateMessage(ctx, tx, &types.ChatMessage{
      SessionID: sessionID,
      Role:      types.ChatMessageRoleUser,
      Content:   content,
    }); err != nil {
      return err
    }
    msg := &types.ChatMessage{
      SessionID:       sessionID,
      Role:            types.ChatMessageRoleAssistant,
      Content:         completion.Content,
      ContextSnapshot: snapshot,
      LLMUsage:        usage,
    }
    if completion.Reasoning != "" {
      reasoning := completion.Reasoning
      msg.Reasoning = &reasoning
    }
    if _, err := cs.messageRepo.CreateMessage(ctx, tx, msg); err != nil {
      return err
    }
    assistant = msg
    return cs.sessionRepo.TouchUpdatedAt(ctx, tx, sessionID)
  })
  if err != nil {
    return nil, apperr.Persistence(err, "failed to persist chat exchange")
  }
  return assistant, nil
}

//----------------------------------------------------------------------------
// Streaming exchange
//----------------------------------------------------------------------------

// StreamUserMessage emits the assistant reply as raw text fragments. The
// returned channel carries content only; persistence happens after the
// stream drains, on an independently scoped unit of work (see finalizer).
func (cs *chatService) StreamUserMessage(ctx context.Context, sessionID uuid.UUID, content string) (<-chan string, error) {
  userID, err := callerID(ctx)
  if err != nil {
    return nil, err
  }
  session, err := cs.sessionRepo.GetSessionForUser(ctx, nil, sessionID, userID)
  if err != nil {
    return nil, err
  }

  req, snapshot, err := cs.prepareModelRequest(ctx, userID, session, content)
  if err != nil {
    return nil, err
  }

  chunks, errs := cs.gateway.Stream(ctx, *req)
  out := make(chan string)
  go func() {
    var accumulated strings.Builder
    // Finalize before closing out so a consumer that drains the channel
    // observes the persisted record. Runs on cancellation too, persisting
    // whatever was produced up to that point.
    defer close(out)
    defer func() {
      cs.finalizeStreamedExchange(sessionID, content, accumulated.String(), snapshot)
    }()

    for chunk := range chunks {
      accumulated.WriteString(chunk)
      select {
      case out <- chunk:
      case <-ctx.Done():
        cs.log.Warn("stream consumer went away, persisting partial content",
          "sessionID", sessionID, "chars", accumulated.Len())
        return
      }
    }
    if err := <-errs; err != nil {
      cs.log.Error("model stream ended with error", "error", err, "sessionID", sessionID)
    }
  }()
  return out, nil
}

// finalizeStreamedExchange persists a streamed exchange after the response
// stream has completed. The request-scoped context (and with it the handle
// the endpoint used) may already be torn down by now, so this always runs on
// a fresh context against the root connection pool. Failures can no longer
// reach the client and are logged only.
func (cs *chatService) finalizeStreamedExchange(sessionID uuid.UUID, userContent, assistantContent string, snapshot map[string]interface{}) {
  if assistantContent == "" {
    cs.log.Warn("stream produced no content, skipping persistence", "sessionID", sessionID)
    return
  }
  ctx, cancel := context.WithTimeout(context.Background(), streamFinalizeTimeout)
  defer cancel()

  // Token accounting is unavailable in streaming mode; record what is
  // knowable post hoc.
  usage := enrichUsage(map[string]interface{}{"streamed": true}, assistantContent)

  err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    if _, err := cs.messageRepo.CreateMessage(ctx, tx, &types.ChatMessage{
      SessionID: sessionID,
      Role:      types.ChatMessageRoleUser,
      Content:   userContent,
    }); err != nil {
      return err
    }
    if _, err := cs.messageRepo.CreateMessage(ctx, tx, &types.ChatMessage{
      SessionID:       sessionID,
      Role:            types.ChatMessageRoleAssistant,
      Content:         assistantContent,
      ContextSnapshot: snapshot,
      LLMUsage:        usage,
    }); err != nil {
      return err
    }
    return cs.sessionRepo.TouchUpdatedAt(ctx, tx, sessionID)
  })
  if err != nil {
    cs.log.Error("failed to persist streamed chat exchange", "error", err, "sessionID", sessionID)
  }
}

//----------------------------------------------------------------------------
// Feedback
//----------------------------------------------------------------------------

func (cs *chatService) UpdateMessageFeedback(ctx context.Context, sessionID, messageID uuid.UUID, vote int, text *string) (*types.ChatMessage, error) {
  userID, err := callerID(ctx)
  if err != nil {
    return nil, err
  }
  if vote < -1 || vote > 1 {
    return nil, apperr.Validation("vote must be -1, 0 or 1")
  }
  msg, err := cs.messageRepo.GetAssistantMessageForUser(ctx, nil, messageID, sessionID, userID)
  if err != nil {
    return nil, err
  }
  if msg.FeedbackThumbs != nil {
    return nil, apperr.Validation("feedback has already been recorded for message %s", messageID)
  }
  return cs.messageRepo.UpdateFeedback(ctx, nil, messageID, vote, text)
}

//----------------------------------------------------------------------------
// Shared plumbing
//----------------------------------------------------------------------------

// prepareModelRequest assembles context, renders the system prompt and
// returns the gateway request along with the snapshot persisted next to the
// assistant reply.
func (cs *chatService) prepareModelRequest(ctx context.Context, userID uuid.UUID, session *types.ChatSession, content string) (*llm.Request, map[string]interface{}, error) {
  assembled, err := cs.contextSvc.Build(ctx, nil, userID, session)
  if err != nil {
    return nil, nil, err
  }
  systemPrompt := prompts.ConceptCoachSystemPrompt(assembled.Parent, assembled.Child, assembled.Learning)

  messages := append(assembled.History, llm.Message{
    Role:    strings.ToLower(types.ChatMessageRoleUser),
    Content: content,
  })
  req := &llm.Request{
    Model:        cs.model,
    SystemPrompt: systemPrompt,
    Messages:     messages,
    Temperature:  chatTemperature,
    MaxTokens:    chatMaxTokens,
  }

  wireMessages := make([]interface{}, 0, len(messages))
  for _, m := range messages {
    wireMessages = append(wireMessages, map[string]interface{}{"role": m.Role, "content": m.Content})
  }
  snapshot := map[string]interface{}{
    "model":         string(req.Model),
    "system_prompt": req.SystemPrompt,
    "messages":      wireMessages,
    "temperature":   req.Temperature,
    "max_tokens":    req.MaxTokens,
  }
  return req, snapshot, nil
}

func enrichUsage(usage map[string]interface{}, content string) map[string]interface{} {
  out := make(map[string]interface{}, len(usage)+2)
  for k, v := range usage {
    out[k] = v
  }
  out["response_chars"] = len(content)
  out["response_words"] = len(strings.Fields(content))
  return out
}

func callerID(ctx context.Context) (uuid.UUID, error) {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.UserID == uuid.Nil {
    return uuid.Nil, apperr.Validation("no authenticated user on request")
  }
  return rd.UserID, nil
}
