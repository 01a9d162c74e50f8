package services

import (
  "context"
  "encoding/json"
  "errors"
  "strings"
  "testing"

  "github.com/google/uuid"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"
  "gorm.io/gorm"

  "github.com/yayska-org/yayska-backend/internal/apperr"
  "github.com/yayska-org/yayska-backend/internal/llm"
  "github.com/yayska-org/yayska-backend/internal/repos"
  "github.com/yayska-org/yayska-backend/internal/types"
)

// stubBackend answers every completion with a fixed reply and streams a
// fixed chunk sequence. It records the last request it received.
type stubBackend struct {
  reply         string
  reasoning     string
  streamChunks  []string
  streamErr     error
  completeErr   error
  lastRequest   *llm.Request
}

func (b *stubBackend) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
  b.lastRequest = &req
  if b.completeErr != nil {
    return nil, b.completeErr
  }
  return &llm.Completion{
    Content:   b.reply,
    Reasoning: b.reasoning,
    Usage:     map[string]interface{}{"total_tokens": float64(42)},
  }, nil
}

func (b *stubBackend) Stream(ctx context.Context, req llm.Request) (<-chan string, <-chan error) {
  b.lastRequest = &req
  chunks := make(chan string)
  errs := make(chan error, 1)
  go func() {
    defer close(chunks)
    defer close(errs)
    for _, c := range b.streamChunks {
      chunks <- c
    }
    if b.streamErr != nil {
      errs <- b.streamErr
    }
  }()
  return chunks, errs
}

// usageInt reads a numeric usage field, which comes back from a JSONMap
// column as json.Number.
func usageInt(t *testing.T, usage map[string]interface{}, key string) int64 {
  t.Helper()
  n, ok := usage[key].(json.Number)
  require.True(t, ok, "usage[%q]=%v (%T)", key, usage[key], usage[key])
  v, err := n.Int64()
  require.NoError(t, err)
  return v
}

type chatFixture struct {
  db          *gorm.DB
  svc         ChatService
  backend     *stubBackend
  messageRepo repos.ChatMessageRepo
  sessionRepo repos.ChatSessionRepo
}

func newChatFixture(t *testing.T) *chatFixture {
  t.Helper()
  db := openTestDB(t)
  log := testLogger(t)

  backend := &stubBackend{reply: "A guiding question for you."}
  registry := llm.NewRegistry()
  registry.Register("gemini", backend)
  gateway := llm.NewGateway(registry, nil, log)

  userRepo := repos.NewUserRepo(db, log)
  childRepo := repos.NewChildRepo(db, log)
  conceptRepo := repos.NewConceptRepo(db, log)
  sessionRepo := repos.NewChatSessionRepo(db, log)
  messageRepo := repos.NewChatMessageRepo(db, log)
  contextSvc := NewChatContextService(log, userRepo, childRepo, conceptRepo, sessionRepo, messageRepo)

  svc := NewChatService(db, log, sessionRepo, messageRepo, conceptRepo, contextSvc, gateway, llm.GeminiFlash25)
  return &chatFixture{
    db:          db,
    svc:         svc,
    backend:     backend,
    messageRepo: messageRepo,
    sessionRepo: sessionRepo,
  }
}

func TestFindOrCreateSessionIsIdempotent(t *testing.T) {
  f := newChatFixture(t)
  user := seedUser(t, f.db, nil)
  child := seedChild(t, f.db, user.ID, nil)
  seedConceptWithMetadata(t, f.db, 10, "Fractions", "Mathematics")
  ctx := authedCtx(user.ID, user.Email)

  contextData := map[string]interface{}{"concept_id": float64(10)}
  first, err := f.svc.FindOrCreateSession(ctx, child.ID, types.EntryPointConceptCoach, contextData)
  require.NoError(t, err)
  assert.Equal(t, "Coaching on Fractions", first.Title)

  second, err := f.svc.FindOrCreateSession(ctx, child.ID, types.EntryPointConceptCoach, contextData)
  require.NoError(t, err)
  assert.Equal(t, first.ID, second.ID, "same concept must reuse the session")

  // a different concept starts a fresh session
  seedConceptWithMetadata(t, f.db, 20, "Photosynthesis", "Science")
  third, err := f.svc.FindOrCreateSession(ctx, child.ID, types.EntryPointConceptCoach, map[string]interface{}{"concept_id": float64(20)})
  require.NoError(t, err)
  assert.NotEqual(t, first.ID, third.ID)
}

func TestFindOrCreateSessionNumericSpellingsCollapse(t *testing.T) {
  f := newChatFixture(t)
  user := seedUser(t, f.db, nil)
  child := seedChild(t, f.db, user.ID, nil)
  seedConceptWithMetadata(t, f.db, 10, "Fractions", "Mathematics")
  ctx := authedCtx(user.ID, user.Email)

  first, err := f.svc.FindOrCreateSession(ctx, child.ID, types.EntryPointConceptCoach, map[string]interface{}{"concept_id": float64(10)})
  require.NoError(t, err)
  second, err := f.svc.FindOrCreateSession(ctx, child.ID, types.EntryPointConceptCoach, map[string]interface{}{"concept_id": "10"})
  require.NoError(t, err)
  assert.Equal(t, first.ID, second.ID)
}

func TestFindOrCreateSessionRequiresConceptID(t *testing.T) {
  f := newChatFixture(t)
  user := seedUser(t, f.db, nil)
  child := seedChild(t, f.db, user.ID, nil)
  ctx := authedCtx(user.ID, user.Email)

  _, err := f.svc.FindOrCreateSession(ctx, child.ID, types.EntryPointConceptCoach, map[string]interface{}{})
  require.Error(t, err)
  assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestFindOrCreateSessionRejectsUnknownEntryPoint(t *testing.T) {
  f := newChatFixture(t)
  user := seedUser(t, f.db, nil)
  child := seedChild(t, f.db, user.ID, nil)
  ctx := authedCtx(user.ID, user.Email)

  _, err := f.svc.FindOrCreateSession(ctx, child.ID, types.EntryPointType("HOMEWORK_HELPER"), nil)
  require.Error(t, err)
  assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSendUserMessagePersistsExchange(t *testing.T) {
  f := newChatFixture(t)
  f.backend.reasoning = "thought about it"
  user := seedUser(t, f.db, nil)
  child := seedChild(t, f.db, user.ID, nil)
  seedConceptWithMetadata(t, f.db, 10, "Fractions", "Mathematics")
  session := seedSession(t, f.db, user.ID, child.ID, 10)
  ctx := authedCtx(user.ID, user.Email)

  assistant, err := f.svc.SendUserMessage(ctx, session.ID, "How do I explain fractions?")
  require.NoError(t, err)
  assert.Equal(t, "A guiding question for you.", assistant.Content)
  require.NotNil(t, assistant.Reasoning)
  assert.Equal(t, "thought about it", *assistant.Reasoning)

  msgs, err := f.messageRepo.GetBySessionID(ctx, nil, session.ID, 10, 0)
  require.NoError(t, err)
  require.Len(t, msgs, 2)
  assert.Equal(t, types.ChatMessageRoleUser, msgs[0].Role)
  assert.Equal(t, "How do I explain fractions?", msgs[0].Content)
  assert.Equal(t, int64(1), msgs[0].MessageOrder)
  assert.Equal(t, types.ChatMessageRoleAssistant, msgs[1].Role)
  assert.Equal(t, int64(2), msgs[1].MessageOrder)

  // usage is enriched with derived response stats
  assert.Equal(t, int64(42), usageInt(t, msgs[1].LLMUsage, "total_tokens"))
  assert.Equal(t, int64(len("A guiding question for you.")), usageInt(t, msgs[1].LLMUsage, "response_chars"))

  // the snapshot captures the exact request
  require.NotNil(t, msgs[1].ContextSnapshot)
  assert.Equal(t, string(llm.GeminiFlash25), msgs[1].ContextSnapshot["model"])
  assert.Contains(t, msgs[1].ContextSnapshot["system_prompt"], "You are Yay")
}

func TestSendUserMessageSystemPromptCarriesContext(t *testing.T) {
  f := newChatFixture(t)
  user := seedUser(t, f.db, nil)
  child := seedChild(t, f.db, user.ID, nil)
  seedConceptWithMetadata(t, f.db, 10, "Fractions", "Mathematics")
  session := seedSession(t, f.db, user.ID, child.ID, 10)
  ctx := authedCtx(user.ID, user.Email)

  _, err := f.svc.SendUserMessage(ctx, session.ID, "hello")
  require.NoError(t, err)

  require.NotNil(t, f.backend.lastRequest)
  assert.Contains(t, f.backend.lastRequest.SystemPrompt, "Fractions")
  assert.Contains(t, f.backend.lastRequest.SystemPrompt, "CONTEXT FOR THIS CONVERSATION:")
  require.NotEmpty(t, f.backend.lastRequest.Messages)
  last := f.backend.lastRequest.Messages[len(f.backend.lastRequest.Messages)-1]
  assert.Equal(t, "user", last.Role)
  assert.Equal(t, "hello", last.Content)
}

func TestSendUserMessageUpstreamFailure(t *testing.T) {
  f := newChatFixture(t)
  f.backend.completeErr = errors.New("backend on fire")
  user := seedUser(t, f.db, nil)
  child := seedChild(t, f.db, user.ID, nil)
  seedConceptWithMetadata(t, f.db, 10, "Fractions", "Mathematics")
  session := seedSession(t, f.db, user.ID, child.ID, 10)
  ctx := authedCtx(user.ID, user.Email)

  _, err := f.svc.SendUserMessage(ctx, session.ID, "hello")
  require.Error(t, err)
  assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))

  // a failed exchange persists nothing
  msgs, err := f.messageRepo.GetBySessionID(ctx, nil, session.ID, 10, 0)
  require.NoError(t, err)
  assert.Empty(t, msgs)
}

func TestSendUserMessageForeignSession(t *testing.T) {
  f := newChatFixture(t)
  owner := seedUser(t, f.db, nil)
  stranger := seedUser(t, f.db, nil)
  child := seedChild(t, f.db, owner.ID, nil)
  seedConceptWithMetadata(t, f.db, 10, "Fractions", "Mathematics")
  session := seedSession(t, f.db, owner.ID, child.ID, 10)

  _, err := f.svc.SendUserMessage(authedCtx(stranger.ID, stranger.Email), session.ID, "hello")
  assert.True(t, apperr.IsNotFound(err))
}

func TestStreamUserMessagePersistsWhatWasStreamed(t *testing.T) {
  f := newChatFixture(t)
  f.backend.streamChunks = []string{"A guid", "ing quest", "ion."}
  user := seedUser(t, f.db, nil)
  child := seedChild(t, f.db, user.ID, nil)
  seedConceptWithMetadata(t, f.db, 10, "Fractions", "Mathematics")
  session := seedSession(t, f.db, user.ID, child.ID, 10)
  ctx := authedCtx(user.ID, user.Email)

  out, err := f.svc.StreamUserMessage(ctx, session.ID, "How do I explain fractions?")
  require.NoError(t, err)

  var streamed strings.Builder
  for chunk := range out {
    streamed.WriteString(chunk)
  }
  assert.Equal(t, "A guiding question.", streamed.String())

  // persistence completes before the output channel closes
  msgs, err := f.messageRepo.GetBySessionID(ctx, nil, session.ID, 10, 0)
  require.NoError(t, err)
  require.Len(t, msgs, 2)
  assert.Equal(t, "How do I explain fractions?", msgs[0].Content)
  assert.Equal(t, streamed.String(), msgs[1].Content)
  assert.Equal(t, true, msgs[1].LLMUsage["streamed"])
}

func TestStreamUserMessageEmptyStreamPersistsNothing(t *testing.T) {
  f := newChatFixture(t)
  f.backend.streamChunks = nil
  f.backend.streamErr = errors.New("stream fell over before first token")
  user := seedUser(t, f.db, nil)
  child := seedChild(t, f.db, user.ID, nil)
  seedConceptWithMetadata(t, f.db, 10, "Fractions", "Mathematics")
  session := seedSession(t, f.db, user.ID, child.ID, 10)
  ctx := authedCtx(user.ID, user.Email)

  out, err := f.svc.StreamUserMessage(ctx, session.ID, "hello")
  require.NoError(t, err)
  for range out {
  }

  msgs, err := f.messageRepo.GetBySessionID(ctx, nil, session.ID, 10, 0)
  require.NoError(t, err)
  assert.Empty(t, msgs, "a stream that produced nothing must not persist a half exchange")
}

func TestUpdateMessageFeedbackSetOnce(t *testing.T) {
  f := newChatFixture(t)
  user := seedUser(t, f.db, nil)
  child := seedChild(t, f.db, user.ID, nil)
  seedConceptWithMetadata(t, f.db, 10, "Fractions", "Mathematics")
  session := seedSession(t, f.db, user.ID, child.ID, 10)
  ctx := authedCtx(user.ID, user.Email)

  assistant, err := f.svc.SendUserMessage(ctx, session.ID, "hello")
  require.NoError(t, err)

  text := "very helpful"
  updated, err := f.svc.UpdateMessageFeedback(ctx, session.ID, assistant.ID, 1, &text)
  require.NoError(t, err)
  require.NotNil(t, updated.FeedbackThumbs)
  assert.Equal(t, 1, *updated.FeedbackThumbs)

  _, err = f.svc.UpdateMessageFeedback(ctx, session.ID, assistant.ID, -1, nil)
  require.Error(t, err)
  assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestUpdateMessageFeedbackValidation(t *testing.T) {
  f := newChatFixture(t)
  user := seedUser(t, f.db, nil)
  child := seedChild(t, f.db, user.ID, nil)
  seedConceptWithMetadata(t, f.db, 10, "Fractions", "Mathematics")
  session := seedSession(t, f.db, user.ID, child.ID, 10)
  ctx := authedCtx(user.ID, user.Email)

  _, err := f.svc.UpdateMessageFeedback(ctx, session.ID, uuid.New(), 2, nil)
  require.Error(t, err)
  assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

  _, err = f.svc.UpdateMessageFeedback(ctx, session.ID, uuid.New(), 1, nil)
  assert.True(t, apperr.IsNotFound(err))
}

func TestUpdateMessageFeedbackOnlyAssistantMessages(t *testing.T) {
  f := newChatFixture(t)
  user := seedUser(t, f.db, nil)
  child := seedChild(t, f.db, user.ID, nil)
  seedConceptWithMetadata(t, f.db, 10, "Fractions", "Mathematics")
  session := seedSession(t, f.db, user.ID, child.ID, 10)
  ctx := authedCtx(user.ID, user.Email)

  _, err := f.svc.SendUserMessage(ctx, session.ID, "hello")
  require.NoError(t, err)
  msgs, err := f.messageRepo.GetBySessionID(ctx, nil, session.ID, 10, 0)
  require.NoError(t, err)

  _, err = f.svc.UpdateMessageFeedback(ctx, session.ID, msgs[0].ID, 1, nil)
  assert.True(t, apperr.IsNotFound(err), "user-authored messages take no feedback")
}

func TestGetUserSessionsScopedToCaller(t *testing.T) {
  f := newChatFixture(t)
  a := seedUser(t, f.db, nil)
  b := seedUser(t, f.db, nil)
  childA := seedChild(t, f.db, a.ID, nil)
  childB := seedChild(t, f.db, b.ID, nil)
  seedSession(t, f.db, a.ID, childA.ID, 10)
  seedSession(t, f.db, b.ID, childB.ID, 10)

  list, err := f.svc.GetUserSessions(authedCtx(a.ID, a.Email), 20, 0)
  require.NoError(t, err)
  assert.Equal(t, int64(1), list.Total)
  require.Len(t, list.Items, 1)
  assert.Equal(t, a.ID, list.Items[0].UserID)
}

func TestGetSessionMessagesRequiresOwnership(t *testing.T) {
  f := newChatFixture(t)
  owner := seedUser(t, f.db, nil)
  stranger := seedUser(t, f.db, nil)
  child := seedChild(t, f.db, owner.ID, nil)
  session := seedSession(t, f.db, owner.ID, child.ID, 10)

  _, err := f.svc.GetSessionMessages(authedCtx(stranger.ID, stranger.Email), session.ID, 20, 0)
  assert.True(t, apperr.IsNotFound(err))
}

func TestCallerRequired(t *testing.T) {
  f := newChatFixture(t)
  _, err := f.svc.GetUserSessions(context.Background(), 20, 0)
  require.Error(t, err)
  assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
