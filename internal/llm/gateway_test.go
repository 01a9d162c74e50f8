package llm

import (
  "context"
  "errors"
  "testing"
  "time"

  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"

  "github.com/yayska-org/yayska-backend/internal/logger"
)

// scriptedBackend returns one canned result per call, in order, and records
// the requests it saw.
type scriptedBackend struct {
  results   []scriptedResult
  requests  []Request
}

type scriptedResult struct {
  completion    *Completion
  err           error
}

func (b *scriptedBackend) Complete(ctx context.Context, req Request) (*Completion, error) {
  b.requests = append(b.requests, req)
  if len(b.results) == 0 {
    return nil, errors.New("scripted backend exhausted")
  }
  next := b.results[0]
  b.results = b.results[1:]
  return next.completion, next.err
}

func (b *scriptedBackend) Stream(ctx context.Context, req Request) (<-chan string, <-chan error) {
  b.requests = append(b.requests, req)
  chunks := make(chan string)
  errs := make(chan error, 1)
  close(chunks)
  close(errs)
  return chunks, errs
}

func testGateway(t *testing.T, backend Backend, store Store) (*Gateway, *[]time.Duration) {
  t.Helper()
  log, err := logger.New("development")
  require.NoError(t, err)
  registry := NewRegistry()
  registry.Register("gemini", backend)
  gw := NewGateway(registry, store, log)
  var slept []time.Duration
  gw.sleep = func(d time.Duration) { slept = append(slept, d) }
  return gw, &slept
}

func TestCompleteRetriesRateLimitWithBackoff(t *testing.T) {
  backend := &scriptedBackend{results: []scriptedResult{
    {err: &RateLimitError{Provider: "gemini", Detail: "429"}},
    {err: &RateLimitError{Provider: "gemini", Detail: "429"}},
    {completion: &Completion{Content: "slán"}},
  }}
  gw, slept := testGateway(t, backend, nil)

  got, err := gw.Complete(context.Background(), Request{
    Model:    GeminiFlash25,
    Messages: []Message{{Role: "user", Content: "hi"}},
  })
  require.NoError(t, err)
  assert.Equal(t, "slán", got.Content)
  assert.Len(t, backend.requests, 3)
  assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, *slept)
}

func TestCompleteGivesUpAfterThreeAttempts(t *testing.T) {
  backend := &scriptedBackend{results: []scriptedResult{
    {err: errors.New("connection reset")},
    {err: errors.New("connection reset")},
    {err: errors.New("connection reset")},
    {completion: &Completion{Content: "never reached"}},
  }}
  gw, slept := testGateway(t, backend, nil)

  _, err := gw.Complete(context.Background(), Request{Model: GeminiFlash25})
  require.Error(t, err)
  assert.Contains(t, err.Error(), "after 3 attempts")
  assert.Len(t, backend.requests, 3)
  // transient failures back off a fixed 500ms between attempts
  assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, *slept)
}

func TestCompleteRetriesSchemaFailuresHotter(t *testing.T) {
  schema := &ResponseSchema{Name: "concept_card", Schema: map[string]interface{}{"type": "object"}}
  backend := &scriptedBackend{results: []scriptedResult{
    {completion: &Completion{Content: "not json at all"}},
    {completion: &Completion{Content: "still not json"}},
    {completion: &Completion{Content: `{"ok": true}`}},
  }}
  gw, slept := testGateway(t, backend, nil)

  got, err := gw.Complete(context.Background(), Request{
    Model:          GeminiFlash25,
    Temperature:    0.5,
    ResponseSchema: schema,
  })
  require.NoError(t, err)
  assert.Equal(t, `{"ok": true}`, got.Content)
  require.Len(t, backend.requests, 3)
  assert.InDelta(t, 0.5, backend.requests[0].Temperature, 1e-9)
  assert.InDelta(t, 0.7, backend.requests[1].Temperature, 1e-9)
  assert.InDelta(t, 0.9, backend.requests[2].Temperature, 1e-9)
  // schema retries resample immediately, no backoff
  assert.Empty(t, *slept)
}

func TestCompleteSchemaTemperatureCapped(t *testing.T) {
  schema := &ResponseSchema{Name: "concept_card", Schema: map[string]interface{}{"type": "object"}}
  backend := &scriptedBackend{results: []scriptedResult{
    {completion: &Completion{Content: "nope"}},
    {completion: &Completion{Content: "nope"}},
    {completion: &Completion{Content: `{}`}},
  }}
  gw, _ := testGateway(t, backend, nil)

  _, err := gw.Complete(context.Background(), Request{
    Model:          GeminiFlash25,
    Temperature:    0.95,
    ResponseSchema: schema,
  })
  require.NoError(t, err)
  require.Len(t, backend.requests, 3)
  assert.InDelta(t, 1.0, backend.requests[1].Temperature, 1e-9)
  assert.InDelta(t, 1.0, backend.requests[2].Temperature, 1e-9)
}

func TestCompleteServesFromCache(t *testing.T) {
  backend := &scriptedBackend{results: []scriptedResult{
    {completion: &Completion{Content: "first answer", Reasoning: "thinking"}},
  }}
  gw, _ := testGateway(t, backend, NewMemoryStore())

  req := Request{
    Model:       GeminiFlash25,
    Messages:    []Message{{Role: "user", Content: "what is 2+2"}},
    Temperature: 0.5,
    CacheName:   "chat",
  }

  first, err := gw.Complete(context.Background(), req)
  require.NoError(t, err)
  assert.False(t, first.Cached)

  second, err := gw.Complete(context.Background(), req)
  require.NoError(t, err)
  assert.True(t, second.Cached)
  assert.Equal(t, "first answer", second.Content)
  assert.Equal(t, "thinking", second.Reasoning)
  assert.Equal(t, map[string]interface{}{"cached": true}, second.Usage)
  assert.Len(t, backend.requests, 1)
}

func TestCompleteCacheNamespacesAreIsolated(t *testing.T) {
  backend := &scriptedBackend{results: []scriptedResult{
    {completion: &Completion{Content: "one"}},
    {completion: &Completion{Content: "two"}},
  }}
  gw, _ := testGateway(t, backend, NewMemoryStore())

  req := Request{
    Model:    GeminiFlash25,
    Messages: []Message{{Role: "user", Content: "same question"}},
  }

  req.CacheName = "chat"
  _, err := gw.Complete(context.Background(), req)
  require.NoError(t, err)

  req.CacheName = "concepts"
  got, err := gw.Complete(context.Background(), req)
  require.NoError(t, err)
  assert.False(t, got.Cached)
  assert.Equal(t, "two", got.Content)
  assert.Len(t, backend.requests, 2)
}

func TestCompleteNoCacheNameSkipsStore(t *testing.T) {
  backend := &scriptedBackend{results: []scriptedResult{
    {completion: &Completion{Content: "one"}},
    {completion: &Completion{Content: "two"}},
  }}
  gw, _ := testGateway(t, backend, NewMemoryStore())

  req := Request{Model: GeminiFlash25, Messages: []Message{{Role: "user", Content: "q"}}}
  _, err := gw.Complete(context.Background(), req)
  require.NoError(t, err)
  got, err := gw.Complete(context.Background(), req)
  require.NoError(t, err)
  assert.Equal(t, "two", got.Content)
  assert.Len(t, backend.requests, 2)
}

func TestStreamUnknownProvider(t *testing.T) {
  gw, _ := testGateway(t, &scriptedBackend{}, nil)

  chunks, errs := gw.Stream(context.Background(), Request{Model: Model("nosuch/model")})
  _, open := <-chunks
  assert.False(t, open)
  err := <-errs
  require.Error(t, err)
}
