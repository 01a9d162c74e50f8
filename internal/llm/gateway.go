package llm

import (
  "context"
  "encoding/json"
  "errors"
  "fmt"
  "time"

  "github.com/yayska-org/yayska-backend/internal/logger"
)

const (
  maxAttempts         = 3
  rateLimitBaseDelay  = 1 * time.Second
  transientDelay      = 500 * time.Millisecond
  schemaRetryTempBump = 0.2
)

// Gateway fronts all model backends with retry, backoff and optional
// content-addressed caching. It is the only component that talks to model
// providers.
type Gateway struct {
  registry    *Registry
  store       Store
  log         *logger.Logger

  // sleep is swappable so retry timing is testable.
  sleep       func(time.Duration)
}

func NewGateway(registry *Registry, store Store, log *logger.Logger) *Gateway {
  return &Gateway{
    registry: registry,
    store:    store,
    log:      log.With("service", "LLMGateway"),
    sleep:    time.Sleep,
  }
}

func (g *Gateway) Complete(ctx context.Context, req Request) (*Completion, error) {
  var key string
  if req.CacheName != "" && g.store != nil {
    var err error
    key, err = cacheKey(req)
    if err != nil {
      g.log.Warn("failed to build cache key", "error", err)
    } else if cached := g.cacheGet(ctx, req.CacheName, key); cached != nil {
      return cached, nil
    }
  }

  backend, err := g.registry.Get(req.Model)
  if err != nil {
    return nil, err
  }

  temperature := req.Temperature
  var lastErr error
  for attempt := 0; attempt < maxAttempts; attempt++ {
    attemptReq := req
    attemptReq.Temperature = temperature

    completion, err := backend.Complete(ctx, attemptReq)
    if err == nil && req.ResponseSchema != nil {
      if vErr := validateAgainstSchema(completion.Content, req.ResponseSchema); vErr != nil {
        err = vErr
      }
    }
    if err == nil {
      if key != "" {
        g.cacheSet(ctx, req.CacheName, key, completion)
      }
      return completion, nil
    }
    lastErr = err
    if attempt == maxAttempts-1 {
      break
    }

    var (
      rateLimitErr  *RateLimitError
      schemaErr     *SchemaError
    )
    switch {
    case errors.As(err, &schemaErr):
      // A different sample is more likely to parse than the same one.
      temperature = minFloat(temperature+schemaRetryTempBump, 1.0)
      g.log.Warn("model output failed schema validation, retrying hotter",
        "attempt", attempt+1, "temperature", temperature, "error", err)
    case errors.As(err, &rateLimitErr):
      delay := rateLimitBaseDelay << uint(attempt)
      g.log.Warn("model backend rate limited, backing off",
        "attempt", attempt+1, "delay", delay, "error", err)
      g.sleep(delay)
    default:
      g.log.Warn("model call failed, retrying", "attempt", attempt+1, "error", err)
      g.sleep(transientDelay)
    }
  }
  return nil, fmt.Errorf("model call failed after %d attempts: %w", maxAttempts, lastErr)
}

// Stream yields content fragments straight from the backend. No retry and no
// caching apply: fragments already sent cannot be taken back.
func (g *Gateway) Stream(ctx context.Context, req Request) (<-chan string, <-chan error) {
  backend, err := g.registry.Get(req.Model)
  if err != nil {
    chunks := make(chan string)
    errs := make(chan error, 1)
    errs <- err
    close(chunks)
    close(errs)
    return chunks, errs
  }
  return backend.Stream(ctx, req)
}

func (g *Gateway) cacheGet(ctx context.Context, namespace, key string) *Completion {
  raw, ok, err := g.store.Get(ctx, namespace, key)
  if err != nil {
    g.log.Warn("cache lookup failed", "error", err, "namespace", namespace)
    return nil
  }
  if !ok {
    return nil
  }
  var cached cachedCompletion
  if err := json.Unmarshal(raw, &cached); err != nil {
    g.log.Warn("cache entry could not be parsed", "error", err, "namespace", namespace)
    return nil
  }
  return &Completion{
    Content:   cached.Content,
    Reasoning: cached.Reasoning,
    Usage:     map[string]interface{}{"cached": true},
    Cached:    true,
  }
}

func (g *Gateway) cacheSet(ctx context.Context, namespace, key string, completion *Completion) {
  raw, err := json.Marshal(cachedCompletion{
    Content:   completion.Content,
    Reasoning: completion.Reasoning,
  })
  if err != nil {
    g.log.Warn("failed to serialize completion for cache", "error", err)
    return
  }
  if err := g.store.Set(ctx, namespace, key, raw); err != nil {
    g.log.Warn("failed to cache completion", "error", err, "namespace", namespace)
  }
}

func validateAgainstSchema(content string, schema *ResponseSchema) error {
  var doc map[string]interface{}
  if err := json.Unmarshal([]byte(content), &doc); err != nil {
    return &SchemaError{SchemaName: schema.Name, Detail: err.Error()}
  }
  return nil
}

func minFloat(a, b float64) float64 {
  if a < b {
    return a
  }
  return b
}
