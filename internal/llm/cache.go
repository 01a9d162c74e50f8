package llm

import (
  "context"
  "crypto/sha256"
  "encoding/hex"
  "encoding/json"
  "errors"
  "fmt"
  "sync"
  "time"

  "github.com/redis/go-redis/v9"
)

// Store is the namespace-scoped key/value store the gateway caches
// completions in. Implementations must be safe for concurrent use.
type Store interface {
  Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
  Set(ctx context.Context, namespace, key string, value []byte) error
}

// cacheKey hashes the full request in a canonical form. encoding/json
// marshals map keys in sorted order, so identical requests always collapse
// to the same digest.
func cacheKey(r Request) (string, error) {
  msgs := r.wireMessages()
  wire := make([]map[string]interface{}, 0, len(msgs))
  for _, m := range msgs {
    wire = append(wire, map[string]interface{}{"role": m.Role, "content": m.Content})
  }
  keyData := map[string]interface{}{
    "model":       string(r.Model),
    "messages":    wire,
    "temperature": r.Temperature,
    "max_tokens":  r.MaxTokens,
  }
  if r.ResponseSchema != nil {
    keyData["response_schema"] = r.ResponseSchema.Name
  } else {
    keyData["response_schema"] = nil
  }
  if r.ReasoningEffort != "" {
    keyData["reasoning_effort"] = string(r.ReasoningEffort)
  } else {
    keyData["reasoning_effort"] = nil
  }
  raw, err := json.Marshal(keyData)
  if err != nil {
    return "", err
  }
  sum := sha256.Sum256(raw)
  return hex.EncodeToString(sum[:]), nil
}

type cachedCompletion struct {
  Content     string    `json:"content"`
  Reasoning   string    `json:"reasoning,omitempty"`
}

// RedisStore backs the cache with a shared Redis instance.
type RedisStore struct {
  client    *redis.Client
  ttl       time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
  return &RedisStore{client: client, ttl: ttl}
}

func (rs *RedisStore) redisKey(namespace, key string) string {
  return fmt.Sprintf("llm_cache:%s:%s", namespace, key)
}

func (rs *RedisStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
  val, err := rs.client.Get(ctx, rs.redisKey(namespace, key)).Bytes()
  if err != nil {
    if errors.Is(err, redis.Nil) {
      return nil, false, nil
    }
    return nil, false, err
  }
  return val, true, nil
}

func (rs *RedisStore) Set(ctx context.Context, namespace, key string, value []byte) error {
  return rs.client.Set(ctx, rs.redisKey(namespace, key), value, rs.ttl).Err()
}

// MemoryStore is a process-local Store used in tests and when no Redis is
// configured.
type MemoryStore struct {
  mu      sync.RWMutex
  data    map[string][]byte
}

func NewMemoryStore() *MemoryStore {
  return &MemoryStore{data: make(map[string][]byte)}
}

func (ms *MemoryStore) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
  ms.mu.RLock()
  defer ms.mu.RUnlock()
  val, ok := ms.data[namespace+":"+key]
  return val, ok, nil
}

func (ms *MemoryStore) Set(_ context.Context, namespace, key string, value []byte) error {
  ms.mu.Lock()
  defer ms.mu.Unlock()
  ms.data[namespace+":"+key] = value
  return nil
}
