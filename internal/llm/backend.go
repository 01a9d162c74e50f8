package llm

import (
  "context"
  "fmt"
)

type Message struct {
  Role      string    `json:"role"`
  Content   string    `json:"content"`
}

// ResponseSchema requests structured output. Name participates in the cache
// key; Schema is handed to backends that support JSON-schema response
// formats.
type ResponseSchema struct {
  Name      string                    `json:"name"`
  Schema    map[string]interface{}    `json:"schema"`
}

type Request struct {
  Model             Model
  SystemPrompt      string
  Messages          []Message
  Temperature       float64
  MaxTokens         int
  ResponseSchema    *ResponseSchema
  ReasoningEffort   ReasoningEffort

  // CacheName opts the call into content-addressed caching under that
  // namespace. Empty means no caching.
  CacheName         string
}

// wireMessages is the message list actually sent to the backend, with the
// system prompt prepended.
func (r Request) wireMessages() []Message {
  msgs := make([]Message, 0, len(r.Messages)+1)
  if r.SystemPrompt != "" {
    msgs = append(msgs, Message{Role: "system", Content: r.SystemPrompt})
  }
  msgs = append(msgs, r.Messages...)
  return msgs
}

type Completion struct {
  Content     string
  Reasoning   string
  Usage       map[string]interface{}
  // Cached is set when the completion was served from the cache store
  // without touching the backend.
  Cached      bool
}

// Backend is one model provider behind the gateway.
type Backend interface {
  Complete(ctx context.Context, req Request) (*Completion, error)
  // Stream yields content fragments as they arrive. The error channel
  // carries at most one value and both channels close when the stream ends.
  Stream(ctx context.Context, req Request) (<-chan string, <-chan error)
}

// RateLimitError is an explicit rate-limit signal from a backend; the
// gateway backs off exponentially before retrying.
type RateLimitError struct {
  Provider    string
  Detail      string
}

func (e *RateLimitError) Error() string {
  return fmt.Sprintf("%s: rate limited: %s", e.Provider, e.Detail)
}

// SchemaError means the model's output could not be parsed against the
// requested response schema; the gateway retries at a higher temperature.
type SchemaError struct {
  SchemaName    string
  Detail        string
}

func (e *SchemaError) Error() string {
  return fmt.Sprintf("response did not match schema %s: %s", e.SchemaName, e.Detail)
}
