package llm

import (
  "bufio"
  "bytes"
  "context"
  "encoding/json"
  "fmt"
  "io"
  "net/http"
  "time"

  "github.com/yayska-org/yayska-backend/internal/logger"
)

// OllamaBackend speaks the native Ollama chat API, which streams newline
// delimited JSON rather than SSE.
type OllamaBackend struct {
  baseURL   string
  client    *http.Client
  log       *logger.Logger
}

func NewOllamaBackend(baseURL string, log *logger.Logger) *OllamaBackend {
  if baseURL == "" {
    baseURL = "http://localhost:11434"
  }
  return &OllamaBackend{
    baseURL: baseURL,
    client:  &http.Client{Timeout: 90 * time.Second},
    log:     log.With("backend", "ollama"),
  }
}

type ollamaMsg struct {
  Role      string    `json:"role"`
  Content   string    `json:"content"`
}

type ollamaChatReq struct {
  Model       string                    `json:"model"`
  Messages    []ollamaMsg               `json:"messages"`
  Stream      bool                      `json:"stream"`
  Options     map[string]interface{}    `json:"options,omitempty"`
  Format      map[string]interface{}    `json:"format,omitempty"`
}

type ollamaChatResp struct {
  Message             ollamaMsg   `json:"message"`
  Done                bool        `json:"done"`
  PromptEvalCount     int         `json:"prompt_eval_count"`
  EvalCount           int         `json:"eval_count"`
  Error               string      `json:"error,omitempty"`
}

func (b *OllamaBackend) buildRequest(r Request, stream bool) ollamaChatReq {
  msgs := r.wireMessages()
  out := make([]ollamaMsg, 0, len(msgs))
  for _, m := range msgs {
    out = append(out, ollamaMsg{Role: m.Role, Content: m.Content})
  }
  req := ollamaChatReq{
    Model:    r.Model.Name(),
    Messages: out,
    Stream:   stream,
    Options: map[string]interface{}{
      "temperature": r.Temperature,
    },
  }
  if r.MaxTokens > 0 {
    req.Options["num_predict"] = r.MaxTokens
  }
  if r.ResponseSchema != nil {
    req.Format = r.ResponseSchema.Schema
  }
  return req
}

func (b *OllamaBackend) post(ctx context.Context, body ollamaChatReq) (*http.Response, error) {
  raw, err := json.Marshal(body)
  if err != nil {
    return nil, err
  }
  url := b.baseURL + "/api/chat"
  req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
  if err != nil {
    return nil, err
  }
  req.Header.Set("Content-Type", "application/json")
  resp, err := b.client.Do(req)
  if err != nil {
    return nil, err
  }
  if resp.StatusCode == http.StatusTooManyRequests {
    detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
    resp.Body.Close()
    return nil, &RateLimitError{Provider: "ollama", Detail: string(detail)}
  }
  if resp.StatusCode < 200 || resp.StatusCode >= 300 {
    detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
    resp.Body.Close()
    return nil, fmt.Errorf("ollama: HTTP %d: %s", resp.StatusCode, string(detail))
  }
  return resp, nil
}

func (b *OllamaBackend) Complete(ctx context.Context, r Request) (*Completion, error) {
  resp, err := b.post(ctx, b.buildRequest(r, false))
  if err != nil {
    return nil, err
  }
  defer resp.Body.Close()

  var parsed ollamaChatResp
  if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
    return nil, fmt.Errorf("ollama: decode response: %w", err)
  }
  if parsed.Error != "" {
    return nil, fmt.Errorf("ollama: %s", parsed.Error)
  }
  usage := map[string]interface{}{
    "prompt_tokens":     parsed.PromptEvalCount,
    "completion_tokens": parsed.EvalCount,
    "total_tokens":      parsed.PromptEvalCount + parsed.EvalCount,
  }
  return &Completion{Content: parsed.Message.Content, Usage: usage}, nil
}

func (b *OllamaBackend) Stream(ctx context.Context, r Request) (<-chan string, <-chan error) {
  chunks := make(chan string)
  errs := make(chan error, 1)
  go func() {
    defer close(chunks)
    defer close(errs)

    resp, err := b.post(ctx, b.buildRequest(r, true))
    if err != nil {
      errs <- err
      return
    }
    defer resp.Body.Close()

    scanner := bufio.NewScanner(resp.Body)
    scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
    for scanner.Scan() {
      var event ollamaChatResp
      if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
        b.log.Warn("failed to parse stream line", "error", err)
        continue
      }
      if event.Error != "" {
        errs <- fmt.Errorf("ollama: %s", event.Error)
        return
      }
      if event.Message.Content != "" {
        select {
        case chunks <- event.Message.Content:
        case <-ctx.Done():
          errs <- ctx.Err()
          return
        }
      }
      if event.Done {
        return
      }
    }
    if err := scanner.Err(); err != nil {
      errs <- err
    }
  }()
  return chunks, errs
}
