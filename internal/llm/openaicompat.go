package llm

import (
  "bufio"
  "bytes"
  "context"
  "encoding/json"
  "fmt"
  "io"
  "net/http"
  "strings"
  "time"

  "github.com/yayska-org/yayska-backend/internal/logger"
)

// OpenAICompatBackend speaks the OpenAI chat-completions wire format. Both
// OpenAI itself and Gemini's OpenAI-compatible endpoint are served by this
// one implementation with different base URLs.
type OpenAICompatBackend struct {
  provider    string
  baseURL     string
  apiKey      string
  client      *http.Client
  log         *logger.Logger
}

func NewOpenAICompatBackend(provider, baseURL, apiKey string, log *logger.Logger) *OpenAICompatBackend {
  return &OpenAICompatBackend{
    provider: provider,
    baseURL:  strings.TrimRight(baseURL, "/"),
    apiKey:   apiKey,
    client:   &http.Client{Timeout: 90 * time.Second},
    log:      log.With("backend", provider),
  }
}

type oaMessage struct {
  Role                string    `json:"role"`
  Content             string    `json:"content"`
  ReasoningContent    string    `json:"reasoning_content,omitempty"`
}

type oaChatReq struct {
  Model             string                    `json:"model"`
  Messages          []oaMessage               `json:"messages"`
  Temperature       float64                   `json:"temperature"`
  MaxTokens         int                       `json:"max_tokens,omitempty"`
  Stream            bool                      `json:"stream"`
  ReasoningEffort   string                    `json:"reasoning_effort,omitempty"`
  ResponseFormat    *oaResponseFormat         `json:"response_format,omitempty"`
}

type oaResponseFormat struct {
  Type        string          `json:"type"`
  JSONSchema  *oaJSONSchema   `json:"json_schema,omitempty"`
}

type oaJSONSchema struct {
  Name      string                    `json:"name"`
  Schema    map[string]interface{}    `json:"schema"`
}

type oaChatResp struct {
  Choices []struct {
    Message oaMessage `json:"message"`
  } `json:"choices"`
  Usage struct {
    PromptTokens      int   `json:"prompt_tokens"`
    CompletionTokens  int   `json:"completion_tokens"`
    TotalTokens       int   `json:"total_tokens"`
  } `json:"usage"`
  Error *struct {
    Message string `json:"message"`
  } `json:"error,omitempty"`
}

type oaStreamResp struct {
  Choices []struct {
    Delta struct {
      Content string `json:"content"`
    } `json:"delta"`
  } `json:"choices"`
  Error *struct {
    Message string `json:"message"`
  } `json:"error,omitempty"`
}

func (b *OpenAICompatBackend) buildRequest(r Request, stream bool) oaChatReq {
  msgs := r.wireMessages()
  out := make([]oaMessage, 0, len(msgs))
  for _, m := range msgs {
    out = append(out, oaMessage{Role: m.Role, Content: m.Content})
  }
  req := oaChatReq{
    Model:       r.Model.Name(),
    Messages:    out,
    Temperature: r.Temperature,
    MaxTokens:   r.MaxTokens,
    Stream:      stream,
  }
  if r.ReasoningEffort != "" {
    req.ReasoningEffort = string(r.ReasoningEffort)
  }
  if r.ResponseSchema != nil {
    req.ResponseFormat = &oaResponseFormat{
      Type: "json_schema",
      JSONSchema: &oaJSONSchema{
        Name:   r.ResponseSchema.Name,
        Schema: r.ResponseSchema.Schema,
      },
    }
  }
  return req
}

func (b *OpenAICompatBackend) post(ctx context.Context, body interface{}) (*http.Response, error) {
  raw, err := json.Marshal(body)
  if err != nil {
    return nil, err
  }
  url := b.baseURL + "/chat/completions"
  req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
  if err != nil {
    return nil, err
  }
  req.Header.Set("Content-Type", "application/json")
  if b.apiKey != "" {
    req.Header.Set("Authorization", "Bearer "+b.apiKey)
  }
  resp, err := b.client.Do(req)
  if err != nil {
    return nil, err
  }
  if resp.StatusCode == http.StatusTooManyRequests {
    detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
    resp.Body.Close()
    return nil, &RateLimitError{Provider: b.provider, Detail: string(detail)}
  }
  if resp.StatusCode < 200 || resp.StatusCode >= 300 {
    detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
    resp.Body.Close()
    return nil, fmt.Errorf("%s: HTTP %d: %s", b.provider, resp.StatusCode, string(detail))
  }
  return resp, nil
}

func (b *OpenAICompatBackend) Complete(ctx context.Context, r Request) (*Completion, error) {
  resp, err := b.post(ctx, b.buildRequest(r, false))
  if err != nil {
    return nil, err
  }
  defer resp.Body.Close()

  var parsed oaChatResp
  if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
    return nil, fmt.Errorf("%s: decode response: %w", b.provider, err)
  }
  if parsed.Error != nil {
    return nil, fmt.Errorf("%s: %s", b.provider, parsed.Error.Message)
  }
  if len(parsed.Choices) == 0 {
    return nil, fmt.Errorf("%s: empty choices in response", b.provider)
  }
  msg := parsed.Choices[0].Message
  usage := map[string]interface{}{
    "prompt_tokens":     parsed.Usage.PromptTokens,
    "completion_tokens": parsed.Usage.CompletionTokens,
    "total_tokens":      parsed.Usage.TotalTokens,
  }
  return &Completion{
    Content:   msg.Content,
    Reasoning: msg.ReasoningContent,
    Usage:     usage,
  }, nil
}

func (b *OpenAICompatBackend) Stream(ctx context.Context, r Request) (<-chan string, <-chan error) {
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
      line := strings.TrimSpace(scanner.Text())
      if !strings.HasPrefix(line, "data:") {
        continue
      }
      payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
      if payload == "" || payload == "[DONE]" {
        continue
      }
      var event oaStreamResp
      if err := json.Unmarshal([]byte(payload), &event); err != nil {
        b.log.Warn("failed to parse stream event", "error", err)
        continue
      }
      if event.Error != nil {
        errs <- fmt.Errorf("%s: %s", b.provider, event.Error.Message)
        return
      }
      if len(event.Choices) == 0 {
        continue
      }
      delta := event.Choices[0].Delta.Content
      if delta == "" {
        continue
      }
      select {
      case chunks <- delta:
      case <-ctx.Done():
        errs <- ctx.Err()
        return
      }
    }
    if err := scanner.Err(); err != nil {
      errs <- err
    }
  }()
  return chunks, errs
}
