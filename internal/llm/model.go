package llm

import "strings"

// Model identifies a backend model in "provider/model-name" form. The
// provider prefix selects the Backend implementation through the Registry.
type Model string

const (
  GeminiFlash20       Model = "gemini/gemini-2.0-flash"
  GeminiFlash20Lite   Model = "gemini/gemini-2.0-flash-lite"
  GeminiFlash25       Model = "gemini/gemini-2.5-flash"
  GPT4o               Model = "openai/gpt-4o"
  GPT4oMini           Model = "openai/gpt-4o-mini"
  Llama3              Model = "ollama/llama3:latest"
)

func (m Model) Provider() string {
  if i := strings.Index(string(m), "/"); i >= 0 {
    return string(m)[:i]
  }
  return ""
}

// Name is the model identifier with the provider prefix stripped, the form
// backends put on the wire.
func (m Model) Name() string {
  if i := strings.Index(string(m), "/"); i >= 0 {
    return string(m)[i+1:]
  }
  return string(m)
}

// ReasoningEffort controls reasoning depth on models that support it.
type ReasoningEffort string

const (
  ReasoningDisable  ReasoningEffort = "disable"
  ReasoningLow      ReasoningEffort = "low"
  ReasoningMedium   ReasoningEffort = "medium"
  ReasoningHigh     ReasoningEffort = "high"
)
