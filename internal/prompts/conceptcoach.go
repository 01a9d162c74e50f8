package prompts

import (
  "encoding/json"
  "strings"
)

// Context value objects feeding the system prompt. JSON tags define the
// spelling inside the rendered context block.

type ChildSummary struct {
  Name          string    `json:"name"`
  ClassLevel    string    `json:"class_level,omitempty"`
}

type ParentContext struct {
  Name                string            `json:"name"`
  Children            []ChildSummary    `json:"children,omitempty"`
  NotesFromMemory     []string          `json:"parent_notes_from_memory,omitempty"`
}

type ChildContext struct {
  Name                string      `json:"name"`
  ClassLevel          string      `json:"class_level,omitempty"`
  NotesFromMemory     []string    `json:"notes_from_memory,omitempty"`
}

type ConceptHistoryItem struct {
  ConceptID       int64     `json:"concept_id"`
  ConceptName     string    `json:"concept_name"`
  Subject         string    `json:"subject,omitempty"`
  ViewedAgo       string    `json:"viewed_ago"`
}

type LearningContext struct {
  CurrentConceptID      int64                   `json:"current_concept_id"`
  CurrentConceptName    string                  `json:"current_concept_name"`
  CurrentSubject        string                  `json:"current_subject,omitempty"`
  ShortDescription      string                  `json:"short_description,omitempty"`
  PracticalValue        string                  `json:"practical_value,omitempty"`
  KeyPoints             []string                `json:"key_points,omitempty"`
  CommonBarriers        []string                `json:"common_barriers,omitempty"`
  RecentConceptChats    []ConceptHistoryItem    `json:"recent_concept_chats,omitempty"`
}

const coreIdentity = "You are Yay, the AI educational guide for the Yayska mobile app. " +
  "Yayska's mission is to empower parents to support their child's primary school education in Ireland. " +
  "Your persona is that of a wise, empathetic, and gently provocative Socratic guide. " +
  "Think of yourself as a friendly, well-read teacher who has seen it all, possesses a PhD in 'coping on', " +
  "and uses a bit of dry, Irish wit to keep things interesting. Your humour is a tool for connection, not for stand-up comedy."

const guidingPrinciples = `
Your tone should be warm but with a hint of playful sarcasm—the kind of humour that says 'I know this is hard, but let's not lose our minds over it'. You must strictly adhere to the following principles in every interaction:
1.  **Substance Over Praise:** Avoid generic, fluffy compliments. Go directly to the substance. A bit of wit is grand, but empty praise helps no one.
2.  **Guide, Don't Just Prescribe:** Default to asking a guiding question, not just giving an answer.
3.  **Challenge Assumptions, Gently:** Respectfully analyze the parent's strategy and question its underlying assumptions.
4.  **Introduce Nuance and Alternatives:** Avoid black-and-white thinking. Reframe situations and present alternative perspectives.
5.  **Practicality is Paramount:** Frame guidance as quick, actionable experiments that fit into a busy parent's daily life.
`

const finalInstructions = `
FINAL INSTRUCTIONS:
- Use Markdown for formatting (bolding, bullet points).
- Keep responses concise and focused. Lead with a guiding question or key insight.
- Use emojis sparingly to add warmth (e.g., 🤔,💡).
`

// ConceptCoachSystemPrompt composes the system instructions for a concept
// coaching exchange. Pure function: no I/O, deterministic for given inputs.
func ConceptCoachSystemPrompt(parent ParentContext, child ChildContext, learning LearningContext) string {
  contextData := map[string]interface{}{}
  if block := nonEmptyFields(parent); len(block) > 0 {
    contextData["PARENT_CONTEXT"] = block
  }
  if block := nonEmptyFields(child); len(block) > 0 {
    contextData["CHILD_CONTEXT"] = block
  }
  if block := nonEmptyFields(learning); len(block) > 0 {
    contextData["LEARNING_CONTEXT"] = block
  }

  rendered, _ := json.MarshalIndent(contextData, "", "  ")
  contextSection := "\n---\nCONTEXT FOR THIS CONVERSATION:\n" + string(rendered) + "\n---\n"

  full := coreIdentity + "\n\n" + guidingPrinciples + "\n" + contextSection + "\n" + finalInstructions
  return strings.TrimSpace(full)
}

// nonEmptyFields reduces a context value to a map holding only its non-empty
// fields, so absent data never shows up as empty JSON noise.
func nonEmptyFields(v interface{}) map[string]interface{} {
  raw, err := json.Marshal(v)
  if err != nil {
    return nil
  }
  var full map[string]interface{}
  if err := json.Unmarshal(raw, &full); err != nil {
    return nil
  }
  out := map[string]interface{}{}
  for k, val := range full {
    switch t := val.(type) {
    case nil:
      continue
    case string:
      if t == "" {
        continue
      }
    case []interface{}:
      if len(t) == 0 {
        continue
      }
    case map[string]interface{}:
      if len(t) == 0 {
        continue
      }
    case float64:
      if t == 0 {
        continue
      }
    }
    out[k] = val
  }
  return out
}
