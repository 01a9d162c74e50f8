package handlers

import (
  "net/http"
  "strconv"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/yayska-org/yayska-backend/internal/apperr"
  "github.com/yayska-org/yayska-backend/internal/logger"
  "github.com/yayska-org/yayska-backend/internal/requestdata"
  "github.com/yayska-org/yayska-backend/internal/services"
  "github.com/yayska-org/yayska-backend/internal/types"
)

type ChatHandler struct {
  log               *logger.Logger
  chatService       services.ChatService
  rateLimitService  services.RateLimitService
}

func NewChatHandler(log *logger.Logger, chatService services.ChatService, rateLimitService services.RateLimitService) *ChatHandler {
  return &ChatHandler{
    log:              log.With("handler", "ChatHandler"),
    chatService:      chatService,
    rateLimitService: rateLimitService,
  }
}

type findOrCreateSessionRequest struct {
  ChildID           uuid.UUID                 `json:"child_id" binding:"required"`
  EntryPointType    types.EntryPointType      `json:"entry_point_type" binding:"required"`
  ContextData       map[string]interface{}    `json:"context_data" binding:"required"`
}

func (ch *ChatHandler) FindOrCreateSession(c *gin.Context) {
  var req findOrCreateSessionRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
    return
  }
  session, err := ch.chatService.FindOrCreateSession(c.Request.Context(), req.ChildID, req.EntryPointType, req.ContextData)
  if err != nil {
    ch.respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, session)
}

func (ch *ChatHandler) GetSessions(c *gin.Context) {
  limit, err := queryInt(c, "limit", 20, 1, 100)
  if err != nil {
    ch.respondError(c, err)
    return
  }
  offset, err := queryInt(c, "offset", 0, 0, 1<<30)
  if err != nil {
    ch.respondError(c, err)
    return
  }
  sessions, err := ch.chatService.GetUserSessions(c.Request.Context(), limit, offset)
  if err != nil {
    ch.respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, sessions)
}

func (ch *ChatHandler) GetMessages(c *gin.Context) {
  sessionID, ok := pathUUID(c, "chat_id")
  if !ok {
    return
  }
  limit, err := queryInt(c, "limit", 50, 1, 200)
  if err != nil {
    ch.respondError(c, err)
    return
  }
  offset, err := queryInt(c, "offset", 0, 0, 1<<30)
  if err != nil {
    ch.respondError(c, err)
    return
  }
  msgs, err := ch.chatService.GetSessionMessages(c.Request.Context(), sessionID, limit, offset)
  if err != nil {
    ch.respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, msgs)
}

type userMessageRequest struct {
  Content   string    `json:"content" binding:"required,min=1,max=4096"`
}

func (ch *ChatHandler) CreateMessage(c *gin.Context) {
  sessionID, ok := pathUUID(c, "chat_id")
  if !ok {
    return
  }
  var req userMessageRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
    return
  }
  if err := ch.checkRateLimit(c); err != nil {
    ch.respondError(c, err)
    return
  }
  msg, err := ch.chatService.SendUserMessage(c.Request.Context(), sessionID, req.Content)
  if err != nil {
    ch.respondError(c, err)
    return
  }
  c.JSON(http.StatusCreated, msg)
}

// StreamMessage writes the assistant reply as flushed plain-text fragments.
// The persisted record is created server side after the stream drains and is
// not returned to the caller.
func (ch *ChatHandler) StreamMessage(c *gin.Context) {
  sessionID, ok := pathUUID(c, "chat_id")
  if !ok {
    return
  }
  var req userMessageRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
    return
  }
  if err := ch.checkRateLimit(c); err != nil {
    ch.respondError(c, err)
    return
  }
  chunks, err := ch.chatService.StreamUserMessage(c.Request.Context(), sessionID, req.Content)
  if err != nil {
    ch.respondError(c, err)
    return
  }

  c.Writer.Header().Set("Content-Type", "text/event-stream")
  c.Writer.Header().Set("Cache-Control", "no-cache")
  c.Writer.Header().Set("Connection", "keep-alive")
  c.Writer.WriteHeader(http.StatusOK)
  c.Writer.Flush()

  for chunk := range chunks {
    if _, err := c.Writer.WriteString(chunk); err != nil {
      // Client went away; the service persists the partial content.
      break
    }
    c.Writer.Flush()
  }
}

type messageFeedbackRequest struct {
  Feedback struct {
    Vote    int       `json:"vote" binding:"min=-1,max=1"`
    Text    *string   `json:"text" binding:"omitempty,max=1024"`
  } `json:"feedback" binding:"required"`
}

func (ch *ChatHandler) UpdateMessageFeedback(c *gin.Context) {
  sessionID, ok := pathUUID(c, "chat_id")
  if !ok {
    return
  }
  messageID, ok := pathUUID(c, "message_id")
  if !ok {
    return
  }
  var req messageFeedbackRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
    return
  }
  msg, err := ch.chatService.UpdateMessageFeedback(c.Request.Context(), sessionID, messageID, req.Feedback.Vote, req.Feedback.Text)
  if err != nil {
    ch.respondError(c, err)
    return
  }
  c.JSON(http.StatusOK, msg)
}

func (ch *ChatHandler) checkRateLimit(c *gin.Context) error {
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil || rd.UserID == uuid.Nil {
    return apperr.Validation("no authenticated user on request")
  }
  return ch.rateLimitService.CheckAndIncrement(c.Request.Context(), rd.UserID)
}

func (ch *ChatHandler) respondError(c *gin.Context, err error) {
  status := apperr.HTTPStatus(err)
  if status >= http.StatusInternalServerError {
    ch.log.Error("request failed", "error", err, "path", c.FullPath())
  }
  c.JSON(status, gin.H{"error": err.Error()})
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
  id, err := uuid.Parse(c.Param(name))
  if err != nil {
    c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid " + name})
    return uuid.Nil, false
  }
  return id, true
}

func queryInt(c *gin.Context, name string, def, min, max int) (int, error) {
  raw := c.Query(name)
  if raw == "" {
    return def, nil
  }
  val, err := strconv.Atoi(raw)
  if err != nil {
    return 0, apperr.Validation("%s must be an integer", name)
  }
  if val < min || val > max {
    return 0, apperr.Validation("%s must be between %d and %d", name, min, max)
  }
  return val, nil
}
