package middleware

import (
  "fmt"
  "net/http"
  "strings"

  "github.com/gin-gonic/gin"
  "github.com/golang-jwt/jwt/v5"
  "github.com/google/uuid"

  "github.com/yayska-org/yayska-backend/internal/logger"
  "github.com/yayska-org/yayska-backend/internal/requestdata"
)

// JWTClaims is the shape of the access tokens this backend accepts. Token
// issuance lives in the auth service at the edge; this middleware only
// validates.
type JWTClaims struct {
  jwt.RegisteredClaims
  Email   string    `json:"email,omitempty"`
}

type AuthMiddleware struct {
  log             *logger.Logger
  jwtSecretKey    string
}

func NewAuthMiddleware(log *logger.Logger, jwtSecretKey string) *AuthMiddleware {
  return &AuthMiddleware{
    log:          log.With("Middleware", "AuthMiddleware"),
    jwtSecretKey: jwtSecretKey,
  }
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
  return func(c *gin.Context) {
    tokenString := extractToken(c)
    if tokenString == "" {
      c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
      return
    }
    claims := &JWTClaims{}
    token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
      if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
        return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
      }
      return []byte(am.jwtSecretKey), nil
    })
    if err != nil || !token.Valid {
      c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
      return
    }
    userID, err := uuid.Parse(claims.Subject)
    if err != nil || userID == uuid.Nil {
      c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden - invalid user id"})
      return
    }
    ctx := requestdata.WithRequestData(c.Request.Context(), &requestdata.RequestData{
      TokenString: tokenString,
      UserID:      userID,
      Email:       claims.Email,
    })
    c.Request = c.Request.WithContext(ctx)
    c.Next()
  }
}

func extractToken(c *gin.Context) string {
  header := c.GetHeader("Authorization")
  if strings.HasPrefix(header, "Bearer ") {
    return strings.TrimPrefix(header, "Bearer ")
  }
  // Streaming clients that cannot set headers fall back to a query param.
  return c.Query("token")
}
