package services

import (
  "context"
  "time"

  "github.com/google/uuid"

  "github.com/yayska-org/yayska-backend/internal/apperr"
  "github.com/yayska-org/yayska-backend/internal/logger"
  "github.com/yayska-org/yayska-backend/internal/repos"
)

// RateLimitService enforces the per-user daily ceiling on assistant
// requests. Checks commit immediately, independent of the exchange that
// follows.
type RateLimitService interface {
  CheckAndIncrement(ctx context.Context, userID uuid.UUID) error
}

type rateLimitService struct {
  log         *logger.Logger
  userRepo    repos.UserRepo
  dailyLimit  int
  whitelist   map[string]struct{}

  // now is swappable so day-rollover behavior is testable.
  now         func() time.Time
}

func NewRateLimitService(log *logger.Logger, userRepo repos.UserRepo, dailyLimit int, whitelist []string) RateLimitService {
  wl := make(map[string]struct{}, len(whitelist))
  for _, email := range whitelist {
    wl[email] = struct{}{}
  }
  return &rateLimitService{
    log:        log.With("service", "RateLimitService"),
    userRepo:   userRepo,
    dailyLimit: dailyLimit,
    whitelist:  wl,
    now:        time.Now,
  }
}

// CheckAndIncrement reads the user's counter, resets it on day rollover,
// rejects at the ceiling and increments otherwise. The read and the update
// are not guarded by a row lock: two requests racing through here can both
// observe the same pre-increment value.
func (rls *rateLimitService) CheckAndIncrement(ctx context.Context, userID uuid.UUID) error {
  rls.log.Info("Checking user for AI chat rate limit", "userID", userID)
  user, err := rls.userRepo.GetByID(ctx, nil, userID)
  if err != nil {
    return err
  }

  if _, ok := rls.whitelist[user.Email]; ok {
    rls.log.Info("User is in whitelist, skipping rate limit check", "userID", userID, "email", user.Email)
    return nil
  }

  today := dateOnly(rls.now())
  if user.LastAIChatRequestDate == nil || !dateOnly(*user.LastAIChatRequestDate).Equal(today) {
    rls.log.Info("Resetting user AI chat request count for a new day", "userID", userID)
    return rls.userRepo.ResetDailyCount(ctx, nil, userID, today)
  }

  if user.AIChatRequestDailyCount >= rls.dailyLimit {
    rls.log.Warn("User has exceeded AI chat request limit", "userID", userID, "count", user.AIChatRequestDailyCount)
    return apperr.QuotaExceeded("you have exceeded your daily limit for AI chat requests")
  }

  rls.log.Info("Incrementing user AI chat request count", "userID", userID, "newCount", user.AIChatRequestDailyCount+1)
  return rls.userRepo.IncrementDailyCount(ctx, nil, userID)
}

func dateOnly(t time.Time) time.Time {
  y, m, d := t.Date()
  return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
