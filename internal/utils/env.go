package utils

import (
  "os"
  "strconv"
  "strings"

  "github.com/yayska-org/yayska-backend/internal/logger"
)

func GetEnv(key, defaultVal string, log *logger.Logger) string {
  if log != nil {
    log = log.With("env_var", key)
    log.Debug("Attempting to load environment variable (string)...")
  }
  val, ok := os.LookupEnv(key)
  if !ok {
    if log != nil {
      log.Debug("Environment variable not found, using default value", "defaultValue", defaultVal)
    }
    return defaultVal
  }
  if log != nil {
    log.Debug("Environment variable found (string), using environment variable value", "value", val)
  }
  return val
}

func GetEnvAsInt(key string, defaultVal int, log *logger.Logger) int {
  if log != nil {
    log = log.With("env_var", key)
    log.Debug("Attempting to load environment variable (int)...")
  }
  valStr, ok := os.LookupEnv(key)
  if !ok {
    if log != nil {
      log.Debug("Environment variable not found, using default int", "defaultVal", defaultVal)
    }
    return defaultVal
  }
  i, err := strconv.Atoi(valStr)
  if err != nil {
    if log != nil {
      log.Debug("Environment variable could not be parsed as int, using default", "providedVal", valStr, "defaultVal", defaultVal, "error", err)
    }
    return defaultVal
  }
  if log != nil {
    log.Debug("Environment variable found (int), using environment variable value", "value", i)
  }
  return i
}

// GetEnvAsSlice splits a comma separated environment variable, trimming
// whitespace and dropping empty entries.
func GetEnvAsSlice(key string, defaultVal []string, log *logger.Logger) []string {
  if log != nil {
    log = log.With("env_var", key)
    log.Debug("Attempting to load environment variable (slice)...")
  }
  valStr, ok := os.LookupEnv(key)
  if !ok {
    if log != nil {
      log.Debug("Environment variable not found, using default slice", "defaultVal", defaultVal)
    }
    return defaultVal
  }
  var out []string
  for _, part := range strings.Split(valStr, ",") {
    part = strings.TrimSpace(part)
    if part != "" {
      out = append(out, part)
    }
  }
  if log != nil {
    log.Debug("Environment variable found (slice), using environment variable value", "value", out)
  }
  return out
}
