package ai

import "github.com/bryanwahyu/trapscan/internal/domain/apperr"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = apperr.RateLimited("ai quota exceeded", 0)
