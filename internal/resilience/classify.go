package resilience

import (
	"strings"

	"github.com/basinops/basinops-kernel/pkg/types"
)

// Package resilience turns opaque failure strings into the kernel's typed
// taxonomy and annotates failures with recovery guidance. Classification is
// total: every input maps to a type, and inputs nothing matches are treated
// optimistically as retryable.

// Pattern tables, matched as case-insensitive substrings. Order inside a
// table does not matter; order BETWEEN tables is the classification
// priority: auth_required, then user_action, then retryable, then permanent.
var (
	authRequiredPatterns = []string{
		"unauthorized", "401", "403", "forbidden", "api key", "authentication",
		"access denied", "token expired", "missing credentials", "permission denied",
	}

	userActionPatterns = []string{
		"file not found", "enoent", "missing data", "missing input", "no data",
		"please provide",
	}

	retryablePatterns = []string{
		"rate limit", "429", "timeout", "timed out", "econnrefused", "econnreset",
		"etimedout", "socket hang up", "temporarily unavailable", "502", "503",
		"network",
	}

	permanentPatterns = []string{
		"invalid", "zod", "schema validation", "malformed", "unsupported",
		"unknown tool", "parse error",
	}
)

// Classify maps a failure message to its error type.
func Classify(message string) types.ErrorType {
	lower := strings.ToLower(message)
	switch {
	case matchesAny(lower, authRequiredPatterns):
		return types.ErrAuthRequired
	case matchesAny(lower, userActionPatterns):
		return types.ErrUserAction
	case matchesAny(lower, retryablePatterns):
		return types.ErrRetryable
	case matchesAny(lower, permanentPatterns):
		return types.ErrPermanent
	default:
		return types.ErrRetryable
	}
}

// ClassifyErrorDetail re-derives the type from the message, overriding
// whatever the upstream worker claimed, so misclassified errors self-correct
// on the way through the kernel. The input is not mutated.
func ClassifyErrorDetail(detail *types.ErrorDetail) *types.ErrorDetail {
	if detail == nil {
		return nil
	}
	out := *detail
	out.Type = Classify(out.Message)
	return &out
}

func matchesAny(lower string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
