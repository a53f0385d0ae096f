package resilience

import (
	"math"
	"sort"
	"strings"

	"github.com/basinops/basinops-kernel/internal/registry"
	"github.com/basinops/basinops-kernel/pkg/types"
)

// Retry delay hints in milliseconds, chosen per failure cause.
const (
	rateLimitDelayMs  = 5000
	timeoutDelayMs    = 2000
	connectionDelayMs = 1000
)

// alternativeServers maps each query server to substitutes that can stand in
// when it is down. Command servers and the QA pass have no substitutes.
var alternativeServers = map[string][]string{
	"geowiz":         {"research"},
	"econobot":       {"market", "research"},
	"curve-smith":    {"geowiz"},
	"risk-analysis":  {"research"},
	"market":         {"econobot", "research"},
	"research":       {"market"},
	"legal":          {"title"},
	"title":          {"legal"},
	"drilling":       {"curve-smith"},
	"infrastructure": {"market"},
	"development":    {"drilling"},
}

var recoverySteps = map[types.ErrorType][]string{
	types.ErrRetryable: {
		"Wait for the suggested delay before retrying",
		"Retry the request; transient faults usually clear on their own",
		"If failures persist, fall back to an alternative analysis tool",
	},
	types.ErrPermanent: {
		"Review the request arguments for invalid or malformed values",
		"Consult the tool's input requirements before resubmitting",
	},
	types.ErrAuthRequired: {
		"Verify the caller's credentials and role assignment",
		"Request the missing permission from an administrator",
	},
	types.ErrUserAction: {
		"Provide the missing input or data before retrying",
		"Re-run the call once the required data is available",
	},
}

var recoveryReasons = map[types.ErrorType]string{
	types.ErrRetryable:    "transient failure; the operation is safe to retry",
	types.ErrPermanent:    "the request cannot succeed as submitted",
	types.ErrAuthRequired: "the caller lacks the required permission",
	types.ErrUserAction:   "caller input is required before this can proceed",
}

// AlternativeTools lists substitute tools for a failing tool, rendered in
// canonical dotted form.
func AlternativeTools(toolName string) []string {
	servers := alternativeServers[registry.ServerName(toolName)]
	if len(servers) == 0 {
		return nil
	}
	out := make([]string, len(servers))
	for i, s := range servers {
		out[i] = registry.CanonicalToolName(s)
	}
	return out
}

// BuildRecoveryGuide annotates a classified failure with concrete recovery
// guidance. Retryable failures additionally get a delay hint derived from
// the failure cause.
func BuildRecoveryGuide(toolName string, detail *types.ErrorDetail) *types.RecoveryGuide {
	if detail == nil {
		return nil
	}
	guide := &types.RecoveryGuide{
		ErrorType:        detail.Type,
		Reason:           recoveryReasons[detail.Type],
		RecoverySteps:    recoverySteps[detail.Type],
		AlternativeTools: AlternativeTools(toolName),
	}
	if detail.Reason != "" {
		guide.Reason = detail.Reason
	}
	if detail.Type == types.ErrRetryable {
		guide.RetryAfterMs = retryDelayFor(detail.Message)
	}
	return guide
}

// retryDelayFor picks the delay hint for a retryable failure. Rate limiting
// backs off longest, refused connections shortest.
func retryDelayFor(message string) int64 {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429"):
		return rateLimitDelayMs
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") || strings.Contains(lower, "etimedout"):
		return timeoutDelayMs
	case strings.Contains(lower, "econnrefused") || strings.Contains(lower, "econnreset") || strings.Contains(lower, "socket hang up"):
		return connectionDelayMs
	default:
		return timeoutDelayMs
	}
}

// ApplyGuide copies a recovery guide's hints onto an ErrorDetail so shaped
// failure responses carry their own recovery story.
func ApplyGuide(detail *types.ErrorDetail, guide *types.RecoveryGuide) *types.ErrorDetail {
	if detail == nil || guide == nil {
		return detail
	}
	out := *detail
	if out.Reason == "" {
		out.Reason = guide.Reason
	}
	out.RecoverySteps = guide.RecoverySteps
	out.AlternativeTools = guide.AlternativeTools
	out.RetryAfterMs = guide.RetryAfterMs
	return &out
}

// AssessDegradation reports how much of an expected result set arrived and
// what to do about the remainder.
func AssessDegradation(expected []string, results map[string]*types.ToolResponse) *types.DegradationReport {
	report := &types.DegradationReport{
		Alternatives: make(map[string][]string),
	}

	succeeded := 0
	for _, name := range expected {
		resp, present := results[name]
		switch {
		case !present:
			report.Missing = append(report.Missing, name)
		case resp != nil && resp.Success:
			succeeded++
		default:
			report.Failed = append(report.Failed, name)
		}
	}
	sort.Strings(report.Missing)
	sort.Strings(report.Failed)

	report.Completeness = Completeness(succeeded, len(expected))

	if len(expected) > 0 {
		if report.Completeness >= 50 {
			report.Suggestions = append(report.Suggestions, "partial results may be sufficient")
		} else {
			report.Suggestions = append(report.Suggestions, "insufficient results; consider retrying failed analyses")
		}
	}

	for _, name := range report.Failed {
		if alts := AlternativeTools(name); len(alts) > 0 {
			report.Alternatives[name] = alts
		}
	}
	return report
}

// Completeness is the percentage of requested tools that succeeded, rounded
// to the nearest integer.
func Completeness(succeeded, requested int) int {
	if requested == 0 {
		return 100
	}
	return int(math.Round(100 * float64(succeeded) / float64(requested)))
}
