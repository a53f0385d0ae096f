package shaper

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/basinops/basinops-kernel/pkg/types"
)

// Package shaper projects raw worker payloads down to a requested detail
// level and synthesizes the one-line natural-language summary on every
// response. Shaping is pure: same payload and options in, same record out
// (timestamps aside).

// domainKeys are the recognized first-level payload envelopes, in the order
// confidence extraction probes them.
var domainKeys = []string{"geological", "economic", "curve", "risk"}

// summaryFields is the per-domain whitelist applied at summary detail.
var summaryFields = map[string][]string{
	"geological": {"reservoirQuality", "recommendedAction", "professionalSummary", "hydrocarbonPotential", "geologicalConfidence", "keyRisks"},
	"economic":   {"npv", "irr", "roi", "paybackMonths", "confidence"},
	"curve":      {"initialRate", "eur", "qualityGrade", "confidence"},
	"risk":       {"overallRiskScore", "confidence"},
}

// keyRisksCap bounds the keyRisks list in geological summaries.
const keyRisksCap = 3

// assumptionsCap is the longest assumptions array that survives standard
// detail; anything longer is treated as noise and dropped.
const assumptionsCap = 6

// Options parameterize one shaping pass.
type Options struct {
	Server          string
	Persona         string
	ExecutionTimeMs int64

	// DetailLevel defaults to standard when empty.
	DetailLevel types.DetailLevel

	// Confidence, when set, wins over anything found in the payload.
	Confidence *float64
}

// Shape builds the uniform ToolResponse for a successful invocation.
func Shape(raw map[string]any, opts Options) *types.ToolResponse {
	if raw == nil {
		raw = map[string]any{}
	}

	level := opts.DetailLevel
	if level == "" {
		level = types.DetailStandard
	}

	confidence := extractConfidence(raw, opts.Confidence)
	domain, body, enveloped := detectDomain(raw)

	return &types.ToolResponse{
		Success:      true,
		Summary:      summarize(domain, body, confidence),
		Confidence:   confidence,
		Data:         projectData(raw, domain, body, enveloped, level, confidence),
		DetailLevel:  level,
		Completeness: 100,
		Metadata: types.ResponseMetadata{
			Server:          opts.Server,
			Persona:         opts.Persona,
			ExecutionTimeMs: opts.ExecutionTimeMs,
			Timestamp:       time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// extractConfidence resolves the response confidence. Precedence: explicit
// option, then the first numeric confidence under a first-level domain key,
// then a top-level confidence, then zero.
func extractConfidence(raw map[string]any, override *float64) float64 {
	if override != nil {
		return *override
	}
	for _, key := range domainKeys {
		if body, ok := raw[key].(map[string]any); ok {
			if c, ok := numeric(body["confidence"]); ok {
				return c
			}
		}
	}
	if c, ok := numeric(raw["confidence"]); ok {
		return c
	}
	return 0
}

// detectDomain finds the payload's domain family. Enveloped payloads carry
// their body under a first-level domain key; flat payloads are recognized by
// signature fields.
func detectDomain(raw map[string]any) (domain string, body map[string]any, enveloped bool) {
	for _, key := range domainKeys {
		if sub, ok := raw[key].(map[string]any); ok {
			return key, sub, true
		}
	}
	switch {
	case hasAny(raw, "reservoirQuality", "hydrocarbonPotential"):
		return "geological", raw, false
	case hasAny(raw, "npv", "irr"):
		return "economic", raw, false
	case hasAny(raw, "eur", "initialRate"):
		return "curve", raw, false
	case hasAny(raw, "overallRiskScore"):
		return "risk", raw, false
	}
	return "", raw, false
}

func hasAny(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// projectData applies the detail level to the payload.
func projectData(raw map[string]any, domain string, body map[string]any, enveloped bool, level types.DetailLevel, confidence float64) map[string]any {
	switch level {
	case types.DetailFull:
		return raw
	case types.DetailSummary:
		if domain == "" {
			return map[string]any{"confidence": confidence}
		}
		projected := projectSummary(domain, body)
		if enveloped {
			return map[string]any{domain: projected}
		}
		return projected
	default: // standard
		out, _ := stripNoise(raw).(map[string]any)
		return out
	}
}

// projectSummary keeps only the whitelisted fields for the domain.
func projectSummary(domain string, body map[string]any) map[string]any {
	out := make(map[string]any)
	for _, field := range summaryFields[domain] {
		value, ok := body[field]
		if !ok {
			continue
		}
		if field == "keyRisks" {
			if list, ok := value.([]any); ok && len(list) > keyRisksCap {
				value = list[:keyRisksCap]
			}
		}
		out[field] = value
	}
	return out
}

// stripNoise removes the documented noisy fields at any depth:
// sensitivityAnalysis, monthlyData, riskFactors arrays, and assumptions
// arrays longer than six entries.
func stripNoise(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, inner := range v {
			if key == "sensitivityAnalysis" || key == "monthlyData" {
				continue
			}
			if _, isList := inner.([]any); isList {
				if key == "riskFactors" {
					continue
				}
				if key == "assumptions" && len(inner.([]any)) > assumptionsCap {
					continue
				}
			}
			out[key] = stripNoise(inner)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = stripNoise(inner)
		}
		return out
	default:
		return value
	}
}

// summarize renders the per-domain one-liner.
func summarize(domain string, body map[string]any, confidence float64) string {
	switch domain {
	case "geological":
		return fmt.Sprintf("%s prospect; recommended action: %s (confidence %s%%)",
			stringField(body, "reservoirQuality"), stringField(body, "recommendedAction"), formatNumber(confidence))
	case "economic":
		npv, _ := numeric(body["npv"])
		irr, _ := numeric(body["irr"])
		return fmt.Sprintf("NPV $%.1fM, IRR %s%% (confidence %s%%)",
			npv/1e6, formatNumber(irr), formatNumber(confidence))
	case "curve":
		eur, _ := numeric(body["eur"])
		return fmt.Sprintf("EUR %sK BOE, grade %s (confidence %s%%)",
			formatNumber(math.Round(eur/1000)), stringField(body, "qualityGrade"), formatNumber(confidence))
	case "risk":
		score, _ := numeric(body["overallRiskScore"])
		return fmt.Sprintf("risk score %s/100 (confidence %s%%)",
			formatNumber(score), formatNumber(confidence))
	default:
		return fmt.Sprintf("analysis complete (confidence %s%%)", formatNumber(confidence))
	}
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return "unknown"
}

// formatNumber renders a float without a trailing .0 for whole values.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// numeric coerces the JSON number representations into a float64.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
