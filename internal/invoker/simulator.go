package invoker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/basinops/basinops-kernel/pkg/contracts"
	"github.com/basinops/basinops-kernel/pkg/types"
)

// Package invoker provides the simulated worker backend: deterministic
// per-domain fixture payloads behind the invoker contract. It powers demo
// mode in kerneld and the wiring tests that drive the full kernel path
// without a real fleet.

// Config tunes the simulator.
type Config struct {
	// FailureRate injects failures with the given probability in [0,1].
	FailureRate float64

	// Latency delays every call by a fixed amount.
	Latency time.Duration

	// Seed pins the failure-injection RNG; zero seeds from the clock.
	Seed int64
}

// Simulator answers invocations for the whole fleet with fixture payloads.
type Simulator struct {
	cfg    Config
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Simulator.
func New(cfg Config, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// InvokeFunc adapts the simulator to the contract the executor consumes.
func (s *Simulator) InvokeFunc() contracts.InvokeFunc {
	return s.Invoke
}

// Invoke produces the fixture response for one worker.
func (s *Simulator) Invoke(ctx context.Context, serverName string, args map[string]any) (*types.ToolResponse, error) {
	if s.cfg.Latency > 0 {
		timer := time.NewTimer(s.cfg.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if s.shouldFail() {
		s.logger.Debug("injected failure", zap.String("server", serverName))
		return nil, fmt.Errorf("503 temporarily unavailable: %s worker", serverName)
	}

	basin, _ := args["basin"].(string)
	if basin == "" {
		basin = "Permian"
	}

	return &types.ToolResponse{
		Success: true,
		Data:    fixtureFor(serverName, basin),
	}, nil
}

func (s *Simulator) shouldFail() bool {
	if s.cfg.FailureRate <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < s.cfg.FailureRate
}

// fixtureFor returns the deterministic raw payload a worker would produce.
// The four shaped domains carry their full envelope so every detail level
// has something to project.
func fixtureFor(serverName, basin string) map[string]any {
	switch serverName {
	case "geowiz":
		return map[string]any{
			"geological": map[string]any{
				"basin":                basin,
				"reservoirQuality":     "excellent",
				"recommendedAction":    "proceed to leasing",
				"professionalSummary":  fmt.Sprintf("Wolfcamp A in the %s shows 8%% porosity with strong lateral continuity.", basin),
				"hydrocarbonPotential": "high",
				"geologicalConfidence": 0.87,
				"confidence":           float64(87),
				"keyRisks":             []any{"fault shadow uncertainty", "water saturation in lower bench", "offset depletion", "thin upper bench"},
				"formationTops":        map[string]any{"wolfcampA": 8750, "wolfcampB": 9120},
				"netPay":               142,
			},
		}
	case "econobot":
		return map[string]any{
			"economic": map[string]any{
				"basin":         basin,
				"npv":           32_500_000,
				"irr":           22.4,
				"roi":           1.8,
				"paybackMonths": 21,
				"confidence":    float64(78),
				"assumptions": []any{
					"WTI $72/bbl flat", "8% discount rate", "D&C $7.2M per well",
					"LOE $9/boe", "NRI 75%", "45-day spud to sales", "3% annual opex escalation",
				},
				"monthlyData":         []any{1.2, 1.4, 1.3, 1.1},
				"sensitivityAnalysis": map[string]any{"oilPrice": "NPV swings $11M across $60-85"},
			},
		}
	case "curve-smith":
		return map[string]any{
			"curve": map[string]any{
				"basin":        basin,
				"initialRate":  950,
				"eur":          485_000,
				"qualityGrade": "B+",
				"confidence":   float64(81),
				"declineRate":  0.68,
				"bFactor":      1.1,
			},
		}
	case "risk-analysis":
		return map[string]any{
			"risk": map[string]any{
				"basin":            basin,
				"overallRiskScore": 34,
				"confidence":       float64(74),
				"riskFactors":      []any{"commodity price", "takeaway constraints", "service cost inflation"},
				"mitigations":      []any{"hedge 60% of year-one volumes", "secure firm transport"},
			},
		}
	case "reporter":
		return map[string]any{
			"confidence": float64(90),
			"report": map[string]any{
				"title":    fmt.Sprintf("%s Basin Due Diligence Report", basin),
				"sections": []any{"geology", "economics", "risk", "recommendation"},
				"format":   "pdf",
			},
		}
	case "decision":
		return map[string]any{
			"confidence": float64(83),
			"recommendation": map[string]any{
				"action":    "invest",
				"basin":     basin,
				"rationale": "economics clear hurdle rate with manageable geological risk",
			},
		}
	default:
		return map[string]any{
			"confidence": float64(75),
			"server":     serverName,
			"basin":      basin,
			"findings":   []any{fmt.Sprintf("%s review of the %s basin complete", serverName, basin)},
		}
	}
}
