package shaper

import (
	"reflect"
	"testing"

	"github.com/basinops/basinops-kernel/pkg/types"
)

func geologicalPayload() map[string]any {
	return map[string]any{
		"geological": map[string]any{
			"reservoirQuality":     "excellent",
			"recommendedAction":    "proceed",
			"professionalSummary":  "Wolfcamp A shows strong porosity.",
			"hydrocarbonPotential": "high",
			"geologicalConfidence": 0.82,
			"confidence":           float64(85),
			"keyRisks":             []any{"faulting", "water saturation", "thin pay", "depletion"},
			"formationTops":        map[string]any{"wolfcampA": 8750},
			"sensitivityAnalysis":  map[string]any{"porosity": "plus or minus 2pp"},
		},
	}
}

func TestShapeDefaultsToStandard(t *testing.T) {
	resp := Shape(geologicalPayload(), Options{Server: "geowiz"})
	if resp.DetailLevel != types.DetailStandard {
		t.Fatalf("default detail level = %s, want standard", resp.DetailLevel)
	}
	if !resp.Success || resp.Completeness != 100 {
		t.Errorf("shaped response should be a complete success, got %+v", resp)
	}
}

func TestShapeFullReturnsPayloadVerbatim(t *testing.T) {
	raw := geologicalPayload()
	resp := Shape(raw, Options{Server: "geowiz", DetailLevel: types.DetailFull})
	if !reflect.DeepEqual(resp.Data, raw) {
		t.Errorf("full detail must echo the payload, got %+v", resp.Data)
	}
}

func TestShapeSummaryWhitelist(t *testing.T) {
	resp := Shape(geologicalPayload(), Options{Server: "geowiz", DetailLevel: types.DetailSummary})

	body, ok := resp.Data["geological"].(map[string]any)
	if !ok {
		t.Fatalf("summary should keep the domain envelope, got %+v", resp.Data)
	}
	if _, ok := body["formationTops"]; ok {
		t.Error("formationTops should not survive summary detail")
	}
	if _, ok := body["sensitivityAnalysis"]; ok {
		t.Error("sensitivityAnalysis should not survive summary detail")
	}
	if body["reservoirQuality"] != "excellent" {
		t.Errorf("reservoirQuality missing from summary: %+v", body)
	}

	risks, ok := body["keyRisks"].([]any)
	if !ok {
		t.Fatalf("keyRisks missing from summary: %+v", body)
	}
	if len(risks) != 3 {
		t.Errorf("keyRisks should be capped at 3, got %d", len(risks))
	}
}

func TestShapeStandardStripsNoise(t *testing.T) {
	raw := map[string]any{
		"economic": map[string]any{
			"npv":                 32_500_000,
			"irr":                 22.5,
			"confidence":          float64(78),
			"sensitivityAnalysis": map[string]any{"oilPrice": "swing"},
			"monthlyData":         []any{1.0, 2.0, 3.0},
			"assumptions":         []any{"a", "b", "c", "d", "e", "f", "g"},
			"scenario": map[string]any{
				"riskFactors": []any{"price", "cost"},
				"keep":        "me",
			},
		},
	}

	resp := Shape(raw, Options{Server: "econobot", DetailLevel: types.DetailStandard})
	body := resp.Data["economic"].(map[string]any)

	for _, gone := range []string{"sensitivityAnalysis", "monthlyData", "assumptions"} {
		if _, ok := body[gone]; ok {
			t.Errorf("%s should be stripped at standard detail", gone)
		}
	}
	scenario := body["scenario"].(map[string]any)
	if _, ok := scenario["riskFactors"]; ok {
		t.Error("nested riskFactors array should be stripped at standard detail")
	}
	if scenario["keep"] != "me" {
		t.Error("unrelated nested fields must be preserved")
	}
	if body["irr"] != 22.5 {
		t.Error("core fields must be preserved at standard detail")
	}
}

func TestShapeStandardKeepsShortAssumptions(t *testing.T) {
	raw := map[string]any{
		"economic": map[string]any{
			"npv":         1_000_000,
			"assumptions": []any{"a", "b", "c"},
		},
	}
	resp := Shape(raw, Options{DetailLevel: types.DetailStandard})
	body := resp.Data["economic"].(map[string]any)
	if _, ok := body["assumptions"]; !ok {
		t.Error("assumptions lists of six or fewer entries must be preserved")
	}
}

func TestSummaryTemplates(t *testing.T) {
	cases := []struct {
		name string
		raw  map[string]any
		want string
	}{
		{
			name: "geological",
			raw:  geologicalPayload(),
			want: "excellent prospect; recommended action: proceed (confidence 85%)",
		},
		{
			name: "economic",
			raw: map[string]any{"economic": map[string]any{
				"npv": 32_500_000, "irr": 22.5, "confidence": float64(78),
			}},
			want: "NPV $32.5M, IRR 22.5% (confidence 78%)",
		},
		{
			name: "curve",
			raw: map[string]any{"curve": map[string]any{
				"eur": 485_300.0, "qualityGrade": "B", "confidence": float64(74),
			}},
			want: "EUR 485K BOE, grade B (confidence 74%)",
		},
		{
			name: "risk",
			raw: map[string]any{"risk": map[string]any{
				"overallRiskScore": float64(42), "confidence": float64(80),
			}},
			want: "risk score 42/100 (confidence 80%)",
		},
		{
			name: "unknown",
			raw:  map[string]any{"confidence": float64(66), "weather": "cloudy"},
			want: "analysis complete (confidence 66%)",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := Shape(tc.raw, Options{})
			if resp.Summary != tc.want {
				t.Errorf("summary = %q, want %q", resp.Summary, tc.want)
			}
		})
	}
}

func TestConfidencePrecedence(t *testing.T) {
	raw := map[string]any{
		"geological": map[string]any{"confidence": float64(70)},
		"confidence": float64(50),
	}

	// Explicit option wins.
	override := 95.0
	resp := Shape(raw, Options{Confidence: &override})
	if resp.Confidence != 95 {
		t.Errorf("explicit confidence should win, got %v", resp.Confidence)
	}

	// Domain-key confidence beats top-level.
	resp = Shape(raw, Options{})
	if resp.Confidence != 70 {
		t.Errorf("domain confidence should win over top-level, got %v", resp.Confidence)
	}

	// Top-level used when no domain key carries one.
	resp = Shape(map[string]any{"confidence": float64(50)}, Options{})
	if resp.Confidence != 50 {
		t.Errorf("top-level confidence expected, got %v", resp.Confidence)
	}

	// Absent everywhere defaults to zero.
	resp = Shape(map[string]any{"weather": "cloudy"}, Options{})
	if resp.Confidence != 0 {
		t.Errorf("missing confidence should be 0, got %v", resp.Confidence)
	}
}

func TestUnknownDomainSummaryEchoesConfidence(t *testing.T) {
	resp := Shape(map[string]any{"confidence": float64(66), "weather": "cloudy"},
		Options{DetailLevel: types.DetailSummary})

	want := map[string]any{"confidence": float64(66)}
	if !reflect.DeepEqual(resp.Data, want) {
		t.Errorf("unknown-domain summary = %+v, want %+v", resp.Data, want)
	}
}

func TestFlatPayloadDetection(t *testing.T) {
	raw := map[string]any{
		"reservoirQuality":  "good",
		"recommendedAction": "lease",
		"confidence":        float64(61),
	}
	resp := Shape(raw, Options{DetailLevel: types.DetailSummary})
	if resp.Summary != "good prospect; recommended action: lease (confidence 61%)" {
		t.Errorf("flat geological payload mis-summarized: %q", resp.Summary)
	}
	if _, enveloped := resp.Data["geological"]; enveloped {
		t.Error("flat payloads should not gain an envelope")
	}
	if resp.Data["reservoirQuality"] != "good" {
		t.Errorf("flat summary lost fields: %+v", resp.Data)
	}
}

func TestShapeMetadata(t *testing.T) {
	resp := Shape(geologicalPayload(), Options{
		Server:          "geowiz",
		Persona:         "staff geologist",
		ExecutionTimeMs: 120,
	})
	md := resp.Metadata
	if md.Server != "geowiz" || md.Persona != "staff geologist" || md.ExecutionTimeMs != 120 {
		t.Errorf("metadata not carried through: %+v", md)
	}
	if md.Timestamp == "" {
		t.Error("metadata timestamp must be set")
	}
}
