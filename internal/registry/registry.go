package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/basinops/basinops-kernel/pkg/types"
)

// Package registry holds the static catalog of analysis servers, the tools
// they expose, and the tool-to-permission mapping. The catalog is built once
// at startup and never mutated; rebuilding it from the same configs yields
// identical state.

// Basinops worker fleet
//
// Every worker exposes exactly one logical tool "<server>.analyze". The two
// command workers (reporter, decision) produce side effects and are gated
// behind the confirmation flow; everything else is a read-only query.
var DefaultServerConfigs = []types.ServerConfig{
	// === QUERY SERVERS ===
	{
		Name:         "geowiz",
		Domain:       "geology",
		Persona:      "staff geologist",
		Capabilities: []string{"formation-evaluation", "reservoir-quality", "well-log-interpretation", "play-mapping"},
	},
	{
		Name:         "econobot",
		Domain:       "economics",
		Persona:      "petroleum economist",
		Capabilities: []string{"npv-modeling", "irr-analysis", "cash-flow-forecast", "sensitivity-analysis"},
	},
	{
		Name:         "curve-smith",
		Domain:       "engineering",
		Persona:      "reservoir engineer",
		Capabilities: []string{"decline-curve-fitting", "eur-estimation", "type-curve-generation"},
	},
	{
		Name:         "risk-analysis",
		Domain:       "risk",
		Persona:      "risk manager",
		Capabilities: []string{"risk-scoring", "monte-carlo-simulation", "mitigation-planning"},
	},
	{
		Name:         "market",
		Domain:       "market",
		Persona:      "market analyst",
		Capabilities: []string{"commodity-pricing", "basis-differentials", "demand-outlook"},
	},
	{
		Name:         "legal",
		Domain:       "legal",
		Persona:      "landman counsel",
		Capabilities: []string{"contract-review", "regulatory-compliance", "permitting"},
	},
	{
		Name:         "title",
		Domain:       "land",
		Persona:      "title examiner",
		Capabilities: []string{"title-examination", "ownership-verification", "lease-status"},
	},
	{
		Name:         "drilling",
		Domain:       "drilling",
		Persona:      "drilling engineer",
		Capabilities: []string{"well-design", "drilling-cost-estimation", "schedule-planning"},
	},
	{
		Name:         "infrastructure",
		Domain:       "midstream",
		Persona:      "facilities engineer",
		Capabilities: []string{"takeaway-capacity", "gathering-systems", "water-handling"},
	},
	{
		Name:         "development",
		Domain:       "planning",
		Persona:      "development planner",
		Capabilities: []string{"spacing-optimization", "drilling-program", "capital-scheduling"},
	},
	{
		Name:         "research",
		Domain:       "research",
		Persona:      "research librarian",
		Capabilities: []string{"literature-search", "operator-intelligence", "analog-benchmarking"},
	},
	{
		Name:         "test",
		Domain:       "quality",
		Persona:      "QA engineer",
		Capabilities: []string{"data-validation", "pipeline-verification", "consistency-checks"},
	},

	// === COMMAND SERVERS (confirmation gated) ===
	{
		Name:         "reporter",
		Domain:       "reporting",
		Persona:      "technical writer",
		Capabilities: []string{"report-generation", "executive-summaries", "document-assembly"},
	},
	{
		Name:         "decision",
		Domain:       "strategy",
		Persona:      "investment committee",
		Capabilities: []string{"investment-recommendation", "portfolio-ranking", "go-no-go-calls"},
	},
}

// commandServers are the workers whose single tool is a side-effecting
// command (readOnly=false, requiresConfirmation=true).
var commandServers = map[string]bool{
	"reporter": true,
	"decision": true,
}

var toolDescriptions = map[string]string{
	"geowiz":         "Formation evaluation and reservoir quality assessment for a prospect.",
	"econobot":       "Discounted cash-flow economics: NPV, IRR, ROI and payback.",
	"curve-smith":    "Decline-curve fitting and EUR estimation from production data.",
	"risk-analysis":  "Aggregate risk scoring across geological, financial and operational factors.",
	"market":         "Commodity price outlook and regional basis analysis.",
	"legal":          "Contract, permitting and regulatory exposure review.",
	"title":          "Mineral title examination and ownership verification.",
	"drilling":       "Well design, drilling cost and schedule estimation.",
	"infrastructure": "Takeaway, gathering and water-handling capacity review.",
	"development":    "Development program layout and capital scheduling.",
	"research":       "Background research, analogs and operator intelligence.",
	"test":           "Validation pass over upstream analysis outputs.",
	"reporter":       "Assembles the final due-diligence report document.",
	"decision":       "Issues the investment recommendation for the prospect.",
}

// allDetailLevels is what every tool supports.
var allDetailLevels = []types.DetailLevel{types.DetailSummary, types.DetailStandard, types.DetailFull}

// Filter narrows ListServers output. Zero values match everything.
type Filter struct {
	Domain     string
	Type       types.ToolType
	Capability string
}

// Registry is the immutable server/tool catalog.
type Registry struct {
	servers map[string]types.ServerConfig
	order   []string
	tools   map[string]types.Tool
}

// New builds a Registry from server configurations.
func New(configs []types.ServerConfig) (*Registry, error) {
	r := &Registry{
		servers: make(map[string]types.ServerConfig, len(configs)),
		tools:   make(map[string]types.Tool, len(configs)),
	}
	for _, cfg := range configs {
		if cfg.Name == "" {
			return nil, fmt.Errorf("server config with empty name")
		}
		if _, exists := r.servers[cfg.Name]; exists {
			return nil, fmt.Errorf("duplicate server config: %s", cfg.Name)
		}
		r.servers[cfg.Name] = cfg
		r.order = append(r.order, cfg.Name)

		tool := deriveTool(cfg)
		r.tools[tool.Name] = tool
	}
	return r, nil
}

// Default builds the registry for the built-in fleet.
func Default() *Registry {
	r, err := New(DefaultServerConfigs)
	if err != nil {
		panic(fmt.Sprintf("registry: default server configs are invalid: %v", err))
	}
	return r
}

// deriveTool produces the single logical tool a server exposes.
func deriveTool(cfg types.ServerConfig) types.Tool {
	command := commandServers[cfg.Name]
	return types.Tool{
		Name:                 CanonicalToolName(cfg.Name),
		Server:               cfg.Name,
		Description:          toolDescriptions[cfg.Name],
		Type:                 toolType(command),
		ReadOnly:             !command,
		RequiresConfirmation: command,
		DetailLevels:         allDetailLevels,
	}
}

func toolType(command bool) types.ToolType {
	if command {
		return types.ToolCommand
	}
	return types.ToolQuery
}

// CanonicalToolName returns the dotted tool name for a server.
func CanonicalToolName(serverName string) string {
	return serverName + ".analyze"
}

// ServerName returns the leading segment of a dotted tool name. Bare server
// names pass through unchanged.
func ServerName(toolName string) string {
	if i := strings.IndexByte(toolName, '.'); i >= 0 {
		return toolName[:i]
	}
	return toolName
}

// RequiredPermission maps a tool name to the permission needed to call it.
// The mapping is a pure function of the leading server segment; unknown
// servers default to read access.
func RequiredPermission(toolName string) types.Permission {
	switch ServerName(toolName) {
	case "reporter":
		return types.PermWriteReports
	case "decision":
		return types.PermExecuteDecisions
	case "admin":
		return types.PermAdminServers
	default:
		return types.PermReadAnalysis
	}
}

// ListServers returns servers matching the filter, in registration order.
func (r *Registry) ListServers(filter *Filter) []types.ServerConfig {
	var out []types.ServerConfig
	for _, name := range r.order {
		cfg := r.servers[name]
		if filter != nil {
			if filter.Domain != "" && cfg.Domain != filter.Domain {
				continue
			}
			if filter.Type != "" {
				tool := r.tools[CanonicalToolName(cfg.Name)]
				if tool.Type != filter.Type {
					continue
				}
			}
			if filter.Capability != "" && !hasCapability(cfg, filter.Capability) {
				continue
			}
		}
		out = append(out, cfg)
	}
	return out
}

// DescribeTools returns the tool records for one server, or for the whole
// fleet when serverName is empty. Tools come back sorted by name.
func (r *Registry) DescribeTools(serverName string) []types.Tool {
	var out []types.Tool
	if serverName != "" {
		if _, ok := r.servers[serverName]; !ok {
			return nil
		}
		out = append(out, r.tools[CanonicalToolName(serverName)])
		return out
	}
	for _, tool := range r.tools {
		out = append(out, tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FindCapability returns servers advertising a capability that contains the
// given string, matched case-insensitively.
func (r *Registry) FindCapability(name string) []types.ServerConfig {
	var out []types.ServerConfig
	for _, serverName := range r.order {
		cfg := r.servers[serverName]
		if hasCapability(cfg, name) {
			out = append(out, cfg)
		}
	}
	return out
}

func hasCapability(cfg types.ServerConfig, name string) bool {
	needle := strings.ToLower(name)
	for _, cap := range cfg.Capabilities {
		if strings.Contains(strings.ToLower(cap), needle) {
			return true
		}
	}
	return false
}

// ResolveServer accepts both "server.verb" and bare "server" forms.
func (r *Registry) ResolveServer(name string) (types.ServerConfig, bool) {
	cfg, ok := r.servers[ServerName(name)]
	return cfg, ok
}

// ResolveTool returns the tool record for a dotted tool name or a bare
// server name.
func (r *Registry) ResolveTool(toolName string) (types.Tool, bool) {
	if tool, ok := r.tools[toolName]; ok {
		return tool, true
	}
	// Fall back to the server's canonical tool so alternate verb spellings
	// resolve to the same registration.
	if cfg, ok := r.servers[ServerName(toolName)]; ok {
		return r.tools[CanonicalToolName(cfg.Name)], true
	}
	return types.Tool{}, false
}

// ServerCount returns the number of registered servers.
func (r *Registry) ServerCount() int {
	return len(r.servers)
}
