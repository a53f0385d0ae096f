package types

import "time"

// Package types defines the public data records exchanged across the kernel
// boundary: identities, tool requests and responses, bundles, audit entries.
//
// Every kernel facade method accepts and returns these plain records. They
// carry JSON tags because they appear verbatim in audit lines and in shaped
// responses handed back to callers.

// Identity and access

// Role is the coarse access tier of an identity.
type Role string

const (
	RoleAnalyst   Role = "analyst"
	RoleEngineer  Role = "engineer"
	RoleExecutive Role = "executive"
	RoleAdmin     Role = "admin"
)

// Permission names a single grantable capability.
type Permission string

const (
	PermReadAnalysis     Permission = "read:analysis"
	PermWriteReports     Permission = "write:reports"
	PermExecuteDecisions Permission = "execute:decisions"
	PermAdminServers     Permission = "admin:servers"
	PermAdminUsers       Permission = "admin:users"
)

// Identity is a pre-authenticated caller. Effective permissions are the
// union of the role's defaults and the explicit grants listed here.
type Identity struct {
	UserID       string       `json:"userId"`
	Role         Role         `json:"role"`
	Permissions  []Permission `json:"permissions,omitempty"`
	Organization string       `json:"organization,omitempty"`
	DisplayName  string       `json:"displayName,omitempty"`
}

// AuthDecision is the outcome of evaluating a (tool, identity) pair.
type AuthDecision struct {
	Allowed             bool         `json:"allowed"`
	Reason              string       `json:"reason,omitempty"`
	RequiredPermissions []Permission `json:"requiredPermissions,omitempty"`
	RequiredRole        Role         `json:"requiredRole,omitempty"`
}

// Sessions

// RiskTolerance expresses how aggressive a caller wants analyses framed.
type RiskTolerance string

const (
	RiskConservative RiskTolerance = "conservative"
	RiskModerate     RiskTolerance = "moderate"
	RiskAggressive   RiskTolerance = "aggressive"
)

// SessionPreferences are caller-tunable defaults attached to a session.
type SessionPreferences struct {
	DefaultBasin       string         `json:"defaultBasin,omitempty"`
	RiskTolerance      RiskTolerance  `json:"riskTolerance,omitempty"`
	DetailLevel        DetailLevel    `json:"detailLevel,omitempty"`
	InvestmentCriteria map[string]any `json:"investmentCriteria,omitempty"`
}

// InjectedContext is the session-derived context computed on each access.
// It is handed to callers, never merged into invoker args automatically.
type InjectedContext struct {
	UserID           string        `json:"userId"`
	Role             Role          `json:"role"`
	SessionID        string        `json:"sessionId"`
	Timestamp        string        `json:"timestamp"`
	Timezone         string        `json:"timezone"`
	DefaultBasin     string        `json:"defaultBasin,omitempty"`
	RiskTolerance    RiskTolerance `json:"riskTolerance,omitempty"`
	AvailableResults []string      `json:"availableResults"`
}

// WhoAmI pairs a session's identity with its current injected context.
type WhoAmI struct {
	Identity Identity        `json:"identity"`
	Context  InjectedContext `json:"context"`
}

// Servers and tools

// ServerConfig describes one worker in the fleet.
type ServerConfig struct {
	Name         string   `json:"name"`
	Domain       string   `json:"domain"`
	Persona      string   `json:"persona"`
	Capabilities []string `json:"capabilities"`
}

// ToolType distinguishes read-only queries from side-effecting commands.
type ToolType string

const (
	ToolQuery   ToolType = "query"
	ToolCommand ToolType = "command"
)

// DetailLevel controls how aggressively a raw payload is projected.
type DetailLevel string

const (
	DetailSummary  DetailLevel = "summary"
	DetailStandard DetailLevel = "standard"
	DetailFull     DetailLevel = "full"
)

// Tool is one callable entry in the registry. Command tools always require
// confirmation and are never read-only.
type Tool struct {
	Name                 string        `json:"name"`
	Server               string        `json:"server"`
	Description          string        `json:"description,omitempty"`
	Type                 ToolType      `json:"type"`
	ReadOnly             bool          `json:"readOnly"`
	RequiresConfirmation bool          `json:"requiresConfirmation"`
	DetailLevels         []DetailLevel `json:"detailLevels"`
}

// Requests and responses

// ToolRequest asks the kernel to run one tool.
type ToolRequest struct {
	ToolName    string         `json:"toolName"`
	Args        map[string]any `json:"args,omitempty"`
	DetailLevel DetailLevel    `json:"detailLevel,omitempty"`
}

// ErrorType is the four-way failure taxonomy every error is classified into.
type ErrorType string

const (
	ErrRetryable    ErrorType = "retryable"
	ErrPermanent    ErrorType = "permanent"
	ErrAuthRequired ErrorType = "auth_required"
	ErrUserAction   ErrorType = "user_action"
)

// ErrorDetail carries a classified failure plus recovery hints. The
// permission fields are populated only on auth denials.
type ErrorDetail struct {
	Type                ErrorType    `json:"type"`
	Message             string       `json:"message"`
	Reason              string       `json:"reason,omitempty"`
	RecoverySteps       []string     `json:"recoverySteps,omitempty"`
	AlternativeTools    []string     `json:"alternativeTools,omitempty"`
	RetryAfterMs        int64        `json:"retryAfterMs,omitempty"`
	RequiredPermissions []Permission `json:"requiredPermissions,omitempty"`
	RequiredRole        Role         `json:"requiredRole,omitempty"`
}

// ResponseMetadata records where and how a response was produced.
type ResponseMetadata struct {
	Server            string `json:"server"`
	Persona           string `json:"persona,omitempty"`
	ExecutionTimeMs   int64  `json:"executionTimeMs"`
	Timestamp         string `json:"timestamp"`
	RetryAttempts     int    `json:"retryAttempts,omitempty"`
	TotalRetryDelayMs int64  `json:"totalRetryDelayMs,omitempty"`
}

// ToolResponse is the kernel's uniform result record. Failures never travel
// as Go errors through the public API; they arrive here with Success=false
// and a populated Error.
type ToolResponse struct {
	Success      bool             `json:"success"`
	Summary      string           `json:"summary,omitempty"`
	Confidence   float64          `json:"confidence"`
	Data         map[string]any   `json:"data,omitempty"`
	DetailLevel  DetailLevel      `json:"detailLevel,omitempty"`
	Completeness int              `json:"completeness"`
	Metadata     ResponseMetadata `json:"metadata"`
	Error        *ErrorDetail     `json:"error,omitempty"`
}

// Bundles

// GatherStrategy decides how step outcomes roll up into overall success.
type GatherStrategy string

const (
	GatherAll      GatherStrategy = "all"
	GatherMajority GatherStrategy = "majority"
)

// BundleStep is one tool invocation inside a bundle. DependsOn references
// peer steps by tool name and must form a DAG.
type BundleStep struct {
	ToolName    string      `json:"toolName"`
	DetailLevel DetailLevel `json:"detailLevel,omitempty"`
	Parallel    bool        `json:"parallel"`
	Optional    bool        `json:"optional,omitempty"`
	DependsOn   []string    `json:"dependsOn,omitempty"`
}

// Bundle is a declarative named workflow.
type Bundle struct {
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Steps          []BundleStep   `json:"steps"`
	GatherStrategy GatherStrategy `json:"gatherStrategy"`
}

// RecoveryGuide annotates a failure with everything an external retrier
// needs: taxonomy tag, human reason, concrete steps, substitutes, delay.
type RecoveryGuide struct {
	ErrorType        ErrorType `json:"errorType"`
	Reason           string    `json:"reason,omitempty"`
	RecoverySteps    []string  `json:"recoverySteps,omitempty"`
	AlternativeTools []string  `json:"alternativeTools,omitempty"`
	RetryAfterMs     int64     `json:"retryAfterMs,omitempty"`
}

// StepFailure records one failed request inside a gathered result.
type StepFailure struct {
	ToolName      string         `json:"toolName"`
	Error         *ErrorDetail   `json:"error"`
	RecoveryGuide *RecoveryGuide `json:"recoveryGuide,omitempty"`
}

// GatheredResult aggregates a scatter-gather: every requested tool appears
// either in Results (keyed by tool name) or in Failures, and always in
// Results when it produced a response at all.
type GatheredResult struct {
	Results      map[string]*ToolResponse `json:"results"`
	Failures     []StepFailure            `json:"failures"`
	Completeness int                      `json:"completeness"`
	TotalTimeMs  int64                    `json:"totalTimeMs"`
}

// BundleResult extends GatheredResult with bundle-level outcome.
type BundleResult struct {
	GatheredResult
	BundleName     string         `json:"bundleName"`
	Phases         [][]BundleStep `json:"phases"`
	OverallSuccess bool           `json:"overallSuccess"`
}

// DegradationReport describes how much of an expected result set arrived
// and what to do about the rest.
type DegradationReport struct {
	Completeness int                 `json:"completeness"`
	Missing      []string            `json:"missing,omitempty"`
	Failed       []string            `json:"failed,omitempty"`
	Suggestions  []string            `json:"suggestions,omitempty"`
	Alternatives map[string][]string `json:"alternatives,omitempty"`
}

// Confirmation gate

// PendingAction is a command invocation parked at the confirmation gate.
// It lives from interception until confirm or cancel, and is single-use.
type PendingAction struct {
	ActionID  string         `json:"actionId"`
	ToolName  string         `json:"toolName"`
	Args      map[string]any `json:"args,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Audit

// AuditAction is the lifecycle stage an audit entry records.
type AuditAction string

const (
	AuditRequest  AuditAction = "request"
	AuditResponse AuditAction = "response"
	AuditDenied   AuditAction = "denied"
	AuditError    AuditAction = "error"
)

// AuditEntry is one JSON line in the audit trail. Parameters are stored
// redacted; sensitive values never reach disk verbatim.
type AuditEntry struct {
	Tool       string         `json:"tool"`
	Action     AuditAction    `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
	UserID     string         `json:"userId"`
	SessionID  string         `json:"sessionId,omitempty"`
	Role       Role           `json:"role,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Success    *bool          `json:"success,omitempty"`
	DurationMs int64          `json:"durationMs,omitempty"`
	ErrorType  ErrorType      `json:"errorType,omitempty"`
}
