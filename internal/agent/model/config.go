package model

import (
	"strings"
	"time"
)

// ================ Config ================

// SessionLimitsConfig fixes the session's hard ceilings at creation time.
type SessionLimitsConfig struct {
	MaxDuration    time.Duration `envconfig:"SESSION_MAX_DURATION" default:"30m"`
	MaxCostUSD     float64       `envconfig:"SESSION_MAX_COST_USD" default:"5.0"`
	SilenceTimeout time.Duration `envconfig:"SESSION_SILENCE_TIMEOUT" default:"30s"`
	SilenceGrace   time.Duration `envconfig:"SESSION_SILENCE_GRACE" default:"10s"`
	TickInterval   time.Duration `envconfig:"SESSION_TICK_INTERVAL" default:"30s"`
}

// RoutingConfig carries the qualification thresholds. These are business
// parameters, so they stay externally configurable rather than hard-coded.
type RoutingConfig struct {
	TeamSizeMin            int    `envconfig:"ROUTING_TEAM_SIZE_MIN" default:"5"`
	MonthlyVolumeMin       int    `envconfig:"ROUTING_MONTHLY_VOLUME_MIN" default:"100"`
	ComplexIndustryTeamMin int    `envconfig:"ROUTING_COMPLEX_INDUSTRY_TEAM_MIN" default:"3"`
	CRMIntegrations        string `envconfig:"ROUTING_CRM_INTEGRATIONS" default:"salesforce,hubspot,crm,api,embedded"`
	ComplexIndustries      string `envconfig:"ROUTING_COMPLEX_INDUSTRIES" default:"healthcare,finance,legal"`
}

// CRMSet returns the CRM/API integration names as a lookup set.
func (c *RoutingConfig) CRMSet() map[string]struct{} {
	return splitSet(c.CRMIntegrations)
}

// ComplexIndustrySet returns the complex-industry names as a lookup set.
func (c *RoutingConfig) ComplexIndustrySet() map[string]struct{} {
	return splitSet(c.ComplexIndustries)
}

func splitSet(csv string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, v := range strings.Split(csv, ",") {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

// BreakerConfig tunes the per-dependency circuit breakers.
type BreakerConfig struct {
	FailureThreshold int           `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"3"`
	Cooldown         time.Duration `envconfig:"BREAKER_COOLDOWN" default:"60s"`
}

// DriverModelConfig configures the conversation driver's chat model.
type DriverModelConfig struct {
	Model       string  `envconfig:"DRIVER_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"DRIVER_MAX_TOKENS" default:"1000"`
	Temperature float32 `envconfig:"DRIVER_TEMPERATURE" default:"0.4"`
}

// ConversationConfig bounds the in-memory turn history handed to the driver.
type ConversationConfig struct {
	HistoryMaxTurns int `envconfig:"CONVERSATION_HISTORY_MAX_TURNS" default:"20"`
	MaxToolsPerTurn int `envconfig:"CONVERSATION_MAX_TOOLS_PER_TURN" default:"3"`
}

// PromptConfig parameterizes the driver's system prompt.
type PromptConfig struct {
	BusinessType string `envconfig:"PROMPT_BUSINESS_TYPE" default:"document workflow platform"`
	BusinessName string `envconfig:"PROMPT_BUSINESS_NAME" default:"DocuFlow"`
}
