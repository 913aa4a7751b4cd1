package models

import "time"

// ProviderHealth is the observed health of an execution provider.
type ProviderHealth string

const (
	// HealthHealthy means the provider is accepting work normally.
	HealthHealthy ProviderHealth = "healthy"
	// HealthDegraded means recent failures were observed; the provider is
	// deprioritized but still eligible.
	HealthDegraded ProviderHealth = "degraded"
	// HealthUnavailable means the provider is excluded from selection until
	// a health reset.
	HealthUnavailable ProviderHealth = "unavailable"
)

// Valid returns true if the health is a known value.
func (h ProviderHealth) Valid() bool {
	switch h {
	case HealthHealthy, HealthDegraded, HealthUnavailable:
		return true
	default:
		return false
	}
}

// Provider describes a rate-limited backend execution agent.
type Provider struct {
	// ID is the unique identifier for this provider.
	ID string `json:"id"`
	// Model is the model identifier the provider runs.
	Model string `json:"model,omitempty"`
	// CredentialRef names the credential used to reach the provider. The
	// credential itself is never stored here.
	CredentialRef string `json:"credential_ref,omitempty"`
	// QuotaLimit is the renewable work-unit budget per cycle.
	QuotaLimit int64 `json:"quota_limit"`
	// QuotaUsed is monotonic between resets and clamped at QuotaLimit.
	QuotaUsed int64 `json:"quota_used"`
	// QuotaResetAt is when the quota cycle renews.
	QuotaResetAt time.Time `json:"quota_reset_at"`
	// CostPerUnit is the average dollar cost per work unit.
	CostPerUnit float64 `json:"cost_per_unit"`
	// Active indicates the provider is administratively enabled.
	Active bool `json:"active"`
	// Health is the observed execution health.
	Health ProviderHealth `json:"health"`
	// LastUsedAt is when the provider last executed a task.
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Headroom returns the remaining quota units this cycle.
func (p Provider) Headroom() int64 {
	if p.QuotaUsed >= p.QuotaLimit {
		return 0
	}
	return p.QuotaLimit - p.QuotaUsed
}

// Eligible reports whether the provider can be offered work: active,
// not unavailable, and quota remaining.
func (p Provider) Eligible() bool {
	return p.Active && p.Health != HealthUnavailable && p.Headroom() > 0
}
