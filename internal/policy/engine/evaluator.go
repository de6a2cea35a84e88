package engine

import (
	"context"
	"sort"

	monitordomain "sessionguard/internal/monitor/domain"
)

// Recommended response actions.
const (
	ActionMonitor                 = "monitor"
	ActionRateLimitIP             = "rate_limit_ip"
	ActionBlockIP                 = "block_ip"
	ActionRequireReauthentication = "require_reauthentication"
	ActionRevokeSession           = "revoke_session"
	ActionVerifyDevices           = "verify_devices"
	ActionNotifyAdmin             = "notify_admin"
)

// Evaluator decides which response actions fit a detected threat.
type Evaluator interface {
	// RecommendActions returns the sorted, de-duplicated actions for threat.
	RecommendActions(ctx context.Context, threat monitordomain.ThreatAssessment) ([]string, error)
}

// StaticActions mirrors the default response policy without a policy engine.
// It is the fallback when evaluation fails.
func StaticActions(threat monitordomain.ThreatAssessment) []string {
	set := map[string]bool{}
	switch threat.Type {
	case monitordomain.ThreatBruteForce:
		set[ActionRateLimitIP] = true
		if threat.Severity.Rank() >= monitordomain.SeverityHigh.Rank() {
			set[ActionBlockIP] = true
		}
	case monitordomain.ThreatSessionHijack:
		set[ActionRequireReauthentication] = true
		if threat.Confidence >= 0.8 {
			set[ActionRevokeSession] = true
		}
	case monitordomain.ThreatMultipleDevices:
		set[ActionVerifyDevices] = true
	}
	switch threat.Severity {
	case monitordomain.SeverityCritical:
		set[ActionNotifyAdmin] = true
	case monitordomain.SeverityLow:
		set[ActionMonitor] = true
	}
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
