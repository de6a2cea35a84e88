package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	monitordomain "sessionguard/internal/monitor/domain"
	"sessionguard/internal/policy/repository"
)

const actionsQuery = "data.sessionguard.response.actions"

// Default Rego policy; StaticActions implements the same table in Go.
const defaultRegoPolicy = `package sessionguard.response

high_or_worse := {"high", "critical"}

actions contains "rate_limit_ip" if {
	input.threat.type == "brute_force"
}

actions contains "block_ip" if {
	input.threat.type == "brute_force"
	input.threat.severity in high_or_worse
}

actions contains "require_reauthentication" if {
	input.threat.type == "session_hijack"
}

actions contains "revoke_session" if {
	input.threat.type == "session_hijack"
	input.threat.confidence >= 0.8
}

actions contains "verify_devices" if {
	input.threat.type == "multiple_devices"
}

actions contains "notify_admin" if {
	input.threat.severity == "critical"
}

actions contains "monitor" if {
	input.threat.severity == "low"
}
`

// OPAEvaluator evaluates threat-response policies using OPA Rego. The default
// policy is prepared once; tenant policies are compiled per evaluation.
type OPAEvaluator struct {
	policyRepo repository.Repository
	prepared   rego.PreparedEvalQuery
	log        *slog.Logger
}

// NewOPAEvaluator compiles the default policy. policyRepo may be nil, in which
// case every tenant uses the default policy.
func NewOPAEvaluator(ctx context.Context, policyRepo repository.Repository, log *slog.Logger) (*OPAEvaluator, error) {
	if log == nil {
		log = slog.Default()
	}
	prepared, err := rego.New(
		rego.Query(actionsQuery),
		rego.Module("default_response.rego", defaultRegoPolicy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare default policy: %w", err)
	}
	return &OPAEvaluator{policyRepo: policyRepo, prepared: prepared, log: log}, nil
}

// HealthCheck evaluates the default policy against a minimal threat.
// Does not call the policy repo or database. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	rs, err := e.prepared.Eval(ctx, rego.EvalInput(buildInput(monitordomain.ThreatAssessment{
		Type:     monitordomain.ThreatBruteForce,
		Severity: monitordomain.SeverityMedium,
	})))
	if err != nil {
		return fmt.Errorf("eval default policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

// RecommendActions evaluates the tenant's enabled policies, or the default
// policy when the tenant has none. Evaluation failures fall back to
// StaticActions and are logged rather than returned.
func (e *OPAEvaluator) RecommendActions(ctx context.Context, threat monitordomain.ThreatAssessment) ([]string, error) {
	input := buildInput(threat)

	var policies []string
	if e.policyRepo != nil && threat.TenantID != "" {
		enabled, err := e.policyRepo.GetEnabledPoliciesByTenant(ctx, threat.TenantID)
		if err != nil {
			e.log.WarnContext(ctx, "policy: failed to load response policies", "tenant_id", threat.TenantID, "error", err)
		} else {
			for _, p := range enabled {
				if p.Enabled && p.Rules != "" {
					policies = append(policies, p.Rules)
				}
			}
		}
	}

	var (
		rs  rego.ResultSet
		err error
	)
	if len(policies) == 0 {
		rs, err = e.prepared.Eval(ctx, rego.EvalInput(input))
	} else {
		rs, err = evalModules(ctx, policies, input)
	}
	if err != nil {
		e.log.WarnContext(ctx, "policy: evaluation failed, using static actions", "threat_type", string(threat.Type), "error", err)
		return StaticActions(threat), nil
	}
	return actionsFromResult(rs), nil
}

func evalModules(ctx context.Context, policies []string, input map[string]interface{}) (rego.ResultSet, error) {
	modules := make(map[string]string, len(policies))
	for i, p := range policies {
		modules[fmt.Sprintf("policy_%d.rego", i)] = p
	}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return nil, fmt.Errorf("compile policies: %w", err)
	}
	return rego.New(
		rego.Query(actionsQuery),
		rego.Compiler(compiler),
		rego.Input(input),
	).Eval(ctx)
}

func buildInput(threat monitordomain.ThreatAssessment) map[string]interface{} {
	details := threat.Details
	if details == nil {
		details = map[string]any{}
	}
	reasons := threat.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return map[string]interface{}{
		"threat": map[string]interface{}{
			"type":       string(threat.Type),
			"severity":   string(threat.Severity),
			"confidence": threat.Confidence,
			"tenant_id":  threat.TenantID,
			"subject_id": threat.SubjectID,
			"ip_address": threat.IPAddress,
			"details":    details,
			"reasons":    reasons,
		},
	}
}

// actionsFromResult reads the actions set. An undefined set yields no actions.
func actionsFromResult(rs rego.ResultSet) []string {
	out := make([]string, 0)
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return out
	}
	values, ok := rs[0].Expressions[0].Value.([]interface{})
	if !ok {
		return out
	}
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
