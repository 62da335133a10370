package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

// ruleSeverities maps the rule names a policy may define to how their
// results are classified; "" means the policy's own severity.
var ruleSeverities = []struct {
	rule     string
	severity Severity
}{
	{"deny", ""},
	{"warn", SeverityWarning},
}

// Engine compiles Rego policies once and evaluates them against each unit
// of a catalog.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy  *Policy
	pkg     string
	queries map[string]rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	builtins := BuiltinPolicies()
	for i := range builtins {
		if err := e.compile(context.Background(), &builtins[i]); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}

	e.logger.Debug().Int("count", len(builtins)).Msg("Built-in policies loaded")
	return e, nil
}

// LoadPolicies loads and compiles policy files, replacing policies of the
// same name.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range policies {
		if err := e.compile(ctx, &policies[i]); err != nil {
			return engine.NewConfigurationError(
				fmt.Sprintf("failed to compile policy %s", policies[i].Name), err).
				WithCode(engine.ErrCodeValidation).
				WithDetail("source", policies[i].Source)
		}
	}

	e.logger.Info().Int("count", len(policies)).Msg("Policies loaded")
	return nil
}

// compile parses a policy and prepares one query per rule kind.
func (e *Engine) compile(ctx context.Context, policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}
	if module == nil {
		return fmt.Errorf("policy %s is empty", policy.Name)
	}

	cp := &compiledPolicy{
		policy:  policy,
		pkg:     module.Package.Path.String(),
		queries: make(map[string]rego.PreparedEvalQuery, len(ruleSeverities)),
	}

	for _, rs := range ruleSeverities {
		query, err := rego.New(
			rego.Module(policy.Name, policy.Rego),
			rego.Query(cp.pkg+"."+rs.rule),
		).PrepareForEval(ctx)
		if err != nil {
			return fmt.Errorf("failed to prepare %s query: %w", rs.rule, err)
		}
		cp.queries[rs.rule] = query
	}

	e.policies[policy.Name] = cp
	e.logger.Debug().Str("policy", policy.Name).Str("package", cp.pkg).Msg("Policy compiled")
	return nil
}

// Evaluate checks every unit of catalog against every enabled policy.
// Policies that fail to evaluate are reported as warnings.
func (e *Engine) Evaluate(ctx context.Context, catalog *engine.Catalog, platform, operation string) (*Result, error) {
	start := time.Now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{Allowed: true}

	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, name)

		for _, unit := range catalog.Units() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			input := Input{Unit: unit, Platform: platform, Operation: operation}
			findings, err := e.evaluatePolicy(ctx, cp, input)
			if err != nil {
				e.logger.Error().Err(err).
					Str("policy", name).
					Str("unit", unit.ID).
					Msg("Policy evaluation failed")
				result.Warnings = append(result.Warnings, Violation{
					Policy:   name,
					Unit:     unit.ID,
					Message:  fmt.Sprintf("evaluation failed: %v", err),
					Severity: SeverityWarning,
				})
				continue
			}

			for _, v := range findings {
				if v.Severity == SeverityError {
					result.Allowed = false
					result.Violations = append(result.Violations, v)
				} else {
					result.Warnings = append(result.Warnings, v)
				}
			}
		}
	}

	result.Duration = time.Since(start)
	e.logger.Debug().
		Int("units", catalog.Len()).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration).
		Msg("Policy evaluation completed")

	return result, nil
}

// evaluatePolicy runs a policy's deny and warn queries for one unit.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input Input) ([]Violation, error) {
	var violations []Violation

	for _, rs := range ruleSeverities {
		results, err := cp.queries[rs.rule].Eval(ctx, rego.EvalInput(input))
		if err != nil {
			return nil, err
		}

		severity := rs.severity
		if severity == "" {
			severity = cp.policy.Severity
		}

		for _, r := range results {
			if len(r.Expressions) == 0 {
				continue
			}
			set, ok := r.Expressions[0].Value.([]interface{})
			if !ok {
				continue
			}
			for _, item := range set {
				violations = append(violations, newViolation(cp.policy, severity, item, input))
			}
		}
	}

	// Set iteration order is not meaningful; keep output stable.
	sort.Slice(violations, func(i, j int) bool {
		return violations[i].Message < violations[j].Message
	})
	return violations, nil
}

// newViolation converts one rule result. Results may be plain strings or
// objects with message, unit and severity keys.
func newViolation(policy *Policy, severity Severity, item interface{}, input Input) Violation {
	v := Violation{
		Policy:   policy.Name,
		Unit:     input.Unit.ID,
		Severity: severity,
	}

	switch val := item.(type) {
	case string:
		v.Message = val
	case map[string]interface{}:
		if msg, ok := val["message"].(string); ok {
			v.Message = msg
		}
		if unit, ok := val["unit"].(string); ok {
			v.Unit = unit
		}
		if sev, ok := val["severity"].(string); ok && Severity(sev).Validate() == nil {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", item)
	}
	return v
}

func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		policies = append(policies, *e.policies[name].policy)
	}
	return policies
}

// SetEnabled enables or disables a policy by name.
func (e *Engine) SetEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s (loaded: %s)", name, strings.Join(e.sortedNames(), ", "))
	}
	cp.policy.Enabled = enabled
	return nil
}
