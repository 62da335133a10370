package config

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

// PredicateEvaluator evaluates Starlark `when` expressions against local facts.
type PredicateEvaluator struct {
	timeout time.Duration
}

// NewPredicateEvaluator creates a new predicate evaluator.
func NewPredicateEvaluator(timeout time.Duration) *PredicateEvaluator {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &PredicateEvaluator{
		timeout: timeout,
	}
}

// Evaluate returns the truth value of expr with every fact predeclared by
// name, plus a `facts` struct holding the same values.
func (pe *PredicateEvaluator) Evaluate(ctx context.Context, expr string, facts map[string]any) (bool, error) {
	evalCtx, cancel := context.WithTimeout(ctx, pe.timeout)
	defer cancel()
	if err := evalCtx.Err(); err != nil {
		return false, err
	}

	thread := &starlark.Thread{
		Name:  "when",
		Print: func(_ *starlark.Thread, _ string) {},
	}
	stop := context.AfterFunc(evalCtx, func() {
		thread.Cancel(fmt.Sprintf("evaluation stopped: %v", evalCtx.Err()))
	})
	defer stop()

	predeclared, err := predicateEnv(facts)
	if err != nil {
		return false, err
	}

	val, err := starlark.Eval(thread, "when", expr, predeclared)
	if err != nil {
		return false, fmt.Errorf("when %q: %w", expr, err)
	}

	return bool(val.Truth()), nil
}

func predicateEnv(facts map[string]any) (starlark.StringDict, error) {
	env := starlark.StringDict{
		"struct":           starlarkstruct.Default,
		"version_at_least": starlark.NewBuiltin("version_at_least", builtinVersionAtLeast),
	}

	fields := make(starlark.StringDict, len(facts))
	for key, val := range facts {
		sv, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert fact %s: %w", key, err)
		}
		env[key] = sv
		fields[key] = sv
	}
	env["facts"] = starlarkstruct.FromStringDict(starlarkstruct.Default, fields)

	return env, nil
}

// builtinVersionAtLeast implements version_at_least(installed, minimum).
func builtinVersionAtLeast(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var installed, minimum string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "installed", &installed, "minimum", &minimum); err != nil {
		return nil, err
	}

	satisfied, ok := engine.VersionAtLeast(installed, minimum)
	if !ok {
		return starlark.False, nil
	}
	return starlark.Bool(satisfied), nil
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			list[i] = starlark.String(item)
		}
		return starlark.NewList(list), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			starlarkVal, err := toStarlarkValue(v)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
