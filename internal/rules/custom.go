package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/teamops/warden/internal/domain"
)

// CustomEngine compiles and evaluates operator-defined CEL expressions
// over snapshot variables. Compiled programs are cached by expression
// text so repeated batch runs do not recompile.
type CustomEngine struct {
	mu       sync.RWMutex
	env      *cel.Env
	programs map[string]cel.Program
}

// NewCustomEngine creates a CEL environment exposing the snapshot
// counters to expressions.
func NewCustomEngine() (*CustomEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("timeout_rate", cel.DoubleType),
		cel.Variable("message_leads", cel.IntType),
		cel.Variable("published_notes", cel.IntType),
		cel.Variable("employee_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &CustomEngine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Validate compiles an expression without caching it, for config
// validation at the API edge.
func (e *CustomEngine) Validate(expression string) error {
	_, err := e.compile(expression)
	return err
}

// Evaluate runs the configuration's custom expression against a
// snapshot. An empty expression evaluates false without error.
func (e *CustomEngine) Evaluate(snap *domain.MetricSnapshot, cfg *domain.RuleConfiguration) (bool, error) {
	if cfg == nil || cfg.CustomExpression == "" {
		return false, nil
	}

	prog, err := e.program(cfg.CustomExpression)
	if err != nil {
		return false, err
	}

	out, _, err := prog.Eval(map[string]any{
		"timeout_rate":    snap.TimeoutRatePercent,
		"message_leads":   int64(snap.MessageLeadsCount),
		"published_notes": int64(snap.PublishedNotesCount),
		"employee_id":     snap.EmployeeID,
	})
	if err != nil {
		return false, fmt.Errorf("custom rule evaluation failed: %w", err)
	}

	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("custom rule returned non-bool value")
	}
	return bool(b), nil
}

func (e *CustomEngine) program(expression string) (cel.Program, error) {
	e.mu.RLock()
	prog, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return prog, nil
	}

	prog, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.programs[expression] = prog
	e.mu.Unlock()
	return prog, nil
}

func (e *CustomEngine) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile custom rule: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("custom rule must return bool, got %s", ast.OutputType())
	}
	prog, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}
	return prog, nil
}
