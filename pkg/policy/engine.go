package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/gowebpki/jcs"

	"github.com/macawi-ai/domovoi/pkg/action"
	"github.com/macawi-ai/domovoi/pkg/space"
)

// ErrInvalidRule is returned when a rule does not compile to a boolean
// expression or names an unknown verdict.
var ErrInvalidRule = errors.New("policy: invalid rule")

// Rule escalates a decision when Expr evaluates to true. Expressions see
// `action` and `proposer` maps (see action.Attributes and proposerAttributes).
type Rule struct {
	Name    string  `json:"name" yaml:"name"`
	Expr    string  `json:"expr" yaml:"expr"`
	Verdict Verdict `json:"verdict" yaml:"verdict"`
	Reason  string  `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Engine is an installed policy: a validated Config plus optional CEL
// escalation rules.
type Engine struct {
	cfg      Config
	rules    []Rule
	env      *cel.Env
	prgCache map[string]cel.Program
	mu       sync.RWMutex
	logger   *slog.Logger
	hash     string
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules appends escalation rules, evaluated in order.
func WithRules(rules ...Rule) Option {
	return func(e *Engine) {
		e.rules = append(e.rules, rules...)
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine validates cfg and compiles every rule up front.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	env, err := cel.NewEnv(
		cel.Variable("action", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("proposer", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		env:      env,
		prgCache: make(map[string]cel.Program),
		logger:   slog.Default().With("component", "policy"),
	}
	for _, opt := range opts {
		opt(e)
	}

	for i, r := range e.rules {
		switch r.Verdict {
		case VerdictMonitor, VerdictBlock:
		default:
			return nil, fmt.Errorf("%w: rule %d (%s): verdict %q must be MONITOR or BLOCK", ErrInvalidRule, i, r.Name, r.Verdict)
		}
		if _, err := e.program(r.Expr); err != nil {
			return nil, fmt.Errorf("%w: rule %d (%s): %v", ErrInvalidRule, i, r.Name, err)
		}
	}

	hash, err := computePolicyHash(cfg, e.rules)
	if err != nil {
		return nil, err
	}
	e.hash = hash
	return e, nil
}

// Config returns the installed configuration.
func (e *Engine) Config() Config { return e.cfg }

// Rules returns a copy of the escalation rules.
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// PolicyHash is a content address of the config and rules, stable across
// processes.
func (e *Engine) PolicyHash() string { return e.hash }

// Decide returns the base decision, escalated by the first matching rule
// that is stricter than it. Rule evaluation errors are logged and skipped.
func (e *Engine) Decide(a action.Action, proposer space.ActorState) Decision {
	base := Decide(a, proposer, e.cfg)
	if len(e.rules) == 0 || base.Blocked() {
		return base
	}

	input := map[string]any{
		"action":   action.Attributes(a),
		"proposer": proposerAttributes(proposer),
	}
	for _, r := range e.rules {
		if r.Verdict.strictness() <= base.Verdict.strictness() {
			continue
		}
		matched, err := e.evaluate(r.Expr, input)
		if err != nil {
			e.logger.Warn("policy rule evaluation failed", "rule", r.Name, "error", err)
			continue
		}
		if matched {
			reason := r.Reason
			if reason == "" {
				reason = "rule " + r.Name
			}
			return Decision{Verdict: r.Verdict, Reason: reason, Rule: r.Name}
		}
	}
	return base
}

func (e *Engine) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.prgCache[expr]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.prgCache[expr]; hit {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must return bool, got %s", out)
	}
	p, err := e.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	e.prgCache[expr] = p
	return p, nil
}

func (e *Engine) evaluate(expr string, input map[string]any) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result not bool")
	}
	return val, nil
}

func proposerAttributes(s space.ActorState) map[string]any {
	meta := make(map[string]any, len(s.Metadata))
	for k, v := range s.Metadata {
		meta[k] = v
	}
	return map[string]any{
		"id":                  s.ID.String(),
		"coherence":           s.Coherence,
		"intensive_potential": s.IntensivePotential,
		"sheet":               int64(s.Sheet),
		"metadata":            meta,
	}
}

func computePolicyHash(cfg Config, rules []Rule) (string, error) {
	if rules == nil {
		rules = []Rule{}
	}
	raw, err := json.Marshal(struct {
		Config Config `json:"config"`
		Rules  []Rule `json:"rules"`
	}{cfg, rules})
	if err != nil {
		return "", fmt.Errorf("policy: hash input: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("policy: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
