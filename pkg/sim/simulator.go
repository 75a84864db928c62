// Package sim owns the simulation loop: actors propose, the policy engine
// decides, and accepted actions are applied and recorded in the event log.
package sim

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/macawi-ai/domovoi/pkg/action"
	"github.com/macawi-ai/domovoi/pkg/actor"
	"github.com/macawi-ai/domovoi/pkg/events"
	"github.com/macawi-ai/domovoi/pkg/observability"
	"github.com/macawi-ai/domovoi/pkg/policy"
	"github.com/macawi-ai/domovoi/pkg/space"
)

// InstabilityThreshold is the entropic risk above which a run aborts.
const InstabilityThreshold = 0.8

// State is the lifecycle position of a Simulator.
type State int

const (
	StateIdle State = iota
	StateStepping
	StateFinished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStepping:
		return "stepping"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StepSummary describes one completed step.
type StepSummary struct {
	Step          uint64  `json:"step"`
	Actors        int     `json:"actors"`
	MeanCoherence float64 `json:"mean_coherence"`
}

// RunSummary describes a completed bounded run.
type RunSummary struct {
	TotalSteps int            `json:"total_steps"`
	Steps      []StepSummary  `json:"steps"`
	Events     []events.Event `json:"events"`
}

// Option configures a Simulator.
type Option func(*settings)

type settings struct {
	clock     events.Clock
	ids       events.IDSource
	logger    *slog.Logger
	telemetry *observability.Provider
	stepRate  float64
}

// WithClock sets the event timestamp source.
func WithClock(c events.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithEventIDs sets the event id generator.
func WithEventIDs(src events.IDSource) Option {
	return func(s *settings) { s.ids = src }
}

// WithLogger sets the simulator logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithTelemetry records spans and simulation metrics on p.
func WithTelemetry(p *observability.Provider) Option {
	return func(s *settings) { s.telemetry = p }
}

// WithStepRate paces Run to at most perSecond steps. Zero disables pacing.
func WithStepRate(perSecond float64) Option {
	return func(s *settings) { s.stepRate = perSecond }
}

// Simulator is single-threaded: one goroutine owns it.
type Simulator struct {
	space        *space.Space
	log          *events.Log
	actors       []actor.Actor
	ids          map[uuid.UUID]struct{}
	blocked      map[uuid.UUID]int
	trajectories map[uuid.UUID][]float64
	engine       *policy.Engine
	step         uint64
	state        State

	logger    *slog.Logger
	telemetry *observability.Provider
	metrics   *observability.SimMetrics
	limiter   *rate.Limiter
}

// New creates an idle simulator over a space of dims dimensions.
func New(dims int, opts ...Option) (*Simulator, error) {
	st := settings{}
	for _, opt := range opts {
		opt(&st)
	}

	sp, err := space.New(dims)
	if err != nil {
		return nil, err
	}

	s := &Simulator{
		space:        sp,
		log:          events.NewLog(events.WithClock(st.clock), events.WithIDSource(st.ids)),
		ids:          make(map[uuid.UUID]struct{}),
		blocked:      make(map[uuid.UUID]int),
		trajectories: make(map[uuid.UUID][]float64),
		logger:       st.logger,
		telemetry:    st.telemetry,
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "sim")
	}
	if s.telemetry != nil {
		s.metrics, err = observability.NewSimMetrics(s.telemetry)
		if err != nil {
			return nil, fmt.Errorf("failed to register simulation metrics: %w", err)
		}
	}
	if st.stepRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(st.stepRate), 1)
	}
	return s, nil
}

// AddActor registers a's clamped signature and logs its arrival.
func (s *Simulator) AddActor(a actor.Actor) (uuid.UUID, error) {
	sig := a.Signature()
	sig.Clamp()
	if _, dup := s.ids[sig.ID]; dup {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrDuplicateActor, sig.ID)
	}
	if err := s.space.Register(sig); err != nil {
		return uuid.Nil, err
	}

	s.ids[sig.ID] = struct{}{}
	s.actors = append(s.actors, a)
	s.trajectories[sig.ID] = []float64{sig.Coherence}

	if _, err := s.emit(context.Background(), events.Navigation{From: sig.ID, To: sig.ID, Success: true}, nil, sig.ID); err != nil {
		return uuid.Nil, err
	}
	s.logger.Debug("actor added", "actor", sig.ID, "kind", a.KindName(), "sheet", sig.Sheet)
	return sig.ID, nil
}

// EnableProtection installs (or replaces) the policy engine. It applies from
// the next step.
func (s *Simulator) EnableProtection(cfg policy.Config, opts ...policy.Option) error {
	engine, err := policy.NewEngine(cfg, opts...)
	if err != nil {
		return err
	}
	s.engine = engine
	s.logger.Info("protection enabled",
		"max_coherence_loss", cfg.MaxCoherenceLoss,
		"rules", len(engine.Rules()),
		"policy_hash", engine.PolicyHash(),
	)
	return nil
}

// DisableProtection removes the policy engine; every action is accepted.
func (s *Simulator) DisableProtection() {
	s.engine = nil
	s.logger.Info("protection disabled")
}

// Protected reports whether a policy engine is installed.
func (s *Simulator) Protected() bool { return s.engine != nil }

// Step runs one round over all actors in insertion order.
func (s *Simulator) Step(ctx context.Context) (StepSummary, error) {
	if s.state == StateFailed {
		return StepSummary{}, ErrSimulationFailed
	}
	if err := ctx.Err(); err != nil {
		return StepSummary{}, err
	}

	s.state = StateStepping
	s.step++
	ctx, done := s.track(ctx, "sim.step", attribute.Int64("step", int64(s.step)))

	summary, err := s.runStep(ctx)
	done(err)
	if err != nil {
		if s.state != StateFailed {
			s.state = StateIdle
		}
		return StepSummary{}, err
	}

	s.state = StateIdle
	if s.metrics != nil {
		s.metrics.RecordStep(ctx, summary.MeanCoherence)
	}
	return summary, nil
}

func (s *Simulator) runStep(ctx context.Context) (StepSummary, error) {
	for _, a := range s.actors {
		sig := a.Signature()
		sig.Clamp()
		if err := s.space.Register(sig); err != nil {
			return StepSummary{}, err
		}

		proposed := a.Propose(actor.ProposalContext{
			Space:           s.space,
			Step:            s.step,
			BlockedAttempts: s.blocked[sig.ID],
		})
		if err := action.Validate(proposed); err != nil {
			return StepSummary{}, fmt.Errorf("actor %s: %w", sig.ID, err)
		}
		if err := s.checkInstability(ctx, sig.ID, proposed); err != nil {
			return StepSummary{}, err
		}

		decision := s.decide(proposed, sig)
		if s.metrics != nil {
			s.metrics.RecordDecision(ctx, string(decision.Verdict))
		}
		s.logger.DebugContext(ctx, "decision",
			"step", s.step,
			"actor", sig.ID,
			"action", proposed.Kind(),
			"decision", decision.String(),
		)

		if decision.Blocked() {
			s.blocked[sig.ID]++
			s.logger.WarnContext(ctx, "action blocked",
				"step", s.step,
				"actor", sig.ID,
				"kind", a.KindName(),
				"reason", decision.Reason,
				"blocked_attempts", s.blocked[sig.ID],
			)
			if _, err := s.emit(ctx, events.PolicyViolation{Kind: "Blocked transformation", Severity: 0.5}, nil, sig.ID); err != nil {
				return StepSummary{}, err
			}
			continue
		}

		if err := s.apply(ctx, sig, proposed); err != nil {
			return StepSummary{}, err
		}
	}

	return StepSummary{
		Step:          s.step,
		Actors:        len(s.actors),
		MeanCoherence: s.meanCoherence(),
	}, nil
}

// Run calls Step n times. Any error discards the partial summaries.
func (s *Simulator) Run(ctx context.Context, n int) (RunSummary, error) {
	if s.state == StateFailed {
		return RunSummary{}, ErrSimulationFailed
	}
	if n < 0 {
		return RunSummary{}, fmt.Errorf("%w: %d", ErrInvalidSteps, n)
	}

	ctx, done := s.track(ctx, "sim.run", attribute.Int("steps", n))
	s.logger.InfoContext(ctx, "run started", "steps", n, "actors", len(s.actors), "protected", s.Protected())

	steps := make([]StepSummary, 0, n)
	for i := 0; i < n; i++ {
		if s.limiter != nil && i > 0 {
			if err := s.limiter.Wait(ctx); err != nil {
				done(err)
				return RunSummary{}, err
			}
		}
		summary, err := s.Step(ctx)
		if err != nil {
			done(err)
			return RunSummary{}, err
		}
		steps = append(steps, summary)
	}

	s.state = StateFinished
	out := RunSummary{
		TotalSteps: n,
		Steps:      steps,
		Events:     s.log.Snapshot(),
	}
	done(nil)
	s.logger.InfoContext(ctx, "run finished", "steps", n, "events", len(out.Events))
	return out, nil
}

// State returns the lifecycle state.
func (s *Simulator) State() State { return s.state }

// CurrentStep is the index of the last started step; 0 before the first.
func (s *Simulator) CurrentStep() uint64 { return s.step }

// Space exposes a read-only view of the state space.
func (s *Simulator) Space() space.View { return s.space }

// Events returns a copy of the log.
func (s *Simulator) Events() []events.Event { return s.log.Snapshot() }

// Actors returns the actor ids in insertion order.
func (s *Simulator) Actors() []uuid.UUID {
	out := make([]uuid.UUID, len(s.actors))
	for i, a := range s.actors {
		out[i] = a.Signature().ID
	}
	return out
}

// Trajectory returns the logged coherence values of id, starting with its
// coherence at registration.
func (s *Simulator) Trajectory(id uuid.UUID) []float64 {
	return append([]float64(nil), s.trajectories[id]...)
}

// BlockedAttempts is the number of blocked proposals from id.
func (s *Simulator) BlockedAttempts(id uuid.UUID) int { return s.blocked[id] }

// VerifyLog checks the event hash chain.
func (s *Simulator) VerifyLog() error { return s.log.Verify() }

func (s *Simulator) decide(a action.Action, proposer space.ActorState) policy.Decision {
	if s.engine == nil {
		return policy.Allow()
	}
	return s.engine.Decide(a, proposer)
}

func (s *Simulator) meanCoherence() float64 {
	if len(s.actors) == 0 {
		return 1.0
	}
	var sum float64
	for _, a := range s.actors {
		sum += a.Coherence()
	}
	return sum / float64(len(s.actors))
}

// MeanCoherence is the current population mean, 1.0 when empty.
func (s *Simulator) MeanCoherence() float64 { return s.meanCoherence() }

func (s *Simulator) emit(ctx context.Context, k events.Kind, delta *events.VarietyDelta, actors ...uuid.UUID) (events.Event, error) {
	ev, err := s.log.AppendWithDelta(k, delta, actors...)
	if err != nil {
		return events.Event{}, fmt.Errorf("failed to log %s event: %w", k.Type(), err)
	}
	if s.metrics != nil {
		s.metrics.RecordEvent(ctx, string(ev.Severity))
	}
	return ev, nil
}

func (s *Simulator) track(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if s.telemetry == nil {
		return ctx, func(error) {}
	}
	return s.telemetry.TrackOperation(ctx, name, attrs...)
}
