package sim

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/macawi-ai/domovoi/pkg/action"
	"github.com/macawi-ai/domovoi/pkg/actor"
	"github.com/macawi-ai/domovoi/pkg/events"
	"github.com/macawi-ai/domovoi/pkg/observability"
	"github.com/macawi-ai/domovoi/pkg/policy"
)

func TestRunScenario_DDoS(t *testing.T) {
	for _, protect := range []bool{true, false} {
		s := newTestSim(t)
		if protect {
			protectWith(t, s, 0.3)
		}
		res, err := s.RunScenario(context.Background(), DDoS{Intensity: 0.9, Duration: 5})
		require.NoError(t, err)
		assert.Equal(t, ScenarioResult{
			Condition:       "ddos",
			Success:         protect,
			EventsGenerated: 5,
			Classification:  events.SeverityCritical,
		}, res)

		evs := s.Events()
		require.Len(t, evs, 5)
		for _, e := range evs {
			assert.Equal(t, events.PolicyViolation{Kind: "Variety Exhaustion DDoS", Severity: 0.9}, e.Kind)
			assert.Equal(t, events.SeverityCritical, e.Severity)
			assert.Empty(t, e.Actors)
		}
	}
}

func TestRunScenario_ZeroDurationDDoS(t *testing.T) {
	s := newTestSim(t)
	res, err := s.RunScenario(context.Background(), DDoS{Intensity: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 0, res.EventsGenerated)
	assert.Empty(t, s.Events())
}

func TestRunScenario_ProtocolAbuse(t *testing.T) {
	s := newTestSim(t)
	protectWith(t, s, 0.3)
	res, err := s.RunScenario(context.Background(), ProtocolAbuse{Category: "modbus"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, events.SeverityWarning, res.Classification)

	evs := s.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.PolicyViolation{Kind: "Protocol Abuse: modbus", Severity: 0.7}, evs[0].Kind)
	assert.Equal(t, events.SeverityWarning, evs[0].Severity)
}

func TestRunScenario_VarietyBomb(t *testing.T) {
	s := newTestSim(t)
	res, err := s.RunScenario(context.Background(), IntensiveVarietyBomb{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "variety_bomb", res.Condition)
	assert.Equal(t, events.SeverityCritical, res.Classification)

	evs := s.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.IntensiveTransform{Description: "Variety Bomb: Penny→Gorilla×1000", CreatesDimension: true}, evs[0].Kind)
}

func TestRunScenario_CoherenceAttack(t *testing.T) {
	s := newTestSim(t)
	protectWith(t, s, 0.3)
	id, err := s.AddActor(actor.NewTestAgent(8, actor.Protective{}))
	require.NoError(t, err)

	res, err := s.RunScenario(context.Background(), CoherenceAttack{Target: id})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, events.SeverityCritical, res.Classification)
	assert.Equal(t, 1, res.EventsGenerated)

	evs := s.Events()
	last := evs[len(evs)-1]
	assert.Equal(t, events.CoherenceShift{Actor: id, Before: 1.0, After: 0.1}, last.Kind)
	assert.Equal(t, []uuid.UUID{id}, last.Actors)
	assert.Equal(t, events.SeverityCritical, last.Severity)
	assert.Equal(t, []float64{1.0, 0.1}, s.Trajectory(id))
}

func TestRunScenario_Invalid(t *testing.T) {
	s := newTestSim(t)
	for _, c := range []Condition{
		nil,
		DDoS{Intensity: 0.5, Duration: -1},
		DDoS{Intensity: 1.5, Duration: 1},
		DDoS{Intensity: -0.1, Duration: 1},
	} {
		_, err := s.RunScenario(context.Background(), c)
		assert.ErrorIs(t, err, ErrInvalidScenario, "%#v", c)
	}
	assert.Empty(t, s.Events())
}

func TestRunScenario_ChainStaysVerifiable(t *testing.T) {
	s := newTestSim(t)
	_, err := s.AddActor(actor.NewKikimora(8))
	require.NoError(t, err)
	for _, c := range []Condition{
		DDoS{Intensity: 0.8, Duration: 3},
		ProtocolAbuse{Category: "Café MQTT"},
		IntensiveVarietyBomb{},
	} {
		_, err := s.RunScenario(context.Background(), c)
		require.NoError(t, err)
	}
	_, err = s.Run(context.Background(), 2)
	require.NoError(t, err)
	require.NoError(t, s.VerifyLog())
}

func TestTelemetry(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	p, err := observability.NewWithProviders(tp, mp)
	require.NoError(t, err)

	s := newTestSim(t, WithTelemetry(p))
	require.NoError(t, s.EnableProtection(policy.DefaultConfig()))
	_, err = s.AddActor(actor.NewScripted(8, []action.Action{
		action.Entropic{CoherenceLoss: 0.9, InstabilityRisk: 0.1},
		action.Extensive{Multiplier: 1, PreservesQuality: true},
	}))
	require.NoError(t, err)

	_, err = s.Run(context.Background(), 2)
	require.NoError(t, err)

	var names []string
	for _, span := range rec.Ended() {
		names = append(names, span.Name())
	}
	assert.Equal(t, []string{"sim.step", "sim.step", "sim.run"}, names)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	verdicts := make(map[string]int64)
	var steps int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "domovoi.decisions.total":
				for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
					v, _ := dp.Attributes.Value(attribute.Key("verdict"))
					verdicts[v.AsString()] += dp.Value
				}
			case "domovoi.steps.total":
				for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
					steps += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(1), verdicts["BLOCK"])
	assert.Equal(t, int64(1), verdicts["ALLOW"])
	assert.Equal(t, int64(2), steps)
}
