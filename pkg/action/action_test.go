package action

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		wantErr bool
	}{
		{"extensive", Extensive{Multiplier: 3, PreservesQuality: true}, false},
		{"negative multiplier is allowed", Extensive{Multiplier: -1}, false},
		{"infinite multiplier", Extensive{Multiplier: math.Inf(1)}, true},
		{"intensive", Intensive{QualityShift: "temporal_desync", CreatesDimension: true}, false},
		{"navigation", Navigation{Path: []uuid.UUID{uuid.New()}}, false},
		{"entropic", Entropic{CoherenceLoss: 0.5, InstabilityRisk: 0.1}, false},
		{"entropic zero", Entropic{}, false},
		{"negative loss", Entropic{CoherenceLoss: -0.1}, true},
		{"risk above one", Entropic{InstabilityRisk: 1.1}, true},
		{"nan risk", Entropic{InstabilityRisk: math.NaN()}, true},
		{"nil", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.action)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAction)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestAttributes(t *testing.T) {
	attrs := Attributes(Entropic{CoherenceLoss: 0.7, InstabilityRisk: 0.3})
	assert.Equal(t, "entropic", attrs["kind"])
	assert.Equal(t, 0.7, attrs["coherence_loss"])
	assert.Equal(t, 0.3, attrs["instability_risk"])
	assert.Equal(t, 0.0, attrs["multiplier"])

	attrs = Attributes(Navigation{Path: []uuid.UUID{uuid.New(), uuid.New()}, MaintainsIdentity: true})
	assert.Equal(t, "navigation", attrs["kind"])
	assert.Equal(t, int64(2), attrs["path_len"])
	assert.Equal(t, true, attrs["maintains_identity"])
}

func TestKind(t *testing.T) {
	assert.Equal(t, KindExtensive, Extensive{}.Kind())
	assert.Equal(t, KindIntensive, Intensive{}.Kind())
	assert.Equal(t, KindNavigation, Navigation{}.Kind())
	assert.Equal(t, KindEntropic, Entropic{}.Kind())
}
