package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardEvaluator(t *testing.T) {
	g := NewGuardEvaluator()

	tests := []struct {
		name       string
		expression string
		ctx        map[string]interface{}
		want       bool
		wantErr    bool
	}{
		{"empty guard passes", "", nil, true, false},
		{"true comparison", `role == "supervisor"`, map[string]interface{}{"role": "supervisor"}, true, false},
		{"false comparison", `role == "supervisor"`, map[string]interface{}{"role": "operator"}, false, false},
		{"missing key fails closed", `role == "supervisor"`, nil, false, false},
		{"boolean logic", `role == "qa" && shift < 3`, map[string]interface{}{"role": "qa", "shift": 1}, true, false},
		{"non-boolean result", `1 + 1`, nil, false, true},
		{"invalid expression", `role ==`, nil, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Evaluate(tt.expression, tt.ctx)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGuardEvaluatorCachesPrograms(t *testing.T) {
	g := NewGuardEvaluator()

	// Same expression evaluated twice hits the compile cache; results stay
	// consistent across calls.
	for i := 0; i < 2; i++ {
		ok, err := g.Evaluate(`count > 10`, map[string]interface{}{"count": 11})
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Len(t, g.cache, 1)
}
