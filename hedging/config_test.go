package hedging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHedgeConfig_Enabled(t *testing.T) {
	type args struct {
		config HedgeConfig
	}

	tests := []struct {
		name        string
		args        args
		wantEnabled bool
	}{
		{
			name:        "given zero values, then disabled",
			args:        args{config: HedgeConfig{}},
			wantEnabled: false,
		},
		{
			name: "given SLO without hedges, then disabled",
			args: args{config: HedgeConfig{TargetSLO: time.Second}},
			wantEnabled: false,
		},
		{
			name: "given fixed variant fully set, then enabled",
			args: args{config: HedgeConfig{
				TargetSLO: time.Second,
				HedgeAt:   0.75,
				MaxHedges: 1,
			}},
			wantEnabled: true,
		},
		{
			name: "given hedge points with SLO, then enabled",
			args: args{config: HedgeConfig{
				TargetSLO:   time.Second,
				HedgePoints: []float64{0.5, 0.75},
			}},
			wantEnabled: true,
		},
		{
			name: "given hedge points without SLO, then disabled",
			args: args{config: HedgeConfig{
				HedgePoints: []float64{0.5, 0.75},
			}},
			wantEnabled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.args.config.Enabled()
			assert.Equal(t, tt.wantEnabled, got)
		})
	}
}

func TestHedgeConfig_Validate(t *testing.T) {
	type args struct {
		config HedgeConfig
	}

	tests := []struct {
		name    string
		args    args
		wantErr assert.ErrorAssertionFunc
	}{
		{
			name:    "given zero value config, then valid",
			args:    args{config: HedgeConfig{}},
			wantErr: assert.NoError,
		},
		{
			name: "given valid fixed config, then valid",
			args: args{config: HedgeConfig{
				TargetSLO: 200 * time.Millisecond,
				HedgeAt:   0.75,
				MaxHedges: 2,
			}},
			wantErr: assert.NoError,
		},
		{
			name: "given negative SLO, then invalid",
			args: args{config: HedgeConfig{
				TargetSLO: -time.Second,
			}},
			wantErr: assert.Error,
		},
		{
			name: "given fraction above one, then invalid",
			args: args{config: HedgeConfig{
				TargetSLO: time.Second,
				HedgeAt:   1.5,
				MaxHedges: 1,
			}},
			wantErr: assert.Error,
		},
		{
			name: "given hedge point above one, then invalid",
			args: args{config: HedgeConfig{
				TargetSLO:   time.Second,
				HedgePoints: []float64{0.5, 1.5},
			}},
			wantErr: assert.Error,
		},
		{
			name: "given adaptive percentile above one, then invalid",
			args: args{config: HedgeConfig{
				TargetSLO:          time.Second,
				HedgeAt:            0.5,
				MaxHedges:          1,
				Adaptive:           true,
				AdaptivePercentile: 1.5,
			}},
			wantErr: assert.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.args.config.Validate()

			tt.wantErr(t, err)
			if err != nil {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestHedgeConfig_Presets(t *testing.T) {
	tests := []struct {
		name   string
		config HedgeConfig
	}{
		{name: "default", config: DefaultHedgeConfig()},
		{name: "aggressive", config: AggressiveHedgeConfig()},
		{name: "conservative", config: ConservativeHedgeConfig()},
	}

	for _, tt := range tests {
		t.Run("given "+tt.name+" preset, then enabled and valid", func(t *testing.T) {
			assert.True(t, tt.config.Enabled())
			assert.NoError(t, tt.config.Validate())
		})
	}
}

func TestHedgeConfig_NewPolicy(t *testing.T) {
	t.Run("given fixed variant, then builds fixed policy", func(t *testing.T) {
		cfg := HedgeConfig{TargetSLO: time.Second, HedgeAt: 0.5, MaxHedges: 2}

		policy, tracker, err := cfg.NewPolicy(nil)
		require.NoError(t, err)

		assert.IsType(t, (*FixedPolicy)(nil), policy)
		assert.Nil(t, tracker)
		assert.Len(t, policy.Delays("api.example.com/users"), 2)
	})

	t.Run("given hedge points, then builds percentile policy", func(t *testing.T) {
		cfg := HedgeConfig{TargetSLO: time.Second, HedgePoints: []float64{0.5, 0.75, 0.95}}

		policy, tracker, err := cfg.NewPolicy(nil)
		require.NoError(t, err)

		assert.IsType(t, (*PercentilePolicy)(nil), policy)
		assert.Nil(t, tracker)
		assert.Len(t, policy.Delays("api.example.com/users"), 3)
	})

	t.Run("given adaptive without tracker, then owns a fresh tracker", func(t *testing.T) {
		cfg := DefaultHedgeConfig()

		policy, tracker, err := cfg.NewPolicy(nil)
		require.NoError(t, err)

		require.NotNil(t, tracker)
		tp, ok := policy.(trackedPolicy)
		require.True(t, ok)
		assert.Same(t, tracker, tp.tracker())
	})

	t.Run("given adaptive with shared tracker, then attaches it", func(t *testing.T) {
		shared := NewLatencyTracker(100, 10)
		cfg := DefaultHedgeConfig()

		_, tracker, err := cfg.NewPolicy(shared)
		require.NoError(t, err)

		assert.Same(t, shared, tracker)
	})

	t.Run("given invalid config, then fails before dispatch", func(t *testing.T) {
		cfg := HedgeConfig{TargetSLO: time.Second, HedgeAt: 2.0, MaxHedges: 1}

		policy, tracker, err := cfg.NewPolicy(nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Nil(t, policy)
		assert.Nil(t, tracker)
	})
}
