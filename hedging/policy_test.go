package hedging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFixedPolicy(t *testing.T) {
	type args struct {
		targetSLO time.Duration
		hedgeAt   float64
		maxHedges int
	}

	tests := []struct {
		name    string
		args    args
		wantErr assert.ErrorAssertionFunc
	}{
		{
			name:    "given valid config, then succeeds",
			args:    args{targetSLO: 200 * time.Millisecond, hedgeAt: 0.75, maxHedges: 1},
			wantErr: assert.NoError,
		},
		{
			name:    "given zero SLO, then fails",
			args:    args{targetSLO: 0, hedgeAt: 0.75, maxHedges: 1},
			wantErr: assert.Error,
		},
		{
			name:    "given negative SLO, then fails",
			args:    args{targetSLO: -time.Second, hedgeAt: 0.75, maxHedges: 1},
			wantErr: assert.Error,
		},
		{
			name:    "given fraction of zero, then fails",
			args:    args{targetSLO: time.Second, hedgeAt: 0, maxHedges: 1},
			wantErr: assert.Error,
		},
		{
			name:    "given fraction of one, then fails",
			args:    args{targetSLO: time.Second, hedgeAt: 1.0, maxHedges: 1},
			wantErr: assert.Error,
		},
		{
			name:    "given fraction above one, then fails",
			args:    args{targetSLO: time.Second, hedgeAt: 1.5, maxHedges: 1},
			wantErr: assert.Error,
		},
		{
			name:    "given zero max hedges, then fails",
			args:    args{targetSLO: time.Second, hedgeAt: 0.5, maxHedges: 0},
			wantErr: assert.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := NewFixedPolicy(tt.args.targetSLO, tt.args.hedgeAt, tt.args.maxHedges)

			tt.wantErr(t, err)
			if err != nil {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				assert.Nil(t, policy)
			} else {
				assert.NotNil(t, policy)
			}
		})
	}
}

func TestFixedPolicy_Delays(t *testing.T) {
	type args struct {
		targetSLO time.Duration
		hedgeAt   float64
		maxHedges int
	}

	tests := []struct {
		name       string
		args       args
		wantDelays []time.Duration
	}{
		{
			name:       "given single hedge, then one delay at fraction of SLO",
			args:       args{targetSLO: 200 * time.Millisecond, hedgeAt: 0.75, maxHedges: 1},
			wantDelays: []time.Duration{150 * time.Millisecond},
		},
		{
			name: "given multiple hedges, then integer multiples of base delay",
			args: args{targetSLO: time.Second, hedgeAt: 0.5, maxHedges: 3},
			wantDelays: []time.Duration{
				500 * time.Millisecond,
				1000 * time.Millisecond,
				1500 * time.Millisecond,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := NewFixedPolicy(tt.args.targetSLO, tt.args.hedgeAt, tt.args.maxHedges)
			require.NoError(t, err)

			got := policy.Delays("api.example.com/users")
			assert.Equal(t, tt.wantDelays, got)
		})
	}
}

func TestNewPercentilePolicy(t *testing.T) {
	type args struct {
		targetSLO time.Duration
		points    []float64
	}

	tests := []struct {
		name    string
		args    args
		wantErr assert.ErrorAssertionFunc
	}{
		{
			name:    "given valid points, then succeeds",
			args:    args{targetSLO: time.Second, points: []float64{0.5, 0.75, 0.95}},
			wantErr: assert.NoError,
		},
		{
			name:    "given no points, then fails",
			args:    args{targetSLO: time.Second, points: nil},
			wantErr: assert.Error,
		},
		{
			name:    "given point of zero, then fails",
			args:    args{targetSLO: time.Second, points: []float64{0, 0.5}},
			wantErr: assert.Error,
		},
		{
			name:    "given point above one, then fails",
			args:    args{targetSLO: time.Second, points: []float64{0.5, 1.5}},
			wantErr: assert.Error,
		},
		{
			name:    "given zero SLO, then fails",
			args:    args{targetSLO: 0, points: []float64{0.5}},
			wantErr: assert.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := NewPercentilePolicy(tt.args.targetSLO, tt.args.points)

			tt.wantErr(t, err)
			if err != nil {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				assert.Nil(t, policy)
			}
		})
	}
}

func TestPercentilePolicy_Delays(t *testing.T) {
	type args struct {
		targetSLO time.Duration
		points    []float64
	}

	tests := []struct {
		name       string
		args       args
		wantDelays []time.Duration
	}{
		{
			name: "given ascending points, then fractions of SLO",
			args: args{targetSLO: time.Second, points: []float64{0.5, 0.75, 0.95}},
			wantDelays: []time.Duration{
				500 * time.Millisecond,
				750 * time.Millisecond,
				950 * time.Millisecond,
			},
		},
		{
			name: "given unsorted points, then sorts ascending",
			args: args{targetSLO: time.Second, points: []float64{0.95, 0.5, 0.75}},
			wantDelays: []time.Duration{
				500 * time.Millisecond,
				750 * time.Millisecond,
				950 * time.Millisecond,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := NewPercentilePolicy(tt.args.targetSLO, tt.args.points)
			require.NoError(t, err)

			got := policy.Delays("api.example.com/users")
			assert.Equal(t, tt.wantDelays, got)
		})
	}
}

func TestFixedPolicy_Adapt(t *testing.T) {
	tracker := NewLatencyTracker(100, 10)
	for i := 0; i < 20; i++ {
		tracker.Record("api.example.com/search", 500*time.Millisecond)
	}

	policy, err := NewFixedPolicy(2*time.Second, 0.5, 1)
	require.NoError(t, err)
	_, err = policy.Adapt(tracker, 0.95)
	require.NoError(t, err)

	// Enough history: observed P95 of 500ms replaces the 2s target.
	got := policy.Delays("api.example.com/search")
	assert.Equal(t, []time.Duration{250 * time.Millisecond}, got)

	// No history for this endpoint: the static target applies.
	got = policy.Delays("api.example.com/other")
	assert.Equal(t, []time.Duration{time.Second}, got)
}

func TestFixedPolicy_Adapt_InvalidPercentile(t *testing.T) {
	policy, err := NewFixedPolicy(time.Second, 0.5, 1)
	require.NoError(t, err)

	_, err = policy.Adapt(NewLatencyTracker(100, 10), 1.5)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPercentilePolicy_Adapt(t *testing.T) {
	tracker := NewLatencyTracker(100, 10)
	for i := 0; i < 20; i++ {
		tracker.Record("api.example.com/search", time.Second)
	}

	policy, err := NewPercentilePolicy(4*time.Second, []float64{0.5, 0.75})
	require.NoError(t, err)
	_, err = policy.Adapt(tracker, 0.95)
	require.NoError(t, err)

	got := policy.Delays("api.example.com/search")
	assert.Equal(t, []time.Duration{
		500 * time.Millisecond,
		750 * time.Millisecond,
	}, got)
}

func TestPolicy_TrackerAccess(t *testing.T) {
	tracker := NewLatencyTracker(100, 10)

	fixed, err := NewFixedPolicy(time.Second, 0.5, 1)
	require.NoError(t, err)
	assert.Nil(t, fixed.tracker())

	_, err = fixed.Adapt(tracker, 0.95)
	require.NoError(t, err)
	assert.Same(t, tracker, fixed.tracker())

	ladder, err := NewPercentilePolicy(time.Second, []float64{0.5})
	require.NoError(t, err)
	assert.Nil(t, ladder.tracker())

	_, err = ladder.Adapt(tracker, 0.95)
	require.NoError(t, err)
	assert.Same(t, tracker, ladder.tracker())
}
