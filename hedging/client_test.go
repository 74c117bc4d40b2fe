package hedging

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	type args struct {
		opts []Option
	}

	tests := []struct {
		name    string
		args    args
		wantErr assert.ErrorAssertionFunc
	}{
		{
			name:    "given no options, then builds with defaults",
			args:    args{opts: nil},
			wantErr: assert.NoError,
		},
		{
			name: "given valid hedge config, then succeeds",
			args: args{opts: []Option{
				WithHedgeConfig(HedgeConfig{
					TargetSLO: 200 * time.Millisecond,
					HedgeAt:   0.75,
					MaxHedges: 1,
				}),
			}},
			wantErr: assert.NoError,
		},
		{
			name: "given hedging disabled, then succeeds",
			args: args{opts: []Option{
				WithHedgingDisabled(),
			}},
			wantErr: assert.NoError,
		},
		{
			name: "given hedge fraction above one, then fails",
			args: args{opts: []Option{
				WithHedgeConfig(HedgeConfig{
					TargetSLO: time.Second,
					HedgeAt:   1.5,
					MaxHedges: 1,
				}),
			}},
			wantErr: assert.Error,
		},
		{
			name: "given invalid hedge point, then fails",
			args: args{opts: []Option{
				WithHedgeConfig(HedgeConfig{
					TargetSLO:   time.Second,
					HedgePoints: []float64{0.5, 1.5},
				}),
			}},
			wantErr: assert.Error,
		},
		{
			name: "given negative SLO while disabled, then fails",
			args: args{opts: []Option{
				WithHedgeConfig(HedgeConfig{
					TargetSLO: -time.Second,
				}),
			}},
			wantErr: assert.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.args.opts...)

			tt.wantErr(t, err)
			if err != nil {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				assert.Nil(t, client)
			} else {
				require.NotNil(t, client)
				assert.NotNil(t, client.HTTP())
			}
		})
	}
}

func TestClient_Get_HedgesSlowEndpoint(t *testing.T) {
	mock := NewMockTransport().
		StubResponse(http.StatusOK, "pong").
		ScriptLatencies(500*time.Millisecond, 0)

	client, err := New(
		WithMockTransport(mock),
		WithHedgeConfig(HedgeConfig{
			TargetSLO: 200 * time.Millisecond,
			HedgeAt:   0.5,
			MaxHedges: 1,
		}),
	)
	require.NoError(t, err)

	start := time.Now()
	resp, err := client.Get(context.Background(), "https://api.example.com/ping")
	elapsed := time.Since(start)

	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, "pong", string(body))
	assert.Equal(t, 2, mock.Started())
	assert.Less(t, elapsed, 450*time.Millisecond)
	assert.Equal(t, 0, mock.Outstanding())
}

func TestClient_HedgingDisabled_SingleAttempt(t *testing.T) {
	mock := NewMockTransport().ScriptLatencies(50 * time.Millisecond)

	client, err := New(
		WithMockTransport(mock),
		WithHedgingDisabled(),
	)
	require.NoError(t, err)

	resp, err := client.Get(context.Background(), "https://api.example.com/ping")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 1, mock.Started())
	assert.Nil(t, client.Tracker())
}

func TestClient_AdaptiveClientOwnsTracker(t *testing.T) {
	client, err := New(
		WithMockTransport(NewMockTransport()),
		WithHedgeConfig(DefaultHedgeConfig()),
	)
	require.NoError(t, err)

	require.NotNil(t, client.Tracker())

	resp, err := client.Get(context.Background(), "https://api.example.com/ping")
	require.NoError(t, err)
	resp.Body.Close()

	// The winning latency feeds the tracker for adaptive timing.
	assert.Equal(t, 1, client.Tracker().Count("api.example.com/ping"))
}

func TestClient_SharedTracker(t *testing.T) {
	shared := NewLatencyTracker(100, 10)

	client, err := New(
		WithMockTransport(NewMockTransport()),
		WithTracker(shared),
		WithHedgeConfig(DefaultHedgeConfig()),
	)
	require.NoError(t, err)

	assert.Same(t, shared, client.Tracker())
}

func TestClient_WithCoalescing(t *testing.T) {
	mock := NewMockTransport()

	client, err := New(
		WithMockTransport(mock),
		WithHedgingDisabled(),
		WithCoalescing(),
	)
	require.NoError(t, err)

	resp, err := client.Get(context.Background(), "https://api.example.com/ping")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 1, mock.Started())
}

func TestClient_ResolveURL(t *testing.T) {
	type args struct {
		baseURL string
		url     string
	}

	tests := []struct {
		name    string
		args    args
		wantURL string
	}{
		{
			name:    "given no base URL, then passes through",
			args:    args{baseURL: "", url: "https://api.example.com/users"},
			wantURL: "https://api.example.com/users",
		},
		{
			name:    "given relative path, then joins with base",
			args:    args{baseURL: "https://api.example.com", url: "/users"},
			wantURL: "https://api.example.com/users",
		},
		{
			name:    "given trailing slash on base, then joins cleanly",
			args:    args{baseURL: "https://api.example.com/", url: "users"},
			wantURL: "https://api.example.com/users",
		},
		{
			name:    "given absolute URL, then ignores base",
			args:    args{baseURL: "https://api.example.com", url: "https://other.example.com/health"},
			wantURL: "https://other.example.com/health",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(
				WithMockTransport(NewMockTransport()),
				WithBaseURL(tt.args.baseURL),
			)
			require.NoError(t, err)

			got := client.resolveURL(tt.args.url)
			assert.Equal(t, tt.wantURL, got)
		})
	}
}

func TestNewTransport(t *testing.T) {
	t.Run("given enabled config, then wraps base in dispatcher", func(t *testing.T) {
		mock := NewMockTransport()

		rt, err := NewTransport(mock, HedgeConfig{
			TargetSLO: time.Second,
			HedgeAt:   0.5,
			MaxHedges: 1,
		})
		require.NoError(t, err)

		d, ok := rt.(*Dispatcher)
		require.True(t, ok)
		assert.Same(t, mock, d.next)
	})

	t.Run("given disabled config, then returns base unchanged", func(t *testing.T) {
		mock := NewMockTransport()

		rt, err := NewTransport(mock, HedgeConfig{})
		require.NoError(t, err)
		assert.Same(t, mock, rt)
	})

	t.Run("given disabled config and nil base, then default transport", func(t *testing.T) {
		rt, err := NewTransport(nil, HedgeConfig{})
		require.NoError(t, err)
		assert.Same(t, http.DefaultTransport, rt)
	})

	t.Run("given invalid config, then fails", func(t *testing.T) {
		_, err := NewTransport(nil, HedgeConfig{
			TargetSLO: time.Second,
			HedgeAt:   1.5,
			MaxHedges: 1,
		})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}
