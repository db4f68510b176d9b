package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Timeout:     2 * time.Second,
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	}
}

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>ok</html>")) //nolint:errcheck
	}))
	defer server.Close()

	client := New(testConfig(), nil, nil)
	body, err := client.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, "<html>ok</html>", string(body))
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered")) //nolint:errcheck
	}))
	defer server.Close()

	client := New(testConfig(), nil, nil)
	body, err := client.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, "recovered", string(body))
	require.EqualValues(t, 3, calls.Load())
}

func TestFetchGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxRetries = 2
	client := New(cfg, nil, nil)

	_, err := client.Fetch(context.Background(), server.URL)
	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, KindTransient, fetchErr.Kind)
	require.Equal(t, 3, fetchErr.Attempts)
	require.EqualValues(t, 3, calls.Load())
}

func TestFetchDoesNotRetryPermanentFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(testConfig(), nil, nil)
	_, err := client.Fetch(context.Background(), server.URL)
	require.True(t, IsPermanent(err))
	require.EqualValues(t, 1, calls.Load(), "a 404 must not be retried")
}

func TestFetchRejectsUnsupportedScheme(t *testing.T) {
	t.Parallel()

	client := New(testConfig(), nil, nil)
	_, err := client.Fetch(context.Background(), "ftp://webshop.example/dozen")
	require.True(t, IsPermanent(err))
}

func TestFetchHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := New(testConfig(), nil, nil)
	start := time.Now()
	_, err := client.Fetch(ctx, server.URL)
	require.Error(t, err)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestBackoffStaysWithinBounds(t *testing.T) {
	t.Parallel()

	client := New(Config{
		BackoffBase:       100 * time.Millisecond,
		BackoffMax:        time.Second,
		BackoffMultiplier: 2,
	}, nil, nil)

	for attempt := 0; attempt < 8; attempt++ {
		d := client.backoff(attempt)
		require.GreaterOrEqual(t, d, 50*time.Millisecond)
		require.LessOrEqual(t, d, time.Second)
	}
}
