package flagkit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_RequiresProjectAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestNewClient_DefaultsAndClose(t *testing.T) {
	client, err := NewClient(Config{ProjectAPIKey: "proj-key"})
	require.NoError(t, err)
	assert.Equal(t, defaultHostURL, client.cfg.HostURL)
	assert.Nil(t, client.loader, "no PersonalAPIKey means no local evaluation loader")
	client.Close()
	assert.NotPanics(t, client.Close, "Close is idempotent")
}

// Scenario: remote fallback used for every flag when no rule set is
// loaded (no PersonalAPIKey configured).
func TestClient_GetFeatureFlag_RemoteOnlyWithoutLoader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/decide":
			_, _ = w.Write([]byte(`{"flags":{"beta":{"key":"beta","enabled":true,"variant":"on"}}}`))
		case "/batch/":
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	client, err := NewClient(Config{ProjectAPIKey: "proj-key", HostURL: server.URL})
	require.NoError(t, err)
	defer client.Close()

	result, err := client.GetFeatureFlag(t.Context(), "user1", "beta", nil, nil, false)
	require.NoError(t, err)
	assert.True(t, result.Enabled)
	assert.Equal(t, "on", result.VariantKey)
}

// Scenario 4 (spec.md:224): "If onlyEvaluateLocally=true the same call
// returns null/false" — local evaluation never falls through to /decide.
func TestClient_GetFeatureFlag_OnlyEvaluateLocallySuppressesRemoteFallback(t *testing.T) {
	decideCalled := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/decide" {
			decideCalled = true
			_, _ = w.Write([]byte(`{"flags":{"beta":{"key":"beta","enabled":true,"variant":"alakazam"}}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(Config{ProjectAPIKey: "proj-key", HostURL: server.URL})
	require.NoError(t, err)
	defer client.Close()

	result, err := client.GetFeatureFlag(t.Context(), "user1", "beta", nil, nil, true)
	require.NoError(t, err)
	assert.False(t, result.Enabled)
	assert.False(t, decideCalled, "onlyEvaluateLocally must never call the remote decision endpoint")
}

func TestClient_Capture_EnqueuesAndFlushes(t *testing.T) {
	received := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/batch/" {
			var body struct {
				Batch []struct {
					Event string `json:"event"`
				} `json:"batch"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if len(body.Batch) == 1 && body.Batch[0].Event == "signup" {
				received <- struct{}{}
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(Config{ProjectAPIKey: "proj-key", HostURL: server.URL})
	require.NoError(t, err)
	defer client.Close()

	client.Capture(t.Context(), "user1", "signup", nil, nil, false)
	client.Flush()

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("capture batch was not delivered")
	}
}

func TestClient_Identify_SetsPersonProperties(t *testing.T) {
	received := make(chan map[string]any, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/batch/" {
			var body struct {
				Batch []struct {
					Properties map[string]any `json:"properties"`
				} `json:"batch"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if len(body.Batch) == 1 {
				received <- body.Batch[0].Properties
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(Config{ProjectAPIKey: "proj-key", HostURL: server.URL})
	require.NoError(t, err)
	defer client.Close()

	client.Identify(t.Context(), "user1", Properties{"plan": "pro"}, nil)
	client.Flush()

	select {
	case props := <-received:
		assert.Contains(t, props, "$set")
	case <-time.After(2 * time.Second):
		t.Fatal("identify event was not delivered")
	}
}
