package ruleset

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flagkit/flagkit-go/internal/wire"
)

func makeOneFlagRuleSet() wire.RuleSet {
	return wire.RuleSet{Flags: []wire.FlagDefinition{{ID: 1, Key: "f1", Active: true}}}
}

func newTestLoader(t *testing.T, server *httptest.Server) *Loader {
	t.Helper()
	cfg := Config{HostURL: server.URL, ProjectAPIKey: "proj", PersonalAPIKey: "secret", PollInterval: 50 * time.Millisecond}
	return NewLoader(server.Client(), cfg, zerolog.Nop())
}

func TestLoader_FreshLoadStoresETagAndFlags(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"flags":[{"id":1,"key":"f1","active":true,"filters":{"groups":[]}}],"group_type_mapping":{},"cohorts":{}}`))
	}))
	defer server.Close()

	l := newTestLoader(t, server)
	l.fetch(t.Context())

	snap := l.Load()
	require.Len(t, snap.RuleSet.Flags, 1)
	assert.Equal(t, `"v1"`, snap.ETag)
}

func TestLoader_ConditionalRefreshKeepsSnapshotOn304(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			assert.Empty(t, r.Header.Get("If-None-Match"))
			w.Header().Set("ETag", `"v1"`)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"flags":[{"id":1,"key":"f1","active":true,"filters":{"groups":[]}}],"group_type_mapping":{},"cohorts":{}}`))
			return
		}
		assert.Equal(t, `"v1"`, r.Header.Get("If-None-Match"))
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	l := newTestLoader(t, server)
	l.fetch(t.Context())
	before := l.Load()

	l.fetch(t.Context())
	after := l.Load()

	assert.Equal(t, before.RuleSet, after.RuleSet)
	assert.Equal(t, `"v1"`, after.ETag)
}

func TestLoader_QuotaLimitedClearsState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"type":"quota_limited"}`))
	}))
	defer server.Close()

	l := newTestLoader(t, server)
	l.current.Store(&Snapshot{RuleSet: makeOneFlagRuleSet(), ETag: `"v1"`})

	l.fetch(t.Context())

	snap := l.Load()
	assert.Empty(t, snap.RuleSet.Flags)
	assert.Empty(t, snap.ETag)
}

func TestLoader_AuthFailureKeepsPriorSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	l := newTestLoader(t, server)
	prior := &Snapshot{RuleSet: makeOneFlagRuleSet(), ETag: `"v1"`}
	l.current.Store(prior)

	l.fetch(t.Context())

	assert.Equal(t, prior, l.Load())
}

func TestLoader_TransportFailureKeepsPriorSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	l := newTestLoader(t, server)
	prior := &Snapshot{RuleSet: makeOneFlagRuleSet(), ETag: `"v1"`}
	l.current.Store(prior)

	l.fetch(t.Context())

	assert.Equal(t, prior, l.Load())
}

func TestLoader_ClearLocalFlagsCache(t *testing.T) {
	l := newTestLoader(t, httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	l.current.Store(&Snapshot{RuleSet: makeOneFlagRuleSet(), ETag: `"v1"`})

	l.ClearLocalFlagsCache()

	snap := l.Load()
	assert.Empty(t, snap.RuleSet.Flags)
	assert.Empty(t, snap.ETag)
}
