package bluesky

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"postharvest/pkg/config"
	errs "postharvest/pkg/errors"
	"postharvest/pkg/logger"
)

// fakeServer is a minimal XRPC server with one account
type fakeServer struct {
	*httptest.Server
	logins    int32
	refreshes int32
	searches  int32
	token     atomic.Value
	search    func(w http.ResponseWriter, r *http.Request)
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.token.Store("access-1")

	mux := http.NewServeMux()
	mux.HandleFunc(CreateSessionEndpoint, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fs.logins, 1)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["identifier"] != "alice.bsky.social" || body["password"] != "app-pass" {
			writeXRPCError(w, http.StatusUnauthorized, "AuthenticationRequired", "Invalid identifier or password")
			return
		}
		writeJSON(w, Session{AccessJwt: fs.token.Load().(string), RefreshJwt: "refresh-1", Handle: "alice.bsky.social", DID: "did:plc:alice"})
	})
	mux.HandleFunc(RefreshSessionEndpoint, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fs.refreshes, 1)
		if r.Header.Get("Authorization") != "Bearer refresh-1" {
			writeXRPCError(w, http.StatusBadRequest, "InvalidToken", "bad refresh token")
			return
		}
		fs.token.Store("access-2")
		writeJSON(w, Session{AccessJwt: "access-2", RefreshJwt: "refresh-1", Handle: "alice.bsky.social", DID: "did:plc:alice"})
	})
	mux.HandleFunc(SearchPostsEndpoint, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fs.searches, 1)
		if r.Header.Get("Authorization") != "Bearer "+fs.token.Load().(string) {
			writeXRPCError(w, http.StatusBadRequest, "ExpiredToken", "Token has expired")
			return
		}
		fs.search(w, r)
	})

	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) client(t *testing.T, log logger.Logger) *Client {
	return NewClient(config.BlueskyConfig{
		BaseURL:     fs.URL,
		Handle:      "@Alice.bsky.social",
		AppPassword: "app-pass",
		Timeout:     5 * time.Second,
	}, nil, log)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeXRPCError(w http.ResponseWriter, status int, name, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(XRPCError{Name: name, Message: message})
}

func samplePost(n string) PostView {
	return PostView{
		URI:    "at://did:plc:bob/app.bsky.feed.post/" + n,
		CID:    "cid" + n,
		Author: Author{DID: "did:plc:bob", Handle: "bob.bsky.social", DisplayName: "Bob", Description: "Lagos based"},
		Record: PostRecord{Text: "post " + n, CreatedAt: "2024-05-01T10:00:00Z"},
	}
}

func TestFetchPage(t *testing.T) {
	fs := newFakeServer(t)
	fs.search = func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "counter terrorism", q.Get("q"))
		assert.Equal(t, "10", q.Get("limit"))
		assert.Equal(t, "c1", q.Get("cursor"))
		writeJSON(w, SearchResponse{Posts: []PostView{samplePost("1"), {URI: ""}, samplePost("2")}, Cursor: "c2"})
	}

	log := logger.NewTestLogger()
	c := fs.client(t, log)
	assert.Equal(t, "alice.bsky.social", c.Handle())

	page, err := c.FetchPage(context.Background(), "counter terrorism", "c1", 10)
	require.NoError(t, err)

	require.Len(t, page.Records, 2)
	assert.Equal(t, "c2", page.NextCursor)
	rec := page.Records[0]
	assert.Equal(t, "at://did:plc:bob/app.bsky.feed.post/1", rec.ID)
	assert.Equal(t, "counter terrorism", rec.Key)
	assert.Equal(t, "post 1", rec.Text)
	assert.Equal(t, "bob.bsky.social", rec.AuthorHandle)
	assert.Equal(t, "Bob", rec.AuthorName)
	assert.Equal(t, "did:plc:bob", rec.AuthorID)
	assert.Equal(t, "2024-05-01T10:00:00Z", rec.CreatedAt)
	assert.Equal(t, "Lagos based", rec.AuthorBio)
	assert.Nil(t, rec.Enrichment)

	assert.True(t, log.HasMessage("Skipping post without URI"))
	assert.EqualValues(t, 1, atomic.LoadInt32(&fs.logins))

	_, err = c.FetchPage(context.Background(), "counter terrorism", "c1", 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fs.logins), "session is reused")
}

func TestFetchPageEmptyIsTerminal(t *testing.T) {
	fs := newFakeServer(t)
	fs.search = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, SearchResponse{Cursor: "still-here"})
	}

	page, err := fs.client(t, logger.NewNopLogger()).FetchPage(context.Background(), "ctf", "", 25)
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.Empty(t, page.NextCursor)
}

func TestExpiredTokenIsRefreshed(t *testing.T) {
	fs := newFakeServer(t)
	fs.search = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, SearchResponse{Posts: []PostView{samplePost("1")}})
	}

	c := fs.client(t, logger.NewNopLogger())
	require.NoError(t, c.Login(context.Background()))

	// Server rotates its token behind the client's back
	fs.token.Store("access-2")

	page, err := c.FetchPage(context.Background(), "ctf", "", 25)
	require.NoError(t, err)
	assert.Len(t, page.Records, 1)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fs.refreshes))
	assert.EqualValues(t, 2, atomic.LoadInt32(&fs.searches))
}

func TestLoginFailures(t *testing.T) {
	fs := newFakeServer(t)

	c := NewClient(config.BlueskyConfig{BaseURL: fs.URL, Handle: "alice.bsky.social", AppPassword: "wrong"}, nil, logger.NewNopLogger())
	err := c.Login(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeAuth, errs.TypeOf(err))
	assert.Contains(t, err.Error(), "AuthenticationRequired")

	c = NewClient(config.BlueskyConfig{BaseURL: fs.URL}, nil, logger.NewNopLogger())
	_, err = c.FetchPage(context.Background(), "ctf", "", 25)
	assert.True(t, errs.Is(err, errs.ErrorTypeAuth))
	assert.EqualValues(t, 0, atomic.LoadInt32(&fs.logins), "no request without credentials")
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status    int
		xrpc      string
		want      errs.ErrorType
		retryable bool
	}{
		{http.StatusBadRequest, "InvalidRequest", errs.ErrorTypeTerminalKey, false},
		{http.StatusUnauthorized, "", errs.ErrorTypeAuth, false},
		{http.StatusForbidden, "", errs.ErrorTypeAuth, false},
		{http.StatusNotFound, "", errs.ErrorTypeNotFound, false},
		{http.StatusTooManyRequests, "RateLimitExceeded", errs.ErrorTypeRateLimit, true},
		{http.StatusInternalServerError, "", errs.ErrorTypeServerError, true},
		{http.StatusBadGateway, "", errs.ErrorTypeServerError, true},
		{http.StatusServiceUnavailable, "", errs.ErrorTypeServerError, true},
		{http.StatusTeapot, "", errs.ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			fs := newFakeServer(t)
			fs.search = func(w http.ResponseWriter, r *http.Request) {
				if tt.status == http.StatusTooManyRequests {
					w.Header().Set("Retry-After", "7")
				}
				if tt.xrpc != "" {
					writeXRPCError(w, tt.status, tt.xrpc, "details")
					return
				}
				w.WriteHeader(tt.status)
			}

			log := logger.NewTestLogger()
			_, err := fs.client(t, log).FetchPage(context.Background(), "ctf", "", 25)
			require.Error(t, err)

			var e *errs.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.want, e.Type)
			assert.Equal(t, tt.status, e.Code)
			assert.Equal(t, tt.retryable, errs.IsRetryable(e.Type))
			if tt.xrpc != "" {
				assert.Contains(t, e.Message, tt.xrpc)
			}
			if tt.status == http.StatusTooManyRequests {
				assert.True(t, log.HasMessage("Rate limit reached, backing off"))
			}
		})
	}
}

func TestMalformedJSON(t *testing.T) {
	fs := newFakeServer(t)
	fs.search = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"posts": [`))
	}

	_, err := fs.client(t, logger.NewNopLogger()).FetchPage(context.Background(), "ctf", "", 25)
	assert.True(t, errs.Is(err, errs.ErrorTypeParsing))
}

func TestNetworkError(t *testing.T) {
	fs := newFakeServer(t)
	c := fs.client(t, logger.NewNopLogger())
	fs.Close()

	err := c.Login(context.Background())
	assert.True(t, errs.Is(err, errs.ErrorTypeNetwork))
	assert.True(t, errs.IsRetryable(errs.TypeOf(err)))
}

func TestCancelledContext(t *testing.T) {
	fs := newFakeServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	fs.search = func(w http.ResponseWriter, r *http.Request) {
		cancel()
		<-r.Context().Done()
	}

	_, err := fs.client(t, logger.NewNopLogger()).FetchPage(ctx, "ctf", "", 25)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, errs.ErrorTypeUnknown, errs.TypeOf(err))
}

type countingLimiter struct{ waits int32 }

func (l *countingLimiter) Allow() bool { return true }
func (l *countingLimiter) Reset()      {}
func (l *countingLimiter) Wait(ctx context.Context) error {
	atomic.AddInt32(&l.waits, 1)
	return ctx.Err()
}

func TestSearchIsPaced(t *testing.T) {
	fs := newFakeServer(t)
	fs.search = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, SearchResponse{})
	}

	limiter := &countingLimiter{}
	c := NewClient(config.BlueskyConfig{BaseURL: fs.URL, Handle: "alice.bsky.social", AppPassword: "app-pass"}, limiter, logger.NewNopLogger())

	for i := 0; i < 3; i++ {
		_, err := c.FetchPage(context.Background(), "ctf", "", 25)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, atomic.LoadInt32(&limiter.waits))
}
