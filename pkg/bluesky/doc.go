// Package bluesky provides the Bluesky search producer.
//
// Client logs in with a handle and app password, keeps the resulting
// session, and pages through app.bsky.feed.searchPosts. Each search
// request first waits on the configured rate limiter. HTTP failures are
// returned as *errors.Error values so the collector can decide whether to
// retry:
//
//	400          terminal_key  (malformed query; the key fails)
//	401, 403     auth
//	404          not_found
//	429          rate_limit    (retried)
//	5xx          server_error  (retried)
//	transport    network       (retried)
//
// An access token that has expired is refreshed once, transparently.
package bluesky
