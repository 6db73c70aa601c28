package bluesky

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	// Platform names this producer in sessions and artifact paths
	Platform = "bluesky"

	// DefaultBaseURL is the PDS entryway used for login and search
	DefaultBaseURL = "https://bsky.social"

	// CreateSessionEndpoint exchanges a handle and app password for tokens
	CreateSessionEndpoint = "/xrpc/com.atproto.server.createSession"

	// RefreshSessionEndpoint trades a refresh token for a new access token
	RefreshSessionEndpoint = "/xrpc/com.atproto.server.refreshSession"

	// SearchPostsEndpoint is the full-text post search
	SearchPostsEndpoint = "/xrpc/app.bsky.feed.searchPosts"

	// DefaultSearchLimit is the page size used when none is given
	DefaultSearchLimit = 25

	// MaxSearchLimit is the largest page the search endpoint accepts
	MaxSearchLimit = 100
)

// SearchURL builds the searchPosts URL for one page
func SearchURL(baseURL, query, cursor string, limit int) string {
	if limit <= 0 {
		limit = DefaultSearchLimit
	} else if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	return strings.TrimRight(baseURL, "/") + SearchPostsEndpoint + "?" + params.Encode()
}

// PostURL returns the web URL for an at:// post URI, or "" when uri is not a post
func PostURL(uri string) string {
	rest, ok := strings.CutPrefix(uri, "at://")
	if !ok {
		return ""
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "app.bsky.feed.post" || parts[0] == "" || parts[2] == "" {
		return ""
	}
	return "https://bsky.app/profile/" + parts[0] + "/post/" + parts[2]
}

// NormalizeHandle strips a leading @ and surrounding whitespace and lowercases the handle
func NormalizeHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	handle = strings.TrimPrefix(handle, "@")
	return strings.ToLower(handle)
}

// IsValidHandle checks a handle has the shape of a domain name
func IsValidHandle(handle string) bool {
	if handle == "" || len(handle) > 253 || !strings.Contains(handle, ".") {
		return false
	}

	for _, label := range strings.Split(handle, ".") {
		if label == "" || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, char := range label {
			if !((char >= 'a' && char <= 'z') ||
				(char >= 'A' && char <= 'Z') ||
				(char >= '0' && char <= '9') ||
				char == '-') {
				return false
			}
		}
	}

	return true
}
