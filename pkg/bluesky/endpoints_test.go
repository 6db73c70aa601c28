package bluesky

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchURL(t *testing.T) {
	tests := []struct {
		name      string
		cursor    string
		limit     int
		wantLimit string
	}{
		{"default limit", "", 0, "25"},
		{"custom limit", "abc", 10, "10"},
		{"clamped", "", 500, "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := SearchURL("https://bsky.social/", "counter-terrorism financing", tt.cursor, tt.limit)
			u, err := url.Parse(raw)
			require.NoError(t, err)

			assert.Equal(t, "bsky.social", u.Host)
			assert.Equal(t, SearchPostsEndpoint, u.Path)
			assert.Equal(t, "counter-terrorism financing", u.Query().Get("q"))
			assert.Equal(t, tt.wantLimit, u.Query().Get("limit"))
			assert.Equal(t, tt.cursor, u.Query().Get("cursor"))
			assert.Equal(t, tt.cursor != "", u.Query().Has("cursor"))
		})
	}
}

func TestPostURL(t *testing.T) {
	assert.Equal(t, "https://bsky.app/profile/did:plc:abc/post/3kxyz",
		PostURL("at://did:plc:abc/app.bsky.feed.post/3kxyz"))
	assert.Empty(t, PostURL("at://did:plc:abc/app.bsky.feed.like/3kxyz"))
	assert.Empty(t, PostURL("https://example.com"))
	assert.Empty(t, PostURL("at://did:plc:abc/app.bsky.feed.post/"))
}

func TestNormalizeHandle(t *testing.T) {
	assert.Equal(t, "alice.bsky.social", NormalizeHandle("  @Alice.Bsky.Social "))
	assert.Equal(t, "", NormalizeHandle(""))
}

func TestIsValidHandle(t *testing.T) {
	valid := []string{"alice.bsky.social", "my-org.example.com", "a1.b2"}
	invalid := []string{"", "alice", "-alice.bsky.social", "alice..social", "al ice.bsky.social", "alice_b.bsky.social"}

	for _, h := range valid {
		assert.True(t, IsValidHandle(h), h)
	}
	for _, h := range invalid {
		assert.False(t, IsValidHandle(h), h)
	}
}
