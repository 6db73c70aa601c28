package bluesky

// Session is the result of createSession or refreshSession
type Session struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	Handle     string `json:"handle"`
	DID        string `json:"did"`
}

// SearchResponse is one page of app.bsky.feed.searchPosts
type SearchResponse struct {
	Posts     []PostView `json:"posts"`
	Cursor    string     `json:"cursor,omitempty"`
	HitsTotal int        `json:"hitsTotal,omitempty"`
}

// PostView is a post as returned by search
type PostView struct {
	URI       string     `json:"uri"`
	CID       string     `json:"cid"`
	Author    Author     `json:"author"`
	Record    PostRecord `json:"record"`
	IndexedAt string     `json:"indexedAt"`
}

// Author is the profile attached to a post
type Author struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
}

// PostRecord is the app.bsky.feed.post record body
type PostRecord struct {
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}

// XRPCError is the error body returned by XRPC endpoints
type XRPCError struct {
	Name    string `json:"error"`
	Message string `json:"message"`
}

func (e *XRPCError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return e.Name + ": " + e.Message
}
