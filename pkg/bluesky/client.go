package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"postharvest/pkg/config"
	errs "postharvest/pkg/errors"
	"postharvest/pkg/logger"
	"postharvest/pkg/models"
	"postharvest/pkg/ratelimit"
)

// Client talks to the Bluesky XRPC API with an app-password session
type Client struct {
	httpClient  *http.Client
	baseURL     string
	handle      string
	appPassword string
	userAgent   string
	limiter     ratelimit.Limiter
	logger      logger.Logger

	mu      sync.Mutex
	session *Session
}

// NewClient creates a client from cfg. A nil limiter disables pacing.
func NewClient(cfg config.BlueskyConfig, limiter ratelimit.Limiter, log logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		handle:      NormalizeHandle(cfg.Handle),
		appPassword: cfg.AppPassword,
		userAgent:   "postharvest/" + logger.Version,
		limiter:     limiter,
		logger:      logger.OrDefault(log).WithField("component", "bluesky"),
	}
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(h *http.Client) {
	c.httpClient = h
}

// Handle returns the account the client logs in as
func (c *Client) Handle() string {
	return c.handle
}

// Login creates a new session, replacing any existing one
func (c *Client) Login(ctx context.Context) error {
	if c.handle == "" || c.appPassword == "" {
		return &errs.Error{Type: errs.ErrorTypeAuth, Message: "bluesky handle and app password are required"}
	}

	body := map[string]string{"identifier": c.handle, "password": c.appPassword}
	var session Session
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+CreateSessionEndpoint, body, "", &session); err != nil {
		c.logger.ErrorWithFields("Failed to log in to Bluesky", map[string]interface{}{
			"handle": c.handle,
			"error":  err.Error(),
		})
		return err
	}

	c.mu.Lock()
	c.session = &session
	c.mu.Unlock()

	c.logger.InfoWithFields("Logged in to Bluesky", map[string]interface{}{
		"handle": session.Handle,
		"did":    session.DID,
	})
	return nil
}

func (c *Client) currentSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) ensureSession(ctx context.Context) (*Session, error) {
	if s := c.currentSession(); s != nil {
		return s, nil
	}
	if err := c.Login(ctx); err != nil {
		return nil, err
	}
	return c.currentSession(), nil
}

// refresh swaps the refresh token for a new session, logging in from
// scratch when the refresh token is no longer accepted
func (c *Client) refresh(ctx context.Context, stale *Session) error {
	var session Session
	err := c.doJSON(ctx, http.MethodPost, c.baseURL+RefreshSessionEndpoint, nil, stale.RefreshJwt, &session)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.WarnWithFields("Session refresh failed, logging in again", map[string]interface{}{
			"error": err.Error(),
		})
		return c.Login(ctx)
	}

	c.mu.Lock()
	c.session = &session
	c.mu.Unlock()
	c.logger.Debug("Refreshed Bluesky session")
	return nil
}

// SearchPosts fetches one page of search results
func (c *Client) SearchPosts(ctx context.Context, query, cursor string, limit int) (*SearchResponse, error) {
	session, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	url := SearchURL(c.baseURL, query, cursor, limit)
	var response SearchResponse
	err = c.doJSON(ctx, http.MethodGet, url, nil, session.AccessJwt, &response)
	if isExpiredToken(err) {
		if err := c.refresh(ctx, session); err != nil {
			return nil, err
		}
		err = c.doJSON(ctx, http.MethodGet, url, nil, c.currentSession().AccessJwt, &response)
	}
	if err != nil {
		return nil, err
	}

	return &response, nil
}

// FetchPage returns up to pageSize posts matching key, starting at cursor.
// An empty NextCursor means there are no further pages.
func (c *Client) FetchPage(ctx context.Context, key, cursor string, pageSize int) (models.Page, error) {
	response, err := c.SearchPosts(ctx, key, cursor, pageSize)
	if err != nil {
		return models.Page{}, err
	}

	records := make([]models.Record, 0, len(response.Posts))
	for _, post := range response.Posts {
		if post.URI == "" {
			c.logger.WarnWithFields("Skipping post without URI", map[string]interface{}{
				"key":    key,
				"author": post.Author.Handle,
			})
			continue
		}
		records = append(records, ToRecord(key, post))
	}

	page := models.Page{Records: records, NextCursor: response.Cursor}
	if len(response.Posts) == 0 {
		page.NextCursor = ""
	}

	c.logger.DebugWithFields("Fetched search page", map[string]interface{}{
		"key":         key,
		"posts":       len(records),
		"has_more":    page.NextCursor != "",
		"page_cursor": cursor,
	})
	return page, nil
}

// ToRecord maps a search result onto a Record for key
func ToRecord(key string, post PostView) models.Record {
	return models.Record{
		ID:           post.URI,
		Key:          key,
		Text:         post.Record.Text,
		AuthorHandle: post.Author.Handle,
		AuthorName:   post.Author.DisplayName,
		AuthorID:     post.Author.DID,
		CreatedAt:    post.Record.CreatedAt,
		AuthorBio:    post.Author.Description,
	}
}

// doJSON sends a request with an optional JSON body and bearer token and
// decodes a JSON response into target
func (c *Client) doJSON(ctx context.Context, method, url string, body interface{}, bearer string, target interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &errs.Error{Type: errs.ErrorTypeUnknown, Message: "failed to encode request", Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return &errs.Error{Type: errs.ErrorTypeUnknown, Message: "failed to create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method": method,
			"url":    redactURL(url),
			"error":  err.Error(),
		})
		return &errs.Error{Type: errs.ErrorTypeNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	logger.LogRequest(c.logger, method, redactURL(url), resp.StatusCode, elapsed)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &errs.Error{Type: errs.ErrorTypeNetwork, Message: "failed to read response body", Code: resp.StatusCode, Err: err}
	}

	if err := c.checkResponseStatus(resp, data); err != nil {
		return err
	}

	if target == nil {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		preview := string(data)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("Failed to parse JSON response", map[string]interface{}{
			"url":          redactURL(url),
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return &errs.Error{Type: errs.ErrorTypeParsing, Message: "failed to parse JSON", Code: resp.StatusCode, Err: err}
	}
	return nil
}

// checkResponseStatus maps non-2xx responses onto classified errors
func (c *Client) checkResponseStatus(resp *http.Response, body []byte) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	var xe *XRPCError
	var parsed XRPCError
	if json.Unmarshal(body, &parsed) == nil && parsed.Name != "" {
		xe = &parsed
	}
	message := func(fallback string) string {
		if xe != nil {
			return xe.Error()
		}
		return fallback
	}
	newErr := func(t errs.ErrorType, fallback string) error {
		e := &errs.Error{Type: t, Message: message(fallback), Code: code}
		if xe != nil {
			e.Err = xe
		}
		return e
	}

	switch {
	case xe != nil && (xe.Name == "ExpiredToken" || xe.Name == "InvalidToken"):
		return newErr(errs.ErrorTypeAuth, "session expired")
	case code == http.StatusBadRequest:
		return newErr(errs.ErrorTypeTerminalKey, "invalid request")
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return newErr(errs.ErrorTypeAuth, "authentication required")
	case code == http.StatusNotFound:
		return newErr(errs.ErrorTypeNotFound, "resource not found")
	case code == http.StatusTooManyRequests:
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		logger.LogRateLimit(c.logger, resp.Request.URL.Path, retryAfter)
		return newErr(errs.ErrorTypeRateLimit, "rate limit exceeded")
	case code >= 500:
		return newErr(errs.ErrorTypeServerError, "server error")
	default:
		return newErr(errs.ErrorTypeUnknown, fmt.Sprintf("unexpected status code: %d", code))
	}
}

func isExpiredToken(err error) bool {
	var xe *XRPCError
	return errors.As(err, &xe) && xe.Name == "ExpiredToken"
}

// redactURL drops the query string
func redactURL(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
