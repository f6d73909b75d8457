package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"

	"github.com/formationdesk/checkin/schema"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultCacheTTL = time.Minute

	logPrefix = "backend"
)

var ErrNotConfigured = errors.New("backend URL is not configured")

// cacheable lists the read-only actions whose successful responses are cached.
var cacheable = map[string]bool{
	schema.ActionListFormations:     true,
	schema.ActionListDepartments:    true,
	schema.ActionRegistrationStatus: true,
	schema.ActionAvailableModules:   true,
}

// Response is the envelope every action answers with.
type Response struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the data member into v.
func (r *Response) Decode(v interface{}) error {
	if r == nil || len(r.Data) == 0 {
		return fmt.Errorf("empty response data")
	}
	return json.Unmarshal(r.Data, v)
}

// Caller performs backend actions.
type Caller interface {
	Call(ctx context.Context, action string, payload interface{}, opts ...CallOption) (*Response, error)
	ClearCache()
}

type callOptions struct {
	skipCache bool
	timeout   time.Duration
}

// CallOption tunes a single call
type CallOption func(*callOptions)

// SkipCache bypasses the read cache, neither reading nor filling it.
func SkipCache() CallOption {
	return func(o *callOptions) { o.skipCache = true }
}

// WithTimeout overrides the client timeout for one call.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// Client talks to the web app backend. Each action is a POST to BASE_URL?action=<name> with
// a JSON body sent as text/plain.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	cache   *cache.Cache
}

// New returns a client. Zero timeout or TTL select the defaults.
func New(baseURL string, timeout, cacheTTL time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}

	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		http:    &http.Client{},
		cache:   cache.New(cacheTTL, 2*cacheTTL),
	}
}

// ClearCache drops every cached response.
func (c *Client) ClearCache() {
	c.cache.Flush()
}

// Call runs action with payload. A nil payload is sent as an empty object. Any failure is
// returned as *Error.
func (c *Client) Call(ctx context.Context, action string, payload interface{}, opts ...CallOption) (*Response, error) {
	o := callOptions{timeout: c.timeout}
	for _, opt := range opts {
		opt(&o)
	}

	if c.baseURL == "" {
		return nil, &Error{Action: action, Reason: ReasonNotConfigured, Message: ErrNotConfigured.Error(), cause: ErrNotConfigured}
	}

	if payload == nil {
		payload = struct{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Action: action, Reason: ReasonInvalidRequest, Message: err.Error(), cause: err}
	}

	key := ""
	if cacheable[action] {
		key = action + "_" + string(body)
	}

	if key != "" && !o.skipCache {
		if cached, found := c.cache.Get(key); found {
			log.WithField("prefix", logPrefix).Debugf("cache hit: %s", key)
			return cached.(*Response).clone(), nil
		}
	}

	resp, err := c.post(ctx, action, body, o.timeout)
	if err != nil {
		return nil, err
	}

	if key != "" && !o.skipCache {
		c.cache.SetDefault(key, resp.clone())
	}

	return resp, nil
}

// clone copies r so callers never share the cached entry.
func (r *Response) clone() *Response {
	cp := *r
	if r.Data != nil {
		cp.Data = append(json.RawMessage(nil), r.Data...)
	}
	return &cp
}

func (c *Client) post(ctx context.Context, action string, body []byte, timeout time.Duration) (*Response, error) {
	u := c.baseURL + "?action=" + url.QueryEscape(action)
	l := log.WithField("prefix", logPrefix).WithField("action", action)

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Action: action, Reason: ReasonNotConfigured, Message: err.Error(), cause: err}
	}
	req.Header.Set("Content-Type", "text/plain")

	l.Debugf("request: %s", body)
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == nil && isTimeout(reqCtx, err) {
			l.Warnf("timed out after %s", timeout)
			return nil, &Error{Action: action, Reason: ReasonTimeout, Message: timeoutMessage, cause: err}
		}
		l.Errorf("request failed: %s", err)
		return nil, &Error{Action: action, Reason: ReasonUnreachable, Message: unreachableMessage, cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() == nil && isTimeout(reqCtx, err) {
			return nil, &Error{Action: action, Reason: ReasonTimeout, Message: timeoutMessage, cause: err}
		}
		return nil, &Error{Action: action, Reason: ReasonNetwork, Status: resp.StatusCode, Message: err.Error(), cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		l.Errorf("status: %d, body: %s", resp.StatusCode, data)
		return nil, &Error{
			Action:  action,
			Reason:  ReasonNetwork,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("Network error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
	}

	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		l.Errorf("invalid response: %s", data)
		return nil, &Error{Action: action, Reason: ReasonInvalidResponse, Status: resp.StatusCode, Message: invalidResponseMessage, cause: err}
	}

	if !r.Success {
		e := &Error{Action: action, Reason: r.Reason, Message: r.Message, Status: resp.StatusCode, Raw: data}
		if e.Reason == "" {
			e.Reason = ReasonUnknown
		}
		if e.Message == "" {
			e.Message = defaultFailureMessage
		}
		l.Warnf("rejected: %s: %s", e.Reason, e.Message)
		return nil, e
	}

	return &r, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
