package httpremote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	syncErrors "github.com/boothkit/boothkit/errors"
	"github.com/boothkit/boothkit/remote"
)

const clientComponent = "httpremote/client"

// Client implements remote.Store against a boothkit HTTP server.
type Client struct {
	baseURL string
	http    *http.Client
	dialer  *websocket.Dialer
}

var _ remote.Store = (*Client)(nil)

// NewClient creates a client for the server at baseURL, e.g.
// "http://sync.example.com:8080". httpClient may be nil.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("httpremote: invalid base URL %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		dialer:  websocket.DefaultDialer,
	}, nil
}

func (c *Client) Create(ctx context.Context, table string, rec remote.Record) (remote.Record, error) {
	var created remote.Record
	err := c.do(ctx, http.MethodPost, c.tableURL(table), rec, &created, syncErrors.OpCreate)
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (c *Client) Update(ctx context.Context, table, id string, rec remote.Record) error {
	return c.do(ctx, http.MethodPatch, c.tableURL(table)+"/"+url.PathEscape(id), rec, nil, syncErrors.OpUpdate)
}

func (c *Client) Delete(ctx context.Context, table, id string) error {
	return c.do(ctx, http.MethodDelete, c.tableURL(table)+"/"+url.PathEscape(id), nil, nil, syncErrors.OpDelete)
}

func (c *Client) Query(ctx context.Context, table string, f remote.Filter) ([]remote.Record, error) {
	endpoint := c.tableURL(table)
	if f.ShowID != "" {
		endpoint += "?show_id=" + url.QueryEscape(f.ShowID)
	}
	var recs []remote.Record
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &recs, syncErrors.OpQuery); err != nil {
		return nil, err
	}
	return recs, nil
}

// Subscribe opens the websocket change feed for a table and show.
func (c *Client) Subscribe(ctx context.Context, table string, f remote.Filter) (remote.Subscription, error) {
	wsURL := strings.Replace(c.tableURL(table), "http", "ws", 1) + "/ws"
	if f.ShowID != "" {
		wsURL += "?show_id=" + url.QueryEscape(f.ShowID)
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, syncErrors.NewUnavailable(syncErrors.OpSubscribe, clientComponent, err)
	}

	sub := &wsSubscription{
		conn: conn,
		ch:   make(chan remote.Change, 16),
	}
	go sub.readLoop()
	return sub, nil
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) tableURL(table string) string {
	return c.baseURL + "/api/" + url.PathEscape(table)
}

// do performs one request and decodes the response into out when non-nil.
// Transport failures and 5xx responses come back as retryable unavailable
// errors; 4xx responses keep their mapped kinds.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any, op syncErrors.Operation) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return syncErrors.NewWithComponent(op, clientComponent, err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return syncErrors.NewWithComponent(op, clientComponent, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return syncErrors.NewUnavailable(op, clientComponent, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.errorFromResponse(op, resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return syncErrors.NewWithComponent(op, clientComponent, fmt.Errorf("decoding response: %w", err))
		}
	}
	return nil
}

func (c *Client) errorFromResponse(op syncErrors.Operation, resp *http.Response) error {
	var eb errBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&eb)
	if eb.Error == "" {
		eb.Error = resp.Status
	}
	err := fmt.Errorf("%s", eb.Error)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return syncErrors.NewNotFound(op, clientComponent, err)
	case resp.StatusCode == http.StatusBadRequest:
		return syncErrors.NewValidation(op, err)
	case resp.StatusCode == http.StatusConflict:
		return &syncErrors.SyncError{Op: op, Component: clientComponent, Kind: syncErrors.KindConflict, Err: err}
	case resp.StatusCode >= 500:
		return syncErrors.NewUnavailable(op, clientComponent, err)
	default:
		return syncErrors.NewWithComponent(op, clientComponent, err)
	}
}

// wsSubscription adapts a websocket connection to remote.Subscription.
type wsSubscription struct {
	conn *websocket.Conn
	ch   chan remote.Change

	mu     sync.Mutex
	err    error
	closed bool
}

func (s *wsSubscription) readLoop() {
	defer close(s.ch)
	for {
		var change remote.Change
		if err := s.conn.ReadJSON(&change); err != nil {
			s.mu.Lock()
			if !s.closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.err = syncErrors.NewUnavailable(syncErrors.OpSubscribe, clientComponent, err)
			}
			s.mu.Unlock()
			return
		}
		s.ch <- change
	}
}

func (s *wsSubscription) Changes() <-chan remote.Change { return s.ch }

func (s *wsSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *wsSubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}
