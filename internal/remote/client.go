package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

// Client talks to a replica server over HTTP and implements Store.
// Subscribe holds a websocket open and reconnects with backoff when
// the connection drops.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
}

// NewClient creates a client for the replica server at baseURL.
func NewClient(baseURL string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

func (c *Client) userURL(uid, record string) string {
	return fmt.Sprintf("%s/v1/users/%s/%s", c.baseURL, uid, record)
}

// LoadProgress fetches the user's progress envelope. A missing record
// is not an error; it returns (nil, nil).
func (c *Client) LoadProgress(ctx context.Context, uid string) (*Envelope, error) {
	var env Envelope
	found, err := c.getJSON(ctx, c.userURL(uid, "progress"), &env)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &env, nil
}

// SaveProgress uploads the envelope and returns the server write time.
func (c *Client) SaveProgress(ctx context.Context, uid string, env *Envelope) (time.Time, error) {
	var resp struct {
		WrittenAt time.Time `json:"writtenAt"`
	}
	if err := c.putJSON(ctx, c.userURL(uid, "progress"), env, &resp); err != nil {
		return time.Time{}, fmt.Errorf("failed to save progress: %w", err)
	}
	return resp.WrittenAt, nil
}

// LoadSettings fetches the user's raw settings blob, nil if absent.
func (c *Client) LoadSettings(ctx context.Context, uid string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userURL(uid, "settings"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to load settings: %s", readError(resp))
	}
	return io.ReadAll(resp.Body)
}

// SaveSettings uploads the raw settings blob unchanged.
func (c *Client) SaveSettings(ctx context.Context, uid string, blob json.RawMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.userURL(uid, "settings"), bytes.NewReader(blob))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("failed to save settings: %s", readError(resp))
	}
	return nil
}

// SaveLeaderboard publishes the user's leaderboard entry.
func (c *Client) SaveLeaderboard(ctx context.Context, uid string, entry *LeaderboardEntry) error {
	req, err := newJSONRequest(ctx, http.MethodPut, c.userURL(uid, "leaderboard"), entry)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to publish leaderboard entry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("failed to publish leaderboard entry: %s", readError(resp))
	}
	return nil
}

// Leaderboard fetches the shared board, keyed by uid. It is not part
// of Store; only the CLI display uses it.
func (c *Client) Leaderboard(ctx context.Context) (map[string]*LeaderboardEntry, error) {
	var board map[string]*LeaderboardEntry
	found, err := c.getJSON(ctx, c.baseURL+"/v1/leaderboard", &board)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	if !found {
		return map[string]*LeaderboardEntry{}, nil
	}
	return board, nil
}

// Subscribe opens the watch websocket and invokes fn for each
// envelope the server pushes. It reconnects with backoff until the
// context is done or the returned cancel func is called.
func (c *Client) Subscribe(ctx context.Context, uid string, fn func(*Envelope)) (func(), error) {
	subCtx, cancel := context.WithCancel(ctx)

	wsURL := strings.Replace(c.userURL(uid, "progress/watch"), "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)

	go func() {
		backoff := time.Second
		for {
			if subCtx.Err() != nil {
				return
			}
			err := c.watch(subCtx, wsURL, fn)
			if subCtx.Err() != nil {
				return
			}
			if err != nil {
				c.logger.Printf("Watch connection lost: %v (retrying in %s)", err, backoff)
			}
			select {
			case <-subCtx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()

	return cancel, nil
}

// watch runs one websocket session, returning when it drops.
func (c *Client) watch(ctx context.Context, wsURL string, fn func(*Envelope)) error {
	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	dialCancel()
	if err != nil {
		return fmt.Errorf("failed to dial watch endpoint: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Printf("Dropping malformed envelope: %v", err)
			continue
		}
		fn(&env)
	}
}

func (c *Client) getJSON(ctx context.Context, url string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("server returned %s", readError(resp))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return true, nil
}

func (c *Client) putJSON(ctx context.Context, url string, in, out any) error {
	req, err := newJSONRequest(ctx, http.MethodPut, url, in)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", readError(resp))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func newJSONRequest(ctx context.Context, method, url string, v any) (*http.Request, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func readError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return resp.Status
	}
	return fmt.Sprintf("%s: %s", resp.Status, msg)
}
