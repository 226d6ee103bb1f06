// Package recognize implements the downstream recognition collaborator
// named in spec §6: an HTTP client that posts a segmented phrase's raw
// PCM bytes and gets back a transcript/reply/intent triple.
package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/lokutor-ai/phrasecap/pkg/audio"
)

// ErrUnknownValue is returned when a 2xx response body cannot be
// decoded as the expected JSON shape — the recognizer understood the
// request but returned something this client can't interpret.
var ErrUnknownValue = errors.New("recognize: could not interpret recognizer response")

// RequestError wraps a non-2xx response from the recognition backend.
// Per spec §6/§7 it is reported and skipped: the caller (typically a
// BackgroundListener callback) continues running rather than treating
// it as fatal.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("recognize: request failed with status %d: %s", e.StatusCode, e.Body)
}

// Result is the decoded recognizer response. Intent is left as raw JSON
// since its shape is undefined by the contract — structured but opaque
// to this module.
type Result struct {
	Transcript string          `json:"result"`
	Reply      string          `json:"response"`
	Intent     json.RawMessage `json:"intent"`
}

// Client talks to one recognition backend host over the
// token/samplerate/samplewidth/clientid query-string contract from
// original_source/action.py's Ani.recognition, generalized into a
// reusable client in the shape of the teacher's pkg/providers/stt
// clients (context-aware request, bearer-adjacent auth, JSON decode) —
// but over a query string plus raw-bytes body instead of multipart,
// since the contract here is fixed rather than vendor-negotiable.
type Client struct {
	httpClient *http.Client
	host       string
	token      string
	clientID   string
}

// New builds a Client against host (e.g. "http://localhost:5000"),
// authenticating with token and identifying itself as clientID.
func New(host, token, clientID string) *Client {
	return &Client{
		httpClient: http.DefaultClient,
		host:       host,
		token:      token,
		clientID:   clientID,
	}
}

// Recognize posts data's frame bytes to /api/audible and decodes the
// recognizer's response. A non-2xx response yields a *RequestError; the
// caller is expected to log and continue rather than abort.
func (c *Client) Recognize(ctx context.Context, data audio.Data) (Result, error) {
	q := url.Values{}
	q.Set("token", c.token)
	q.Set("samplerate", fmt.Sprintf("%d", data.SampleRate))
	q.Set("samplewidth", fmt.Sprintf("%d", data.SampleWidth))
	q.Set("clientid", c.clientID)

	reqURL := c.host + "/api/audible?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(data.FrameData))
	if err != nil {
		return Result{}, fmt.Errorf("recognize: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("recognize: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return Result{}, &RequestError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnknownValue, err)
	}
	return result, nil
}
