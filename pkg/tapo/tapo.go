// Package tapo implements the camera's HTTP control protocol.
//
// The device exposes a single JSON-RPC-ish endpoint at
// /stok=<token>/ds. A login call against token "0" yields a session
// token used for all later calls. The session token is cached on the
// Client and is not refreshed: the device gives no expiry signal, so a
// stale token simply surfaces as a failed snapshot. Callers wanting a
// fresh session should use a new Client.
//
// The login password field carries base64(hex(md5(password))). MD5 is
// what the device firmware expects on the wire; it is an
// interoperability requirement, not a security measure.
package tapo

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/tapocap/internal/httpc"
)

// Request timeouts mirror the device's observed response behavior:
// logins answer quickly, snapshots can take several seconds while the
// ISP pipeline produces a frame.
const (
	loginTimeout    = 10 * time.Second
	snapshotTimeout = 15 * time.Second
)

var (
	// ErrAuthRejected is returned when the device refuses a login.
	ErrAuthRejected = errors.New("tapo: login rejected")

	// ErrBadResponse is returned when the device answers with an
	// unexpected status, content type or body shape.
	ErrBadResponse = errors.New("tapo: unexpected device response")

	// ErrNoToken is returned when a call requiring a session is made
	// before a successful Login.
	ErrNoToken = errors.New("tapo: no session token")
)

// Client talks to one camera. It is not safe for concurrent use; use
// one Client per capture loop.
type Client struct {
	baseURL  string
	username string
	password string
	token    string
	http     *http.Client
}

// NewClient creates a client for the camera at address (host or
// host:port).
func NewClient(address, username, password string) *Client {
	return &Client{
		baseURL:  "http://" + address,
		username: username,
		password: password,
		http:     httpc.NewClient(snapshotTimeout + 5*time.Second),
	}
}

// HasToken reports whether a session token is cached.
func (c *Client) HasToken() bool {
	return c.token != ""
}

type request struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

type loginParams struct {
	Hashed   bool   `json:"hashed"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type snapshotParams struct {
	Image imageName `json:"image"`
}

type imageName struct {
	Name []string `json:"name"`
}

type response struct {
	ErrorCode int `json:"error_code"`
	Result    struct {
		Stok  string `json:"stok"`
		Image struct {
			Snapshot string `json:"snapshot"`
		} `json:"image"`
	} `json:"result"`
}

// Login authenticates against the device and caches the session token.
func (c *Client) Login(ctx context.Context) error {
	req := request{
		Method: "login",
		Params: loginParams{
			Hashed:   true,
			Username: base64.StdEncoding.EncodeToString([]byte(c.username)),
			Password: hashPassword(c.password),
		},
	}

	body, _, err := c.post(ctx, "0", req, loginTimeout)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("login: %w: %w", ErrBadResponse, err)
	}
	if resp.ErrorCode != 0 {
		return fmt.Errorf("%w: error_code %d", ErrAuthRejected, resp.ErrorCode)
	}
	if resp.Result.Stok == "" {
		return fmt.Errorf("login: %w: missing stok", ErrBadResponse)
	}

	c.token = resp.Result.Stok
	return nil
}

// Snapshot requests a still image and returns its raw encoded bytes.
// The device answers either with the image directly, or with a JSON
// envelope carrying the image as base64.
func (c *Client) Snapshot(ctx context.Context) ([]byte, error) {
	if c.token == "" {
		return nil, ErrNoToken
	}

	req := request{
		Method: "get",
		Params: snapshotParams{Image: imageName{Name: []string{"snapshot"}}},
	}

	body, contentType, err := c.post(ctx, c.token, req, snapshotTimeout)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	switch {
	case strings.HasPrefix(contentType, "image/"):
		// The body is the encoded image itself.
		return body, nil

	case strings.HasPrefix(contentType, "application/json"):
		var resp response
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("snapshot: %w: %w", ErrBadResponse, err)
		}
		if resp.ErrorCode != 0 {
			return nil, fmt.Errorf("snapshot: %w: error_code %d", ErrBadResponse, resp.ErrorCode)
		}
		if resp.Result.Image.Snapshot == "" {
			return nil, fmt.Errorf("snapshot: %w: missing image payload", ErrBadResponse)
		}
		data, err := base64.StdEncoding.DecodeString(resp.Result.Image.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w: bad base64 payload: %w", ErrBadResponse, err)
		}
		return data, nil

	default:
		return nil, fmt.Errorf("snapshot: %w: content type %q", ErrBadResponse, contentType)
	}
}

// post sends one control request and returns the response body and its
// content type. Non-200 statuses are errors.
func (c *Client) post(ctx context.Context, token string, payload request, timeout time.Duration) ([]byte, string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := fmt.Sprintf("%s/stok=%s/ds", c.baseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}

	return body, strings.ToLower(resp.Header.Get("Content-Type")), nil
}

// hashPassword produces the wire form of the login password:
// base64 of the lowercase hex MD5 digest.
func hashPassword(password string) string {
	sum := md5.Sum([]byte(password))
	return base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(sum[:])))
}
