// internal/birdnet/client.go
//
// Client for the upstream Birdle API.
// Responsibilities:
//   - Fetch the daily puzzle and practice puzzles by id.
//   - Fetch the list of valid bird names.
//   - Download frame images and check they are images.
//   - Upload new subject submissions (multipart form).
//
// Every failure is returned as *Error with a Kind. Nothing is retried here.

package birdnet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/birdle/internal/metrics"
	"github.com/robalobadob/birdle/internal/subject"
)

const (
	// DefaultBaseURL is the upstream API endpoint.
	DefaultBaseURL = "https://easterbilby.net/birdle/api.php?"

	defaultTimeout = 30 * time.Second
	maxJSONBytes   = 1 << 20
	maxImageBytes  = 10 << 20
	resultError    = "error"
	resultSuccess  = "success"
)

// Image is a downloaded frame.
type Image struct {
	Data        []byte
	ContentType string
}

// Client talks to the upstream API. Safe for concurrent use.
type Client struct {
	base       string
	imageBase  string
	hc         *http.Client
	imageLimit int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

// WithImageBase sets where frame images are served from.
func WithImageBase(base string) Option { return func(c *Client) { c.imageBase = base } }

// New constructs a client for baseURL (DefaultBaseURL when empty).
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		base:      baseURL,
		imageBase:  subject.DefaultImageBase,
		hc:         &http.Client{Timeout: defaultTimeout},
		imageLimit: maxImageBytes,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FetchDaily returns today's puzzle subject.
func (c *Client) FetchDaily(ctx context.Context) (subject.Subject, error) {
	return c.fetchSubject(ctx, "fetch daily puzzle", nil)
}

// FetchPuzzle returns the practice puzzle with the given id.
func (c *Client) FetchPuzzle(ctx context.Context, id int) (subject.Subject, error) {
	return c.fetchSubject(ctx, "fetch puzzle", url.Values{
		"action": {"download"},
		"id":     {strconv.Itoa(id)},
	})
}

// namesResponse is the action=list payload.
type namesResponse struct {
	Date  string   `json:"date"`
	Birds []string `json:"birds"`
}

// resultResponse is the {"result": "..."} envelope used for errors and uploads.
type resultResponse struct {
	Result string `json:"result"`
}

// FetchNames returns the list of valid bird names.
func (c *Client) FetchNames(ctx context.Context) ([]string, error) {
	const op = "fetch names"
	body, err := c.get(ctx, op, c.endpoint(url.Values{"action": {"list"}}), maxJSONBytes, KindDecode)
	if err != nil {
		return nil, err
	}
	var resp namesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, c.fail(op, KindDecode, err)
	}
	return resp.Birds, nil
}

// FetchImage downloads rawURL and checks the body decodes as an image.
func (c *Client) FetchImage(ctx context.Context, rawURL string) (Image, error) {
	const op = "fetch image"
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return Image{}, c.fail(op, KindInvalidURL, err)
	}
	body, err := c.get(ctx, op, u.String(), c.imageLimit, KindInvalidImage)
	if err != nil {
		return Image{}, err
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(body)); err != nil {
		return Image{}, c.fail(op, KindInvalidImage, err)
	}
	return Image{Data: body, ContentType: http.DetectContentType(body)}, nil
}

// FrameURLs returns the frame URLs for s using the client's image base.
func (c *Client) FrameURLs(s subject.Subject) []string {
	s.ImageBase = c.imageBase
	return s.ImageURLs()
}

func (c *Client) fetchSubject(ctx context.Context, op string, q url.Values) (subject.Subject, error) {
	body, err := c.get(ctx, op, c.endpoint(q), maxJSONBytes, KindDecode)
	if err != nil {
		return subject.Subject{}, err
	}
	var envelope resultResponse
	if json.Unmarshal(body, &envelope) == nil && envelope.Result == resultError {
		return subject.Subject{}, c.fail(op, KindServer, errors.New("upstream returned result=error"))
	}
	var s subject.Subject
	if err := json.Unmarshal(body, &s); err != nil {
		return subject.Subject{}, c.fail(op, KindDecode, err)
	}
	if err := s.Validate(); err != nil {
		return subject.Subject{}, c.fail(op, KindDecode, err)
	}
	lic, err := subject.ParseLicense(s.License)
	if err != nil {
		return subject.Subject{}, c.fail(op, KindDecode, err)
	}
	s.License = string(lic)
	s.ImageBase = c.imageBase
	return s, nil
}

// endpoint appends q to the base URL. An unparsable base yields "".
func (c *Client) endpoint(q url.Values) string {
	u, err := url.Parse(c.base)
	if err != nil || u.Host == "" {
		return ""
	}
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) get(ctx context.Context, op, target string, limit int64, tooLarge Kind) ([]byte, error) {
	if target == "" {
		return nil, c.fail(op, KindInvalidURL, fmt.Errorf("bad base url %q", c.base))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, c.fail(op, KindInvalidURL, err)
	}
	return c.do(op, req, limit, tooLarge)
}

// do sends req and reads at most limit bytes of a 2xx body. A longer body
// fails with kind tooLarge rather than being truncated.
func (c *Client) do(op string, req *http.Request, limit int64, tooLarge Kind) ([]byte, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, c.fail(op, KindNoData, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.fail(op, KindServer, fmt.Errorf("status %d", resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, c.fail(op, KindNoData, err)
	}
	if int64(len(body)) > limit {
		return nil, c.fail(op, tooLarge, fmt.Errorf("body exceeds %d bytes", limit))
	}
	if len(body) == 0 {
		return nil, c.fail(op, KindNoData, nil)
	}
	return body, nil
}

func (c *Client) fail(op string, kind Kind, cause error) error {
	metrics.UpstreamErrors.WithLabelValues(string(kind)).Inc()
	log.Warn().Err(cause).Str("op", op).Str("kind", string(kind)).Msg("upstream request failed")
	return &Error{Kind: kind, Op: op, Err: cause}
}
