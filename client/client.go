// Package client is a Go client for the market daemon's HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cosmossdk.io/math"
	"github.com/cenkalti/backoff/v4"

	"github.com/paw-chain/pawmarket/api"
	ledgertypes "github.com/paw-chain/pawmarket/x/ledger/types"
	"github.com/paw-chain/pawmarket/x/market/types"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
)

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Response   api.ErrorResponse
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("market api: %d %s", e.StatusCode, e.Response.Error)
	if e.Response.Code != "" {
		msg += " (" + e.Response.Code + ")"
	}
	if e.Response.Details != "" {
		msg += ": " + e.Response.Details
	}
	return msg
}

// Temporary reports whether the call was rejected by a rate limit or a
// pause and may succeed later. Rejected calls have no effect, so repeating
// them is safe.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusServiceUnavailable
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client calls the market API as one address.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

// Option customizes a Client.
type Option func(*Client)

// WithToken authenticates requests with a bearer token issued by the daemon.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries bounds retries of temporarily rejected calls. Zero disables
// retrying.
func WithMaxRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

// New returns a client for the daemon at baseURL, e.g. http://localhost:5000.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// do sends one request and decodes a JSON response into out. Temporary
// rejections are retried with exponential backoff.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return err
		}
	}

	u := *c.baseURL
	u.Path += path
	u.RawQuery = query.Encode()

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			apiErr := &APIError{StatusCode: resp.StatusCode}
			bz, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
			if json.Unmarshal(bz, &apiErr.Response) != nil || apiErr.Response.Error == "" {
				apiErr.Response.Error = http.StatusText(resp.StatusCode)
			}
			if apiErr.Temporary() {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	return backoff.Retry(op, policy)
}

func jobPath(id uint64, suffix string) string {
	return "/api/market/jobs/" + strconv.FormatUint(id, 10) + suffix
}

// ==================== Market ====================

// PostJob posts a job and returns its id.
func (c *Client) PostJob(ctx context.Context, req api.PostJobRequest) (uint64, error) {
	var resp api.PostJobResponse
	if err := c.do(ctx, http.MethodPost, "/api/market/jobs", nil, req, &resp); err != nil {
		return 0, err
	}
	return resp.JobID, nil
}

// GetJob returns one job.
func (c *Client) GetJob(ctx context.Context, id uint64) (types.Job, error) {
	var job types.Job
	err := c.do(ctx, http.MethodGet, jobPath(id, ""), nil, nil, &job)
	return job, err
}

// ListJobs returns one page of jobs, optionally filtered by status. Pass the
// returned next key back to continue; an empty key means the last page.
func (c *Client) ListJobs(ctx context.Context, status string, limit uint64, key []byte) ([]types.Job, []byte, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.FormatUint(limit, 10))
	}
	if len(key) > 0 {
		q.Set("key", base64.StdEncoding.EncodeToString(key))
	}
	var resp api.JobListResponse
	if err := c.do(ctx, http.MethodGet, "/api/market/jobs", q, nil, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Jobs, resp.Pagination.NextKey, nil
}

// ClaimJob claims a posted job for the calling provider.
func (c *Client) ClaimJob(ctx context.Context, id uint64) error {
	return c.do(ctx, http.MethodPost, jobPath(id, "/claim"), nil, struct{}{}, nil)
}

// SubmitProof submits the proof for a claimed job.
func (c *Client) SubmitProof(ctx context.Context, id uint64, req api.SubmitProofRequest) error {
	return c.do(ctx, http.MethodPost, jobPath(id, "/proof"), nil, req, nil)
}

// GetProof returns the current proof record of a job.
func (c *Client) GetProof(ctx context.Context, id uint64) (types.ProofRecord, error) {
	var proof types.ProofRecord
	err := c.do(ctx, http.MethodGet, jobPath(id, "/proof"), nil, nil, &proof)
	return proof, err
}

// VerifyProof asks the market to verify a submitted proof. A rejected proof
// is reported as false, not as an error.
func (c *Client) VerifyProof(ctx context.Context, id uint64) (bool, error) {
	var resp api.VerifyProofResponse
	if err := c.do(ctx, http.MethodPost, jobPath(id, "/verify"), nil, struct{}{}, &resp); err != nil {
		return false, err
	}
	return resp.Valid, nil
}

// MarkJobFailed reports that a claimed job could not be completed.
func (c *Client) MarkJobFailed(ctx context.Context, id uint64, reason string) error {
	return c.do(ctx, http.MethodPost, jobPath(id, "/fail"), nil, api.ReasonRequest{Reason: reason}, nil)
}

// SettleJob settles a completed job whose challenge window has elapsed.
func (c *Client) SettleJob(ctx context.Context, id uint64) error {
	return c.do(ctx, http.MethodPost, jobPath(id, "/settle"), nil, struct{}{}, nil)
}

// RateProvider rates the provider of a completed job.
func (c *Client) RateProvider(ctx context.Context, id uint64, stars uint32, feedback string) error {
	return c.do(ctx, http.MethodPost, jobPath(id, "/rating"), nil, api.RateProviderRequest{Stars: stars, Feedback: feedback}, nil)
}

// CircuitStatus returns the circuit breaker state.
func (c *Client) CircuitStatus(ctx context.Context) (types.CircuitStatus, error) {
	var status types.CircuitStatus
	err := c.do(ctx, http.MethodGet, "/api/market/circuit", nil, nil, &status)
	return status, err
}

// ==================== Ledger ====================

// Balance returns the free balance of an address.
func (c *Client) Balance(ctx context.Context, address string) (math.Int, error) {
	var resp api.BalanceResponse
	if err := c.do(ctx, http.MethodGet, "/api/ledger/balances/"+url.PathEscape(address), nil, nil, &resp); err != nil {
		return math.Int{}, err
	}
	return resp.Balance, nil
}

// RegisterProvider registers the calling address as a provider.
func (c *Client) RegisterProvider(ctx context.Context, req api.RegisterProviderRequest) error {
	return c.do(ctx, http.MethodPost, "/api/ledger/providers", nil, req, nil)
}

// Provider returns a provider record with its reputation.
func (c *Client) Provider(ctx context.Context, address string) (api.ProviderResponse, error) {
	var resp api.ProviderResponse
	err := c.do(ctx, http.MethodGet, "/api/ledger/providers/"+url.PathEscape(address), nil, nil, &resp)
	return resp, err
}

// Rating returns a stored rating.
func (c *Client) Rating(ctx context.Context, id uint64) (ledgertypes.Rating, error) {
	var rating ledgertypes.Rating
	err := c.do(ctx, http.MethodGet, "/api/ledger/ratings/"+strconv.FormatUint(id, 10), nil, nil, &rating)
	return rating, err
}
