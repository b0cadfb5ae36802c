package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/semaphore"

	"pkghub/pkg/logging"
	"pkghub/pkg/problems"
)

const (
	defaultPerHostConcurrency = 32
	defaultTimeout            = 30 * time.Second
	maxTimeout                = 120 * time.Second
	defaultMaxBodyBytes       = 50 << 20 // 50 MB
	defaultMaxAttempts        = 3
	defaultQueueDepth         = 128
)

// ErrOverloaded is returned when the per-host waiting set is full. Callers
// surface it as service-unavailable.
var ErrOverloaded = errors.New("upstream fetch queue overflow")

// UpstreamStatusError is returned when the upstream answered with a non-2xx
// status that retries could not absorb.
type UpstreamStatusError struct {
	URL    string
	Status int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.URL, e.Status)
}

// IsUpstreamNotFound reports whether err is an upstream 404.
func IsUpstreamNotFound(err error) bool {
	var se *UpstreamStatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// Config is the typed configuration of the upstream fetcher.
type Config struct {
	// PerHostConcurrency caps in-flight requests per upstream host.
	PerHostConcurrency int

	// QueueDepth bounds the waiting set per host; overflow fails fast with
	// ErrOverloaded.
	QueueDepth int

	// Timeout applies per request attempt. Values above the 120s ceiling are
	// clamped.
	Timeout time.Duration

	// MaxAttempts bounds retries on connection errors and 5xx responses.
	MaxAttempts int

	// MaxBodyBytes caps response bodies to protect memory.
	MaxBodyBytes int64

	// UserAgent is sent on every request.
	UserAgent string
}

func (c Config) withDefaults() Config {
	if c.PerHostConcurrency <= 0 {
		c.PerHostConcurrency = defaultPerHostConcurrency
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = defaultQueueDepth
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Timeout > maxTimeout {
		c.Timeout = maxTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.UserAgent == "" {
		c.UserAgent = "pkghub"
	}
	return c
}

// Fetcher is a shared upstream HTTP client with connection reuse, per-host
// concurrency caps, bounded retries, and response size caps. One Fetcher is
// created per adapter process and threaded through constructors.
type Fetcher struct {
	config Config
	client *http.Client

	mu    sync.Mutex
	hosts map[string]*hostGate
}

type hostGate struct {
	sem     *semaphore.Weighted
	mu      sync.Mutex
	waiting int
}

// New creates a Fetcher with the given configuration.
func New(config Config) *Fetcher {
	config = config.withDefaults()
	transport := &http.Transport{
		MaxIdleConns:        config.PerHostConcurrency * 4,
		MaxIdleConnsPerHost: config.PerHostConcurrency,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Fetcher{
		config: config,
		client: &http.Client{Transport: transport},
		hosts:  map[string]*hostGate{},
	}
}

// Request describes one upstream call.
type Request struct {
	URL string

	// Header values copied onto the request; used for Accept and for the
	// optional Authorization passthrough.
	Header http.Header
}

// GetJSON fetches the URL and decodes the JSON body into out.
func (f *Fetcher) GetJSON(ctx context.Context, req Request, out interface{}) error {
	body, err := f.Get(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s: %w", req.URL, err)
	}
	return nil
}

// Get fetches the URL and returns the body, retrying connection errors and
// 5xx responses with jittered exponential backoff. 4xx responses are never
// retried.
func (f *Fetcher) Get(ctx context.Context, req Request) ([]byte, error) {
	host, err := hostOf(req.URL)
	if err != nil {
		return nil, err
	}
	gate := f.gate(host)
	if err := gate.acquire(ctx, f.config.QueueDepth); err != nil {
		return nil, err
	}
	defer gate.release()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.RandomizationFactor = 1 // full jitter
	bo.MaxInterval = 5 * time.Second

	return backoff.Retry(ctx, func() ([]byte, error) {
		body, err := f.attempt(ctx, req)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return body, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(f.config.MaxAttempts)))
}

func (f *Fetcher) attempt(ctx context.Context, req Request) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", f.config.UserAgent)
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		io.CopyN(io.Discard, resp.Body, 4096)
		return nil, &UpstreamStatusError{URL: req.URL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.config.MaxBodyBytes {
		return nil, fmt.Errorf("response from %s exceeds %d byte cap", req.URL, f.config.MaxBodyBytes)
	}
	return body, nil
}

// retryable reports whether the failure class warrants another attempt:
// connection errors and upstream 5xx, never 4xx.
func retryable(err error) bool {
	var se *UpstreamStatusError
	if errors.As(err, &se) {
		return se.Status >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return !errors.Is(ue.Err, context.Canceled)
	}
	return false
}

func (f *Fetcher) gate(host string) *hostGate {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.hosts[host]
	if !ok {
		g = &hostGate{sem: semaphore.NewWeighted(int64(f.config.PerHostConcurrency))}
		f.hosts[host] = g
	}
	return g
}

func (g *hostGate) acquire(ctx context.Context, queueDepth int) error {
	g.mu.Lock()
	if g.waiting >= queueDepth {
		g.mu.Unlock()
		logging.Warn("Fetcher", "per-host queue overflow (%d waiting)", queueDepth)
		return ErrOverloaded
	}
	g.waiting++
	g.mu.Unlock()

	err := g.sem.Acquire(ctx, 1)

	g.mu.Lock()
	g.waiting--
	g.mu.Unlock()
	return err
}

func (g *hostGate) release() {
	g.sem.Release(1)
}

func hostOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", problems.BadGateway("malformed upstream URL %q", raw).WithCause(err)
	}
	return u.Host, nil
}

// Problem translates a fetch error into the adapter error taxonomy.
func Problem(err error) *problems.Problem {
	if p, ok := problems.As(err); ok {
		return p
	}
	var se *UpstreamStatusError
	switch {
	case errors.Is(err, ErrOverloaded):
		return problems.ServiceUnavailable("upstream fetch queue is full").WithCause(err)
	case errors.As(err, &se) && se.Status == http.StatusNotFound:
		return problems.NotFound("upstream entity not found").WithCause(err)
	case errors.As(err, &se) && se.Status == http.StatusTooManyRequests:
		return problems.TooManyRequests("upstream rate limit exceeded").WithCause(err)
	case errors.As(err, &se):
		return problems.BadGateway("upstream returned status %d", se.Status).WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return problems.ServiceUnavailable("upstream timed out").WithCause(err)
	default:
		return problems.ServiceUnavailable("upstream unreachable").WithCause(err)
	}
}
