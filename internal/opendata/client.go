// Package opendata retrieves complete resources from a CKAN datastore_search
// endpoint, following the server's continuation links page by page.
package opendata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/metrics"
)

const (
	DefaultHost       = "https://data.boston.gov"
	DefaultSearchPath = "/api/3/action/datastore_search"
	DefaultPageLimit  = 32000
)

// Doer sends HTTP requests. *http.Client satisfies it; tests inject fakes.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Cache stores fetched resources keyed by resource id. Implementations own
// the expiry policy: Get reports ok only for entries younger than their TTL.
type Cache interface {
	Get(ctx context.Context, resourceID string) (*Resource, bool, error)
	Set(ctx context.Context, res *Resource) error
	Delete(ctx context.Context, resourceID string) error
}

// Config configures a Client.
type Config struct {
	Host       string
	SearchPath string
	PageLimit  int
	Timeout    time.Duration
}

func (c *Config) defaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	c.Host = strings.TrimRight(c.Host, "/")
	if c.SearchPath == "" {
		c.SearchPath = DefaultSearchPath
	}
	if c.PageLimit <= 0 {
		c.PageLimit = DefaultPageLimit
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
}

// Option customises a Client.
type Option func(*Client)

func WithDoer(d Doer) Option {
	return func(c *Client) { c.http = d }
}

func WithCache(cache Cache) Option {
	return func(c *Client) { c.cache = cache }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m *metrics.Pipeline) Option {
	return func(c *Client) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client fetches datastore resources.
type Client struct {
	config  Config
	http    Doer
	cache   Cache
	logger  *slog.Logger
	metrics *metrics.Pipeline
	now     func() time.Time
}

// NewClient creates a Client. Without WithDoer it uses an *http.Client whose
// timeout bounds each page request.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.defaults()
	c := &Client{
		config: cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.Timeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// FetchResource returns the complete resource, from the cache when a fresh
// entry exists.
func (c *Client) FetchResource(ctx context.Context, resourceID string) (*Resource, error) {
	if c.cache != nil {
		res, ok, err := c.cache.Get(ctx, resourceID)
		switch {
		case err != nil:
			c.logger.Warn("cache lookup failed, fetching", "resource_id", resourceID, "error", err)
		case ok:
			c.metrics.CacheHit()
			return res, nil
		}
		c.metrics.CacheMiss()
	}

	return c.Refresh(ctx, resourceID)
}

// Refresh fetches the resource from the API regardless of the cache and
// replaces the cache entry.
func (c *Client) Refresh(ctx context.Context, resourceID string) (*Resource, error) {
	res, err := c.fetch(ctx, resourceID)
	if err != nil {
		c.metrics.FetchFailed(ErrorKind(err))
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, res); err != nil {
			c.logger.Warn("failed to cache resource", "resource_id", resourceID, "error", err)
		}
	}
	return res, nil
}

func (c *Client) fetch(ctx context.Context, resourceID string) (*Resource, error) {
	if resourceID == "" {
		return nil, fmt.Errorf("resource id is required")
	}
	start := c.now()

	q := url.Values{}
	q.Set("resource_id", resourceID)
	q.Set("limit", strconv.Itoa(c.config.PageLimit))
	pageURL := c.config.Host + c.config.SearchPath + "?" + q.Encode()

	first, err := c.getPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if first.Fields == nil {
		return nil, &SchemaError{URL: pageURL, Reason: "result.fields is missing"}
	}

	res := &Resource{
		ResourceID: resourceID,
		Total:      *first.Total,
		Fields:     make([]string, 0, len(*first.Fields)),
		Records:    append([]Record(nil), *first.Records...),
		Pages:      1,
	}
	for _, f := range *first.Fields {
		res.Fields = append(res.Fields, f.ID)
	}
	c.metrics.PageFetched(len(*first.Records))

	next := first.Links.Next
	for len(res.Records) < res.Total {
		if next == "" {
			return nil, &SchemaError{URL: pageURL, Reason: fmt.Sprintf(
				"no continuation link after %d of %d records", len(res.Records), res.Total)}
		}
		pageURL, err = c.resolve(next)
		if err != nil {
			return nil, &SchemaError{URL: next, Reason: fmt.Sprintf("invalid continuation link: %v", err)}
		}

		page, err := c.getPage(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		if len(*page.Records) == 0 {
			return nil, &SchemaError{URL: pageURL, Reason: fmt.Sprintf(
				"empty page after %d of %d records", len(res.Records), res.Total)}
		}

		res.Records = append(res.Records, *page.Records...)
		res.Pages++
		c.metrics.PageFetched(len(*page.Records))
		next = page.Links.Next
	}

	if err := orderByID(res.Records); err != nil {
		return nil, &SchemaError{URL: pageURL, Reason: err.Error()}
	}

	res.FetchedAt = c.now()
	elapsed := res.FetchedAt.Sub(start)
	c.metrics.FetchCompleted(elapsed)
	c.logger.Info("fetched resource",
		"resource_id", resourceID,
		"records", len(res.Records),
		"pages", res.Pages,
		"elapsed", elapsed)

	return res, nil
}

// resolve turns a continuation link into an absolute URL on the configured
// host. CKAN emits host-relative paths.
func (c *Client) resolve(next string) (string, error) {
	u, err := url.Parse(next)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if !strings.HasPrefix(next, "/") {
		next = "/" + next
	}
	return c.config.Host + next, nil
}

func (c *Client) getPage(ctx context.Context, pageURL string) (*searchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	return decodePage(pageURL, body)
}

func decodePage(pageURL string, body []byte) (*searchResult, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var env searchEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, &SchemaError{URL: pageURL, Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if env.Success != nil && !*env.Success {
		reason := "api reported success=false"
		if env.Error != nil && env.Error.Message != "" {
			reason = fmt.Sprintf("api error: %s", env.Error.Message)
		}
		return nil, &SchemaError{URL: pageURL, Reason: reason}
	}
	if env.Result == nil {
		return nil, &SchemaError{URL: pageURL, Reason: "result is missing"}
	}
	if env.Result.Total == nil {
		return nil, &SchemaError{URL: pageURL, Reason: "result.total is missing"}
	}
	if *env.Result.Total < 0 {
		return nil, &SchemaError{URL: pageURL, Reason: fmt.Sprintf("negative result.total %d", *env.Result.Total)}
	}
	if env.Result.Records == nil {
		return nil, &SchemaError{URL: pageURL, Reason: "result.records is missing"}
	}
	return env.Result, nil
}

// orderByID sorts records by _id and rejects duplicates or missing ids.
func orderByID(records []Record) error {
	ids := make(map[int64]struct{}, len(records))
	for i, r := range records {
		id, ok := r.ID()
		if !ok {
			return fmt.Errorf("record at position %d has no integer %s", i, IDField)
		}
		if _, dup := ids[id]; dup {
			return fmt.Errorf("duplicate %s %d across pages", IDField, id)
		}
		ids[id] = struct{}{}
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, _ := records[i].ID()
		b, _ := records[j].ID()
		return a < b
	})
	return nil
}
