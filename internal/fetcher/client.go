// Package fetcher drives the Fetcher crawl loop: it queries the
// wallhaven search API across categories/terms/rounds, extracts
// candidates, and hands new ones to the MetadataCache/StoreGateway/
// WriteBudget trio (SPEC_FULL.md 4.7).
package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/publicsuffix"

	"github.com/nsinhame/wallhaven-engine/internal/types"
)

// SearchItem is one entry of the search API's data array.
type SearchItem struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Path   string `json:"path"`
	Purity string `json:"purity"`
	Tags   []struct {
		Name string `json:"name"`
	} `json:"tags"`
}

// SearchMeta carries the page-size and total-result fields the crawl
// loop uses to compute subsequent start pages.
type SearchMeta struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// SearchResponse is the full decoded search API payload.
type SearchResponse struct {
	Data []SearchItem `json:"data"`
	Meta SearchMeta   `json:"meta"`
}

// Client is the wallhaven search API HTTP client. Its transport tuning,
// decompression, and retryability classification are adapted from the
// teacher's internal/fetcher/http.go; the proxy rotation, user-agent
// rotation, and stealth headers that file carries for anti-detection
// scraping have no role here — this client calls an authenticated,
// published API with a key, not a site that resists automation.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewClient builds a Client against baseURL (e.g. https://wallhaven.cc).
func NewClient(baseURL, apiKey string) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{},
		DisableCompression:  true, // decompression handled explicitly below, brotli included
	}

	client := &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   10 * time.Second, // SPEC_FULL.md 5: "10 s for the source API"
	}

	return &Client{http: client, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}, nil
}

// Search issues one page of the fixed search query (SPEC_FULL.md 4.7
// steps 3-4: sanitized term + exclusions, categories=110, purity=110,
// ratios=portrait, sorting=views desc).
func (c *Client) Search(ctx context.Context, query string, page int) (*SearchResponse, error) {
	u := fmt.Sprintf("%s/api/v1/search?q=%s&categories=110&purity=110&ratios=portrait&sorting=views&order=desc&page=%d&apikey=%s",
		c.baseURL, urlQueryEscape(query), page, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &types.TransientNetworkError{URL: u, Err: err, Retryable: false}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &types.TransientNetworkError{URL: u, Err: err, Retryable: isRetryableError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("search %s: %w", u, types.ErrAuthFailed)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &types.TransientNetworkError{URL: u, StatusCode: resp.StatusCode, Err: fmt.Errorf("rate limited"), Retryable: true, RetryAfter: retryAfter}
	}
	if resp.StatusCode >= 500 {
		return nil, &types.TransientNetworkError{URL: u, StatusCode: resp.StatusCode, Err: fmt.Errorf("server error"), Retryable: true}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &types.TransientNetworkError{URL: u, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status"), Retryable: false}
	}

	reader, err := decompressReader(resp, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decompress search response: %w", err)
	}
	body, err := io.ReadAll(io.LimitReader(reader, 8<<20))
	if err != nil {
		return nil, &types.TransientNetworkError{URL: u, Err: err, Retryable: true}
	}

	var parsed SearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("search %s: malformed response: %w", u, err)
	}
	if parsed.Data == nil {
		return nil, fmt.Errorf("search %s: missing data array", u)
	}

	return &parsed, nil
}

func urlQueryEscape(s string) string {
	r := strings.NewReplacer(" ", "+")
	return r.Replace(strings.TrimSpace(s))
}

func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) || errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
	}
	return false
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 5 * time.Second
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if secs > 120 {
			secs = 120
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			return time.Second
		}
		if d > 2*time.Minute {
			return 2 * time.Minute
		}
		return d
	}
	return 5 * time.Second
}
