package cdn

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	fetchAttempts  = 3
	fetchWait      = 2 * time.Second
	requestTimeout = 10 * time.Second
)

// WebSource constructs a Source which fetches candidate IPs from a
// plain-text list served over http.
//
// The body is read line by line:
// everything from the first '#' on is a comment and is dropped,
// surrounding whitespace is trimmed,
// and lines that end up empty are skipped.
// Each remaining line must be a valid IP address;
// entries that fail to parse are logged and skipped.
// Order is preserved.
//
// The request is attempted up to three times with a fixed delay between
// attempts, and each attempt times out after ten seconds.
func WebSource(sourceURL string, options ...sourceOption) (Source, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing URL: %w", err)
	}
	ws := &webSource{
		sourceURL: u,
		logger:    discard,
		pickIndex: -1,
	}
	for _, opt := range options {
		if err := opt(ws); err != nil {
			return nil, err
		}
	}
	return ws, nil
}

type sourceOption func(*webSource) error

// MaxAddrs caps the number of addresses returned by the source at n,
// keeping the first n in source order. Zero means no cap.
func MaxAddrs(n int) sourceOption {
	return func(ws *webSource) error {
		if n < 0 {
			return fmt.Errorf("max address count cannot be negative: %d", n)
		}
		ws.maxAddrs = n
		return nil
	}
}

// PickLine makes the source return only the entry at index,
// and fail unless the list contains at least minEntries entries.
// Some curated lists order entries by measured quality,
// so a fixed offset into a sufficiently long list selects a stable tier.
func PickLine(index int, minEntries int) sourceOption {
	return func(ws *webSource) error {
		if index < 0 {
			return fmt.Errorf("line index cannot be negative: %d", index)
		}
		if minEntries <= index {
			return fmt.Errorf("minimum entry count %d does not cover line index %d", minEntries, index)
		}
		ws.pickIndex = index
		ws.minEntries = minEntries
		return nil
	}
}

type webSource struct {
	httpClient *http.Client
	logger     *log.Logger
	sourceURL  *url.URL
	maxAddrs   int
	pickIndex  int
	minEntries int
}

// Fetch implements cdn.Source.
func (ws *webSource) Fetch(ctx context.Context) ([]netip.Addr, error) {
	body, err := ws.get(ctx)
	if err != nil {
		return nil, err
	}
	addrs := ws.parse(body)

	if ws.pickIndex >= 0 {
		if len(addrs) < ws.minEntries {
			return nil, fmt.Errorf("source listed %d addresses; need at least %d", len(addrs), ws.minEntries)
		}
		return []netip.Addr{addrs[ws.pickIndex]}, nil
	}

	if ws.maxAddrs > 0 && len(addrs) > ws.maxAddrs {
		addrs = addrs[:ws.maxAddrs]
	}
	return addrs, nil
}

func (ws *webSource) get(ctx context.Context) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, ws.sourceURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	rc := retryablehttp.NewClient()
	rc.RetryMax = fetchAttempts - 1
	rc.RetryWaitMin = fetchWait
	rc.RetryWaitMax = fetchWait
	rc.Logger = nil
	if ws.httpClient != nil {
		rc.HTTPClient = ws.httpClient
	} else {
		rc.HTTPClient = &http.Client{Timeout: requestTimeout}
	}

	resp, err := rc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("http request returned %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	return body, nil
}

func (ws *webSource) parse(body []byte) (addrs []netip.Addr) {
	for _, line := range strings.Split(string(body), "\n") {
		entry, _, _ := strings.Cut(line, "#")
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		a, err := netip.ParseAddr(entry)
		if err != nil {
			ws.logger.Printf("skipping unparseable source entry %q: %s", entry, err)
			continue
		}
		addrs = append(addrs, a)
	}
	return addrs
}
