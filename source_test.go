package cdn_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"testing"

	"github.com/ikuncc183/cdn"
)

func TestParse(t *testing.T) {
	body := strings.Join([]string{
		"1.1.1.1",
		"",
		"   ",
		"# whole-line comment",
		"2.2.2.2 # trailing comment",
		"3.3.3.3#CT",
		"not-an-ip",
		"  4.4.4.4  ",
		"",
	}, "\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, body)
	}))
	defer srv.Close()

	ws, err := cdn.WebSource(srv.URL)
	if err != nil {
		t.Fatalf("WebSource failed: %s", err)
	}
	addrs, err := ws.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %s", err)
	}

	want := []netip.Addr{
		netip.MustParseAddr("1.1.1.1"),
		netip.MustParseAddr("2.2.2.2"),
		netip.MustParseAddr("3.3.3.3"),
		netip.MustParseAddr("4.4.4.4"),
	}
	if len(addrs) != len(want) {
		t.Fatalf("Expected %d addresses; got %+v", len(want), addrs)
	}
	for i := range want {
		if addrs[i] != want[i] {
			t.Fatalf("Expected %q at position %d; got %q", want[i], i, addrs[i])
		}
	}
}

func TestMaxAddrs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "1.1.1.1\n2.2.2.2\n3.3.3.3\n4.4.4.4\n")
	}))
	defer srv.Close()

	ws, err := cdn.WebSource(srv.URL, cdn.MaxAddrs(2))
	if err != nil {
		t.Fatalf("WebSource failed: %s", err)
	}
	addrs, err := ws.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %s", err)
	}
	if len(addrs) != 2 {
		t.Fatalf("Expected 2 addresses; got %+v", addrs)
	}
	if expected, got := netip.MustParseAddr("1.1.1.1"), addrs[0]; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
	if expected, got := netip.MustParseAddr("2.2.2.2"), addrs[1]; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
}

func TestPickLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "1.1.1.1\n2.2.2.2\n3.3.3.3\n")
	}))
	defer srv.Close()

	ws, err := cdn.WebSource(srv.URL, cdn.PickLine(1, 3))
	if err != nil {
		t.Fatalf("WebSource failed: %s", err)
	}
	addrs, err := ws.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %s", err)
	}
	if len(addrs) != 1 {
		t.Fatalf("Expected exactly one address; got %+v", addrs)
	}
	if expected, got := netip.MustParseAddr("2.2.2.2"), addrs[0]; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
}

func TestPickLineTooShort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "1.1.1.1\n2.2.2.2\n")
	}))
	defer srv.Close()

	ws, err := cdn.WebSource(srv.URL, cdn.PickLine(1, 3))
	if err != nil {
		t.Fatalf("WebSource failed: %s", err)
	}
	addrs, err := ws.Fetch(context.Background())
	if err == nil {
		t.Fatalf("Expected error for a too-short list; got %+v", addrs)
	}
}

func TestFetchRetryCount(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping retry test with fixed delays")
	}
	var mu sync.Mutex
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ws, err := cdn.WebSource(srv.URL)
	if err != nil {
		t.Fatalf("WebSource failed: %s", err)
	}
	if _, err := ws.Fetch(context.Background()); err == nil {
		t.Fatalf("Expected an error when every attempt fails; got err == nil")
	}
	mu.Lock()
	h := hits
	mu.Unlock()
	if h != 3 {
		t.Fatalf("Expected 3 attempts; got %d", h)
	}
}

func TestFetchNotFound(t *testing.T) {
	var mu sync.Mutex
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		http.NotFound(w, r)
	}))
	defer srv.Close()

	ws, err := cdn.WebSource(srv.URL)
	if err != nil {
		t.Fatalf("WebSource failed: %s", err)
	}
	if _, err := ws.Fetch(context.Background()); err == nil {
		t.Fatalf("Expected an error for a 404 response; got err == nil")
	}
	mu.Lock()
	h := hits
	mu.Unlock()
	// 404 is a definitive answer, not a transport failure; no retries
	if h != 1 {
		t.Fatalf("Expected 1 attempt; got %d", h)
	}
}

func TestFromList(t *testing.T) {
	s, err := cdn.FromList("1.1.1.1", "2606:4700::1111")
	if err != nil {
		t.Fatalf("FromList failed: %s", err)
	}
	addrs, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %s", err)
	}
	if len(addrs) != 2 {
		t.Fatalf("Expected 2 addresses; got %+v", addrs)
	}
	if _, err := cdn.FromList("1.1.1.1", "not-an-ip"); err == nil {
		t.Fatalf("Expected an error for an invalid address; got err == nil")
	}
}
