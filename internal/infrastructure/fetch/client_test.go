package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchDirect(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != userAgent {
			t.Errorf("user agent = %q", ua)
		}
		_, _ = w.Write([]byte("feed body"))
	}))
	defer srv.Close()

	c := New("", nil, time.Second, nil)
	data, err := c.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "feed body" {
		t.Fatalf("body = %q", data)
	}
}

func TestFetchHTTPErrorSurfaces(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New("", nil, time.Second, nil)
	if _, err := c.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 403")
	}
}

func TestFetchRoutesBlockedDomainViaProxy(t *testing.T) {
	t.Parallel()

	var proxiedFor string
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxiedFor = r.URL.Query().Get("url")
		_, _ = w.Write([]byte("proxied body"))
	}))
	defer proxy.Close()

	c := New(proxy.URL, []string{"blocked.example.com"}, time.Second, nil)
	data, err := c.Fetch(context.Background(), "https://blocked.example.com/article")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "proxied body" {
		t.Fatalf("body = %q", data)
	}
	if proxiedFor != "https://blocked.example.com/article" {
		t.Fatalf("proxy asked for %q", proxiedFor)
	}
}

func TestFetchSubdomainOfBlockedDomain(t *testing.T) {
	t.Parallel()

	c := New("https://proxy.example.com/fetch", []string{"blocked.example.com"}, time.Second, nil)
	if !c.routeViaProxy("https://www.blocked.example.com/post") {
		t.Fatal("subdomain of a blocked domain must route via proxy")
	}
	if c.routeViaProxy("https://open.example.com/post") {
		t.Fatal("unblocked domain must go direct")
	}
}
