package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestProbeTreatsAnyResponseAsReachable(t *testing.T) {
	var heads int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			atomic.AddInt32(&heads, 1)
		}
		switch r.URL.Path {
		case "/ok.png":
			w.WriteHeader(http.StatusOK)
		case "/forbidden.png":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := New(Options{Timeout: time.Second, AllowPrivate: true})
	urls := []string{srv.URL + "/ok.png", srv.URL + "/forbidden.png", srv.URL + "/missing.png"}
	got := p.Probe(context.Background(), urls)

	for _, u := range urls {
		if !got[u] {
			t.Fatalf("expected %s reachable", u)
		}
	}
	if n := atomic.LoadInt32(&heads); n != 3 {
		t.Fatalf("expected 3 HEAD requests, got %d", n)
	}
}

func TestProbeUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead := srv.URL + "/gone.png"
	srv.Close()

	p := New(Options{Timeout: 500 * time.Millisecond, AllowPrivate: true})
	got := p.Probe(context.Background(), []string{dead})
	if got[dead] {
		t.Fatalf("expected closed server to be unreachable")
	}
}

func TestProbeCachesResults(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	p := New(Options{Timeout: time.Second, CacheTTL: time.Minute, AllowPrivate: true})
	u := srv.URL + "/cat.png"
	for i := 0; i < 3; i++ {
		if !p.Probe(context.Background(), []string{u})[u] {
			t.Fatalf("expected reachable on attempt %d", i)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected a single request, got %d", n)
	}
}

func TestProbeDataURLSkipsNetwork(t *testing.T) {
	p := New(Options{})
	u := "data:image/png;base64,iVBORw0KGgo="
	if !p.Probe(context.Background(), []string{u})[u] {
		t.Fatalf("expected data url reachable")
	}
}

func TestProbeCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(Options{Timeout: time.Second, AllowPrivate: true})
	u := srv.URL + "/cat.png"
	if p.Probe(ctx, []string{u})[u] {
		t.Fatalf("expected cancelled probe to report unreachable")
	}
	if _, ok := p.cache.Get(u); ok {
		t.Fatalf("cancelled probe must not be cached")
	}
}

func TestHostLimiterSharesPerHost(t *testing.T) {
	l := NewHostLimiter(1, 1)
	if l.get("a.example") != l.get("a.example") {
		t.Fatalf("expected same limiter for same host")
	}
	if l.get("a.example") == l.get("b.example") {
		t.Fatalf("expected distinct limiters per host")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "https://a.example/1.png"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	if err := l.Wait(ctx, "https://a.example/2.png"); err == nil {
		t.Fatalf("expected second wait to exceed deadline at 1 rps")
	}
	if err := l.Wait(ctx, "https://b.example/1.png"); err != nil {
		t.Fatalf("other host should not be throttled: %v", err)
	}
}

func TestProbeRefusesPrivateAddresses(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	p := New(Options{Timeout: time.Second})
	u := srv.URL + "/internal.png"
	if p.Probe(context.Background(), []string{u})[u] {
		t.Fatalf("expected loopback url reported unreachable")
	}
	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Fatalf("expected no request to reach loopback, got %d", n)
	}
}

func TestPublicOnly(t *testing.T) {
	blocked := []string{"127.0.0.1:80", "[::1]:443", "10.1.2.3:80", "192.168.0.10:8080",
		"169.254.169.254:80", "0.0.0.0:80", "[fe80::1]:80", "[fd00::1]:80"}
	for _, addr := range blocked {
		if err := publicOnly("tcp", addr, nil); !errors.Is(err, errBlockedAddress) {
			t.Fatalf("expected %s blocked, got %v", addr, err)
		}
	}
	for _, addr := range []string{"93.184.216.34:443", "[2606:4700::1111]:443"} {
		if err := publicOnly("tcp", addr, nil); err != nil {
			t.Fatalf("expected %s allowed, got %v", addr, err)
		}
	}
}

func TestProbeSharedRequestSurvivesCallerCancel(t *testing.T) {
	var hits int32
	arrived := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		arrived <- struct{}{}
		<-release
	}))
	defer srv.Close()

	p := New(Options{Timeout: 5 * time.Second, AllowPrivate: true})
	u := srv.URL + "/shared.png"

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan bool, 1)
	go func() { first <- p.Probe(ctx, []string{u})[u] }()
	<-arrived

	second := make(chan bool, 1)
	go func() { second <- p.Probe(context.Background(), []string{u})[u] }()

	cancel()
	if <-first {
		t.Fatalf("expected cancelled caller to report unreachable")
	}
	close(release)
	if !<-second {
		t.Fatalf("expected remaining caller to see the shared result")
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected one shared request, got %d", n)
	}
}
