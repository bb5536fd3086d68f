package httpimage

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomichandesu/research-tool-sub000/internal/proxy"
)

func TestFetch(t *testing.T) {
	t.Parallel()

	payload := []byte("\x89PNG fake")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	f := NewFetcher(time.Second, nil)
	got, err := f.Fetch(context.Background(), srv.URL+"/a.png")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q", got)
	}

	if _, err := f.Fetch(context.Background(), srv.URL+"/missing.jpg"); err == nil {
		t.Fatal("expected error on 404")
	}
}

func TestFetchBenchesBlockedProxy(t *testing.T) {
	t.Parallel()

	var blockedHits, goodHits atomic.Int32
	blocked := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		blockedHits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer blocked.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		goodHits.Add(1)
		_, _ = w.Write([]byte("img"))
	}))
	defer good.Close()

	f := NewFetcher(time.Second, proxy.NewManager([]string{blocked.URL, good.URL}, []string{"test-agent"}))
	ctx := context.Background()

	if _, err := f.Fetch(ctx, "http://images.example/a.jpg"); err == nil {
		t.Fatal("expected an error through the blocked proxy")
	}
	for range 2 {
		if _, err := f.Fetch(ctx, "http://images.example/a.jpg"); err != nil {
			t.Fatal(err)
		}
	}
	if blockedHits.Load() != 1 || goodHits.Load() != 2 {
		t.Fatalf("hits blocked=%d good=%d", blockedHits.Load(), goodHits.Load())
	}
}
