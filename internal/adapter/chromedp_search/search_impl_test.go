package chromedp_search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomichandesu/research-tool-sub000/internal/proxy"
	"github.com/tomichandesu/research-tool-sub000/pkg/config"
)

func TestNewSearchRepoSharesOneProfile(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	browser := cfg.Browser
	browser.MaxTabs = 2
	browser.RequestDelay = 0
	browser.UserDataDir = filepath.Join(t.TempDir(), "profile")

	r, err := NewSearchRepo(cfg.Search, browser, proxy.NewManager([]string{"http://p1:8000", "http://p2:8000"}, nil), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if fi, err := os.Stat(browser.UserDataDir); err != nil || !fi.IsDir() {
		t.Fatalf("profile directory not created: %v", err)
	}
	if r.proxy != "http://p1:8000" {
		t.Fatalf("session proxy = %q", r.proxy)
	}
	if cap(r.slots) != 2 {
		t.Fatalf("tab slots = %d, want 2", cap(r.slots))
	}
}

func TestTabWaitsForAFreeSlot(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	browser := cfg.Browser
	browser.MaxTabs = 1
	browser.RequestDelay = 0
	browser.UserDataDir = ""

	r, err := NewSearchRepo(cfg.Search, browser, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	r.slots <- struct{}{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, _, err := r.tab(ctx, time.Second); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("tab() with every slot taken = %v", err)
	}
	if r.session != nil {
		t.Fatal("browser started while no slot was free")
	}
}
