package chromedp_search

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tomichandesu/research-tool-sub000/internal/entity"
	"github.com/tomichandesu/research-tool-sub000/internal/proxy"
	"github.com/tomichandesu/research-tool-sub000/internal/repository"
	"github.com/tomichandesu/research-tool-sub000/pkg/config"
	"github.com/tomichandesu/research-tool-sub000/pkg/logger"
)

const (
	maxSearchPages   = 3
	uploadSettle     = 3 * time.Second
	resultPolls      = 30
	fallbackPolls    = 20
	imageSearchSlack = 60 * time.Second
	pagesFastURL     = "https://pages-fast.1688.com/wow/cbu/srch_rec/image_search/youyuan/index.html?tab=imageSearch&imageId="
)

var imageIDRe = regexp.MustCompile(`imageId=(\d+)`)

var extraHeaders = network.Headers{
	"Accept-Language": "ja-JP,ja;q=0.9,en-US;q=0.8,en;q=0.7",
}

// SearchRepoImpl queries both marketplaces through one headless Chrome
// session. Every call opens its own tab; the profile directory keeps cookies
// and logins across tabs and runs.
type SearchRepoImpl struct {
	cfg     config.SearchConfig
	browser config.BrowserConfig
	base    *url.URL
	slots   chan struct{}
	fetcher repository.ImageFetcher
	limiter *rate.Limiter
	logger  *zap.Logger

	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	proxy       string

	mu            sync.Mutex
	session       context.Context
	cancelSession context.CancelFunc
}

// NewSearchRepo prepares a browser session bound to the next proxy and a
// random user agent from proxies, with at most browser.MaxTabs tabs open at
// once. Chrome starts on first use. fetcher downloads the images uploaded to
// the image search.
func NewSearchRepo(cfg config.SearchConfig, browser config.BrowserConfig, proxies *proxy.Manager, fetcher repository.ImageFetcher, l *zap.Logger) (*SearchRepoImpl, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse search base url: %w", err)
	}
	if browser.UserDataDir != "" {
		if err := os.MkdirAll(browser.UserDataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create browser profile: %w", err)
		}
	}
	limit := rate.Inf
	if browser.RequestDelay > 0 {
		limit = rate.Every(browser.RequestDelay)
	}
	r := &SearchRepoImpl{
		cfg:     cfg,
		browser: browser,
		base:    base,
		slots:   make(chan struct{}, max(1, browser.MaxTabs)),
		fetcher: fetcher,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.OrNop(l).Named("browser"),
		proxy:   proxies.GetProxy(),
	}
	r.allocCtx, r.cancelAlloc = chromedp.NewExecAllocator(context.Background(), allocatorOptions(browser, r.proxy, proxies.GetUserAgent())...)
	r.logger.Debug("browser session configured",
		zap.Bool("proxied", r.proxy != ""),
		zap.String("profile", browser.UserDataDir),
		zap.Int("max_tabs", cap(r.slots)),
	)
	return r, nil
}

func allocatorOptions(browser config.BrowserConfig, proxyURL, userAgent string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", browser.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1366, 900),
	)
	if browser.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(browser.UserDataDir))
	}
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	if proxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(proxyURL))
	}
	return opts
}

// sessionContext returns the shared browser context, starting Chrome when
// it is not running. A session whose browser died is replaced.
func (r *SearchRepoImpl) sessionContext() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil && r.session.Err() == nil {
		return r.session, nil
	}
	if r.cancelSession != nil {
		r.cancelSession()
	}
	sctx, cancel := chromedp.NewContext(r.allocCtx, chromedp.WithLogf(r.logger.Sugar().Debugf))
	if err := chromedp.Run(sctx); err != nil {
		cancel()
		r.session, r.cancelSession = nil, nil
		return nil, fmt.Errorf("start browser: %w", err)
	}
	r.session, r.cancelSession = sctx, cancel
	return sctx, nil
}

// Close shuts the browser down.
func (r *SearchRepoImpl) Close() {
	r.mu.Lock()
	if r.cancelSession != nil {
		r.cancelSession()
	}
	r.mu.Unlock()
	r.cancelAlloc()
}

// tab opens a fresh tab in the shared session, bound to ctx. The returned
// release must be called once the tab is no longer needed.
func (r *SearchRepoImpl) tab(ctx context.Context, timeout time.Duration) (context.Context, func(), error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	select {
	case r.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	sctx, err := r.sessionContext()
	if err != nil {
		<-r.slots
		return nil, nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(sctx)
	cancelTimeout := context.CancelFunc(func() {})
	if timeout > 0 {
		tabCtx, cancelTimeout = context.WithTimeout(tabCtx, timeout)
	}
	stop := context.AfterFunc(ctx, cancelTab)
	release := func() {
		stop()
		cancelTimeout()
		cancelTab()
		<-r.slots
	}
	return tabCtx, release, nil
}

// Login opens loginURL in the shared session and keeps the tab open until
// ctx is done, so a person can sign in and the profile stores the cookies.
func (r *SearchRepoImpl) Login(ctx context.Context, loginURL string) error {
	tabCtx, release, err := r.tab(ctx, 0)
	if err != nil {
		return err
	}
	defer release()

	if err := chromedp.Run(tabCtx, chromedp.Navigate(loginURL)); err != nil {
		return classify(err, loginURL)
	}
	r.logger.Info("login page open; close with Ctrl-C once signed in", zap.String("url", loginURL))
	<-ctx.Done()
	return nil
}

// classify maps a browser failure onto the repository error taxonomy.
func classify(err error, target string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s", repository.ErrSearchTimeout, target)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %s: %v", repository.ErrNavigationFailed, target, err)
	}
}

// render loads target and returns the fully rendered document.
func (r *SearchRepoImpl) render(ctx context.Context, target string) (*goquery.Document, error) {
	tabCtx, release, err := r.tab(ctx, r.browser.PageTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	var html string
	err = chromedp.Run(tabCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(extraHeaders),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(time.Second),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, classify(err, target)
	}
	return documentFrom(html)
}

func documentFrom(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrExtractionFailed, err)
	}
	if doc.Find(`form[action*="validateCaptcha"]`).Length() > 0 {
		return nil, repository.ErrContentRestricted
	}
	return doc, nil
}

func (r *SearchRepoImpl) searchURL(keyword string, page int) string {
	u := *r.base
	u.Path = "/s"
	q := url.Values{}
	q.Set("k", keyword)
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

func (r *SearchRepoImpl) productURL(id string) string {
	u := *r.base
	u.Path = "/dp/" + id
	return u.String()
}

// Search returns up to cfg.MaxResults listings for keyword. When detail
// fetching is enabled each listing is completed from its product page; a
// failed detail fetch keeps the search-level fields.
func (r *SearchRepoImpl) Search(ctx context.Context, keyword string) ([]entity.CandidateListing, error) {
	var listings []entity.CandidateListing
	seen := make(map[string]struct{})
	for page := 1; page <= maxSearchPages && len(listings) < r.cfg.MaxResults; page++ {
		doc, err := r.render(ctx, r.searchURL(keyword, page))
		if err != nil {
			if page == 1 {
				return nil, err
			}
			r.logger.Warn("search page failed", zap.String("keyword", keyword), zap.Int("page", page), zap.Error(err))
			break
		}
		found := parseSearchResults(doc, r.base, r.cfg.OrganicOnly)
		if len(found) == 0 {
			break
		}
		for _, l := range found {
			if _, dup := seen[l.ID]; dup {
				continue
			}
			seen[l.ID] = struct{}{}
			listings = append(listings, l)
		}
	}
	if len(listings) > r.cfg.MaxResults {
		listings = listings[:r.cfg.MaxResults]
	}
	r.logger.Debug("search results", zap.String("keyword", keyword), zap.Int("listings", len(listings)))
	if !r.cfg.FetchDetails {
		return listings, nil
	}

	out := listings[:0]
	for _, l := range listings {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		doc, err := r.render(ctx, r.productURL(l.ID))
		if err == nil {
			err = parseProductDetail(doc, &l)
		}
		switch {
		case errors.Is(err, errMadeInJapan):
			r.logger.Debug("skipping domestic product", zap.String("id", l.ID))
			continue
		case err != nil:
			r.logger.Warn("product detail unavailable", zap.String("id", l.ID), zap.Error(err))
		}
		out = append(out, l)
	}
	return out, nil
}

// ImageSearch uploads the image at imageURL to the source marketplace's image
// search and returns the offers on the result page.
func (r *SearchRepoImpl) ImageSearch(ctx context.Context, imageURL string) ([]entity.SourcingCandidate, error) {
	data, err := r.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch query image: %w", err)
	}
	path, err := writeTemp(data)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	tabCtx, release, err := r.tab(ctx, r.browser.PageTimeout+imageSearchSlack)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		mu      sync.Mutex
		imageID string
	)
	chromedp.ListenTarget(tabCtx, func(ev any) {
		req, ok := ev.(*network.EventRequestWillBeSent)
		if !ok {
			return
		}
		if m := imageIDRe.FindStringSubmatch(req.Request.URL); m != nil {
			mu.Lock()
			if imageID == "" {
				imageID = m[1]
			}
			mu.Unlock()
		}
	})

	err = chromedp.Run(tabCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(extraHeaders),
		chromedp.Navigate(r.cfg.ImageSearchURL),
		chromedp.WaitReady(`input[type="file"]`, chromedp.ByQuery),
		chromedp.SetUploadFiles(`input[type="file"]`, []string{path}, chromedp.ByQuery),
		chromedp.Sleep(uploadSettle),
		chromedp.Click(`.search-btn`, chromedp.ByQuery),
	)
	if err != nil {
		return nil, classify(err, r.cfg.ImageSearchURL)
	}

	offers, err := r.pollOffers(tabCtx, resultPolls)
	if err != nil || len(offers) > 0 {
		return offers, err
	}

	mu.Lock()
	id := imageID
	mu.Unlock()
	if id == "" {
		return nil, nil
	}
	r.logger.Debug("image search fallback", zap.String("image_id", id))
	if err := chromedp.Run(tabCtx, chromedp.Navigate(pagesFastURL+id)); err != nil {
		return nil, classify(err, pagesFastURL+id)
	}
	return r.pollOffers(tabCtx, fallbackPolls)
}

// pollOffers re-reads the page once a second until offers appear.
func (r *SearchRepoImpl) pollOffers(tabCtx context.Context, polls int) ([]entity.SourcingCandidate, error) {
	for range polls {
		var html string
		if err := chromedp.Run(tabCtx, chromedp.Sleep(time.Second), chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
			return nil, classify(err, "image search results")
		}
		doc, err := documentFrom(html)
		if err != nil {
			return nil, err
		}
		if offers := parseOfferCards(doc, r.cfg.ImageSearchMaxResults); len(offers) > 0 {
			return offers, nil
		}
	}
	return nil, nil
}

func writeTemp(data []byte) (string, error) {
	f, err := os.CreateTemp("", "image-search-*.jpg")
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return f.Name(), nil
}
