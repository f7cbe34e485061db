// Package flypl implements the offer source boundary against the fly.pl
// search page using a headless browser.
package flypl

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"travel-monitor/config"
	"travel-monitor/fetcher"
	"travel-monitor/models"
	"travel-monitor/utils"
)

// Fetcher drives a headless Chrome against the fly.pl search results
type Fetcher struct {
	cfg         config.FetchConfig
	logger      *utils.Logger
	rateLimiter *utils.RateLimiter

	mu        sync.Mutex
	seenPages map[string]bool // pagination cycle guard
}

// NewFetcher creates a Fetcher with the given timing knobs
func NewFetcher(cfg config.FetchConfig, logger *utils.Logger) *Fetcher {
	return &Fetcher{
		cfg:         cfg,
		logger:      logger,
		rateLimiter: utils.NewRateLimiter(cfg.RateLimitDelayMs),
	}
}

// newBrowser creates a fresh allocator and browser context
func (f *Fetcher) newBrowser(ctx context.Context) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("log-level", "3"),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		chromedp.WindowSize(1920, 1080),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	cancel := func() {
		cancelBrowser()
		cancelAlloc()
	}
	return browserCtx, cancel
}

// Search loads the search results, walks the pagination and returns every
// discovered offer fragment. All pages are collected before returning so
// the caller sees one complete batch.
func (f *Fetcher) Search(ctx context.Context, params models.QueryParams) ([]models.RawFragment, error) {
	f.mu.Lock()
	f.seenPages = map[string]bool{params.SearchURL: true}
	f.mu.Unlock()

	browserCtx, cancel := f.newBrowser(ctx)
	defer cancel()

	fragments, pageCount, err := f.fetchPage(browserCtx, params.SearchURL)
	if err != nil {
		return nil, err
	}
	f.logger.Info("First page: %d fragments, %d pages total", len(fragments), pageCount)

	if pageCount > 1 && len(fragments) < params.MaxOffers {
		rest, err := f.fetchRemainingPages(browserCtx, params, pageCount)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, rest...)
	}

	if len(fragments) > params.MaxOffers && params.MaxOffers > 0 {
		fragments = fragments[:params.MaxOffers]
	}
	f.logger.Info("Fetch complete: %d raw fragments", len(fragments))
	return fragments, nil
}

type pageResult struct {
	page      int
	fragments []models.RawFragment
	err       error
}

// fetchRemainingPages loads pages 2..pageCount with at most MaxConcurrency
// tabs in flight. Page order is restored before returning.
func (f *Fetcher) fetchRemainingPages(browserCtx context.Context, params models.QueryParams, pageCount int) ([]models.RawFragment, error) {
	// worst case one card per page; the cap keeps a lying page counter
	// from fanning out unboundedly
	maxPages := pageCount
	if params.MaxOffers > 0 && maxPages > params.MaxOffers {
		maxPages = params.MaxOffers
	}

	sem := make(chan struct{}, f.cfg.MaxConcurrency)
	results := make(chan pageResult, maxPages)
	var wg sync.WaitGroup

	for page := 2; page <= maxPages; page++ {
		pageURL := pageLink(params.SearchURL, page)
		f.mu.Lock()
		if f.seenPages[pageURL] {
			f.mu.Unlock()
			continue
		}
		f.seenPages[pageURL] = true
		f.mu.Unlock()

		wg.Add(1)
		go func(page int, pageURL string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := f.rateLimiter.Wait(browserCtx); err != nil {
				results <- pageResult{page: page, err: &fetcher.FetchError{Transient: true, Err: err}}
				return
			}
			tabCtx, cancelTab := chromedp.NewContext(browserCtx)
			defer cancelTab()

			fragments, _, err := f.fetchPage(tabCtx, pageURL)
			results <- pageResult{page: page, fragments: fragments, err: err}
		}(page, pageURL)
	}

	wg.Wait()
	close(results)

	collected := make([]pageResult, 0, maxPages)
	for r := range results {
		collected = append(collected, r)
	}
	return f.assemblePages(collected, maxPages)
}

// assemblePages restores page order and surfaces per-page failures. A lost
// page means the batch is incomplete, so the first error is returned and
// the tick-level retry covers it; partial batches are never kept silently.
func (f *Fetcher) assemblePages(results []pageResult, maxPages int) ([]models.RawFragment, error) {
	byPage := make(map[int][]models.RawFragment, len(results))
	var firstErr error
	for _, r := range results {
		if r.err != nil {
			f.logger.Warn("Page %d failed: %v", r.page, r.err)
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		byPage[r.page] = r.fragments
	}
	if firstErr != nil {
		return nil, firstErr
	}

	var out []models.RawFragment
	for page := 2; page <= maxPages; page++ {
		out = append(out, byPage[page]...)
	}
	return out, nil
}

// cardData mirrors the JSON the in-page extraction script produces
type cardData struct {
	Text     string `json:"text"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Dates    string `json:"dates"`
	Duration string `json:"duration"`
	Rating   string `json:"rating"`
	URL      string `json:"url"`
}

// fetchPage navigates to one results page and extracts its offer cards
func (f *Fetcher) fetchPage(ctx context.Context, pageURL string) ([]models.RawFragment, int, error) {
	navCtx, cancel := context.WithTimeout(ctx, time.Duration(f.cfg.WaitTimeoutSec)*time.Second)
	defer cancel()

	err := chromedp.Run(navCtx,
		chromedp.Navigate(pageURL),
		chromedp.Sleep(5*time.Second), // give JS time to render
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, &fetcher.FetchError{Transient: true, Err: fmt.Errorf("navigation failed: %w", err)}
	}

	var notFound bool
	_ = chromedp.Run(navCtx, chromedp.Evaluate(
		`document.body ? /nie znaleziono|brak ofert|error 4/i.test(document.body.innerText.slice(0, 2000)) : false`,
		&notFound))
	if notFound {
		return nil, 0, &fetcher.FetchError{Err: fmt.Errorf("source rejected the query at %s", pageURL)}
	}

	var cards []cardData
	if err := chromedp.Run(navCtx, chromedp.Evaluate(extractScript, &cards)); err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, &fetcher.FetchError{Transient: true, Err: fmt.Errorf("card extraction failed: %w", err)}
	}

	var pageCount int
	_ = chromedp.Run(navCtx, chromedp.Evaluate(pageCountScript, &pageCount))
	if pageCount < 1 {
		pageCount = 1
	}

	fragments := make([]models.RawFragment, 0, len(cards))
	for _, c := range cards {
		fragments = append(fragments, models.RawFragment{
			Text:        c.Text,
			HotelName:   c.Name,
			RawPrice:    c.Price,
			RawDates:    c.Dates,
			RawDuration: c.Duration,
			RawRating:   c.Rating,
			URL:         c.URL,
		})
	}
	return fragments, pageCount, nil
}

func pageLink(searchURL string, page int) string {
	sep := "?"
	if strings.Contains(searchURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%spage=%d", searchURL, sep, page)
}

// extractScript walks a ladder of selectors for offer cards; layouts on
// the source change slowly but change, so every field falls through a
// list of candidates before giving up.
const extractScript = `
(function() {
	var selectors = [
		'.offer-item', '.trip-item', '.hotel-item', '.search-result-item',
		'[data-testid*="offer"]', '.result-item',
		'[class*="offer-"]', '[class*="trip-"]', '[class*="hotel-card"]'
	];
	var containers = [];
	for (var i = 0; i < selectors.length; i++) {
		containers = document.querySelectorAll(selectors[i]);
		if (containers.length > 0) break;
	}
	if (containers.length === 0) {
		// fallback: parents of price-looking elements
		var priceEls = document.querySelectorAll('[class*="price"], [class*="cost"], [class*="amount"]');
		var parents = new Set();
		priceEls.forEach(function(el) {
			var p = el.closest('article, li, div[class]');
			if (p) parents.add(p);
		});
		containers = Array.from(parents).slice(0, 50);
	}

	function textBy(card, sels) {
		for (var i = 0; i < sels.length; i++) {
			var el = card.querySelector(sels[i]);
			if (el && el.innerText && el.innerText.trim()) return el.innerText.trim();
		}
		return '';
	}

	var cards = [];
	containers.forEach(function(card) {
		var text = (card.innerText || '').trim();
		if (text.length < 10) return;
		var link = card.querySelector('a[href]');
		cards.push({
			text: text.slice(0, 2000),
			name: textBy(card, ['h1','h2','h3','h4','.title','.name','.hotel-name',
				'[class*="title"]','[class*="name"]','[class*="hotel"]']),
			price: textBy(card, ['.price','.cost','.amount','.value',
				'[class*="price"]','[class*="cost"]','[class*="amount"]']),
			dates: textBy(card, ['.date','.dates','.departure','.term',
				'[class*="date"]','[class*="term"]']),
			duration: textBy(card, ['.duration','.nights','.days',
				'[class*="duration"]','[class*="nights"]']),
			rating: textBy(card, ['.rating','.stars','.score',
				'[class*="rating"]','[class*="stars"]']),
			url: link ? link.href : ''
		});
	});
	return cards;
})()
`

const pageCountScript = `
(function() {
	var el = document.querySelector('[class*="pagination"] [class*="last"], [data-testid="page-count"]');
	if (el) {
		var n = parseInt(el.innerText, 10);
		if (n > 0) return n;
	}
	var links = document.querySelectorAll('[class*="pagination"] a');
	var max = 1;
	links.forEach(function(a) {
		var n = parseInt(a.innerText, 10);
		if (n > max) max = n;
	});
	return max;
})()
`
