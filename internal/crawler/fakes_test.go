package crawler

import (
	"context"
	"errors"
	"sync"
	"time"

	"indeed-crawler/internal/browser"
	"indeed-crawler/internal/captcha"
	"indeed-crawler/internal/config"
)

// fakeElement implements browser.Element for extraction tests.
type fakeElement struct {
	text     string
	attrs    map[string]string
	children map[string]*fakeElement
}

func (f *fakeElement) Text() (string, error) {
	return f.text, nil
}

func (f *fakeElement) Attribute(name string) (string, error) {
	return f.attrs[name], nil
}

func (f *fakeElement) First(selector string) (browser.Element, error) {
	if child, ok := f.children[selector]; ok {
		return child, nil
	}
	return nil, errors.New("no element matches " + selector)
}

// cardFields is a shorthand description of a result card for tests.
type cardFields struct {
	title      string
	titleAttr  string
	company    string
	location   string
	salary     string
	href       string
	noLink     bool
	noTitleSel bool
}

func makeCard(f cardFields) *fakeElement {
	children := map[string]*fakeElement{}

	if !f.noTitleSel {
		titleEl := &fakeElement{text: f.title, attrs: map[string]string{}}
		if f.titleAttr != "" {
			titleEl.attrs["title"] = f.titleAttr
		}
		if !f.noLink {
			titleEl.attrs["href"] = f.href
		}
		children["a.jcs-JobTitle"] = titleEl
	}
	if f.company != "" {
		children["[data-testid='company-name']"] = &fakeElement{text: f.company}
	}
	if f.location != "" {
		children["[data-testid='text-location']"] = &fakeElement{text: f.location}
	}
	if f.salary != "" {
		children["[data-testid='attribute_snippet_testid']"] = &fakeElement{text: f.salary}
	}

	return &fakeElement{children: children}
}

// fakeDriver implements browser.Driver with per-URL scripted content.
type fakeDriver struct {
	mu sync.Mutex

	selectors config.Selectors

	currentURL  string
	html        map[string]string
	cards       map[string][]browser.Element
	nextHref    map[string]string
	navErrs     map[string]error
	navigations []string
	solveCalls  int
}

func newFakeDriver(cfg *config.Config) *fakeDriver {
	return &fakeDriver{
		selectors: cfg.Selectors,
		html:      map[string]string{},
		cards:     map[string][]browser.Element{},
		nextHref:  map[string]string{},
		navErrs:   map[string]error{},
	}
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.navErrs[url]; err != nil {
		return err
	}
	d.currentURL = url
	d.navigations = append(d.navigations, url)
	return nil
}

func (d *fakeDriver) CurrentURL() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentURL, nil
}

func (d *fakeDriver) WaitForSelector(selector string, timeout time.Duration) error {
	return nil
}

func (d *fakeDriver) FindAll(selector string) ([]browser.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if selector == d.selectors.NextPage {
		if href, ok := d.nextHref[d.currentURL]; ok {
			return []browser.Element{
				&fakeElement{attrs: map[string]string{"href": href}},
			}, nil
		}
		return nil, nil
	}
	return d.cards[d.currentURL], nil
}

func (d *fakeDriver) ScrollTo(fraction float64) error {
	return nil
}

func (d *fakeDriver) PageHTML() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.html[d.currentURL], nil
}

func (d *fakeDriver) AttemptChallengeSolve(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.solveCalls++
	return nil
}

func (d *fakeDriver) Close() error {
	return nil
}

func (d *fakeDriver) setPage(url, html string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.html[url] = html
}

// fakeRecovery implements recoveryRunner with scripted outcomes and an
// optional side effect per run.
type fakeRecovery struct {
	mu       sync.Mutex
	outcomes []captcha.Outcome
	runs     int
	onRun    func(run int)
}

func (r *fakeRecovery) Run(ctx context.Context) (captcha.Outcome, error) {
	r.mu.Lock()
	run := r.runs
	r.runs++
	outcome := captcha.OutcomeResolved
	if run < len(r.outcomes) {
		outcome = r.outcomes[run]
	} else if len(r.outcomes) > 0 {
		outcome = r.outcomes[len(r.outcomes)-1]
	}
	onRun := r.onRun
	r.mu.Unlock()

	if onRun != nil {
		onRun(run)
	}
	return outcome, nil
}

// fakeFallback implements FallbackFetcher.
type fakeFallback struct {
	mu      sync.Mutex
	content string
	err     error
	urls    []string
}

func (f *fakeFallback) FetchDescription(ctx context.Context, jobURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, jobURL)
	if f.err != nil {
		return "", f.err
	}
	return f.content, nil
}

// testConfig returns a config with all pacing collapsed so tests run fast.
func testConfig() *config.Config {
	cfg, _ := config.LoadConfig("")
	cfg.Crawler.MinDelay = 0
	cfg.Crawler.MaxDelay = 0
	cfg.Crawler.PageDelayMin = 0
	cfg.Crawler.PageDelayMax = 0
	cfg.Crawler.DetailDelayMin = 0
	cfg.Crawler.DetailDelayMax = 0
	cfg.Crawler.ScrollStepDelay = time.Millisecond
	cfg.Crawler.ScrollSteps = 2
	cfg.Crawler.ContentTimeout = 10 * time.Millisecond
	cfg.Crawler.RateLimit = 600000
	return cfg
}
