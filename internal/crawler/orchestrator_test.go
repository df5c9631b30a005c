package crawler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indeed-crawler/internal/browser"
	"indeed-crawler/internal/captcha"
	"indeed-crawler/pkg/models"
	"indeed-crawler/pkg/utils"
)

// cancellingFetcher cancels the crawl context when its trigger call arrives.
type cancellingFetcher struct {
	mu        sync.Mutex
	calls     int
	cancelOn  int
	cancel    context.CancelFunc
	seenSizes []int
}

func (c *cancellingFetcher) FetchBatch(ctx context.Context, searchURL string, records []*models.ListingRecord) []*models.ListingRecord {
	c.mu.Lock()
	c.calls++
	c.seenSizes = append(c.seenSizes, len(records))
	trigger := c.calls == c.cancelOn
	c.mu.Unlock()

	if trigger {
		c.cancel()
	}
	return records
}

func newTestOrchestrator(t *testing.T, driver browser.Driver, recovery recoveryRunner, fetcher batchFetcher) *Orchestrator {
	t.Helper()
	cfg := testConfig()
	return NewOrchestrator(cfg, driver, NewRecordExtractor(cfg), recovery, fetcher, NewPacer(cfg.Crawler.RateLimit))
}

func TestOrchestratorRun(t *testing.T) {
	query := models.SearchQuery{JobTitle: "engineer", Location: "Austin, TX"}

	t.Run("collects across pages until pagination ends", func(t *testing.T) {
		cfg := testConfig()
		driver := newFakeDriver(cfg)
		searchURL := BuildSearchURL(cfg, query)
		page2URL := cfg.Crawler.BaseURL + "/jobs?q=engineer&start=10"

		driver.cards[searchURL] = []browser.Element{
			makeCard(cardFields{title: "Engineer A", company: "Acme", href: "/viewjob?jk=aaa1"}),
			makeCard(cardFields{title: "Engineer B", company: "Globex", href: "/viewjob?jk=bbb2"}),
		}
		driver.nextHref[searchURL] = "/jobs?q=engineer&start=10"
		driver.cards[page2URL] = []browser.Element{
			makeCard(cardFields{title: "Engineer C", company: "Initech", href: "/viewjob?jk=ccc3"}),
		}

		recovery := &fakeRecovery{}
		orch := newTestOrchestrator(t, driver, recovery, nil)

		records, err := orch.Run(context.Background(), query)
		require.NoError(t, err)
		require.Len(t, records, 3)

		assert.Equal(t, "aaa1", records[0].JobID)
		assert.Equal(t, "ccc3", records[2].JobID)
		assert.Equal(t, searchURL, records[0].SearchURL)
		assert.Equal(t, "engineer", records[0].QueriedJobTitle)
	})

	t.Run("page budget stops the crawl", func(t *testing.T) {
		cfg := testConfig()
		driver := newFakeDriver(cfg)
		limited := query
		limited.MaxPages = 1
		searchURL := BuildSearchURL(cfg, limited)

		driver.cards[searchURL] = []browser.Element{
			makeCard(cardFields{title: "Engineer A", company: "Acme", href: "/viewjob?jk=aaa1"}),
		}
		driver.nextHref[searchURL] = "/jobs?q=engineer&start=10"

		orch := newTestOrchestrator(t, driver, &fakeRecovery{}, nil)

		records, err := orch.Run(context.Background(), limited)
		require.NoError(t, err)
		assert.Len(t, records, 1)
		assert.Len(t, driver.navigations, 1, "never followed the next-page link")
	})

	t.Run("duplicates across pages collapse", func(t *testing.T) {
		cfg := testConfig()
		driver := newFakeDriver(cfg)
		searchURL := BuildSearchURL(cfg, query)
		page2URL := cfg.Crawler.BaseURL + "/jobs?q=engineer&start=10"

		driver.cards[searchURL] = []browser.Element{
			makeCard(cardFields{title: "Engineer A", company: "Acme", href: "/viewjob?jk=aaa1"}),
		}
		driver.nextHref[searchURL] = "/jobs?q=engineer&start=10"
		driver.cards[page2URL] = []browser.Element{
			makeCard(cardFields{title: "Engineer A", company: "Acme", href: "/viewjob?jk=aaa1"}),
			makeCard(cardFields{title: "Engineer D", company: "Acme", href: "/viewjob?jk=ddd4"}),
		}

		orch := newTestOrchestrator(t, driver, &fakeRecovery{}, nil)

		records, err := orch.Run(context.Background(), query)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("unextractable cards are skipped", func(t *testing.T) {
		cfg := testConfig()
		driver := newFakeDriver(cfg)
		limited := query
		limited.MaxPages = 1
		searchURL := BuildSearchURL(cfg, limited)

		driver.cards[searchURL] = []browser.Element{
			makeCard(cardFields{title: "Engineer A", company: "Acme", href: "/viewjob?jk=aaa1"}),
			makeCard(cardFields{title: "No Company", href: "/viewjob?jk=bbb2"}),
		}

		orch := newTestOrchestrator(t, driver, &fakeRecovery{}, nil)

		records, err := orch.Run(context.Background(), limited)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("search page navigation failure is a crawl error", func(t *testing.T) {
		cfg := testConfig()
		driver := newFakeDriver(cfg)
		searchURL := BuildSearchURL(cfg, query)
		driver.navErrs[searchURL] = errors.New("net::ERR_CONNECTION_RESET")

		orch := newTestOrchestrator(t, driver, &fakeRecovery{}, nil)

		records, err := orch.Run(context.Background(), query)
		assert.Error(t, err)
		assert.Empty(t, records)
	})

	t.Run("unresolved challenge on landing returns captcha-aborted", func(t *testing.T) {
		cfg := testConfig()
		driver := newFakeDriver(cfg)
		recovery := &fakeRecovery{outcomes: []captcha.Outcome{captcha.OutcomeAborted}}

		orch := newTestOrchestrator(t, driver, recovery, nil)

		records, err := orch.Run(context.Background(), query)
		assert.True(t, utils.IsCaptchaAbortedError(err))
		assert.Empty(t, records)
		assert.Equal(t, 1, recovery.runs)
	})

	t.Run("empty page with aborted recovery returns captcha-aborted", func(t *testing.T) {
		cfg := testConfig()
		driver := newFakeDriver(cfg)
		recovery := &fakeRecovery{outcomes: []captcha.Outcome{
			captcha.OutcomeResolved,
			captcha.OutcomeAborted,
		}}

		orch := newTestOrchestrator(t, driver, recovery, nil)

		records, err := orch.Run(context.Background(), query)
		assert.True(t, utils.IsCaptchaAbortedError(err))
		assert.Empty(t, records)
	})

	t.Run("empty page runs recovery then stops when still empty", func(t *testing.T) {
		cfg := testConfig()
		driver := newFakeDriver(cfg)
		recovery := &fakeRecovery{}

		orch := newTestOrchestrator(t, driver, recovery, nil)

		records, err := orch.Run(context.Background(), query)
		require.NoError(t, err)
		assert.Empty(t, records)
		assert.Equal(t, 2, recovery.runs, "one proactive run plus one for the empty page")
	})

	t.Run("empty page recovers when challenge was hiding the cards", func(t *testing.T) {
		cfg := testConfig()
		driver := newFakeDriver(cfg)
		limited := query
		limited.MaxPages = 1
		searchURL := BuildSearchURL(cfg, limited)

		recovery := &fakeRecovery{
			onRun: func(run int) {
				if run == 1 {
					driver.mu.Lock()
					driver.cards[searchURL] = []browser.Element{
						makeCard(cardFields{title: "Engineer A", company: "Acme", href: "/viewjob?jk=aaa1"}),
					}
					driver.mu.Unlock()
				}
			},
		}

		orch := newTestOrchestrator(t, driver, recovery, nil)

		records, err := orch.Run(context.Background(), limited)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("cancellation mid-crawl returns pages completed so far", func(t *testing.T) {
		cfg := testConfig()
		driver := newFakeDriver(cfg)
		searchURL := BuildSearchURL(cfg, query)
		page2URL := cfg.Crawler.BaseURL + "/jobs?q=engineer&start=10"

		driver.cards[searchURL] = []browser.Element{
			makeCard(cardFields{title: "Engineer A", company: "Acme", href: "/viewjob?jk=aaa1"}),
			makeCard(cardFields{title: "Engineer B", company: "Globex", href: "/viewjob?jk=bbb2"}),
		}
		driver.nextHref[searchURL] = "/jobs?q=engineer&start=10"
		driver.cards[page2URL] = []browser.Element{
			makeCard(cardFields{title: "Engineer C", company: "Initech", href: "/viewjob?jk=ccc3"}),
		}

		ctx, cancel := context.WithCancel(context.Background())
		fetcher := &cancellingFetcher{cancelOn: 2, cancel: cancel}

		orch := newTestOrchestrator(t, driver, &fakeRecovery{}, fetcher)

		records, err := orch.Run(ctx, query)
		require.NoError(t, err)
		assert.Len(t, records, 2, "only the first completed page is returned")
		assert.Equal(t, 2, fetcher.calls)
	})

	t.Run("challenge after pagination stops with prior pages intact", func(t *testing.T) {
		cfg := testConfig()
		driver := newFakeDriver(cfg)
		searchURL := BuildSearchURL(cfg, query)
		page2URL := cfg.Crawler.BaseURL + "/jobs?q=engineer&start=10"

		driver.cards[searchURL] = []browser.Element{
			makeCard(cardFields{title: "Engineer A", company: "Acme", href: "/viewjob?jk=aaa1"}),
		}
		driver.nextHref[searchURL] = "/jobs?q=engineer&start=10"
		driver.cards[page2URL] = []browser.Element{
			makeCard(cardFields{title: "Engineer C", company: "Initech", href: "/viewjob?jk=ccc3"}),
		}

		recovery := &fakeRecovery{outcomes: []captcha.Outcome{
			captcha.OutcomeResolved,
			captcha.OutcomeAborted,
		}}

		orch := newTestOrchestrator(t, driver, recovery, nil)

		records, err := orch.Run(context.Background(), query)
		assert.True(t, utils.IsCaptchaAbortedError(err), "partial aggregate carries the abort code")
		assert.Len(t, records, 1)
	})
}
