package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"indeed-crawler/internal/browser"
	"indeed-crawler/internal/captcha"
	"indeed-crawler/internal/config"
	"indeed-crawler/pkg/models"
	"indeed-crawler/pkg/utils"
)

// batchFetcher enriches a page's records with detail-page data.
type batchFetcher interface {
	FetchBatch(ctx context.Context, searchURL string, records []*models.ListingRecord) []*models.ListingRecord
}

// Orchestrator drives one crawl: load the search results, then loop pages of
// scroll, collect, extract, dedupe and enrich until the page budget, the end
// of results, an unresolved challenge or cancellation stops it. It always
// returns what was collected so far; a challenge-blocked crawl carries the
// captcha-aborted error code alongside the partial aggregate.
type Orchestrator struct {
	cfg       *config.Config
	driver    browser.Driver
	extractor *RecordExtractor
	recovery  recoveryRunner
	fetcher   batchFetcher
	pacer     *Pacer
	logger    *logrus.Logger
}

// NewOrchestrator wires an orchestrator. fetcher may be nil when detail
// enrichment is disabled.
func NewOrchestrator(cfg *config.Config, driver browser.Driver, extractor *RecordExtractor, recovery recoveryRunner, fetcher batchFetcher, pacer *Pacer) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		driver:    driver,
		extractor: extractor,
		recovery:  recovery,
		fetcher:   fetcher,
		pacer:     pacer,
		logger:    utils.GetLogger(),
	}
}

// Run executes the crawl for a query. Cancellation is honored at page and
// card boundaries: the aggregate through the last completed page comes back
// with a nil error.
func (o *Orchestrator) Run(ctx context.Context, query models.SearchQuery) ([]*models.ListingRecord, error) {
	searchURL := BuildSearchURL(o.cfg, query)
	collected := []*models.ListingRecord{}
	dedup := NewDeduplicator()

	maxPages := query.MaxPages
	if maxPages <= 0 {
		maxPages = o.cfg.Crawler.MaxPages
	}

	o.logger.WithFields(logrus.Fields{
		"search_url": searchURL,
		"job_title":  query.JobTitle,
		"location":   query.Location,
		"max_pages":  maxPages,
	}).Info("Starting crawl")

	if err := o.driver.Navigate(ctx, searchURL); err != nil {
		return collected, utils.NewCrawlError(fmt.Sprintf("failed to load search page: %v", err))
	}

	if err := o.pacer.Wait(ctx, o.cfg.Crawler.MinDelay, o.cfg.Crawler.MaxDelay); err != nil {
		return collected, nil
	}

	// Landing pages are where challenges usually appear first.
	outcome, err := o.recovery.Run(ctx)
	if err != nil || outcome == captcha.OutcomeAborted {
		o.logger.WithError(err).Warn("Challenge on search page could not be resolved, stopping")
		return collected, o.abortError(ctx, err)
	}

	for page := 1; page <= maxPages; page++ {
		if ctx.Err() != nil {
			o.logger.Info("Crawl cancelled")
			return collected, nil
		}

		o.scrollThrough(ctx)

		cards, err := o.driver.FindAll(o.cfg.Selectors.JobCard)
		if err != nil {
			o.logger.WithError(err).Warn("Failed to query job cards")
		}

		if len(cards) == 0 {
			// An empty page is either a block or the genuine end of results.
			// Recovery decides which.
			outcome, err := o.recovery.Run(ctx)
			if err != nil || outcome == captcha.OutcomeAborted {
				return collected, o.abortError(ctx, err)
			}

			cards, _ = o.driver.FindAll(o.cfg.Selectors.JobCard)
			if len(cards) == 0 {
				o.logger.WithField("page", page).Info("No job cards found, stopping")
				return collected, nil
			}
		}

		pageRecords := make([]*models.ListingRecord, 0, len(cards))
		for _, card := range cards {
			if ctx.Err() != nil {
				return collected, nil
			}

			rec, err := o.extractor.Extract(card)
			if err != nil {
				o.logger.WithError(err).Debug("Skipping card")
				continue
			}

			rec.SearchURL = searchURL
			rec.QueriedJobTitle = query.JobTitle

			if !dedup.Admit(rec) {
				continue
			}
			pageRecords = append(pageRecords, rec)
		}

		o.logger.WithFields(logrus.Fields{
			"page":    page,
			"cards":   len(cards),
			"records": len(pageRecords),
		}).Info("Extracted page records")

		if o.fetcher != nil && len(pageRecords) > 0 {
			o.fetcher.FetchBatch(ctx, searchURL, pageRecords)
		}

		if ctx.Err() != nil {
			return collected, nil
		}
		collected = append(collected, pageRecords...)

		if page == maxPages {
			break
		}

		advanced, err := o.nextPage(ctx)
		if err != nil {
			o.logger.WithError(err).Warn("Pagination failed, stopping")
			break
		}
		if !advanced {
			o.logger.WithField("page", page).Info("No next page control, stopping")
			break
		}

		outcome, err := o.recovery.Run(ctx)
		if err != nil || outcome == captcha.OutcomeAborted {
			o.logger.WithError(err).Warn("Challenge after pagination could not be resolved, stopping")
			return collected, o.abortError(ctx, err)
		}

		if err := o.pacer.Wait(ctx, o.cfg.Crawler.PageDelayMin, o.cfg.Crawler.PageDelayMax); err != nil {
			break
		}
	}

	o.logger.WithField("records", len(collected)).Info("Crawl complete")
	return collected, nil
}

// abortError maps an unresolved challenge to its distinguished error so
// callers can tell a blocked crawl from an exhausted one. Cancellation is not
// an abort; the partial aggregate comes back clean.
func (o *Orchestrator) abortError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}

	detail := "challenge recovery aborted"
	if err != nil {
		detail = err.Error()
	}
	return utils.NewCaptchaAbortedError(detail)
}

// scrollThrough scrolls the page in fixed increments so lazily rendered
// cards attach to the DOM before collection.
func (o *Orchestrator) scrollThrough(ctx context.Context) {
	steps := o.cfg.Crawler.ScrollSteps
	if steps <= 0 {
		steps = 10
	}

	for i := 1; i <= steps; i++ {
		if ctx.Err() != nil {
			return
		}

		if err := o.driver.ScrollTo(float64(i) / float64(steps)); err != nil {
			o.logger.WithError(err).Debug("Scroll step failed")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(o.cfg.Crawler.ScrollStepDelay):
		}
	}
}

// nextPage follows the next-page control when present and waits for result
// content on the new page. It reports whether the crawl advanced.
func (o *Orchestrator) nextPage(ctx context.Context) (bool, error) {
	controls, err := o.driver.FindAll(o.cfg.Selectors.NextPage)
	if err != nil {
		return false, err
	}
	if len(controls) == 0 {
		return false, nil
	}

	href, err := controls[0].Attribute("href")
	if err != nil {
		return false, err
	}
	if href == "" {
		return false, nil
	}
	if strings.HasPrefix(href, "/") {
		href = o.cfg.Crawler.BaseURL + href
	}

	if err := o.driver.Navigate(ctx, href); err != nil {
		return false, err
	}

	if err := o.driver.WaitForSelector(o.cfg.Selectors.JobCard, o.cfg.Crawler.ContentTimeout); err != nil {
		o.logger.WithError(err).Debug("Job cards not visible after pagination")
	}

	return true, nil
}
