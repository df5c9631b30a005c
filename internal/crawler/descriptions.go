package crawler

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"indeed-crawler/internal/browser"
	"indeed-crawler/internal/captcha"
	"indeed-crawler/internal/config"
	"indeed-crawler/pkg/models"
	"indeed-crawler/pkg/utils"
)

// recoveryRunner is the challenge recovery entry point the crawler depends
// on. captcha.Recovery satisfies it.
type recoveryRunner interface {
	Run(ctx context.Context) (captcha.Outcome, error)
}

// FallbackFetcher fetches a description through a non-browser channel once
// the browser is blocked.
type FallbackFetcher interface {
	FetchDescription(ctx context.Context, jobURL string) (string, error)
}

// DescriptionFetcher visits each record's detail page and fills in the
// description, posting date and detail fields. Failures are tolerated per
// record; a streak of consecutive failures triggers challenge recovery, and
// an aborted recovery stops the batch.
type DescriptionFetcher struct {
	cfg      *config.Config
	driver   browser.Driver
	recovery recoveryRunner
	fallback FallbackFetcher
	pacer    *Pacer
	logger   *logrus.Logger
}

// NewDescriptionFetcher builds a fetcher. fallback may be nil.
func NewDescriptionFetcher(cfg *config.Config, driver browser.Driver, recovery recoveryRunner, fallback FallbackFetcher, pacer *Pacer) *DescriptionFetcher {
	return &DescriptionFetcher{
		cfg:      cfg,
		driver:   driver,
		recovery: recovery,
		fallback: fallback,
		pacer:    pacer,
		logger:   utils.GetLogger(),
	}
}

// FetchBatch enriches records in place and returns the same slice. When the
// consecutive failure threshold is hit, recovery runs; a resolved outcome
// resumes from the record that began the failure streak, an aborted outcome
// ends the batch with whatever was already collected, handing the leftover
// records to the fallback fetcher when one is configured. Records without a
// URL are skipped with a warning.
func (f *DescriptionFetcher) FetchBatch(ctx context.Context, searchURL string, records []*models.ListingRecord) []*models.ListingRecord {
	threshold := f.cfg.Crawler.FailureThreshold
	if threshold <= 0 {
		threshold = 3
	}

	consecutiveFailures := 0
	firstFailedIndex := -1

	for i := 0; i < len(records); {
		if ctx.Err() != nil {
			return records
		}

		rec := records[i]
		if rec.JobURL == "" {
			f.logger.WithFields(logrus.Fields{
				"title":   rec.Title,
				"company": rec.Company,
			}).Warn("Record has no job URL, skipping description")
			i++
			continue
		}

		if f.fetchOne(ctx, rec) {
			consecutiveFailures = 0
			firstFailedIndex = -1
			i++
			continue
		}

		if consecutiveFailures == 0 {
			firstFailedIndex = i
		}
		consecutiveFailures++

		if consecutiveFailures < threshold {
			i++
			continue
		}

		f.logger.WithFields(logrus.Fields{
			"failures":     consecutiveFailures,
			"resume_index": firstFailedIndex,
		}).Warn("Consecutive description failures hit threshold, running challenge recovery")

		outcome, err := f.recovery.Run(ctx)
		if err != nil || outcome == captcha.OutcomeAborted {
			f.logger.WithError(err).WithField("outcome", outcome.String()).Warn("Recovery did not resolve, stopping description batch")
			f.fallbackRemaining(ctx, records[firstFailedIndex:])
			return records
		}

		// Re-walk the failure streak now that the page is usable again.
		i = firstFailedIndex
		consecutiveFailures = 0
		firstFailedIndex = -1
	}

	return records
}

// fetchOne loads a single detail page and fills the record. It reports
// success; any navigation or parse problem counts as a failure.
func (f *DescriptionFetcher) fetchOne(ctx context.Context, rec *models.ListingRecord) bool {
	if err := f.pacer.Wait(ctx, f.cfg.Crawler.DetailDelayMin, f.cfg.Crawler.DetailDelayMax); err != nil {
		return false
	}

	if err := f.driver.Navigate(ctx, rec.JobURL); err != nil {
		f.logger.WithError(err).WithField("job_url", rec.JobURL).Warn("Failed to load job detail page")
		return false
	}

	// Clear any inline challenge before reading the page.
	if err := f.driver.AttemptChallengeSolve(ctx); err != nil {
		f.logger.WithError(err).Debug("Challenge solve attempt on detail page failed")
	}

	// Sponsored listings redirect through an ad URL; recover the canonical
	// job URL from wherever we landed.
	if landed, err := f.driver.CurrentURL(); err == nil {
		if key := utils.ExtractJobKey(landed); key != "" && key != rec.JobID {
			rec.JobID = key
			rec.JobURL = utils.CanonicalJobURL(key)
		}
	}

	f.waitForDescription()

	html, err := f.driver.PageHTML()
	if err != nil {
		f.logger.WithError(err).Warn("Failed to read job detail page")
		return false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		f.logger.WithError(err).Warn("Failed to parse job detail page")
		return false
	}

	description := f.extractDescription(doc)
	if description == "" {
		f.logger.WithField("job_url", rec.JobURL).Warn("No description found on detail page")
		return false
	}

	rec.Description = description
	if rec.DatePosted == "" {
		rec.DatePosted = f.extractDatePosted(doc)
	}
	f.fillDetails(doc, rec)

	return true
}

// waitForDescription waits briefly for any description container to render.
// A miss is not fatal; the selector chain gets a second look at the HTML.
func (f *DescriptionFetcher) waitForDescription() {
	perSelector := f.cfg.Crawler.ContentTimeout / time.Duration(max(len(f.cfg.Selectors.Description), 1))
	for _, selector := range f.cfg.Selectors.Description {
		if err := f.driver.WaitForSelector(selector, perSelector); err == nil {
			return
		}
	}
}

// extractDescription walks the description selector chain, first non-empty
// text wins.
func (f *DescriptionFetcher) extractDescription(doc *goquery.Document) string {
	for _, selector := range f.cfg.Selectors.Description {
		node := doc.Find(selector).First()
		if node.Length() == 0 {
			continue
		}
		if text := strings.TrimSpace(node.Text()); text != "" {
			return text
		}
	}
	return ""
}

// extractDatePosted pulls the posting date from meta tags, falling back to
// the JSON-LD job posting blocks. Dates come back as YYYY-MM-DD.
func (f *DescriptionFetcher) extractDatePosted(doc *goquery.Document) string {
	for _, selector := range f.cfg.Selectors.DateMeta {
		content, exists := doc.Find(selector).First().Attr("content")
		if exists {
			if date := formatPostedDate(content); date != "" {
				return date
			}
		}
	}

	var date string
	doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var payload interface{}
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return true
		}
		if raw := findJSONLDDate(payload); raw != "" {
			date = formatPostedDate(raw)
			return date == ""
		}
		return true
	})

	return date
}

// findJSONLDDate digs datePosted/datePublished out of a decoded JSON-LD
// payload, which may be an object or an array of objects.
func findJSONLDDate(payload interface{}) string {
	switch v := payload.(type) {
	case map[string]interface{}:
		for _, key := range []string{"datePosted", "datePublished"} {
			if raw, ok := v[key].(string); ok && raw != "" {
				return raw
			}
		}
		if graph, ok := v["@graph"]; ok {
			return findJSONLDDate(graph)
		}
	case []interface{}:
		for _, item := range v {
			if raw := findJSONLDDate(item); raw != "" {
				return raw
			}
		}
	}
	return ""
}

// formatPostedDate normalizes the timestamp formats job pages use down to
// YYYY-MM-DD. Unparseable values are dropped.
func formatPostedDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02")
		}
	}

	// Timestamps with exotic zone suffixes still lead with the date.
	if len(raw) >= 10 && utils.FindRegexMatch(raw[:10], `^(\d{4}-\d{2}-\d{2})$`) != nil {
		return raw[:10]
	}

	return ""
}

// fillDetails reads the structured job details section for job type and work
// setting when the card left them blank.
func (f *DescriptionFetcher) fillDetails(doc *goquery.Document, rec *models.ListingRecord) {
	var section *goquery.Selection
	for _, selector := range f.cfg.Selectors.DetailsSection {
		node := doc.Find(selector).First()
		if node.Length() > 0 {
			section = node
			break
		}
	}
	if section == nil {
		return
	}

	if rec.JobType == "" {
		rec.JobType = detailValue(section, "job type")
	}
	if rec.WorkSetting == "" {
		rec.WorkSetting = detailValue(section, "work setting")
	}
}

// detailValue finds the heading matching label inside the details section
// and returns the first value listed under it.
func detailValue(section *goquery.Selection, label string) string {
	var value string
	section.Find("h3, h2").EachWithBreak(func(_ int, heading *goquery.Selection) bool {
		headingText := strings.TrimSpace(heading.Text())
		if !strings.Contains(strings.ToLower(headingText), label) {
			return true
		}

		group := heading.Parent()
		for depth := 0; depth < 2 && group.Length() > 0; depth++ {
			group.Find("span, li").EachWithBreak(func(_ int, v *goquery.Selection) bool {
				text := strings.TrimSpace(v.Text())
				if text != "" && text != headingText {
					value = text
					return false
				}
				return true
			})
			if value != "" {
				break
			}
			group = group.Parent()
		}
		return false
	})
	return value
}

// fallbackRemaining fetches descriptions for the records the browser could
// not serve through the fallback channel.
func (f *DescriptionFetcher) fallbackRemaining(ctx context.Context, remaining []*models.ListingRecord) {
	if f.fallback == nil {
		return
	}

	f.logger.WithField("remaining", len(remaining)).Info("Fetching remaining descriptions through fallback")

	for _, rec := range remaining {
		if ctx.Err() != nil {
			return
		}
		if rec.JobURL == "" || rec.Description != "" {
			continue
		}

		content, err := f.fallback.FetchDescription(ctx, rec.JobURL)
		if err != nil {
			f.logger.WithError(err).WithField("job_url", rec.JobURL).Warn("Fallback description fetch failed")
			continue
		}
		rec.Description = content
	}
}
