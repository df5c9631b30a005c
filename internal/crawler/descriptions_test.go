package crawler

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indeed-crawler/internal/captcha"
	"indeed-crawler/pkg/models"
	"indeed-crawler/pkg/utils"
)

const detailPageHTML = `<html><head>
<meta itemprop="datePosted" content="2025-03-01T10:00:00Z">
</head><body>
<div id="jobDescriptionText">We build rockets.</div>
</body></html>`

const emptyPageHTML = `<html><body><div class="unrelated"></div></body></html>`

func detailRecords(keys ...string) []*models.ListingRecord {
	records := make([]*models.ListingRecord, 0, len(keys))
	for _, key := range keys {
		records = append(records, &models.ListingRecord{
			JobID:   key,
			Title:   "Engineer " + key,
			Company: "Acme",
			JobURL:  utils.CanonicalJobURL(key),
		})
	}
	return records
}

func TestFetchBatch(t *testing.T) {
	t.Run("fills every record", func(t *testing.T) {
		cfg := testConfig()
		driver := newFakeDriver(cfg)
		records := detailRecords("jk0", "jk1")
		for _, rec := range records {
			driver.setPage(rec.JobURL, detailPageHTML)
		}

		recovery := &fakeRecovery{}
		f := NewDescriptionFetcher(cfg, driver, recovery, nil, NewPacer(cfg.Crawler.RateLimit))

		out := f.FetchBatch(context.Background(), "search", records)

		require.Len(t, out, 2)
		for _, rec := range out {
			assert.Equal(t, "We build rockets.", rec.Description)
			assert.Equal(t, "2025-03-01", rec.DatePosted)
		}
		assert.Zero(t, recovery.runs)
	})

	t.Run("resumes from start of failure streak after recovery", func(t *testing.T) {
		cfg := testConfig()
		driver := newFakeDriver(cfg)
		records := detailRecords("jk0", "jk1", "jk2", "jk3", "jk4")
		driver.setPage(records[0].JobURL, detailPageHTML)
		driver.setPage(records[4].JobURL, detailPageHTML)
		for _, rec := range records[1:4] {
			driver.setPage(rec.JobURL, emptyPageHTML)
		}

		recovery := &fakeRecovery{
			onRun: func(int) {
				for _, rec := range records[1:4] {
					driver.setPage(rec.JobURL, detailPageHTML)
				}
			},
		}
		f := NewDescriptionFetcher(cfg, driver, recovery, nil, NewPacer(cfg.Crawler.RateLimit))

		f.FetchBatch(context.Background(), "search", records)

		assert.Equal(t, 1, recovery.runs)
		for _, rec := range records {
			assert.Equal(t, "We build rockets.", rec.Description, "record %s", rec.JobID)
		}
	})

	t.Run("aborted recovery stops the batch and hands off to fallback", func(t *testing.T) {
		cfg := testConfig()
		driver := newFakeDriver(cfg)
		records := detailRecords("jk0", "jk1", "jk2", "jk3", "jk4")
		driver.setPage(records[0].JobURL, detailPageHTML)
		for _, rec := range records[1:] {
			driver.setPage(rec.JobURL, emptyPageHTML)
		}

		recovery := &fakeRecovery{outcomes: []captcha.Outcome{captcha.OutcomeAborted}}
		fallback := &fakeFallback{content: "fallback description"}
		f := NewDescriptionFetcher(cfg, driver, recovery, fallback, NewPacer(cfg.Crawler.RateLimit))

		f.FetchBatch(context.Background(), "search", records)

		assert.Equal(t, 1, recovery.runs)
		assert.Equal(t, "We build rockets.", records[0].Description)
		for _, rec := range records[1:] {
			assert.Equal(t, "fallback description", rec.Description, "record %s", rec.JobID)
		}
		assert.Len(t, fallback.urls, 4)
	})

	t.Run("aborted recovery without fallback leaves records bare", func(t *testing.T) {
		cfg := testConfig()
		driver := newFakeDriver(cfg)
		records := detailRecords("jk0", "jk1", "jk2")
		for _, rec := range records {
			driver.setPage(rec.JobURL, emptyPageHTML)
		}

		recovery := &fakeRecovery{outcomes: []captcha.Outcome{captcha.OutcomeAborted}}
		f := NewDescriptionFetcher(cfg, driver, recovery, nil, NewPacer(cfg.Crawler.RateLimit))

		out := f.FetchBatch(context.Background(), "search", records)

		require.Len(t, out, 3)
		for _, rec := range out {
			assert.Empty(t, rec.Description)
		}
	})

	t.Run("records without a URL are skipped", func(t *testing.T) {
		cfg := testConfig()
		driver := newFakeDriver(cfg)
		records := detailRecords("jk0")
		records = append(records, &models.ListingRecord{Title: "No URL", Company: "Acme"})
		driver.setPage(records[0].JobURL, detailPageHTML)

		recovery := &fakeRecovery{}
		f := NewDescriptionFetcher(cfg, driver, recovery, nil, NewPacer(cfg.Crawler.RateLimit))

		f.FetchBatch(context.Background(), "search", records)

		assert.Equal(t, "We build rockets.", records[0].Description)
		assert.Empty(t, records[1].Description)
		assert.Zero(t, recovery.runs)
	})

	t.Run("isolated failures never trigger recovery", func(t *testing.T) {
		cfg := testConfig()
		driver := newFakeDriver(cfg)
		records := detailRecords("jk0", "jk1", "jk2", "jk3")
		driver.setPage(records[0].JobURL, detailPageHTML)
		driver.setPage(records[1].JobURL, emptyPageHTML)
		driver.setPage(records[2].JobURL, detailPageHTML)
		driver.setPage(records[3].JobURL, emptyPageHTML)

		recovery := &fakeRecovery{}
		f := NewDescriptionFetcher(cfg, driver, recovery, nil, NewPacer(cfg.Crawler.RateLimit))

		f.FetchBatch(context.Background(), "search", records)

		assert.Zero(t, recovery.runs)
		assert.Equal(t, "We build rockets.", records[0].Description)
		assert.Empty(t, records[1].Description)
	})

	t.Run("sponsored redirect recanonicalized from landed URL", func(t *testing.T) {
		cfg := testConfig()
		driver := newFakeDriver(cfg)
		adURL := "https://www.indeed.com/pagead/clk?mo=r&ad=xyz&jk=spons99"
		rec := &models.ListingRecord{Title: "Engineer", Company: "Acme", JobURL: adURL}
		driver.setPage(adURL, detailPageHTML)

		f := NewDescriptionFetcher(cfg, driver, &fakeRecovery{}, nil, NewPacer(cfg.Crawler.RateLimit))

		f.FetchBatch(context.Background(), "search", []*models.ListingRecord{rec})

		assert.Equal(t, "spons99", rec.JobID)
		assert.Equal(t, "https://www.indeed.com/viewjob?jk=spons99", rec.JobURL)
		assert.Equal(t, "We build rockets.", rec.Description)
	})
}

func TestExtractDatePosted(t *testing.T) {
	cfg := testConfig()
	f := NewDescriptionFetcher(cfg, nil, nil, nil, nil)

	parse := func(t *testing.T, html string) *goquery.Document {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		require.NoError(t, err)
		return doc
	}

	t.Run("meta tag", func(t *testing.T) {
		doc := parse(t, `<html><head><meta itemprop="datePosted" content="2025-03-01T10:00:00Z"></head></html>`)
		assert.Equal(t, "2025-03-01", f.extractDatePosted(doc))
	})

	t.Run("json-ld object", func(t *testing.T) {
		doc := parse(t, `<html><body><script type="application/ld+json">
{"@type": "JobPosting", "datePosted": "2025-02-14"}
</script></body></html>`)
		assert.Equal(t, "2025-02-14", f.extractDatePosted(doc))
	})

	t.Run("json-ld graph", func(t *testing.T) {
		doc := parse(t, `<html><body><script type="application/ld+json">
{"@graph": [{"@type": "WebPage"}, {"@type": "JobPosting", "datePublished": "2025-02-14T08:30:00Z"}]}
</script></body></html>`)
		assert.Equal(t, "2025-02-14", f.extractDatePosted(doc))
	})

	t.Run("nothing present", func(t *testing.T) {
		doc := parse(t, `<html><body><p>hi</p></body></html>`)
		assert.Empty(t, f.extractDatePosted(doc))
	})
}

func TestFormatPostedDate(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"2025-03-01T10:00:00Z", "2025-03-01"},
		{"2025-03-01T10:00:00+02:00", "2025-03-01"},
		{"2025-03-01T10:00:00", "2025-03-01"},
		{"2025-03-01", "2025-03-01"},
		{"2025-03-01T10:00:00+0000", "2025-03-01"},
		{"  2025-03-01  ", "2025-03-01"},
		{"yesterday", ""},
		{"", ""},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, formatPostedDate(tc.raw), "raw=%q", tc.raw)
	}
}

func TestFillDetails(t *testing.T) {
	cfg := testConfig()
	f := NewDescriptionFetcher(cfg, nil, nil, nil, nil)

	html := `<html><body><div id="jobDetailsSection">
<div><h3>Job type</h3><ul><li>Full-time</li></ul></div>
<div><h3>Work setting</h3><ul><li>Remote</li></ul></div>
</div></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	t.Run("fills blanks", func(t *testing.T) {
		rec := &models.ListingRecord{}
		f.fillDetails(doc, rec)

		assert.Equal(t, "Full-time", rec.JobType)
		assert.Equal(t, "Remote", rec.WorkSetting)
	})

	t.Run("card values kept", func(t *testing.T) {
		rec := &models.ListingRecord{JobType: "Contract", WorkSetting: "Hybrid"}
		f.fillDetails(doc, rec)

		assert.Equal(t, "Contract", rec.JobType)
		assert.Equal(t, "Hybrid", rec.WorkSetting)
	})

	t.Run("no details section is a no-op", func(t *testing.T) {
		bare, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body></body></html>"))
		require.NoError(t, err)

		rec := &models.ListingRecord{}
		f.fillDetails(bare, rec)
		assert.Empty(t, rec.JobType)
	})
}
