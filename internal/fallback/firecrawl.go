package fallback

import (
	"context"
	"fmt"
	"time"

	"github.com/mendableai/firecrawl-go"
	"github.com/sirupsen/logrus"

	"indeed-crawler/internal/config"
	"indeed-crawler/pkg/utils"
)

// FirecrawlFetcher fetches job descriptions through the Firecrawl API. It is
// the fallback channel for records left without a description after the
// browser got blocked by an unresolved challenge.
type FirecrawlFetcher struct {
	config *config.Config
	app    *firecrawl.FirecrawlApp
	logger *logrus.Logger
}

// NewFirecrawlFetcher creates a fetcher from the firecrawl configuration.
func NewFirecrawlFetcher(cfg *config.Config) (*FirecrawlFetcher, error) {
	logger := utils.GetLogger()

	app, err := firecrawl.NewFirecrawlApp(
		cfg.Firecrawl.APIKey,
		cfg.Firecrawl.APIURL,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firecrawl: %w", err)
	}

	logger.WithField("api_url", cfg.Firecrawl.APIURL).Info("Firecrawl fallback fetcher initialized")

	return &FirecrawlFetcher{
		config: cfg,
		app:    app,
		logger: logger,
	}, nil
}

// FetchDescription scrapes a job page and returns its content, preferring
// markdown over raw HTML. Transient failures are retried with a linear
// backoff.
func (f *FirecrawlFetcher) FetchDescription(ctx context.Context, jobURL string) (string, error) {
	scrapeParams := &firecrawl.ScrapeParams{
		Formats: f.config.Firecrawl.Formats,
	}

	var scrapeResult *firecrawl.FirecrawlDocument
	var err error

	for attempt := 1; attempt <= f.config.Firecrawl.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		f.logger.WithFields(logrus.Fields{
			"attempt":     attempt,
			"max_retries": f.config.Firecrawl.MaxRetries,
			"url":         jobURL,
		}).Debug("Firecrawl scrape attempt")

		scrapeResult, err = f.app.ScrapeURL(jobURL, scrapeParams)
		if err == nil {
			break
		}

		f.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err.Error(),
		}).Info("Firecrawl scrape attempt failed")

		if attempt < f.config.Firecrawl.MaxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}

	if err != nil {
		return "", fmt.Errorf("firecrawl scraping failed after %d attempts: %w", f.config.Firecrawl.MaxRetries, err)
	}

	if scrapeResult == nil {
		return "", fmt.Errorf("no result returned from Firecrawl")
	}

	if scrapeResult.Markdown != "" {
		return scrapeResult.Markdown, nil
	}
	if scrapeResult.HTML != "" {
		return scrapeResult.HTML, nil
	}

	return "", fmt.Errorf("firecrawl returned empty content for %s", jobURL)
}
