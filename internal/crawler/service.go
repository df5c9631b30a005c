package crawler

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"

	"indeed-crawler/internal/browser"
	"indeed-crawler/internal/captcha"
	"indeed-crawler/internal/config"
	"indeed-crawler/internal/fallback"
	"indeed-crawler/pkg/models"
	"indeed-crawler/pkg/utils"
)

// Service runs crawls. Each crawl owns one exclusive browser session for its
// whole lifetime and releases it on every exit path.
type Service struct {
	cfg      *config.Config
	solver   captcha.Solver
	prompter captcha.Prompter
	fallback FallbackFetcher
	logger   *logrus.Logger
}

// NewService builds the crawl service from configuration. The challenge
// solver and firecrawl fallback are only wired when their API keys are set.
func NewService(cfg *config.Config) *Service {
	logger := utils.GetLogger()

	var solver captcha.Solver
	if cfg.Scraper.Captcha.APIKey != "" {
		solver = captcha.NewTwoCaptchaSolver(cfg)
	}

	var fb FallbackFetcher
	if cfg.Firecrawl.APIKey != "" {
		fetcher, err := fallback.NewFirecrawlFetcher(cfg)
		if err != nil {
			logger.WithError(err).Warn("Firecrawl fallback unavailable")
		} else {
			fb = fetcher
		}
	}

	return &Service{
		cfg:      cfg,
		solver:   solver,
		prompter: captcha.NewStdinPrompter(),
		fallback: fb,
		logger:   logger,
	}
}

// Crawl runs a full crawl for the request and returns the collected records.
// Configuration problems fail before a browser is launched; once crawling
// has begun the result is whatever could be collected.
func (s *Service) Crawl(ctx context.Context, req models.CrawlRequest) ([]*models.ListingRecord, error) {
	cfg := *s.cfg

	opts := browser.Options{
		Headless:  cfg.Scraper.HeadlessMode,
		Proxy:     cfg.Scraper.Proxy,
		UserAgent: cfg.Scraper.UserAgent,
	}

	if req.Options != nil {
		if req.Options.Headless != nil {
			opts.Headless = *req.Options.Headless
		}
		if req.Options.Proxy != "" {
			opts.Proxy = req.Options.Proxy
		}
		if req.Options.UserAgent != "" {
			opts.UserAgent = req.Options.UserAgent
		}
		if req.Options.FailureThreshold > 0 {
			cfg.Crawler.FailureThreshold = req.Options.FailureThreshold
		}
		if req.Options.IncludeDetails != nil {
			cfg.Crawler.IncludeDetails = *req.Options.IncludeDetails
		}
	}

	if err := validateProxy(opts.Proxy); err != nil {
		return nil, err
	}

	session, err := browser.NewSession(&cfg, opts, s.solver)
	if err != nil {
		return nil, utils.NewInternalServerError(fmt.Sprintf("failed to start browser session: %v", err))
	}
	defer session.Close()

	// Human escalation only makes sense with a visible browser window.
	var prompter captcha.Prompter
	if !opts.Headless {
		prompter = s.prompter
	}
	recovery := captcha.NewRecovery(&cfg, session, prompter)

	pacer := NewPacer(cfg.Crawler.RateLimit)
	extractor := NewRecordExtractor(&cfg)

	var fetcher batchFetcher
	if cfg.Crawler.IncludeDetails {
		fetcher = NewDescriptionFetcher(&cfg, session, recovery, s.fallback, pacer)
	}

	orch := NewOrchestrator(&cfg, session, extractor, recovery, fetcher, pacer)
	return orch.Run(ctx, req.Query)
}

// validateProxy rejects malformed proxy URLs before any browser work.
func validateProxy(proxy string) error {
	if proxy == "" {
		return nil
	}

	parsed, err := url.Parse(proxy)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return utils.NewConfigurationError(fmt.Sprintf("invalid proxy URL: %q", proxy))
	}
	return nil
}
