package captcha

import (
	"context"
	"fmt"
	"strings"
	"time"

	api2captcha "github.com/2captcha/2captcha-go"
	"github.com/sirupsen/logrus"

	"indeed-crawler/internal/config"
	"indeed-crawler/pkg/utils"
)

// Site key markers returned by DetectChallenge alongside the extracted key.
const (
	// SiteKeyTurnstilePrefix prefixes Turnstile site keys so callers can pick
	// the right solve method.
	SiteKeyTurnstilePrefix = "turnstile:"

	// SiteKeyCloudflare marks a generic Cloudflare interstitial with no
	// extractable widget key.
	SiteKeyCloudflare = "cloudflare"
)

// Solver solves verification challenges through an external service.
type Solver interface {
	SolveRecaptcha(ctx context.Context, siteKey, pageURL string) (string, error)
	SolveTurnstile(ctx context.Context, siteKey, pageURL string) (string, error)
	IsHealthy() bool
}

// TwoCaptchaSolver implements 2CAPTCHA service integration using official library
type TwoCaptchaSolver struct {
	config *config.Config
	client *api2captcha.Client
	logger *logrus.Logger
}

// NewTwoCaptchaSolver creates a new 2CAPTCHA solver instance
func NewTwoCaptchaSolver(cfg *config.Config) *TwoCaptchaSolver {
	logger := utils.GetLogger()

	if cfg.Scraper.Captcha.APIKey == "" {
		logger.Warn("2CAPTCHA API key not configured - captcha solving will be disabled")
	} else {
		logger.WithField("api_key_length", len(cfg.Scraper.Captcha.APIKey)).Info("2CAPTCHA solver initialized with API key")
	}

	client := api2captcha.NewClient(cfg.Scraper.Captcha.APIKey)

	// Configure timeouts
	client.DefaultTimeout = int(cfg.Scraper.Captcha.Timeout.Seconds())
	client.RecaptchaTimeout = int(cfg.Scraper.Captcha.Timeout.Seconds())
	client.PollingInterval = 5 // Check every 5 seconds

	return &TwoCaptchaSolver{
		config: cfg,
		client: client,
		logger: logger,
	}
}

// SolveRecaptcha solves a reCAPTCHA challenge using 2CAPTCHA service
func (tcs *TwoCaptchaSolver) SolveRecaptcha(ctx context.Context, siteKey, pageURL string) (string, error) {
	if !tcs.config.Scraper.Captcha.EnableAutoSolve {
		return "", fmt.Errorf("captcha auto-solve is disabled")
	}

	if tcs.config.Scraper.Captcha.APIKey == "" {
		return "", fmt.Errorf("2CAPTCHA API key not configured")
	}

	tcs.logger.WithFields(logrus.Fields{
		"site_key": siteKey,
		"page_url": pageURL,
	}).Info("Starting reCAPTCHA solving with 2CAPTCHA")

	startTime := time.Now()

	captcha := api2captcha.ReCaptcha{
		SiteKey: siteKey,
		Url:     pageURL,
	}

	req := captcha.ToRequest()
	code, _, err := tcs.client.Solve(req)
	if err != nil {
		tcs.logger.WithFields(logrus.Fields{
			"site_key": siteKey,
			"page_url": pageURL,
			"error":    err.Error(),
		}).Error("Failed to solve reCAPTCHA")
		return "", fmt.Errorf("failed to solve reCAPTCHA: %w", err)
	}

	tcs.logger.WithFields(logrus.Fields{
		"site_key":     siteKey,
		"solving_time": time.Since(startTime),
	}).Info("Successfully solved reCAPTCHA")

	return code, nil
}

// SolveTurnstile solves a Cloudflare Turnstile challenge using 2CAPTCHA service
func (tcs *TwoCaptchaSolver) SolveTurnstile(ctx context.Context, siteKey, pageURL string) (string, error) {
	if !tcs.config.Scraper.Captcha.EnableAutoSolve {
		return "", fmt.Errorf("captcha auto-solve is disabled")
	}

	if tcs.config.Scraper.Captcha.APIKey == "" {
		return "", fmt.Errorf("2CAPTCHA API key not configured")
	}

	tcs.logger.WithFields(logrus.Fields{
		"site_key": siteKey,
		"page_url": pageURL,
	}).Info("Starting Cloudflare Turnstile solving with 2CAPTCHA")

	startTime := time.Now()

	captcha := api2captcha.CloudflareTurnstile{
		SiteKey: siteKey,
		Url:     pageURL,
	}

	req := captcha.ToRequest()
	code, captchaID, err := tcs.client.Solve(req)
	if err != nil {
		tcs.logger.WithFields(logrus.Fields{
			"site_key":   siteKey,
			"page_url":   pageURL,
			"captcha_id": captchaID,
			"error":      err.Error(),
		}).Error("Failed to solve Cloudflare Turnstile")
		return "", fmt.Errorf("failed to solve Cloudflare Turnstile: %w", err)
	}

	tcs.logger.WithFields(logrus.Fields{
		"site_key":     siteKey,
		"solving_time": time.Since(startTime),
	}).Info("Successfully solved Cloudflare Turnstile")

	return code, nil
}

// IsHealthy checks if the 2CAPTCHA service is available
func (tcs *TwoCaptchaSolver) IsHealthy() bool {
	if tcs.config.Scraper.Captcha.APIKey == "" {
		tcs.logger.Debug("2CAPTCHA health check failed: no API key configured")
		return false
	}

	// Check balance to verify API key is working
	balance, err := tcs.client.GetBalance()
	if err != nil {
		tcs.logger.WithError(err).Error("2CAPTCHA health check failed - API call error")
		return false
	}

	return balance >= 0
}

// DetectChallenge detects if a page contains a verification challenge. The
// returned site key carries a marker prefix for Turnstile and the generic
// Cloudflare marker when no widget key could be extracted.
func DetectChallenge(pageContent string) (bool, string, error) {
	pageContentLower := strings.ToLower(pageContent)

	// reCAPTCHA v2
	if strings.Contains(pageContentLower, "g-recaptcha") || strings.Contains(pageContentLower, "recaptcha") {
		siteKey := extractRecaptchaSiteKey(pageContent)
		if siteKey != "" {
			return true, siteKey, nil
		}
	}

	// Cloudflare Turnstile
	if strings.Contains(pageContentLower, "turnstile") || strings.Contains(pageContentLower, "cf-turnstile") {
		siteKey := extractTurnstileSiteKey(pageContent)
		if siteKey != "" {
			return true, SiteKeyTurnstilePrefix + siteKey, nil
		}
	}

	for _, indicator := range challengeIndicators {
		if strings.Contains(pageContentLower, indicator) {
			if siteKey := extractTurnstileSiteKey(pageContent); siteKey != "" {
				return true, SiteKeyTurnstilePrefix + siteKey, nil
			}
			return true, SiteKeyCloudflare, nil
		}
	}

	return false, "", nil
}

// challengeIndicators are substrings that mark interstitial and verification
// pages across the block-page variants Indeed serves.
var challengeIndicators = []string{
	"cf-challenge",
	"just a moment",
	"please wait while we verify",
	"checking your browser",
	"verify you are human",
	"additional verification required",
	"ddos protection by cloudflare",
	"enable javascript and cookies",
	"security verification",
	"cf-browser-verification",
	"__cf_chl_jschl_tk__",
	"hcaptcha",
	"performance & security by cloudflare",
}

// extractRecaptchaSiteKey extracts the reCAPTCHA site key from HTML content
func extractRecaptchaSiteKey(html string) string {
	patterns := []string{
		`data-sitekey="([^"]+)"`,
		`data-sitekey='([^']+)'`,
		`"sitekey"\s*:\s*"([^"]+)"`,
		`'sitekey'\s*:\s*'([^']+)'`,
	}

	for _, pattern := range patterns {
		if matches := utils.FindRegexMatch(html, pattern); len(matches) > 1 {
			return matches[1]
		}
	}

	return ""
}

// extractTurnstileSiteKey extracts the Cloudflare Turnstile site key from HTML content
func extractTurnstileSiteKey(html string) string {
	patterns := []string{
		`data-sitekey="([^"]+)"[^>]*(?:turnstile|cf-turnstile)`,
		`(?:turnstile|cf-turnstile)[^>]*data-sitekey="([^"]+)"`,
		`<div[^>]*class="[^"]*cf-turnstile[^"]*"[^>]*data-sitekey="([^"]+)"`,
		`window\.turnstile.*?sitekey['"]\s*:\s*['"]([^'"]+)['"]`,
		`turnstile\.render\([^)]*['"]([0-9a-zA-Z_-]{20,})['"]`,
		`cf-turnstile[^>]*data-sitekey=['"]([^'"]+)['"]`,
		`"sitekey"\s*:\s*"([^"]+)".*?turnstile`,

		// Iframe-based Cloudflare challenge pages
		`<iframe[^>]*src="[^"]*challenges\.cloudflare\.com[^"]*/(0x[0-9a-zA-Z_-]+)/[^"]*"`,
		`challenges\.cloudflare\.com[^"]*/(0x[0-9a-zA-Z_-]+)/`,
		`challenges\.cloudflare\.com[^"]*?(0x[0-9a-zA-Z_-]{20,})[^"]*`,
	}

	for _, pattern := range patterns {
		if matches := utils.FindRegexMatch(html, pattern); len(matches) > 1 {
			siteKey := strings.TrimSpace(matches[1])
			if siteKey != "" && len(siteKey) > 10 {
				return siteKey
			}
		}
	}

	return ""
}

// IsChallengeResolved checks whether the page has moved past a verification
// challenge onto real content.
func IsChallengeResolved(pageContent string) bool {
	pageContentLower := strings.ToLower(pageContent)

	for _, indicator := range challengeIndicators {
		if strings.Contains(pageContentLower, indicator) {
			return false
		}
	}

	contentIndicators := []string{
		"<title>",
		"job",
		"indeed",
		"search",
		"salary",
		"<main",
		"<nav",
		"<section",
		"<footer",
	}

	indicatorCount := 0
	for _, indicator := range contentIndicators {
		if strings.Contains(pageContentLower, indicator) {
			indicatorCount++
		}
	}

	// Multiple content markers and no challenge markers
	return indicatorCount >= 3
}
