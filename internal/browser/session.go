package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/sirupsen/logrus"

	"indeed-crawler/internal/captcha"
	"indeed-crawler/internal/config"
	"indeed-crawler/pkg/utils"
)

// Options are per-session overrides of the configured scraper settings.
type Options struct {
	Headless  bool
	Proxy     string
	UserAgent string
}

// Session drives a single stealth Chrome page for the duration of one crawl.
// It implements Driver.
type Session struct {
	cfg      *config.Config
	opts     Options
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	solver   captcha.Solver
	logger   *logrus.Logger
}

// NewSession launches a browser and prepares a stealth page. The caller owns
// the session and must Close it.
func NewSession(cfg *config.Config, opts Options, solver captcha.Solver) (*Session, error) {
	logger := utils.GetLogger()

	l := launcher.New().
		Headless(opts.Headless).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		// Required for Chrome inside containers
		Set("disable-gpu").
		Set("disable-dev-shm-usage")

	if chromePath := getSystemChromePath(); chromePath != "" {
		l = l.Bin(chromePath)
		logger.WithField("chrome_path", chromePath).Info("Using system Chrome browser")
	} else {
		logger.Warn("System Chrome not found, Rod will download browser")
	}

	if opts.Proxy != "" {
		l = l.Proxy(opts.Proxy)
	}

	userAgent := utils.GetStringOrDefault(opts.UserAgent, cfg.Scraper.UserAgent)
	if userAgent != "" {
		l = l.Set("user-agent", userAgent)
	}

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(url)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	s := &Session{
		cfg:      cfg,
		opts:     opts,
		launcher: l,
		browser:  b,
		solver:   solver,
		logger:   logger,
	}

	page, err := s.createStealthPage(userAgent)
	if err != nil {
		_ = b.Close()
		l.Cleanup()
		return nil, fmt.Errorf("failed to create stealth page: %w", err)
	}
	s.page = page

	return s, nil
}

// createStealthPage creates the crawl page with stealth mode enabled.
func (s *Session) createStealthPage(userAgent string) (*rod.Page, error) {
	page, err := stealth.Page(s.browser)
	if err != nil {
		return nil, err
	}

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             1920,
		Height:            1080,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to set viewport")
	}

	if userAgent != "" {
		err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent: userAgent,
		})
		if err != nil {
			s.logger.WithError(err).Warn("Failed to set user agent")
		}
	}

	headers := map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.9",
		"Accept-Encoding":           "gzip, deflate, br",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
		"Upgrade-Insecure-Requests": "1",
	}

	for name, value := range headers {
		if _, err := page.SetExtraHeaders([]string{name, value}); err != nil {
			s.logger.WithError(err).WithField("header", name).Debug("Failed to set header")
		}
	}

	err = rod.Try(func() {
		page.MustEval(`() => {
			Object.defineProperty(navigator, 'webdriver', {
				get: () => undefined,
			});
			Object.defineProperty(navigator, 'plugins', {
				get: () => [1, 2, 3, 4, 5],
			});
			Object.defineProperty(navigator, 'languages', {
				get: () => ['en-US', 'en'],
			});
			window.chrome = {
				runtime: {},
			};
			const originalQuery = window.navigator.permissions.query;
			window.navigator.permissions.query = (parameters) => (
				parameters.name === 'notifications' ?
					Promise.resolve({ state: Notification.permission }) :
					originalQuery(parameters)
			);
		}`)
	})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to inject stealth JavaScript")
	}

	return page, nil
}

// Navigate loads the URL and waits for the page load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.Scraper.RequestTimeout)
	defer cancel()

	err := rod.Try(func() {
		s.page.Context(navCtx).MustNavigate(url).MustWaitLoad()
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	s.logger.WithField("url", url).Debug("Successfully navigated to URL")
	return nil
}

// CurrentURL returns the URL the page currently shows.
func (s *Session) CurrentURL() (string, error) {
	info, err := s.page.Info()
	if err != nil {
		return "", fmt.Errorf("failed to get page info: %w", err)
	}
	return info.URL, nil
}

// WaitForSelector waits for an element to appear on the page.
func (s *Session) WaitForSelector(selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := rod.Try(func() {
		s.page.Context(ctx).MustElement(selector)
	})
	if err != nil {
		return fmt.Errorf("element with selector '%s' not found within timeout: %w", selector, err)
	}

	return nil
}

// FindAll returns all elements matching the selector.
func (s *Session) FindAll(selector string) ([]Element, error) {
	elements, err := s.page.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query selector '%s': %w", selector, err)
	}

	result := make([]Element, 0, len(elements))
	for _, el := range elements {
		result = append(result, &pageElement{el: el})
	}
	return result, nil
}

// ScrollTo scrolls the viewport to a fraction of the full page height.
func (s *Session) ScrollTo(fraction float64) error {
	err := rod.Try(func() {
		s.page.MustEval(`(f) => window.scrollTo(0, document.body.scrollHeight * f)`, fraction)
	})
	if err != nil {
		return fmt.Errorf("failed to scroll page: %w", err)
	}
	return nil
}

// PageHTML returns the full HTML content of the current page.
func (s *Session) PageHTML() (string, error) {
	html, err := s.page.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to get page HTML: %w", err)
	}
	return html, nil
}

// AttemptChallengeSolve inspects the current page for a verification
// challenge and tries to clear it with the configured solver. Generic
// Cloudflare interstitials without a solvable widget get human-behavior
// simulation instead of a token.
func (s *Session) AttemptChallengeSolve(ctx context.Context) error {
	html, err := s.PageHTML()
	if err != nil {
		return err
	}

	detected, siteKey, err := captcha.DetectChallenge(html)
	if err != nil {
		return err
	}
	if !detected {
		return nil
	}

	pageURL, err := s.CurrentURL()
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"page_url": pageURL,
		"site_key": siteKey,
	}).Info("Verification challenge detected")

	if s.solver == nil || siteKey == captcha.SiteKeyCloudflare {
		return s.simulateHumanBehavior()
	}

	if key, ok := strings.CutPrefix(siteKey, captcha.SiteKeyTurnstilePrefix); ok {
		token, err := s.solver.SolveTurnstile(ctx, key, pageURL)
		if err != nil {
			return err
		}
		return s.injectTurnstileSolution(token)
	}

	token, err := s.solver.SolveRecaptcha(ctx, siteKey, pageURL)
	if err != nil {
		return err
	}
	return s.injectCaptchaSolution(token)
}

// injectCaptchaSolution injects a reCAPTCHA token into the page and submits it.
func (s *Session) injectCaptchaSolution(solution string) error {
	js := fmt.Sprintf(`
		if (window.grecaptcha && typeof window.grecaptcha.getResponse === 'function') {
			document.getElementById('g-recaptcha-response').innerHTML = '%s';

			let recaptchaElement = document.querySelector('.g-recaptcha');
			if (recaptchaElement) {
				let callback = recaptchaElement.getAttribute('data-callback');
				if (callback && typeof window[callback] === 'function') {
					window[callback]('%s');
				}
			}
		}

		let responseElements = document.querySelectorAll('[name="g-recaptcha-response"]');
		for (let element of responseElements) {
			element.value = '%s';
			element.innerHTML = '%s';
		}

		let forms = document.querySelectorAll('form');
		for (let form of forms) {
			if (form.querySelector('.g-recaptcha') || form.querySelector('[name="g-recaptcha-response"]')) {
				form.submit();
				break;
			}
		}

		let submitButtons = document.querySelectorAll('input[type="submit"], button[type="submit"], button');
		for (let button of submitButtons) {
			if (button.textContent.toLowerCase().includes('submit') ||
				button.textContent.toLowerCase().includes('continue') ||
				button.value && button.value.toLowerCase().includes('submit')) {
				button.click();
				break;
			}
		}
	`, solution, solution, solution, solution)

	err := rod.Try(func() {
		s.page.MustEval(js)
	})
	if err != nil {
		return fmt.Errorf("failed to inject captcha solution: %w", err)
	}

	s.logger.Debug("Captcha solution injected successfully")
	return nil
}

// injectTurnstileSolution injects a Cloudflare Turnstile token into the page
// and submits it.
func (s *Session) injectTurnstileSolution(solution string) error {
	js := fmt.Sprintf(`
		let turnstileElements = document.querySelectorAll('[data-sitekey]');
		for (let element of turnstileElements) {
			if (element.closest('.cf-turnstile') || element.classList.contains('cf-turnstile')) {
				let responseInput = element.querySelector('input[name="cf-turnstile-response"]');
				if (!responseInput) {
					responseInput = document.createElement('input');
					responseInput.type = 'hidden';
					responseInput.name = 'cf-turnstile-response';
					element.appendChild(responseInput);
				}
				responseInput.value = '%s';

				let callback = element.getAttribute('data-callback');
				if (callback && typeof window[callback] === 'function') {
					window[callback]('%s');
				}
				break;
			}
		}

		let responseElements = document.querySelectorAll('input[name*="turnstile"], input[name*="cf-turnstile"]');
		for (let element of responseElements) {
			element.value = '%s';
		}

		let forms = document.querySelectorAll('form');
		for (let form of forms) {
			if (form.querySelector('.cf-turnstile') || form.querySelector('[data-sitekey]') || form.querySelector('input[name*="turnstile"]')) {
				form.submit();
				break;
			}
		}
	`, solution, solution, solution)

	err := rod.Try(func() {
		s.page.MustEval(js)
	})
	if err != nil {
		return fmt.Errorf("failed to inject Turnstile solution: %w", err)
	}

	s.logger.Debug("Turnstile solution injected successfully")
	return nil
}

// simulateHumanBehavior performs mouse, keyboard and scroll activity to help
// JavaScript challenges clear on their own.
func (s *Session) simulateHumanBehavior() error {
	err := rod.Try(func() {
		viewport := s.page.MustEval(`() => ({
			width: window.innerWidth,
			height: window.innerHeight
		})`)

		width := int(viewport.Get("width").Num())
		height := int(viewport.Get("height").Num())

		for i := 0; i < 5; i++ {
			startX := 100 + (i * 50) + (i % 3 * 100)
			startY := 100 + (i * 30) + (i % 2 * 150)
			endX := startX + 50 + (i * 20)
			endY := startY + 30 + (i * 25)

			if startX < width && startY < height && endX < width && endY < height {
				s.page.Mouse.MustMoveTo(float64(startX), float64(startY))
				time.Sleep(time.Duration(150+i*80) * time.Millisecond)
				s.page.Mouse.MustMoveTo(float64(endX), float64(endY))
				time.Sleep(time.Duration(200+i*80) * time.Millisecond)
			}
		}

		s.page.MustEval(`() => {
			window.scrollTo({top: 200, behavior: 'smooth'});
			setTimeout(() => {
				window.scrollTo({top: 0, behavior: 'smooth'});
			}, 800);
		}`)
		time.Sleep(2 * time.Second)

		s.page.MustEval(`() => {
			window.dispatchEvent(new Event('focus'));
			document.dispatchEvent(new Event('visibilitychange'));
		}`)

		// Let any JavaScript challenge finish
		time.Sleep(3 * time.Second)
	})
	if err != nil {
		return fmt.Errorf("failed to simulate human behavior: %w", err)
	}

	s.logger.Debug("Human behavior simulation completed")
	return nil
}

// Close releases the page, the browser and the launcher. Safe to call after
// a partial failure.
func (s *Session) Close() error {
	if s.page != nil {
		_ = rod.Try(func() { s.page.MustClose() })
		s.page = nil
	}

	var err error
	if s.browser != nil {
		err = s.browser.Close()
		s.browser = nil
	}

	if s.launcher != nil {
		s.launcher.Cleanup()
		s.launcher = nil
	}

	s.logger.Debug("Browser session released")
	return err
}

// getSystemChromePath finds the system-installed Chrome/Chromium browser
func getSystemChromePath() string {
	// Environment variables first (container configuration)
	if chromeBin := os.Getenv("CHROME_BIN"); chromeBin != "" {
		if _, err := os.Stat(chromeBin); err == nil {
			return chromeBin
		}
	}

	if chromePath := os.Getenv("CHROME_PATH"); chromePath != "" {
		if _, err := os.Stat(chromePath); err == nil {
			return chromePath
		}
	}

	commonPaths := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/opt/google/chrome/chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}

	for _, path := range commonPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// pageElement wraps a rod element behind the Element interface.
type pageElement struct {
	el *rod.Element
}

func (p *pageElement) Text() (string, error) {
	return p.el.Text()
}

func (p *pageElement) Attribute(name string) (string, error) {
	val, err := p.el.Attribute(name)
	if err != nil {
		return "", err
	}
	if val == nil {
		return "", nil
	}
	return *val, nil
}

func (p *pageElement) First(selector string) (Element, error) {
	el, err := p.el.Element(selector)
	if err != nil {
		return nil, err
	}
	return &pageElement{el: el}, nil
}
