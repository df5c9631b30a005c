package captcha

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"indeed-crawler/internal/config"
	"indeed-crawler/pkg/utils"
)

// Outcome is the terminal result of a recovery run.
type Outcome int

const (
	// OutcomeResolved means the page is usable again, either because no
	// challenge was present or because one was cleared.
	OutcomeResolved Outcome = iota

	// OutcomeAborted means the challenge could not be cleared and the crawl
	// should stop collecting through the browser.
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeResolved:
		return "resolved"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// recovery states
type recoveryState int

const (
	stateChecking recoveryState = iota
	stateAutomatedAttempt
	stateVerify
	stateEscalate
	stateHumanWait
)

// PageDriver is the slice of browser capability recovery needs. The rod
// session satisfies it.
type PageDriver interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL() (string, error)
	PageHTML() (string, error)
	AttemptChallengeSolve(ctx context.Context) error
}

// Recovery runs the challenge recovery state machine over a page: detect,
// attempt an automated solve, verify, retry within a bounded budget, then
// escalate to a human or abort.
type Recovery struct {
	driver        PageDriver
	prompter      Prompter
	retryBudget   int
	verifyTimeout time.Duration
	pollInterval  time.Duration
	neutralURL    string
	logger        *logrus.Logger
}

// NewRecovery builds a Recovery from the captcha configuration. A nil
// prompter puts recovery in unattended mode, where escalation aborts.
func NewRecovery(cfg *config.Config, driver PageDriver, prompter Prompter) *Recovery {
	return &Recovery{
		driver:        driver,
		prompter:      prompter,
		retryBudget:   cfg.Scraper.Captcha.RetryBudget,
		verifyTimeout: cfg.Scraper.Captcha.VerifyTimeout,
		pollInterval:  cfg.Scraper.Captcha.PollInterval,
		neutralURL:    cfg.Scraper.Captcha.NeutralURL,
		logger:        utils.GetLogger(),
	}
}

// Run drives the state machine to a terminal outcome. It performs at most
// retryBudget+1 automated attempts. A page without a challenge resolves
// immediately. Context cancellation aborts from any state.
func (r *Recovery) Run(ctx context.Context) (Outcome, error) {
	attempts := 0
	state := stateChecking

	for {
		if ctx.Err() != nil {
			return OutcomeAborted, ctx.Err()
		}

		switch state {
		case stateChecking:
			html, err := r.driver.PageHTML()
			if err != nil {
				r.logger.WithError(err).Error("Failed to read page during challenge check")
				return OutcomeAborted, err
			}

			detected, siteKey, err := DetectChallenge(html)
			if err != nil {
				return OutcomeAborted, err
			}
			if !detected {
				return OutcomeResolved, nil
			}

			r.logger.WithField("site_key", siteKey).Info("Challenge detected, starting recovery")
			state = stateAutomatedAttempt

		case stateAutomatedAttempt:
			attempts++
			r.logger.WithFields(logrus.Fields{
				"attempt": attempts,
				"budget":  r.retryBudget + 1,
			}).Info("Attempting automated challenge solve")

			// Solve errors never short-circuit: verification decides.
			if err := r.driver.AttemptChallengeSolve(ctx); err != nil {
				r.logger.WithError(err).Warn("Automated challenge solve attempt failed")
			}
			state = stateVerify

		case stateVerify:
			cleared, err := r.verify(ctx)
			if err != nil {
				return OutcomeAborted, err
			}
			if cleared {
				r.logger.WithField("attempts", attempts).Info("Challenge resolved automatically")
				return OutcomeResolved, nil
			}
			if attempts < r.retryBudget+1 {
				state = stateAutomatedAttempt
			} else {
				state = stateEscalate
			}

		case stateEscalate:
			if r.prompter == nil {
				r.logger.WithField("attempts", attempts).Warn("Challenge unresolved and no human available, aborting")
				return OutcomeAborted, nil
			}
			state = stateHumanWait

		case stateHumanWait:
			return r.humanWait(ctx)
		}
	}
}

// verify polls the page until the challenge clears or the verify timeout
// elapses.
func (r *Recovery) verify(ctx context.Context) (bool, error) {
	deadline := time.Now().Add(r.verifyTimeout)

	for {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		html, err := r.driver.PageHTML()
		if err != nil {
			r.logger.WithError(err).Warn("Failed to read page during challenge verification")
		} else if IsChallengeResolved(html) {
			return true, nil
		}

		if time.Now().After(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}
}

// humanWait parks the browser on a neutral page, blocks on the human
// continue signal, then restores the original URL.
func (r *Recovery) humanWait(ctx context.Context) (Outcome, error) {
	originalURL, err := r.driver.CurrentURL()
	if err != nil {
		r.logger.WithError(err).Warn("Failed to record URL before human escalation")
	}

	if r.neutralURL != "" {
		if err := r.driver.Navigate(ctx, r.neutralURL); err != nil {
			r.logger.WithError(err).Warn("Failed to navigate to neutral page before human escalation")
		}
	}

	r.logger.Info("Escalating challenge to human operator")
	if err := r.prompter.WaitForContinue(ctx); err != nil {
		r.logger.WithError(err).Warn("Human continue signal not received")
		return OutcomeAborted, err
	}

	if originalURL != "" {
		if err := r.driver.Navigate(ctx, originalURL); err != nil {
			r.logger.WithError(err).Error("Failed to restore original URL after human intervention")
			return OutcomeAborted, err
		}
	}

	r.logger.Info("Challenge resolved by human operator")
	return OutcomeResolved, nil
}
