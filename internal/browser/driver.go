package browser

import (
	"context"
	"time"
)

// Element is a handle to a DOM element on the current page.
type Element interface {
	// Text returns the visible text content of the element.
	Text() (string, error)

	// Attribute returns the named attribute value, or "" when the element
	// does not carry it.
	Attribute(name string) (string, error)

	// First returns the first descendant matching the selector.
	First(selector string) (Element, error)
}

// Driver abstracts the single browser page a crawl runs on. The crawler and
// challenge-recovery code depend on this interface so they can be exercised
// against fakes.
type Driver interface {
	// Navigate loads the URL and waits for the page load event.
	Navigate(ctx context.Context, url string) error

	// CurrentURL returns the URL the page currently shows.
	CurrentURL() (string, error)

	// WaitForSelector blocks until an element matching the selector appears
	// or the timeout elapses.
	WaitForSelector(selector string, timeout time.Duration) error

	// FindAll returns all elements matching the selector.
	FindAll(selector string) ([]Element, error)

	// ScrollTo scrolls the viewport to the given fraction of the full page
	// height, where 1.0 is the bottom.
	ScrollTo(fraction float64) error

	// PageHTML returns the full HTML of the current page.
	PageHTML() (string, error)

	// AttemptChallengeSolve inspects the page for a verification challenge
	// and, when one is present, tries to clear it automatically. A nil
	// return does not guarantee the challenge is gone.
	AttemptChallengeSolve(ctx context.Context) error

	// Close releases the underlying browser.
	Close() error
}
