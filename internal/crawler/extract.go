package crawler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"indeed-crawler/internal/browser"
	"indeed-crawler/internal/config"
	"indeed-crawler/pkg/models"
	"indeed-crawler/pkg/utils"
)

// ErrNotExtractable marks a card that is missing one of the required fields.
// Such cards are skipped, never turned into partial records.
var ErrNotExtractable = errors.New("card is not extractable")

// RecordExtractor turns a result card element into a ListingRecord. Field
// lookup is driven by the configured selector chains, so markup drift is a
// data change rather than a code change.
type RecordExtractor struct {
	selectors config.Selectors
	baseURL   string
	logger    *logrus.Logger
}

// NewRecordExtractor builds an extractor from the configured selector table.
func NewRecordExtractor(cfg *config.Config) *RecordExtractor {
	return &RecordExtractor{
		selectors: cfg.Selectors,
		baseURL:   cfg.Crawler.BaseURL,
		logger:    utils.GetLogger(),
	}
}

// Extract reads every card field through its selector chain and builds a
// record. It fails with ErrNotExtractable when any required field has no
// usable value. The card is only read, never mutated, so extraction is
// repeatable.
func (e *RecordExtractor) Extract(card browser.Element) (*models.ListingRecord, error) {
	fields := make(map[string]string, len(config.CardFieldOrder))
	for _, field := range config.CardFieldOrder {
		fields[field] = e.extractField(card, field)
	}

	for _, required := range config.RequiredCardFields {
		if fields[required] == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrNotExtractable, required)
		}
	}

	jobURL, jobID := utils.CanonicalizeJobURL(fields[config.FieldLink])
	if jobID == "" && strings.HasPrefix(jobURL, "/") {
		jobURL = e.baseURL + jobURL
	}

	return &models.ListingRecord{
		JobID:       jobID,
		Title:       fields[config.FieldTitle],
		Company:     fields[config.FieldCompany],
		Location:    fields[config.FieldLocation],
		Salary:      fields[config.FieldSalary],
		JobURL:      jobURL,
		JobType:     fields[config.FieldJobType],
		WorkSetting: fields[config.FieldWorkSetting],
		ScrapedAt:   time.Now().UTC(),
	}, nil
}

// extractField walks the field's selector chain in order and returns the
// first non-empty value. Optional fields simply come back empty.
func (e *RecordExtractor) extractField(card browser.Element, field string) string {
	for _, selector := range e.selectors.CardFields[field] {
		el, err := card.First(selector)
		if err != nil || el == nil {
			continue
		}

		value := e.elementValue(el, field)
		if value != "" {
			return value
		}
	}
	return ""
}

// elementValue reads the value a field takes from a matched element. Links
// read the href, titles prefer the title attribute over display text since
// the attribute carries the untruncated value.
func (e *RecordExtractor) elementValue(el browser.Element, field string) string {
	switch field {
	case config.FieldLink:
		href, err := el.Attribute("href")
		if err != nil {
			return ""
		}
		return strings.TrimSpace(href)

	case config.FieldTitle:
		if title, err := el.Attribute("title"); err == nil && strings.TrimSpace(title) != "" {
			return strings.TrimSpace(title)
		}
		text, err := el.Text()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(text)

	default:
		text, err := el.Text()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(text)
	}
}
