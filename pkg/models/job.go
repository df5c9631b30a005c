package models

import "time"

// ListingRecord represents a single job listing collected from a search
// results page, optionally enriched with detail-page data.
type ListingRecord struct {
	JobID           string    `json:"job_id,omitempty"`
	Title           string    `json:"title"`
	Company         string    `json:"company"`
	Location        string    `json:"location,omitempty"`
	Salary          string    `json:"salary,omitempty"`
	JobURL          string    `json:"job_url"`
	JobType         string    `json:"job_type,omitempty"`
	WorkSetting     string    `json:"work_setting,omitempty"`
	DatePosted      string    `json:"date_posted,omitempty"`
	Description     string    `json:"description,omitempty"`
	SearchURL       string    `json:"search_url,omitempty"`
	QueriedJobTitle string    `json:"queried_job_title,omitempty"`
	ScrapedAt       time.Time `json:"scraped_at"`
}

// PairKey returns the title/company identity used for deduplication when a
// listing carries no stable job ID.
func (r *ListingRecord) PairKey() string {
	return r.Title + "|" + r.Company
}
