package models

// SearchQuery describes what to search for on the job board.
type SearchQuery struct {
	JobTitle     string `json:"job_title" validate:"required,min=2,max=200"`
	Location     string `json:"location,omitempty"`
	SearchRadius int    `json:"search_radius,omitempty" validate:"omitempty,min=1,max=200"`
	MaxPages     int    `json:"max_pages,omitempty" validate:"omitempty,min=1,max=50"`
	DaysAgo      int    `json:"days_ago,omitempty"`
	WorkSetting  string `json:"work_setting,omitempty" validate:"omitempty,oneof=remote hybrid onsite"`
	JobType      string `json:"job_type,omitempty" validate:"omitempty,oneof=full-time part-time contract temporary temp-to-hire"`
}

// CrawlOptions contains per-crawl overrides of the configured defaults.
type CrawlOptions struct {
	Headless         *bool  `json:"headless,omitempty"`
	Proxy            string `json:"proxy,omitempty"`
	UserAgent        string `json:"user_agent,omitempty"`
	FailureThreshold int    `json:"failure_threshold,omitempty" validate:"omitempty,min=1,max=20"`
	IncludeDetails   *bool  `json:"include_details,omitempty"`
}

// CrawlRequest represents an incoming crawl request.
type CrawlRequest struct {
	Query   SearchQuery   `json:"query" validate:"required"`
	Options *CrawlOptions `json:"options,omitempty"`
}
