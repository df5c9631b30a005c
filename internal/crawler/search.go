package crawler

import (
	"fmt"
	"net/url"

	"indeed-crawler/internal/config"
	"indeed-crawler/pkg/models"
)

// BuildSearchURL assembles the search results URL for a query. Filter values
// the job board does not understand are silently omitted, and the posting-age
// filter is clamped to the values the board accepts.
func BuildSearchURL(cfg *config.Config, query models.SearchQuery) string {
	radius := query.SearchRadius
	if radius <= 0 {
		radius = cfg.Crawler.SearchRadius
	}

	fromage := cfg.ClampDaysAgo(query.DaysAgo)

	searchURL := fmt.Sprintf("%s/jobs?q=%s&l=%s&radius=%d&fromage=%d",
		cfg.Crawler.BaseURL,
		url.QueryEscape(query.JobTitle),
		url.QueryEscape(query.Location),
		radius,
		fromage,
	)

	if fragment, ok := cfg.Crawler.WorkSettingFilters[query.WorkSetting]; ok {
		searchURL += fragment
	}

	if fragment, ok := cfg.Crawler.JobTypeFilters[query.JobType]; ok {
		searchURL += fragment
	}

	return searchURL
}
