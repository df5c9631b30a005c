package config

// Field names used in the card selector table. Extraction walks these in a
// fixed order so results stay deterministic.
const (
	FieldTitle       = "title"
	FieldCompany     = "company"
	FieldLocation    = "location"
	FieldSalary      = "salary"
	FieldJobType     = "job_type"
	FieldWorkSetting = "work_setting"
	FieldLink        = "link"
)

// CardFieldOrder is the order card fields are extracted in.
var CardFieldOrder = []string{
	FieldTitle,
	FieldCompany,
	FieldLocation,
	FieldSalary,
	FieldJobType,
	FieldWorkSetting,
	FieldLink,
}

// RequiredCardFields are the fields a card must yield to produce a record.
var RequiredCardFields = []string{FieldTitle, FieldCompany, FieldLink}

// Selectors holds every CSS selector the crawler uses. Indeed reworks its
// markup regularly, so each field carries an ordered fallback chain and the
// whole table is overridable from the config file.
type Selectors struct {
	JobCard    string              `yaml:"job_card"`
	NextPage   string              `yaml:"next_page"`
	CardFields map[string][]string `yaml:"card_fields"`

	Description    []string `yaml:"description"`
	DateMeta       []string `yaml:"date_meta"`
	DetailsSection []string `yaml:"details_section"`
}

// DefaultSelectors returns the selector table for Indeed's current markup.
func DefaultSelectors() Selectors {
	return Selectors{
		JobCard:  "div.job_seen_beacon, div.tapItem, [data-testid='jobListing']",
		NextPage: "a[data-testid='pagination-page-next']",
		CardFields: map[string][]string{
			FieldTitle: {
				"a.jcs-JobTitle",
				"h2.jobTitle span[title]",
				"h2.jobTitle a",
			},
			FieldCompany: {
				"[data-testid='company-name']",
				"span.companyName",
			},
			FieldLocation: {
				"[data-testid='text-location']",
				"div.companyLocation",
			},
			FieldSalary: {
				"[data-testid='attribute_snippet_testid']",
				"div.salary-snippet-container",
				"div.metadata.salary-snippet-container",
			},
			FieldJobType: {
				"[data-testid='attribute_snippet_testid']:nth-of-type(2)",
				"div.metadata:not(.salary-snippet-container)",
			},
			FieldWorkSetting: {
				"[data-testid='text-location'] span",
			},
			FieldLink: {
				"a.jcs-JobTitle",
				"h2.jobTitle a",
				"a[id^='job_']",
			},
		},
		Description: []string{
			"#jobDescriptionText",
			"[data-testid='jobDescriptionText']",
			"div.jobsearch-jobDescriptionText",
		},
		DateMeta: []string{
			"meta[itemprop='datePosted']",
			"meta[property='datePosted']",
			"meta[name='date']",
		},
		DetailsSection: []string{
			"#jobDetailsSection",
			"[data-testid='jobDetails']",
		},
	}
}

// DefaultWorkSettingFilters maps work-setting names to the query fragments
// Indeed encodes them as. Unknown settings are omitted from the search URL.
func DefaultWorkSettingFilters() map[string]string {
	return map[string]string{
		"remote": "&remotejob=032b3046-06a3-4876-8dfd-474eb5e7ed11",
		"hybrid": "&sc=0kf%3Aattr(DSQF7)%3B",
		"onsite": "",
	}
}

// DefaultJobTypeFilters maps job-type names to Indeed's attribute fragments.
func DefaultJobTypeFilters() map[string]string {
	return map[string]string{
		"full-time":    "&sc=0kf%3Aattr(CF3CP)%3B",
		"part-time":    "&sc=0kf%3Aattr(75GKK)%3B",
		"contract":     "&sc=0kf%3Aattr(NJXCK)%3B",
		"temporary":    "&sc=0kf%3Aattr(4HKF7)%3B",
		"temp-to-hire": "&sc=0kf%3Aattr(7SBAT)%3B",
	}
}
