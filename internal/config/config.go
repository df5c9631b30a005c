package config

import (
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port         int           `yaml:"port"`
		Host         string        `yaml:"host"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		IdleTimeout  time.Duration `yaml:"idle_timeout"`
	} `yaml:"server"`

	Workers struct {
		PoolSize  int `yaml:"pool_size"`
		QueueSize int `yaml:"queue_size"`
	} `yaml:"workers"`

	BackgroundTasks struct {
		TaskTimeout     time.Duration `yaml:"task_timeout"`
		CleanupInterval time.Duration `yaml:"cleanup_interval"`
		MaxTaskAge      time.Duration `yaml:"max_task_age"`
	} `yaml:"background_tasks"`

	Scraper struct {
		UserAgent      string        `yaml:"user_agent"`
		Proxy          string        `yaml:"proxy"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		HeadlessMode   bool          `yaml:"headless_mode"`
		Captcha        struct {
			Provider        string        `yaml:"provider"`
			APIKey          string        `yaml:"api_key"`
			Timeout         time.Duration `yaml:"timeout"`
			EnableAutoSolve bool          `yaml:"enable_auto_solve"`
			RetryBudget     int           `yaml:"retry_budget"`
			VerifyTimeout   time.Duration `yaml:"verify_timeout"`
			PollInterval    time.Duration `yaml:"poll_interval"`
			NeutralURL      string        `yaml:"neutral_url"`
		} `yaml:"captcha"`
	} `yaml:"scraper"`

	Crawler struct {
		BaseURL          string        `yaml:"base_url"`
		MaxPages         int           `yaml:"max_pages"`
		SearchRadius     int           `yaml:"search_radius"`
		DaysAgo          int           `yaml:"days_ago"`
		ValidDaysAgo     []int         `yaml:"valid_days_ago"`
		RateLimit        int           `yaml:"rate_limit"` // page loads per minute
		MinDelay         time.Duration `yaml:"min_delay"`
		MaxDelay         time.Duration `yaml:"max_delay"`
		PageDelayMin     time.Duration `yaml:"page_delay_min"`
		PageDelayMax     time.Duration `yaml:"page_delay_max"`
		DetailDelayMin   time.Duration `yaml:"detail_delay_min"`
		DetailDelayMax   time.Duration `yaml:"detail_delay_max"`
		ScrollSteps      int           `yaml:"scroll_steps"`
		ScrollStepDelay  time.Duration `yaml:"scroll_step_delay"`
		ContentTimeout   time.Duration `yaml:"content_timeout"`
		FailureThreshold int           `yaml:"failure_threshold"`
		IncludeDetails   bool          `yaml:"include_details"`

		WorkSettingFilters map[string]string `yaml:"work_setting_filters"`
		JobTypeFilters     map[string]string `yaml:"job_type_filters"`
	} `yaml:"crawler"`

	Selectors Selectors `yaml:"selectors"`

	Firecrawl struct {
		APIKey     string        `yaml:"api_key"`
		APIURL     string        `yaml:"api_url"`
		Timeout    time.Duration `yaml:"timeout"`
		MaxRetries int           `yaml:"max_retries"`
		Formats    []string      `yaml:"formats"`
	} `yaml:"firecrawl"`

	Redis struct {
		URL     string        `yaml:"url"`
		Enabled bool          `yaml:"enabled"`
		Timeout time.Duration `yaml:"timeout"`
		TTL     time.Duration `yaml:"ttl"`
	} `yaml:"redis"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
}

// expandEnvVars expands environment variables in a string using ${VAR} or $VAR syntax
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	re2 := regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	s = re2.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return s
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	_ = godotenv.Load()

	config := &Config{}

	// Set defaults
	config.Server.Port = 8080
	config.Server.Host = "0.0.0.0"
	config.Server.ReadTimeout = 30 * time.Second
	config.Server.WriteTimeout = 30 * time.Second
	config.Server.IdleTimeout = 60 * time.Second

	config.Workers.PoolSize = 2
	config.Workers.QueueSize = 20

	config.BackgroundTasks.TaskTimeout = 30 * time.Minute
	config.BackgroundTasks.CleanupInterval = 1 * time.Hour
	config.BackgroundTasks.MaxTaskAge = 24 * time.Hour

	config.Scraper.RequestTimeout = 30 * time.Second
	config.Scraper.HeadlessMode = true
	config.Scraper.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	config.Scraper.Captcha.Provider = "2captcha"
	config.Scraper.Captcha.Timeout = 120 * time.Second
	config.Scraper.Captcha.EnableAutoSolve = true
	config.Scraper.Captcha.RetryBudget = 3
	config.Scraper.Captcha.VerifyTimeout = 20 * time.Second
	config.Scraper.Captcha.PollInterval = 2 * time.Second
	config.Scraper.Captcha.NeutralURL = "https://www.google.com"

	config.Crawler.BaseURL = "https://www.indeed.com"
	config.Crawler.MaxPages = 3
	config.Crawler.SearchRadius = 25
	config.Crawler.DaysAgo = 7
	config.Crawler.ValidDaysAgo = []int{1, 3, 7, 14}
	config.Crawler.RateLimit = 20
	config.Crawler.MinDelay = 2 * time.Second
	config.Crawler.MaxDelay = 5 * time.Second
	config.Crawler.PageDelayMin = 3 * time.Second
	config.Crawler.PageDelayMax = 6 * time.Second
	config.Crawler.DetailDelayMin = 1500 * time.Millisecond
	config.Crawler.DetailDelayMax = 3 * time.Second
	config.Crawler.ScrollSteps = 10
	config.Crawler.ScrollStepDelay = 200 * time.Millisecond
	config.Crawler.ContentTimeout = 15 * time.Second
	config.Crawler.FailureThreshold = 3
	config.Crawler.IncludeDetails = true
	config.Crawler.WorkSettingFilters = DefaultWorkSettingFilters()
	config.Crawler.JobTypeFilters = DefaultJobTypeFilters()

	config.Selectors = DefaultSelectors()

	config.Firecrawl.APIURL = "https://api.firecrawl.dev"
	config.Firecrawl.Timeout = 60 * time.Second
	config.Firecrawl.MaxRetries = 3
	config.Firecrawl.Formats = []string{"markdown"}

	config.Redis.URL = "redis://localhost:6379"
	config.Redis.Enabled = false
	config.Redis.Timeout = 5 * time.Second
	config.Redis.TTL = 24 * time.Hour

	config.Logging.Level = "info"
	config.Logging.Format = "json"
	config.Logging.Output = "stdout"

	// Load from YAML file if it exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			// Expand environment variables in the YAML content
			yamlContent := expandEnvVars(string(data))

			if err := yaml.Unmarshal([]byte(yamlContent), config); err != nil {
				return nil, err
			}
		}
	}

	// Override with environment variables
	config.loadFromEnv()

	return config, nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if host := os.Getenv("HOST"); host != "" {
		c.Server.Host = host
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		c.Logging.Format = logFormat
	}

	if captchaAPIKey := os.Getenv("CAPTCHA_API_KEY"); captchaAPIKey != "" {
		c.Scraper.Captcha.APIKey = captchaAPIKey
	}

	// Also support 2CAPTCHA_API_KEY for compatibility
	if captchaAPIKey := os.Getenv("2CAPTCHA_API_KEY"); captchaAPIKey != "" {
		c.Scraper.Captcha.APIKey = captchaAPIKey
	}

	if proxy := os.Getenv("SCRAPER_PROXY"); proxy != "" {
		c.Scraper.Proxy = proxy
	}

	if headless := os.Getenv("SCRAPER_HEADLESS"); headless != "" {
		c.Scraper.HeadlessMode = headless == "true" || headless == "1"
	}

	if firecrawlAPIKey := os.Getenv("FIRECRAWL_API_KEY"); firecrawlAPIKey != "" {
		c.Firecrawl.APIKey = firecrawlAPIKey
	}

	if firecrawlAPIURL := os.Getenv("FIRECRAWL_API_URL"); firecrawlAPIURL != "" {
		c.Firecrawl.APIURL = firecrawlAPIURL
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.URL = redisURL
		c.Redis.Enabled = true
	}

	if redisEnabled := os.Getenv("REDIS_ENABLED"); redisEnabled != "" {
		c.Redis.Enabled = redisEnabled == "true" || redisEnabled == "1"
	}

	if redisTimeout := os.Getenv("REDIS_TIMEOUT"); redisTimeout != "" {
		if timeout, err := time.ParseDuration(redisTimeout); err == nil {
			c.Redis.Timeout = timeout
		}
	}

	if maxPages := os.Getenv("CRAWLER_MAX_PAGES"); maxPages != "" {
		if pages, err := strconv.Atoi(maxPages); err == nil {
			c.Crawler.MaxPages = pages
		}
	}

	if threshold := os.Getenv("CRAWLER_FAILURE_THRESHOLD"); threshold != "" {
		if n, err := strconv.Atoi(threshold); err == nil {
			c.Crawler.FailureThreshold = n
		}
	}
}

// ClampDaysAgo snaps a requested posting-age filter to the nearest value the
// job board accepts, falling back to the configured default.
func (c *Config) ClampDaysAgo(daysAgo int) int {
	for _, valid := range c.Crawler.ValidDaysAgo {
		if daysAgo == valid {
			return daysAgo
		}
	}
	return c.Crawler.DaysAgo
}
