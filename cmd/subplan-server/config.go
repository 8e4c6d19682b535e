package main

import (
	"errors"
	"fmt"
	"strings"
	"subplan-backend/internal/scrapers/untis"
	"subplan-backend/pkg/migrations"
	"time"
)

type PlanConfig struct {
	Name    string `json:"name"`
	Dialect string `json:"dialect"`
	// Url is the template of a page url with a single integer verb for the page number,
	// like "https://example.org/monitor/subst_%03d.htm".
	Url              string  `json:"url"`
	WaveSize         int     `json:"wave_size"`
	MaxPages         int     `json:"max_pages"`
	PageTimeoutMs    int     `json:"page_timeout_ms"`
	WaveTimeoutMs    int     `json:"wave_timeout_ms"`
	RateLimit        float64 `json:"rate_limit"`
	CloudflareBypass bool    `json:"cloudflare_bypass"`
}

func (c PlanConfig) CrawlerOptions() []untis.CrawlerOption {
	var opts []untis.CrawlerOption
	if c.WaveSize > 0 {
		opts = append(opts, untis.WithWaveSize(c.WaveSize))
	}
	if c.MaxPages > 0 {
		opts = append(opts, untis.WithMaxPages(c.MaxPages))
	}
	if c.PageTimeoutMs > 0 {
		opts = append(opts, untis.WithPageTimeout(time.Duration(c.PageTimeoutMs)*time.Millisecond))
	}
	if c.WaveTimeoutMs > 0 {
		opts = append(opts, untis.WithWaveTimeout(time.Duration(c.WaveTimeoutMs)*time.Millisecond))
	}
	return opts
}

type Config struct {
	Port        int                 `json:"port"`
	AccessToken string              `json:"access_token"`
	Database    migrations.Database `json:"database"`
	// UpdateCron is a robfig/cron spec, defaults to every minute.
	UpdateCron string `json:"update_cron"`
	// CrawlLogRetentionDays defaults to 14.
	CrawlLogRetentionDays int          `json:"crawl_log_retention_days"`
	Plans                 []PlanConfig `json:"plans"`
}

func (c *Config) Validate() error {
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.UpdateCron == "" {
		c.UpdateCron = "* * * * *"
	}
	if c.CrawlLogRetentionDays <= 0 {
		c.CrawlLogRetentionDays = 14
	}
	if len(c.Plans) == 0 {
		return errors.New("no plans configured")
	}

	seen := map[string]bool{}
	for _, p := range c.Plans {
		if p.Name == "" {
			return errors.New("plan without name")
		}
		if seen[p.Name] {
			return fmt.Errorf("plan %s configured twice", p.Name)
		}
		seen[p.Name] = true

		_, err := untis.DialectByName(p.Dialect)
		if err != nil {
			return fmt.Errorf("plan %s: %w", p.Name, err)
		}
		if strings.Count(p.Url, "%") != 1 {
			return fmt.Errorf("plan %s: url must contain exactly one page number verb like %%03d", p.Name)
		}
	}
	return nil
}
