package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCatalog()
	c.normalizeOCR()
	c.normalizeTransliteration()
	c.normalizeConverter()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.DeliveryDir, err = expandPath(c.Paths.DeliveryDir); err != nil {
		return fmt.Errorf("paths.delivery_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LedgerPath) == "" {
		c.Paths.LedgerPath = filepath.Join(c.Paths.StagingDir, "ledger.db")
	}
	if c.Paths.LedgerPath, err = expandPath(c.Paths.LedgerPath); err != nil {
		return fmt.Errorf("paths.ledger: %w", err)
	}
	if strings.TrimSpace(c.Paths.TranslitCache) == "" {
		c.Paths.TranslitCache = defaultTranslitCachePath
	}
	if c.Paths.TranslitCache, err = expandPath(c.Paths.TranslitCache); err != nil {
		return fmt.Errorf("paths.translit_cache: %w", err)
	}
	return nil
}

func (c *Config) normalizeCatalog() {
	c.Catalog.URL = strings.TrimSpace(c.Catalog.URL)
	if c.Catalog.RequestTimeout <= 0 {
		c.Catalog.RequestTimeout = defaultCatalogTimeout
	}
}

func (c *Config) normalizeOCR() {
	c.OCR.APIKey = strings.TrimSpace(c.OCR.APIKey)
	if c.OCR.APIKey == "" {
		if value, ok := os.LookupEnv("GRANTH_OCR_API_KEY"); ok {
			c.OCR.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("SARVAM_API_KEY"); ok {
			c.OCR.APIKey = strings.TrimSpace(value)
		}
	}
	c.OCR.BaseURL = strings.TrimSpace(c.OCR.BaseURL)
	if c.OCR.BaseURL == "" {
		c.OCR.BaseURL = defaultOCRBaseURL
	}
	c.OCR.Language = strings.TrimSpace(c.OCR.Language)
	if c.OCR.Language == "" {
		c.OCR.Language = defaultOCRLanguage
	}
	c.OCR.OutputFormat = strings.ToLower(strings.TrimSpace(c.OCR.OutputFormat))
	if c.OCR.OutputFormat == "" {
		c.OCR.OutputFormat = defaultOCROutputFormat
	}
	if c.OCR.PollInterval <= 0 {
		c.OCR.PollInterval = defaultOCRPollInterval
	}
	if c.OCR.PollTimeout <= 0 {
		c.OCR.PollTimeout = defaultOCRPollTimeout
	}
	if c.OCR.RequestTimeout <= 0 {
		c.OCR.RequestTimeout = defaultOCRRequestTimeout
	}
}

func (c *Config) normalizeTransliteration() {
	c.Transliteration.APIKey = strings.TrimSpace(c.Transliteration.APIKey)
	if c.Transliteration.APIKey == "" {
		if value, ok := os.LookupEnv("GRANTH_TRANSLIT_API_KEY"); ok {
			c.Transliteration.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("GEMINI_API_KEY"); ok {
			c.Transliteration.APIKey = strings.TrimSpace(value)
		}
	}
	c.Transliteration.BaseURL = strings.TrimSpace(c.Transliteration.BaseURL)
	if c.Transliteration.BaseURL == "" {
		c.Transliteration.BaseURL = defaultTranslitBaseURL
	}
	c.Transliteration.Model = strings.TrimSpace(c.Transliteration.Model)
	if c.Transliteration.Model == "" {
		c.Transliteration.Model = defaultTranslitModel
	}
	c.Transliteration.TargetScript = strings.ToLower(strings.TrimSpace(c.Transliteration.TargetScript))
	if c.Transliteration.TargetScript == "" {
		c.Transliteration.TargetScript = defaultTranslitTargetScript
	}
	if c.Transliteration.TimeoutSeconds <= 0 {
		c.Transliteration.TimeoutSeconds = defaultTranslitTimeout
	}
}

func (c *Config) normalizeConverter() {
	c.Converter.Binary = strings.TrimSpace(c.Converter.Binary)
	if c.Converter.Binary == "" {
		c.Converter.Binary = defaultConverterBinary
	}
	if c.Converter.TimeoutSeconds <= 0 {
		c.Converter.TimeoutSeconds = defaultConverterTimeout
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.RetryLimit <= 0 {
		c.Workflow.RetryLimit = defaultRetryLimit
	}
	if c.Workflow.PauseBetween < 0 {
		c.Workflow.PauseBetween = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
