package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateOCR(); err != nil {
		return err
	}
	if err := c.validateTransliteration(); err != nil {
		return err
	}
	if err := c.validateConverter(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if c.Catalog.URL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/granth/config.toml"
		}
		return fmt.Errorf("catalog.url is required. Edit %s (create with 'granth config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Catalog.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("catalog.url %q is not an absolute URL", c.Catalog.URL)
	}
	return nil
}

func (c *Config) validateOCR() error {
	if c.OCR.APIKey == "" {
		return errors.New("ocr.api_key is required. Set GRANTH_OCR_API_KEY env var or edit the config file")
	}
	if err := ensurePositiveMap(map[string]int{
		"ocr.poll_interval":       c.OCR.PollInterval,
		"ocr.poll_timeout":        c.OCR.PollTimeout,
		"ocr.request_timeout":     c.OCR.RequestTimeout,
		"catalog.request_timeout": c.Catalog.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.OCR.PollTimeout <= c.OCR.PollInterval {
		return errors.New("ocr.poll_timeout must be greater than ocr.poll_interval")
	}
	return nil
}

func (c *Config) validateTransliteration() error {
	if c.Transliteration.APIKey == "" {
		return errors.New("transliteration.api_key is required. Set GRANTH_TRANSLIT_API_KEY env var or edit the config file")
	}
	if c.Transliteration.TimeoutSeconds <= 0 {
		return errors.New("transliteration.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateConverter() error {
	if strings.TrimSpace(c.Converter.Binary) == "" {
		return errors.New("converter.binary must be set")
	}
	if c.Converter.TimeoutSeconds <= 0 {
		return errors.New("converter.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.RetryLimit < 1 {
		return errors.New("workflow.retry_limit must be >= 1")
	}
	if c.Workflow.PauseBetween < 0 {
		return errors.New("workflow.pause_between must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
