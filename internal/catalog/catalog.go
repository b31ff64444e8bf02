package catalog

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"granth/internal/config"
	"granth/internal/services"
	"granth/internal/textutil"
)

// Descriptor is one book entry parsed from the catalog page.
type Descriptor struct {
	Key    string
	Title  string
	Author string
	PDFURL string
}

// Source lists the documents available for digitization.
type Source interface {
	// Slug identifies the catalog for staging-directory scoping.
	Slug() string
	// Fetch returns the current catalog entries.
	Fetch(ctx context.Context) ([]Descriptor, error)
}

// HTTPSource fetches and parses a live catalog page.
type HTTPSource struct {
	url    string
	client *resty.Client
}

// NewHTTPSource builds a catalog source from configuration.
func NewHTTPSource(cfg config.Catalog) *HTTPSource {
	client := resty.New().
		SetTimeout(time.Duration(cfg.RequestTimeout) * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second)
	return &HTTPSource{url: cfg.URL, client: client}
}

// Slug derives the catalog identifier from the page URL path, dropping any
// file extension. An unparsable URL yields "catalog".
func (s *HTTPSource) Slug() string {
	return SlugFromURL(s.url)
}

// Fetch downloads the catalog page and parses its book list.
func (s *HTTPSource) Fetch(ctx context.Context) ([]Descriptor, error) {
	resp, err := s.client.R().SetContext(ctx).Get(s.url)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "catalog", "fetch", "request catalog page", err)
	}
	if resp.IsError() {
		return nil, services.Wrap(services.ErrTransient, "catalog", "fetch",
			fmt.Sprintf("catalog page returned %s", resp.Status()), nil)
	}

	entries, err := Parse(strings.NewReader(resp.String()), s.url)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, services.Wrap(services.ErrValidation, "catalog", "parse", "no book entries found in catalog page", nil)
	}
	return entries, nil
}

// SlugFromURL converts a catalog page URL into a directory-safe slug taken
// from the last path segment without its extension.
func SlugFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Path == "" {
		return "catalog"
	}
	base := path.Base(parsed.Path)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	slug := textutil.Slugify(base)
	if slug == "" || slug == "/" {
		return "catalog"
	}
	return slug
}
