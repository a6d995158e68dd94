package ecommerce

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// WooCommerceConfig holds REST credentials for one WooCommerce store
type WooCommerceConfig struct {
	// BaseURL is the store root, e.g. https://shop.example.com
	BaseURL string
	// ConsumerKey and ConsumerSecret are a read-only REST API key pair
	ConsumerKey    string
	ConsumerSecret string
	Timeout        time.Duration
	// PerPage is the page size for product and variation listings (max 100)
	PerPage int
	// MaxRetries bounds retries on 429 and 5xx responses
	MaxRetries int
	// RetryBackoff is the first retry delay; it doubles per attempt
	RetryBackoff time.Duration
}

const (
	wooAPIPath         = "/wp-json/wc/v3"
	wooMaxPerPage      = 100
	defaultWooPerPage  = 50
	defaultWooTimeout  = 30 * time.Second
	defaultWooRetries  = 3
	defaultWooBackoff  = 500 * time.Millisecond
	maxWooResponseSize = 10 * 1024 * 1024
)

// Errors for WooCommerce configuration
var (
	ErrWooConfigMissingBaseURL = errors.New("woocommerce: base URL is required")
	ErrWooConfigInvalidBaseURL = errors.New("woocommerce: base URL must be an absolute http(s) URL")
	ErrWooConfigMissingKey     = errors.New("woocommerce: consumer key is required")
	ErrWooConfigMissingSecret  = errors.New("woocommerce: consumer secret is required")
)

// Validate checks required fields and fills defaults
func (c *WooCommerceConfig) Validate() error {
	if c.BaseURL == "" {
		return ErrWooConfigMissingBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrWooConfigInvalidBaseURL
	}
	if c.ConsumerKey == "" {
		return ErrWooConfigMissingKey
	}
	if c.ConsumerSecret == "" {
		return ErrWooConfigMissingSecret
	}

	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = defaultWooTimeout
	}
	if c.PerPage <= 0 {
		c.PerPage = defaultWooPerPage
	}
	if c.PerPage > wooMaxPerPage {
		c.PerPage = wooMaxPerPage
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = defaultWooRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultWooBackoff
	}
	return nil
}

func (c *WooCommerceConfig) endpoint(path string) string {
	return c.BaseURL + wooAPIPath + path
}
