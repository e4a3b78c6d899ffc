package utils

import (
	"net"
	"net/http"
	"net/url"
	"time"
)

type HTTPClientConfig struct {
	Timeout       time.Duration // read-inactivity ceiling for transfer bodies
	ProbeTimeout  time.Duration // whole-request ceiling for metadata fetches
	KATimeout     time.Duration
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string
	UserAgent     string
	Headers       map[string]string
}

type HTTPClient struct {
	client      *http.Client
	probeClient *http.Client
	config      HTTPClientConfig
}

func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 60 * time.Second
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: cfg.Timeout,
		IdleConnTimeout:       cfg.KATimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		DisableCompression:    true,
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err == nil {
			if cfg.ProxyUsername != "" {
				if cfg.ProxyPassword != "" {
					proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
				} else {
					proxyURL.User = url.User(cfg.ProxyUsername)
				}
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &HTTPClient{
		// the transfer client carries no total deadline: a large file may
		// legitimately stream for longer than any fixed timeout. Dial and
		// header waits are bounded by the transport; body stalls are cut by
		// the caller via ReadIdleTimeout.
		client: &http.Client{
			Transport: transport,
		},
		probeClient: &http.Client{
			Timeout:   cfg.ProbeTimeout,
			Transport: transport,
		},
		config: cfg,
	}
}

func (c *HTTPClient) decorate(req *http.Request) {
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	} else {
		req.Header.Set("User-Agent", ToolUserAgent)
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
}

func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.decorate(req)
	return c.client.Do(req)
}

// DoProbe issues a request under the short whole-request metadata deadline.
// The underlying transport is shared with Do for connection reuse.
func (c *HTTPClient) DoProbe(req *http.Request) (*http.Response, error) {
	c.decorate(req)
	return c.probeClient.Do(req)
}

// ReadIdleTimeout is the longest a transfer body read may stall before the
// caller should abort it. Total transfer time is unbounded.
func (c *HTTPClient) ReadIdleTimeout() time.Duration {
	return c.config.Timeout
}
