package listing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mirrorget/mirrorget/internal/retry"
	"github.com/mirrorget/mirrorget/internal/utils"
)

// File is a downloadable entry discovered by the crawler: its remote URL and
// the local path it maps to under the output root.
type File struct {
	URL       string
	LocalPath string
}

// Crawler walks an autoindex tree breadth-first and collects file entries
// without downloading them.
type Crawler struct {
	Client     *utils.HTTPClient
	Parser     Parser
	OutputRoot string

	log zerolog.Logger
}

func NewCrawler(client *utils.HTTPClient, parser Parser, outputRoot string) *Crawler {
	return &Crawler{
		Client:     client,
		Parser:     parser,
		OutputRoot: outputRoot,
		log:        utils.GetLogger("crawler"),
	}
}

type listItem struct {
	url *url.URL
	rel string
}

// Discover returns every file reachable under rawURL, preserving the
// relative path structure. If rawURL itself is a file rather than a listing,
// exactly one entry is returned. Listing URLs are visited at most once per
// run, which guards against listing loops.
func (c *Crawler) Discover(ctx context.Context, rawURL string) ([]File, error) {
	root, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if root.Scheme != "http" && root.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", root.Scheme)
	}

	queue := []listItem{{url: root, rel: ""}}
	visited := make(map[string]bool)
	var files []File
	rootPage := true

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return files, err
		}
		item := queue[0]
		queue = queue[1:]
		key := item.url.String()
		if visited[key] {
			continue
		}
		visited[key] = true

		c.log.Debug().Msgf("Scanning %s", key)
		body, contentType, err := c.fetchPage(ctx, item.url)
		if err != nil {
			if rootPage {
				return nil, fmt.Errorf("fetching root listing: %w", err)
			}
			c.log.Error().Err(err).Msgf("Skipping listing %s", key)
			continue
		}
		if rootPage && !isHTML(contentType) {
			// the supplied URL is a plain file, not a listing
			name := localName(path.Base(item.url.Path))
			if name == "" || name == "/" || name == "." {
				name = "download"
			}
			return []File{{URL: key, LocalPath: filepath.Join(c.OutputRoot, name)}}, nil
		}
		rootPage = false

		entries, err := c.Parser.Parse(bytes.NewReader(body), item.url)
		if err != nil {
			c.log.Error().Err(err).Msgf("Skipping unparseable listing %s", key)
			continue
		}
		// child hrefs resolve against the listing as a directory
		base := *item.url
		if !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}
		for _, entry := range entries {
			ref := entry.Name
			if entry.IsDir {
				ref += "/"
			}
			resolved, err := base.Parse(ref)
			if err != nil {
				continue
			}
			if resolved.Host != item.url.Host {
				continue
			}
			if resolved.RawQuery != "" {
				continue
			}
			name := localName(entry.Name)
			if name == "" {
				continue
			}
			if entry.IsDir {
				queue = append(queue, listItem{url: resolved, rel: path.Join(item.rel, name)})
			} else {
				files = append(files, File{
					URL:       resolved.String(),
					LocalPath: filepath.Join(c.OutputRoot, item.rel, name),
				})
			}
		}
	}
	return files, nil
}

func (c *Crawler) fetchPage(ctx context.Context, u *url.URL) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", err
	}
	// listing pages are small, so the whole-request probe deadline fits and
	// bounds a stalled body read
	resp, err := c.Client.DoProbe(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, "", retry.StatusError(resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func isHTML(contentType string) bool {
	return strings.Contains(contentType, "text/html")
}

// localName maps an escaped href segment to the on-disk name.
func localName(name string) string {
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	// keep entries from escaping the output root
	return filepath.Base(filepath.FromSlash(name))
}
