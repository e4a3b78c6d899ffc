package listing

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Entry is one row of a directory listing page.
type Entry struct {
	Name  string // raw href with any trailing slash removed, still escaped
	IsDir bool
}

// Parser turns one autoindex page into its entries. Entries whose href ends
// in a path separator are directories; parent/self navigation and absolute
// external links must not be returned.
type Parser interface {
	Parse(r io.Reader, base *url.URL) ([]Entry, error)
}

// HTMLParser reads directory-style HTML listings (nginx autoindex, Apache
// mod_autoindex and the like) by scanning anchor tags.
type HTMLParser struct{}

func (HTMLParser) Parse(r io.Reader, base *url.URL) ([]Entry, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing listing page: %w", err)
	}
	var entries []Entry
	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || !keepHref(href) {
			return
		}
		entries = append(entries, Entry{
			Name:  strings.TrimSuffix(href, "/"),
			IsDir: strings.HasSuffix(href, "/"),
		})
	})
	return entries, nil
}

func keepHref(href string) bool {
	if href == "" || href == "/" {
		return false
	}
	// parent and self navigation
	if href == "." || href == ".." || strings.HasPrefix(href, "./") || strings.HasPrefix(href, "../") {
		return false
	}
	// query-only (sort toggles) and fragment links
	if strings.HasPrefix(href, "?") || strings.HasPrefix(href, "#") {
		return false
	}
	// absolute links: listings emit relative names, anything absolute is
	// navigation chrome or an external origin
	if strings.HasPrefix(href, "/") || strings.Contains(href, "://") || strings.HasPrefix(href, "//") {
		return false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return false
	}
	if ref.IsAbs() || ref.Host != "" {
		return false
	}
	return true
}
