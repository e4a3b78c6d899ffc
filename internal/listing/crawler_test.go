package listing

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorget/mirrorget/internal/utils"
)

func newTestCrawler(outputRoot string) *Crawler {
	return NewCrawler(utils.NewHTTPClient(utils.HTTPClientConfig{}), HTMLParser{}, outputRoot)
}

func listingPage(hrefs ...string) string {
	page := "<html><body><pre><a href=\"../\">../</a>\n"
	for _, href := range hrefs {
		page += fmt.Sprintf("<a href=%q>%s</a>\n", href, href)
	}
	return page + "</pre></body></html>"
}

func TestDiscoverRecursesAndMapsPaths(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, listingPage("a.txt", "sub/", "?C=N&O=D"))
	})
	mux.HandleFunc("/sub/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, listingPage("b.txt"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	crawler := newTestCrawler("out")
	files, err := crawler.Discover(context.Background(), server.URL+"/")
	require.NoError(t, err)

	require.Len(t, files, 2)
	assert.Equal(t, server.URL+"/a.txt", files[0].URL)
	assert.Equal(t, filepath.Join("out", "a.txt"), files[0].LocalPath)
	assert.Equal(t, server.URL+"/sub/b.txt", files[1].URL)
	assert.Equal(t, filepath.Join("out", "sub", "b.txt"), files[1].LocalPath)
}

func TestDiscoverSingleFileShortCircuit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	crawler := newTestCrawler("out")
	files, err := crawler.Discover(context.Background(), server.URL+"/release.tar.gz")
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.Equal(t, server.URL+"/release.tar.gz", files[0].URL)
	assert.Equal(t, filepath.Join("out", "release.tar.gz"), files[0].LocalPath)
}

func TestDiscoverVisitsListingOnce(t *testing.T) {
	var subHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		// the same directory linked twice must be crawled once
		fmt.Fprint(w, listingPage("sub/", "sub/"))
	})
	mux.HandleFunc("/sub/", func(w http.ResponseWriter, r *http.Request) {
		subHits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, listingPage("c.txt"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	crawler := newTestCrawler("out")
	files, err := crawler.Discover(context.Background(), server.URL+"/")
	require.NoError(t, err)

	assert.Equal(t, int32(1), subHits.Load())
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join("out", "sub", "c.txt"), files[0].LocalPath)
}

func TestDiscoverRootFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	crawler := newTestCrawler("out")
	_, err := crawler.Discover(context.Background(), server.URL+"/missing/")
	require.Error(t, err)
}

func TestDiscoverRejectsNonHTTPSchemes(t *testing.T) {
	crawler := newTestCrawler("out")
	_, err := crawler.Discover(context.Background(), "ftp://example.com/pub/")
	require.Error(t, err)
}
