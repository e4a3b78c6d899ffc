package listing

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureListing = `<html>
<head><title>Index of /data/</title></head>
<body bgcolor="white">
<h1>Index of /data/</h1><hr><pre><a href="../">../</a>
<a href="?C=N&amp;O=D">Name</a>
<a href="a.txt">a.txt</a>                                        06-Mar-2025 11:22     312
<a href="sub/">sub/</a>                                          06-Mar-2025 11:20       -
<a href="http://mirror.example.org/data/">mirror</a>
<a href="/">Home</a>
<a href="#top">top</a>
</pre><hr></body>
</html>`

func TestParseFiltersNavigationLinks(t *testing.T) {
	base, _ := url.Parse("http://example.com/data/")
	entries, err := HTMLParser{}.Parse(strings.NewReader(fixtureListing), base)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Name: "a.txt", IsDir: false}, entries[0])
	assert.Equal(t, Entry{Name: "sub", IsDir: true}, entries[1])
}

func TestParseEmptyPage(t *testing.T) {
	base, _ := url.Parse("http://example.com/")
	entries, err := HTMLParser{}.Parse(strings.NewReader("<html><body></body></html>"), base)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseEscapedNames(t *testing.T) {
	base, _ := url.Parse("http://example.com/")
	page := `<a href="my%20file.bin">my file.bin</a>`
	entries, err := HTMLParser{}.Parse(strings.NewReader(page), base)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	// the raw escaped form is kept for URL resolution
	assert.Equal(t, "my%20file.bin", entries[0].Name)
	assert.False(t, entries[0].IsDir)
}
