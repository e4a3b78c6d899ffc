package utils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLoggerTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)

	logger := GetLogger("crawler")
	logger.Info().Msg("scan started")

	out := buf.String()
	assert.Contains(t, out, "component=crawler")
	assert.Contains(t, out, "scan started")
}
