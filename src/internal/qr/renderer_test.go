package qr

import (
	"bytes"
	"strings"
	"testing"

	"expense-validation-svc/src/internal/config"
	"expense-validation-svc/src/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G'}

func TestRender(t *testing.T) {
	r := NewRenderer(&config.Configuration{Qr: config.QrConfig{Size: 256}})

	png, err := r.Render("https://validator.example.com/mobile?session=abc123")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngSignature))
}

func TestRenderDefaultSize(t *testing.T) {
	r := NewRenderer(&config.Configuration{})

	png, err := r.Render("https://validator.example.com/mobile?session=abc123")
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}

func TestRenderOversizedContent(t *testing.T) {
	r := NewRenderer(&config.Configuration{})

	// Beyond QR byte-mode capacity; the sentinel tells callers apart from
	// transient failures.
	_, err := r.Render(strings.Repeat("a", 5000))
	assert.ErrorIs(t, err, models.ErrQrGeneration)
}
