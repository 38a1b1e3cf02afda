package qr

import (
	"expense-validation-svc/src/internal/config"
	"expense-validation-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"
)

// Renderer encodes a URL into a displayable QR image.
type Renderer interface {
	Render(url string) ([]byte, error)
}

type pngRenderer struct {
	size int
}

func NewRenderer(cfg *config.Configuration) Renderer {
	size := cfg.Qr.Size
	if size <= 0 {
		size = 256
	}
	return &pngRenderer{size: size}
}

func (r *pngRenderer) Render(url string) ([]byte, error) {
	png, err := qrcode.Encode(url, qrcode.Medium, r.size)
	if err != nil {
		logrus.WithError(err).WithField("url", url).Error("Failed to encode QR code")
		return nil, models.ErrQrGeneration
	}
	return png, nil
}
