package qr

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

const defaultSize = 256

type QRGenerator struct {
	baseURL string
	size    int
}

// NewQRGenerator builds codes pointing at <baseURL>/submit/<tokenID>.
func NewQRGenerator(baseURL string, size int) *QRGenerator {
	if size <= 0 {
		size = defaultSize
	}
	return &QRGenerator{baseURL: baseURL, size: size}
}

func (q *QRGenerator) SubmitURL(tokenID string) string {
	return fmt.Sprintf("%s/submit/%s", q.baseURL, tokenID)
}

// PNG renders the submission URL for tokenID.
func (q *QRGenerator) PNG(tokenID string) ([]byte, error) {
	return qrcode.Encode(q.SubmitURL(tokenID), qrcode.Medium, q.size)
}
