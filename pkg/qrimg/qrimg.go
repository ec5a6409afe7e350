// Package qrimg renders pairing payloads as inline QR images.
package qrimg

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the rendered image edge length in pixels.
const DefaultSize = 256

// Encode renders the payload as a PNG QR code and returns it as a
// data:image/png;base64 URI suitable for an <img> src attribute.
func Encode(payload string, size int) (string, error) {
	if payload == "" {
		return "", fmt.Errorf("qrimg: empty payload")
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("qrimg: encode failed: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
