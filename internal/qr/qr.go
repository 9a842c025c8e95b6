// Package qr turns scan-code payloads into something a user can scan. The
// provider sends either a pre-rendered image (base64 PNG, often wrapped in a
// data URI) or a raw pairing string that still needs QR encoding.
package qr

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const dataURIPrefix = "data:image/"

// IsImagePayload reports whether the payload is a pre-rendered image rather
// than a raw pairing string.
func IsImagePayload(payload string) bool {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, dataURIPrefix) {
		return true
	}
	// Bare base64 PNGs start with the encoded PNG magic bytes.
	return strings.HasPrefix(payload, "iVBOR")
}

// DecodeImage returns the raw image bytes of a pre-rendered payload.
func DecodeImage(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if idx := strings.Index(payload, "base64,"); idx >= 0 {
		payload = payload[idx+len("base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode scan code image: %w", err)
	}
	return data, nil
}

// RenderTerminal renders a raw pairing string as a terminal QR block.
func RenderTerminal(code string) (string, error) {
	q, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("encode scan code: %w", err)
	}
	return q.ToSmallString(false), nil
}

// WritePNG writes the scan code to path as a PNG, decoding pre-rendered
// payloads and QR-encoding raw pairing strings.
func WritePNG(payload, path string) error {
	if IsImagePayload(payload) {
		data, err := DecodeImage(payload)
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0o644)
	}
	if err := qrcode.WriteFile(payload, qrcode.Medium, 256, path); err != nil {
		return fmt.Errorf("write scan code: %w", err)
	}
	return nil
}
