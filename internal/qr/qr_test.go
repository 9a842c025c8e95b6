package qr

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestIsImagePayload(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
	}{
		{"data:image/png;base64,iVBORw0KGgo=", true},
		{"iVBORw0KGgoAAAANSUhEUg==", true},
		{"2@AbCdEf123456,xyz==,abc=", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsImagePayload(tt.payload); got != tt.want {
			t.Errorf("IsImagePayload(%q) = %v, want %v", tt.payload, got, tt.want)
		}
	}
}

func TestDecodeImage(t *testing.T) {
	raw := append(append([]byte{}, pngMagic...), []byte("fakepng")...)
	encoded := base64.StdEncoding.EncodeToString(raw)

	for _, payload := range []string{
		"data:image/png;base64," + encoded,
		encoded,
	} {
		data, err := DecodeImage(payload)
		if err != nil {
			t.Fatalf("DecodeImage(%q): %v", payload, err)
		}
		if !bytes.Equal(data, raw) {
			t.Errorf("decoded bytes mismatch for %q", payload)
		}
	}

	if _, err := DecodeImage("not-base64!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestRenderTerminal(t *testing.T) {
	out, err := RenderTerminal("2@AbCdEf123456")
	if err != nil {
		t.Fatalf("RenderTerminal: %v", err)
	}
	if !strings.Contains(out, "█") {
		t.Error("terminal rendering contains no block characters")
	}
}

func TestWritePNG(t *testing.T) {
	dir := t.TempDir()

	// Raw pairing string gets QR-encoded.
	rawPath := filepath.Join(dir, "raw.png")
	if err := WritePNG("2@AbCdEf123456", rawPath); err != nil {
		t.Fatalf("WritePNG raw: %v", err)
	}
	assertPNG(t, rawPath)

	// Pre-rendered payload is decoded as-is.
	img := append(append([]byte{}, pngMagic...), []byte("fakepng")...)
	encoded := "data:image/png;base64," + base64.StdEncoding.EncodeToString(img)
	imgPath := filepath.Join(dir, "img.png")
	if err := WritePNG(encoded, imgPath); err != nil {
		t.Fatalf("WritePNG image: %v", err)
	}
	data, err := os.ReadFile(imgPath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(data, img) {
		t.Error("image payload not written verbatim")
	}
}

func assertPNG(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if !bytes.HasPrefix(data, pngMagic) {
		t.Errorf("%s is not a PNG", path)
	}
}
