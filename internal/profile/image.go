package profile

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxImageBytes caps the decoded size of a letterhead or signature image.
const MaxImageBytes = 5 << 20

var (
	errNotDataURL = errors.New("is not a base64 data URL")
	errTooLarge   = fmt.Errorf("exceeds %d bytes", MaxImageBytes)
)

// Image is a decoded data URL.
type Image struct {
	// Format is the decoder name reported by image.DecodeConfig
	// ("png", "jpeg", "webp", ...).
	Format string
	Width  int
	Height int
	Data   []byte
}

// DecodeImage parses a "data:<mime>;base64,<payload>" URL and checks that the
// payload is an image in a registered format.
func DecodeImage(dataURL string) (*Image, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(dataURL), "data:")
	if !ok {
		return nil, errNotDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, errNotDataURL
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageBytes {
		return nil, errTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("has an invalid base64 payload: %w", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("is not a supported image: %w", err)
	}
	return &Image{Format: format, Width: cfg.Width, Height: cfg.Height, Data: data}, nil
}

// NormalizeImage returns dataURL re-encoded so that renderers only ever see
// PNG or JPEG: PNG and JPEG payloads are kept as-is, any other registered
// format (GIF, WebP, BMP, TIFF) is decoded and re-encoded as PNG.
func NormalizeImage(dataURL string) (string, error) {
	img, err := DecodeImage(dataURL)
	if err != nil {
		return "", err
	}
	switch img.Format {
	case "png", "jpeg":
		return EncodeDataURL(img.Format, img.Data), nil
	}

	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return "", fmt.Errorf("cannot decode %s image: %w", img.Format, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, decoded); err != nil {
		return "", fmt.Errorf("cannot re-encode %s image: %w", img.Format, err)
	}
	return EncodeDataURL("png", buf.Bytes()), nil
}

// EncodeDataURL builds a base64 data URL for an image of the given format.
func EncodeDataURL(format string, data []byte) string {
	return "data:image/" + format + ";base64," + base64.StdEncoding.EncodeToString(data)
}
