// Package qr renders the check-in QR code a paid customer shows at the
// door.  The image encodes the booking code and nothing else.
package qr

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"

	"github.com/skip2/go-qrcode"
)

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 256

// Renderer turns booking codes into PNG images.
type Renderer struct {
	Size  int
	Level qrcode.RecoveryLevel
}

// NewRenderer returns a Renderer producing size x size images with medium
// error recovery.
func NewRenderer(size int) *Renderer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Renderer{Size: size, Level: qrcode.Medium}
}

// PNG encodes code as a QR image.
func (r *Renderer) PNG(code string) ([]byte, error) {
	if code == "" {
		return nil, errors.New("qr: empty booking code")
	}
	q, err := qrcode.New(code, r.Level)
	if err != nil {
		return nil, fmt.Errorf("qr: encode %s: %w", code, err)
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, q.Image(r.Size)); err != nil {
		return nil, fmt.Errorf("qr: png %s: %w", code, err)
	}
	return buf.Bytes(), nil
}
