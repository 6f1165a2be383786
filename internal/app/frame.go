package app

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"gocv.io/x/gocv"

	"github.com/ayusman/fretsense/internal/cache"
)

// ErrInvalidImage is returned when an uploaded image cannot be decoded.
var ErrInvalidImage = errors.New("invalid image")

// Frame is a decoded camera frame, mirrored so that it matches what the user
// sees, together with the hash of the uploaded bytes.
type Frame struct {
	Mat    gocv.Mat
	Hash   string
	Width  int
	Height int
}

// NewFrame wraps an already decoded and mirrored image. raw is hashed for
// the lock cache.
func NewFrame(mat gocv.Mat, raw []byte) *Frame {
	return &Frame{
		Mat:    mat,
		Hash:   cache.HashBytes(raw),
		Width:  mat.Cols(),
		Height: mat.Rows(),
	}
}

// Close releases the image.
func (f *Frame) Close() error {
	return f.Mat.Close()
}

// DecodeImage decodes a base64 image, optionally wrapped in a data URL, and
// flips it horizontally.
func DecodeImage(encoded string) (*Frame, error) {
	if i := strings.IndexByte(encoded, ','); i >= 0 {
		encoded = encoded[i+1:]
	}
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidImage)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		if raw, err = base64.RawStdEncoding.DecodeString(encoded); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
	}

	return DecodeBytes(raw)
}

// DecodeBytes decodes an encoded image (JPEG, PNG, ...) and flips it
// horizontally.
func DecodeBytes(raw []byte) (*Frame, error) {
	img, err := gocv.IMDecode(raw, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("%w: undecodable", ErrInvalidImage)
	}

	mirrored := gocv.NewMat()
	gocv.Flip(img, &mirrored, 1)

	return NewFrame(mirrored, raw), nil
}
