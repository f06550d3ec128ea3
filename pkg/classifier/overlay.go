package classifier

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var overlayColor = color.RGBA{G: 255, A: 255}

// Annotate draws the detection box and "label (xx.x%)" onto a copy of the
// frame and returns it re-encoded as JPEG.
func Annotate(jpeg []byte, box BoundingBox, label string, confidence float64) ([]byte, error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, ErrEmptyFrame
	}

	rect := clampRect(box, img.Cols(), img.Rows())
	gocv.Rectangle(&img, rect, overlayColor, 2)

	text := OverlayLabel(label, confidence)
	origin := image.Pt(rect.Min.X, rect.Min.Y-10)
	if origin.Y < 12 {
		origin.Y = rect.Max.Y + 18
	}
	gocv.PutText(&img, text, origin, gocv.FontHersheySimplex, 0.5, overlayColor, 1)

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// OverlayLabel formats the operator-facing caption for a detection.
func OverlayLabel(label string, confidence float64) string {
	return fmt.Sprintf("%s (%.1f%%)", label, confidence*100)
}
