// Package classifier wraps facial-expression inference engines behind a
// single capability interface.
//
// A Classifier takes one camera frame and returns at most one Detection: the
// primary face with a score for every native expression label the engine
// knows. Engines are opaque; anything that satisfies Infer can be swapped in,
// including the scripted Mock used by tests.
package classifier

import (
	"context"
	"time"
)

// Frame is a single JPEG-encoded image sample. Frames are consumed once and
// never retained.
type Frame struct {
	JPEG       []byte
	CapturedAt time.Time
}

// BoundingBox is a face region in pixel coordinates of the source frame.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the area of the box.
func (b BoundingBox) Area() float64 {
	return b.Width * b.Height
}

// Center returns the center point of the box.
func (b BoundingBox) Center() (x, y float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Detection is one face with its expression distribution.
type Detection struct {
	Box BoundingBox `json:"box"`

	// FaceScore is the face detector's confidence, when the engine reports one.
	FaceScore float64 `json:"face_score,omitempty"`

	// Scores maps native expression labels to probabilities in [0,1].
	Scores map[string]float64 `json:"scores"`
}

// Top returns the label with the highest score. Equal scores resolve to the
// lexically smallest label so the result does not depend on map order.
func (d Detection) Top() (string, float64) {
	var (
		best      string
		bestScore = -1.0
	)
	for label, score := range d.Scores {
		if score > bestScore || (score == bestScore && label < best) {
			best, bestScore = label, score
		}
	}
	if bestScore < 0 {
		return "", 0
	}
	return best, bestScore
}

// Classifier is the inference capability.
type Classifier interface {
	// Infer classifies the primary face in the frame. It returns a nil
	// Detection and nil error when no face is present.
	Infer(ctx context.Context, frame Frame) (*Detection, error)

	// Close releases engine resources.
	Close() error
}

// SelectPrimary picks the face to classify when an engine reports several.
// The largest bounding box wins; equal areas fall back to the higher face
// score, then to engine order.
func SelectPrimary(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}
	if len(dets) == 1 {
		return &dets[0]
	}

	best := &dets[0]
	for i := 1; i < len(dets); i++ {
		d := &dets[i]
		switch {
		case d.Box.Area() > best.Box.Area():
			best = d
		case d.Box.Area() == best.Box.Area() && d.FaceScore > best.FaceScore:
			best = d
		}
	}
	return best
}
