package classifier

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/moodbox/internal/log"
)

// ferPlusLabels is the output order of the FER+ network, renamed to the
// labels the mood mapper understands.
var ferPlusLabels = []string{
	"neutral", "happy", "surprised", "sad", "angry", "disgusted", "fearful", "contempt",
}

// GoCV runs face detection (YuNet) and expression classification (FER+)
// locally through OpenCV.
type GoCV struct {
	detector gocv.FaceDetectorYN
	net      gocv.Net
	config   Config
	mu       sync.Mutex // Protects inference
	closed   bool
}

// NewGoCV loads both models. Missing or unreadable model files yield
// ErrInferenceUnavailable.
func NewGoCV(cfg Config) (*GoCV, error) {
	for _, path := range []string{cfg.FaceModelPath, cfg.ExpressionModelPath} {
		if _, err := os.Stat(path); err != nil {
			return nil, unavailable("gocv", fmt.Errorf("model file: %w", err))
		}
	}

	net := gocv.ReadNetFromONNX(cfg.ExpressionModelPath)
	if net.Empty() {
		return nil, unavailable("gocv", fmt.Errorf("cannot load %s", cfg.ExpressionModelPath))
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, unavailable("gocv", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, unavailable("gocv", err)
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.FaceModelPath,
		"",
		cfg.InputSize,
		float32(cfg.FaceThreshold),
		float32(cfg.NMSThreshold),
		5000,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	log.Info("gocv classifier ready",
		"face_model", cfg.FaceModelPath,
		"expression_model", cfg.ExpressionModelPath)

	return &GoCV{
		detector: detector,
		net:      net,
		config:   cfg,
	}, nil
}

// Infer implements Classifier.
func (g *GoCV) Infer(ctx context.Context, frame Frame) (*Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrClosed
	}

	img, err := gocv.IMDecode(frame.JPEG, gocv.IMReadColor)
	if err != nil {
		return nil, WrapError("gocv", fmt.Errorf("decode image: %w", err))
	}
	defer img.Close()
	if img.Empty() {
		return nil, WrapError("gocv", ErrEmptyFrame)
	}

	faces := g.detectFaces(img)
	primary := SelectPrimary(faces)
	if primary == nil {
		return nil, nil
	}

	scores, err := g.classify(img, primary.Box)
	if err != nil {
		return nil, WrapError("gocv", err)
	}
	primary.Scores = scores
	return primary, nil
}

// detectFaces runs YuNet and returns one Detection per face (no scores yet).
func (g *GoCV) detectFaces(img gocv.Mat) []Detection {
	g.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	g.detector.Detect(img, &faces)

	dets := make([]Detection, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		// YuNet rows: x, y, w, h, 5 landmark pairs, score.
		dets = append(dets, Detection{
			Box: BoundingBox{
				X:      float64(faces.GetFloatAt(r, 0)),
				Y:      float64(faces.GetFloatAt(r, 1)),
				Width:  float64(faces.GetFloatAt(r, 2)),
				Height: float64(faces.GetFloatAt(r, 3)),
			},
			FaceScore: float64(faces.GetFloatAt(r, 14)),
		})
	}
	return dets
}

// classify crops the face, runs FER+ and returns a softmax distribution.
func (g *GoCV) classify(img gocv.Mat, box BoundingBox) (map[string]float64, error) {
	rect := clampRect(box, img.Cols(), img.Rows())
	if rect.Empty() {
		return nil, ErrEmptyFrame
	}

	face := img.Region(rect)
	defer face.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(face, &gray, gocv.ColorBGRToGray)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(gray, &resized, g.config.ExpressionSize, 0, 0, gocv.InterpolationLinear)

	blob := gocv.BlobFromImage(resized, 1.0, g.config.ExpressionSize, gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	g.net.SetInput(blob, "")
	out := g.net.Forward("")
	defer out.Close()

	logits, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	if len(logits) < len(ferPlusLabels) {
		return nil, fmt.Errorf("unexpected output size %d", len(logits))
	}
	return softmax(ferPlusLabels, logits[:len(ferPlusLabels)]), nil
}

// Close releases the models.
func (g *GoCV) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	g.detector.Close()
	return g.net.Close()
}

func clampRect(box BoundingBox, w, h int) image.Rectangle {
	r := image.Rect(
		int(math.Floor(box.X)),
		int(math.Floor(box.Y)),
		int(math.Ceil(box.X+box.Width)),
		int(math.Ceil(box.Y+box.Height)),
	)
	return r.Intersect(image.Rect(0, 0, w, h))
}

func softmax(labels []string, logits []float32) map[string]float64 {
	maxLogit := math.Inf(-1)
	for _, v := range logits {
		maxLogit = math.Max(maxLogit, float64(v))
	}

	sum := 0.0
	exps := make([]float64, len(logits))
	for i, v := range logits {
		exps[i] = math.Exp(float64(v) - maxLogit)
		sum += exps[i]
	}

	scores := make(map[string]float64, len(labels))
	for i, label := range labels {
		scores[label] = exps[i] / sum
	}
	return scores
}
