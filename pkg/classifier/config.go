package classifier

import (
	"image"
	"time"
)

// Config holds engine configuration for the local gocv classifier.
type Config struct {
	FaceModelPath       string  // YuNet face detector (ONNX)
	ExpressionModelPath string  // FER+ expression network (ONNX)
	FaceThreshold       float64 // Minimum face detector score
	NMSThreshold        float64
	InputSize           image.Point // Initial detector input size
	ExpressionSize      image.Point // Expression network input size
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FaceModelPath:       "models/face_detection_yunet.onnx",
		ExpressionModelPath: "models/emotion-ferplus-8.onnx",
		FaceThreshold:       0.6,
		NMSThreshold:        0.3,
		InputSize:           image.Pt(320, 320),
		ExpressionSize:      image.Pt(64, 64),
	}
}

// RemoteConfig configures the websocket engine client.
type RemoteConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	RequestTimeout   time.Duration
}

// DefaultRemoteConfig returns defaults for a local engine sidecar.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		URL:              "ws://127.0.0.1:8765/infer",
		HandshakeTimeout: 5 * time.Second,
		RequestTimeout:   2 * time.Second,
	}
}
