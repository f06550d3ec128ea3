package config

const (
	defaultStateDir        = "~/.local/state/moodbox"
	defaultLogLevel        = "info"
	defaultIntervalMS      = 100
	defaultThreshold       = 0.5
	defaultMediaKind       = "camera"
	defaultMediaDevice     = "0"
	defaultMediaWidth      = 640
	defaultMediaHeight     = 480
	defaultClassifierKind  = "gocv"
	defaultFaceModel       = "models/face_detection_yunet.onnx"
	defaultExpressionModel = "models/emotion-ferplus-8.onnx"
	defaultRemoteURL       = "ws://127.0.0.1:8765/infer"
	defaultSink            = "gst"
	defaultVolume          = 0.7
	defaultMaxRedraws      = 5
	defaultWebAddr         = "127.0.0.1:8090"
	defaultWebStatic       = "./web"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		StateDir: defaultStateDir,
		Logging: Logging{
			Level: defaultLogLevel,
		},
		Sampler: Sampler{
			IntervalMS: defaultIntervalMS,
			Threshold:  defaultThreshold,
			Overlay:    true,
		},
		Media: Media{
			Kind:   defaultMediaKind,
			Device: defaultMediaDevice,
			Width:  defaultMediaWidth,
			Height: defaultMediaHeight,
		},
		Classifier: Classifier{
			Kind:            defaultClassifierKind,
			FaceModel:       defaultFaceModel,
			ExpressionModel: defaultExpressionModel,
			RemoteURL:       defaultRemoteURL,
		},
		Playback: Playback{
			Sink:       defaultSink,
			Volume:     defaultVolume,
			MaxRedraws: defaultMaxRedraws,
		},
		Web: Web{
			Enabled: true,
			Addr:    defaultWebAddr,
			Static:  defaultWebStatic,
		},
	}
}
