package media

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/moodbox/internal/log"
)

// maxReadFailures is how many consecutive failed reads end a camera source.
const maxReadFailures = 30

// CameraConfig configures a gocv capture device.
type CameraConfig struct {
	// Device is a camera index ("0"), a file, a stream URL or a GStreamer
	// pipeline string.
	Device string
	Width  int
	Height int
}

// Camera reads frames from a local device or stream through OpenCV. A reader
// goroutine keeps only the newest frame.
type Camera struct {
	terminal
	frame latest

	capture   *gocv.VideoCapture
	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// OpenCamera opens the device and starts reading. Failure to open yields
// ErrMediaUnavailable.
func OpenCamera(cfg CameraConfig) (*Camera, error) {
	var (
		capture *gocv.VideoCapture
		err     error
	)
	if id, convErr := strconv.Atoi(cfg.Device); convErr == nil {
		capture, err = gocv.OpenVideoCapture(id)
	} else {
		capture, err = gocv.OpenVideoCapture(cfg.Device)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrMediaUnavailable, cfg.Device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: %s did not open", ErrMediaUnavailable, cfg.Device)
	}

	if cfg.Width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	c := &Camera{
		terminal: newTerminal(),
		capture:  capture,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go c.readLoop()

	log.Info("camera opened", "device", cfg.Device, "width", cfg.Width, "height", cfg.Height)
	return c, nil
}

func (c *Camera) readLoop() {
	defer close(c.stopped)

	img := gocv.NewMat()
	defer img.Close()

	failures := 0
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		if ok := c.capture.Read(&img); !ok || img.Empty() {
			failures++
			if failures >= maxReadFailures {
				c.end(fmt.Errorf("device stopped delivering frames after %d attempts", failures))
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		failures = 0

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
		if err != nil {
			log.Debug("camera encode failed", "error", err)
			continue
		}
		jpeg := make([]byte, buf.Len())
		copy(jpeg, buf.GetBytes())
		buf.Close()
		c.frame.set(jpeg)
	}
}

// CaptureJPEG implements Source.
func (c *Camera) CaptureJPEG() ([]byte, error) {
	select {
	case <-c.done:
		return nil, c.Err()
	default:
	}
	return c.frame.get()
}

// Close stops the reader and releases the device.
func (c *Camera) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.stopped
		c.end(errClosed)
		c.closeErr = c.capture.Close()
	})
	return c.closeErr
}
