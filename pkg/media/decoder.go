package media

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/teslashibe/moodbox/internal/log"
)

// minJPEGSize filters out truncated frames ffmpeg emits while it syncs on a
// keyframe.
const minJPEGSize = 1000

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// h264Decoder feeds Annex-B H264 into a persistent ffmpeg process and reads
// back an MJPEG stream, one JPEG per decoded picture.
type h264Decoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	mu     sync.Mutex
	frames func([]byte)
	done   chan struct{}
	err    error
}

// startDecoder launches ffmpeg. onFrame is called from the reader goroutine
// for every complete JPEG.
func startDecoder(ctx context.Context, onFrame func([]byte)) (*h264Decoder, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-loglevel", "error",
		"-f", "h264",
		"-i", "pipe:0",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"pipe:1",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	d := &h264Decoder{
		cmd:    cmd,
		stdin:  stdin,
		frames: onFrame,
		done:   make(chan struct{}),
	}
	go d.read(stdout)
	return d, nil
}

func (d *h264Decoder) read(r io.Reader) {
	defer close(d.done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256*1024), 8*1024*1024)
	scanner.Split(splitJPEG)
	for scanner.Scan() {
		frame := scanner.Bytes()
		if len(frame) < minJPEGSize {
			continue
		}
		out := make([]byte, len(frame))
		copy(out, frame)
		d.frames(out)
	}
	d.err = scanner.Err()
	if err := d.cmd.Wait(); err != nil && d.err == nil {
		d.err = err
	}
}

// Write feeds H264 access units to ffmpeg.
func (d *h264Decoder) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stdin.Write(p)
}

// Done is closed when ffmpeg exits.
func (d *h264Decoder) Done() <-chan struct{} {
	return d.done
}

// Close ends the input stream and waits for ffmpeg to exit.
func (d *h264Decoder) Close() error {
	d.mu.Lock()
	err := d.stdin.Close()
	d.mu.Unlock()
	<-d.done
	if d.err != nil {
		log.Debug("ffmpeg exited", "error", d.err)
	}
	return err
}

// splitJPEG is a bufio.SplitFunc yielding whole JPEG images (SOI through
// EOI) from a concatenated MJPEG stream. Bytes before the first SOI are
// discarded.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a trailing 0xFF in case it starts the next marker.
		if n := len(data); n > 0 && data[n-1] == 0xFF {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}

	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}
