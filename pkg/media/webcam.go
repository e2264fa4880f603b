package media

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// WebcamConfig holds capture settings for the self-preview.
type WebcamConfig struct {
	DeviceID int
	Width    int
	Height   int
	Quality  int // JPEG quality 1-100
}

// DefaultWebcamConfig returns the preview defaults. Modest resolution;
// this feeds a thumbnail, not the remote track.
func DefaultWebcamConfig() WebcamConfig {
	return WebcamConfig{
		DeviceID: 0,
		Width:    640,
		Height:   480,
		Quality:  70,
	}
}

// Webcam reads JPEG frames from a local camera via OpenCV.
type Webcam struct {
	cfg WebcamConfig

	mu     sync.Mutex
	cap    *gocv.VideoCapture
	frame  gocv.Mat
	closed bool
}

// OpenWebcam opens the capture device. Failures are classified so the
// UI can tell "denied" from "unplugged" from "in use".
func OpenWebcam(cfg WebcamConfig) (*Webcam, error) {
	cap, err := gocv.OpenVideoCapture(cfg.DeviceID)
	if err != nil {
		return nil, &CaptureError{Class: ClassifyCaptureError(err), Err: err}
	}
	if !cap.IsOpened() {
		cap.Close()
		err := fmt.Errorf("device %d could not be opened", cfg.DeviceID)
		return nil, &CaptureError{Class: DeviceNotFound, Err: err}
	}

	if cfg.Width > 0 {
		cap.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		cap.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	return &Webcam{
		cfg:   cfg,
		cap:   cap,
		frame: gocv.NewMat(),
	}, nil
}

// ReadJPEG grabs and encodes one frame.
func (w *Webcam) ReadJPEG() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrCameraClosed
	}

	if ok := w.cap.Read(&w.frame); !ok || w.frame.Empty() {
		return nil, &CaptureError{
			Class: DeviceInUse,
			Err:   fmt.Errorf("device %d returned no frame", w.cfg.DeviceID),
		}
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, w.frame,
		[]int{gocv.IMWriteJpegQuality, w.cfg.Quality})
	if err != nil {
		return nil, fmt.Errorf("media: encode frame: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Close releases the device and frame buffer. Idempotent.
func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	w.frame.Close()
	return w.cap.Close()
}

// Verify Webcam implements Source at compile time.
var _ Source = (*Webcam)(nil)
