package media

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Preview pulls frames from a Source at a fixed rate and hands them to
// a callback. One consumer, one goroutine.
type Preview struct {
	source   Source
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	frames  int

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// OnFrame receives each JPEG frame.
	OnFrame func(jpeg []byte)

	// OnError receives read failures. The loop keeps going; persistent
	// failures are the caller's signal to close the preview.
	OnError func(error)
}

// NewPreview creates a preview loop over the source at the given FPS.
func NewPreview(source Source, fps int) *Preview {
	if fps <= 0 {
		fps = 10
	}
	return &Preview{
		source:   source,
		interval: time.Second / time.Duration(fps),
		logger:   slog.Default().With("component", "media.preview"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the frame loop. Safe to call once.
func (p *Preview) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	go p.run(ctx)
}

// Close stops the loop and releases the camera.
func (p *Preview) Close() error {
	p.stopOnce.Do(func() { close(p.stop) })

	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if running {
		<-p.done
	}
	return p.source.Close()
}

// Frames returns how many frames have been delivered.
func (p *Preview) Frames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

func (p *Preview) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			jpeg, err := p.source.ReadJPEG()
			if err != nil {
				if err == ErrCameraClosed {
					return
				}
				p.logger.Debug("frame read failed", "error", err)
				if p.OnError != nil {
					p.OnError(err)
				}
				continue
			}

			p.mu.Lock()
			p.frames++
			p.mu.Unlock()

			if p.OnFrame != nil {
				p.OnFrame(jpeg)
			}
		}
	}
}
