// Package ingest implements the driver's "external collaborator" duties
// the core explicitly stays out of: video capture, resize, morphological
// post-filtering of the foreground mask, and connected-component extraction
// of detection boxes.
package ingest

import (
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/Nullkooland/Falling-Object-Detection/api"
)

// VideoConfig configures a VideoInput's source and frame geometry.
type VideoConfig struct {
	Source      string
	QueueSize   int
	FrameWidth  int
	FrameHeight int
}

func (c VideoConfig) withDefaults() VideoConfig {
	if c.QueueSize == 0 {
		c.QueueSize = 4
	}
	return c
}

// VideoInput owns a gocv.VideoCapture and runs its own ingestion goroutine,
// decoding and resizing frames into a bounded channel the driver's main
// loop drains one at a time — the core itself never touches a capture
// device or spawns goroutines.
type VideoInput struct {
	config  VideoConfig
	capture *gocv.VideoCapture

	queue chan api.FrameData
	done  chan struct{}
	wg    sync.WaitGroup

	frameCount  int
	emptyFrames int
}

// NewVideoInput opens config.Source and starts the ingestion goroutine.
func NewVideoInput(config VideoConfig) (*VideoInput, error) {
	config = config.withDefaults()

	capture, err := gocv.OpenVideoCapture(config.Source)
	if err != nil {
		return nil, fmt.Errorf("ingest: opening video source %q: %w", config.Source, err)
	}

	vi := &VideoInput{
		config:  config,
		capture: capture,
		queue:   make(chan api.FrameData, config.QueueSize),
		done:    make(chan struct{}),
	}

	vi.wg.Add(1)
	go vi.run()

	return vi, nil
}

func (vi *VideoInput) run() {
	defer vi.wg.Done()

	img := gocv.NewMat()
	defer img.Close()

	for {
		select {
		case <-vi.done:
			return
		default:
		}

		if ok := vi.capture.Read(&img); !ok || img.Empty() {
			vi.emptyFrames++
			if vi.emptyFrames > 10 {
				log.Println("ingest: too many empty frames in a row, stopping capture")
				return
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		vi.emptyFrames = 0

		resized := gocv.NewMat()
		if vi.config.FrameWidth > 0 && vi.config.FrameHeight > 0 {
			gocv.Resize(img, &resized, image.Pt(vi.config.FrameWidth, vi.config.FrameHeight), 0, 0, gocv.InterpolationDefault)
		} else {
			img.CopyTo(&resized)
		}

		frame := api.FrameData{
			Timestamp: time.Now(),
			FrameId:   float64(vi.frameCount),
			Frame:     resized,
		}

		select {
		case vi.queue <- frame:
			vi.frameCount++
		case <-vi.done:
			resized.Close()
			return
		}
	}
}

// ReadFrame blocks until a frame is available or the input is closed, in
// which case ok is false.
func (vi *VideoInput) ReadFrame() (api.FrameData, bool) {
	frame, ok := <-vi.queue
	return frame, ok
}

// Close stops the ingestion goroutine and releases the capture device.
func (vi *VideoInput) Close() {
	close(vi.done)
	vi.wg.Wait()
	vi.capture.Close()
	close(vi.queue)
}
