// Command fallcore drives the falling-object detection core against a
// video source: it owns everything spec.md calls an external collaborator
// (ingestion, morphology, connected components, annotated-frame encoding)
// and wires frames through pkg/vibe and pkg/tracking frame by frame.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gocv.io/x/gocv"

	"github.com/Nullkooland/Falling-Object-Detection/api"
	"github.com/Nullkooland/Falling-Object-Detection/internal/ingest"
	"github.com/Nullkooland/Falling-Object-Detection/pkg/metric"
	"github.com/Nullkooland/Falling-Object-Detection/pkg/tracking"
	"github.com/Nullkooland/Falling-Object-Detection/pkg/utils"
	"github.com/Nullkooland/Falling-Object-Detection/pkg/vibe"
)

func main() {
	segBuckets := utils.ParseBuckets(os.Getenv("SEGMENTATION_LATENCY_BUCKETS"))
	trackerBuckets := utils.ParseBuckets(os.Getenv("TRACKER_LATENCY_BUCKETS"))
	fallBuckets := utils.ParseBuckets(os.Getenv("FALL_DISTANCE_BUCKETS"))
	m := &metric.Metric{}
	m.RegisterMetrics(segBuckets, trackerBuckets, fallBuckets)

	videoSource := os.Getenv("VIDEO_SOURCE")
	if videoSource == "" {
		panic("VIDEO_SOURCE environment variable is not set")
	}
	width, _ := strconv.Atoi(os.Getenv("FRAME_WIDTH"))
	height, _ := strconv.Atoi(os.Getenv("FRAME_HEIGHT"))
	if width == 0 || height == 0 {
		panic("FRAME_WIDTH or FRAME_HEIGHT environment variable is not set")
	}

	annotatedDir := os.Getenv("ANNOTATED_FRAME_DIR")
	if annotatedDir == "" {
		annotatedDir = "."
	}

	waitForUpstreamService(os.Getenv("UPSTREAM_SERVICE_ADDRESS"), os.Getenv("UPSTREAM_SERVICE_PORT"))

	bgModel := vibe.New(vibe.Params{
		Height: height,
		Width:  width,
		Seed:   time.Now().UnixNano(),
	})

	detector := ingest.NewDetector(ingest.DetectorConfig{})
	defer detector.Close()

	tracker := tracking.New(tracking.Params{}, func(tag int64, trajectory *tracking.Trajectory) {
		onTrajectoryEnded(tag, trajectory, annotatedDir, m)
	})

	videoInput, err := ingest.NewVideoInput(ingest.VideoConfig{
		Source:      videoSource,
		FrameWidth:  width,
		FrameHeight: height,
	})
	if err != nil {
		log.Fatalf("fallcore: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricAddr := os.Getenv("METRIC_ADDR")
	metricPort := os.Getenv("METRIC_PORT")
	if metricPort == "" {
		metricPort = "9090"
	}
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", metricAddr, metricPort),
		Handler: mux,
	}

	if ip, err := utils.GetOutboundIP(); err != nil {
		log.Printf("fallcore: could not determine outbound IP: %v\n", err)
	} else {
		log.Printf("fallcore: outbound IP is %s, metrics reachable at %s:%s\n", ip, ip, metricPort)
	}

	go func() {
		log.Printf("starting metrics server on %s\n", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("fallcore: metrics server: %v", err)
		}
	}()

	done := make(chan struct{})
	go runPipeline(videoInput, bgModel, detector, tracker, m, done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Println("fallcore: received shutdown signal")
	case <-done:
		log.Println("fallcore: video source exhausted")
	}

	videoInput.Close()
	if err := server.Shutdown(context.Background()); err != nil {
		log.Printf("fallcore: error shutting down metrics server: %v\n", err)
	}
	log.Println("fallcore: shut down gracefully")
}

// waitForUpstreamService polls an optional upstream dependency (e.g. an
// RTSP relay the video source depends on) until it accepts connections,
// logging each retry. A no-op if either env var is unset.
func waitForUpstreamService(address, port string) {
	if address == "" || port == "" {
		return
	}

	svc := &api.Service{Address: address, Port: port}
	for attempt := 1; ; attempt++ {
		if err := svc.ServiceReachable(); err == nil {
			log.Printf("fallcore: upstream service %s:%s is reachable\n", address, port)
			return
		}
		if attempt >= 10 {
			log.Printf("fallcore: upstream service %s:%s still unreachable after %d attempts, continuing anyway\n", address, port, attempt)
			return
		}
		log.Printf("fallcore: upstream service %s:%s not yet reachable, retrying\n", address, port)
		time.Sleep(time.Second)
	}
}

// runPipeline is the driver's single ingestion-to-tracker loop: every frame
// flows through it sequentially, matching the core's single-threaded
// cooperative contract.
func runPipeline(
	videoInput *ingest.VideoInput,
	bgModel *vibe.Model,
	detector *ingest.Detector,
	tracker *tracking.Tracker,
	m *metric.Metric,
	done chan<- struct{},
) {
	defer close(done)

	for {
		frame, ok := videoInput.ReadFrame()
		if !ok {
			return
		}

		segStart := time.Now()
		fgMask := bgModel.Segment(frame.Frame)
		m.ObserveSegmentationLatency("segment", float64(time.Since(segStart).Milliseconds()))

		detections, tooMany := detector.Detect(fgMask)
		fgMask.Close()

		if tooMany {
			log.Printf("fallcore: %d detections exceeds cap, clearing tracker\n", len(detections))
			tracker.Clear()
			detections = nil
		}

		updStart := time.Now()
		tracker.Update(detections, frame.Frame.Clone(), frame.Timestamp)
		m.ObserveTrackerUpdateLatency(float64(time.Since(updStart).Milliseconds()))
		m.SetActiveCounts(tracker.NumTracks(), tracker.NumTrajectories())

		updateMask := gocv.NewMatWithSize(frame.Frame.Rows(), frame.Frame.Cols(), gocv.MatTypeCV8U)
		bgModel.Update(frame.Frame, updateMask)
		updateMask.Close()

		frame.Frame.Close()
	}
}

func onTrajectoryEnded(tag int64, trajectory *tracking.Trajectory, annotatedDir string, m *metric.Metric) {
	fallDistance := trajectory.GetRangeY()
	m.ObserveTrajectoryEnded(true, fallDistance)

	event := toEvent(tag, trajectory, fallDistance)
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("fallcore: marshal trajectory event for tag %d: %v\n", tag, err)
		return
	}
	log.Printf("fallcore: trajectory ended tag=%d samples=%d fallDistance=%.1f\n", tag, trajectory.NumSamples(), fallDistance)

	if frame, ok := trajectory.FirstFrame().(gocv.Mat); ok {
		annotated := ingest.Annotate(frame.Clone(), trajectory)
		path := fmt.Sprintf("%s/trajectory-%d.png", annotatedDir, tag)
		if ok := gocv.IMWrite(path, annotated); !ok {
			log.Printf("fallcore: failed to write annotated frame to %s\n", path)
		}
		annotated.Close()
	}

	eventPath := fmt.Sprintf("%s/trajectory-%d.json", annotatedDir, tag)
	if err := os.WriteFile(eventPath, payload, 0o644); err != nil {
		log.Printf("fallcore: write trajectory event %s: %v\n", eventPath, err)
	}
}

func toEvent(tag int64, trajectory *tracking.Trajectory, fallDistance float64) api.TrajectoryEndedEvent {
	samples := trajectory.Samples()
	dtos := make([]api.SamplePointDTO, len(samples))
	for i, s := range samples {
		dtos[i] = api.SamplePointDTO{
			X: s.X, Y: s.Y, W: s.W, H: s.H,
			XCenter:   s.XCenter,
			YCenter:   s.YCenter,
			XVelocity: s.XVelocity,
			YVelocity: s.YVelocity,
			Timestamp: s.Timestamp,
		}
	}

	var started, ended time.Time
	if len(samples) > 0 {
		started = samples[0].Timestamp
		ended = samples[len(samples)-1].Timestamp
	}

	return api.TrajectoryEndedEvent{
		Tag:            tag,
		Samples:        dtos,
		FallDistancePx: fallDistance,
		StartedAt:      started,
		EndedAt:        ended,
	}
}
