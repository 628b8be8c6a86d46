// Package api holds the DTOs the driver exchanges with the outside world:
// the frame envelope fed into the pipeline and the trajectory-ended events
// it writes out as JSON files.
package api

import (
	"fmt"
	"net"
	"time"

	"gocv.io/x/gocv"
)

// FrameData is one decoded frame handed to the pipeline, carrying the same
// fields the ingestion goroutine reads off a gocv.VideoCapture.
type FrameData struct {
	Timestamp time.Time
	SourceId  string
	FrameId   float64
	Frame     gocv.Mat
}

// DetectionBox is one externally-supplied detection in float pixel
// coordinates, JSON-tagged for serialization. The driver does not read
// detections from outside; it derives them from the foreground mask.
type DetectionBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// SamplePointDTO mirrors pkg/tracking.SamplePoint in a JSON-serializable
// shape, for trajectory-ended events published outside the process.
type SamplePointDTO struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	W         float64   `json:"w"`
	H         float64   `json:"h"`
	XCenter   float64   `json:"x_center"`
	YCenter   float64   `json:"y_center"`
	XVelocity float64   `json:"x_velocity"`
	YVelocity float64   `json:"y_velocity"`
	Timestamp time.Time `json:"timestamp"`
}

// TrajectoryEndedEvent is published whenever a trajectory qualifies as a
// falling object and ends; the driver serializes it to JSON and writes it
// to a file next to the annotated frame.
type TrajectoryEndedEvent struct {
	Tag            int64            `json:"tag"`
	Samples        []SamplePointDTO `json:"samples"`
	FallDistancePx float64          `json:"fall_distance_px"`
	StartedAt      time.Time        `json:"started_at"`
	EndedAt        time.Time        `json:"ended_at"`
}

// Service describes a network endpoint the driver depends on (e.g. an
// upstream RTSP source reachability probe) and how to check it's up.
type Service struct {
	Address string
	Port    string
}

// ServiceReachable dials the service with a short timeout and reports
// whether it accepted the connection.
func (s *Service) ServiceReachable() error {
	if s.Address == "" || s.Port == "" {
		return fmt.Errorf("service address or port is not set")
	}
	address := fmt.Sprintf("%s:%s", s.Address, s.Port)
	conn, err := net.DialTimeout("tcp", address, 3*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	return nil
}
