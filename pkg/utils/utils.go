// Package utils holds small ambient helpers shared across the driver and
// core packages: timestamp parsing, histogram bucket configuration, and a
// standalone IoU helper the driver uses to de-duplicate overlapping
// connected-component boxes before they ever reach the tracker.
package utils

import (
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"
)

// StrUnixToTime parses a decimal Unix-milliseconds string, as read from an
// environment variable.
func StrUnixToTime(unixStr string) (time.Time, error) {
	unixInt, err := strconv.ParseInt(unixStr, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse unix time: %v", err)
	}
	return UnixMilliToTime(unixInt), nil
}

// UnixMilliToTime converts a Unix timestamp in milliseconds to a time.Time.
func UnixMilliToTime(unixMilli int64) time.Time {
	return time.Unix(unixMilli/1000, (unixMilli%1000)*int64(time.Millisecond))
}

// ParseBuckets parses a comma-separated string of histogram bucket bounds,
// as read from an env var configuring a prometheus histogram.
func ParseBuckets(env string) []float64 {
	if env == "" {
		return nil
	}
	parts := strings.Split(env, ",")
	var buckets []float64
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			fmt.Printf("error parsing bucket value %q: %v\n", p, err)
			return nil
		}
		buckets = append(buckets, f)
	}
	return buckets
}

// GetOutboundIP returns the local address that would be used to reach the
// public internet, for logging which interface the metrics server is bound
// on.
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("failed to get outbound IP: %v", err)
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

// BoundingBox is a corner-form axis-aligned box, (x1,y1) top-left and
// (x2,y2) bottom-right — the form gocv.FindContours' bounding rects arrive
// in before the driver converts them to the core's width/height form.
type BoundingBox struct {
	X1, Y1, X2, Y2 float64
}

// GetIoU returns the Intersection-over-Union of two corner-form boxes, or
// 0 if either box is degenerate or they don't overlap.
func GetIoU(bb1, bb2 BoundingBox) float64 {
	if bb1.X1 >= bb1.X2 || bb1.Y1 >= bb1.Y2 || bb2.X1 >= bb2.X2 || bb2.Y1 >= bb2.Y2 {
		return 0.0
	}

	xLeft := math.Max(bb1.X1, bb2.X1)
	yTop := math.Max(bb1.Y1, bb2.Y1)
	xRight := math.Min(bb1.X2, bb2.X2)
	yBottom := math.Min(bb1.Y2, bb2.Y2)

	if xRight < xLeft || yBottom < yTop {
		return 0.0
	}

	intersectionArea := (xRight - xLeft) * (yBottom - yTop)
	bb1Area := (bb1.X2 - bb1.X1) * (bb1.Y2 - bb1.Y1)
	bb2Area := (bb2.X2 - bb2.X1) * (bb2.Y2 - bb2.Y1)

	iou := intersectionArea / (bb1Area + bb2Area - intersectionArea)
	if iou >= 0.0 && iou <= 1.0 {
		return iou
	}
	return 0.0
}
