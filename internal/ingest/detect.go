package ingest

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/Nullkooland/Falling-Object-Detection/pkg/tracking"
	"github.com/Nullkooland/Falling-Object-Detection/pkg/utils"
)

// DetectorConfig tunes the morphological post-filter and connected
// component extraction applied to the core's foreground mask before it
// becomes a list of detection rects.
type DetectorConfig struct {
	// MorphKernelSize is the square structuring element size used for the
	// opening pass that removes single-pixel noise. Default 3.
	MorphKernelSize int
	// MinBlobArea discards connected components smaller than this many
	// pixels. Default 16.
	MinBlobArea float64
	// MaxBlobs caps the number of detections handed to the tracker per
	// frame; the core has no opinion on this (spec §7) so the driver
	// enforces it and clears the tracker when exceeded.
	MaxBlobs int
	// DedupIoUThreshold discards a contour's bounding box when it overlaps
	// an already-kept box by more than this IoU, collapsing the duplicate
	// boxes a single blob can produce when MorphologyEx's opening pass
	// splits it into several nearby contours. Default 0.7.
	DedupIoUThreshold float64
}

func (c DetectorConfig) withDefaults() DetectorConfig {
	if c.MorphKernelSize == 0 {
		c.MorphKernelSize = 3
	}
	if c.MinBlobArea == 0 {
		c.MinBlobArea = 16
	}
	if c.MaxBlobs == 0 {
		c.MaxBlobs = 64
	}
	if c.DedupIoUThreshold == 0 {
		c.DedupIoUThreshold = 0.7
	}
	return c
}

// Detector turns a background model's foreground mask into a list of
// detection rectangles, the "external collaborator" steps spec.md keeps
// out of the core: morphological opening to suppress speckle noise,
// connected-component extraction, and a minimum-area filter.
type Detector struct {
	config DetectorConfig
	kernel gocv.Mat
}

// NewDetector builds a Detector and its (cached, owned) structuring
// element.
func NewDetector(config DetectorConfig) *Detector {
	config = config.withDefaults()
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(config.MorphKernelSize, config.MorphKernelSize))
	return &Detector{config: config, kernel: kernel}
}

// Close releases the structuring element.
func (d *Detector) Close() error {
	return d.kernel.Close()
}

// Detect applies an opening pass to fgMask, finds its connected components
// and returns one tracking.Rect per component with area >= MinBlobArea,
// after collapsing duplicate overlapping boxes. It also reports whether the
// caller should treat the frame as over-saturated with detections (more
// than MaxBlobs boxes kept after the area filter and de-duplication) — the driver, not the core, decides to
// call tracker.Clear() in that case.
func (d *Detector) Detect(fgMask gocv.Mat) (rects []tracking.Rect, tooMany bool) {
	opened := gocv.NewMat()
	defer opened.Close()
	gocv.MorphologyEx(fgMask, &opened, gocv.MorphOpen, d.kernel)

	contours := gocv.FindContours(opened, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		if gocv.ContourArea(contour) < d.config.MinBlobArea {
			continue
		}
		box := gocv.BoundingRect(contour)
		rect := tracking.Rect{
			X: float64(box.Min.X),
			Y: float64(box.Min.Y),
			W: float64(box.Dx()),
			H: float64(box.Dy()),
		}

		if d.overlapsKept(rects, rect) {
			continue
		}
		rects = append(rects, rect)
	}

	return rects, len(rects) > d.config.MaxBlobs
}

// overlapsKept reports whether rect duplicates one of the boxes already
// kept, within DedupIoUThreshold — a single blob can be split into several
// adjacent contours by the opening pass, and those would otherwise reach the
// tracker as separate detections.
func (d *Detector) overlapsKept(kept []tracking.Rect, rect tracking.Rect) bool {
	rectBox := toBoundingBox(rect)
	for _, k := range kept {
		if utils.GetIoU(rectBox, toBoundingBox(k)) > d.config.DedupIoUThreshold {
			return true
		}
	}
	return false
}

func toBoundingBox(r tracking.Rect) utils.BoundingBox {
	return utils.BoundingBox{X1: r.X, Y1: r.Y, X2: r.X + r.W, Y2: r.Y + r.H}
}
