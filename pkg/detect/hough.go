package detect

import (
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/fairwaylab/strobeshot/pkg/shot"
)

// Hough is the classical ball detector: contrast enhancement, blur, and a
// Hough circle transform, followed by radius-band and circularity
// filtering. Deterministic for a fixed frame and configuration.
type Hough struct {
	cfg Config
	mu  sync.Mutex // gocv Mats are not safe for concurrent use
}

// NewHough creates the classical detector.
func NewHough(cfg Config) *Hough {
	return &Hough{cfg: cfg}
}

// Detect implements Detector.
func (h *Hough) Detect(frame []byte, expected int) ([]shot.Observation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	img, err := gocv.IMDecode(frame, gocv.IMReadGrayScale)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	work := gocv.NewMat()
	defer work.Close()

	if h.cfg.Contrast {
		clahe := gocv.NewCLAHE()
		clahe.Apply(img, &work)
		clahe.Close()
	} else {
		img.CopyTo(&work)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(work, &blurred, image.Pt(5, 5), 1.5, 1.5, gocv.BorderDefault)

	// Multi-exposure frames hold several non-overlapping balls along the
	// flight path, so the minimum center distance is one expected
	// diameter rather than a large fraction of the image.
	minDist := 2 * h.cfg.ExpectedRadiusPx
	if expected <= 1 {
		minDist = float64(img.Rows()) / 4
	}

	circles := gocv.NewMat()
	defer circles.Close()
	gocv.HoughCirclesWithParams(
		blurred,
		&circles,
		gocv.HoughGradient,
		1, // accumulator resolution
		minDist,
		h.cfg.CannyThresh,
		h.cfg.AccumThresh,
		int(h.cfg.MinRadiusPx),
		int(h.cfg.MaxRadiusPx),
	)

	now := time.Now()
	var obs []shot.Observation
	for i := 0; i < circles.Cols(); i++ {
		v := circles.GetVecfAt(0, i)
		if len(v) < 3 {
			continue
		}
		x, y, r := float64(v[0]), float64(v[1]), float64(v[2])
		if r < h.cfg.MinRadiusPx || r > h.cfg.MaxRadiusPx {
			continue
		}
		conf := h.score(blurred, x, y, r)
		if conf < h.cfg.ConfidenceThresh {
			continue
		}
		obs = append(obs, shot.Observation{
			X:          x,
			Y:          y,
			Radius:     r,
			Confidence: conf,
			CapturedAt: now,
		})
	}

	obs = Dedupe(obs)
	RankCandidates(obs, h.cfg.ExpectedRadiusPx)
	if expected > 0 && len(obs) > expected {
		obs = obs[:expected]
	}
	return obs, nil
}

// score grades a circle candidate by edge support around its perimeter and
// by how closely its radius matches the calibrated ball size. The two terms
// weigh 70/30, the same split the rest of the stack uses for picking a best
// candidate.
func (h *Hough) score(gray gocv.Mat, cx, cy, r float64) float64 {
	const samples = 32

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, h.cfg.CannyThresh/2, h.cfg.CannyThresh)

	rows, cols := edges.Rows(), edges.Cols()
	hits := 0
	for i := 0; i < samples; i++ {
		theta := 2 * math.Pi * float64(i) / samples
		x := int(cx + r*math.Cos(theta))
		y := int(cy + r*math.Sin(theta))
		if x < 0 || y < 0 || x >= cols || y >= rows {
			continue
		}
		// Tolerate one pixel of radial jitter.
		if edgeAt(edges, x, y) || edgeNear(edges, x, y) {
			hits++
		}
	}

	support := float64(hits) / samples
	if support < h.cfg.MinCircularity {
		return 0
	}

	radiusMatch := 1 - math.Min(1, math.Abs(r-h.cfg.ExpectedRadiusPx)/h.cfg.ExpectedRadiusPx)
	return support*0.7 + radiusMatch*0.3
}

func edgeAt(edges gocv.Mat, x, y int) bool {
	return edges.GetUCharAt(y, x) > 0
}

func edgeNear(edges gocv.Mat, x, y int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := x+dx, y+dy
			if nx < 0 || ny < 0 || nx >= edges.Cols() || ny >= edges.Rows() {
				continue
			}
			if edges.GetUCharAt(ny, nx) > 0 {
				return true
			}
		}
	}
	return false
}

// Close implements Detector.
func (h *Hough) Close() error { return nil }
