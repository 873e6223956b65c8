package detect

import (
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/fairwaylab/strobeshot/pkg/shot"
)

// ONNX is the learned ball detector. It runs a single-class detection model
// through OpenCV's DNN module and maps the output rows onto the same
// observation contract as the classical backend.
//
// Expected model output: [1, 5, N] — cx, cy, r, unused, score per column,
// in input-normalized coordinates.
type ONNX struct {
	net       gocv.Net
	cfg       Config
	inputSize image.Point
	mu        sync.Mutex
}

const (
	onnxInputW = 640
	onnxInputH = 640
)

// NewONNX loads the model at cfg.ModelPath.
func NewONNX(cfg Config) (*ONNX, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &ONNX{
		net:       net,
		cfg:       cfg,
		inputSize: image.Pt(onnxInputW, onnxInputH),
	}, nil
}

// Detect implements Detector.
func (d *ONNX) Detect(frame []byte, expected int) ([]shot.Observation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(frame, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	imgW := float64(img.Cols())
	imgH := float64(img.Rows())

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read inference output: %w", err)
	}

	// Output layout [1, 5, N]: row-major over 5 attributes.
	n := output.Cols()
	if n == 0 {
		return nil, nil
	}

	now := time.Now()
	var obs []shot.Observation
	for i := 0; i < n; i++ {
		score := float64(data[4*n+i])
		if score < d.cfg.ConfidenceThresh {
			continue
		}
		cx := float64(data[0*n+i]) / onnxInputW * imgW
		cy := float64(data[1*n+i]) / onnxInputH * imgH
		r := float64(data[2*n+i]) / onnxInputW * imgW
		if r < d.cfg.MinRadiusPx || r > d.cfg.MaxRadiusPx {
			continue
		}
		obs = append(obs, shot.Observation{
			X:          cx,
			Y:          cy,
			Radius:     r,
			Confidence: score,
			CapturedAt: now,
		})
	}

	obs = Dedupe(obs)
	RankCandidates(obs, d.cfg.ExpectedRadiusPx)
	if expected > 0 && len(obs) > expected {
		obs = obs[:expected]
	}
	return obs, nil
}

// Close implements Detector.
func (d *ONNX) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
