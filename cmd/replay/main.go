// replay runs the analysis pipeline over a saved shot: one teed-address
// image and one strobed multi-exposure image. It prints the result as JSON,
// which makes detector and calibration tuning a desk job instead of a
// range session.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fairwaylab/strobeshot/internal/log"
	"github.com/fairwaylab/strobeshot/pkg/analyze"
	"github.com/fairwaylab/strobeshot/pkg/capture"
	"github.com/fairwaylab/strobeshot/pkg/detect"
	"github.com/fairwaylab/strobeshot/pkg/shot"
)

func main() {
	var (
		teedPath    = flag.String("teed", "", "teed-address image (jpeg/png)")
		strobePath  = flag.String("strobe", "", "strobed multi-exposure image")
		calPath     = flag.String("calibration", "", "calibration YAML (default: built-in)")
		exposures   = flag.Int("exposures", 5, "strobe pulses fired for the shot")
		detector    = flag.String("detector", "hough", "detection backend: hough or onnx")
		modelPath   = flag.String("model", "", "ONNX model path (onnx backend only)")
		spinEnabled = flag.Bool("spin", true, "estimate spin from ball markings")
		logLevel    = flag.String("log-level", "warn", "log verbosity")
	)
	flag.Parse()
	log.Init(*logLevel)

	if *teedPath == "" || *strobePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay -teed address.jpg -strobe strobe.jpg [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	res, err := run(*teedPath, *strobePath, *calPath, *detector, *modelPath, *exposures, *spinEnabled)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func run(teedPath, strobePath, calPath, detector, modelPath string, exposures int, spinEnabled bool) (shot.Result, error) {
	cal := shot.DefaultCalibration()
	if calPath != "" {
		var err error
		cal, err = shot.LoadCalibration(calPath)
		if err != nil {
			return shot.Result{}, err
		}
	}

	dc := detect.DefaultConfig().FromCalibration(cal)
	dc.ModelPath = modelPath
	det, err := detect.New(detect.Kind(detector), dc)
	if err != nil {
		return shot.Result{}, err
	}
	defer det.Close()

	teed, err := os.ReadFile(teedPath)
	if err != nil {
		return shot.Result{}, err
	}
	strobe, err := os.ReadFile(strobePath)
	if err != nil {
		return shot.Result{}, err
	}

	var spin analyze.SpinEstimator = analyze.NoSpin{}
	if spinEnabled {
		spin = analyze.NewMarkingSpin()
	}
	analyzer := analyze.New(det, spin, cal, analyze.DefaultOptions())

	now := time.Now()
	return analyzer.Analyze(
		context.Background(),
		capture.Frame{Data: teed, Seq: 0, CapturedAt: now},
		analyze.StrobeFrame{
			Frame:     capture.Frame{Data: strobe, Seq: 1, CapturedAt: now},
			Exposures: exposures,
		},
	)
}
