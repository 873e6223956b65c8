package analyze

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/fairwaylab/strobeshot/pkg/shot"
)

// Exposure is one strobe-lit ball position placed in the pulse train.
// Pulse is the slot index: consecutive kept exposures may be more than one
// slot apart when an outlier between them was pruned.
type Exposure struct {
	Obs   shot.Observation
	Pulse int
}

// BuildSequence orders strobe observations temporally and prunes exposures
// that violate spatial continuity.
//
// Ordering uses the principal axis of the observed positions: exposures of
// a ball in free flight over a couple of milliseconds lie on a near-straight
// line, so projection onto the dominant direction recovers the temporal
// order up to sign. The sign is fixed by the convention that flight
// proceeds in +x (and upward when the path is vertical-dominant), which is
// how the flight camera is mounted.
//
// Pruning keeps the longest chain in which each consecutive pair is within
// the maximum plausible displacement for the number of pulse slots
// separating them, derived from calibration and the configured speed bound.
func BuildSequence(obs []shot.Observation, cal *shot.Calibration) []Exposure {
	if len(obs) == 0 {
		return nil
	}
	if len(obs) == 1 {
		return []Exposure{{Obs: obs[0], Pulse: 0}}
	}

	ordered := orderByPrincipalAxis(obs)

	maxDisp := cal.MaxDisplacementPx(meanRadius(ordered))

	// Longest continuity-consistent chain. A pruned candidate between two
	// kept exposures widens their allowed gap by one pulse slot each.
	n := len(ordered)
	best := make([]int, n)
	prev := make([]int, n)
	for i := range best {
		best[i] = 1
		prev[i] = -1
	}
	for i := 1; i < n; i++ {
		for j := 0; j < i; j++ {
			gap := float64(i - j)
			if ordered[i].DistanceTo(ordered[j]) > maxDisp*gap {
				continue
			}
			if best[j]+1 > best[i] {
				best[i] = best[j] + 1
				prev[i] = j
			}
		}
	}

	end := 0
	for i := 1; i < n; i++ {
		if best[i] > best[end] {
			end = i
		}
	}

	var chain []int
	for i := end; i >= 0; i = prev[i] {
		chain = append(chain, i)
		if prev[i] < 0 {
			break
		}
	}

	seq := make([]Exposure, 0, len(chain))
	for k := len(chain) - 1; k >= 0; k-- {
		i := chain[k]
		seq = append(seq, Exposure{Obs: ordered[i], Pulse: i})
	}
	// Rebase pulse slots on the first kept exposure.
	base := seq[0].Pulse
	for i := range seq {
		seq[i].Pulse -= base
	}
	return seq
}

func orderByPrincipalAxis(obs []shot.Observation) []shot.Observation {
	xs := make([]float64, len(obs))
	ys := make([]float64, len(obs))
	for i, o := range obs {
		xs[i] = o.X
		ys[i] = o.Y
	}
	mx := stat.Mean(xs, nil)
	my := stat.Mean(ys, nil)

	data := mat.NewDense(len(obs), 2, nil)
	for i := range obs {
		data.Set(i, 0, xs[i]-mx)
		data.Set(i, 1, ys[i]-my)
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)

	var eig mat.EigenSym
	axis := [2]float64{1, 0}
	if eig.Factorize(&cov, true) {
		var vecs mat.Dense
		eig.VectorsTo(&vecs)
		// EigenSym orders eigenvalues ascending; the last column is the
		// dominant direction.
		axis[0] = vecs.At(0, 1)
		axis[1] = vecs.At(1, 1)
	}

	// Flight convention: +x image direction, upward (-y) when the path is
	// vertical-dominant.
	if math.Abs(axis[0]) >= math.Abs(axis[1]) {
		if axis[0] < 0 {
			axis[0], axis[1] = -axis[0], -axis[1]
		}
	} else if axis[1] > 0 {
		axis[0], axis[1] = -axis[0], -axis[1]
	}

	out := make([]shot.Observation, len(obs))
	copy(out, obs)
	proj := func(o shot.Observation) float64 {
		return (o.X-mx)*axis[0] + (o.Y-my)*axis[1]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return proj(out[i]) < proj(out[j])
	})
	return out
}

func meanRadius(obs []shot.Observation) float64 {
	rs := make([]float64, len(obs))
	for i, o := range obs {
		rs[i] = o.Radius
	}
	return stat.Mean(rs, nil)
}
