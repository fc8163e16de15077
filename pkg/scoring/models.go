package scoring

import (
	"math"

	"github.com/alexis-pagnon/green-optimizer/models"
)

// Model is one versioned scoring formula. Sub-scores are raw and get
// clamped and rounded by the Engine.
type Model struct {
	Version     string
	Description string
	Weights     map[models.Category]float64

	transfer  func(models.PageSnapshot) float64
	requests  func(models.PageSnapshot) float64
	rendering func(models.PageSnapshot) float64
}

const (
	VersionLogScale = "green-2024.1"
	VersionEcoIndex = "green-2025.1"

	// DefaultModelVersion is used when a caller has no preference.
	DefaultModelVersion = VersionEcoIndex
)

func logScaleModel() Model {
	return Model{
		Version:     VersionLogScale,
		Description: "log-scale interpolation between a good and a bad bound per category",
		Weights: map[models.Category]float64{
			models.CategoryTransfer:  0.35,
			models.CategoryRequests:  0.25,
			models.CategoryRendering: 0.25,
			models.CategoryHosting:   0.15,
		},
		transfer: func(s models.PageSnapshot) float64 {
			return logScale(float64(s.TotalBytes), 100*1024, 10*1024*1024)
		},
		requests: func(s models.PageSnapshot) float64 {
			return logScale(float64(s.RequestCount), 10, 300)
		},
		rendering: func(s models.PageSnapshot) float64 {
			return logScale(float64(s.DOMNodeCount), 300, 6000)
		},
	}
}

// logScale is 100 at or below good, 0 at or above bad, log-linear in between.
func logScale(v, good, bad float64) float64 {
	if v <= good {
		return 100
	}
	if v >= bad {
		return 0
	}
	return 100 * (math.Log(bad) - math.Log(v)) / (math.Log(bad) - math.Log(good))
}

// EcoIndex quantiles (https://www.ecoindex.fr) for DOM elements, requests and kilobytes.
var (
	domQuantiles = []float64{
		0, 47, 75, 159, 233, 298, 358, 417, 476, 537, 603, 674, 753, 843, 949, 1076, 1237, 1459, 1801, 2479, 594601,
	}
	requestQuantiles = []float64{
		0, 2, 15, 25, 34, 42, 49, 56, 63, 70, 78, 86, 95, 105, 117, 130, 147, 170, 205, 281, 3920,
	}
	sizeQuantiles = []float64{
		0, 1.37, 144.7, 319.53, 479.46, 631.97, 783.38, 937.91, 1098.62, 1265.47, 1448.32,
		1648.27, 1876.08, 2142.06, 2465.37, 2866.31, 3401.59, 4155.73, 5400.08, 8037.54, 223212.26,
	}
)

// ecoIndexWeight is the share of the overall score taken by the three EcoIndex dimensions.
const ecoIndexWeight = 0.85

func ecoIndexModel() Model {
	return Model{
		Version:     VersionEcoIndex,
		Description: "EcoIndex quantile model (DOM 3, requests 2, size 1) plus a hosting component",
		Weights: map[models.Category]float64{
			models.CategoryRendering: ecoIndexWeight * 3 / 6,
			models.CategoryRequests:  ecoIndexWeight * 2 / 6,
			models.CategoryTransfer:  ecoIndexWeight * 1 / 6,
			models.CategoryHosting:   1 - ecoIndexWeight,
		},
		transfer: func(s models.PageSnapshot) float64 {
			return quantileScore(sizeQuantiles, float64(s.TotalBytes)/1024)
		},
		requests: func(s models.PageSnapshot) float64 {
			return quantileScore(requestQuantiles, float64(s.RequestCount))
		},
		rendering: func(s models.PageSnapshot) float64 {
			return quantileScore(domQuantiles, float64(s.DOMNodeCount))
		},
	}
}

// quantileScore maps v to 100 - 5q where q is its interpolated position in quantiles.
func quantileScore(quantiles []float64, v float64) float64 {
	q := float64(len(quantiles) - 1)
	for i := 1; i < len(quantiles); i++ {
		if v < quantiles[i] {
			q = float64(i-1) + (v-quantiles[i-1])/(quantiles[i]-quantiles[i-1])
			break
		}
	}
	return 100 - 5*q
}

// hostingScore gives unknown hosting the midpoint so it neither helps nor penalizes.
func hostingScore(g models.GreenHostSignal) float64 {
	switch {
	case !g.Known:
		return 50
	case g.IsGreen:
		return 100
	default:
		return 0
	}
}
