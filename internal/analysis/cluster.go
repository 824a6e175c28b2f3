package analysis

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/rwelens/rwelens-cli/internal/study"
)

// clusteringFeatures feed the k-means fit; missing values are zero-filled,
// and values stay unstandardized.
var clusteringFeatures = []string{
	"age", "baseline_bmi", "adherence_rate",
	"comorbidity_count", "treatment_duration_days",
}

const (
	kmeansSeed     = 42
	kmeansRestarts = 10
	kmeansMaxIter  = 300
)

type ClusterCharacteristics struct {
	MeanAge           float64 `json:"mean_age"`
	MeanBaselineBMI   float64 `json:"mean_baseline_bmi"`
	MeanAdherence     float64 `json:"mean_adherence"`
	MeanComorbidities float64 `json:"mean_comorbidities"`
}

type ClusterOutcomes struct {
	MeanWeightLoss float64 `json:"mean_weight_loss"`
	SuccessRate    float64 `json:"success_rate"`
	MounjaroUsage  float64 `json:"mounjaro_usage"`
}

type ClusterProfile struct {
	Cluster         int                    `json:"cluster"`
	NPatients       int                    `json:"n_patients"`
	Characteristics ClusterCharacteristics `json:"characteristics"`
	Outcomes        ClusterOutcomes        `json:"outcomes"`
}

// ClusterPatients partitions the cohort into k patient segments by k-means
// over the clinical feature set and profiles each segment.
func ClusterPatients(ds *study.Dataset, k int) ([]ClusterProfile, error) {
	if k <= 0 {
		k = 4
	}
	if len(ds.Patients) < k {
		return nil, fmt.Errorf("clustering needs at least %d patients (have %d)", k, len(ds.Patients))
	}
	points := make([][]float64, len(ds.Patients))
	for i := range ds.Patients {
		points[i] = make([]float64, len(clusteringFeatures))
	}
	for j, col := range clusteringFeatures {
		vals := ds.Numeric(col)
		for i, v := range vals {
			if math.IsNaN(v) {
				v = 0
			}
			points[i][j] = v
		}
	}

	rng := rand.New(rand.NewSource(kmeansSeed))
	bestInertia := math.Inf(1)
	var bestLabels []int
	for restart := 0; restart < kmeansRestarts; restart++ {
		labels, inertia := kmeansOnce(points, k, rng)
		if inertia < bestInertia {
			bestInertia = inertia
			bestLabels = labels
		}
	}

	profiles := make([]ClusterProfile, 0, k)
	for c := 0; c < k; c++ {
		var subset []*study.Patient
		for i, p := range ds.Patients {
			if bestLabels[i] == c {
				subset = append(subset, p)
			}
		}
		prof := ClusterProfile{Cluster: c, NPatients: len(subset)}
		if len(subset) > 0 {
			prof.Characteristics = ClusterCharacteristics{
				MeanAge:           round1(meanOver(subset, "age")),
				MeanBaselineBMI:   round1(meanOver(subset, "baseline_bmi")),
				MeanAdherence:     round2(meanOver(subset, "adherence_rate")),
				MeanComorbidities: round1(meanOver(subset, "comorbidity_count")),
			}
			prof.Outcomes = ClusterOutcomes{
				MeanWeightLoss: round2(meanOver(subset, "weight_change_kg")),
				SuccessRate:    round1(successRate(subset)),
				MounjaroUsage:  round1(rate(subset, func(p *study.Patient) bool { return p.Intervention == InterventionMounjaro })),
			}
		}
		profiles = append(profiles, prof)
	}
	return profiles, nil
}

// kmeansOnce runs one k-means++ seeded Lloyd fit and returns the labels and
// total inertia.
func kmeansOnce(points [][]float64, k int, rng *rand.Rand) ([]int, float64) {
	centers := seedPlusPlus(points, k, rng)
	labels := make([]int, len(points))
	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := false
		for i, p := range points {
			best := 0
			bestD := sqDist(p, centers[0])
			for c := 1; c < k; c++ {
				if d := sqDist(p, centers[c]); d < bestD {
					bestD = d
					best = c
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		// Recompute centers; an emptied cluster keeps its previous center.
		dims := len(points[0])
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, p := range points {
			c := labels[i]
			counts[c]++
			for j, v := range p {
				sums[c][j] += v
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			for j := range sums[c] {
				centers[c][j] = sums[c][j] / float64(counts[c])
			}
		}
		if !changed {
			break
		}
	}
	var inertia float64
	for i, p := range points {
		inertia += sqDist(p, centers[labels[i]])
	}
	return labels, inertia
}

// seedPlusPlus picks initial centers with distance-weighted sampling.
func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	first := points[rng.Intn(len(points))]
	centers = append(centers, append([]float64(nil), first...))
	dists := make([]float64, len(points))
	for len(centers) < k {
		var total float64
		for i, p := range points {
			d := sqDist(p, centers[0])
			for _, c := range centers[1:] {
				if dc := sqDist(p, c); dc < d {
					d = dc
				}
			}
			dists[i] = d
			total += d
		}
		if total == 0 {
			// All remaining points coincide with a center.
			centers = append(centers, append([]float64(nil), points[rng.Intn(len(points))]...))
			continue
		}
		target := rng.Float64() * total
		var acc float64
		pick := len(points) - 1
		for i, d := range dists {
			acc += d
			if acc >= target {
				pick = i
				break
			}
		}
		centers = append(centers, append([]float64(nil), points[pick]...))
	}
	return centers
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
