// Node resource seeding using layered simplex noise.
// Each resource kind samples its own noise layer at the node's hex position,
// so neighboring nodes get correlated abundances.
package world

import (
	"math"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// ResourceGenConfig holds node resource seeding parameters.
type ResourceGenConfig struct {
	Seed      int64
	Octaves   int
	Frequency float64
	// Floor is the minimum fraction of the base amount any node receives.
	Floor float64
}

// DefaultResourceGenConfig returns a reasonable starting configuration.
func DefaultResourceGenConfig(seed int64) ResourceGenConfig {
	return ResourceGenConfig{
		Seed:      seed,
		Octaves:   3,
		Frequency: 0.15,
		Floor:     0.2,
	}
}

// SeedResources fills each node's local pool for every resource in base.
// A node receives base[res] × abundance, where abundance ∈ [Floor, 1] comes
// from the noise layer for res. Amounts a node already declares are kept.
func SeedResources(nodes []Node, base map[string]float64, cfg ResourceGenConfig) {
	if len(base) == 0 {
		return
	}
	if cfg.Octaves < 1 {
		cfg.Octaves = 1
	}

	// Stable order so each resource always gets the same noise layer.
	kinds := make([]string, 0, len(base))
	for k := range base {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	for li, kind := range kinds {
		noise := opensimplex.NewNormalized(cfg.Seed + int64(li))
		for i := range nodes {
			n := &nodes[i]
			if _, ok := n.Resources[kind]; ok {
				continue
			}
			// Hex axial → cartesian: x = q + r*0.5, y = r * sqrt(3)/2
			x := float64(n.Position.Q) + float64(n.Position.R)*0.5
			y := float64(n.Position.R) * math.Sqrt(3.0) / 2.0

			abundance := octaveNoise(noise, x, y, cfg.Octaves, cfg.Frequency, 0.5)
			abundance = cfg.Floor + (1-cfg.Floor)*abundance

			if n.Resources == nil {
				n.Resources = make(map[string]float64)
			}
			n.Resources[kind] = math.Round(base[kind]*abundance*100) / 100
		}
	}
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
