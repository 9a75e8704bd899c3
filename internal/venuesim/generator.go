package venuesim

import (
	"crypto/rand"
	"math"
	"math/big"
	"strconv"

	"github.com/google/uuid"
)

const randomFloatDivisor = 1000000

var stagePrefixes = []string{ //nolint:gochecknoglobals // name pool
	"Lou", "Mika", "Zoé", "Nour", "Élise", "Sacha", "Ines", "Tom", "Lina", "Yanis", "Maé", "Rayan",
}

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// performer is a generated candidate. Appeal is the share of the audience
// that votes for it.
type performer struct {
	StageName string
	Appeal    float64
	Talent    float64
}

// generatePerformers creates n performers with distinct stage names.
func generatePerformers(n int) []performer {
	out := make([]performer, n)
	for i := range out {
		out[i] = performer{
			StageName: stagePrefixes[i%len(stagePrefixes)] + " " + strconv.Itoa(i+1),
			Appeal:    0.2 + getRandomFloat()*0.7,
			Talent:    0.4 + getRandomFloat()*0.6,
		}
	}
	return out
}

// generateAudience creates one device fingerprint per voter.
func generateAudience(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "sim-" + uuid.NewString()
	}
	return out
}

// generateScores rates every criterion around talent, in half points.
func generateScores(criteria map[string]float64, talent float64) map[string]float64 {
	out := make(map[string]float64, len(criteria))
	for name, limit := range criteria {
		v := limit * (talent + (getRandomFloat()-0.5)*0.2)
		v = math.Round(v*2) / 2
		out[name] = math.Max(0, math.Min(limit, v))
	}
	return out
}
