// Package ranking turns jury scores, public votes and social shares into a
// weighted composite ranking.
package ranking

import (
	"fmt"
	"sort"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
)

const maxNormalized = 100

// JuryMode selects how a candidate's jury scores are combined.
type JuryMode int

const (
	// JurySum adds every juror's total.
	JurySum JuryMode = iota
	// JuryAverage averages the jurors' totals.
	JuryAverage
)

// String returns the mode's configuration name.
func (m JuryMode) String() string {
	if m == JuryAverage {
		return "average"
	}
	return "sum"
}

// ParseJuryMode reads "sum" or "average". An empty string means sum.
func ParseJuryMode(s string) (JuryMode, error) {
	switch s {
	case "", "sum":
		return JurySum, nil
	case "average":
		return JuryAverage, nil
	}
	return JurySum, fmt.Errorf("unknown jury mode %q", s)
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithJuryMode sets how jury totals are combined.
func WithJuryMode(mode JuryMode) Option {
	return func(a *Aggregator) {
		a.juryMode = mode
	}
}

// Input is the raw material for one candidate, in insertion order.
type Input struct {
	CandidateID string
	StageName   string
	Category    string
	JuryScores  []float64
	PublicVotes int
	SocialVotes int
}

// Aggregator computes rankings. It never mutates its inputs.
type Aggregator struct {
	juryMode JuryMode
}

// New creates an Aggregator. Jury totals are summed unless configured otherwise.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{juryMode: JurySum}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aggregator) juryTotal(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	if a.juryMode == JuryAverage {
		return sum / float64(len(scores))
	}
	return sum
}

// normalize scales v to 0..100 against the scope maximum. A zero maximum yields 0.
func normalize(v, maxV float64) float64 {
	if maxV <= 0 || v <= 0 {
		return 0
	}
	return v / maxV * maxNormalized
}

// Compute ranks every input in one scope. Weights are applied as given, even
// when they do not add up to 100. Ties keep insertion order.
func (a *Aggregator) Compute(inputs []Input, w model.Weights) []model.Ranking {
	out := make([]model.Ranking, len(inputs))
	var maxJury, maxPublic, maxSocial float64
	for i, in := range inputs {
		out[i] = model.Ranking{
			CandidateID: in.CandidateID,
			StageName:   in.StageName,
			Category:    in.Category,
			JuryTotal:   a.juryTotal(in.JuryScores),
			PublicVotes: in.PublicVotes,
			SocialVotes: in.SocialVotes,
		}
		maxJury = max(maxJury, out[i].JuryTotal)
		maxPublic = max(maxPublic, float64(in.PublicVotes))
		maxSocial = max(maxSocial, float64(in.SocialVotes))
	}

	for i := range out {
		r := &out[i]
		r.JuryNormalized = normalize(r.JuryTotal, maxJury)
		r.PublicNormalized = normalize(float64(r.PublicVotes), maxPublic)
		r.SocialNormalized = normalize(float64(r.SocialVotes), maxSocial)
		r.Total = r.JuryNormalized*w.Jury/100 +
			r.PublicNormalized*w.Public/100 +
			r.SocialNormalized*w.Social/100
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// ComputeByCategory ranks each category as its own scope.
func (a *Aggregator) ComputeByCategory(inputs []Input, w model.Weights) map[string][]model.Ranking {
	groups := make(map[string][]Input)
	for _, in := range inputs {
		groups[in.Category] = append(groups[in.Category], in)
	}
	out := make(map[string][]model.Ranking, len(groups))
	for cat, group := range groups {
		out[cat] = a.Compute(group, w)
	}
	return out
}
