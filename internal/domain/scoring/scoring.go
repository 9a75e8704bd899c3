// Package scoring checks a juror's score sheet against the jury criteria and
// totals it.
package scoring

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
)

const maxPercent = 100

// Option applies a configuration option to the Scorecard.
type Option func(*Scorecard)

// WithCriteria replaces the criteria. Entries without a positive maximum are
// ignored.
func WithCriteria(criteria map[string]float64) Option {
	return func(s *Scorecard) {
		next := make(map[string]float64, len(criteria))
		for name, maxScore := range criteria {
			if maxScore > 0 {
				next[name] = maxScore
			}
		}
		if len(next) > 0 {
			s.criteria = next
		}
	}
}

// WithCompleteSheets refuses sheets that leave a criterion out.
func WithCompleteSheets() Option {
	return func(s *Scorecard) {
		s.partial = false
	}
}

// Result is a checked sheet.
type Result struct {
	Total   float64
	Max     float64
	Percent float64
}

// Scorecard validates sheets. It is immutable after construction and safe for
// concurrent use.
type Scorecard struct {
	criteria map[string]float64
	partial  bool
}

// DefaultCriteria is used when no criteria are configured.
func DefaultCriteria() map[string]float64 {
	return map[string]float64{
		"voice":          10,
		"interpretation": 10,
		"stage_presence": 10,
	}
}

// NewScorecard creates a scorecard. A sheet may leave criteria out unless
// WithCompleteSheets is given.
func NewScorecard(opts ...Option) *Scorecard {
	s := &Scorecard{criteria: DefaultCriteria(), partial: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Criteria returns a copy of the criteria and their maxima.
func (s *Scorecard) Criteria() map[string]float64 {
	return maps.Clone(s.criteria)
}

// Names returns the criteria names in sorted order.
func (s *Scorecard) Names() []string {
	return slices.Sorted(maps.Keys(s.criteria))
}

// Max is the best total a complete sheet can reach.
func (s *Scorecard) Max() float64 {
	var m float64
	for _, v := range s.criteria {
		m += v
	}
	return m
}

// Score checks every entry of sheet and totals it. Failures are
// model.ErrInvalidInput errors carrying op.
func (s *Scorecard) Score(op string, sheet map[string]float64) (Result, error) {
	if len(sheet) == 0 {
		return Result{}, model.NewKind(op, model.ErrInvalidInput, "no criteria scored")
	}
	var total float64
	for _, name := range slices.Sorted(maps.Keys(sheet)) {
		v := sheet[name]
		maxScore, ok := s.criteria[name]
		if !ok {
			return Result{}, model.NewKind(op, model.ErrInvalidInput, "unknown criterion "+name)
		}
		if math.IsNaN(v) || v < 0 || v > maxScore {
			return Result{}, model.NewKind(op, model.ErrInvalidInput,
				fmt.Sprintf("%s must be between 0 and %g", name, maxScore))
		}
		total += v
	}
	if !s.partial && len(sheet) != len(s.criteria) {
		return Result{}, model.NewKind(op, model.ErrInvalidInput,
			fmt.Sprintf("sheet scores %d of %d criteria", len(sheet), len(s.criteria)))
	}
	res := Result{Total: total, Max: s.Max()}
	if res.Max > 0 {
		res.Percent = total / res.Max * maxPercent
	}
	return res, nil
}
