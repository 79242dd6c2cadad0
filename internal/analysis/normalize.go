package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kalambet/doomclock/internal/storage"
)

const (
	MinProbability = 0
	MaxProbability = 100
	CardCount      = 3
)

// Normalize shapes a parsed result for persistence. Skill risks without a
// name and cards without a valid index are dropped, later duplicates replace
// earlier ones, and numbers are clamped into their ranges. It fails with
// ErrMalformedResult when either collection ends up empty.
func (r Result) Normalize() (Result, error) {
	out := Result{Horizon: r.Horizon}
	if out.Horizon < 0 {
		out.Horizon = 0
	}

	risks := make(map[string]int)
	for _, sr := range r.SkillRisks {
		sr.SkillName = strings.TrimSpace(sr.SkillName)
		if sr.SkillName == "" {
			continue
		}
		sr.Probability = min(max(sr.Probability, MinProbability), MaxProbability)
		if sr.TimeHorizon < 0 {
			sr.TimeHorizon = 0
		}
		if i, ok := risks[sr.SkillName]; ok {
			out.SkillRisks[i] = sr
			continue
		}
		risks[sr.SkillName] = len(out.SkillRisks)
		out.SkillRisks = append(out.SkillRisks, sr)
	}

	cards := make(map[int]storage.CareerCard)
	for _, c := range r.CareerCards {
		if c.CardIndex < 0 || c.CardIndex >= CardCount {
			continue
		}
		if c.Roadmap == nil {
			c.Roadmap = []storage.RoadmapStep{}
		}
		cards[c.CardIndex] = c
	}
	for _, c := range cards {
		out.CareerCards = append(out.CareerCards, c)
	}
	sort.Slice(out.CareerCards, func(i, j int) bool {
		return out.CareerCards[i].CardIndex < out.CareerCards[j].CardIndex
	})

	if len(out.SkillRisks) == 0 {
		return Result{}, fmt.Errorf("%w: no usable skill risks", ErrMalformedResult)
	}
	if len(out.CareerCards) == 0 {
		return Result{}, fmt.Errorf("%w: no usable career cards", ErrMalformedResult)
	}
	return out, nil
}
