package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kalambet/doomclock/internal/storage"
)

// ErrMalformedResult is returned when the agent's text does not hold a
// usable result document.
var ErrMalformedResult = errors.New("malformed analysis result")

const (
	// DefaultHorizon is used when the document carries no horizon.
	DefaultHorizon = 0.0

	// NoCardIndex marks a career card whose index was absent or not a number.
	NoCardIndex = -1

	fence = "```"
)

// Result is the structured analysis extracted from one agent response.
type Result struct {
	Horizon     float64
	SkillRisks  []storage.SkillRisk
	CareerCards []storage.CareerCard
}

// ParseResult extracts the result document from raw. When raw contains a code
// fence only the first fenced span is read, minus an optional language label.
// Missing fields fall back to defaults; only an unreadable document fails.
func ParseResult(raw string) (Result, error) {
	text, err := extractDocument(raw)
	if err != nil {
		return Result{}, err
	}

	if !strings.HasPrefix(text, "{") {
		return Result{}, fmt.Errorf("%w: document is not an object", ErrMalformedResult)
	}

	var doc rawResult
	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&doc); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMalformedResult, err)
	}
	if dec.More() {
		return Result{}, fmt.Errorf("%w: trailing data after document", ErrMalformedResult)
	}

	res := Result{
		Horizon:     doc.Horizon.or(doc.DDay).value(DefaultHorizon),
		SkillRisks:  make([]storage.SkillRisk, 0, len(doc.SkillRisks)),
		CareerCards: make([]storage.CareerCard, 0, len(doc.CareerCards)),
	}
	for _, r := range doc.SkillRisks {
		res.SkillRisks = append(res.SkillRisks, storage.SkillRisk{
			SkillName:     r.SkillName,
			Category:      r.Category,
			Probability:   toInt(r.Probability.or(r.ReplacementProb).value(0)),
			TimeHorizon:   r.TimeHorizon.value(0),
			Justification: r.Justification,
		})
	}
	for _, c := range doc.CareerCards {
		rationale := c.Rationale
		if rationale == "" {
			rationale = c.Reason
		}
		roadmap := c.Roadmap
		if roadmap == nil {
			roadmap = []storage.RoadmapStep{}
		}
		res.CareerCards = append(res.CareerCards, storage.CareerCard{
			CardIndex:    toInt(c.CardIndex.value(NoCardIndex)),
			ComboFormula: c.ComboFormula,
			Rationale:    rationale,
			Roadmap:      roadmap,
		})
	}
	return res, nil
}

func extractDocument(raw string) (string, error) {
	start := strings.Index(raw, fence)
	if start < 0 {
		return strings.TrimSpace(raw), nil
	}
	body := raw[start+len(fence):]
	body = strings.TrimLeftFunc(body, isLabelRune)
	end := strings.Index(body, fence)
	if end < 0 {
		return "", fmt.Errorf("%w: unclosed code fence", ErrMalformedResult)
	}
	return strings.TrimSpace(body[:end]), nil
}

func isLabelRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

type rawResult struct {
	Horizon     number          `json:"horizon"`
	DDay        number          `json:"dday"`
	SkillRisks  []rawSkillRisk  `json:"skill_risks"`
	CareerCards []rawCareerCard `json:"career_cards"`
}

type rawSkillRisk struct {
	SkillName       string `json:"skill_name"`
	Category        string `json:"category"`
	Probability     number `json:"probability"`
	ReplacementProb number `json:"replacement_prob"`
	TimeHorizon     number `json:"time_horizon"`
	Justification   string `json:"justification"`
}

type rawCareerCard struct {
	CardIndex    number                `json:"card_index"`
	ComboFormula string                `json:"combo_formula"`
	Rationale    string                `json:"rationale"`
	Reason       string                `json:"reason"`
	Roadmap      []storage.RoadmapStep `json:"roadmap"`
}

// number accepts a JSON number or a numeric string. Anything else leaves it
// unset instead of failing the whole document.
type number struct {
	v  float64
	ok bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	default:
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	n.v, n.ok = f, true
	return nil
}

func (n number) or(alt number) number {
	if n.ok {
		return n
	}
	return alt
}

func (n number) value(def float64) float64 {
	if !n.ok {
		return def
	}
	return n.v
}

// toInt rounds half away from zero, saturating far outside any valid range.
func toInt(f float64) int {
	const limit = 1 << 30
	switch {
	case f > limit:
		return limit
	case f < -limit:
		return -limit
	}
	return int(math.Round(f))
}
