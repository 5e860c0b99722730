// Package sandwich scores assembled sandwiches against customer orders.
// This package is PURE and must NOT import any infrastructure packages.
package sandwich

import (
	"fmt"
	"strings"
)

// MatchMode selects how delivered ingredients are compared to the order.
type MatchMode string

const (
	// MatchIgnoreOrder compares ingredient multisets, case-insensitively.
	MatchIgnoreOrder MatchMode = "ignore_order"
	// MatchExactOrder compares position by position, case-insensitively.
	MatchExactOrder MatchMode = "exact_order"
)

// Order is a requested sandwich, bottom ingredient first.
type Order struct {
	Name          string   `json:"name" yaml:"name"`
	IngredientIDs []string `json:"ingredients" yaml:"ingredients"`
}

// Score is the outcome of comparing a stack against an order.
type Score struct {
	OrderName      string   `json:"order_name"`
	RequiredCount  int      `json:"required_count"`
	DeliveredCount int      `json:"delivered_count"`
	CorrectCount   int      `json:"correct_count"`
	WrongCount     int      `json:"wrong_count"`
	MissingCount   int      `json:"missing_count"`
	Stars          int      `json:"stars"`
	Required       []string `json:"required"`
	Delivered      []string `json:"delivered"`
}

// Rating converts the correct/required ratio into stars.
type Rating struct {
	MaxStars                int     `json:"max_stars" yaml:"max_stars"`
	OneStarAt               float64 `json:"one_star_at" yaml:"one_star_at"`
	TwoStarsAt              float64 `json:"two_stars_at" yaml:"two_stars_at"`
	ThreeStarsAt            float64 `json:"three_stars_at" yaml:"three_stars_at"`
	PerfectRequiresNoExtras bool    `json:"perfect_requires_no_extras" yaml:"perfect_requires_no_extras"`
}

// DefaultRating awards stars at a third, two thirds and all of the order.
func DefaultRating() Rating {
	return Rating{MaxStars: 3, OneStarAt: 0.34, TwoStarsAt: 0.67, ThreeStarsAt: 1.0}
}

// Stars rates a score. An order with no required ingredients earns nothing.
func (r Rating) Stars(s Score) int {
	if s.RequiredCount <= 0 {
		return 0
	}
	ratio := float64(s.CorrectCount) / float64(s.RequiredCount)

	stars := 0
	switch {
	case ratio >= r.ThreeStarsAt && (!r.PerfectRequiresNoExtras || s.WrongCount == 0):
		stars = 3
	case ratio >= r.TwoStarsAt:
		stars = 2
	case ratio >= r.OneStarAt:
		stars = 1
	}
	return min(max(stars, 0), max(r.MaxStars, 0))
}

// Evaluate compares delivered ingredient ids, bottom first, against order.
func Evaluate(order Order, delivered []string, mode MatchMode, rating Rating) Score {
	score := Score{
		OrderName:      order.Name,
		Required:       append([]string(nil), order.IngredientIDs...),
		Delivered:      append([]string(nil), delivered...),
		RequiredCount:  len(order.IngredientIDs),
		DeliveredCount: len(delivered),
	}

	if mode == MatchExactOrder {
		correct := 0
		for i := 0; i < min(len(score.Required), len(score.Delivered)); i++ {
			if strings.EqualFold(score.Required[i], score.Delivered[i]) {
				correct++
			}
		}
		score.CorrectCount = correct
		score.WrongCount = score.DeliveredCount - correct
		score.MissingCount = score.RequiredCount - correct
	} else {
		remaining := make(map[string]int)
		for _, id := range score.Required {
			if strings.TrimSpace(id) == "" {
				continue
			}
			remaining[strings.ToLower(id)]++
		}

		for _, got := range score.Delivered {
			key := strings.ToLower(got)
			if strings.TrimSpace(got) != "" && remaining[key] > 0 {
				score.CorrectCount++
				remaining[key]--
				continue
			}
			score.WrongCount++
		}

		for _, n := range remaining {
			score.MissingCount += n
		}
	}

	score.Stars = rating.Stars(score)
	return score
}

// Complete reports whether a stack satisfies its order. Extras are tolerated unless
// requireNoExtras is set.
func Complete(s Score, requireNoExtras bool) bool {
	if s.MissingCount != 0 {
		return false
	}
	return !requireNoExtras || s.WrongCount == 0
}

// Summary renders a score for logs.
func (s Score) Summary() string {
	return fmt.Sprintf("order=%s correct=%d wrong=%d missing=%d stars=%d",
		s.OrderName, s.CorrectCount, s.WrongCount, s.MissingCount, s.Stars)
}
