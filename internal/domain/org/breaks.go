package org

import (
	"slices"
	"time"
)

// BreakRule deducts BreakMinutes from shifts whose gross length falls in
// (MinMinutes, MaxMinutes].
type BreakRule struct {
	MinMinutes   int
	MaxMinutes   int
	BreakMinutes int
}

type BreakPolicy []BreakRule

// NetDuration applies the policy to a gross shift length: the smallest rule
// whose max covers the shift wins, otherwise the largest rule applies. A
// break that would swallow the whole shift is ignored.
func (p BreakPolicy) NetDuration(gross time.Duration) time.Duration {
	if gross <= 0 {
		return 0
	}
	if len(p) == 0 {
		return gross
	}

	rules := slices.Clone(p)
	slices.SortFunc(rules, func(a, b BreakRule) int { return a.MaxMinutes - b.MaxMinutes })

	grossMinutes := int(gross / time.Minute)
	rule := rules[len(rules)-1]
	for _, r := range rules {
		if r.MaxMinutes >= grossMinutes {
			rule = r
			break
		}
	}

	brk := time.Duration(rule.BreakMinutes) * time.Minute
	if brk >= gross || brk < 0 {
		return gross
	}
	return gross - brk
}
