package audit

import (
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"

	"AcadFinAudit/internal/config"
)

// SelectTargets picks the rows sent to external regulation validation.
// Three groups feed the selection:
//
//  1. severe rows: violation_count >= SevereViolationCount
//  2. high-amount rows: the top int(0.5% * n) rows by amount, capped
//     at 50 (requires the amount field to be mapped)
//  3. random fill from the remaining rows up to maxSamples
//
// Groups 1 and 2 are the priority set and are always included while
// they fit in maxSamples; the random fill only tops the selection up.
// The returned indices are ascending row positions in t.
func SelectTargets(t *Table, flags *FlagTable, mapping FieldMapping, maxSamples int, rng *rand.Rand) []int {
	n := t.Len()
	if n == 0 || maxSamples <= 0 {
		return nil
	}

	priority := make(map[int]bool)
	for i, c := range flags.Counts {
		if c >= config.SevereViolationCount {
			priority[i] = true
		}
	}
	for _, i := range topAmountRows(t, mapping, n) {
		priority[i] = true
	}

	selected := sortedKeys(priority)
	if len(selected) > maxSamples {
		return selected[:maxSamples]
	}

	remaining := maxSamples - len(selected)
	if remaining > 0 {
		pool := make([]int, 0, n-len(selected))
		for i := 0; i < n; i++ {
			if !priority[i] {
				pool = append(pool, i)
			}
		}
		rng.Shuffle(len(pool), func(a, b int) { pool[a], pool[b] = pool[b], pool[a] })
		if remaining > len(pool) {
			remaining = len(pool)
		}
		selected = append(selected, pool[:remaining]...)
	}
	sort.Ints(selected)
	return selected
}

// topAmountRows returns the rows with the largest parseable amounts.
// The quota is int(n * 0.005) capped at TopAmountCap; the int()
// truncation means small files contribute no high-amount rows at all.
func topAmountRows(t *Table, mapping FieldMapping, n int) []int {
	col, ok := mapping.Mapped("amount")
	if !ok {
		return nil
	}
	vals, ok := t.Column(col)
	if !ok {
		return nil
	}
	quota := int(float64(n) * config.TopAmountFraction)
	if quota > config.TopAmountCap {
		quota = config.TopAmountCap
	}
	if quota <= 0 {
		return nil
	}

	type rowAmount struct {
		row    int
		amount decimal.Decimal
	}
	parsed := make([]rowAmount, 0, n)
	for i, v := range vals {
		if d, ok := parseAmount(v); ok {
			parsed = append(parsed, rowAmount{row: i, amount: d})
		}
	}
	sort.SliceStable(parsed, func(a, b int) bool {
		return parsed[a].amount.GreaterThan(parsed[b].amount)
	})
	if quota > len(parsed) {
		quota = len(parsed)
	}
	rows := make([]int, quota)
	for i := 0; i < quota; i++ {
		rows[i] = parsed[i].row
	}
	return rows
}

func sortedKeys(set map[int]bool) []int {
	keys := make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
