// Package allocate distributes the question budget across parts and plans
// supplemental generation for parts that fell short.
package allocate

import (
	"fmt"
	"sort"

	"github.com/pavelanni/quizen/internal/model"
)

// Quotas holds one quota per part, in part order.
type Quotas []model.Quota

// Total returns the sum of all quotas.
func (q Quotas) Total() int {
	total := 0
	for _, quota := range q {
		total += quota.Count
	}
	return total
}

// Of returns the quota assigned to code, or 0.
func (q Quotas) Of(code string) int {
	for _, quota := range q {
		if quota.PartCode == code {
			return quota.Count
		}
	}
	return 0
}

// Allocate splits total across codes. Every part gets the floor share and the
// remainder goes one unit at a time to the least-allocated part, earliest part
// first, so the quotas differ by at most one.
func Allocate(total int, codes []string) (Quotas, error) {
	if len(codes) == 0 {
		return nil, model.Wrap(model.ErrAllocation, model.StageGenerating, "allocate", "no parts to allocate across", nil)
	}
	if total < 0 {
		return nil, model.Wrap(model.ErrAllocation, model.StageGenerating, "allocate", fmt.Sprintf("negative total %d", total), nil)
	}

	base := total / len(codes)
	quotas := make(Quotas, len(codes))
	for i, code := range codes {
		quotas[i] = model.Quota{PartCode: code, Count: base}
	}
	for remainder := total - base*len(codes); remainder > 0; remainder-- {
		least := 0
		for i := 1; i < len(quotas); i++ {
			if quotas[i].Count < quotas[least].Count {
				least = i
			}
		}
		quotas[least].Count++
	}
	return quotas, nil
}

// Plan lists the parts that need supplemental generation.
type Plan struct {
	Shortfalls []model.Shortfall
}

// Missing returns the total number of questions still owed.
func (p Plan) Missing() int {
	n := 0
	for _, s := range p.Shortfalls {
		n += s.Missing
	}
	return n
}

// Empty reports whether every quota is met.
func (p Plan) Empty() bool {
	return len(p.Shortfalls) == 0
}

// Rebalance compares yields against quotas. Parts with a shortfall are
// ordered least-filled first (lowest yield/quota ratio), ties by part order.
func Rebalance(quotas Quotas, yields map[string]int) Plan {
	type ranked struct {
		shortfall model.Shortfall
		index     int
	}
	var short []ranked
	for i, q := range quotas {
		yield := yields[q.PartCode]
		if yield >= q.Count {
			continue
		}
		short = append(short, ranked{
			shortfall: model.Shortfall{PartCode: q.PartCode, Quota: q.Count, Yield: yield, Missing: q.Count - yield},
			index:     i,
		})
	}
	sort.SliceStable(short, func(i, j int) bool {
		a, b := short[i].shortfall, short[j].shortfall
		// compare yield/quota without floating point
		left, right := a.Yield*b.Quota, b.Yield*a.Quota
		if left != right {
			return left < right
		}
		return short[i].index < short[j].index
	})
	plan := Plan{Shortfalls: make([]model.Shortfall, 0, len(short))}
	for _, r := range short {
		plan.Shortfalls = append(plan.Shortfalls, r.shortfall)
	}
	return plan
}
