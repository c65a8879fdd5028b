package allocate

import (
	"errors"
	"testing"

	"github.com/pavelanni/quizen/internal/model"
)

func codes(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = model.PartCode(i + 1)
	}
	return out
}

func TestAllocateTenOverThree(t *testing.T) {
	quotas, err := Allocate(10, codes(3))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	want := []int{4, 3, 3}
	for i, w := range want {
		if quotas[i].Count != w {
			t.Errorf("quota %d = %d, want %d", i, quotas[i].Count, w)
		}
		if quotas[i].PartCode != model.PartCode(i+1) {
			t.Errorf("quota %d code = %q", i, quotas[i].PartCode)
		}
	}
}

func TestAllocateSumAndSpread(t *testing.T) {
	for total := 0; total <= 40; total++ {
		for parts := 1; parts <= 12; parts++ {
			quotas, err := Allocate(total, codes(parts))
			if err != nil {
				t.Fatalf("Allocate(%d, %d): %v", total, parts, err)
			}
			if quotas.Total() != total {
				t.Fatalf("Allocate(%d, %d) sums to %d", total, parts, quotas.Total())
			}
			lo, hi := quotas[0].Count, quotas[0].Count
			for i, q := range quotas {
				lo, hi = min(lo, q.Count), max(hi, q.Count)
				if i > 0 && q.Count > quotas[i-1].Count {
					t.Fatalf("Allocate(%d, %d): later part got more than earlier: %v", total, parts, quotas)
				}
			}
			if hi-lo > 1 {
				t.Fatalf("Allocate(%d, %d) spread %d: %v", total, parts, hi-lo, quotas)
			}
		}
	}
}

func TestAllocateErrors(t *testing.T) {
	tests := []struct {
		name  string
		total int
		codes []string
	}{
		{"no parts", 10, nil},
		{"negative total", -1, codes(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Allocate(tt.total, tt.codes)
			if !errors.Is(err, model.ErrAllocation) {
				t.Errorf("expected ErrAllocation, got %v", err)
			}
		})
	}
}

func TestRebalanceOrder(t *testing.T) {
	quotas := Quotas{
		{PartCode: "PART.01", Count: 4},
		{PartCode: "PART.02", Count: 3},
		{PartCode: "PART.03", Count: 3},
		{PartCode: "PART.04", Count: 4},
	}
	yields := map[string]int{"PART.01": 2, "PART.02": 3, "PART.03": 0, "PART.04": 2}
	plan := Rebalance(quotas, yields)

	want := []model.Shortfall{
		{PartCode: "PART.03", Quota: 3, Yield: 0, Missing: 3},
		{PartCode: "PART.01", Quota: 4, Yield: 2, Missing: 2},
		{PartCode: "PART.04", Quota: 4, Yield: 2, Missing: 2},
	}
	if len(plan.Shortfalls) != len(want) {
		t.Fatalf("plan = %+v", plan.Shortfalls)
	}
	for i := range want {
		if plan.Shortfalls[i] != want[i] {
			t.Errorf("shortfall %d = %+v, want %+v", i, plan.Shortfalls[i], want[i])
		}
	}
	if plan.Missing() != 7 {
		t.Errorf("Missing() = %d, want 7", plan.Missing())
	}
	if !Rebalance(quotas, map[string]int{"PART.01": 4, "PART.02": 5, "PART.03": 3, "PART.04": 4}).Empty() {
		t.Error("met quotas must give an empty plan")
	}
}
