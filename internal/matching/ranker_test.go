package matching

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
)

func vendorWith(id string, partner bool, lead *int, tags ...ServiceTag) Vendor {
	return Vendor{
		ID:        id,
		Name:      "Vendor " + id,
		Email:     id + "@vendors.example",
		IsPartner: partner,
		Profile: &CapabilityProfile{
			Capabilities:    CapabilitiesOf(tags...),
			AvgLeadTimeDays: lead,
		},
	}
}

func ids(matches []Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Vendor.ID
	}
	return out
}

func TestTopMatchesFoilScenario(t *testing.T) {
	spec := JobSpec{Finishing: "gold foil on cover"}
	a := vendorWith("a", true, intPtr(5), ServicePrinting, ServiceFoilStamping)
	b := vendorWith("b", false, intPtr(10), ServicePrinting)

	matches, err := TopMatches([]Vendor{b, a}, spec, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ids(matches); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected [a b], got %v", got)
	}
	if !matches[0].CanFulfill {
		t.Fatalf("vendor a should be able to fulfil")
	}
	if matches[1].CanFulfill {
		t.Fatalf("vendor b misses foil stamping and must not be fulfillable")
	}
	if matches[1].Score != 50 {
		t.Fatalf("expected vendor b to score exactly 50, got %v", matches[1].Score)
	}
}

func TestTopMatchesExcludesBelowBackfillThreshold(t *testing.T) {
	spec := JobSpec{Finishing: "foil"}
	a := vendorWith("a", false, intPtr(5), ServicePrinting, ServiceFoilStamping)
	slow := vendorWith("slow", false, intPtr(30), ServicePrinting)

	matches, err := TopMatches([]Vendor{a, slow}, spec, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ids(matches); len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected only a, got %v (slow scores 47)", got)
	}
}

func TestTopMatchesLimit(t *testing.T) {
	var vendors []Vendor
	for i := 0; i < 8; i++ {
		vendors = append(vendors, vendorWith(fmt.Sprintf("v%d", i), false, intPtr(i+1), ServicePrinting))
	}

	matches, err := TopMatches(vendors, JobSpec{}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ids(matches); len(got) != 3 || got[0] != "v0" || got[2] != "v2" {
		t.Fatalf("expected first three by lead time, got %v", got)
	}

	matches, err = TopMatches(vendors, JobSpec{}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != DefaultShortlistSize {
		t.Fatalf("expected default shortlist size, got %d", len(matches))
	}
}

func TestTopMatchesEmpty(t *testing.T) {
	spec := JobSpec{Finishing: "foil, emboss, die cut", BindingStyle: "saddle stitch"}
	vendors := []Vendor{{ID: "no-profile"}, vendorWith("p", false, nil, ServicePrinting)}

	_, err := TopMatches(vendors, spec, 5)
	if !errors.Is(err, ErrNoMatchingVendors) {
		t.Fatalf("expected ErrNoMatchingVendors, got %v", err)
	}

	if _, err := TopMatches(nil, spec, 5); !errors.Is(err, ErrNoMatchingVendors) {
		t.Fatalf("expected ErrNoMatchingVendors for empty pool, got %v", err)
	}
}

func TestRankTieBreak(t *testing.T) {
	// All three score 70 + 10 + 10: equal score, ordered by lead time then id.
	x := vendorWith("x", false, intPtr(6), ServicePrinting)
	y := vendorWith("y", false, intPtr(3), ServicePrinting)
	z := vendorWith("z", false, intPtr(3), ServicePrinting)
	// 70 + 10 + 5 with unknown lead time.
	u := vendorWith("u", false, nil, ServicePrinting)
	// 70 + 10 + 5 with known 10 day lead time sorts before unknown.
	k := vendorWith("k", false, intPtr(10), ServicePrinting)

	got := ids(Rank([]Vendor{u, z, x, k, y}, JobSpec{}))
	want := []string{"y", "z", "x", "k", "u"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestManualMatches(t *testing.T) {
	v1 := Vendor{ID: "m1"}
	v2 := vendorWith("m2", false, intPtr(4))

	matches := ManualMatches([]Vendor{v1, v2, v1})
	if len(matches) != 2 {
		t.Fatalf("duplicates should collapse, got %d", len(matches))
	}
	for _, m := range matches {
		if m.Score != MaxScore || !m.CanFulfill || !m.Manual || len(m.MissingServices) != 0 {
			t.Fatalf("manual match should be perfect: %+v", m)
		}
	}
	if matches[1].EstimatedLeadTimeDays == nil || *matches[1].EstimatedLeadTimeDays != 4 {
		t.Fatalf("expected lead time to carry over")
	}
}

func TestTopMatchesProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	specs := []JobSpec{
		{},
		{Finishing: "foil"},
		{Finishing: "emboss, fold", BindingStyle: "perfect"},
		{Coating: "uv", PageCount: intPtr(300)},
	}

	for round := 0; round < 300; round++ {
		n := rng.Intn(12)
		vendors := make([]Vendor, 0, n)
		for i := 0; i < n; i++ {
			var tags []ServiceTag
			for _, tag := range AllServices {
				if rng.Intn(2) == 0 {
					tags = append(tags, tag)
				}
			}
			var lead *int
			if rng.Intn(2) == 0 {
				lead = intPtr(rng.Intn(25))
			}
			vendors = append(vendors, vendorWith(fmt.Sprintf("r%d-%d", round, i), rng.Intn(2) == 0, lead, tags...))
		}

		limit := 1 + rng.Intn(6)
		spec := specs[rng.Intn(len(specs))]
		matches, err := TopMatches(vendors, spec, limit)
		if err != nil {
			if !errors.Is(err, ErrNoMatchingVendors) {
				t.Fatalf("unexpected error: %v", err)
			}
			continue
		}
		if len(matches) > limit {
			t.Fatalf("shortlist exceeds limit %d: %d", limit, len(matches))
		}
		for _, m := range matches {
			if m.Score < BackfillThreshold {
				t.Fatalf("shortlisted vendor below threshold: %+v", m)
			}
		}
	}
}
