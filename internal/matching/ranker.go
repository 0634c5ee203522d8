package matching

import (
	"errors"
	"sort"
)

// DefaultShortlistSize is the number of vendors invited when the caller does
// not choose vendors explicitly.
const DefaultShortlistSize = 5

// ErrNoMatchingVendors is returned when a shortlist comes out empty.
var ErrNoMatchingVendors = errors.New("no matching vendors")

// Rank scores every vendor and orders the matches best first.
//
// Equal scores are ordered by known lead time before unknown, then shorter
// lead time, then vendor ID, so the result never depends on input order.
func Rank(vendors []Vendor, spec JobSpec) []Match {
	required := ExtractRequiredServices(spec)

	matches := make([]Match, 0, len(vendors))
	for _, v := range vendors {
		matches = append(matches, Score(v, required, spec))
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return less(matches[i], matches[j])
	})
	return matches
}

func less(a, b Match) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	aKnown, bKnown := a.EstimatedLeadTimeDays != nil, b.EstimatedLeadTimeDays != nil
	if aKnown != bKnown {
		return aKnown
	}
	if aKnown && *a.EstimatedLeadTimeDays != *b.EstimatedLeadTimeDays {
		return *a.EstimatedLeadTimeDays < *b.EstimatedLeadTimeDays
	}
	return a.Vendor.ID < b.Vendor.ID
}

// TopMatches builds the shortlist for a job: every vendor that can fulfil it,
// then the best remaining vendors scoring at least BackfillThreshold, up to
// limit entries. A non-positive limit means DefaultShortlistSize.
func TopMatches(vendors []Vendor, spec JobSpec, limit int) ([]Match, error) {
	return Shortlist(Rank(vendors, spec), limit)
}

// Shortlist applies the acceptance thresholds to an already ranked list.
func Shortlist(ranked []Match, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = DefaultShortlistSize
	}

	out := make([]Match, 0, limit)
	for _, m := range ranked {
		if len(out) == limit {
			break
		}
		if m.CanFulfill {
			out = append(out, m)
		}
	}

	for _, m := range ranked {
		if len(out) == limit {
			break
		}
		if !m.CanFulfill && m.Score >= BackfillThreshold {
			out = append(out, m)
		}
	}

	if len(out) == 0 {
		return nil, ErrNoMatchingVendors
	}
	return out, nil
}

// ManualMatches wraps explicitly chosen vendors in perfect matches so they
// flow through the same pipeline as ranked ones. Duplicate IDs collapse.
func ManualMatches(vendors []Vendor) []Match {
	seen := make(map[string]bool, len(vendors))
	out := make([]Match, 0, len(vendors))
	for _, v := range vendors {
		if seen[v.ID] {
			continue
		}
		seen[v.ID] = true

		var lead *int
		if v.Profile != nil && v.Profile.AvgLeadTimeDays != nil {
			d := *v.Profile.AvgLeadTimeDays
			lead = &d
		}
		out = append(out, Match{
			Vendor:                v,
			Score:                 MaxScore,
			MissingServices:       []ServiceTag{},
			CanFulfill:            true,
			EstimatedLeadTimeDays: lead,
			Breakdown: Breakdown{
				ServiceMatch: WeightServiceMatch,
				QuantityFit:  WeightQuantityFit,
				LeadTime:     WeightLeadTime,
				Partner:      WeightPartner,
			},
			Manual: true,
		})
	}
	return out
}
