package matching

const (
	WeightServiceMatch = 70.0
	WeightQuantityFit  = 10.0
	WeightLeadTime     = 10.0
	WeightPartner      = 10.0

	MaxScore = 100.0

	// FulfillThreshold is the minimum score a vendor needs, together with
	// zero missing services, to be considered able to fulfil the job.
	FulfillThreshold = 70.0

	// BackfillThreshold is the floor for shortlisting vendors that cannot
	// fully fulfil the job.
	BackfillThreshold = 50.0

	// DefaultQuantityEstimate is used when the spec carries no page count.
	DefaultQuantityEstimate = 1000
)

// Score computes the fitness of one vendor for a requirement set.
func Score(vendor Vendor, required ServiceSet, spec JobSpec) Match {
	b := Breakdown{
		ServiceMatch: serviceMatchScore(vendor, required),
		QuantityFit:  quantityFitScore(vendor.Profile, spec),
		LeadTime:     leadTimeScore(vendor.Profile),
	}
	if vendor.IsPartner {
		b.Partner = WeightPartner
	}

	score := clamp(b.Total(), 0, MaxScore)
	missing := required.Difference(vendor.Supported()).Slice()

	var lead *int
	if vendor.Profile != nil && vendor.Profile.AvgLeadTimeDays != nil {
		d := *vendor.Profile.AvgLeadTimeDays
		lead = &d
	}

	return Match{
		Vendor:                vendor,
		Score:                 score,
		MissingServices:       missing,
		CanFulfill:            score >= FulfillThreshold && len(missing) == 0,
		EstimatedLeadTimeDays: lead,
		Breakdown:             b,
	}
}

func serviceMatchScore(vendor Vendor, required ServiceSet) float64 {
	if vendor.Profile == nil {
		if required.Len() == 1 && required.Has(ServicePrinting) {
			return WeightServiceMatch
		}
		return 0
	}
	if required.Len() == 0 {
		return WeightServiceMatch
	}

	matched := 0
	for _, t := range required.Slice() {
		if vendor.Profile.Capabilities.Supports(t) {
			matched++
		}
	}
	return WeightServiceMatch * float64(matched) / float64(required.Len())
}

// EstimateQuantity approximates the job quantity from its page count.
func EstimateQuantity(spec JobSpec) int {
	if spec.PageCount != nil && *spec.PageCount > 0 {
		return *spec.PageCount
	}
	return DefaultQuantityEstimate
}

func quantityFitScore(profile *CapabilityProfile, spec JobSpec) float64 {
	qty := EstimateQuantity(spec)
	half := WeightQuantityFit / 2

	score := 0.0
	if profile == nil || profile.MinQuantity == nil || qty >= *profile.MinQuantity {
		score += half
	}
	if profile == nil || profile.MaxQuantity == nil || qty <= *profile.MaxQuantity {
		score += half
	}
	return score
}

func leadTimeScore(profile *CapabilityProfile) float64 {
	if profile == nil || profile.AvgLeadTimeDays == nil {
		return 5
	}
	switch days := *profile.AvgLeadTimeDays; {
	case days <= 7:
		return 10
	case days <= 14:
		return 5
	default:
		return 2
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
