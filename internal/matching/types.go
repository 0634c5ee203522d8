package matching

// JobSpec is the technical specification of a print job. It is owned by the
// job and only ever read here.
type JobSpec struct {
	ProductType  string `json:"product_type,omitempty"`
	FinishedSize string `json:"finished_size,omitempty"`
	PaperStock   string `json:"paper_stock,omitempty"`
	Colors       string `json:"colors,omitempty"`
	Quantity     *int   `json:"quantity,omitempty"`
	PageCount    *int   `json:"page_count,omitempty"`
	Finishing    string `json:"finishing,omitempty"`
	BindingStyle string `json:"binding_style,omitempty"`
	Coating      string `json:"coating,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// Capabilities has one flag per known service tag.
type Capabilities struct {
	Printing     bool `json:"printing"`
	Binding      bool `json:"binding"`
	FoilStamping bool `json:"foil_stamping"`
	Embossing    bool `json:"embossing"`
	DieCutting   bool `json:"die_cutting"`
	UVCoating    bool `json:"uv_coating"`
	Lamination   bool `json:"lamination"`
	Scoring      bool `json:"scoring"`
	Folding      bool `json:"folding"`
}

// Supports reports whether the capability flag for tag is set.
func (c Capabilities) Supports(tag ServiceTag) bool {
	switch tag {
	case ServicePrinting:
		return c.Printing
	case ServiceBinding:
		return c.Binding
	case ServiceFoilStamping:
		return c.FoilStamping
	case ServiceEmbossing:
		return c.Embossing
	case ServiceDieCutting:
		return c.DieCutting
	case ServiceUVCoating:
		return c.UVCoating
	case ServiceLamination:
		return c.Lamination
	case ServiceScoring:
		return c.Scoring
	case ServiceFolding:
		return c.Folding
	}
	return false
}

// Set returns the supported tags as a set.
func (c Capabilities) Set() ServiceSet {
	out := ServiceSet{}
	for _, t := range AllServices {
		if c.Supports(t) {
			out.Add(t)
		}
	}
	return out
}

// CapabilitiesOf builds flags from a list of tags.
func CapabilitiesOf(tags ...ServiceTag) Capabilities {
	var c Capabilities
	for _, t := range tags {
		switch t {
		case ServicePrinting:
			c.Printing = true
		case ServiceBinding:
			c.Binding = true
		case ServiceFoilStamping:
			c.FoilStamping = true
		case ServiceEmbossing:
			c.Embossing = true
		case ServiceDieCutting:
			c.DieCutting = true
		case ServiceUVCoating:
			c.UVCoating = true
		case ServiceLamination:
			c.Lamination = true
		case ServiceScoring:
			c.Scoring = true
		case ServiceFolding:
			c.Folding = true
		}
	}
	return c
}

// CapabilityProfile is a vendor's declared capabilities and operating limits.
// Nil quantity bounds are unbounded; a nil lead time is unknown.
type CapabilityProfile struct {
	Capabilities    Capabilities `json:"capabilities"`
	MinQuantity     *int         `json:"min_quantity,omitempty"`
	MaxQuantity     *int         `json:"max_quantity,omitempty"`
	AvgLeadTimeDays *int         `json:"avg_lead_time_days,omitempty"`
}

// Vendor is a manufacturing vendor in the pool. A nil Profile means the
// vendor only does printing.
type Vendor struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	ContactName string             `json:"contact_name,omitempty"`
	Email       string             `json:"email"`
	Phone       string             `json:"phone,omitempty"`
	IsPartner   bool               `json:"is_partner"`
	Profile     *CapabilityProfile `json:"profile,omitempty"`
}

// Supported returns the services the vendor can perform.
func (v Vendor) Supported() ServiceSet {
	if v.Profile == nil {
		return NewServiceSet(ServicePrinting)
	}
	return v.Profile.Capabilities.Set()
}

// Breakdown is the per-factor contribution to a match score.
type Breakdown struct {
	ServiceMatch float64 `json:"service_match"`
	QuantityFit  float64 `json:"quantity_fit"`
	LeadTime     float64 `json:"lead_time"`
	Partner      float64 `json:"partner"`
}

// Total sums the factors.
func (b Breakdown) Total() float64 {
	return b.ServiceMatch + b.QuantityFit + b.LeadTime + b.Partner
}

// Match is the result of scoring one vendor against one requirement set.
// It is recomputed on demand and never persisted.
type Match struct {
	Vendor                Vendor       `json:"vendor"`
	Score                 float64      `json:"score"`
	MissingServices       []ServiceTag `json:"missing_services"`
	CanFulfill            bool         `json:"can_fulfill"`
	EstimatedLeadTimeDays *int         `json:"estimated_lead_time_days,omitempty"`
	Breakdown             Breakdown    `json:"breakdown"`
	Manual                bool         `json:"manual,omitempty"`
}
