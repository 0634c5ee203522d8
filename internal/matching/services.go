// Package matching derives the production services a print job needs and
// scores vendors against them. Everything here is pure and allocation-light;
// no I/O happens in this package.
package matching

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ServiceTag is a production capability a vendor may offer.
type ServiceTag string

const (
	ServicePrinting     ServiceTag = "printing"
	ServiceBinding      ServiceTag = "binding"
	ServiceFoilStamping ServiceTag = "foil_stamping"
	ServiceEmbossing    ServiceTag = "embossing"
	ServiceDieCutting   ServiceTag = "die_cutting"
	ServiceUVCoating    ServiceTag = "uv_coating"
	ServiceLamination   ServiceTag = "lamination"
	ServiceScoring      ServiceTag = "scoring"
	ServiceFolding      ServiceTag = "folding"
)

// AllServices lists every known tag in canonical order.
var AllServices = []ServiceTag{
	ServicePrinting,
	ServiceBinding,
	ServiceFoilStamping,
	ServiceEmbossing,
	ServiceDieCutting,
	ServiceUVCoating,
	ServiceLamination,
	ServiceScoring,
	ServiceFolding,
}

// ParseServiceTag validates a tag read from storage or the wire.
func ParseServiceTag(s string) (ServiceTag, error) {
	tag := ServiceTag(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllServices {
		if tag == known {
			return tag, nil
		}
	}
	return "", fmt.Errorf("unknown service tag %q", s)
}

// Label is the human readable name used in vendor-facing messages.
func (t ServiceTag) Label() string {
	switch t {
	case ServicePrinting:
		return "Printing"
	case ServiceBinding:
		return "Binding"
	case ServiceFoilStamping:
		return "Foil stamping"
	case ServiceEmbossing:
		return "Embossing"
	case ServiceDieCutting:
		return "Die cutting"
	case ServiceUVCoating:
		return "UV coating"
	case ServiceLamination:
		return "Lamination"
	case ServiceScoring:
		return "Scoring"
	case ServiceFolding:
		return "Folding"
	}
	return string(t)
}

// ServiceSet is an unordered set of tags. The zero value is an empty set.
type ServiceSet struct {
	tags map[ServiceTag]struct{}
}

// NewServiceSet builds a set from tags; duplicates collapse.
func NewServiceSet(tags ...ServiceTag) ServiceSet {
	s := ServiceSet{}
	for _, t := range tags {
		s.Add(t)
	}
	return s
}

func (s *ServiceSet) Add(t ServiceTag) {
	if s.tags == nil {
		s.tags = make(map[ServiceTag]struct{}, len(AllServices))
	}
	s.tags[t] = struct{}{}
}

func (s ServiceSet) Has(t ServiceTag) bool {
	_, ok := s.tags[t]
	return ok
}

func (s ServiceSet) Len() int { return len(s.tags) }

// Slice returns the tags in canonical order.
func (s ServiceSet) Slice() []ServiceTag {
	out := make([]ServiceTag, 0, len(s.tags))
	for _, t := range AllServices {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// Strings is Slice as plain strings, the form stored in TEXT[] columns.
func (s ServiceSet) Strings() []string {
	tags := s.Slice()
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return out
}

// Difference returns s − other.
func (s ServiceSet) Difference(other ServiceSet) ServiceSet {
	out := ServiceSet{}
	for t := range s.tags {
		if !other.Has(t) {
			out.Add(t)
		}
	}
	return out
}

// Equal reports set equality.
func (s ServiceSet) Equal(other ServiceSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for t := range s.tags {
		if !other.Has(t) {
			return false
		}
	}
	return true
}

func (s ServiceSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *ServiceSet) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	set, err := ParseServiceSet(raw)
	if err != nil {
		return err
	}
	*s = set
	return nil
}

// ParseServiceSet converts stored strings back into a set.
func ParseServiceSet(raw []string) (ServiceSet, error) {
	out := ServiceSet{}
	for _, r := range raw {
		tag, err := ParseServiceTag(r)
		if err != nil {
			return ServiceSet{}, err
		}
		out.Add(tag)
	}
	return out, nil
}

// ExtractRequiredServices derives the service requirement of a job. It never
// fails: unknown or empty fields contribute nothing, and printing is always
// required.
func ExtractRequiredServices(spec JobSpec) ServiceSet {
	required := NewServiceSet(ServicePrinting)

	finishing := strings.ToLower(spec.Finishing)
	if strings.Contains(finishing, "foil") {
		required.Add(ServiceFoilStamping)
	}
	if strings.Contains(finishing, "emboss") {
		required.Add(ServiceEmbossing)
	}
	if strings.Contains(finishing, "die cut") || strings.Contains(finishing, "die-cut") {
		required.Add(ServiceDieCutting)
	}
	if strings.Contains(finishing, "lamination") || strings.Contains(finishing, "laminate") {
		required.Add(ServiceLamination)
	}
	if strings.Contains(finishing, "score") || strings.Contains(finishing, "scoring") {
		required.Add(ServiceScoring)
	}
	if strings.Contains(finishing, "fold") {
		required.Add(ServiceFolding)
	}

	if strings.TrimSpace(spec.BindingStyle) != "" {
		required.Add(ServiceBinding)
	}

	coating := strings.ToLower(spec.Coating)
	switch {
	case strings.Contains(coating, "uv"):
		required.Add(ServiceUVCoating)
	case strings.Contains(coating, "lamination"):
		required.Add(ServiceLamination)
	}

	return required
}
