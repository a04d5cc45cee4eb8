// Package quota evaluates group quota usage against thresholds.
//
// A limit of zero or less means the attribute is unlimited: it never reports any usage
// percentage and never exceeds a threshold.
package quota

import (
	"fmt"
	"sort"

	"github.com/mhrivnak/orderflow/pkg/errdef"
)

// Attribute names a quota dimension.
type Attribute string

const (
	Rate     Attribute = "rate"
	CPUCount Attribute = "cpu_cnt"
	MemSize  Attribute = "mem_size"
	DiskSize Attribute = "disk_size"
	VMCount  Attribute = "vm_cnt"
)

// AllAttributes lists every known attribute in a stable order.
var AllAttributes = []Attribute{Rate, CPUCount, MemSize, DiskSize, VMCount}

// Valid checks if the attribute is known
func (a Attribute) Valid() bool {
	switch a {
	case Rate, CPUCount, MemSize, DiskSize, VMCount:
		return true
	default:
		return false
	}
}

func (a Attribute) String() string {
	return string(a)
}

// ParseAttributes converts names to attributes, rejecting unknown ones.
func ParseAttributes(names []string) ([]Attribute, error) {
	attrs := make([]Attribute, 0, len(names))
	for _, name := range names {
		attr := Attribute(name)
		if !attr.Valid() {
			return nil, errdef.NewBadRequest("unknown quota attribute %q", name)
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

// Limit is the quota of a single attribute.
type Limit struct {
	Limit float64 `json:"limit"`
	Used  float64 `json:"used"`
}

func (l Limit) Unlimited() bool {
	return l.Limit <= 0
}

// PercentUsed returns used/limit as a fraction, or 0 when unlimited.
func (l Limit) PercentUsed() float64 {
	if l.Unlimited() {
		return 0
	}
	return l.Used / l.Limit
}

// Available returns the remaining amount, or -1 when unlimited.
func (l Limit) Available() float64 {
	if l.Unlimited() {
		return -1
	}
	return l.Limit - l.Used
}

// Set is the quota of a group keyed by attribute.
type Set map[Attribute]Limit

// Usage is the amount an order would consume per attribute.
type Usage map[Attribute]float64

// Combine returns the quota as it would be after usage is applied. Neither input is modified.
func Combine(set Set, usage Usage) Set {
	combined := make(Set, len(set))
	for attr, limit := range set {
		limit.Used += usage[attr]
		combined[attr] = limit
	}
	return combined
}

// Exceeds reports whether any of attrs has a percent used at or above threshold. An empty attrs
// checks every known attribute. Attributes missing from the set are treated as unlimited.
func Exceeds(set Set, threshold float64, attrs ...Attribute) (bool, error) {
	if !(threshold >= 0 && threshold <= 1) {
		return false, errdef.NewBadRequest("threshold must be between 0 and 1, got %v", threshold)
	}
	if len(attrs) == 0 {
		attrs = AllAttributes
	}

	exceeded := false
	for _, attr := range attrs {
		if !attr.Valid() {
			return false, errdef.NewBadRequest("unknown quota attribute %q", attr)
		}
		limit, ok := set[attr]
		if !ok || limit.Unlimited() {
			continue
		}
		if limit.PercentUsed() >= threshold {
			exceeded = true
		}
	}
	return exceeded, nil
}

// Evaluate combines the group quota with the order usage and checks the result against threshold.
func Evaluate(set Set, usage Usage, threshold float64, attrs ...Attribute) (bool, error) {
	return Exceeds(Combine(set, usage), threshold, attrs...)
}

// CanUse returns a conflict error naming the first attribute whose limit the usage would
// push past. Attributes are checked in AllAttributes order.
func (s Set) CanUse(usage Usage) error {
	attrs := make([]Attribute, 0, len(usage))
	for attr := range usage {
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool { return position(attrs[i]) < position(attrs[j]) })

	for _, attr := range attrs {
		limit, ok := s[attr]
		if !ok || limit.Unlimited() {
			continue
		}
		if limit.Used+usage[attr] > limit.Limit {
			return errdef.NewConflict("%s: using %v would exceed the quota (%v of %v used)",
				attr, usage[attr], limit.Used, limit.Limit)
		}
	}
	return nil
}

// Report describes the usage of every attribute present in the set.
func (s Set) Report() map[Attribute]string {
	report := make(map[Attribute]string, len(s))
	for attr, limit := range s {
		if limit.Unlimited() {
			report[attr] = fmt.Sprintf("%v used (unlimited)", limit.Used)
			continue
		}
		report[attr] = fmt.Sprintf("%v of %v used (%.0f%%)", limit.Used, limit.Limit, limit.PercentUsed()*100)
	}
	return report
}

func position(attr Attribute) int {
	for i, a := range AllAttributes {
		if a == attr {
			return i
		}
	}
	return len(AllAttributes)
}
