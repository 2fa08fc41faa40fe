// Package tier maps subscription tiers to the representation a user sees.
package tier

import "github.com/tierhost/tierhost/internal/model"

// Derived image sizes in pixels.
const (
	Size200 = 200
	Size400 = 400
)

// Shape describes which image fields appear in a file representation.
// Base fields are always present.
type Shape struct {
	ImageURL     bool
	DerivedSizes []int
}

// HasSize reports whether the shape includes the derived size.
func (s Shape) HasSize(size int) bool {
	for _, v := range s.DerivedSizes {
		if v == size {
			return true
		}
	}
	return false
}

var shapes = map[model.Tier]Shape{
	model.TierBasic:      {ImageURL: true, DerivedSizes: []int{Size200}},
	model.TierPremium:    {ImageURL: true, DerivedSizes: []int{Size200, Size400}},
	model.TierEnterprise: {ImageURL: true, DerivedSizes: []int{Size200, Size400}},
}

// ShapeFor returns the representation shape for t. Unknown tiers get the
// Basic shape.
func ShapeFor(t model.Tier) Shape {
	if s, ok := shapes[t]; ok {
		return s
	}
	return shapes[model.TierBasic]
}

// CanIssueLinks reports whether the tier may issue and redeem temporary links.
func CanIssueLinks(t model.Tier) bool {
	return t == model.TierEnterprise
}
