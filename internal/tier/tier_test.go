package tier

import (
	"slices"
	"testing"

	"github.com/tierhost/tierhost/internal/model"
)

func TestShapeFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tier      model.Tier
		wantSizes []int
	}{
		{model.TierBasic, []int{Size200}},
		{model.TierPremium, []int{Size200, Size400}},
		{model.TierEnterprise, []int{Size200, Size400}},
		{"Gold", []int{Size200}},
		{"", []int{Size200}},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			t.Parallel()

			s := ShapeFor(tt.tier)
			if !s.ImageURL {
				t.Error("every shape should include image_url")
			}
			if !slices.Equal(s.DerivedSizes, tt.wantSizes) {
				t.Errorf("DerivedSizes = %v, want %v", s.DerivedSizes, tt.wantSizes)
			}
		})
	}
}

func TestShape_HasSize(t *testing.T) {
	t.Parallel()

	if ShapeFor(model.TierBasic).HasSize(Size400) {
		t.Error("Basic should not include 400")
	}
	if !ShapeFor(model.TierPremium).HasSize(Size400) {
		t.Error("Premium should include 400")
	}
}

func TestCanIssueLinks(t *testing.T) {
	t.Parallel()

	for _, tr := range []model.Tier{model.TierBasic, model.TierPremium, "Gold"} {
		if CanIssueLinks(tr) {
			t.Errorf("CanIssueLinks(%q) = true, want false", tr)
		}
	}
	if !CanIssueLinks(model.TierEnterprise) {
		t.Error("Enterprise should issue links")
	}
}
