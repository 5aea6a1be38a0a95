package types_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

func TestProjectSlug_Validate(t *testing.T) {
	tests := []struct {
		name    string
		slug    types.ProjectSlug
		wantErr bool
	}{
		{"valid lowercase", "default", false},
		{"valid with hyphen", "data-platform", false},
		{"valid with numbers", "team-123", false},
		{"empty", "", true},
		{"uppercase", "Default", true},
		{"spaces", "data platform", true},
		{"underscore", "data_platform", true},
		{"starting with hyphen", "-data", true},
		{"double hyphen", "data--platform", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.slug.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("ProjectSlug.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProviderTypes(t *testing.T) {
	gt.Array(t, types.AllProviderTypes()).Length(14)
	for _, p := range types.AllProviderTypes() {
		parsed, err := types.ParseProviderType(p.String())
		gt.NoError(t, err).Required()
		gt.Value(t, parsed).Equal(p)
	}
	_, err := types.ParseProviderType("fax")
	gt.Error(t, err)
}

func TestResourceTypesCreationOrder(t *testing.T) {
	all := types.AllResourceTypes()
	gt.Array(t, all).Length(8).Required()
	gt.Value(t, all[0]).Equal(types.ResourceTypeTicket)
}

func TestGenAITypes(t *testing.T) {
	gt.Array(t, types.AllGenAITypes()).Length(5)
	gt.Bool(t, types.GenAIType("incident_summary").IsValid()).True()
	gt.Bool(t, types.GenAIType("nope").IsValid()).False()
}

func TestVisibilityNormalize(t *testing.T) {
	gt.Value(t, types.Visibility("").Normalize()).Equal(types.VisibilityOpen)
	gt.Value(t, types.VisibilityRestricted.Normalize()).Equal(types.VisibilityRestricted)
}
