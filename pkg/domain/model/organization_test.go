package model_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

func TestOrganizationRegistry(t *testing.T) {
	reg := model.NewOrganizationRegistry()
	gt.Array(t, reg.List()).Length(0)

	_, err := reg.Default()
	gt.Error(t, err).Is(model.ErrNotFound)

	reg.Register(&model.Organization{Slug: "default", Name: "Default"})
	reg.Register(&model.Organization{Slug: "acme", Name: "Acme", Default: true})
	reg.Register(&model.Organization{Slug: "default", Name: "Default (renamed)"})

	gt.Array(t, reg.Slugs()).Length(2)
	gt.Value(t, reg.Slugs()[0]).Equal("default")
	gt.Value(t, reg.List()[0].Name).Equal("Default (renamed)")

	def, err := reg.Default()
	gt.NoError(t, err).Required()
	gt.Value(t, def.Slug).Equal("acme")

	_, err = reg.Get("missing")
	gt.Bool(t, errors.Is(err, model.ErrNotFound)).True()
}

func TestValidateOrganizationSlug(t *testing.T) {
	gt.NoError(t, model.ValidateOrganizationSlug("default"))
	gt.NoError(t, model.ValidateOrganizationSlug("acme_2"))
	gt.Error(t, model.ValidateOrganizationSlug("Acme"))
	gt.Error(t, model.ValidateOrganizationSlug("1acme"))
	gt.Error(t, model.ValidateOrganizationSlug("acme;drop"))
}

func TestSlugifyOrganization(t *testing.T) {
	gt.Value(t, model.SlugifyOrganization("Acme Corp")).Equal("acme_corp")
	gt.Value(t, model.SlugifyOrganization("42 Labs")).Equal("org_42_labs")
	gt.Value(t, model.SchemaName("", "acme")).Equal("dispatch_organization_acme")
}

func TestSlugify(t *testing.T) {
	gt.Value(t, model.Slugify("Security")).Equal("security")
	gt.Value(t, model.Slugify("  Data Leak / PII ")).Equal("data-leak-pii")
}

func TestProjectHourlyRate(t *testing.T) {
	p := &model.Project{}
	gt.Number(t, p.HourlyRate()).Equal(650000.0 / 2080.0)

	p = &model.Project{AnnualEmployeeCost: 208000, BusinessYearHours: 2080}
	gt.Number(t, p.HourlyRate()).Equal(100.0)
}
