package model_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

func TestFingerprint(t *testing.T) {
	a := []*model.Entity{
		{TypeName: "ip", Value: "10.0.0.1"},
		{TypeName: "user", Value: "alice"},
	}
	b := []*model.Entity{
		{TypeName: "user", Value: "alice"},
		{TypeName: "ip", Value: "10.0.0.1"},
		{TypeName: "ip", Value: "10.0.0.1"},
	}
	gt.Value(t, model.Fingerprint(1, a)).Equal(model.Fingerprint(1, b))
	gt.Value(t, model.Fingerprint(1, a)).NotEqual(model.Fingerprint(2, a))
	gt.Value(t, model.Fingerprint(1, a)).NotEqual(model.Fingerprint(1, a[:1]))
}

func TestSignalFilterWindow(t *testing.T) {
	now := time.Now()
	f := &model.SignalFilter{}
	gt.Value(t, f.WindowDuration()).Equal(time.Hour)
	gt.Bool(t, f.Expired(now)).False()

	past := now.Add(-time.Minute)
	f = &model.SignalFilter{Window: 600, ExpiresAt: &past}
	gt.Value(t, f.WindowDuration()).Equal(10 * time.Minute)
	gt.Bool(t, f.Expired(now)).True()
}

func TestFindDefault(t *testing.T) {
	types := []*model.IncidentType{
		{CatalogBase: model.CatalogBase{ID: 1, Name: "Other", Enabled: true}},
		{CatalogBase: model.CatalogBase{ID: 2, Name: "Security", Enabled: true, Default: true}},
	}
	def, ok := model.FindDefault(types)
	gt.Bool(t, ok).True()
	gt.Value(t, def.ID).Equal(int64(2))

	found, ok := model.FindByName(types, "Other")
	gt.Bool(t, ok).True()
	gt.Value(t, found.Slug()).Equal("other")

	_, ok = model.FindByID(types, 3)
	gt.Bool(t, ok).False()
}

func TestPromptValidate(t *testing.T) {
	p := &model.Prompt{}
	err := p.Validate()
	var verr *model.ValidationError
	gt.Bool(t, errorsAs(err, &verr)).True()
	gt.Array(t, verr.Details).Length(3)
}
