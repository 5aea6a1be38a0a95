package usecase_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/usecase"
)

func TestFilterAndSend(t *testing.T) {
	f := newFixture(t)
	for _, n := range []*model.Notification{
		{CatalogBase: model.CatalogBase{Name: "public", Enabled: true}, Targets: []string{"C-public"}},
		{CatalogBase: model.CatalogBase{Name: "secure", Enabled: true}, Targets: []string{"C-secure"}, Restricted: true},
		{CatalogBase: model.CatalogBase{Name: "cases", Enabled: true}, Targets: []string{"C-cases"}, SubjectKind: types.SubjectKindCase},
		{CatalogBase: model.CatalogBase{Name: "off"}, Targets: []string{"C-off"}},
		{
			CatalogBase: model.CatalogBase{Name: "filtered", Enabled: true},
			Targets:     []string{"C-filtered"},
			Filter:      model.FilterExpr{Field: "project", Op: model.OpEq, Value: "other"},
		},
	} {
		n.ProjectID = f.project.ID
		n.Type = types.NotificationTargetConversation
		_, err := f.repo.Notification().Create(f.ctx, testOrg, n)
		gt.NoError(t, err).Required()
	}
	msg := usecase.NotificationMessage{Template: "{{.name}} is {{.visibility}}"}

	t.Run("open incidents reach every matching notification", func(t *testing.T) {
		inc := f.incident(t, "default-security-0001", "")
		sent, err := f.uc.FilterAndSend(f.ctx, testOrg, inc, msg)
		gt.NoError(t, err).Required()
		gt.Number(t, sent).Equal(2)

		public := f.chat.sent("C-public")
		gt.Array(t, public).Length(1).Required()
		gt.Value(t, public[0].Text).Equal("default-security-0001 is open")
		gt.Array(t, f.chat.sent("C-secure")).Length(1)
		gt.Array(t, f.chat.sent("C-cases")).Length(0)
		gt.Array(t, f.chat.sent("C-off")).Length(0)
		gt.Array(t, f.chat.sent("C-filtered")).Length(0)
	})

	t.Run("restricted incidents only reach restricted notifications", func(t *testing.T) {
		inc, err := f.repo.Incident().Create(f.ctx, testOrg, &model.Incident{
			ProjectID:  f.project.ID,
			Name:       "default-security-0002",
			Title:      "Insider threat",
			Status:     types.IncidentStatusActive,
			Visibility: types.VisibilityRestricted,
			TypeID:     f.security.ID,
			ReportedAt: f.now,
		})
		gt.NoError(t, err).Required()

		sent, err := f.uc.FilterAndSend(f.ctx, testOrg, inc, msg)
		gt.NoError(t, err).Required()
		gt.Number(t, sent).Equal(1)

		secure := f.chat.sent("C-secure")
		gt.Array(t, secure).Length(2).Required()
		gt.Value(t, secure[1].Text).Equal("default-security-0002 is restricted")
		gt.Array(t, f.chat.sent("C-public")).Length(1)
	})

	t.Run("case notifications only receive cases", func(t *testing.T) {
		c := f.newCase(t, "default-phishing-0001", types.CaseStatusNew)
		sent, err := f.uc.FilterAndSend(f.ctx, testOrg, c, msg)
		gt.NoError(t, err).Required()
		gt.Number(t, sent).Equal(3)
		gt.Array(t, f.chat.sent("C-cases")).Length(1)
	})
}
