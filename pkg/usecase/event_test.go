package usecase_test

import (
	"sync"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

func tagNames(tags []*model.Tag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names
}

func TestExtractTags(t *testing.T) {
	f := newFixture(t)
	inc := f.incident(t, "default-security-0001", "C-inc")

	discoverable, err := f.repo.TagType().Create(f.ctx, testOrg, &model.TagType{
		CatalogBase:          model.CatalogBase{ProjectID: f.project.ID, Name: "Technology", Enabled: true},
		DiscoverableIncident: true,
	})
	gt.NoError(t, err).Required()
	hidden, err := f.repo.TagType().Create(f.ctx, testOrg, &model.TagType{
		CatalogBase:      model.CatalogBase{ProjectID: f.project.ID, Name: "Team", Enabled: true},
		DiscoverableCase: true,
	})
	gt.NoError(t, err).Required()

	tags := map[string]int64{}
	for _, tag := range []struct {
		name   string
		typeID int64
	}{
		{"C++", discoverable.ID},
		{".NET", discoverable.ID},
		{"Go", discoverable.ID},
		{"Platform", hidden.ID},
	} {
		created, err := f.repo.Tag().Create(f.ctx, testOrg, &model.Tag{
			CatalogBase:  model.CatalogBase{ProjectID: f.project.ID, Name: tag.name, Enabled: true},
			TagTypeID:    tag.typeID,
			Discoverable: true,
		})
		gt.NoError(t, err).Required()
		tags[tag.name] = created.ID
	}

	t.Run("names made of punctuation are matched", func(t *testing.T) {
		added, err := f.uc.ExtractTags(f.ctx, testOrg, inc.Ref(), "the agent is written in C++, the portal in .NET")
		gt.NoError(t, err).Required()
		gt.Array(t, tagNames(added)).Length(2)
		gt.Array(t, tagNames(added)).Has("C++")
		gt.Array(t, tagNames(added)).Has(".NET")
	})

	t.Run("known tags are not added twice", func(t *testing.T) {
		added, err := f.uc.ExtractTags(f.ctx, testOrg, inc.Ref(), "C++ again")
		gt.NoError(t, err).Required()
		gt.Array(t, added).Length(0)
	})

	t.Run("words only match whole", func(t *testing.T) {
		added, err := f.uc.ExtractTags(f.ctx, testOrg, inc.Ref(), "Going forward we roll back")
		gt.NoError(t, err).Required()
		gt.Array(t, added).Length(0)

		added, err = f.uc.ExtractTags(f.ctx, testOrg, inc.Ref(), "moved it to go.")
		gt.NoError(t, err).Required()
		gt.Array(t, tagNames(added)).Length(1).Required()
		gt.Value(t, added[0].Name).Equal("Go")
	})

	t.Run("tags of types not discoverable for incidents are skipped", func(t *testing.T) {
		added, err := f.uc.ExtractTags(f.ctx, testOrg, inc.Ref(), "paging Platform")
		gt.NoError(t, err).Required()
		gt.Array(t, added).Length(0)
	})

	stored, err := f.repo.Incident().Get(f.ctx, testOrg, inc.ID)
	gt.NoError(t, err).Required()
	gt.Array(t, stored.TagIDs).Length(3)
	gt.Array(t, stored.TagIDs).Has(tags["C++"])
	gt.Array(t, stored.TagIDs).Has(tags[".NET"])
	gt.Array(t, stored.TagIDs).Has(tags["Go"])
}

func TestExtractTagsMessages(t *testing.T) {
	f := newFixture(t)
	inc := f.incident(t, "default-security-0001", "C-inc")
	f.participant(t, inc.Ref(), "carol@example.com", types.ParticipantRoleParticipant, 0)

	tt, err := f.repo.TagType().Create(f.ctx, testOrg, &model.TagType{
		CatalogBase:          model.CatalogBase{ProjectID: f.project.ID, Name: "Technology", Enabled: true},
		DiscoverableIncident: true,
	})
	gt.NoError(t, err).Required()
	tag, err := f.repo.Tag().Create(f.ctx, testOrg, &model.Tag{
		CatalogBase:  model.CatalogBase{ProjectID: f.project.ID, Name: "Kubernetes", Enabled: true},
		TagTypeID:    tt.ID,
		Discoverable: true,
	})
	gt.NoError(t, err).Required()

	gt.NoError(t, f.uc.HandleEvent(f.ctx, messageEvent("U-carol", "C-inc", "the kubernetes API server is down"))).Required()

	stored, err := f.repo.Incident().Get(f.ctx, testOrg, inc.ID)
	gt.NoError(t, err).Required()
	gt.Array(t, stored.TagIDs).Has(tag.ID)
	gt.Number(t, activity(t, f, inc.Ref(), "carol@example.com")).Equal(1)
}

func TestExtractTagsConcurrent(t *testing.T) {
	f := newFixture(t)
	inc := f.incident(t, "default-security-0001", "C-inc")
	tt, err := f.repo.TagType().Create(f.ctx, testOrg, &model.TagType{
		CatalogBase:          model.CatalogBase{ProjectID: f.project.ID, Name: "Technology", Enabled: true},
		DiscoverableIncident: true,
	})
	gt.NoError(t, err).Required()

	names := []string{"Kubernetes", "Postgres", "Kafka", "Redis", "Envoy"}
	for _, name := range names {
		_, err := f.repo.Tag().Create(f.ctx, testOrg, &model.Tag{
			CatalogBase:  model.CatalogBase{ProjectID: f.project.ID, Name: name, Enabled: true},
			TagTypeID:    tt.ID,
			Discoverable: true,
		})
		gt.NoError(t, err).Required()
	}

	var wg sync.WaitGroup
	errs := make([]error, len(names))
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.uc.ExtractTags(f.ctx, testOrg, inc.Ref(), "restarting "+name+" now")
		}()
	}
	wg.Wait()

	for _, err := range errs {
		gt.NoError(t, err)
	}
	stored, err := f.repo.Incident().Get(f.ctx, testOrg, inc.ID)
	gt.NoError(t, err).Required()
	gt.Array(t, stored.TagIDs).Length(len(names))
}
