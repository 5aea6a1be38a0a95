package cli_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	urfave "github.com/urfave/cli/v3"

	"github.com/Netflix/dispatch-sub000/pkg/cli"
	"github.com/Netflix/dispatch-sub000/pkg/cli/config"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/repository/memory"
	"github.com/Netflix/dispatch-sub000/pkg/service/plugin"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"explicit exit", urfave.Exit("bad flag", 1), 1},
		{"config error", goerr.Wrap(config.ErrUnknownRef, "dangling"), 1},
		{"validation error", goerr.Wrap(model.NewValidationError("title", "required"), "failed"), 1},
		{"invalid input", goerr.Wrap(model.ErrInvalidInput, "bad slug"), 1},
		{"system error", errors.New("connection refused"), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Value(t, cli.ExitCode(tt.err)).Equal(tt.want)
		})
	}
}

func TestRun_InvalidLogLevel(t *testing.T) {
	err := cli.Run(context.Background(), []string{"dispatch", "--log-level", "loud", "plugins", "list"}, "test")
	gt.Error(t, err).Required()
	gt.Value(t, cli.ExitCode(err)).Equal(1)
}

func TestShell(t *testing.T) {
	color.NoColor = true
	ctx := context.Background()
	repo := memory.New()

	_, err := repo.Organization().Create(ctx, &model.Organization{Slug: "default", Name: "Default", Default: true})
	gt.NoError(t, err).Required()
	project, err := repo.Project().Create(ctx, "default", &model.Project{Name: "default", Default: true})
	gt.NoError(t, err).Required()

	incident, err := repo.Incident().Create(ctx, "default", &model.Incident{
		ProjectID:  project.ID,
		Name:       "default-security-0001",
		Title:      "Leaked credentials",
		Status:     types.IncidentStatusActive,
		ReportedAt: time.Now().UTC(),
	})
	gt.NoError(t, err).Required()

	_, err = repo.Participant().Create(ctx, "default", &model.Participant{
		Subject: incident.Ref(),
		Email:   "bob@example.com",
		Roles: []*model.ParticipantRole{
			{Role: types.ParticipantRoleIncidentCommander, AssumedAt: time.Now().UTC()},
		},
	})
	gt.NoError(t, err).Required()

	in := strings.NewReader("orgs\nincidents leaked\nparticipants default-security-0001\nparticipants nope\nbogus\nexit\n")
	var out bytes.Buffer
	gt.NoError(t, cli.RunShellForTest(ctx, repo, "default", in, &out)).Required()

	got := out.String()
	gt.String(t, got).Contains("* default")
	gt.String(t, got).Contains("default-security-0001")
	gt.String(t, got).Contains("Leaked credentials")
	gt.String(t, got).Contains("bob@example.com")
	gt.String(t, got).Contains(string(types.ParticipantRoleIncidentCommander))
	gt.String(t, got).Contains("unknown command bogus")
}

func TestPrintPlugins(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	cli.PrintPluginsForTest(&out, plugin.New(nil).Plugins())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	gt.Array(t, lines).Length(len(plugin.Builtins()))
	gt.String(t, out.String()).Contains("slack-conversation")
}
