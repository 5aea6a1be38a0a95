package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/Netflix/dispatch-sub000/pkg/cli/config"
	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

func cmdShell() *cli.Command {
	var repoCfg config.Repository
	var org string

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "organization",
			Aliases:     []string{"o"},
			Usage:       "Organization slug. Defaults to the default organization",
			Sources:     cli.EnvVars("DISPATCH_ORGANIZATION"),
			Destination: &org,
		},
	}
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:  "shell",
		Usage: "Interactive read-only console against the configured store",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			if org == "" {
				orgs, err := loadOrganizations(ctx, repo)
				if err != nil {
					return err
				}
				def, err := orgs.Default()
				if err != nil {
					return goerr.Wrap(config.ErrInvalidConfig, "no organization to open; pass --organization")
				}
				org = def.Slug
			}

			return newShell(repo, org, os.Stdout).run(ctx, os.Stdin)
		},
	}
}

type shell struct {
	repo interfaces.Repository
	org  string
	out  io.Writer

	title  func(a ...any) string
	faint  func(a ...any) string
	alert  func(a ...any) string
	status func(a ...any) string
}

func newShell(repo interfaces.Repository, org string, out io.Writer) *shell {
	return &shell{
		repo:   repo,
		org:    org,
		out:    out,
		title:  color.New(color.Bold, color.FgCyan).SprintFunc(),
		faint:  color.New(color.Faint).SprintFunc(),
		alert:  color.New(color.FgRed).SprintFunc(),
		status: color.New(color.FgYellow).SprintFunc(),
	}
}

func (s *shell) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}

func (s *shell) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	s.printf("%s %s\n", s.title("dispatch shell"), s.faint("("+s.org+", type help)"))
	for {
		s.printf("%s> ", s.org)
		if !scanner.Scan() {
			s.printf("\n")
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "exit" || fields[0] == "quit" {
			return nil
		}
		if err := s.exec(ctx, fields[0], fields[1:]); err != nil {
			s.printf("%s %v\n", s.alert("error:"), err)
		}
	}
}

func (s *shell) exec(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		s.printf("incidents [query]      list incidents\n")
		s.printf("cases [query]          list cases\n")
		s.printf("participants <name>    participants of an incident or case\n")
		s.printf("events <name>          timeline of an incident or case\n")
		s.printf("orgs                   list organizations\n")
		s.printf("plugins                plugin instances of every project\n")
		s.printf("exit                   leave the shell\n")
		return nil
	case "orgs":
		return s.orgs(ctx)
	case "incidents":
		return s.incidents(ctx, strings.Join(args, " "))
	case "cases":
		return s.cases(ctx, strings.Join(args, " "))
	case "participants", "events":
		if len(args) != 1 {
			return goerr.New(cmd + " takes exactly one subject name")
		}
		ref, err := s.resolve(ctx, args[0])
		if err != nil {
			return err
		}
		if cmd == "participants" {
			return s.participants(ctx, ref)
		}
		return s.events(ctx, ref)
	case "plugins":
		return s.plugins(ctx)
	}
	return goerr.New("unknown command " + cmd + "; type help")
}

func (s *shell) orgs(ctx context.Context) error {
	orgs, err := s.repo.Organization().List(ctx)
	if err != nil {
		return err
	}
	for _, o := range orgs {
		mark := " "
		if o.Slug == s.org {
			mark = "*"
		}
		s.printf("%s %-24s %s\n", mark, s.title(o.Slug), o.Name)
	}
	return nil
}

func (s *shell) incidents(ctx context.Context, q string) error {
	list, err := s.repo.Incident().List(ctx, s.org, model.IncidentQuery{Text: q, Limit: 50})
	if err != nil {
		return err
	}
	for _, i := range list {
		s.printf("%-32s %-10s %s %s\n", s.title(i.Name), s.status(i.Status), i.Title,
			s.faint(i.ReportedAt.Format("2006-01-02 15:04")))
	}
	return nil
}

func (s *shell) cases(ctx context.Context, q string) error {
	list, err := s.repo.Case().List(ctx, s.org, model.CaseQuery{Text: q, Limit: 50})
	if err != nil {
		return err
	}
	for _, c := range list {
		s.printf("%-32s %-10s %s %s\n", s.title(c.Name), s.status(c.Status), c.Title,
			s.faint(c.ReportedAt.Format("2006-01-02 15:04")))
	}
	return nil
}

// resolve finds the incident or case named name
func (s *shell) resolve(ctx context.Context, name string) (model.SubjectRef, error) {
	incident, err := s.repo.Incident().GetByName(ctx, s.org, name)
	if err == nil {
		return incident.Ref(), nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.SubjectRef{}, err
	}
	c, err := s.repo.Case().GetByName(ctx, s.org, name)
	if err != nil {
		return model.SubjectRef{}, err
	}
	return c.Ref(), nil
}

func (s *shell) participants(ctx context.Context, ref model.SubjectRef) error {
	list, err := s.repo.Participant().List(ctx, s.org, ref)
	if err != nil {
		return err
	}
	for _, p := range list {
		var roles []string
		for _, r := range p.ActiveRoles() {
			roles = append(roles, string(r.Role))
		}
		if len(roles) == 0 {
			roles = []string{s.faint("inactive")}
		}
		s.printf("%-40s %s\n", p.Email, strings.Join(roles, ","))
	}
	return nil
}

func (s *shell) events(ctx context.Context, ref model.SubjectRef) error {
	list, err := s.repo.Event().List(ctx, s.org, ref)
	if err != nil {
		return err
	}
	for _, e := range list {
		s.printf("%s %-20s %s\n", s.faint(e.StartedAt.Format("2006-01-02 15:04:05")), s.status(e.Source), e.Description)
	}
	return nil
}

func (s *shell) plugins(ctx context.Context) error {
	projects, err := s.repo.Project().List(ctx, s.org)
	if err != nil {
		return err
	}
	for _, p := range projects {
		s.printf("%s\n", s.title(p.Name))
		instances, err := s.repo.PluginInstance().List(ctx, s.org, p.ID)
		if err != nil {
			return err
		}
		for _, inst := range instances {
			state := s.status("enabled")
			if !inst.Enabled {
				state = s.faint("disabled")
			}
			s.printf("  %-24s %-28s %s\n", inst.Type, inst.Plugin, state)
		}
	}
	return nil
}
