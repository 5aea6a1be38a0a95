package github

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/m-mizutani/goerr/v2"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// Client talks to one GitHub repository through the GraphQL API. The
// ticket, task and monitor providers share it.
type Client struct {
	gql  *githubv4.Client
	conf Config

	mu     sync.Mutex
	repoID githubv4.ID
	labels map[string]githubv4.ID
}

// Option configures the client
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
}

// WithHTTPClient replaces the authenticated HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = hc
	}
}

// New creates a GitHub client using GitHub App authentication, or a token
// when no App is configured. PrivateKey can be a PEM string or a file path
// to a PEM file.
func New(conf Config, opts ...Option) (*Client, error) {
	if conf.Owner == "" || conf.Repo == "" {
		return nil, goerr.New("GitHub owner and repo are required")
	}

	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		switch {
		case conf.AppID != 0:
			var key []byte
			// #nosec G304 -- path comes from plugin configuration set by admins
			if data, err := os.ReadFile(conf.PrivateKey); err == nil {
				key = data
			} else {
				key = []byte(conf.PrivateKey)
			}

			tr, err := ghinstallation.New(http.DefaultTransport, conf.AppID, conf.InstallationID, key)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to create GitHub App transport")
			}
			httpClient = &http.Client{Transport: tr}

		case conf.Token != "":
			src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: conf.Token})
			httpClient = oauth2.NewClient(context.Background(), src)

		default:
			return nil, goerr.New("GitHub App or token is required")
		}
	}

	gql := githubv4.NewClient(httpClient)
	if conf.GraphQLURL != "" {
		gql = githubv4.NewEnterpriseClient(conf.GraphQLURL, httpClient)
	}

	return &Client{gql: gql, conf: conf}, nil
}

func classify(slug string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	msg := err.Error()
	switch {
	case errors.As(err, &netErr):
		return model.NewProviderError(slug, model.ProviderErrorTransient, err)
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "Bad credentials"):
		return model.NewProviderError(slug, model.ProviderErrorAuth, err)
	case strings.Contains(msg, "RATE_LIMITED") || strings.Contains(msg, "429"):
		return model.NewProviderError(slug, model.ProviderErrorRateLimited, err)
	case strings.Contains(msg, "NOT_FOUND") || strings.Contains(msg, "Could not resolve"):
		return model.NewProviderError(slug, model.ProviderErrorNotFound, err)
	case strings.Contains(msg, "502") || strings.Contains(msg, "503") || strings.Contains(msg, "504"):
		return model.NewProviderError(slug, model.ProviderErrorTransient, err)
	}
	return model.NewProviderError(slug, model.ProviderErrorFatal, err)
}

// repository returns the repository node id and its labels, fetched once
func (c *Client) repository(ctx context.Context, slug string) (githubv4.ID, map[string]githubv4.ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.repoID != nil {
		return c.repoID, c.labels, nil
	}

	var q repositoryQuery
	variables := map[string]any{
		"owner": githubv4.String(c.conf.Owner),
		"name":  githubv4.String(c.conf.Repo),
	}
	if err := c.gql.Query(ctx, &q, variables); err != nil {
		return nil, nil, goerr.Wrap(classify(slug, err), "failed to query repository",
			goerr.V("owner", c.conf.Owner), goerr.V("repo", c.conf.Repo))
	}

	labels := make(map[string]githubv4.ID, len(q.Repository.Labels.Nodes))
	for _, l := range q.Repository.Labels.Nodes {
		labels[strings.ToLower(string(l.Name))] = l.ID
	}
	c.repoID = q.Repository.ID
	c.labels = labels
	return c.repoID, c.labels, nil
}

// labelIDs maps label names to ids; names without a repository label are skipped
func labelIDs(known map[string]githubv4.ID, names []string) *[]githubv4.ID {
	var ids []githubv4.ID
	seen := map[string]bool{}
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if id, ok := known[key]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return &ids
}

func (c *Client) createIssue(ctx context.Context, slug, title, body string, labels []string) (*Issue, error) {
	repoID, known, err := c.repository(ctx, slug)
	if err != nil {
		return nil, err
	}

	input := githubv4.CreateIssueInput{
		RepositoryID: repoID,
		Title:        githubv4.String(title),
		Body:         githubv4.NewString(githubv4.String(body)),
		LabelIDs:     labelIDs(known, labels),
	}
	var m createIssueMutation
	if err := c.gql.Mutate(ctx, &m, input, nil); err != nil {
		return nil, goerr.Wrap(classify(slug, err), "failed to create issue", goerr.V("title", title))
	}
	return m.CreateIssue.Issue.toIssue(), nil
}

func (c *Client) updateIssue(ctx context.Context, slug string, input githubv4.UpdateIssueInput) error {
	var m updateIssueMutation
	if err := c.gql.Mutate(ctx, &m, input, nil); err != nil {
		return goerr.Wrap(classify(slug, err), "failed to update issue", goerr.V("issueID", input.ID))
	}
	return nil
}

// searchIssues returns issues of the repository whose title carries the
// subject prefix
func (c *Client) searchIssues(ctx context.Context, slug, subjectName string) ([]*Issue, error) {
	query := fmt.Sprintf("repo:%s/%s is:issue in:title %q", c.conf.Owner, c.conf.Repo, subjectPrefix(subjectName))
	prefix := subjectPrefix(subjectName)
	var cursor *githubv4.String
	var issues []*Issue

	for {
		var q searchIssueQuery
		variables := map[string]any{
			"query":  githubv4.String(query),
			"first":  githubv4.Int(50),
			"cursor": cursor,
		}
		if err := c.gql.Query(ctx, &q, variables); err != nil {
			return nil, goerr.Wrap(classify(slug, err), "failed to search issues", goerr.V("subject", subjectName))
		}

		for _, node := range q.Search.Nodes {
			// search matches words; keep exact prefixes only
			if strings.HasPrefix(string(node.Issue.Title), prefix) {
				issues = append(issues, node.Issue.toIssue())
			}
		}

		if !q.Search.PageInfo.HasNextPage {
			return issues, nil
		}
		cursor = &q.Search.PageInfo.EndCursor
	}
}

// TicketProvider mirrors subjects into GitHub issues
type TicketProvider struct {
	*Client
}

var _ interfaces.TicketProvider = (*TicketProvider)(nil)

// NewTicketProvider creates the ticket provider
func NewTicketProvider(conf Config, opts ...Option) (*TicketProvider, error) {
	c, err := New(conf, opts...)
	if err != nil {
		return nil, err
	}
	return &TicketProvider{Client: c}, nil
}

func (p *TicketProvider) Slug() string             { return TicketPluginSlug }
func (p *TicketProvider) Type() types.ProviderType { return types.ProviderTypeTicket }

func ticketBody(description, kind, priority, commander, reporter string, cost float64, links map[string]string) string {
	var sb strings.Builder
	sb.WriteString(description)
	sb.WriteString("\n\n| Field | Value |\n| --- | --- |\n")
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&sb, "| %s | %s |\n", k, v)
		}
	}
	row("Type", kind)
	row("Priority", priority)
	row("Commander", commander)
	row("Reporter", reporter)
	if cost > 0 {
		row("Cost", "$"+strconv.FormatFloat(cost, 'f', 2, 64))
	}
	for _, name := range slices.Sorted(maps.Keys(links)) {
		row(name, links[name])
	}
	return sb.String()
}

// Create opens an issue for the subject
func (p *TicketProvider) Create(ctx context.Context, req model.TicketRequest) (*model.Resource, error) {
	labels := append([]string{req.Kind, req.Priority}, req.Labels...)
	body := ticketBody(req.Description, req.Kind, req.Priority, req.Commander, req.Reporter, 0, nil)

	issue, err := p.createIssue(ctx, TicketPluginSlug, issueTitle(req.Name, req.Title), body, labels)
	if err != nil {
		return nil, err
	}
	return &model.Resource{
		Type:       types.ResourceTypeTicket,
		ResourceID: issue.ID,
		Weblink:    issue.URL,
	}, nil
}

// Update rewrites the issue title and body and closes it once the subject is closed
func (p *TicketProvider) Update(ctx context.Context, ticketID string, upd model.TicketUpdate) error {
	input := githubv4.UpdateIssueInput{
		ID:    githubv4.ID(ticketID),
		Title: githubv4.NewString(githubv4.String(issueTitle(upd.Name, upd.Title))),
		Body: githubv4.NewString(githubv4.String(
			ticketBody(upd.Description, upd.Kind, upd.Priority, upd.Commander, upd.Reporter, upd.Cost, upd.Links))),
	}
	if upd.Resolution != "" {
		body := string(*input.Body) + "\n\n**Resolution**: " + upd.Resolution
		input.Body = githubv4.NewString(githubv4.String(body))
	}

	state := githubv4.IssueStateOpen
	if strings.EqualFold(upd.Status, "closed") {
		state = githubv4.IssueStateClosed
	}
	input.State = &state

	_, known, err := p.repository(ctx, TicketPluginSlug)
	if err != nil {
		return err
	}
	input.LabelIDs = labelIDs(known, append([]string{upd.Kind, upd.Priority}, upd.Labels...))

	return p.updateIssue(ctx, TicketPluginSlug, input)
}

// Delete removes the issue
func (p *TicketProvider) Delete(ctx context.Context, ticketID string) error {
	var m deleteIssueMutation
	input := githubv4.DeleteIssueInput{IssueID: githubv4.ID(ticketID)}
	if err := p.gql.Mutate(ctx, &m, input, nil); err != nil {
		return goerr.Wrap(classify(TicketPluginSlug, err), "failed to delete issue", goerr.V("ticketID", ticketID))
	}
	return nil
}

// TaskProvider tracks subject tasks as issues titled with the subject prefix
type TaskProvider struct {
	*Client
}

var _ interfaces.TaskProvider = (*TaskProvider)(nil)

// NewTaskProvider creates the task provider
func NewTaskProvider(conf Config, opts ...Option) (*TaskProvider, error) {
	c, err := New(conf, opts...)
	if err != nil {
		return nil, err
	}
	return &TaskProvider{Client: c}, nil
}

func (p *TaskProvider) Slug() string             { return TaskPluginSlug }
func (p *TaskProvider) Type() types.ProviderType { return types.ProviderTypeTask }

// Create opens an issue for the task
func (p *TaskProvider) Create(ctx context.Context, subjectName string, task *model.Task) (*model.Resource, error) {
	var sb strings.Builder
	sb.WriteString(task.Description)
	if task.Owner != "" {
		fmt.Fprintf(&sb, "\n\nOwner: %s", task.Owner)
	}
	if len(task.Assignees) > 0 {
		fmt.Fprintf(&sb, "\nAssignees: %s", strings.Join(task.Assignees, ", "))
	}

	issue, err := p.createIssue(ctx, TaskPluginSlug, issueTitle(subjectName, task.Description), sb.String(), []string{"task"})
	if err != nil {
		return nil, err
	}
	return &model.Resource{ResourceID: issue.ID, Weblink: issue.URL}, nil
}

// SetStatus opens or closes the task issue
func (p *TaskProvider) SetStatus(ctx context.Context, resourceID string, status types.TaskStatus) error {
	state := githubv4.IssueStateOpen
	if status == types.TaskStatusResolved {
		state = githubv4.IssueStateClosed
	}
	return p.updateIssue(ctx, TaskPluginSlug, githubv4.UpdateIssueInput{
		ID:    githubv4.ID(resourceID),
		State: &state,
	})
}

// List returns the task issues of the subject
func (p *TaskProvider) List(ctx context.Context, subjectName string) ([]*model.Task, error) {
	issues, err := p.searchIssues(ctx, TaskPluginSlug, subjectName)
	if err != nil {
		return nil, err
	}

	prefix := subjectPrefix(subjectName) + " "
	tasks := make([]*model.Task, 0, len(issues))
	for _, issue := range issues {
		status := types.TaskStatusOpen
		if strings.EqualFold(issue.State, string(githubv4.IssueStateClosed)) {
			status = types.TaskStatusResolved
		}
		tasks = append(tasks, &model.Task{
			Description: strings.TrimPrefix(issue.Title, prefix),
			Status:      status,
			ResourceID:  issue.ID,
			Weblink:     issue.URL,
		})
	}
	return tasks, nil
}

// MonitorProvider reports the state of issue and pull request links
type MonitorProvider struct {
	*Client
	matcher *regexp.Regexp
}

var _ interfaces.MonitorProvider = (*MonitorProvider)(nil)

// NewMonitorProvider creates the monitor provider. Links of any repository
// of the configured owner are watched.
func NewMonitorProvider(conf Config, opts ...Option) (*MonitorProvider, error) {
	c, err := New(conf, opts...)
	if err != nil {
		return nil, err
	}
	pattern := `https://github\.com/` + regexp.QuoteMeta(conf.Owner) + `/([A-Za-z0-9_.-]+)/(?:issues|pull)/(\d+)`
	return &MonitorProvider{Client: c, matcher: regexp.MustCompile(pattern)}, nil
}

func (p *MonitorProvider) Slug() string             { return MonitorPluginSlug }
func (p *MonitorProvider) Type() types.ProviderType { return types.ProviderTypeMonitor }

// Matchers returns the link patterns the monitor understands
func (p *MonitorProvider) Matchers() []*regexp.Regexp {
	return []*regexp.Regexp{p.matcher}
}

// Status returns the state of the linked issue or pull request. Merged pull
// requests report MERGED.
func (p *MonitorProvider) Status(ctx context.Context, url string) (*model.MonitorStatus, error) {
	m := p.matcher.FindStringSubmatch(url)
	if m == nil {
		return nil, goerr.Wrap(model.ErrInvalidInput, "unsupported link", goerr.V("url", url))
	}
	number, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, goerr.Wrap(model.ErrInvalidInput, "invalid issue number", goerr.V("url", url))
	}

	var q issueOrPullRequestQuery
	variables := map[string]any{
		"owner":  githubv4.String(p.conf.Owner),
		"name":   githubv4.String(m[1]),
		"number": githubv4.Int(number),
	}
	if err := p.gql.Query(ctx, &q, variables); err != nil {
		return nil, goerr.Wrap(classify(MonitorPluginSlug, err), "failed to query link status", goerr.V("url", url))
	}

	node := q.Repository.IssueOrPullRequest
	status := &model.MonitorStatus{URL: url}
	if node.Typename == "PullRequest" {
		status.Title = string(node.PullRequest.Title)
		status.State = string(node.PullRequest.State)
		if node.PullRequest.Merged {
			status.State = "MERGED"
		}
		status.Details = map[string]any{"kind": "pull_request", "repository": m[1], "number": number}
	} else {
		status.Title = string(node.Issue.Title)
		status.State = string(node.Issue.State)
		status.Details = map[string]any{"kind": "issue", "repository": m[1], "number": number}
	}
	return status, nil
}
