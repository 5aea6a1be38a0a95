package github

import (
	"fmt"
	"strings"

	"github.com/shurcooL/githubv4"
)

// Plugin slugs of the GitHub providers
const (
	TicketPluginSlug  = "github-ticket"
	TaskPluginSlug    = "github-task"
	MonitorPluginSlug = "github-monitor"
)

// Config is the plugin configuration shared by the GitHub providers. Either
// a GitHub App (AppID, InstallationID, PrivateKey) or a Token is required.
type Config struct {
	AppID          int64  `json:"app_id,omitempty"`
	InstallationID int64  `json:"installation_id,omitempty"`
	PrivateKey     string `json:"private_key,omitempty" masq:"secret"`
	Token          string `json:"token,omitempty" masq:"secret"`

	Owner string `json:"owner"`
	Repo  string `json:"repo"`

	// GraphQLURL overrides the endpoint for GitHub Enterprise
	GraphQLURL string `json:"graphql_url,omitempty"`
}

// Issue is an issue of the configured repository
type Issue struct {
	ID     string
	Number int
	Title  string
	Body   string
	State  string
	URL    string
}

// subjectPrefix marks issues belonging to a subject, e.g. "[default-security-0001]"
func subjectPrefix(subjectName string) string {
	return "[" + subjectName + "]"
}

func issueTitle(subjectName, title string) string {
	title = strings.TrimSpace(title)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	if len(title) > 200 {
		title = title[:200]
	}
	return subjectPrefix(subjectName) + " " + title
}

// GraphQL query types

type repositoryQuery struct {
	Repository struct {
		ID     githubv4.ID
		Labels struct {
			Nodes []struct {
				ID   githubv4.ID
				Name githubv4.String
			}
		} `graphql:"labels(first: 100)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

type issueNode struct {
	ID     githubv4.ID
	Number githubv4.Int
	Title  githubv4.String
	Body   githubv4.String
	State  githubv4.String
	URL    githubv4.String
}

func (n issueNode) toIssue() *Issue {
	return &Issue{
		ID:     fmt.Sprint(n.ID),
		Number: int(n.Number),
		Title:  string(n.Title),
		Body:   string(n.Body),
		State:  string(n.State),
		URL:    string(n.URL),
	}
}

type createIssueMutation struct {
	CreateIssue struct {
		Issue issueNode
	} `graphql:"createIssue(input: $input)"`
}

type updateIssueMutation struct {
	UpdateIssue struct {
		Issue issueNode
	} `graphql:"updateIssue(input: $input)"`
}

type deleteIssueMutation struct {
	DeleteIssue struct {
		ClientMutationID githubv4.String
	} `graphql:"deleteIssue(input: $input)"`
}

type searchIssueQuery struct {
	Search struct {
		Nodes []struct {
			Issue issueNode `graphql:"... on Issue"`
		}
		PageInfo pageInfo
	} `graphql:"search(query: $query, type: ISSUE, first: $first, after: $cursor)"`
}

type pageInfo struct {
	HasNextPage bool
	EndCursor   githubv4.String
}

type issueOrPullRequestQuery struct {
	Repository struct {
		IssueOrPullRequest struct {
			Typename githubv4.String `graphql:"__typename"`

			Issue struct {
				Title githubv4.String
				State githubv4.String
			} `graphql:"... on Issue"`
			PullRequest struct {
				Title  githubv4.String
				State  githubv4.String
				Merged githubv4.Boolean
			} `graphql:"... on PullRequest"`
		} `graphql:"issueOrPullRequest(number: $number)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}
