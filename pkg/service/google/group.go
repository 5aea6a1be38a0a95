package google

import (
	"context"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/option"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// GroupPluginSlug is the plugin name of the Google group provider
const GroupPluginSlug = "google-group"

// GroupProvider manages Workspace mailing groups. Resource types are set by
// the caller since the same provider backs tactical and notification groups.
type GroupProvider struct {
	svc  *admin.Service
	conf Config
}

var _ interfaces.GroupProvider = (*GroupProvider)(nil)

// NewGroupProvider creates the group provider
func NewGroupProvider(ctx context.Context, conf Config, opts ...option.ClientOption) (*GroupProvider, error) {
	if conf.Domain == "" {
		return nil, goerr.New("Google Workspace domain is required")
	}
	clientOpts, err := clientOptions(ctx, conf, []string{admin.AdminDirectoryGroupScope}, opts)
	if err != nil {
		return nil, err
	}
	svc, err := admin.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create admin directory client")
	}
	return &GroupProvider{svc: svc, conf: conf}, nil
}

func (p *GroupProvider) Slug() string             { return GroupPluginSlug }
func (p *GroupProvider) Type() types.ProviderType { return types.ProviderTypeGroup }

// GroupEmail returns the address of group name in the domain
func (p *GroupProvider) GroupEmail(name string) string {
	return strings.ToLower(name) + "@" + p.conf.Domain
}

// Create creates the group and adds members
func (p *GroupProvider) Create(ctx context.Context, name, description string, members []string) (*model.Resource, error) {
	group := &admin.Group{
		Email:       p.GroupEmail(name),
		Name:        name,
		Description: description,
	}
	created, err := p.svc.Groups.Insert(group).Context(ctx).Do()
	if err != nil {
		return nil, goerr.Wrap(classify(GroupPluginSlug, err), "failed to create group", goerr.V("email", group.Email))
	}

	if err := p.AddMembers(ctx, created.Email, members); err != nil {
		return nil, err
	}

	return &model.Resource{
		ResourceID: created.Id,
		Email:      created.Email,
		Weblink:    "https://groups.google.com/a/" + p.conf.Domain + "/g/" + strings.ToLower(name),
	}, nil
}

// AddMembers adds members; existing members are skipped
func (p *GroupProvider) AddMembers(ctx context.Context, groupEmail string, members []string) error {
	for _, email := range members {
		_, err := p.svc.Members.Insert(groupEmail, &admin.Member{Email: email, Role: "MEMBER"}).Context(ctx).Do()
		if err == nil {
			continue
		}
		if statusCode(err) == http.StatusConflict {
			logging.From(ctx).Debug("Member already in group", "group", groupEmail, "email", email)
			continue
		}
		return goerr.Wrap(classify(GroupPluginSlug, err), "failed to add group member",
			goerr.V("group", groupEmail), goerr.V("email", email))
	}
	return nil
}

// RemoveMembers removes members; unknown members are skipped
func (p *GroupProvider) RemoveMembers(ctx context.Context, groupEmail string, members []string) error {
	for _, email := range members {
		err := p.svc.Members.Delete(groupEmail, email).Context(ctx).Do()
		if err == nil || statusCode(err) == http.StatusNotFound {
			continue
		}
		return goerr.Wrap(classify(GroupPluginSlug, err), "failed to remove group member",
			goerr.V("group", groupEmail), goerr.V("email", email))
	}
	return nil
}

// ListMembers returns the member emails of the group
func (p *GroupProvider) ListMembers(ctx context.Context, groupEmail string) ([]string, error) {
	var emails []string
	err := p.svc.Members.List(groupEmail).Pages(ctx, func(page *admin.Members) error {
		for _, m := range page.Members {
			emails = append(emails, strings.ToLower(m.Email))
		}
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(classify(GroupPluginSlug, err), "failed to list group members", goerr.V("group", groupEmail))
	}
	return emails, nil
}

// Delete deletes the group
func (p *GroupProvider) Delete(ctx context.Context, groupEmail string) error {
	if err := p.svc.Groups.Delete(groupEmail).Context(ctx).Do(); err != nil {
		return goerr.Wrap(classify(GroupPluginSlug, err), "failed to delete group", goerr.V("group", groupEmail))
	}
	return nil
}
