package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
	"golang.org/x/sync/errgroup"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/errutil"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// Action ids of interactive message components
const (
	ActionFeedbackOpen  = "incident-feedback-open"
	ActionRemindAgain   = "report-remind-again"
	ActionTaskResolve   = "task-resolve"
	ActionTaskReopen    = "task-reopen"
	ActionInviteUser    = "conversation-invite-user"
	ActionSubscribeUser = "conversation-subscribe-user"
	ActionJoinIncident  = "incident-join"
	ActionMonitorLink   = "monitor-link"
	ActionIgnoreLink    = "monitor-ignore-link"
	ActionCaseReopen    = "case-reopen"
	ActionCaseEdit      = "case-edit"
	ActionCaseResolve   = "case-resolve"
	ActionCaseEscalate  = "case-escalate"
	ActionProjectSelect = "project-select"
)

// RequestKind is the kind of inbound chat payload
type RequestKind string

const (
	RequestKindEvent       RequestKind = "event"
	RequestKindCommand     RequestKind = "command"
	RequestKindInteraction RequestKind = "interaction"
)

// RequestContext is threaded through the dispatcher middlewares and handlers
// of one inbound chat payload
type RequestContext struct {
	Kind RequestKind

	Organization string
	Subject      model.Subject
	ProjectID    int64

	ChannelID string
	ThreadID  string

	UserID string
	User   *model.ChatUser
	Email  string

	Chat   interfaces.ChatProvider
	Config *model.ChatConfig

	// Interaction fields
	TriggerID   string
	ResponseURL string
	ViewID      string
	CallbackID  string
	Form        model.FormData
	Metadata    viewMetadata
	State       *slack.ViewState

	// Command fields
	Command string
	Text    string

	// route options
	route        *commandRoute
	needsContext bool
	restricted   bool
	subjectKind  types.SubjectKind
}

// Ref returns the reference of the located subject, or the zero reference
func (rc *RequestContext) Ref() model.SubjectRef {
	if rc.Subject == nil {
		return model.SubjectRef{}
	}
	return rc.Subject.Ref()
}

// viewMetadata is stored in private_metadata of opened views
type viewMetadata struct {
	Organization string `json:"org,omitempty"`
	Subject      string `json:"subject,omitempty"`
	ProjectID    int64  `json:"project_id,omitempty"`
	ChannelID    string `json:"channel_id,omitempty"`
	ThreadID     string `json:"thread_id,omitempty"`
}

func (m viewMetadata) encode() string {
	raw, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(raw)
}

func parseViewMetadata(s string) viewMetadata {
	var m viewMetadata
	if s != "" {
		_ = json.Unmarshal([]byte(s), &m)
	}
	return m
}

func (rc *RequestContext) metadata() viewMetadata {
	m := viewMetadata{
		Organization: rc.Organization,
		ProjectID:    rc.ProjectID,
		ChannelID:    rc.ChannelID,
		ThreadID:     rc.ThreadID,
	}
	if rc.Subject != nil {
		m.Subject = rc.Subject.Ref().String()
	}
	return m
}

// middleware is one step of the dispatcher pipeline
type middleware func(ctx context.Context, rc *RequestContext) (context.Context, error)

// pipeline returns the ordered middleware chain
func (uc *UseCases) pipeline() []middleware {
	return []middleware{
		uc.subjectMiddleware,
		uc.dbMiddleware,
		uc.configurationMiddleware,
		uc.userMiddleware,
		uc.commandContextMiddleware,
		uc.modalSubmitMiddleware,
		uc.restrictedCommandMiddleware,
	}
}

func (uc *UseCases) runPipeline(ctx context.Context, rc *RequestContext) (context.Context, error) {
	var err error
	for _, m := range uc.pipeline() {
		if ctx, err = m(ctx, rc); err != nil {
			return ctx, err
		}
	}
	return ctx, nil
}

// subjectMiddleware locates the subject from the view metadata or the
// conversation, falling back to the organization of the invoking user
func (uc *UseCases) subjectMiddleware(ctx context.Context, rc *RequestContext) (context.Context, error) {
	if rc.Metadata.Organization != "" {
		rc.Organization = rc.Metadata.Organization
		rc.ProjectID = rc.Metadata.ProjectID
		if rc.ChannelID == "" {
			rc.ChannelID, rc.ThreadID = rc.Metadata.ChannelID, rc.Metadata.ThreadID
		}
		if rc.Metadata.Subject != "" {
			ref, err := model.ParseSubjectRef(rc.Metadata.Subject)
			if err != nil {
				return ctx, goerr.Wrap(model.ErrInvalidInput, "invalid view metadata", goerr.V(model.SubjectKey, rc.Metadata.Subject))
			}
			s, err := uc.Subject(ctx, rc.Organization, ref)
			if err != nil {
				return ctx, err
			}
			rc.Subject, rc.ProjectID = s, s.GetProjectID()
		}
		return ctx, nil
	}

	if rc.ChannelID != "" {
		loc, err := uc.LocateConversation(ctx, rc.ChannelID, rc.ThreadID)
		if err != nil {
			return ctx, err
		}
		if loc != nil {
			s, err := uc.Subject(ctx, loc.Organization, loc.Subject)
			if err != nil {
				return ctx, err
			}
			rc.Organization, rc.Subject, rc.ProjectID = loc.Organization, s, loc.ProjectID
			return ctx, nil
		}
	}

	org, err := uc.userOrganization(ctx, rc.UserID)
	if err != nil {
		return ctx, err
	}
	rc.Organization = org
	return ctx, nil
}

// dbMiddleware scopes the request to the organization of the subject
func (uc *UseCases) dbMiddleware(ctx context.Context, rc *RequestContext) (context.Context, error) {
	if _, err := uc.orgs.Get(rc.Organization); err != nil {
		return ctx, err
	}
	if rc.ProjectID == 0 {
		p, err := uc.defaultProject(ctx, rc.Organization)
		if err != nil {
			return ctx, err
		}
		rc.ProjectID = p.ID
	}
	ctx = logging.WithAttrs(ctx, "organization", rc.Organization)
	if rc.Subject != nil {
		ctx = logging.WithAttrs(ctx, "subject", rc.Subject.GetName())
	}
	return ctx, nil
}

// configurationMiddleware loads the chat provider of the project
func (uc *UseCases) configurationMiddleware(ctx context.Context, rc *RequestContext) (context.Context, error) {
	chat, err := uc.chat(ctx, rc.Organization, rc.ProjectID)
	if err != nil {
		return ctx, err
	}
	if chat == nil {
		return ctx, goerr.Wrap(model.ErrNotFound, "no chat plugin enabled", goerr.V(model.ProjectIDKey, rc.ProjectID))
	}
	conf, err := uc.chatConfig(ctx, rc.Organization, rc.ProjectID)
	if err != nil {
		return ctx, err
	}
	rc.Chat, rc.Config = chat, conf

	if rc.Kind == RequestKindCommand {
		route, ok := resolveCommand(conf, rc.Command)
		if !ok {
			return ctx, model.NewValidationError("command", "unknown command "+rc.Command)
		}
		rc.route = route
		rc.needsContext, rc.restricted, rc.subjectKind = route.needsContext, route.restricted, route.kind
	}
	return ctx, nil
}

// userMiddleware resolves the chat user and registers the system user of
// the organization when unknown
func (uc *UseCases) userMiddleware(ctx context.Context, rc *RequestContext) (context.Context, error) {
	if rc.UserID == "" {
		return ctx, nil
	}
	u, err := callValue(ctx, uc, rc.Chat, "get_user", func() (*model.ChatUser, error) {
		return rc.Chat.GetUser(ctx, rc.UserID)
	})
	if err != nil {
		return ctx, goerr.Wrap(err, "failed to resolve chat user", goerr.V("user_id", rc.UserID))
	}
	rc.User, rc.Email = u, strings.ToLower(u.Email)
	if rc.Email == "" {
		return ctx, nil
	}

	existing, err := uc.repo.User().GetByEmail(ctx, rc.Email)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return ctx, goerr.Wrap(err, "failed to get user", goerr.V(model.EmailKey, rc.Email))
	}
	if existing == nil || !existing.BelongsTo(rc.Organization) {
		u := &model.User{Email: rc.Email, Organizations: []string{rc.Organization}}
		if existing == nil {
			u.Role = types.UserRoleMember
		}
		if _, err := uc.repo.User().Upsert(ctx, u); err != nil {
			return ctx, goerr.Wrap(err, "failed to register user", goerr.V(model.EmailKey, rc.Email))
		}
	}
	return logging.WithAttrs(ctx, "user", rc.Email), nil
}

// commandContextMiddleware fails when the route requires a subject that was
// not found
func (uc *UseCases) commandContextMiddleware(ctx context.Context, rc *RequestContext) (context.Context, error) {
	if !rc.needsContext {
		return ctx, nil
	}
	if rc.Subject == nil {
		if rc.ChannelID != "" && rc.Chat != nil {
			member, err := rc.Chat.IsBotMember(ctx, rc.ChannelID)
			if err == nil && !member {
				return ctx, goerr.Wrap(model.ErrBotNotPresent, "bot is not in the conversation", goerr.V(model.ChannelIDKey, rc.ChannelID))
			}
		}
		return ctx, goerr.Wrap(model.ErrContext, "no subject for conversation", goerr.V(model.ChannelIDKey, rc.ChannelID))
	}
	if rc.subjectKind != "" && rc.Subject.Ref().Kind != rc.subjectKind {
		return ctx, goerr.Wrap(model.ErrContext, "command requires another subject kind",
			goerr.V("required", rc.subjectKind), goerr.V(model.SubjectKey, rc.Subject.GetName()))
	}
	return ctx, nil
}

// modalSubmitMiddleware normalizes the submitted view state
func (uc *UseCases) modalSubmitMiddleware(ctx context.Context, rc *RequestContext) (context.Context, error) {
	if rc.State != nil {
		rc.Form = model.ParseViewState(rc.State)
	}
	return ctx, nil
}

// restrictedCommandMiddleware permits restricted routes to privileged roles
func (uc *UseCases) restrictedCommandMiddleware(ctx context.Context, rc *RequestContext) (context.Context, error) {
	if !rc.restricted || rc.Subject == nil {
		return ctx, nil
	}
	p, err := uc.repo.Participant().GetByEmail(ctx, rc.Organization, rc.Subject.Ref(), rc.Email)
	if err != nil {
		return ctx, goerr.Wrap(err, "failed to get participant", goerr.V(model.EmailKey, rc.Email))
	}
	if p != nil {
		for _, r := range p.ActiveRoles() {
			if r.Role.IsPrivileged() {
				return ctx, nil
			}
		}
	}
	return ctx, goerr.Wrap(model.ErrRole, "restricted command", goerr.V(model.EmailKey, rc.Email))
}

// LocateConversation finds the subject bound to a conversation across all
// organizations. A thread is probed before its channel. The first
// organization in registration order wins.
func (uc *UseCases) LocateConversation(ctx context.Context, channelID, threadID string) (*model.ConversationLocation, error) {
	slugs := uc.orgs.Slugs()
	found := make([]*model.Resource, len(slugs))

	eg, ctx := errgroup.WithContext(ctx)
	for i, org := range slugs {
		eg.Go(func() error {
			probes := []string{""}
			if threadID != "" {
				probes = []string{threadID, ""}
			}
			for _, thread := range probes {
				r, err := uc.repo.Resource().FindConversation(ctx, org, channelID, thread)
				if err != nil {
					return goerr.Wrap(err, "failed to find conversation", goerr.V(model.OrgKey, org), goerr.V(model.ChannelIDKey, channelID))
				}
				if r != nil {
					found[i] = r
					return nil
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for i, r := range found {
		if r == nil {
			continue
		}
		s, err := uc.Subject(ctx, slugs[i], r.Subject)
		if err != nil {
			return nil, err
		}
		return &model.ConversationLocation{Organization: slugs[i], Subject: r.Subject, ProjectID: s.GetProjectID()}, nil
	}
	return nil, nil
}

// userOrganization returns the first organization of the invoking user, or
// the default organization
func (uc *UseCases) userOrganization(ctx context.Context, userID string) (string, error) {
	def, err := uc.orgs.Default()
	if err != nil {
		return "", err
	}
	if userID == "" {
		return def.Slug, nil
	}
	project, err := uc.defaultProject(ctx, def.Slug)
	if err != nil {
		return def.Slug, nil
	}
	chat, err := uc.chat(ctx, def.Slug, project.ID)
	if err != nil || chat == nil {
		return def.Slug, nil
	}
	cu, err := chat.GetUser(ctx, userID)
	if err != nil || cu.Email == "" {
		return def.Slug, nil
	}
	u, err := uc.repo.User().GetByEmail(ctx, strings.ToLower(cu.Email))
	if err != nil || len(u.Organizations) == 0 {
		return def.Slug, nil
	}
	for _, org := range u.Organizations {
		if _, err := uc.orgs.Get(org); err == nil {
			return org, nil
		}
	}
	return def.Slug, nil
}

// defaultProject returns the project marked default, or the first one
func (uc *UseCases) defaultProject(ctx context.Context, org string) (*model.Project, error) {
	projects, err := uc.repo.Project().List(ctx, org)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list projects", goerr.V(model.OrgKey, org))
	}
	for _, p := range projects {
		if p.Default {
			return p, nil
		}
	}
	if len(projects) == 0 {
		return nil, goerr.Wrap(model.ErrNotFound, "organization has no project", goerr.V(model.OrgKey, org))
	}
	return projects[0], nil
}

// errorMessage returns the user facing text of a dispatcher error
func errorMessage(ctx context.Context, err error, msg string) string {
	var verr *model.ValidationError
	switch {
	case errors.Is(err, model.ErrContext):
		return "This command must be run inside an incident or case conversation."
	case errors.Is(err, model.ErrRole):
		return fmt.Sprintf("Only participants with the %s or %s role can run this command.",
			types.ParticipantRoleIncidentCommander.Title(), types.ParticipantRoleScribe.Title())
	case errors.Is(err, model.ErrBotNotPresent):
		return "I am not a member of this conversation. Invite me, or run the command in an incident or case conversation."
	case errors.As(err, &verr):
		lines := make([]string, 0, len(verr.Details))
		for _, d := range verr.Details {
			lines = append(lines, fmt.Sprintf("• %s: %s", d.Loc, d.Msg))
		}
		return "Please fix the following:\n" + strings.Join(lines, "\n")
	case errors.Is(err, model.ErrNotFound):
		logging.From(ctx).Info(msg, "error", err)
		return "The requested item could not be found."
	}
	guid := errutil.Handle(ctx, err, msg)
	return fmt.Sprintf("Sorry, we've run into an unexpected error. Reference: `%s`", guid)
}

// respondError surfaces err to the user: in the open view when there is
// one, otherwise as an ephemeral message
func (uc *UseCases) respondError(ctx context.Context, rc *RequestContext, err error, msg string) {
	text := errorMessage(ctx, err, msg)
	if rc.Chat == nil {
		return
	}
	if rc.ViewID != "" {
		if uerr := uc.call(ctx, rc.Chat, "update_modal", func() error {
			return rc.Chat.UpdateModal(ctx, rc.ViewID, resultView("Error", ":warning: "+text))
		}); uerr == nil {
			return
		}
	}
	uc.reply(ctx, rc, text, nil)
}

// reply posts an ephemeral message to the invoking user
func (uc *UseCases) reply(ctx context.Context, rc *RequestContext, text string, blocks []slack.Block) {
	if rc.Chat == nil {
		return
	}
	opts := model.ChatMessageOptions{ThreadTS: rc.ThreadID, ResponseURL: rc.ResponseURL}
	if rc.ChannelID == "" && rc.ResponseURL == "" {
		if err := uc.call(ctx, rc.Chat, "send_direct", func() error {
			return rc.Chat.SendDirect(ctx, rc.Email, text, blocks)
		}); err != nil {
			logging.From(ctx).Warn("failed to send direct reply", "error", err)
		}
		return
	}
	if err := uc.call(ctx, rc.Chat, "send_ephemeral", func() error {
		return rc.Chat.SendEphemeral(ctx, rc.ChannelID, rc.Email, text, blocks, opts)
	}); err != nil {
		logging.From(ctx).Warn("failed to send ephemeral reply", "error", err)
	}
}

// dispatch runs the pipeline and the handler, recording the request
// duration. Failures are surfaced to the user and never returned.
func (uc *UseCases) dispatch(ctx context.Context, rc *RequestContext, name string, handler func(ctx context.Context, rc *RequestContext) error) {
	start := time.Now()
	defer func() { uc.metrics.ChatRequest(string(rc.Kind), time.Since(start)) }()

	ctx = logging.WithAttrs(ctx, "chat_request", name)
	ctx, err := uc.runPipeline(ctx, rc)
	if err == nil {
		err = handler(ctx, rc)
	}
	if err != nil {
		uc.respondError(ctx, rc, err, "failed to handle "+string(rc.Kind)+" "+name)
	}
}

// encodeActionValue encodes "<org>/<subject ref>" for button values
func encodeActionValue(org string, ref model.SubjectRef) string {
	return org + "/" + ref.String()
}

// decodeActionValue parses encodeActionValue output. Anything after a "|"
// is returned as the argument.
func decodeActionValue(value string) (org string, ref model.SubjectRef, arg string, err error) {
	head, arg, _ := strings.Cut(value, "|")
	org, refStr, ok := strings.Cut(head, "/")
	if !ok || org == "" {
		return "", model.SubjectRef{}, "", goerr.Wrap(model.ErrInvalidInput, "invalid action value", goerr.V("value", value))
	}
	ref, perr := model.ParseSubjectRef(refStr)
	if perr != nil {
		return "", model.SubjectRef{}, "", goerr.Wrap(model.ErrInvalidInput, "invalid subject in action value", goerr.V("value", value))
	}
	return org, ref, arg, nil
}

// catalogSelection resolves a selected catalog option by id, falling back to
// a case-insensitive name match
func catalogSelection[T model.CatalogItem](ctx context.Context, repo interfaces.CatalogRepository[T], org string, projectID int64, loc string, sel model.SelectedValue) (int64, error) {
	if sel.Value == "" {
		return 0, nil
	}
	if id, err := strconv.ParseInt(sel.Value, 10, 64); err == nil {
		return id, nil
	}
	items, err := repo.List(ctx, org, projectID)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list catalog", goerr.V(model.ProjectIDKey, projectID))
	}
	for _, item := range items {
		if strings.EqualFold(item.GetName(), sel.Value) || strings.EqualFold(item.GetName(), sel.Name) {
			return item.GetID(), nil
		}
	}
	return 0, model.NewValidationError(loc, "unknown option "+sel.Value)
}

// projectSelection resolves a selected project by id or name
func (uc *UseCases) projectSelection(ctx context.Context, org string, sel model.SelectedValue, fallback int64) (*model.Project, error) {
	if sel.Value == "" {
		if fallback != 0 {
			return uc.getProject(ctx, org, fallback)
		}
		return uc.defaultProject(ctx, org)
	}
	if id, err := strconv.ParseInt(sel.Value, 10, 64); err == nil {
		return uc.getProject(ctx, org, id)
	}
	p, err := uc.repo.Project().GetByName(ctx, org, sel.Value)
	if errors.Is(err, model.ErrNotFound) || (err == nil && p == nil) {
		return nil, model.NewValidationError(BlockProject, "unknown project "+sel.Value)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get project", goerr.V("project", sel.Value))
	}
	return p, nil
}
