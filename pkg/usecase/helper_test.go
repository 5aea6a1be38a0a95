package usecase_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
	"github.com/slack-go/slack"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/repository/memory"
	"github.com/Netflix/dispatch-sub000/pkg/usecase"
)

const testOrg = "default"

// callLog records provider calls in order across mocks
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// index returns the position of the first call with prefix, or -1
func (l *callLog) index(prefix string) int {
	for i, c := range l.list() {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

type sentMessage struct {
	ChannelID string
	ThreadTS  string
	Text      string
	Blocks    []slack.Block
}

// mockChat is a chat provider recording what it was asked to do
type mockChat struct {
	log   *callLog
	users map[string]string

	fetchTranscriptFn func(ctx context.Context, channelID, threadID string) ([]*model.ChatMessage, error)
	// threads maps a message ts to the thread it was posted in
	threads map[string]string
	config  *model.ChatConfig

	mu          sync.Mutex
	seq         int
	messages    []sentMessage
	directs     []string
	ephemerals  []string
	renames     map[string]string
	invites     map[string][]string
	topics      map[string]string
	modalUpdate []slack.ModalViewRequest
}

var _ interfaces.ChatProvider = (*mockChat)(nil)

func newMockChat(log *callLog) *mockChat {
	return &mockChat{
		log: log,
		users: map[string]string{
			"U-alice": "alice@example.com",
			"U-bob":   "bob@example.com",
			"U-carol": "carol@example.com",
			"U-dave":  "dave@example.com",
		},
		threads: map[string]string{},
		renames: map[string]string{},
		invites: map[string][]string{},
		topics:  map[string]string{},
	}
}

func (m *mockChat) Slug() string             { return "slack-conversation" }
func (m *mockChat) Type() types.ProviderType { return types.ProviderTypeChat }

func (m *mockChat) Config() *model.ChatConfig { return m.config }

func (m *mockChat) CreateConversation(ctx context.Context, name string, private bool) (*model.Resource, error) {
	m.log.add("chat.create_conversation:" + name)
	id := "C-" + name
	return &model.Resource{ResourceID: id, ChannelID: id, Weblink: "https://slack.example.com/archives/" + id}, nil
}

func (m *mockChat) ArchiveConversation(ctx context.Context, channelID string) error {
	m.log.add("chat.archive:" + channelID)
	return nil
}

func (m *mockChat) UnarchiveConversation(ctx context.Context, channelID string) error {
	m.log.add("chat.unarchive:" + channelID)
	return nil
}

func (m *mockChat) RenameConversation(ctx context.Context, channelID, name string) error {
	m.log.add("chat.rename:" + channelID)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renames[channelID] = name
	return nil
}

func (m *mockChat) InviteToConversation(ctx context.Context, channelID string, emails []string) error {
	m.log.add("chat.invite:" + channelID)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invites[channelID] = append(m.invites[channelID], emails...)
	return nil
}

func (m *mockChat) SetTopic(ctx context.Context, channelID, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics[channelID] = topic
	return nil
}

func (m *mockChat) SetDescription(ctx context.Context, channelID, description string) error {
	return nil
}

func (m *mockChat) AddBookmark(ctx context.Context, channelID, title, link string) error {
	return nil
}

func (m *mockChat) IsBotMember(ctx context.Context, channelID string) (bool, error) {
	return true, nil
}

func (m *mockChat) SendMessage(ctx context.Context, channelID string, text string, blocks []slack.Block, opts model.ChatMessageOptions) (string, error) {
	m.log.add("chat.send_message:" + channelID)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.messages = append(m.messages, sentMessage{ChannelID: channelID, ThreadTS: opts.ThreadTS, Text: text, Blocks: blocks})
	return fmt.Sprintf("1700000000.%06d", m.seq), nil
}

func (m *mockChat) SendDirect(ctx context.Context, email string, text string, blocks []slack.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.directs = append(m.directs, email)
	return nil
}

func (m *mockChat) SendEphemeral(ctx context.Context, channelID, email string, text string, blocks []slack.Block, opts model.ChatMessageOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ephemerals = append(m.ephemerals, email+":"+text)
	return nil
}

func (m *mockChat) UpdateMessage(ctx context.Context, channelID, ts string, text string, blocks []slack.Block) error {
	return nil
}

func (m *mockChat) FetchMessage(ctx context.Context, channelID, ts string) (*model.ChatMessage, error) {
	return &model.ChatMessage{TS: ts, ThreadTS: m.threads[ts], UserID: "U-alice", UserEmail: "alice@example.com", Text: "message " + ts}, nil
}

func (m *mockChat) FetchTranscript(ctx context.Context, channelID, threadID string) ([]*model.ChatMessage, error) {
	if m.fetchTranscriptFn != nil {
		return m.fetchTranscriptFn(ctx, channelID, threadID)
	}
	return nil, nil
}

func (m *mockChat) GetUser(ctx context.Context, userID string) (*model.ChatUser, error) {
	email, ok := m.users[userID]
	if !ok {
		return nil, model.ErrNotFound
	}
	name, _, _ := strings.Cut(email, "@")
	return &model.ChatUser{ID: userID, Name: name, Email: email, TZ: "UTC"}, nil
}

func (m *mockChat) GetUserByEmail(ctx context.Context, email string) (*model.ChatUser, error) {
	for id, e := range m.users {
		if e == email {
			return m.GetUser(ctx, id)
		}
	}
	return nil, model.ErrNotFound
}

func (m *mockChat) OpenModal(ctx context.Context, triggerID string, view slack.ModalViewRequest) (string, error) {
	return "V-opened", nil
}

func (m *mockChat) UpdateModal(ctx context.Context, viewID string, view slack.ModalViewRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modalUpdate = append(m.modalUpdate, view)
	return nil
}

func (m *mockChat) sent(channelID string) []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMessage
	for _, msg := range m.messages {
		if msg.ChannelID == channelID {
			out = append(out, msg)
		}
	}
	return out
}

// blockText joins the markdown of section blocks
func blockText(blocks []slack.Block) string {
	var b strings.Builder
	for _, block := range blocks {
		if s, ok := block.(*slack.SectionBlock); ok && s.Text != nil {
			b.WriteString(s.Text.Text)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// lastModalText returns the markdown of the last updated view
func (m *mockChat) lastModalText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.modalUpdate) == 0 {
		return ""
	}
	var b strings.Builder
	for _, block := range m.modalUpdate[len(m.modalUpdate)-1].Blocks.BlockSet {
		if s, ok := block.(*slack.SectionBlock); ok && s.Text != nil {
			b.WriteString(s.Text.Text)
		}
	}
	return b.String()
}

// mockTicket is a ticket provider recording created tickets
type mockTicket struct {
	log *callLog
}

var _ interfaces.TicketProvider = (*mockTicket)(nil)

func (m *mockTicket) Slug() string             { return "github-ticket" }
func (m *mockTicket) Type() types.ProviderType { return types.ProviderTypeTicket }

func (m *mockTicket) Create(ctx context.Context, req model.TicketRequest) (*model.Resource, error) {
	m.log.add("ticket.create:" + req.Name)
	return &model.Resource{ResourceID: "T-" + req.Name, Weblink: "https://tickets.example.com/" + req.Name}, nil
}

func (m *mockTicket) Update(ctx context.Context, ticketID string, upd model.TicketUpdate) error {
	m.log.add("ticket.update:" + ticketID)
	return nil
}

func (m *mockTicket) Delete(ctx context.Context, ticketID string) error {
	m.log.add("ticket.delete:" + ticketID)
	return nil
}

// mockAI is an AI provider counting its calls
type mockAI struct {
	model string

	chatParseFn      func(ctx context.Context, prompt string, schema *gollem.Parameter, system string, out any) error
	chatCompletionFn func(ctx context.Context, prompt, system string) (string, error)

	mu      sync.Mutex
	calls   int
	prompts []string
}

var _ interfaces.AIProvider = (*mockAI)(nil)

func (m *mockAI) Slug() string             { return "llm" }
func (m *mockAI) Type() types.ProviderType { return types.ProviderTypeAI }
func (m *mockAI) Model() string            { return m.model }

func (m *mockAI) record(prompt string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
}

func (m *mockAI) ChatCompletion(ctx context.Context, prompt, system string) (string, error) {
	m.record(prompt)
	if m.chatCompletionFn != nil {
		return m.chatCompletionFn(ctx, prompt, system)
	}
	return "summary", nil
}

func (m *mockAI) ChatParse(ctx context.Context, prompt string, schema *gollem.Parameter, system string, out any) error {
	m.record(prompt)
	if m.chatParseFn != nil {
		return m.chatParseFn(ctx, prompt, schema, system, out)
	}
	return json.Unmarshal([]byte(`{}`), out)
}

func (m *mockAI) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockRegistry serves one provider per type for every project
type mockRegistry struct {
	providers map[types.ProviderType]interfaces.Provider
}

func (r *mockRegistry) Active(ctx context.Context, org string, projectID int64, t types.ProviderType) (interfaces.Provider, error) {
	p, ok := r.providers[t]
	if !ok {
		return nil, nil
	}
	return p, nil
}

func (r *mockRegistry) AllEnabled(ctx context.Context, org string, projectID int64, t types.ProviderType) ([]interfaces.Provider, error) {
	p, ok := r.providers[t]
	if !ok {
		return nil, nil
	}
	return []interfaces.Provider{p}, nil
}

func (r *mockRegistry) Invalidate(org string, projectID int64) {}

// fixture is an organization with one default project and its incident and
// case catalogs
type fixture struct {
	ctx      context.Context
	repo     *memory.Memory
	log      *callLog
	chat     *mockChat
	registry *mockRegistry
	uc       *usecase.UseCases
	now      time.Time

	project *model.Project

	security *model.IncidentType
	high     *model.IncidentSeverity
	p1       *model.IncidentPriority
	p2       *model.IncidentPriority
	caseType *model.CaseType
}

func newFixture(t *testing.T, opts ...usecase.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()
	log := &callLog{}
	chat := newMockChat(log)
	registry := &mockRegistry{providers: map[types.ProviderType]interfaces.Provider{
		types.ProviderTypeChat: chat,
	}}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	org, err := repo.Organization().Create(ctx, &model.Organization{Slug: testOrg, Name: "Default", Default: true})
	gt.NoError(t, err).Required()
	orgs := model.NewOrganizationRegistry()
	orgs.Register(org)

	f := &fixture{ctx: ctx, repo: repo, log: log, chat: chat, registry: registry, now: now}
	f.project, err = repo.Project().Create(ctx, testOrg, &model.Project{Name: "default", Default: true})
	gt.NoError(t, err).Required()

	base := func(name string, def bool) model.CatalogBase {
		return model.CatalogBase{ProjectID: f.project.ID, Name: name, Default: def, Enabled: true}
	}
	f.security, err = repo.IncidentType().Create(ctx, testOrg, &model.IncidentType{CatalogBase: base("Security", true)})
	gt.NoError(t, err).Required()
	_, err = repo.IncidentSeverity().Create(ctx, testOrg, &model.IncidentSeverity{CatalogBase: base("Low", true)})
	gt.NoError(t, err).Required()
	f.high, err = repo.IncidentSeverity().Create(ctx, testOrg, &model.IncidentSeverity{CatalogBase: base("High", false)})
	gt.NoError(t, err).Required()
	f.p1, err = repo.IncidentPriority().Create(ctx, testOrg, &model.IncidentPriority{CatalogBase: base("P1", false), TacticalReportReminder: 2})
	gt.NoError(t, err).Required()
	f.p2, err = repo.IncidentPriority().Create(ctx, testOrg, &model.IncidentPriority{CatalogBase: base("P2", true)})
	gt.NoError(t, err).Required()
	f.caseType, err = repo.CaseType().Create(ctx, testOrg, &model.CaseType{CatalogBase: base("Phishing", true), DedicatedChannel: true})
	gt.NoError(t, err).Required()
	_, err = repo.CaseSeverity().Create(ctx, testOrg, &model.CaseSeverity{CatalogBase: base("Low", true)})
	gt.NoError(t, err).Required()
	_, err = repo.CasePriority().Create(ctx, testOrg, &model.CasePriority{CatalogBase: base("Medium", true)})
	gt.NoError(t, err).Required()

	opts = append([]usecase.Option{
		usecase.WithInlineTasks(),
		usecase.WithClock(func() time.Time { return f.now }),
	}, opts...)
	f.uc = usecase.New(repo, registry, orgs, opts...)
	return f
}

// incident stores an active incident with a dedicated conversation
func (f *fixture) incident(t *testing.T, name, channelID string) *model.Incident {
	t.Helper()
	inc, err := f.repo.Incident().Create(f.ctx, testOrg, &model.Incident{
		ProjectID:  f.project.ID,
		Name:       name,
		Title:      "Leaked credentials",
		Status:     types.IncidentStatusActive,
		TypeID:     f.security.ID,
		PriorityID: f.p2.ID,
		ReportedAt: f.now,
		CreatedAt:  f.now,
	})
	gt.NoError(t, err).Required()
	if channelID != "" {
		f.conversation(t, inc.Ref(), channelID)
	}
	return inc
}

// newCase stores a case of the default case type in status
func (f *fixture) newCase(t *testing.T, name string, status types.CaseStatus) *model.Case {
	t.Helper()
	c, err := f.repo.Case().Create(f.ctx, testOrg, &model.Case{
		ProjectID:  f.project.ID,
		Name:       name,
		Title:      "Suspicious login",
		Status:     status,
		TypeID:     f.caseType.ID,
		ReportedAt: f.now,
		CreatedAt:  f.now,
	})
	gt.NoError(t, err).Required()
	return c
}

func (f *fixture) conversation(t *testing.T, ref model.SubjectRef, channelID string) {
	t.Helper()
	_, err := f.repo.Resource().Put(f.ctx, testOrg, &model.Resource{
		Subject:    ref,
		Type:       types.ResourceTypeConversation,
		ResourceID: channelID,
		ChannelID:  channelID,
		CreatedAt:  f.now,
	})
	gt.NoError(t, err).Required()
}

// participant stores email on the subject with one active role
func (f *fixture) participant(t *testing.T, ref model.SubjectRef, email string, role types.ParticipantRole, activity int) *model.Participant {
	t.Helper()
	p, err := f.repo.Participant().Create(f.ctx, testOrg, &model.Participant{
		Subject: ref,
		Email:   email,
		Roles: []*model.ParticipantRole{
			{Role: role, AssumedAt: f.now.Add(-time.Hour), Activity: activity},
		},
	})
	gt.NoError(t, err).Required()
	return p
}

func (f *fixture) events(t *testing.T, ref model.SubjectRef, evType types.EventType) []*model.Event {
	t.Helper()
	events, err := f.uc.Timeline(f.ctx, testOrg, ref)
	gt.NoError(t, err).Required()
	var out []*model.Event
	for _, e := range events {
		if e.Type == evType {
			out = append(out, e)
		}
	}
	return out
}

// selected builds the state of a static select input
func selected(value string) map[string]slack.BlockAction {
	return map[string]slack.BlockAction{
		"select": {SelectedOption: slack.OptionBlockObject{Value: value, Text: &slack.TextBlockObject{Type: slack.PlainTextType, Text: value}}},
	}
}

func textInput(value string) map[string]slack.BlockAction {
	return map[string]slack.BlockAction{
		"input": {Value: value},
	}
}

// viewSubmission builds a view_submission callback of userID
func viewSubmission(callbackID, userID, metadata string, values map[string]map[string]slack.BlockAction) *slack.InteractionCallback {
	return &slack.InteractionCallback{
		Type: slack.InteractionTypeViewSubmission,
		User: slack.User{ID: userID},
		View: slack.View{
			ID:              "V-1",
			CallbackID:      callbackID,
			PrivateMetadata: metadata,
			Title:           &slack.TextBlockObject{Type: slack.PlainTextType, Text: "Dispatch"},
			State:           &slack.ViewState{Values: values},
		},
	}
}
