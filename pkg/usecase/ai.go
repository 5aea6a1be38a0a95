package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/service/llm"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// Built-in prompts used when neither the signal nor the project overrides them
const (
	defaultReadInPrompt = `You are helping a responder who just joined an ongoing response.
Read the conversation transcript below and produce a timeline of key events,
the actions taken so far, the current status and a short summary.
Messages marked [important] were flagged by the responders.

Transcript:
`
	defaultReadInSystem = "You are an experienced incident responder writing concise, factual briefings."

	defaultSignalAnalysisPrompt = `Analyze the alert below. Decide whether it is a true positive,
summarize what it is about, relate it to how similar past cases were resolved
and recommend the next step.
`
	defaultSignalAnalysisSystem = "You are a security analyst triaging detections."

	defaultTagPrompt = `Suggest tags for the subject below. Only use tag names from the
list of available tags, grouped by their tag type.
`
	defaultTagSystem = "You classify incidents and cases with an existing taxonomy."

	defaultTacticalPrompt = `Draft a tactical report for the incident below from its conversation.
Describe the current conditions, the actions being taken and what the
responders need.
`
	defaultTacticalSystem = "You are an incident commander writing tactical status updates."

	defaultIncidentSummaryPrompt = `Summarize the incident below for stakeholders in a few
paragraphs: what happened, the impact, and how it was resolved.
`
	defaultIncidentSummarySystem = "You write clear incident summaries for a non-technical audience."
)

var defaultPrompts = map[types.GenAIType][2]string{
	types.GenAITypeConversationSummary:   {defaultReadInPrompt, defaultReadInSystem},
	types.GenAITypeSignalAnalysis:        {defaultSignalAnalysisPrompt, defaultSignalAnalysisSystem},
	types.GenAITypeTagRecommendation:     {defaultTagPrompt, defaultTagSystem},
	types.GenAITypeTacticalReportSummary: {defaultTacticalPrompt, defaultTacticalSystem},
	types.GenAITypeIncidentSummary:       {defaultIncidentSummaryPrompt, defaultIncidentSummarySystem},
}

// resolvePrompt picks the prompt and system message with precedence signal
// override, then the enabled project prompt, then the built-in default. Each
// of the two is resolved independently.
func (uc *UseCases) resolvePrompt(ctx context.Context, org string, projectID int64, t types.GenAIType, signal *model.Signal) (string, string) {
	defaults := defaultPrompts[t]
	prompt, system := defaults[0], defaults[1]

	if stored, err := uc.repo.Prompt().GetEnabled(ctx, org, projectID, t); err != nil {
		logging.From(ctx).Warn("failed to load prompt override", "genai_type", t, "error", err)
	} else if stored != nil {
		if stored.Prompt != "" {
			prompt = stored.Prompt
		}
		if stored.SystemMessage != "" {
			system = stored.SystemMessage
		}
	}

	if signal != nil {
		if signal.GenAIPrompt != "" {
			prompt = signal.GenAIPrompt
		}
		if signal.GenAISystemMessage != "" {
			system = signal.GenAISystemMessage
		}
	}
	return prompt, system
}

// preparePrompt truncates prompt to the token budget of the model
func (uc *UseCases) preparePrompt(ctx context.Context, modelName, prompt string) string {
	tok, err := uc.tokenizer(modelName)
	if err != nil {
		logging.From(ctx).Warn("tokenizer unavailable, sending prompt as is", "model", modelName, "error", err)
		return prompt
	}
	return llm.TruncatePrompt(ctx, tok, modelName, prompt)
}

func (uc *UseCases) ai(ctx context.Context, org string, projectID int64) (interfaces.AIProvider, error) {
	p, err := active[interfaces.AIProvider](ctx, uc, org, projectID, types.ProviderTypeAI)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, goerr.Wrap(model.ErrNotFound, "no AI provider configured", goerr.V(model.ProjectIDKey, projectID))
	}
	return p, nil
}

// transcript renders the subject conversation oldest first
func (uc *UseCases) transcript(ctx context.Context, org string, s model.Subject) (string, error) {
	bundle, err := uc.bundle(ctx, org, s.Ref())
	if err != nil {
		return "", err
	}
	if bundle.ChannelID() == "" {
		return "", goerr.Wrap(model.ErrNotFound, "subject has no conversation", goerr.V(model.SubjectKey, s.Ref().String()))
	}
	chat, err := uc.chat(ctx, org, s.GetProjectID())
	if err != nil {
		return "", err
	}
	if chat == nil {
		return "", goerr.Wrap(model.ErrNotFound, "no chat provider configured")
	}
	conf, err := uc.chatConfig(ctx, org, s.GetProjectID())
	if err != nil {
		return "", err
	}

	messages, err := callValue(ctx, uc, chat, "fetch_transcript", func() ([]*model.ChatMessage, error) {
		return chat.FetchTranscript(ctx, bundle.ChannelID(), bundle.ThreadID())
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to fetch transcript", goerr.V(model.ChannelIDKey, bundle.ChannelID()))
	}

	var b strings.Builder
	for _, m := range messages {
		name := m.UserName
		if name == "" {
			name = m.UserID
		}
		if m.UserEmail != "" {
			name += " <" + m.UserEmail + ">"
		}
		marker := ""
		if conf.ImportantReaction != "" && m.HasReaction(conf.ImportantReaction) {
			marker = "[important] "
		}
		fmt.Fprintf(&b, "%s %s: %s%s\n", m.Timestamp.UTC().Format("2006-01-02 15:04:05"), name, marker, m.Text)
	}
	return b.String(), nil
}

func (uc *UseCases) subjectSignal(ctx context.Context, org string, s model.Subject) *model.Signal {
	c, ok := s.(*model.Case)
	if !ok || c.SignalID == 0 {
		return nil
	}
	signal, err := uc.repo.Signal().Get(ctx, org, c.SignalID)
	if err != nil {
		return nil
	}
	return signal
}

// GenerateReadInSummary returns the read-in summary of the subject. A
// summary generated within the cache duration is reused without calling the
// AI provider.
func (uc *UseCases) GenerateReadInSummary(ctx context.Context, org string, ref model.SubjectRef) (*model.ReadInSummary, error) {
	s, err := uc.Subject(ctx, org, ref)
	if err != nil {
		return nil, err
	}

	since := uc.now().Add(-uc.readInCacheDuration)
	cached, err := uc.repo.Event().FindLatestByKind(ctx, org, ref, model.EventKindReadInSummary, since)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to look up cached summary", goerr.V(model.SubjectKey, ref.String()))
	}
	if cached != nil {
		var summary model.ReadInSummary
		if err := model.FromDetails(cached.Details, &summary); err == nil {
			logging.From(ctx).Debug("read-in summary served from cache", "subject", ref.String(), "event_id", cached.ID)
			return &summary, nil
		}
	}

	ai, err := uc.ai(ctx, org, s.GetProjectID())
	if err != nil {
		return nil, err
	}
	text, err := uc.transcript(ctx, org, s)
	if err != nil {
		return nil, err
	}

	prompt, system := uc.resolvePrompt(ctx, org, s.GetProjectID(), types.GenAITypeConversationSummary, uc.subjectSignal(ctx, org, s))
	prompt = uc.preparePrompt(ctx, ai.Model(), prompt+text)

	var summary model.ReadInSummary
	if err := uc.call(ctx, ai, "chat_parse", func() error {
		return ai.ChatParse(ctx, prompt, llm.ReadInSummarySchema(), system, &summary)
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to generate read-in summary", goerr.V(model.SubjectKey, ref.String()))
	}

	details, err := model.ToDetails(summary)
	if err != nil {
		return nil, err
	}
	details["kind"] = model.EventKindReadInSummary
	uc.logEvent(ctx, org, EventInput{
		Subject:     ref,
		Source:      SourceAI,
		Description: "Read-in summary generated",
		Details:     details,
	})
	return &summary, nil
}

// historicalContext describes previous cases of the same signal grouped by
// their resolution reason
func (uc *UseCases) historicalContext(ctx context.Context, org string, c *model.Case) string {
	if c.SignalID == 0 {
		return ""
	}
	related, err := uc.repo.Case().List(ctx, org, model.CaseQuery{
		ProjectID: c.ProjectID,
		SignalID:  c.SignalID,
		Statuses:  []types.CaseStatus{types.CaseStatusClosed},
		Limit:     20,
	})
	if err != nil {
		logging.From(ctx).Warn("failed to list related cases", "error", err)
		return ""
	}

	groups := map[string][]*model.Case{}
	var reasons []string
	for _, r := range related {
		if r.ID == c.ID {
			continue
		}
		reason := r.ResolutionReason
		if reason == "" {
			reason = "Unspecified"
		}
		if _, ok := groups[reason]; !ok {
			reasons = append(reasons, reason)
		}
		groups[reason] = append(groups[reason], r)
	}

	var b strings.Builder
	for _, reason := range reasons {
		fmt.Fprintf(&b, "Resolution reason: %s\n", reason)
		for _, r := range groups[reason] {
			fmt.Fprintf(&b, "- %s: %s. Resolution: %s\n", r.Name, r.Title, r.Resolution)
			if replies, err := uc.transcript(ctx, org, r); err == nil && replies != "" {
				b.WriteString(replies)
			}
		}
	}
	return b.String()
}

// GenerateSignalAnalysis analyzes the signal instances of a case and posts
// the result to the case conversation
func (uc *UseCases) GenerateSignalAnalysis(ctx context.Context, org string, caseID int64) (*model.SignalAnalysis, error) {
	c, err := uc.getCase(ctx, org, caseID)
	if err != nil {
		return nil, err
	}
	signal := uc.subjectSignal(ctx, org, c)
	if signal == nil {
		return nil, goerr.Wrap(model.ErrInvalidInput, "case was not created by a signal", goerr.V(model.CaseIDKey, caseID))
	}
	ai, err := uc.ai(ctx, org, c.ProjectID)
	if err != nil {
		return nil, err
	}

	instances, err := uc.repo.SignalInstance().List(ctx, org, model.SignalInstanceQuery{SignalID: signal.ID, Limit: 50})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list signal instances")
	}
	var b strings.Builder
	prompt, system := uc.resolvePrompt(ctx, org, c.ProjectID, types.GenAITypeSignalAnalysis, signal)
	b.WriteString(prompt)
	fmt.Fprintf(&b, "\nSignal: %s\n%s\n\nAlert payloads:\n", signal.Name, signal.Description)
	for _, inst := range instances {
		if inst.CaseID == c.ID {
			b.Write(inst.Raw)
			b.WriteByte('\n')
		}
	}
	if history := uc.historicalContext(ctx, org, c); history != "" {
		b.WriteString("\nPrevious cases of this signal:\n")
		b.WriteString(history)
	}

	modelName := ai.Model()
	if signal.GenAIModel != "" {
		modelName = signal.GenAIModel
	}
	full := uc.preparePrompt(ctx, modelName, b.String())

	var analysis model.SignalAnalysis
	if err := uc.call(ctx, ai, "chat_parse", func() error {
		return ai.ChatParse(ctx, full, llm.SignalAnalysisSchema(), system, &analysis)
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to analyze signal", goerr.V(model.CaseIDKey, caseID))
	}

	details, err := model.ToDetails(analysis)
	if err != nil {
		return nil, err
	}
	details["kind"] = model.EventKindSignalAnalysis
	uc.logEvent(ctx, org, EventInput{
		Subject:     c.Ref(),
		Source:      SourceAI,
		Description: "Signal analysis generated",
		Details:     details,
	})

	if bundle, err := uc.bundle(ctx, org, c.Ref()); err == nil && bundle.ChannelID() != "" {
		if chat, err := uc.chat(ctx, org, c.ProjectID); err == nil && chat != nil {
			text := fmt.Sprintf("*AI analysis*\n%s\n\n*Critical analysis*\n%s\n\n*Recommendation*\n%s",
				analysis.Summary, analysis.CriticalAnalysis, analysis.Recommendation)
			uc.sendMessage(ctx, chat, bundle.ChannelID(), bundle.ThreadID(), text, nil)
		}
	}
	return &analysis, nil
}

// RecommendTags asks the AI provider for tags of the AI eligible tag types.
// Files of the subject storage folder are added as context.
func (uc *UseCases) RecommendTags(ctx context.Context, org string, ref model.SubjectRef) (*model.TagRecommendations, error) {
	s, err := uc.Subject(ctx, org, ref)
	if err != nil {
		return nil, err
	}
	ai, err := uc.ai(ctx, org, s.GetProjectID())
	if err != nil {
		return nil, err
	}

	tagTypes, err := uc.repo.TagType().List(ctx, org, s.GetProjectID())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list tag types")
	}
	tags, err := uc.repo.Tag().List(ctx, org, s.GetProjectID())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list tags")
	}

	prompt, system := uc.resolvePrompt(ctx, org, s.GetProjectID(), types.GenAITypeTagRecommendation, uc.subjectSignal(ctx, org, s))
	var b strings.Builder
	b.WriteString(prompt)
	fmt.Fprintf(&b, "\nSubject: %s\nTitle: %s\nDescription: %s\n\nAvailable tags:\n", s.GetName(), s.GetTitle(), s.GetDescription())
	eligible := 0
	for _, tt := range tagTypes {
		if !tt.GenAISuggestions {
			continue
		}
		var names []string
		for _, t := range tags {
			if t.TagTypeID == tt.ID {
				names = append(names, t.Name)
			}
		}
		if len(names) == 0 {
			continue
		}
		eligible++
		fmt.Fprintf(&b, "%s: %s\n", tt.Name, strings.Join(names, ", "))
	}
	if eligible == 0 {
		return &model.TagRecommendations{}, nil
	}
	b.WriteString(uc.storageContext(ctx, org, s))

	full := uc.preparePrompt(ctx, ai.Model(), b.String())
	var out model.TagRecommendations
	if err := uc.call(ctx, ai, "chat_parse", func() error {
		return ai.ChatParse(ctx, full, llm.TagRecommendationsSchema(), system, &out)
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to recommend tags", goerr.V(model.SubjectKey, ref.String()))
	}
	return &out, nil
}

var storageContextMimeTypes = []string{"text/plain", "text/markdown", "application/json"}

func (uc *UseCases) storageContext(ctx context.Context, org string, s model.Subject) string {
	bundle, err := uc.bundle(ctx, org, s.Ref())
	if err != nil {
		return ""
	}
	folder := bundle.Get(types.ResourceTypeStorage)
	if folder == nil {
		return ""
	}
	storage, err := active[interfaces.StorageProvider](ctx, uc, org, s.GetProjectID(), types.ProviderTypeStorage)
	if err != nil || storage == nil {
		return ""
	}
	files, err := callValue(ctx, uc, storage, "fetch_files", func() ([]*model.StoredFile, error) {
		return storage.FetchFiles(ctx, folder.ResourceID, storageContextMimeTypes)
	})
	if err != nil {
		logging.From(ctx).Warn("failed to fetch storage files", "error", err)
		return ""
	}
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "\nDocument %s:\n%s\n", f.Name, f.Content)
	}
	return b.String()
}

// TacticalDraft is an AI drafted tactical report
type TacticalDraft struct {
	Conditions string `json:"conditions"`
	Actions    string `json:"actions"`
	Needs      string `json:"needs"`
}

// DraftTacticalReport drafts the tactical report of an incident from its
// conversation
func (uc *UseCases) DraftTacticalReport(ctx context.Context, org string, incidentID int64) (*TacticalDraft, error) {
	inc, err := uc.getIncident(ctx, org, incidentID)
	if err != nil {
		return nil, err
	}
	ai, err := uc.ai(ctx, org, inc.ProjectID)
	if err != nil {
		return nil, err
	}
	text, err := uc.transcript(ctx, org, inc)
	if err != nil {
		return nil, err
	}
	prompt, system := uc.resolvePrompt(ctx, org, inc.ProjectID, types.GenAITypeTacticalReportSummary, nil)
	full := uc.preparePrompt(ctx, ai.Model(),
		fmt.Sprintf("%s\nIncident: %s\nTitle: %s\nDescription: %s\n\nConversation:\n%s", prompt, inc.Name, inc.Title, inc.Description, text))

	var draft TacticalDraft
	if err := uc.call(ctx, ai, "chat_parse", func() error {
		return ai.ChatParse(ctx, full, llm.TacticalReportSchema(), system, &draft)
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to draft tactical report", goerr.V(model.IncidentIDKey, incidentID))
	}
	return &draft, nil
}

// GenerateIncidentSummary writes a stakeholder summary of the incident from
// its timeline and conversation and logs it as a pinned event
func (uc *UseCases) GenerateIncidentSummary(ctx context.Context, org string, incidentID int64) (string, error) {
	inc, err := uc.getIncident(ctx, org, incidentID)
	if err != nil {
		return "", err
	}
	ai, err := uc.ai(ctx, org, inc.ProjectID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	prompt, system := uc.resolvePrompt(ctx, org, inc.ProjectID, types.GenAITypeIncidentSummary, nil)
	b.WriteString(prompt)
	fmt.Fprintf(&b, "\nIncident: %s\nTitle: %s\nDescription: %s\nResolution: %s\n\nTimeline:\n", inc.Name, inc.Title, inc.Description, inc.Resolution)
	if events, err := uc.repo.Event().List(ctx, org, inc.Ref()); err == nil {
		for _, e := range events {
			fmt.Fprintf(&b, "%s %s\n", e.StartedAt.Format("2006-01-02 15:04"), e.Description)
		}
	}
	if text, err := uc.transcript(ctx, org, inc); err == nil {
		b.WriteString("\nConversation:\n")
		b.WriteString(text)
	}

	full := uc.preparePrompt(ctx, ai.Model(), b.String())
	summary, err := callValue(ctx, uc, ai, "chat_completion", func() (string, error) {
		return ai.ChatCompletion(ctx, full, system)
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to summarize incident", goerr.V(model.IncidentIDKey, incidentID))
	}
	uc.logEvent(ctx, org, EventInput{
		Subject:     inc.Ref(),
		Source:      SourceAI,
		Description: summary,
		Details:     map[string]any{"kind": "incident_summary_created"},
		Pinned:      true,
	})
	return summary, nil
}
