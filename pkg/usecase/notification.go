package usecase

import (
	"bytes"
	"context"
	"html"
	"maps"
	"strings"
	"sync/atomic"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
	"golang.org/x/sync/errgroup"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// notificationFanout bounds concurrent deliveries of one notification round
const notificationFanout = 8

// NotificationMessage is rendered once per matching notification. Template
// is a text/template evaluated with the subject attributes merged with
// Data.
type NotificationMessage struct {
	Title    string
	Template string
	Blocks   []slack.Block
	// Actions are rendered as buttons under the text when Blocks is empty
	Actions  []slack.BlockElement
	Data     map[string]any
}

func renderTemplate(text string, data map[string]any) (string, error) {
	tmpl, err := template.New("notification").Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", goerr.Wrap(err, "failed to parse notification template")
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render notification template")
	}
	return buf.String(), nil
}

// FilterAndSend delivers msg to every enabled notification of the subject's
// project whose filter matches the subject. Restricted subjects only reach
// restricted notifications. Delivery failures are logged; the number of
// successful deliveries is returned.
func (uc *UseCases) FilterAndSend(ctx context.Context, org string, s model.Subject, msg NotificationMessage) (int, error) {
	notifications, err := uc.repo.Notification().List(ctx, org, s.GetProjectID())
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list notifications", goerr.V(model.ProjectIDKey, s.GetProjectID()))
	}

	attrs := uc.subjectAttributes(ctx, org, s)
	data := maps.Clone(attrs)
	maps.Copy(data, msg.Data)
	text, err := renderTemplate(msg.Template, data)
	if err != nil {
		return 0, err
	}
	blocks := msg.Blocks
	if len(blocks) == 0 && len(msg.Actions) > 0 {
		blocks = []slack.Block{markdownSection(text), slack.NewActionBlock("", msg.Actions...)}
	}

	var (
		chat  interfaces.ChatProvider
		email interfaces.EmailProvider
	)
	var sent atomic.Int64
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(notificationFanout)

	for _, n := range notifications {
		if !n.Enabled {
			continue
		}
		if n.SubjectKind != "" && n.SubjectKind != s.Ref().Kind {
			continue
		}
		if s.IsRestricted() && !n.Restricted {
			continue
		}
		if !n.Filter.Match(attrs) {
			continue
		}

		switch n.Type {
		case types.NotificationTargetConversation:
			if chat == nil {
				if chat, err = uc.chat(ctx, org, s.GetProjectID()); err != nil || chat == nil {
					logging.From(ctx).Warn("no chat provider for notification", "notification", n.Name, "error", err)
					continue
				}
			}
			for _, target := range n.Targets {
				eg.Go(func() error {
					if err := uc.call(ctx, chat, "send_message", func() error {
						_, err := chat.SendMessage(ctx, target, text, blocks, model.ChatMessageOptions{})
						return err
					}); err != nil {
						logging.From(ctx).Warn("failed to send notification", "notification", n.Name, "target", target, "error", err)
						return nil
					}
					sent.Add(1)
					return nil
				})
			}

		case types.NotificationTargetEmail:
			if email == nil {
				if email, err = active[interfaces.EmailProvider](ctx, uc, org, s.GetProjectID(), types.ProviderTypeEmail); err != nil || email == nil {
					logging.From(ctx).Warn("no email provider for notification", "notification", n.Name, "error", err)
					continue
				}
			}
			body := "<p>" + strings.ReplaceAll(html.EscapeString(text), "\n", "<br>") + "</p>"
			if link := uc.subjectURL(org, s); link != "" {
				body += `<p><a href="` + html.EscapeString(link) + `">` + html.EscapeString(s.GetName()) + `</a></p>`
			}
			title := msg.Title
			if title == "" {
				title = s.GetName() + ": " + s.GetTitle()
			}
			targets := n.Targets
			eg.Go(func() error {
				if err := uc.call(ctx, email, "send", func() error {
					return email.Send(ctx, targets, title, body)
				}); err != nil {
					logging.From(ctx).Warn("failed to send notification email", "notification", n.Name, "error", err)
					return nil
				}
				sent.Add(int64(len(targets)))
				return nil
			})
		}
	}
	_ = eg.Wait()
	return int(sent.Load()), nil
}

// notifySubject sends the standard notification of a subject event
func (uc *UseCases) notifySubject(ctx context.Context, org string, s model.Subject, event string) {
	tmpl := "*{{.name}}* {{.title}}\nStatus: {{.status}}"
	switch event {
	case "created":
		tmpl = "New {{.kind}} *{{.name}}*: {{.title}}\n{{.description}}"
	case "status_changed":
		tmpl = "*{{.name}}* is now {{.status}}: {{.title}}"
	}
	msg := NotificationMessage{
		Template: tmpl,
		Data:     map[string]any{"event": event, "url": uc.subjectURL(org, s)},
	}
	if s.Ref().Kind == types.SubjectKindIncident && !s.IsClosed() {
		value := encodeActionValue(org, s.Ref())
		msg.Actions = []slack.BlockElement{
			slack.NewButtonBlockElement(ActionJoinIncident, value, plainText("Join")),
			slack.NewButtonBlockElement(ActionSubscribeUser, value, plainText("Subscribe")),
		}
	}
	if _, err := uc.FilterAndSend(ctx, org, s, msg); err != nil {
		logging.From(ctx).Warn("failed to send notifications", "event", event, "error", err)
	}
}
