package google

import (
	"context"
	"encoding/base64"
	"mime"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// EmailPluginSlug is the plugin name of the Gmail email provider
const EmailPluginSlug = "gmail-email"

// EmailProvider sends HTML mail as the delegated user
type EmailProvider struct {
	svc  *gmail.Service
	conf Config
}

var _ interfaces.EmailProvider = (*EmailProvider)(nil)

// NewEmailProvider creates the email provider
func NewEmailProvider(ctx context.Context, conf Config, opts ...option.ClientOption) (*EmailProvider, error) {
	clientOpts, err := clientOptions(ctx, conf, []string{gmail.GmailSendScope}, opts)
	if err != nil {
		return nil, err
	}
	svc, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gmail client")
	}
	return &EmailProvider{svc: svc, conf: conf}, nil
}

func (p *EmailProvider) Slug() string             { return EmailPluginSlug }
func (p *EmailProvider) Type() types.ProviderType { return types.ProviderTypeEmail }

// BuildMessage renders an RFC 5322 HTML message
func BuildMessage(from string, to []string, subject, html string) string {
	var sb strings.Builder
	if from != "" {
		sb.WriteString("From: " + from + "\r\n")
	}
	sb.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	sb.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	sb.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	sb.WriteString(base64.StdEncoding.EncodeToString([]byte(html)))
	return sb.String()
}

// Send delivers the message to all recipients
func (p *EmailProvider) Send(ctx context.Context, to []string, subject, html string) error {
	if len(to) == 0 {
		return nil
	}
	raw := BuildMessage(p.conf.Subject, to, subject, html)
	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString([]byte(raw))}

	if _, err := p.svc.Users.Messages.Send("me", msg).Context(ctx).Do(); err != nil {
		return goerr.Wrap(classify(EmailPluginSlug, err), "failed to send email",
			goerr.V("to", to), goerr.V("subject", subject))
	}
	return nil
}
