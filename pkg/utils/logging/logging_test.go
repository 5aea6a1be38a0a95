package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

type credential struct {
	User          string
	SigningSecret string
	BotToken      string `masq:"secret"`
}

func TestNewRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, logging.FormatJSON, slog.LevelInfo)
	logger.Info("configured", "cred", credential{User: "bot", SigningSecret: "s3cr3t", BotToken: "xoxb-123"})

	out := buf.String()
	gt.String(t, out).Contains("bot")
	gt.Bool(t, bytes.Contains(buf.Bytes(), []byte("s3cr3t"))).False()
	gt.Bool(t, bytes.Contains(buf.Bytes(), []byte("xoxb-123"))).False()
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, logging.FormatJSON, slog.LevelDebug)

	ctx := logging.With(context.Background(), logger)
	ctx = logging.WithAttrs(ctx, "request_id", "req-1")
	logging.From(ctx).Debug("hello")

	gt.String(t, buf.String()).Contains("req-1")
	gt.Value(t, logging.From(context.Background())).Equal(logging.Default())
}

func TestParseLevel(t *testing.T) {
	lvl, ok := logging.ParseLevel("warn")
	gt.Bool(t, ok).True()
	gt.Value(t, lvl).Equal(slog.LevelWarn)

	_, ok = logging.ParseLevel("verbose")
	gt.Bool(t, ok).False()
}
