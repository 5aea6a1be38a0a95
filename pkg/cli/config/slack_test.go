package config_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/cli/config"
)

func TestSlackIsWebhookConfigured(t *testing.T) {
	gt.Bool(t, config.NewSlackForTest("").IsWebhookConfigured()).False()

	slack := config.NewSlackForTest("s3cret")
	gt.Bool(t, slack.IsWebhookConfigured()).True()
	gt.Value(t, slack.SigningSecret()).Equal("s3cret")
}
