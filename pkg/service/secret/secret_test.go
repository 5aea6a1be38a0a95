package secret_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/service/secret"
)

func lookupFrom(vars map[string]string) secret.LookupFunc {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestResolveEnv(t *testing.T) {
	p := secret.NewEnv(lookupFrom(map[string]string{"SLACK_TOKEN": "xoxb-1", "PD_KEY": "pd"}))

	conf, err := secret.Resolve(context.Background(), p, map[string]any{
		"bot_token": "secret://SLACK_TOKEN",
		"team_id":   "T1",
		"nested":    map[string]any{"keys": []any{"secret://PD_KEY", 3}},
	})
	gt.NoError(t, err).Required()
	gt.Value(t, conf["bot_token"]).Equal("xoxb-1")
	gt.Value(t, conf["team_id"]).Equal("T1")
	gt.Value(t, conf["nested"].(map[string]any)["keys"]).Equal([]any{"pd", 3})

	t.Run("missing secret", func(t *testing.T) {
		_, err := secret.Resolve(context.Background(), p, map[string]any{"x": "secret://NOPE"})
		gt.Bool(t, errors.Is(err, model.ErrNotFound)).True()
	})
}

func TestEncrypted(t *testing.T) {
	const key = "correct horse battery staple"
	ct, err := secret.Encrypt(key, "signing-secret")
	gt.NoError(t, err).Required()

	p, err := secret.NewEncrypted(key, lookupFrom(map[string]string{"SIGNING": ct}))
	gt.NoError(t, err).Required()
	v, err := p.Get(context.Background(), "SIGNING")
	gt.NoError(t, err).Required()
	gt.Value(t, v).Equal("signing-secret")

	t.Run("wrong key fails", func(t *testing.T) {
		other, err := secret.NewEncrypted("another key", lookupFrom(map[string]string{"SIGNING": ct}))
		gt.NoError(t, err).Required()
		_, err = other.Get(context.Background(), "SIGNING")
		gt.Value(t, err).NotNil()
	})

	t.Run("key is required", func(t *testing.T) {
		_, err := secret.New(secret.ProviderEncrypted, "")
		gt.Value(t, err).NotNil()
	})
}
