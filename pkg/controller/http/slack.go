package http

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/usecase"
	"github.com/Netflix/dispatch-sub000/pkg/utils/async"
	"github.com/Netflix/dispatch-sub000/pkg/utils/errutil"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// slackTimestampWindow is the accepted distance between a request timestamp
// and the server clock
const slackTimestampWindow = 5 * time.Minute

// verifySlackSignature verifies the Slack request signature
func verifySlackSignature(signingSecret, timestamp, signature string, body []byte, now time.Time) error {
	if timestamp == "" {
		return goerr.New("missing timestamp")
	}
	if signature == "" {
		return goerr.New("missing signature")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return goerr.Wrap(err, "invalid timestamp")
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew > slackTimestampWindow || skew < -slackTimestampWindow {
		return goerr.New("timestamp out of window", goerr.V("timestamp", timestamp), goerr.V("now", now.Unix()))
	}

	baseString := fmt.Sprintf("v0:%s:%s", timestamp, body)
	mac := hmac.New(sha256.New, []byte(signingSecret))
	if _, err := mac.Write([]byte(baseString)); err != nil {
		return goerr.Wrap(err, "failed to compute HMAC")
	}
	expectedSignature := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expectedSignature), []byte(signature)) {
		return goerr.New("signature mismatch")
	}
	return nil
}

// SlackSignatureMiddleware rejects requests without a valid Slack signature.
// The body is restored for the next handler.
func SlackSignatureMiddleware(signingSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			body, err := io.ReadAll(r.Body)
			if err != nil {
				errutil.HandleHTTP(ctx, w, goerr.Wrap(model.ErrInvalidInput, "failed to read request body", goerr.V("error", err.Error())))
				return
			}
			defer func() {
				if err := r.Body.Close(); err != nil {
					logging.From(ctx).Error("failed to close request body", "error", err)
				}
			}()

			timestamp := r.Header.Get("X-Slack-Request-Timestamp")
			signature := r.Header.Get("X-Slack-Signature")
			if err := verifySlackSignature(signingSecret, timestamp, signature, body, time.Now()); err != nil {
				logging.From(ctx).Warn("slack signature verification failed", "error", err.Error())
				writeJSON(w, r, http.StatusUnauthorized, errutil.ErrorBody{Message: "invalid signature"})
				return
			}

			r.Body = io.NopCloser(bytes.NewBuffer(body))
			next.ServeHTTP(w, r)
		})
	}
}

// slackEventHandler answers URL verification challenges and acknowledges
// callback events before processing them in the background
func slackEventHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(model.ErrInvalidInput, "failed to read request body"))
			return
		}

		ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
		if err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(model.ErrInvalidInput, "failed to parse slack event", goerr.V("error", err.Error())))
			return
		}

		switch ev.Type {
		case slackevents.URLVerification:
			var challenge slackevents.ChallengeResponse
			if err := json.Unmarshal(body, &challenge); err != nil {
				errutil.HandleHTTP(ctx, w, goerr.Wrap(model.ErrInvalidInput, "failed to unmarshal challenge"))
				return
			}
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte(challenge.Challenge)); err != nil {
				logging.From(ctx).Error("failed to write challenge response", "error", err)
			}

		case slackevents.CallbackEvent:
			w.WriteHeader(http.StatusOK)
			async.Dispatch(ctx, func(ctx context.Context) error {
				logging.From(ctx).Debug("processing slack callback event",
					"type", ev.InnerEvent.Type,
					"team_id", ev.TeamID,
				)
				return uc.HandleEvent(ctx, &ev)
			})

		default:
			logging.From(ctx).Warn("unknown slack event type", "type", ev.Type)
			w.WriteHeader(http.StatusOK)
		}
	}
}

// slackCommandHandler acknowledges a slash command with an empty body and
// runs it in the background. Results reach the user as ephemeral messages or
// modals.
func slackCommandHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		cmd, err := slack.SlashCommandParse(r)
		if err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(model.ErrInvalidInput, "failed to parse slash command", goerr.V("error", err.Error())))
			return
		}

		w.WriteHeader(http.StatusOK)
		async.Dispatch(ctx, func(ctx context.Context) error {
			uc.HandleCommand(ctx, usecase.SlashCommand{
				Command:     cmd.Command,
				Text:        cmd.Text,
				ChannelID:   cmd.ChannelID,
				UserID:      cmd.UserID,
				TriggerID:   cmd.TriggerID,
				ResponseURL: cmd.ResponseURL,
			})
			return nil
		})
	}
}

// slackActionHandler handles interactive payloads. View submissions are
// answered with the response action of the dispatcher; block actions are
// acknowledged and processed in the background.
func slackActionHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		// Slack sends interaction payloads as application/x-www-form-urlencoded
		// with a "payload" field containing JSON
		payload := r.FormValue("payload")
		if payload == "" {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(model.ErrInvalidInput, "missing payload field in interaction request"))
			return
		}

		var cb slack.InteractionCallback
		if err := json.Unmarshal([]byte(payload), &cb); err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(model.ErrInvalidInput, "failed to parse interaction payload", goerr.V("error", err.Error())))
			return
		}

		switch cb.Type {
		case slack.InteractionTypeViewSubmission:
			resp := uc.HandleInteraction(ctx, &cb)
			if resp == nil {
				w.WriteHeader(http.StatusOK)
				return
			}
			writeJSON(w, r, http.StatusOK, resp)

		case slack.InteractionTypeBlockActions:
			w.WriteHeader(http.StatusOK)
			async.Dispatch(ctx, func(ctx context.Context) error {
				uc.HandleInteraction(ctx, &cb)
				return nil
			})

		default:
			logging.From(ctx).Debug("ignored interaction type", "type", cb.Type)
			w.WriteHeader(http.StatusOK)
		}
	}
}
