package usecase

import "context"

// ActiveHours is exported for testing
var ActiveHours = activeHours

// ResponseHours is exported for testing
var ResponseHours = responseHours

// CommandPipeline runs the dispatcher middlewares of cmd without its handler
func (uc *UseCases) CommandPipeline(ctx context.Context, cmd SlashCommand) error {
	rc := &RequestContext{
		Kind:      RequestKindCommand,
		Command:   cmd.Command,
		Text:      cmd.Text,
		ChannelID: cmd.ChannelID,
		UserID:    cmd.UserID,
		TriggerID: cmd.TriggerID,
	}
	_, err := uc.runPipeline(ctx, rc)
	return err
}
