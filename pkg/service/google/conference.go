package google

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// ConferencePluginSlug is the plugin name of the Google Meet conference provider
const ConferencePluginSlug = "google-calendar-conference"

// conferenceLength is the length of the calendar event holding the bridge
const conferenceLength = 8 * time.Hour

// ConferenceProvider creates Meet bridges attached to calendar events of the
// delegated user
type ConferenceProvider struct {
	svc  *calendar.Service
	conf Config
	now  func() time.Time
}

var _ interfaces.ConferenceProvider = (*ConferenceProvider)(nil)

// NewConferenceProvider creates the conference provider
func NewConferenceProvider(ctx context.Context, conf Config, opts ...option.ClientOption) (*ConferenceProvider, error) {
	clientOpts, err := clientOptions(ctx, conf, []string{calendar.CalendarEventsScope}, opts)
	if err != nil {
		return nil, err
	}
	svc, err := calendar.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create calendar client")
	}
	return &ConferenceProvider{svc: svc, conf: conf, now: time.Now}, nil
}

func (p *ConferenceProvider) Slug() string             { return ConferencePluginSlug }
func (p *ConferenceProvider) Type() types.ProviderType { return types.ProviderTypeConference }

// Create schedules an event starting now with a Meet bridge and invitees
func (p *ConferenceProvider) Create(ctx context.Context, name string, invitees []string) (*model.Resource, error) {
	start := p.now().UTC()
	attendees := make([]*calendar.EventAttendee, 0, len(invitees))
	for _, email := range invitees {
		attendees = append(attendees, &calendar.EventAttendee{Email: email})
	}

	event := &calendar.Event{
		Summary:   name,
		Start:     &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:       &calendar.EventDateTime{DateTime: start.Add(conferenceLength).Format(time.RFC3339)},
		Attendees: attendees,
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             uuid.NewString(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}

	created, err := p.svc.Events.Insert("primary", event).
		ConferenceDataVersion(1).
		SendUpdates("none").
		Context(ctx).
		Do()
	if err != nil {
		return nil, goerr.Wrap(classify(ConferencePluginSlug, err), "failed to create conference", goerr.V("name", name))
	}

	res := &model.Resource{
		Type:       types.ResourceTypeConference,
		ResourceID: created.Id,
		Weblink:    created.HangoutLink,
	}
	if cd := created.ConferenceData; cd != nil {
		res.ConferenceID = cd.ConferenceId
		for _, ep := range cd.EntryPoints {
			if ep.EntryPointType != "video" {
				continue
			}
			if res.Weblink == "" {
				res.Weblink = ep.Uri
			}
			res.Challenge = ep.MeetingCode
		}
	}
	return res, nil
}

// Delete removes the event; a missing event is not an error
func (p *ConferenceProvider) Delete(ctx context.Context, conferenceID string) error {
	err := p.svc.Events.Delete("primary", conferenceID).SendUpdates("none").Context(ctx).Do()
	if err != nil && statusCode(err) != http.StatusNotFound && statusCode(err) != http.StatusGone {
		return goerr.Wrap(classify(ConferencePluginSlug, err), "failed to delete conference", goerr.V("conferenceID", conferenceID))
	}
	return nil
}
