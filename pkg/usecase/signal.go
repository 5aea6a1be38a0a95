package usecase

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/jsonpath"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// SignalInstanceInput is the body of an inbound signal emission
type SignalInstanceInput struct {
	SignalID  int64           `json:"signal_id"`
	Raw       json.RawMessage `json:"raw"`
	CreatedAt *time.Time      `json:"created_at,omitempty"`
}

// IngestSignal stores the instance and processes it in the background. The
// returned id identifies the instance before any case exists.
func (uc *UseCases) IngestSignal(ctx context.Context, org string, in SignalInstanceInput) (*model.SignalInstance, error) {
	if in.SignalID == 0 {
		return nil, model.NewValidationError("signal_id", "signal_id is required")
	}
	if len(in.Raw) == 0 || !json.Valid(in.Raw) {
		return nil, model.NewValidationError("raw", "raw must be a JSON document")
	}
	signal, err := uc.repo.Signal().Get(ctx, org, in.SignalID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get signal", goerr.V(model.SignalIDKey, in.SignalID))
	}
	if !signal.Enabled {
		return nil, model.NewValidationError("signal_id", "signal is disabled")
	}

	created := uc.now()
	if in.CreatedAt != nil && !in.CreatedAt.IsZero() {
		created = in.CreatedAt.UTC()
	}
	instance, err := uc.repo.SignalInstance().Create(ctx, org, &model.SignalInstance{
		ID:           uuid.NewString(),
		ProjectID:    signal.ProjectID,
		SignalID:     signal.ID,
		Raw:          in.Raw,
		FilterAction: types.FilterActionNone,
		CreatedAt:    created,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store signal instance", goerr.V(model.SignalIDKey, in.SignalID))
	}

	id := instance.ID
	uc.background(ctx, "signal.process", func(ctx context.Context) error {
		_, err := uc.ProcessSignalInstance(ctx, org, id)
		return err
	})
	return instance, nil
}

// ProcessSignalInstance extracts entities, applies the signal filters and
// opens a case for instances that were neither snoozed nor deduplicated
func (uc *UseCases) ProcessSignalInstance(ctx context.Context, org string, instanceID string) (*model.SignalInstance, error) {
	instance, err := uc.repo.SignalInstance().Get(ctx, org, instanceID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get signal instance", goerr.V("instance_id", instanceID))
	}
	signal, err := uc.repo.Signal().Get(ctx, org, instance.SignalID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get signal", goerr.V(model.SignalIDKey, instance.SignalID))
	}
	ctx = logging.WithAttrs(ctx, "signal", signal.Name, "instance_id", instance.ID)

	entities, err := uc.extractEntities(ctx, org, signal, instance.Raw)
	if err != nil {
		return nil, err
	}
	instance.EntityIDs = make([]int64, 0, len(entities))
	for _, e := range entities {
		instance.EntityIDs = append(instance.EntityIDs, e.ID)
	}
	instance.Fingerprint = model.Fingerprint(signal.ID, entities)

	action, caseID, err := uc.applySignalFilters(ctx, org, signal, instance, entities)
	if err != nil {
		return nil, err
	}
	instance.FilterAction = action

	switch {
	case action == types.FilterActionSnooze:
		logging.From(ctx).Info("signal instance snoozed", "fingerprint", instance.Fingerprint)
	case action == types.FilterActionDeduplicate:
		instance.CaseID = caseID
		logging.From(ctx).Info("signal instance deduplicated", "case_id", caseID)
		uc.logEvent(ctx, org, EventInput{
			Subject:     model.CaseRef(caseID),
			Source:      SourceSignal,
			Description: "Duplicate signal instance of " + signal.Name + " attached",
			Details:     map[string]any{"instance_id": instance.ID},
		})
	case signal.CreateCase:
		c, err := uc.CreateCase(ctx, org, CreateCaseInput{
			ProjectID:   signal.ProjectID,
			Title:       signal.Name,
			Description: signal.Description,
			TypeID:      signal.CaseTypeID,
			SeverityID:  signal.CaseSeverityID,
			PriorityID:  signal.CasePriorityID,
			TagIDs:      signal.TagIDs,
			SignalID:    signal.ID,
		})
		if err != nil {
			return nil, err
		}
		instance.CaseID = c.ID
		uc.logEvent(ctx, org, EventInput{
			Subject:     c.Ref(),
			Source:      SourceSignal,
			Description: "Case created from signal " + signal.Name,
			Details:     map[string]any{"instance_id": instance.ID, "fingerprint": instance.Fingerprint},
		})
		if signal.GenAIEnabled {
			id := c.ID
			uc.background(ctx, "signal.analysis", func(ctx context.Context) error {
				_, err := uc.GenerateSignalAnalysis(ctx, org, id)
				return err
			})
		}
	}

	if instance, err = uc.repo.SignalInstance().Update(ctx, org, instance); err != nil {
		return nil, goerr.Wrap(err, "failed to update signal instance", goerr.V("instance_id", instanceID))
	}
	uc.metrics.SignalInstance(string(action))
	return instance, nil
}

// extractEntities applies the entity types of the signal to raw. Global
// entity types apply to every signal of the project. Paths that do not
// resolve yield no entities.
func (uc *UseCases) extractEntities(ctx context.Context, org string, signal *model.Signal, raw []byte) ([]*model.Entity, error) {
	all, err := uc.repo.EntityType().List(ctx, org, signal.ProjectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list entity types")
	}
	wanted := make(map[int64]bool, len(signal.EntityTypeIDs))
	for _, id := range signal.EntityTypeIDs {
		wanted[id] = true
	}

	var entities []*model.Entity
	for _, et := range all {
		if !et.Enabled || !(et.Global || wanted[et.ID]) || et.JPath == "" {
			continue
		}
		var re *regexp.Regexp
		if et.Regex != "" {
			if re, err = regexp.Compile(et.Regex); err != nil {
				logging.From(ctx).Warn("invalid entity type regex", "entity_type", et.Name, "error", err)
				continue
			}
		}

		for _, v := range jsonpath.Select(raw, et.JPath) {
			values := []string{v}
			if re != nil {
				values = re.FindAllString(v, -1)
			}
			for _, value := range values {
				if value == "" {
					continue
				}
				e, err := uc.repo.Entity().Upsert(ctx, org, &model.Entity{
					ProjectID:    signal.ProjectID,
					EntityTypeID: et.ID,
					TypeName:     et.Name,
					Value:        value,
					CreatedAt:    uc.now(),
				})
				if err != nil {
					return nil, goerr.Wrap(err, "failed to upsert entity", goerr.V("entity_type", et.Name))
				}
				entities = append(entities, e)
			}
		}
	}
	return entities, nil
}

func signalAttributes(signal *model.Signal, instance *model.SignalInstance, entities []*model.Entity) map[string]any {
	attrs := map[string]any{
		"signal":      signal.Name,
		"variant":     signal.Variant,
		"fingerprint": instance.Fingerprint,
	}
	byType := map[string][]string{}
	var values []string
	for _, e := range entities {
		byType[e.TypeName] = append(byType[e.TypeName], e.Value)
		values = append(values, e.Value)
	}
	for k, v := range byType {
		attrs[k] = v
	}
	attrs["entity"] = values
	return attrs
}

// applySignalFilters evaluates the signal filters in order. A snooze match
// drops the instance; a deduplicate match returns the open case sharing the
// fingerprint within the filter window.
func (uc *UseCases) applySignalFilters(ctx context.Context, org string, signal *model.Signal, instance *model.SignalInstance, entities []*model.Entity) (types.FilterAction, int64, error) {
	attrs := signalAttributes(signal, instance, entities)
	now := uc.now()

	for _, fid := range signal.FilterIDs {
		f, err := uc.repo.SignalFilter().Get(ctx, org, fid)
		if err != nil {
			logging.From(ctx).Warn("signal filter unavailable", "filter_id", fid, "error", err)
			continue
		}
		if !f.Enabled || !f.Expression.Match(attrs) {
			continue
		}

		switch f.Action {
		case types.FilterActionSnooze:
			if f.Expired(now) {
				continue
			}
			return types.FilterActionSnooze, 0, nil

		case types.FilterActionDeduplicate:
			since := now.Add(-f.WindowDuration())
			previous, err := uc.repo.SignalInstance().List(ctx, org, model.SignalInstanceQuery{
				SignalID:    signal.ID,
				Fingerprint: instance.Fingerprint,
				Since:       &since,
			})
			if err != nil {
				return "", 0, goerr.Wrap(err, "failed to list signal instances")
			}
			for _, p := range previous {
				if p.ID == instance.ID || p.CaseID == 0 {
					continue
				}
				c, err := uc.repo.Case().Get(ctx, org, p.CaseID)
				if err != nil || c == nil || c.IsClosed() {
					continue
				}
				return types.FilterActionDeduplicate, c.ID, nil
			}
		}
	}
	return types.FilterActionNone, 0, nil
}

// ListSignalInstances returns recent instances of a signal
func (uc *UseCases) ListSignalInstances(ctx context.Context, org string, q model.SignalInstanceQuery) ([]*model.SignalInstance, error) {
	instances, err := uc.repo.SignalInstance().List(ctx, org, q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list signal instances")
	}
	return instances, nil
}

// ListSignals returns the signal definitions of a project
func (uc *UseCases) ListSignals(ctx context.Context, org string, projectID int64) ([]*model.Signal, error) {
	signals, err := uc.repo.Signal().List(ctx, org, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list signals", goerr.V(model.ProjectIDKey, projectID))
	}
	return signals, nil
}
