package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/usecase"
	"github.com/Netflix/dispatch-sub000/pkg/utils/errutil"
)

const defaultListLimit = 100

// listResponse wraps collections
type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func newList[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Total: len(items)}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewValidationError("id", "id must be a positive integer")
	}
	return id, nil
}

func queryInt(r *http.Request, key string, def int64) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, model.NewValidationError(key, key+" must be a non-negative integer")
	}
	return n, nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.NewValidationError("body", "invalid JSON body: "+err.Error())
	}
	return nil
}

func listIncidentsHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		q := model.IncidentQuery{Text: r.URL.Query().Get("q")}

		verr := &model.ValidationError{}
		projectID, err := queryInt(r, "project_id", 0)
		if err != nil {
			verr.Add("project_id", "project_id must be a non-negative integer")
		}
		limit, err := queryInt(r, "limit", defaultListLimit)
		if err != nil {
			verr.Add("limit", "limit must be a non-negative integer")
		}
		for _, s := range r.URL.Query()["status"] {
			st, err := types.ParseIncidentStatus(s)
			if err != nil {
				verr.Add("status", "unknown incident status "+s)
				continue
			}
			q.Statuses = append(q.Statuses, st)
		}
		if verr.HasErrors() {
			errutil.HandleHTTP(ctx, w, verr)
			return
		}
		q.ProjectID, q.Limit = projectID, int(limit)

		incidents, err := uc.ListIncidents(ctx, organizationFrom(ctx), q)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		writeJSON(w, r, http.StatusOK, newList(incidents))
	}
}

func getIncidentHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := pathID(r)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		incident, err := uc.GetIncident(ctx, organizationFrom(ctx), id)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		writeJSON(w, r, http.StatusOK, incident)
	}
}

func listCasesHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		q := model.CaseQuery{Text: r.URL.Query().Get("q")}

		verr := &model.ValidationError{}
		projectID, err := queryInt(r, "project_id", 0)
		if err != nil {
			verr.Add("project_id", "project_id must be a non-negative integer")
		}
		signalID, err := queryInt(r, "signal_id", 0)
		if err != nil {
			verr.Add("signal_id", "signal_id must be a non-negative integer")
		}
		limit, err := queryInt(r, "limit", defaultListLimit)
		if err != nil {
			verr.Add("limit", "limit must be a non-negative integer")
		}
		for _, s := range r.URL.Query()["status"] {
			st, err := types.ParseCaseStatus(s)
			if err != nil {
				verr.Add("status", "unknown case status "+s)
				continue
			}
			q.Statuses = append(q.Statuses, st)
		}
		if verr.HasErrors() {
			errutil.HandleHTTP(ctx, w, verr)
			return
		}
		q.ProjectID, q.SignalID, q.Limit = projectID, signalID, int(limit)

		cases, err := uc.ListCases(ctx, organizationFrom(ctx), q)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		writeJSON(w, r, http.StatusOK, newList(cases))
	}
}

func getCaseHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := pathID(r)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		c, err := uc.GetCase(ctx, organizationFrom(ctx), id)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		writeJSON(w, r, http.StatusOK, c)
	}
}

func listPromptsHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		projectID, err := queryInt(r, "project_id", 0)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		prompts, err := uc.ListPrompts(ctx, organizationFrom(ctx), projectID)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		writeJSON(w, r, http.StatusOK, newList(prompts))
	}
}

func createPromptHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var p model.Prompt
		if err := decodeBody(r, &p); err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		p.ID = 0
		created, err := uc.CreatePrompt(ctx, organizationFrom(ctx), &p)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, created)
	}
}

func getPromptHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := pathID(r)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		p, err := uc.GetPrompt(ctx, organizationFrom(ctx), id)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		writeJSON(w, r, http.StatusOK, p)
	}
}

func updatePromptHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := pathID(r)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		var p model.Prompt
		if err := decodeBody(r, &p); err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		p.ID = id
		updated, err := uc.UpdatePrompt(ctx, organizationFrom(ctx), &p)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		writeJSON(w, r, http.StatusOK, updated)
	}
}

func deletePromptHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := pathID(r)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		if err := uc.DeletePrompt(ctx, organizationFrom(ctx), id); err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listPluginInstancesHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		projectID, err := queryInt(r, "project_id", 0)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		instances, err := uc.ListPluginInstances(ctx, organizationFrom(ctx), projectID)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		writeJSON(w, r, http.StatusOK, newList(instances))
	}
}

func updatePluginInstanceHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := pathID(r)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		var inst model.PluginInstance
		if err := decodeBody(r, &inst); err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		inst.ID = id
		updated, err := uc.UpdatePluginInstance(ctx, organizationFrom(ctx), &inst)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		writeJSON(w, r, http.StatusOK, updated)
	}
}

func listSignalsHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		projectID, err := queryInt(r, "project_id", 0)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		signals, err := uc.ListSignals(ctx, organizationFrom(ctx), projectID)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		writeJSON(w, r, http.StatusOK, newList(signals))
	}
}

func listSignalInstancesHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		signalID, err := queryInt(r, "signal_id", 0)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		limit, err := queryInt(r, "limit", defaultListLimit)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		instances, err := uc.ListSignalInstances(ctx, organizationFrom(ctx), model.SignalInstanceQuery{
			SignalID: signalID,
			Limit:    int(limit),
		})
		if err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		writeJSON(w, r, http.StatusOK, newList(instances))
	}
}

type signalInstanceResponse struct {
	ID string `json:"id"`
}

// signalInstanceHandler accepts a signal emission. The instance is processed
// after the response; the returned id identifies it before a case exists.
func signalInstanceHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		org := organizationFrom(ctx)
		if org == "" {
			org = strings.TrimSpace(r.URL.Query().Get("organization"))
		}
		if org == "" {
			def, err := uc.Organizations().Default()
			if err != nil {
				errutil.HandleHTTP(ctx, w, err)
				return
			}
			org = def.Slug
		} else if _, err := uc.Organizations().Get(org); err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}

		var in usecase.SignalInstanceInput
		if err := decodeBody(r, &in); err != nil {
			errutil.HandleHTTP(ctx, w, err)
			return
		}
		instance, err := uc.IngestSignal(ctx, org, in)
		if err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to ingest signal", goerr.V(model.OrgKey, org)))
			return
		}
		writeJSON(w, r, http.StatusAccepted, signalInstanceResponse{ID: instance.ID})
	}
}
