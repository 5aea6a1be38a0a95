package model_test

import (
	"encoding/json"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/slack-go/slack"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

func TestParseViewState(t *testing.T) {
	state := &slack.ViewState{
		Values: map[string]map[string]slack.BlockAction{
			"title": {"title_input": {Value: "S3 bucket exposed"}},
			"project": {"project_select": {SelectedOption: slack.OptionBlockObject{
				Text:  slack.NewTextBlockObject(slack.PlainTextType, "default", false, false),
				Value: "1",
			}}},
			"tags": {"tags_select": {SelectedOptions: []slack.OptionBlockObject{
				{Text: slack.NewTextBlockObject(slack.PlainTextType, "pii", false, false), Value: "10"},
				{Value: "11"},
			}}},
			"due":   {"due_date": {SelectedDate: "2024-05-01"}},
			"empty": {"empty_input": {}},
		},
	}

	form := model.ParseViewState(state)
	gt.Value(t, form.Text("title")).Equal("S3 bucket exposed")

	project, ok := form.Selected("project")
	gt.Bool(t, ok).True()
	gt.Value(t, project).Equal(model.SelectedValue{Name: "default", Value: "1"})

	tags := form.MultiSelected("tags")
	gt.Array(t, tags).Length(2).Required()
	gt.Value(t, tags[1].Name).Equal("11")

	due, ok := form.Date("due")
	gt.Bool(t, ok).True()
	d, err := due.Time()
	gt.NoError(t, err).Required()
	gt.Value(t, d.Day()).Equal(1)

	_, exists := form["empty"]
	gt.Bool(t, exists).False()
}

func TestFormDataJSONRoundTrip(t *testing.T) {
	form := model.FormData{
		"title":    model.TextValue("hello"),
		"priority": model.SelectedValue{Name: "P1", Value: "3"},
		"tags":     model.MultiSelectedValue{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}},
		"none":     model.MultiSelectedValue{},
		"date":     model.DateValue("2024-05-01"),
	}

	raw, err := json.Marshal(form)
	gt.NoError(t, err).Required()

	var decoded model.FormData
	gt.NoError(t, json.Unmarshal(raw, &decoded)).Required()
	gt.Value(t, decoded).Equal(form)
}

func TestFormDataDetails(t *testing.T) {
	form := model.FormData{
		"conditions": model.TextValue("stable"),
		"needs":      model.MultiSelectedValue{{Name: "a", Value: "x"}},
	}
	details := form.Details()
	gt.Value(t, details["conditions"]).Equal("stable")
	gt.Value(t, details["needs"]).Equal([]string{"x"})
}
