package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/slack-go/slack"
)

// FormValue is one normalized value of a submitted form
type FormValue interface {
	formValue()
}

// TextValue is free text input
type TextValue string

// SelectedValue is a single selected option
type SelectedValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MultiSelectedValue is a list of selected options
type MultiSelectedValue []SelectedValue

// DateValue is a picked date in YYYY-MM-DD form
type DateValue string

func (TextValue) formValue()          {}
func (SelectedValue) formValue()      {}
func (MultiSelectedValue) formValue() {}
func (DateValue) formValue()          {}

// Values returns the option values
func (m MultiSelectedValue) Values() []string {
	out := make([]string, 0, len(m))
	for _, s := range m {
		out = append(out, s.Value)
	}
	return out
}

// Time parses the date
func (d DateValue) Time() (time.Time, error) {
	return time.Parse(time.DateOnly, string(d))
}

// FormData is the flat block_id → value mapping of a submitted view
type FormData map[string]FormValue

// Text returns the text value of key. Selected values yield their value.
func (f FormData) Text(key string) string {
	switch v := f[key].(type) {
	case TextValue:
		return string(v)
	case SelectedValue:
		return v.Value
	case DateValue:
		return string(v)
	}
	return ""
}

// Selected returns the selected option of key
func (f FormData) Selected(key string) (SelectedValue, bool) {
	v, ok := f[key].(SelectedValue)
	return v, ok
}

// MultiSelected returns the selected options of key; a single selection is
// returned as a one element list.
func (f FormData) MultiSelected(key string) MultiSelectedValue {
	switch v := f[key].(type) {
	case MultiSelectedValue:
		return v
	case SelectedValue:
		return MultiSelectedValue{v}
	}
	return nil
}

// Date returns the date value of key
func (f FormData) Date(key string) (DateValue, bool) {
	v, ok := f[key].(DateValue)
	return v, ok
}

// Details returns the form as a plain map for persisting as report details
func (f FormData) Details() map[string]any {
	out := make(map[string]any, len(f))
	for k, v := range f {
		switch x := v.(type) {
		case TextValue:
			out[k] = string(x)
		case SelectedValue:
			out[k] = x.Value
		case MultiSelectedValue:
			out[k] = x.Values()
		case DateValue:
			out[k] = string(x)
		}
	}
	return out
}

type dateJSON struct {
	Date string `json:"date"`
}

func (f FormData) MarshalJSON() ([]byte, error) {
	raw := make(map[string]any, len(f))
	for k, v := range f {
		switch x := v.(type) {
		case TextValue:
			raw[k] = string(x)
		case SelectedValue:
			raw[k] = x
		case MultiSelectedValue:
			if x == nil {
				x = MultiSelectedValue{}
			}
			raw[k] = []SelectedValue(x)
		case DateValue:
			raw[k] = dateJSON{Date: string(x)}
		default:
			return nil, fmt.Errorf("unsupported form value %T for %s", v, k)
		}
	}
	return json.Marshal(raw)
}

func (f *FormData) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(FormData, len(raw))
	for k, msg := range raw {
		v, err := decodeFormValue(msg)
		if err != nil {
			return fmt.Errorf("form value %s: %w", k, err)
		}
		out[k] = v
	}
	*f = out
	return nil
}

func decodeFormValue(msg json.RawMessage) (FormValue, error) {
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		return TextValue(s), nil
	}
	var list []SelectedValue
	if err := json.Unmarshal(msg, &list); err == nil {
		return MultiSelectedValue(list), nil
	}
	var obj map[string]string
	if err := json.Unmarshal(msg, &obj); err != nil {
		return nil, err
	}
	if d, ok := obj["date"]; ok {
		return DateValue(d), nil
	}
	return SelectedValue{Name: obj["name"], Value: obj["value"]}, nil
}

// ParseViewState flattens the values of a submitted view into FormData keyed
// by block id. Empty inputs are omitted.
func ParseViewState(state *slack.ViewState) FormData {
	out := FormData{}
	if state == nil {
		return out
	}
	blockIDs := make([]string, 0, len(state.Values))
	for id := range state.Values {
		blockIDs = append(blockIDs, id)
	}
	sort.Strings(blockIDs)

	for _, blockID := range blockIDs {
		for _, action := range state.Values[blockID] {
			if v := parseBlockAction(action); v != nil {
				out[blockID] = v
			}
		}
	}
	return out
}

func parseBlockAction(a slack.BlockAction) FormValue {
	switch {
	case len(a.SelectedOptions) > 0:
		values := make(MultiSelectedValue, 0, len(a.SelectedOptions))
		for _, o := range a.SelectedOptions {
			values = append(values, SelectedValue{Name: optionText(o), Value: o.Value})
		}
		return values
	case len(a.SelectedUsers) > 0:
		values := make(MultiSelectedValue, 0, len(a.SelectedUsers))
		for _, u := range a.SelectedUsers {
			values = append(values, SelectedValue{Name: u, Value: u})
		}
		return values
	case a.SelectedOption.Value != "":
		return SelectedValue{Name: optionText(a.SelectedOption), Value: a.SelectedOption.Value}
	case a.SelectedUser != "":
		return SelectedValue{Name: a.SelectedUser, Value: a.SelectedUser}
	case a.SelectedConversation != "":
		return SelectedValue{Name: a.SelectedConversation, Value: a.SelectedConversation}
	case a.SelectedChannel != "":
		return SelectedValue{Name: a.SelectedChannel, Value: a.SelectedChannel}
	case a.SelectedDate != "":
		return DateValue(a.SelectedDate)
	case a.Value != "":
		return TextValue(a.Value)
	}
	return nil
}

func optionText(o slack.OptionBlockObject) string {
	if o.Text != nil && o.Text.Text != "" {
		return o.Text.Text
	}
	return o.Value
}
