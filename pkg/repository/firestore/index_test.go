package firestore_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/repository/firestore"
)

func TestIndexes(t *testing.T) {
	cfg := firestore.Indexes("test_", "acme", "globex")

	names := map[string]int{}
	for _, c := range cfg.Collections {
		names[c.Name] = len(c.Indexes)
	}

	gt.Value(t, names["test_acme_incidents"]).Equal(1)
	gt.Value(t, names["test_globex_participants"]).Equal(1)
	gt.Value(t, names["test_acme_resources"]).Equal(2)
	gt.Value(t, names["test_acme_signal_instances"]).Equal(3)
	gt.Value(t, names["test_acme_events"]).Equal(1)

	_, ok := names["test_acme_projects"]
	gt.Bool(t, ok).False()
}
