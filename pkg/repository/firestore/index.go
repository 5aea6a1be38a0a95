package firestore

import (
	"github.com/m-mizutani/fireconf"
)

var projectScoped = []string{
	"individuals", "prompts", "entities", "incidents", "cases",
	"incident_types", "incident_priorities", "incident_severities",
	"case_types", "case_priorities", "case_severities",
	"tags", "tag_types", "signals", "signal_filters", "entity_types",
	"notifications", "plugin_instances", "documents", "services",
}

var subjectScoped = []string{
	"participants", "resources", "tasks", "reports", "reminders", "feedback",
}

func asc(path string) fireconf.IndexField {
	return fireconf.IndexField{Path: path, Order: fireconf.OrderAscending}
}

func desc(path string) fireconf.IndexField {
	return fireconf.IndexField{Path: path, Order: fireconf.OrderDescending}
}

// Indexes returns the composite indexes the queries of the given
// organizations need
func Indexes(prefix string, orgs ...string) *fireconf.Config {
	cfg := &fireconf.Config{}
	add := func(org, name string, indexes ...fireconf.Index) {
		cfg.Collections = append(cfg.Collections, fireconf.Collection{
			Name:    collectionName(prefix, org, name),
			Indexes: indexes,
		})
	}

	for _, org := range orgs {
		for _, name := range projectScoped {
			add(org, name, fireconf.Index{Fields: []fireconf.IndexField{asc("project_id"), asc("id")}})
		}
		for _, name := range subjectScoped {
			indexes := []fireconf.Index{{Fields: []fireconf.IndexField{asc("subject"), asc("id")}}}
			if name == "resources" || name == "tasks" {
				indexes = append(indexes, fireconf.Index{Fields: []fireconf.IndexField{asc("key"), asc("id")}})
			}
			add(org, name, indexes...)
		}
		add(org, "events", fireconf.Index{Fields: []fireconf.IndexField{asc("subject"), asc("sort_at")}})
		add(org, "signal_instances",
			fireconf.Index{Fields: []fireconf.IndexField{asc("signal_id"), desc("sort_at")}},
			fireconf.Index{Fields: []fireconf.IndexField{asc("key"), desc("sort_at")}},
			fireconf.Index{Fields: []fireconf.IndexField{asc("signal_id"), asc("key"), desc("sort_at")}},
		)
	}
	return cfg
}
