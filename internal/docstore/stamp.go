package docstore

import (
	"strings"
	"time"
)

// TimestampLayout is fixed-width so stamped values also sort correctly as strings.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

type stampRule struct {
	created bool
	updated bool
}

var stampRules = map[string]stampRule{
	Products: {created: true, updated: true},
	Orders:   {created: true, updated: true},
	Gallery:  {created: true},
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func stampInsert(collection string, doc Document, now time.Time) {
	rule := stampRules[collection]
	if rule.created && missingTime(doc["createdAt"]) {
		doc["createdAt"] = formatTimestamp(now)
	}
	if rule.updated && collection == Products {
		doc["updatedAt"] = formatTimestamp(now)
	}
}

func stampUpdate(collection string, doc Document, now time.Time) {
	if stampRules[collection].updated {
		doc["updatedAt"] = formatTimestamp(now)
	}
	// createdAt is immutable once the record exists.
	delete(doc, "createdAt")
}

func missingTime(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == "" || strings.HasPrefix(t, "0001-01-01T00:00:00")
	default:
		return false
	}
}
