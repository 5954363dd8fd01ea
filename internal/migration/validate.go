package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/craft-storefront/internal/docstore"
)

type CollectionReport struct {
	Source          int        `json:"source"`
	Target          int        `json:"target"`
	MissingInTarget []string   `json:"missing_in_target"`
	ExtraInTarget   []string   `json:"extra_in_target"`
	Mismatches      []Mismatch `json:"mismatches"`
}

// Mismatch names a field whose value differs between the two backends.
type Mismatch struct {
	DocumentID  string      `json:"document_id"`
	Field       string      `json:"field"`
	SourceValue interface{} `json:"source_value"`
	TargetValue interface{} `json:"target_value"`
}

type ValidationResult struct {
	Collections    map[string]*CollectionReport `json:"collections"`
	SyncPercentage float64                      `json:"sync_percentage"`
	IsValid        bool                         `json:"is_valid"`
	ValidationTime time.Time                    `json:"validation_time"`
}

// Validate compares source and target document by document. Documents only
// in the target are reported but do not fail validation.
func (m *Migrator) Validate(ctx context.Context) (*ValidationResult, error) {
	m.logger.Info("Starting post-migration validation")

	result := &ValidationResult{
		Collections:    make(map[string]*CollectionReport),
		ValidationTime: time.Now(),
	}

	var total, synced int
	for _, collection := range m.config.Collections {
		source, err := m.source.List(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s from source: %w", collection, err)
		}
		target, err := m.target.List(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s from target: %w", collection, err)
		}

		report := compareCollection(source, target)
		result.Collections[collection] = report
		total += report.Source
		synced += report.Source - len(report.MissingInTarget) - countDocuments(report.Mismatches)
	}

	result.SyncPercentage = 100.0
	if total > 0 {
		result.SyncPercentage = float64(synced) / float64(total) * 100.0
	}
	result.IsValid = synced == total

	m.logger.WithFields(logrus.Fields{
		"sync_percentage":   result.SyncPercentage,
		"documents":         total,
		"validation_passed": result.IsValid,
	}).Info("Migration validation completed")
	return result, nil
}

func compareCollection(source, target []docstore.Document) *CollectionReport {
	report := &CollectionReport{
		Source:          len(source),
		Target:          len(target),
		MissingInTarget: []string{},
		ExtraInTarget:   []string{},
		Mismatches:      []Mismatch{},
	}

	byID := make(map[string]docstore.Document, len(target))
	for _, doc := range target {
		byID[doc.ID()] = doc
	}
	seen := make(map[string]bool, len(source))
	for _, doc := range source {
		id := doc.ID()
		seen[id] = true
		other, ok := byID[id]
		if !ok {
			report.MissingInTarget = append(report.MissingInTarget, id)
			continue
		}
		report.Mismatches = append(report.Mismatches, compareFields(id, doc, other)...)
	}
	for id := range byID {
		if !seen[id] {
			report.ExtraInTarget = append(report.ExtraInTarget, id)
		}
	}
	sort.Strings(report.ExtraInTarget)
	return report
}

func compareFields(id string, source, target docstore.Document) []Mismatch {
	fields := make(map[string]bool)
	for k := range source {
		fields[k] = true
	}
	for k := range target {
		fields[k] = true
	}
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	var mismatches []Mismatch
	for _, field := range names {
		a, b := normalizedValue(source[field]), normalizedValue(target[field])
		if !reflect.DeepEqual(a, b) {
			mismatches = append(mismatches, Mismatch{
				DocumentID:  id,
				Field:       field,
				SourceValue: source[field],
				TargetValue: target[field],
			})
		}
	}
	return mismatches
}

// normalizedValue brings values read from different backends to the same JSON
// shape, so an int from one and a float64 from another compare equal.
func normalizedValue(v interface{}) interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func countDocuments(mismatches []Mismatch) int {
	ids := make(map[string]bool)
	for _, m := range mismatches {
		ids[m.DocumentID] = true
	}
	return len(ids)
}

// Report renders a validation result as "json" or a plain-text "summary".
func Report(result *ValidationResult, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "json":
		return json.MarshalIndent(result, "", "  ")
	case "summary":
		return summaryReport(result), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func summaryReport(result *ValidationResult) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "MIGRATION VALIDATION REPORT\n===========================\nGenerated: %s\n\n",
		result.ValidationTime.Format(time.RFC3339))

	names := make([]string, 0, len(result.Collections))
	for name := range result.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r := result.Collections[name]
		fmt.Fprintf(&b, "%-16s source %5d  target %5d  missing %4d  extra %4d  mismatched fields %4d\n",
			name, r.Source, r.Target, len(r.MissingInTarget), len(r.ExtraInTarget), len(r.Mismatches))
	}

	status := "PASSED"
	if !result.IsValid {
		status = "FAILED"
	}
	fmt.Fprintf(&b, "\nSync: %.2f%%\nSTATUS: %s\n", result.SyncPercentage, status)
	return []byte(b.String())
}
