package harvester

import (
	"fmt"
	"sort"

	"hydropipe/internal/registry"
)

// deduplicate collapses records to at most one per dedup key, keeping the
// first record seen for each key (pages are requested in ascending date
// order, so this is the earliest reading of each group). When
// rule.TruncateToDay is set, the date portion of
// rule.DateField is truncated to a day before being folded into the key,
// so multiple same-day readings for one group collapse to one row;
// otherwise the full timestamp participates in the key and sub-daily
// readings are preserved distinctly.
func deduplicate(records []map[string]any, rule registry.DedupRule) []map[string]any {
	type entry struct {
		order  int
		record map[string]any
	}

	seen := make(map[string]entry, len(records))

	for i, record := range records {
		key := dedupKey(record, rule)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = entry{order: i, record: record}
	}

	entries := make([]entry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].order < entries[j].order
	})

	out := make([]map[string]any, len(entries))
	for i, e := range entries {
		out[i] = e.record
	}
	return out
}

func dedupKey(record map[string]any, rule registry.DedupRule) string {
	key := ""
	for _, groupKey := range rule.GroupKeys {
		key += fmt.Sprintf("%v|", record[groupKey])
	}

	dateValue := fmt.Sprintf("%v", record[rule.DateField])
	if rule.TruncateToDay && len(dateValue) >= 10 {
		dateValue = dateValue[:10]
	}
	return key + dateValue
}
