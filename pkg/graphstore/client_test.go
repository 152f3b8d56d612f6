package graphstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeNodeQuery(t *testing.T) {
	n := Node{
		Label:    "Station",
		Key:      "station_code",
		KeyValue: "BSS001",
		Props:    map[string]any{"label": "Station 1"},
	}

	query := mergeNodeQuery(n)

	assert.Contains(t, query, "MERGE (n:Station {station_code: $keyValue})")
	assert.Contains(t, query, "SET n += $props")
}

func TestMergeRelationQuery(t *testing.T) {
	r := Relation{
		Type:      "LOCATED_IN",
		FromLabel: "Station",
		FromKey:   "station_code",
		FromValue: "BSS001",
		ToLabel:   "Commune",
		ToKey:     "insee",
		ToValue:   "75056",
	}

	query := mergeRelationQuery(r)

	assert.True(t, strings.Contains(query, "MATCH (a:Station {station_code: $fromValue})"))
	assert.True(t, strings.Contains(query, "MATCH (b:Commune {insee: $toValue})"))
	assert.True(t, strings.Contains(query, "MERGE (a)-[r:LOCATED_IN]->(b)"))
}
