package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		model    interface{ TableName() string }
		expected string
	}{
		{"StarlogsInfo", &StarlogsInfo{}, "starlogs_infos"},
		{"IngestPerformance", &IngestPerformance{}, "ingest_performances"},
		{"Session", &Session{}, "sessions"},
		{"Event", &Event{}, "events"},
		{"SystemInfo", &SystemInfo{}, "system_infos"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}
}

func TestDatabaseModels_AllNamed(t *testing.T) {
	assert.Len(t, DatabaseModels, 5)
	for _, m := range DatabaseModels {
		_, ok := m.(interface{ TableName() string })
		assert.True(t, ok, "%T has a table name", m)
	}
}
