package main

import (
	"os"
	"path/filepath"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraloans/internal/chaos"
)

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	results := []chaos.Result{
		{ExperimentName: "concurrent-loan-race-condition", HypothesisHeld: true, SteadyStateValid: true},
		{ExperimentName: "concurrent-return-race-condition", FailedAssertions: []string{"Exactly one concurrent return should succeed"}},
	}

	require.NoError(t, writeReport(path, results))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, jsoniter.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "concurrent-loan-race-condition", decoded[0]["experiment_name"])
	assert.Equal(t, true, decoded[0]["hypothesis_held"])
	assert.Equal(t, []any{"Exactly one concurrent return should succeed"}, decoded[1]["failed_assertions"])
}

func TestWriteReport_UnwritablePath(t *testing.T) {
	err := writeReport(filepath.Join(t.TempDir(), "missing", "report.json"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write report")
}
