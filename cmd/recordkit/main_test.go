package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thiago-r-goveia/recordkit/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	scanFormat, scanOut, verbose = "", "", false
	theoryWeight, practiceWeight, refluxThreshold = 0.6, 0.4, 4.0
	t.Setenv("SCHEMA_DIR", "")
	loadConfig = config.New

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestScanCommand(t *testing.T) {
	t.Run("Success case - outcome as JSON", func(t *testing.T) {
		path := writeInput(t, "patients.mut", "s1:P53,BRCA1\ns2:P53\n")

		out, err := execute(t, "scan", path)
		require.NoError(t, err)

		var res scanResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, "Success", res.Kind)
		assert.Equal(t, "mutations", res.Format)
		assert.Equal(t, 2, res.Accepted)
		assert.Len(t, res.Aggregates["frequency"], 2)
	})

	t.Run("Success case - derived report written to a file", func(t *testing.T) {
		path := writeInput(t, "patients.mut", "s1:P53,BRCA1\ns2:P53\n")
		report := filepath.Join(t.TempDir(), "report.txt")

		_, err := execute(t, "scan", path, "--out", report)
		require.NoError(t, err)

		got, err := os.ReadFile(report)
		require.NoError(t, err)
		assert.Equal(t, "P53:2\nBRCA1:1\n", string(got))
	})

	t.Run("Expect: a failed scan to report its code", func(t *testing.T) {
		out, err := execute(t, "scan", filepath.Join(t.TempDir(), "missing.mut"))
		require.Error(t, err)

		var res scanResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, -1, res.Code)
		assert.Nil(t, res.Aggregates)
	})

	t.Run("Expect: an error when no format matches", func(t *testing.T) {
		_, err := execute(t, "scan", writeInput(t, "notes.txt", "x"))
		assert.ErrorContains(t, err, "no format matches")
	})
}

func TestCutCommand(t *testing.T) {
	table := writeInput(t, "table.enz", "EcoRI;1;GAATTC\nNotI;2;GCGGCCGC\n")

	out, err := execute(t, "cut", table, "AAAGAATTCCC")
	require.NoError(t, err)

	assert.Equal(t, "EcoRI;AAAG;AATTCCC\n", out)
}

func TestGradesCommand(t *testing.T) {
	theory := writeInput(t, "class.theory", "11111111H;3;7\n")
	practice := writeInput(t, "class.practice", "11111111H;8;6;4\n22222222M;9\n")

	t.Run("Success case - default weights", func(t *testing.T) {
		out, err := execute(t, "grades", theory, practice)
		require.NoError(t, err)
		assert.Equal(t, "11111111H;6.60\n22222222M;1.20\n", out)
	})

	t.Run("Success case - custom weights", func(t *testing.T) {
		out, err := execute(t, "grades", theory, practice, "--theory-weight", "0.5", "--practice-weight", "0.5")
		require.NoError(t, err)
		assert.Equal(t, "11111111H;6.50\n22222222M;1.50\n", out)
	})

	t.Run("Expect: an error for a missing grades file", func(t *testing.T) {
		_, err := execute(t, "grades", theory, filepath.Join(t.TempDir(), "missing.practice"))
		assert.Error(t, err)
	})
}

func TestRefluxCommand(t *testing.T) {
	readings := writeInput(t, "day.phm", "\"00:00\";3.0;Tumbado;\n\"00:05\";5.0;Tumbado;\n\"00:10\";6.5;De pie;Tos\n")

	decode := func(t *testing.T, out string) []map[string]any {
		t.Helper()
		var entries []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &entries))
		return entries
	}

	t.Run("Success case - default threshold", func(t *testing.T) {
		out, err := execute(t, "reflux", readings)
		require.NoError(t, err)
		assert.Equal(t, []map[string]any{
			{"key": "Tumbado", "value": 50.0},
			{"key": "De pie", "value": 0.0},
		}, decode(t, out))
	})

	t.Run("Success case - custom threshold", func(t *testing.T) {
		out, err := execute(t, "reflux", readings, "--threshold", "7")
		require.NoError(t, err)
		assert.Equal(t, []map[string]any{
			{"key": "Tumbado", "value": 100.0},
			{"key": "De pie", "value": 100.0},
		}, decode(t, out))
	})
}

func TestMutationsCommand(t *testing.T) {
	first := writeInput(t, "a.mut", "s1:P53,BRCA1\ns2:P53\n")
	second := writeInput(t, "b.mut", "s3:BRCA1,CDK2\n")

	out, err := execute(t, "mutations", first, second)
	require.NoError(t, err)
	assert.Equal(t, "BRCA1,P53:2\nCDK2:1\n", out)
}

func TestFormatsCommand(t *testing.T) {
	out, err := execute(t, "formats")
	require.NoError(t, err)

	for _, name := range []string{"enzymes", "fasta", "logs", "mutations", "phmetry"} {
		assert.Contains(t, out, name)
	}
}

func TestSetupCommand(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "store", "recordkit.db"))

	out, err := execute(t, "setup")
	require.NoError(t, err)

	assert.Contains(t, out, "finished successfully")
}
