package parser

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func totals(t *testing.T, out Outcome) map[string]float64 {
	t.Helper()
	acc, ok := out.Accumulator("totals")
	require.True(t, ok)
	return acc.(*Counter).Aggregate().Map()
}

func TestDriver_ScanFile(t *testing.T) {
	driver := NewDriver(mustSchema(t, keyedSumYAML), zap.NewNop())

	t.Run("Success", func(t *testing.T) {
		path := writeFile(t, "sum.txt", "a;1\nb;2\na;3\n")
		out := driver.ScanFile(path)

		require.True(t, out.OK())
		assert.Equal(t, 0, out.Code())
		assert.Equal(t, map[string]float64{"a": 4, "b": 2}, totals(t, out))
		assert.Equal(t, 3, out.Lines)
		assert.Equal(t, 3, out.Accepted)
		assert.Empty(t, out.Rejections)
	})

	t.Run("Empty resource is a success with empty aggregates", func(t *testing.T) {
		out := driver.ScanFile(writeFile(t, "empty.txt", ""))

		require.Equal(t, Success, out.Kind)
		assert.NoError(t, out.Err)
		assert.Empty(t, totals(t, out))
	})

	t.Run("Missing resource", func(t *testing.T) {
		out := driver.ScanFile(filepath.Join(t.TempDir(), "missing.txt"))

		assert.Equal(t, ResourceNotFound, out.Kind)
		assert.ErrorIs(t, out.Err, ErrNotFound)
		assert.Nil(t, out.Accumulators)
		assert.Equal(t, -1, out.Code())
	})

	t.Run("Directory is another failure", func(t *testing.T) {
		out := driver.ScanFile(t.TempDir())

		assert.Equal(t, OtherFailure, out.Kind)
		assert.Equal(t, -2, out.Code())
	})

	t.Run("Invalid UTF-8 fails the resource", func(t *testing.T) {
		out := driver.ScanFile(writeFile(t, "bin.txt", "a;1\n\xff\xfe;2\n"))

		assert.Equal(t, OtherFailure, out.Kind)
		assert.ErrorIs(t, out.Err, ErrDecode)
		assert.Nil(t, out.Accumulators)
	})

	t.Run("Malformed lines are skipped and recorded", func(t *testing.T) {
		out := driver.ScanFile(writeFile(t, "noisy.txt", "a;1\nnonsense\n\nb;two\na;3\n"))

		require.True(t, out.OK())
		assert.Equal(t, map[string]float64{"a": 4}, totals(t, out))
		require.Len(t, out.Rejections, 2)
		assert.Equal(t, 2, out.Rejections[0].Line)
		assert.Equal(t, "nonsense", out.Rejections[0].Raw)
		assert.Equal(t, 4, out.Rejections[1].Line)
		assert.NotEmpty(t, out.Rejections[1].Hash)
		assert.Contains(t, out.Rejections[1].Reason, "value")
	})
}

func TestDriver_Scan(t *testing.T) {
	t.Run("Read error mid stream", func(t *testing.T) {
		driver := NewDriver(mustSchema(t, keyedSumYAML), nil)
		r := io.MultiReader(strings.NewReader("a;1\nb;2\n"), iotest.ErrReader(errors.New("connection reset")))
		out := driver.Scan("flaky", r)

		assert.Equal(t, OtherFailure, out.Kind)
		assert.ErrorIs(t, out.Err, ErrDecode)
		assert.Nil(t, out.Accumulators)
	})

	t.Run("BOM, CRLF and header", func(t *testing.T) {
		s := mustSchema(t, strings.Replace(keyedSumYAML, "name: keyed_sum", "name: keyed_sum\nskip_header: true", 1))
		out := NewDriver(s, nil).Scan("crlf", strings.NewReader("\uFEFFkey;value\r\na;1\r\na;2\r\n"))

		require.True(t, out.OK())
		assert.Equal(t, map[string]float64{"a": 3}, totals(t, out))
		assert.Empty(t, out.Rejections)
	})

	t.Run("Line too long", func(t *testing.T) {
		out := NewDriver(mustSchema(t, keyedSumYAML), nil).Scan("long", strings.NewReader(strings.Repeat("x", maxLineSize+1)))
		assert.Equal(t, OtherFailure, out.Kind)
	})
}

func TestDriver_Blocks(t *testing.T) {
	s := mustSchema(t, `
name: fasta
layout: blocks
fields:
  - {name: header, required: true}
  - {name: sequence, kind: pattern, pattern: "^[ACGTNacgtn]+$"}
accumulate:
  - {name: sequences, strategy: index, key: header, fields: [sequence]}
`)
	content := "orphan\n>seq1 first\nACGT\nTTGG\n\n>empty\n>seq2\nGGCC\n>bad\nXYZ\n"
	out := NewDriver(s, nil).Scan("fasta", strings.NewReader(content))
	require.True(t, out.OK())

	acc, ok := out.Accumulator("sequences")
	require.True(t, ok)
	index := acc.(*Indexer).Aggregate()
	assert.Equal(t, []string{"seq1 first", "seq2"}, index.Keys())
	seq, _ := index.Get("seq1 first")
	assert.Equal(t, "ACGTTTGG", seq[0].Str)

	require.Len(t, out.Rejections, 3)
	assert.Equal(t, 1, out.Rejections[0].Line)
	assert.Equal(t, ">empty", out.Rejections[1].Raw)
	assert.Equal(t, ">bad", out.Rejections[2].Raw)
}

func TestAddAll(t *testing.T) {
	s := mustSchema(t, `
name: two_counts
separator: ";"
fields:
  - name: key
  - name: value
    kind: float
accumulate:
  - name: seen
    strategy: count
    key: key
  - name: totals
    strategy: count
    key: key
    weight: value
`)

	t.Run("Success case - every accumulator takes the row", func(t *testing.T) {
		accs := s.NewAccumulators()
		row, err := s.Parse(1, "a;2")
		require.NoError(t, err)

		require.NoError(t, addAll(accs, row))
		assert.Equal(t, map[string]float64{"a": 1}, accs[0].(*Counter).Aggregate().Map())
		assert.Equal(t, map[string]float64{"a": 2}, accs[1].(*Counter).Aggregate().Map())
	})

	t.Run("Expect: a row the last accumulator rejects leaves the first untouched", func(t *testing.T) {
		accs := s.NewAccumulators()
		row := Row{Line: 7, Raw: "a", Names: []string{"key"}, Values: []Value{StringValue("a")}}

		err := addAll(accs, row)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 7")
		assert.Zero(t, accs[0].Len())
		assert.Zero(t, accs[1].Len())
	})
}
