package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const keyedSumYAML = `
name: keyed_sum
separator: ";"
fields:
  - name: key
  - name: value
    kind: float
accumulate:
  - name: totals
    strategy: count
    key: key
    weight: value
failure_codes:
  not_found: -1
  other: -2
`

const theoryYAML = `
name: grades_theory
separator: ";"
fields:
  - name: id
    required: true
tail:
  name: grade
  kind: float
  default: "0"
  mode: tolerant
tail_pad: 2
accumulate:
  - name: best
    strategy: max
    key: id
failure_codes:
  not_found: -1
  other: -1
`

func mustSchema(t *testing.T, doc string) *Schema {
	t.Helper()
	s, err := ParseSchema([]byte(doc))
	require.NoError(t, err)
	return s
}

func TestParseSchema(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s := mustSchema(t, keyedSumYAML)
		assert.Equal(t, LayoutDelimited, s.Layout)
		assert.Equal(t, Strict, s.Fields[0].Mode)
		assert.Equal(t, KindString, s.Fields[0].Kind)
		assert.Equal(t, -2, s.FailureCodes.Other)
	})

	invalid := map[string]string{
		"missing name":        "separator: ';'\nfields: [{name: a}]",
		"no fields":           "name: x\nseparator: ';'",
		"no separator":        "name: x\nfields: [{name: a}]",
		"unknown layout":      "name: x\nlayout: xml\nfields: [{name: a}]",
		"duplicated field":    "name: x\nseparator: ';'\nfields: [{name: a}, {name: a}]",
		"unknown strategy":    "name: x\nseparator: ';'\nfields: [{name: a}]\naccumulate: [{strategy: median, key: a}]",
		"unknown key":         "name: x\nseparator: ';'\nfields: [{name: a}]\naccumulate: [{strategy: count, key: b}]",
		"string weight":       "name: x\nseparator: ';'\nfields: [{name: a}, {name: b}]\naccumulate: [{strategy: count, key: a, weight: b}]",
		"max without numbers": "name: x\nseparator: ';'\nfields: [{name: a}]\naccumulate: [{strategy: max, key: a}]",
		"topk without k":      "name: x\nseparator: ';'\nfields: [{name: a}]\ntail: {kind: float}\naccumulate: [{strategy: topk_mean, key: a}]",
		"bad column":          "name: x\nlayout: columns\nfields: [{name: a, start: 5, end: 2}]",
		"blocks arity":        "name: x\nlayout: blocks\nfields: [{name: a}]",
		"max_split too small": "name: x\nseparator: ';'\nmax_split: 1\nfields: [{name: a}, {name: b}]",
		"not yaml":            "name: [",
	}
	for name, doc := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSchema([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keyed_sum.yaml")
	require.NoError(t, os.WriteFile(path, []byte(keyedSumYAML), 0644))

	s, err := LoadSchema(path)
	require.NoError(t, err)
	assert.Equal(t, "keyed_sum", s.Name)

	_, err = LoadSchema(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestSchema_Parse(t *testing.T) {
	t.Run("exact arity", func(t *testing.T) {
		s := mustSchema(t, keyedSumYAML)

		row, err := s.Parse(1, "a;1")
		require.NoError(t, err)
		v, ok := row.Get("value")
		require.True(t, ok)
		assert.Equal(t, 1.0, v.Num)

		_, err = s.Parse(2, "a;1;2")
		assert.ErrorIs(t, err, ErrRejected)
		_, err = s.Parse(3, "a")
		assert.ErrorIs(t, err, ErrRejected)
		_, err = s.Parse(4, "a;x")
		assert.ErrorIs(t, err, ErrRejected)
	})

	t.Run("tail with empty values and padding", func(t *testing.T) {
		s := mustSchema(t, theoryYAML)

		row, err := s.Parse(1, "22222222M;;")
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0}, row.TailFloats())

		row, err = s.Parse(2, "33333333P")
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0}, row.TailFloats())

		row, err = s.Parse(3, "11111111H;3;7;5")
		require.NoError(t, err)
		assert.Equal(t, []float64{3, 7, 5}, row.TailFloats())

		_, err = s.Parse(4, ";3;7")
		assert.ErrorIs(t, err, ErrRejected)
	})

	t.Run("skip empty tail values", func(t *testing.T) {
		s := mustSchema(t, "name: p\nseparator: ';'\nfields: [{name: id}]\ntail: {kind: float}\nskip_empty: true")
		row, err := s.Parse(1, "11111111H;;8;;6")
		require.NoError(t, err)
		assert.Equal(t, []float64{8, 6}, row.TailFloats())

		_, err = s.Parse(2, "11111111H;x")
		assert.ErrorIs(t, err, ErrRejected)
	})

	t.Run("columns", func(t *testing.T) {
		s := mustSchema(t, "name: pdb\nlayout: columns\nprefix: ATOM\nfields: [{name: residue, start: 17, end: 20, required: true}]")
		row, err := s.Parse(1, "ATOM      1  N   HIS A   1")
		require.NoError(t, err)
		assert.Equal(t, "HIS", row.Values[0].Str)

		_, err = s.Parse(2, "ATOM      1")
		assert.ErrorIs(t, err, ErrRejected)
	})
}

func TestSchema_Filtered(t *testing.T) {
	s := mustSchema(t, "name: pdb\nlayout: columns\nprefix: ATOM\ncomment: '#'\nfields: [{name: residue, start: 17, end: 20}]")
	assert.True(t, s.Filtered(""))
	assert.True(t, s.Filtered("   "))
	assert.True(t, s.Filtered("# ATOM"))
	assert.True(t, s.Filtered("HETATM    1  O   HOH"))
	assert.False(t, s.Filtered("ATOM      1  N   HIS"))
}
