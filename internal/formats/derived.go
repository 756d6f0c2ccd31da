package formats

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/thiago-r-goveia/recordkit/internal/parser"
)

var ErrMissingAccumulator = errors.New("missing accumulator")

func accumulatorOf[T parser.Accumulator](out parser.Outcome, name string) (T, error) {
	var zero T
	if !out.OK() {
		return zero, fmt.Errorf("%s: %s: %w", out.Source, out.Kind, out.Err)
	}
	acc, ok := out.Accumulator(name)
	if !ok {
		return zero, fmt.Errorf("%w: format %s has no %q", ErrMissingAccumulator, out.Schema, name)
	}
	typed, ok := acc.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q of format %s is a %s accumulator", ErrMissingAccumulator, name, out.Schema, acc.Strategy())
	}
	return typed, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// Enzyme is a restriction enzyme. Cut is the offset of the cut from the
// start of Site.
type Enzyme struct {
	Name string `json:"name"`
	Site string `json:"site"`
	Cut  int    `json:"cut"`
}

// Enzymes returns the enzyme table of an enzymes scan in file order.
func Enzymes(out parser.Outcome) ([]Enzyme, error) {
	index, err := accumulatorOf[*parser.Indexer](out, "enzymes")
	if err != nil {
		return nil, err
	}
	agg := index.Aggregate()
	enzymes := make([]Enzyme, 0, agg.Len())
	for _, name := range agg.Keys() {
		tuple, _ := agg.Get(name)
		enzymes = append(enzymes, Enzyme{Name: name, Site: tuple[0].Str, Cut: int(tuple[1].Num)})
	}
	return enzymes, nil
}

// CutOnce cuts seq at the first occurrence of the enzyme site. It returns
// seq alone when the site does not occur.
func CutOnce(e Enzyme, seq string) []string {
	idx := strings.Index(seq, e.Site)
	if idx < 0 {
		return []string{seq}
	}
	at := min(max(idx+e.Cut, 0), len(seq))
	return []string{seq[:at], seq[at:]}
}

// WriteCutters writes name;fragment;fragment for every enzyme that cuts seq.
func WriteCutters(w io.Writer, enzymes []Enzyme, seq string) error {
	bw := bufio.NewWriter(w)
	for _, e := range enzymes {
		fragments := CutOnce(e, seq)
		if len(fragments) != 2 {
			continue
		}
		if _, err := fmt.Fprintf(bw, "%s;%s;%s\n", e.Name, fragments[0], fragments[1]); err != nil {
			return fmt.Errorf("failed to write cutter %s: %w", e.Name, err)
		}
	}
	return bw.Flush()
}

// MutationCounts returns how many samples carry each mutation, summed over
// every outcome.
func MutationCounts(outs ...parser.Outcome) (map[string]int, error) {
	total := parser.NewCounter(parser.AccumulatorSpec{Name: "frequency", Strategy: parser.StrategyCount})
	for _, out := range outs {
		counter, err := accumulatorOf[*parser.Counter](out, "frequency")
		if err != nil {
			return nil, err
		}
		total.Merge(counter)
	}
	counts := make(map[string]int, total.Len())
	for k, v := range total.Aggregate().Map() {
		counts[k] = int(v)
	}
	return counts, nil
}

// WriteMutationReport writes one line per distinct frequency, highest first,
// listing the mutations with that frequency in alphabetical order.
func WriteMutationReport(w io.Writer, counts map[string]int) error {
	agg := parser.NewAggregate[int]()
	for name, freq := range counts {
		agg.Set(name, freq)
	}
	agg.SortKeys(func(ka string, va int, kb string, vb int) bool {
		if va != vb {
			return va > vb
		}
		return ka < kb
	})

	bw := bufio.NewWriter(w)
	keys := agg.Keys()
	var names []string
	for i, name := range keys {
		freq, _ := agg.Get(name)
		names = append(names, name)
		if i+1 < len(keys) {
			if next, _ := agg.Get(keys[i+1]); next == freq {
				continue
			}
		}
		if _, err := fmt.Fprintf(bw, "%s:%d\n", strings.Join(names, ","), freq); err != nil {
			return fmt.Errorf("failed to write mutation report: %w", err)
		}
		names = names[:0]
	}
	return bw.Flush()
}

type Reading struct {
	PH       float64  `json:"ph"`
	Symptoms []string `json:"symptoms"`
}

// Readings groups pH readings by activity in order of first appearance.
func Readings(out parser.Outcome) (*parser.Aggregate[[]Reading], error) {
	collector, err := accumulatorOf[*parser.Collector](out, "readings")
	if err != nil {
		return nil, err
	}
	src := collector.Aggregate()
	readings := parser.NewAggregate[[]Reading]()
	for _, activity := range src.Keys() {
		tuples, _ := src.Get(activity)
		list := make([]Reading, 0, len(tuples))
		for _, t := range tuples {
			list = append(list, Reading{PH: t[0].Num, Symptoms: t[1].List})
		}
		readings.Set(activity, list)
	}
	return readings, nil
}

// RefluxFrequency returns, per activity, the percentage of readings with a pH
// strictly below threshold.
func RefluxFrequency(readings *parser.Aggregate[[]Reading], threshold float64) *parser.Aggregate[float64] {
	freq := parser.NewAggregate[float64]()
	for _, activity := range readings.Keys() {
		list, _ := readings.Get(activity)
		if len(list) == 0 {
			freq.Set(activity, 0)
			continue
		}
		below := 0
		for _, r := range list {
			if r.PH < threshold {
				below++
			}
		}
		freq.Set(activity, round2(float64(below)/float64(len(list))*100))
	}
	return freq
}

// Grades returns the per student grade held by the max or topk_mean
// accumulator called name.
func Grades(out parser.Outcome, name string) (map[string]float64, error) {
	if !out.OK() {
		return nil, fmt.Errorf("%s: %s: %w", out.Source, out.Kind, out.Err)
	}
	acc, ok := out.Accumulator(name)
	if !ok {
		return nil, fmt.Errorf("%w: format %s has no %q", ErrMissingAccumulator, out.Schema, name)
	}
	grades := make(map[string]float64, acc.Len())
	for _, e := range acc.Entries() {
		v, ok := e.Value.(float64)
		if !ok {
			return nil, fmt.Errorf("%q of format %s does not hold grades", name, out.Schema)
		}
		grades[e.Key] = v
	}
	return grades, nil
}

// FinalGrades weights theory and practice grades for every student present
// in either map. A missing grade counts as zero.
func FinalGrades(theory, practice map[string]float64, wTheory, wPractice float64) map[string]float64 {
	final := make(map[string]float64, max(len(theory), len(practice)))
	for id, t := range theory {
		final[id] = round2(t*wTheory + practice[id]*wPractice)
	}
	for id, p := range practice {
		if _, ok := theory[id]; !ok {
			final[id] = round2(p * wPractice)
		}
	}
	return final
}

type Sequence struct {
	Header   string `json:"header"`
	Residues string `json:"residues"`
}

// Sequences returns the FASTA records of a scan in file order. Records that
// share a header are all kept and follow the first one with that header.
func Sequences(out parser.Outcome) ([]Sequence, error) {
	collector, err := accumulatorOf[*parser.Collector](out, "sequences")
	if err != nil {
		return nil, err
	}
	agg := collector.Aggregate()
	seqs := make([]Sequence, 0, agg.Len())
	for _, header := range agg.Keys() {
		tuples, _ := agg.Get(header)
		for _, tuple := range tuples {
			seqs = append(seqs, Sequence{Header: header, Residues: tuple[0].Str})
		}
	}
	return seqs, nil
}

// GCContent is the fraction of G and C bases of seq, rounded to 2 decimals.
func GCContent(seq string) float64 {
	if seq == "" {
		return 0
	}
	gc := 0
	for _, r := range strings.ToUpper(seq) {
		if r == 'G' || r == 'C' {
			gc++
		}
	}
	return round2(float64(gc) / float64(len(seq)))
}

// WriteGCReport writes each header followed by its GC content.
func WriteGCReport(w io.Writer, seqs []Sequence) error {
	bw := bufio.NewWriter(w)
	for _, s := range seqs {
		if _, err := fmt.Fprintf(bw, ">%s\n%s\n", s.Header, strconv.FormatFloat(GCContent(s.Residues), 'f', -1, 64)); err != nil {
			return fmt.Errorf("failed to write gc report: %w", err)
		}
	}
	return bw.Flush()
}

// ResidueCounts returns how many ATOM records each residue has.
func ResidueCounts(out parser.Outcome) (map[string]int, error) {
	counter, err := accumulatorOf[*parser.Counter](out, "residues")
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, counter.Len())
	for k, v := range counter.Aggregate().Map() {
		counts[k] = int(v)
	}
	return counts, nil
}

type LogSummary struct {
	Counts map[string]int `json:"counts"`
	Errors []string       `json:"errors"`
	Start  string         `json:"start,omitempty"`
	End    string         `json:"end,omitempty"`
}

// SummarizeLogs gathers the level counts, the ERROR messages and the time
// span of the valid lines of a logs scan.
func SummarizeLogs(out parser.Outcome) (LogSummary, error) {
	levels, err := accumulatorOf[*parser.Counter](out, "levels")
	if err != nil {
		return LogSummary{}, err
	}
	errs, err := accumulatorOf[*parser.Collector](out, "errors")
	if err != nil {
		return LogSummary{}, err
	}
	span, err := accumulatorOf[*parser.FirstLast](out, "span")
	if err != nil {
		return LogSummary{}, err
	}

	summary := LogSummary{Counts: make(map[string]int, levels.Len()), Errors: []string{}}
	for k, v := range levels.Aggregate().Map() {
		summary.Counts[k] = int(v)
	}
	if tuples, ok := errs.Aggregate().Get("ERROR"); ok {
		for _, t := range tuples {
			summary.Errors = append(summary.Errors, t[0].Str)
		}
	}
	if first, last, ok := span.Bounds(); ok {
		summary.Start, summary.End = first.Str, last.Str
	}
	return summary, nil
}
