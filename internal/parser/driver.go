package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/thiago-r-goveia/recordkit/pkg/checksum"
)

// maxLineSize bounds a single line. Longer lines fail the whole resource.
const maxLineSize = 16 * 1024 * 1024

// OutcomeKind is the terminal state of a scan.
type OutcomeKind int

const (
	Success OutcomeKind = iota
	ResourceNotFound
	OtherFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case ResourceNotFound:
		return "not_found"
	default:
		return "other_failure"
	}
}

// Rejection is a line that was skipped.
type Rejection struct {
	Line   int    `json:"line"`
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
	Hash   string `json:"hash"`
}

// Outcome is the result of scanning one resource. Accumulators is only set
// when Kind is Success, so an empty aggregate is never confused with a
// failure.
type Outcome struct {
	Kind         OutcomeKind
	Source       string
	Schema       string
	Accumulators []Accumulator
	Rejections   []Rejection
	Lines        int
	Accepted     int
	Err          error

	codes FailureCodes
}

func (o Outcome) OK() bool {
	return o.Kind == Success
}

// Code maps the outcome to the numeric code of the format: zero on success,
// otherwise the not-found or other code declared by the schema.
func (o Outcome) Code() int {
	switch o.Kind {
	case Success:
		return 0
	case ResourceNotFound:
		return o.codes.NotFound
	default:
		return o.codes.Other
	}
}

// Accumulator returns the named accumulator of a successful scan.
func (o Outcome) Accumulator(name string) (Accumulator, bool) {
	for _, acc := range o.Accumulators {
		if acc.Name() == name {
			return acc, true
		}
	}
	return nil, false
}

// Driver runs a schema over whole resources, one line at a time.
type Driver struct {
	schema *Schema
	logger *zap.Logger
}

func NewDriver(schema *Schema, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{schema: schema, logger: logger.With(zap.String("schema", schema.Name))}
}

func (d *Driver) Schema() *Schema {
	return d.schema
}

// ScanFile opens path and scans it. The file is closed before returning.
func (d *Driver) ScanFile(path string) Outcome {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return d.fail(path, ResourceNotFound, fmt.Errorf("%w: %s", ErrNotFound, path))
		}
		return d.fail(path, OtherFailure, fmt.Errorf("failed to open file %s: %w", path, err))
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return d.fail(path, OtherFailure, fmt.Errorf("failed to stat file %s: %w", path, err))
	}
	if info.IsDir() {
		return d.fail(path, OtherFailure, fmt.Errorf("%s is a directory", path))
	}
	return d.Scan(path, file)
}

// Scan reads r until EOF. Lines failing the schema are skipped and recorded;
// a read error or text that is not UTF-8 fails the whole resource.
func (d *Driver) Scan(source string, r io.Reader) Outcome {
	s := d.schema
	out := Outcome{Kind: Success, Source: source, Schema: s.Name, codes: s.FailureCodes}
	accs := s.NewAccumulators()

	accept := func(row Row) {
		if err := addAll(accs, row); err != nil {
			d.reject(&out, row.Line, row.Raw, err)
			return
		}
		out.Accepted++
	}

	blocks := &blockState{schema: s}
	headerSkipped := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		out.Lines++
		line := scanner.Text()
		if out.Lines == 1 {
			line = strings.TrimPrefix(line, "\uFEFF")
		}
		line = strings.TrimRight(line, "\r")
		if !utf8.ValidString(line) {
			return d.fail(source, OtherFailure, fmt.Errorf("%w: line %d of %s is not valid UTF-8", ErrDecode, out.Lines, source))
		}

		if s.Layout == LayoutBlocks {
			if strings.HasPrefix(line, s.Marker) {
				d.flushBlock(&out, blocks, accept)
				blocks.start(out.Lines, line)
			} else if err := blocks.add(line); err != nil {
				d.reject(&out, out.Lines, line, err)
			}
			continue
		}

		if s.Filtered(line) {
			continue
		}
		if s.SkipHeader && !headerSkipped {
			headerSkipped = true
			continue
		}

		row, err := s.Parse(out.Lines, line)
		if err != nil {
			d.reject(&out, out.Lines, line, err)
			continue
		}
		accept(row)
	}
	if err := scanner.Err(); err != nil {
		return d.fail(source, OtherFailure, fmt.Errorf("%w: failed to read %s: %v", ErrDecode, source, err))
	}

	if s.Layout == LayoutBlocks {
		d.flushBlock(&out, blocks, accept)
	}

	out.Accumulators = accs
	d.logger.Debug("Scan finished",
		zap.String("source", source),
		zap.Int("lines", out.Lines),
		zap.Int("accepted", out.Accepted),
		zap.Int("rejected", len(out.Rejections)),
	)
	return out
}

func (d *Driver) reject(out *Outcome, lineNo int, raw string, err error) {
	out.Rejections = append(out.Rejections, Rejection{
		Line:   lineNo,
		Raw:    raw,
		Reason: err.Error(),
		Hash:   checksum.CalculateHash(raw),
	})
	d.logger.Debug("Skipping line", zap.String("source", out.Source), zap.Int("line", lineNo), zap.Error(err))
}

func (d *Driver) fail(source string, kind OutcomeKind, err error) Outcome {
	d.logger.Warn("Scan failed", zap.String("source", source), zap.Stringer("outcome", kind), zap.Error(err))
	return Outcome{Kind: kind, Source: source, Schema: d.schema.Name, Err: err, codes: d.schema.FailureCodes}
}

func (d *Driver) flushBlock(out *Outcome, b *blockState, accept func(Row)) {
	line, raw := b.headerLine, b.headerRaw
	row, ok, err := b.flush()
	if err != nil {
		d.reject(out, line, raw, err)
		return
	}
	if ok {
		accept(row)
	}
}

// blockState groups a marker line and the lines after it into one record.
type blockState struct {
	schema     *Schema
	open       bool
	header     string
	headerRaw  string
	headerLine int
	body       strings.Builder
}

func (b *blockState) start(lineNo int, line string) {
	b.open = true
	b.header = strings.TrimPrefix(line, b.schema.Marker)
	b.headerRaw = line
	b.headerLine = lineNo
	b.body.Reset()
}

func (b *blockState) add(line string) error {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || (b.schema.Comment != "" && strings.HasPrefix(trimmed, b.schema.Comment)) {
		return nil
	}
	if !b.open {
		return fmt.Errorf("%w: line outside of a block", ErrRejected)
	}
	b.body.WriteString(trimmed)
	return nil
}

func (b *blockState) flush() (Row, bool, error) {
	if !b.open {
		return Row{}, false, nil
	}
	header, body := strings.TrimSpace(b.header), b.body.String()
	b.open = false
	b.body.Reset()

	if header == "" || body == "" {
		return Row{}, false, fmt.Errorf("%w: block without header or body", ErrRejected)
	}
	row, err := b.schema.ParseFields(b.headerLine, b.headerRaw, []string{header, body})
	if err != nil {
		return Row{}, false, err
	}
	return row, true, nil
}

// addAll hands row to every accumulator, or to none of them when any would
// reject it.
func addAll(accs []Accumulator, row Row) error {
	for _, acc := range accs {
		if err := acc.Check(row); err != nil {
			return err
		}
	}
	for _, acc := range accs {
		if err := acc.Add(row); err != nil {
			return err
		}
	}
	return nil
}
