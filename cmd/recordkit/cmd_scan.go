package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/thiago-r-goveia/recordkit/internal/formats"
	"github.com/thiago-r-goveia/recordkit/internal/parser"
)

var (
	scanFormat string
	scanOut    string
)

var scanCmd = &cobra.Command{
	Use:   "scan [file]",
	Short: "Scan one file and print its outcome as JSON",
	Long: `Scans a single file with the format given by --format, or the format whose
match pattern accepts the file name. With --out the derived report of the
format is written to the given path ("-" for stdout).`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Format name (default: matched from the file name)")
	scanCmd.Flags().StringVarP(&scanOut, "out", "o", "", "Write the derived report of the format to this path")
}

// scanResult is the JSON view of an outcome.
type scanResult struct {
	Source     string                    `json:"source"`
	Format     string                    `json:"format"`
	Kind       string                    `json:"kind"`
	Code       int                       `json:"code"`
	Error      string                    `json:"error,omitempty"`
	Lines      int                       `json:"lines"`
	Accepted   int                       `json:"accepted"`
	Rejections []parser.Rejection        `json:"rejections"`
	Aggregates map[string][]parser.Entry `json:"aggregates,omitempty"`
}

func newScanResult(out parser.Outcome) scanResult {
	res := scanResult{
		Source:     out.Source,
		Format:     out.Schema,
		Kind:       out.Kind.String(),
		Code:       out.Code(),
		Lines:      out.Lines,
		Accepted:   out.Accepted,
		Rejections: out.Rejections,
	}
	if res.Rejections == nil {
		res.Rejections = []parser.Rejection{}
	}
	if out.Err != nil {
		res.Error = out.Err.Error()
	}
	if out.OK() {
		res.Aggregates = make(map[string][]parser.Entry, len(out.Accumulators))
		for _, acc := range out.Accumulators {
			res.Aggregates[acc.Name()] = acc.Entries()
		}
	}
	return res
}

func resolveSchema(registry *formats.Registry, name, path string) (*parser.Schema, error) {
	if name != "" {
		return registry.Get(name)
	}
	schema, ok := registry.Match(path)
	if !ok {
		return nil, fmt.Errorf("no format matches %s, use --format", path)
	}
	return schema, nil
}

func scanFile(formatName, path string) (parser.Outcome, error) {
	registry, err := loadRegistry()
	if err != nil {
		return parser.Outcome{}, err
	}
	schema, err := resolveSchema(registry, formatName, path)
	if err != nil {
		return parser.Outcome{}, err
	}
	return parser.NewDriver(schema, logger).ScanFile(path), nil
}

func runScan(cmd *cobra.Command, args []string) error {
	out, err := scanFile(scanFormat, args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(newScanResult(out)); err != nil {
		return err
	}
	if !out.OK() {
		return fmt.Errorf("scan of %s failed with code %d: %w", out.Source, out.Code(), out.Err)
	}

	if scanOut == "" {
		return nil
	}
	if scanOut == "-" {
		return writeReport(cmd.OutOrStdout(), out)
	}
	f, err := os.Create(scanOut)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := writeReport(f, out); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

var errNoReport = errors.New("format has no derived report")

// writeReport writes the derived report of the scanned format.
func writeReport(w io.Writer, out parser.Outcome) error {
	switch out.Schema {
	case "mutations":
		counts, err := formats.MutationCounts(out)
		if err != nil {
			return err
		}
		return formats.WriteMutationReport(w, counts)
	case "fasta":
		seqs, err := formats.Sequences(out)
		if err != nil {
			return err
		}
		return formats.WriteGCReport(w, seqs)
	case "logs":
		summary, err := formats.SummarizeLogs(out)
		if err != nil {
			return err
		}
		return json.NewEncoder(w).Encode(summary)
	case "pdb_residues":
		counts, err := formats.ResidueCounts(out)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, err := fmt.Fprintf(w, "%s:%d\n", name, counts[name]); err != nil {
				return err
			}
		}
		return nil
	case "enzymes":
		enzymes, err := formats.Enzymes(out)
		if err != nil {
			return err
		}
		for _, e := range enzymes {
			if _, err := fmt.Fprintf(w, "%s;%s;%d\n", e.Name, e.Site, e.Cut); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %s", errNoReport, out.Schema)
}
