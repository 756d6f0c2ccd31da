package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/thiago-r-goveia/recordkit/internal/formats"
	"github.com/thiago-r-goveia/recordkit/internal/parser"
)

var cutCmd = &cobra.Command{
	Use:   "cut [enzymes-file] [sequence]",
	Short: "Cut a DNA sequence once with every enzyme of a table",
	Long: `Prints name;fragment;fragment for every enzyme of the table whose
recognition site occurs in the sequence, in table order.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := scanFile("enzymes", args[0])
		if err != nil {
			return err
		}
		enzymes, err := formats.Enzymes(out)
		if err != nil {
			return err
		}
		return formats.WriteCutters(cmd.OutOrStdout(), enzymes, args[1])
	},
}

var (
	theoryWeight   float64
	practiceWeight float64
)

var gradesCmd = &cobra.Command{
	Use:   "grades [theory-file] [practice-file]",
	Short: "Combine theory and practice grades into final grades",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		theoryOut, err := scanFile("grades_theory", args[0])
		if err != nil {
			return err
		}
		practiceOut, err := scanFile("grades_practice", args[1])
		if err != nil {
			return err
		}
		theory, err := formats.Grades(theoryOut, "best")
		if err != nil {
			return err
		}
		practice, err := formats.Grades(practiceOut, "mean")
		if err != nil {
			return err
		}

		final := formats.FinalGrades(theory, practice, theoryWeight, practiceWeight)
		ids := make([]string, 0, len(final))
		for id := range final {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s;%.2f\n", id, final[id]); err != nil {
				return err
			}
		}
		return nil
	},
}

var refluxThreshold float64

var refluxCmd = &cobra.Command{
	Use:   "reflux [phmetry-file]",
	Short: "Percentage of acid pH readings per activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := scanFile("phmetry", args[0])
		if err != nil {
			return err
		}
		readings, err := formats.Readings(out)
		if err != nil {
			return err
		}
		freq := formats.RefluxFrequency(readings, refluxThreshold)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(freq.Entries())
	},
}

var mutationsCmd = &cobra.Command{
	Use:   "mutations [file...]",
	Short: "Mutation frequency report over one or more sample files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outs := make([]parser.Outcome, 0, len(args))
		for _, path := range args {
			out, err := scanFile("mutations", path)
			if err != nil {
				return err
			}
			outs = append(outs, out)
		}
		counts, err := formats.MutationCounts(outs...)
		if err != nil {
			return err
		}
		return formats.WriteMutationReport(cmd.OutOrStdout(), counts)
	},
}

func init() {
	gradesCmd.Flags().Float64Var(&theoryWeight, "theory-weight", 0.6, "Weight of the theory grade")
	gradesCmd.Flags().Float64Var(&practiceWeight, "practice-weight", 0.4, "Weight of the practice grade")
	refluxCmd.Flags().Float64Var(&refluxThreshold, "threshold", 4.0, "pH below which a reading counts as reflux")
}
