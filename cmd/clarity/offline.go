package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clarity-bi/clarity/dataset"
	"github.com/clarity-bi/clarity/engine"
	"github.com/clarity-bi/clarity/schema"
	"github.com/clarity-bi/clarity/session"
)

// ============================================================================
// INPUT
// ============================================================================

// inputFlags names the data to load: one workbook, or a Sales/Claims CSV pair.
type inputFlags struct {
	file    string
	sales   string
	claims  string
	filters map[string]string
}

func (in *inputFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&in.file, "file", "", "Workbook (.xlsx/.xls) with Sales and Claims sheets")
	f.StringVar(&in.sales, "sales", "", "Sales CSV (with --claims)")
	f.StringVar(&in.claims, "claims", "", "Claims CSV (with --sales)")
	cmd.MarkFlagsMutuallyExclusive("file", "sales")
	cmd.MarkFlagsMutuallyExclusive("file", "claims")
	cmd.MarkFlagsRequiredTogether("sales", "claims")
}

func (in *inputFlags) registerFilters(cmd *cobra.Command) {
	cmd.Flags().StringToStringVar(&in.filters, "filter", nil,
		"Filter as key=value, repeatable (keys: "+strings.Join(engine.KnownKeys, ", ")+")")
}

func (in *inputFlags) empty() bool {
	return in.file == "" && in.sales == "" && in.claims == ""
}

func (in *inputFlags) load(ctx context.Context, sess *session.Session) (*session.IngestSummary, error) {
	switch {
	case in.file != "":
		data, err := os.ReadFile(in.file)
		if err != nil {
			return nil, withCode(exitUsage, fmt.Errorf("read file: %w", err))
		}
		sum, err := sess.Ingest(ctx, data, dataset.FormatFromFilename(in.file), dataset.WithSource(filepath.Base(in.file)))
		return sum, withCode(exitData, err)
	case in.sales != "" && in.claims != "":
		sales, err := os.ReadFile(in.sales)
		if err != nil {
			return nil, withCode(exitUsage, fmt.Errorf("read sales: %w", err))
		}
		claims, err := os.ReadFile(in.claims)
		if err != nil {
			return nil, withCode(exitUsage, fmt.Errorf("read claims: %w", err))
		}
		source := filepath.Base(in.sales) + "+" + filepath.Base(in.claims)
		sum, err := sess.IngestCSV(ctx, sales, claims, dataset.WithSource(source))
		return sum, withCode(exitData, err)
	}
	return nil, withCode(exitUsage, fmt.Errorf("--file or --sales with --claims is required"))
}

// loaded builds a session holding the input data and returns the filter the
// command should compute with: the post-load window merged with --filter.
func (a *app) loaded(ctx context.Context, in *inputFlags) (*session.Session, engine.FilterState, error) {
	sess := a.newSession()
	if _, err := in.load(ctx, sess); err != nil {
		return nil, engine.FilterState{}, err
	}
	return sess, sess.Filters().Applied().Merge(in.filters), nil
}

// ============================================================================
// OUTPUT
// ============================================================================

type outputFlags struct {
	format  string
	out     string
	allowed []string
}

func (o *outputFlags) register(cmd *cobra.Command, def string, allowed ...string) {
	o.allowed = allowed
	cmd.Flags().StringVar(&o.format, "format", def, "Output format: "+strings.Join(allowed, ", "))
	cmd.Flags().StringVarP(&o.out, "out", "o", "", "Write output to file instead of stdout")
}

func (o *outputFlags) validate() error {
	if !slices.Contains(o.allowed, o.format) {
		return withCode(exitUsage, fmt.Errorf("unsupported --format %q (want %s)", o.format, strings.Join(o.allowed, ", ")))
	}
	return nil
}

// write sends data to --out or the command's stdout.
func (o *outputFlags) write(cmd *cobra.Command, data []byte) error {
	if o.out == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(o.out, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Written to %s\n", o.out)
	return nil
}

func (o *outputFlags) writeJSON(cmd *cobra.Command, v any) error {
	var (
		out []byte
		err error
	)
	if o.format == "pretty" {
		out, err = json.MarshalIndent(v, "", "  ")
	} else {
		out, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	return o.write(cmd, append(out, '\n'))
}

func (o *outputFlags) writeText(cmd *cobra.Command, text string) error {
	return o.write(cmd, []byte(strings.TrimRight(text, "\n")+"\n"))
}

// ============================================================================
// COMMANDS
// ============================================================================

func newSummaryCmd(a *app) *cobra.Command {
	var (
		in  inputFlags
		out outputFlags
	)
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the KPIs of a workbook",
		Long: `Print the KPIs of a workbook.

The text format is the full data summary handed to the assistant: KPIs,
monthly series, top dealers and makes, claim statuses and filter values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := out.validate(); err != nil {
				return err
			}
			sess, filter, err := a.loaded(cmd.Context(), &in)
			if err != nil {
				return err
			}
			if out.format == "text" {
				text, err := sess.DataSummary(filter)
				if err != nil {
					return err
				}
				return out.writeText(cmd, text)
			}
			res, err := sess.Compute(filter)
			if err != nil {
				return err
			}
			return out.writeJSON(cmd, struct {
				Filters engine.FilterState `json:"filters"`
				KPIs    engine.KPISnapshot `json:"kpis"`
				Budget  engine.Budget      `json:"budget"`
			}{res.Filters, res.KPIs, engine.BudgetVsAchieved(res.KPIs)})
		},
	}
	in.register(cmd)
	in.registerFilters(cmd)
	out.register(cmd, "text", "text", "json", "pretty")
	return cmd
}

func newDiscoverCmd(a *app) *cobra.Command {
	var (
		in     inputFlags
		out    outputFlags
		single string
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Print the detected columns and filter values",
		Long: `Print the detected columns and filter values.

With --csv a single CSV is classified on its own (types, roles and
cardinality per column) without loading a Sales/Claims pair.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := out.validate(); err != nil {
				return err
			}
			if single != "" {
				table, err := a.discoverCSV(single)
				if err != nil {
					return err
				}
				return out.writeJSON(cmd, table)
			}
			sum, err := in.load(cmd.Context(), a.newSession())
			if err != nil {
				return err
			}
			return out.writeJSON(cmd, sum)
		},
	}
	in.register(cmd)
	cmd.Flags().StringVar(&single, "csv", "", "Classify the columns of one CSV file")
	cmd.MarkFlagsMutuallyExclusive("csv", "file")
	cmd.MarkFlagsMutuallyExclusive("csv", "sales")
	out.register(cmd, "pretty", "json", "pretty")
	return cmd
}

// discoverCSV infers the schema of one CSV, named after the file.
func (a *app) discoverCSV(path string) (*schema.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("read csv: %w", err))
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	table, err := schema.DiscoverFromCSV(name, data, schema.InferOptions{SampleSize: a.cfg.Data.SampleSize})
	return table, withCode(exitData, err)
}

func newPredictCmd(a *app) *cobra.Command {
	var (
		in  inputFlags
		out outputFlags
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Forecast the monthly loss ratio",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := out.validate(); err != nil {
				return err
			}
			sess, filter, err := a.loaded(cmd.Context(), &in)
			if err != nil {
				return err
			}
			p, err := sess.Predict(filter)
			if err != nil {
				return withCode(exitData, err)
			}
			if out.format != "text" {
				return out.writeJSON(cmd, p)
			}
			var b strings.Builder
			fmt.Fprintf(&b, "Loss ratio trend: %s (slope %.4f, R² %.4f)\n", p.Direction, p.HistoricalSlope, p.RSquared)
			for _, f := range p.Forecast {
				fmt.Fprintf(&b, "%s  %6.2f%%  %s\n", f.Period, f.PredictedLossRatio, f.Trend)
			}
			return out.writeText(cmd, b.String())
		},
	}
	in.register(cmd)
	in.registerFilters(cmd)
	out.register(cmd, "text", "text", "json", "pretty")
	return cmd
}

func newReportCmd(a *app) *cobra.Command {
	var (
		in  inputFlags
		out outputFlags
	)
	cmd := &cobra.Command{
		Use:       "report <section>",
		Short:     "Render one dashboard section as a table",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: engine.ReportSections(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := out.validate(); err != nil {
				return err
			}
			sess, filter, err := a.loaded(cmd.Context(), &in)
			if err != nil {
				return err
			}
			res, err := sess.Compute(filter)
			if err != nil {
				return err
			}
			td, ok := engine.ReportTable(res, args[0])
			if !ok {
				return withCode(exitUsage, fmt.Errorf("unknown report section %q", args[0]))
			}

			var data []byte
			switch out.format {
			case "csv":
				data, err = td.CSV()
			case "xlsx":
				data, err = td.XLSX()
			default:
				return out.writeJSON(cmd, td)
			}
			if err != nil {
				return err
			}
			return out.write(cmd, data)
		},
	}
	in.register(cmd)
	in.registerFilters(cmd)
	out.register(cmd, "csv", "csv", "xlsx", "json", "pretty")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var (
		in  inputFlags
		out outputFlags
	)
	cmd := &cobra.Command{
		Use:       "export <sales|claims>",
		Short:     "Export a table with its cleaned types",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(dataset.Sales), string(dataset.Claims)},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := out.validate(); err != nil {
				return err
			}
			if out.format == "xlsx" && out.out == "" {
				return withCode(exitUsage, fmt.Errorf("--out is required for xlsx"))
			}
			sess := a.newSession()
			if _, err := in.load(cmd.Context(), sess); err != nil {
				return err
			}
			table, err := dataset.ParseTableName(args[0])
			if err != nil {
				return withCode(exitUsage, err)
			}
			data, err := sess.Export(table, out.format)
			if err != nil {
				return err
			}
			return out.write(cmd, data)
		},
	}
	in.register(cmd)
	out.register(cmd, "csv", "csv", "xlsx")
	return cmd
}
