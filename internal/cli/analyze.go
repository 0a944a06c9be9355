package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"

	"github.com/tobert/chainscope/internal/ingest"
	"github.com/tobert/chainscope/internal/otlpexport"
	"github.com/tobert/chainscope/internal/storage"
	"github.com/tobert/chainscope/internal/viz"
)

// Terminal styles for the analyze report.
var styles = struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2CD7C7")),
	Label:   lipgloss.NewStyle().Foreground(lipgloss.Color("#20B9B4")),
	Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7A80")),
	Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("#F4D03F")),
	Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("#E74C3C")),
}

// AnalyzeCommand returns the CLI command definition for the 'analyze' subcommand.
// It analyzes one report file and prints the result without starting a server.
func AnalyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Analyze the critical request chains of one Lighthouse report",
		ArgsUsage: "<report.json>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the analysis as JSON",
			},
			&cli.IntFlag{
				Name:  "width",
				Usage: "Waterfall width in columns",
				Value: 100,
			},
			&cli.StringFlag{
				Name:  "label",
				Usage: "Label recorded on the run",
			},
			&cli.StringFlag{
				Name:  "otlp-jsonl",
				Usage: "Also write the chains as OTLP spans (JSON lines) to this file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one report file, got %d", cmd.Args().Len())
			}
			return runAnalyze(ctx, os.Stdout, analyzeOptions{
				Path:      cmd.Args().First(),
				JSON:      cmd.Bool("json"),
				Width:     cmd.Int("width"),
				Label:     cmd.String("label"),
				OTLPJSONL: cmd.String("otlp-jsonl"),
			})
		},
	}
}

type analyzeOptions struct {
	Path      string
	JSON      bool
	Width     int
	Label     string
	OTLPJSONL string
}

func runAnalyze(ctx context.Context, w io.Writer, opts analyzeOptions) error {
	ing, err := ingest.New(storage.NewRunStore(1, nil), false)
	if err != nil {
		return err
	}
	run, _, err := ing.IngestFile(ctx, opts.Path, opts.Label)
	if err != nil {
		return err
	}

	if opts.OTLPJSONL != "" {
		if err := writeSpansFile(opts.OTLPJSONL, run); err != nil {
			return err
		}
	}

	if opts.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}

	fmt.Fprintln(w, styles.Title.Render("Critical request chains: "+run.URL))
	if run.LighthouseVersion != "" {
		fmt.Fprintln(w, styles.Muted.Render("Lighthouse "+run.LighthouseVersion+", fetched "+run.FetchTime.Format("2006-01-02 15:04:05")))
	}
	if run.Label != "" {
		fmt.Fprintln(w, styles.Label.Render("Label: "+run.Label))
	}
	if run.RuntimeError != "" {
		fmt.Fprintln(w, styles.Error.Render("Runtime error: "+run.RuntimeError))
	}
	fmt.Fprintln(w)

	if run.Analysis == nil {
		fmt.Fprintln(w, styles.Warning.Render("No critical request chains in this report."))
		return nil
	}

	fmt.Fprint(w, viz.AnalysisReport(run.Analysis, max(opts.Width, 40)))
	return nil
}

// writeSpansFile writes run's chains as one OTLP JSON line. A report without
// chains leaves the file untouched.
func writeSpansFile(path string, run *storage.Run) error {
	rs, err := otlpexport.BuildResourceSpans(run)
	if errors.Is(err, otlpexport.ErrNoChains) {
		return nil
	}
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := otlpexport.WriteJSONL(f, rs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
