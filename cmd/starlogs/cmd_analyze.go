package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/starlogs/starlogs/internal/analyzer"
	"github.com/starlogs/starlogs/internal/api"
	"github.com/starlogs/starlogs/internal/config"
	"github.com/starlogs/starlogs/internal/storage/memory"
)

var (
	analyzeExportDir   string
	analyzeCompression string
	analyzeJSON        bool
	analyzeUpload      bool
)

func init() {
	analyzeCmd.Flags().StringVar(&analyzeExportDir, "export", "", "write the session report to this directory")
	analyzeCmd.Flags().StringVar(&analyzeCompression, "compression", "gzip", "report compression: none, gzip or zstd")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the full report as JSON")
	analyzeCmd.Flags().BoolVar(&analyzeUpload, "upload", false, "upload the exported report to api.serverUrl")
	rootCmd.AddCommand(analyzeCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <path>",
	Short: "Replay a finished log and summarize it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		compression, err := memory.ParseCompression(analyzeCompression)
		if err != nil {
			return err
		}
		if analyzeUpload && analyzeExportDir == "" {
			return errors.New("--upload needs --export")
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		zl := a.Zerolog("dispatcher")
		report, err := analyzer.Analyze(cmd.Context(), args[0], analyzer.Options{
			Engine:      config.GetEngineConfig(),
			Tailer:      config.GetTailerConfig(),
			Logger:      a.Logger,
			DispatchLog: &zl,
		})
		if err != nil {
			return fmt.Errorf("analyze %s: %w", args[0], err)
		}

		if analyzeExportDir != "" {
			path, err := analyzer.Export(report, analyzeExportDir, compression)
			if err != nil {
				return fmt.Errorf("export report: %w", err)
			}
			a.Logger.Info("Report exported", "path", path)
			if analyzeUpload {
				uploadReport(cmd.Context(), a, path, api.MetadataFor(report.Session, len(report.Events), ""))
			}
		}

		if analyzeJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		return printSummary(report)
	},
}

func printSummary(r *analyzer.Report) error {
	c := r.Counters
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "FILE\t%s (%d bytes)\n", r.FileName, r.SizeBytes)
	fmt.Fprintf(w, "LINES\t%d (%d unrecognized)\n", c.TotalLines, c.UnrecognizedLines)
	fmt.Fprintf(w, "EVENTS\t%d\n", c.Events)
	fmt.Fprintln(w)
	for _, row := range []struct {
		name string
		n    int
	}{
		{"PvE kills", c.PveKills},
		{"PvP kills", c.PvpKills},
		{"NPC kills", c.NpcKills},
		{"Deaths", c.Deaths},
		{"FPS PvE kills", c.FpsPveKills},
		{"FPS PvP kills", c.FpsPvpKills},
		{"FPS deaths", c.FpsDeaths},
		{"Suicides", c.Suicides},
		{"Soft deaths", c.SoftDeaths},
		{"Destructions", c.Destructions},
		{"Crew attached", c.CrewAttached},
		{"Disconnects", c.Disconnects},
		{"Actor stalls", c.ActorStalls},
	} {
		fmt.Fprintf(w, "%s\t%d\n", row.name, row.n)
	}

	if len(r.SystemInfo) > 0 {
		fmt.Fprintln(w)
		keys := make([]string, 0, len(r.SystemInfo))
		for k := range r.SystemInfo {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%s\n", k, r.SystemInfo[k])
		}
	}
	return w.Flush()
}
