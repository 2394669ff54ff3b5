package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/starlogs/starlogs/internal/analyzer"
)

var backupsJSON bool

func init() {
	backupsCmd.Flags().BoolVar(&backupsJSON, "json", false, "print the listing as JSON")
	rootCmd.AddCommand(backupsCmd)
}

var backupsCmd = &cobra.Command{
	Use:   "backups <dir>",
	Short: "List the game's LogBackups folder, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := analyzer.ListLogBackups(args[0])
		if err != nil {
			return err
		}

		if backupsJSON {
			return json.NewEncoder(os.Stdout).Encode(list)
		}
		if len(list) == 0 {
			fmt.Println("No log backups found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tBUILD\tSIZE\tFILE")
		for _, b := range list {
			started, build := "-", "-"
			if b.HasMeta {
				started = b.Time.Format("2006-01-02 15:04:05")
				build = b.Build
			}
			fmt.Fprintf(w, "%s\t%s\t%.2f MB\t%s\n", started, build, float64(b.SizeBytes)/(1024*1024), b.FileName)
		}
		return w.Flush()
	},
}
