package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stylewatch/stylewatch/internal/analysis"
)

var (
	historyLimit  int
	historyRemote bool
	statsRemote   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past analyses",
	RunE:  runHistory,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate statistics over past analyses",
	RunE:  runStats,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum rows to show")
	historyCmd.Flags().BoolVar(&historyRemote, "remote", false, "Query the backend's account history instead of the local database")
	statsCmd.Flags().BoolVar(&statsRemote, "remote", false, "Query the backend's statistics instead of the local database")
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if historyRemote {
		entries, err := app.API.History(ctx, historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No analyses found.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tREPO\tSTATUS\tVIOLATIONS\tCREATED")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				e.ID, truncate(e.RepoURL, 50), statusIcon(e.Status), e.Violations,
				e.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	}

	runs, err := app.History.List(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODE\tTARGET\tSTATUS\tVIOLATIONS\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.Mode, truncate(r.Target, 50), statusIcon(analysis.Status(r.Status)),
			r.Violations, r.StartedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if statsRemote {
		st, err := app.API.Statistics(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Analyses:    %d\n", st.TotalAnalyses)
		fmt.Printf("Completed:   %d\n", st.Completed)
		fmt.Printf("Failed:      %d\n", st.Failed)
		fmt.Printf("Violations:  %d\n", st.TotalViolations)
		fmt.Printf("Mean score:  %.1f\n", st.AverageScore)
		return nil
	}

	st, err := app.History.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("Runs:        %d\n", st.Total)
	fmt.Printf("Completed:   %d\n", st.Completed)
	fmt.Printf("Failed:      %d\n", st.Failed)
	fmt.Printf("Violations:  %d\n", st.TotalViolations)
	fmt.Printf("Mean score:  %.1f\n", st.MeanScore)
	return nil
}
