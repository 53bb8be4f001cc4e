package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/xvfb-supervisor/internal/session"
)

var (
	statusJSON  bool
	statusPrune bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List displays and detached servers",
	Long: `List every locked display in the lock directory together with the
servers recorded by 'xvfbctl start --detach'.

A display is up when its lock file exists. The owner PID comes from the
lock file (or the registry for servers that have not locked yet) and is
checked against the process table.

--prune forgets recorded servers that are gone: no lock file owned by the
recorded PID, and no live process running the recorded binary under it.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	statusCmd.Flags().BoolVar(&statusPrune, "prune", false, "forget recorded servers that are gone")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd, nil)
	if err != nil {
		return err
	}
	reg, err := a.registry()
	if err != nil {
		return err
	}

	if statusPrune {
		probe := a.probe()
		dropped, err := reg.Prune(func(s session.Session) bool {
			return session.Owned(probe, s)
		})
		if err != nil {
			return err
		}
		for _, s := range dropped {
			fmt.Fprintf(a.stderr, "Forgot stale session %s (pid %d)\n", s.Display, s.PID)
		}
	}

	sessions, err := reg.List()
	if err != nil {
		return err
	}
	statuses, err := session.Inspect(a.probe(), sessions)
	if err != nil {
		return err
	}

	if statusJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	}
	return printStatusTable(a, statuses)
}

func printStatusTable(a *app, statuses []session.Status) error {
	if len(statuses) == 0 {
		fmt.Fprintln(a.stdout, "No displays.")
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DISPLAY\tLOCKED\tPID\tALIVE\tCOMMAND\tSTARTED\tSESSION")
	for _, st := range statuses {
		started := "-"
		if !st.StartedAt.IsZero() {
			started = humanize.Time(st.StartedAt)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			st.Display,
			yesNo(st.Locked),
			orDash(st.OwnerPID),
			yesNo(st.Alive),
			orDashString(st.Command),
			started,
			orDashString(shortID(st.SessionID)),
		)
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(n int) string {
	if n == 0 {
		return "-"
	}
	return fmt.Sprint(n)
}

func orDashString(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
