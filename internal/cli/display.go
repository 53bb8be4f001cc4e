package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/xvfb-supervisor/internal/xvfb"
)

var displayCmdFlags displayFlags

var displayCmd = &cobra.Command{
	Use:   "display",
	Short: "Print the display a start would use",
	Long: `Print the display identifier that 'xvfbctl start' would pick with the
same flags, without launching anything. The answer can change if another
server grabs the display first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd, &displayCmdFlags)
		if err != nil {
			return err
		}
		sup, err := xvfb.New(a.supervisorOptions())
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, sup.Display())
		return nil
	},
}

func init() {
	displayCmdFlags.register(displayCmd.Flags())
	rootCmd.AddCommand(displayCmd)
}
