package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/pburn/internal/cli"
	"github.com/theirongolddev/pburn/internal/monitor"
)

var (
	flagCheckThreshold float64
	flagCheckQuiet     bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Exit non-zero when any budget is over a threshold",
	Long: "Fetch the budget once and exit with 0 when every bucket is below the\n" +
		"threshold, 1 when at least one is at or above it, and 2 when the fetch fails.\n" +
		"The cache is not consulted, so a stale reading never passes.",
	Example: "  pburn check --threshold 80 || echo 'budget nearly spent'",
	RunE:    runCheck,
}

func init() {
	checkCmd.Flags().Float64Var(&flagCheckThreshold, "threshold", 0, "Percent threshold (default: the critical threshold)")
	checkCmd.Flags().BoolVarP(&flagCheckQuiet, "quiet", "q", false, "Print nothing, only set the exit code")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return &exitError{code: monitor.CheckFailed, err: err}
	}
	e, err := newEngine(cfg)
	if err != nil {
		return &exitError{code: monitor.CheckFailed, err: err}
	}

	threshold := flagCheckThreshold
	if threshold <= 0 {
		threshold = e.settings.Thresholds.Default.Critical
	}

	snap, err := e.scheduler.Poll(cmd.Context())
	if err != nil {
		return &exitError{code: monitor.CheckFailed, err: err}
	}

	code := monitor.CheckExitCode(snap, threshold)
	if !flagCheckQuiet {
		verdict := "ok"
		if code == monitor.CheckOver {
			verdict = fmt.Sprintf("over %s", cli.FormatPercent(threshold))
		}
		fmt.Printf("%s (%s)\n", cli.RenderBrief(snap), verdict)
	}
	if code != monitor.CheckOK {
		return &exitError{code: code}
	}
	return nil
}
