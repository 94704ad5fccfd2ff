package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var evaluateAt string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run a single evaluation cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		at := time.Now().UTC()
		if evaluateAt != "" {
			parsed, err := time.Parse(time.RFC3339, evaluateAt)
			if err != nil {
				return fmt.Errorf("invalid --at value: %w", err)
			}
			at = parsed.UTC()
		}

		return getApp().Evaluate(cmd.Context(), at)
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateAt, "at", "", "Evaluation instant (RFC3339, defaults to now)")
}
