package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/whispercppkit/whispercppkit/internal/version"
	"github.com/whispercppkit/whispercppkit/internal/whisper"
)

func newVersionCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version and engine details",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Current(whisper.NativeAvailable())
			if !asJSON {
				return writeLine(cmd.OutOrStdout(), "%s", info)
			}
			data, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("encode version: %w", err)
			}
			return writeLine(cmd.OutOrStdout(), "%s", data)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
