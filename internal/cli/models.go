package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/whispercppkit/whispercppkit/internal/models"
	"gopkg.in/yaml.v3"
)

func newModelsCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List, download and clean up whisper.cpp models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newModelsListCmd())
	cmd.AddCommand(newModelsPathCmd(app))
	cmd.AddCommand(newModelsStatusCmd(app))
	cmd.AddCommand(newModelsPullCmd(app))
	cmd.AddCommand(newModelsPruneCmd(app))
	return cmd
}

func newModelsListCmd() *cobra.Command {
	var englishOnly, quantized bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known model ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, m := range models.All() {
				if englishOnly && !m.EnglishOnly() {
					continue
				}
				if quantized && !m.Quantized() {
					continue
				}
				if err := writeLine(cmd.OutOrStdout(), "%s\t->\t%s", m.ID, m.FileName()); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&englishOnly, "english", false, "Only list English-only checkpoints")
	cmd.Flags().BoolVar(&quantized, "quantized", false, "Only list quantized checkpoints")
	return cmd
}

func newModelsPathCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the models directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := app.store()
			if err != nil {
				return err
			}
			return writeLine(cmd.OutOrStdout(), "%s", store.Dir)
		},
	}
}

func newModelsStatusCmd(app *appState) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which models are downloaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := app.store()
			if err != nil {
				return err
			}
			st, err := store.Status(verify)
			if err != nil {
				return err
			}
			return writeStatus(cmd.OutOrStdout(), app.cfg.Format, st)
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false, "Hash downloaded models that have a pinned checksum")
	cmd.Flags().String("format", "text", "Output format: text|json|yaml")
	return cmd
}

func writeStatus(w io.Writer, format string, st models.Status) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return writeLine(w, "%s", data)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(st); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}

	lines := []string{fmt.Sprintf("Models dir: %s", st.Dir), ""}
	for _, e := range st.Models {
		if !e.Present {
			lines = append(lines, fmt.Sprintf("  missing  %s\t%s", e.ID, e.File))
			continue
		}
		line := fmt.Sprintf("  present  %s\t%s\t(%s)", e.ID, e.File, humanBytes(e.Size))
		if e.Verified != nil {
			if *e.Verified {
				line += " verified"
			} else {
				line += " CHECKSUM MISMATCH"
			}
		}
		lines = append(lines, line)
	}

	lines = append(lines,
		"",
		"Summary:",
		fmt.Sprintf("  Downloaded: %d", st.PresentCount),
		fmt.Sprintf("  Missing:    %d", len(st.Models)-st.PresentCount),
		fmt.Sprintf("  Disk usage: %s", humanBytes(st.PresentBytes)),
	)
	if len(st.Extras) > 0 {
		lines = append(lines, "", fmt.Sprintf("Other model files (%s):", humanBytes(st.ExtraBytes)))
		for _, e := range st.Extras {
			lines = append(lines, fmt.Sprintf("  - %s\t(%s)", e.File, humanBytes(e.Size)))
		}
	}

	for _, l := range lines {
		if err := writeLine(w, "%s", l); err != nil {
			return err
		}
	}
	return nil
}

func newModelsPullCmd(app *appState) *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "pull <model-id>",
		Short: "Download a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, ok := models.Lookup(args[0])
			if !ok {
				return usageErrorf("unknown model id %q; run 'whispercppkit models list'", args[0])
			}

			store, err := app.store()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := writeLine(out, "Pulling %s -> %s", m.ID, store.LocalPath(m)); err != nil {
				return err
			}
			path, err := store.Ensure(cmd.Context(), m, overwrite)
			if err != nil {
				return err
			}
			return writeLine(out, "Saved: %s", path)
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing download")
	return cmd
}

func newModelsPruneCmd(app *appState) *cobra.Command {
	var (
		keep   []string
		dryRun bool
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete partial downloads and models not kept",
		Long:  "Delete partial downloads and every model file not named by --keep.\nNothing is deleted without --force.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := app.store()
			if err != nil {
				return err
			}

			preview := dryRun || !force
			candidates, err := store.Prune(keep, preview)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(candidates) == 0 {
				return writeLine(out, "Nothing to prune in: %s", store.Dir)
			}

			header := "Deleting:"
			if preview {
				header = "Dry-run (add --force to actually delete):"
			}
			if err := writeLine(out, "Models dir: %s\n%s", store.Dir, header); err != nil {
				return err
			}
			for _, c := range candidates {
				if err := writeLine(out, "  - %s\t(%s)", c.File, humanBytes(c.Size)); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&keep, "keep", nil, "Model id to keep (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only list what would be deleted")
	cmd.Flags().BoolVar(&force, "force", false, "Actually delete files")
	return cmd
}

func humanBytes(n int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", v, units[i])
}
