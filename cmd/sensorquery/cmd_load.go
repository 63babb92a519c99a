package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/vjranagit/sensorquery/internal/config"
	"github.com/vjranagit/sensorquery/pkg/storage"
	"go.uber.org/zap"
)

var loadCmd = &cobra.Command{
	Use:   "load [file]",
	Short: "Load newline-delimited JSON measurements into the embedded store",
	Long: `load reads one SenML-keyed document per line (n, u, v, vs, vb, ut, s,
uuid, timestamp) from a file, or stdin when no file is given, and stores each
in the daily partition of its timestamp. Only the embedded backend accepts
documents this way.`,
	Example: `  SEARCH_BACKEND=embedded sensorquery load fixtures.ndjson`,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Backend.Kind != config.BackendEmbedded {
		return fmt.Errorf("load requires SEARCH_BACKEND=%s, got %q", config.BackendEmbedded, cfg.Backend.Kind)
	}

	var in io.Reader = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		in = f
	}

	store, err := storage.NewStore(cfg.Backend.ToStorageConfig(), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Import(cmd.Context(), in)
	if err != nil {
		logger.Error("import stopped", zap.Int("stored", n), zap.Error(err))
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d documents\n", n)
	return nil
}
