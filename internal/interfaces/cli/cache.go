package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

// NewCacheCmd creates the cache command group.
func NewCacheCmd(flush CacheFlusher) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the query embedding cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "flush",
		Short: "Delete every cached query vector",
		Long: "Deletes the cached query embeddings from Redis. Run it after changing\n" +
			"embedding.model or embedding.dimension so stale vectors are not reused.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flush == nil {
				return errors.New(errors.ErrCodeInternal, "cache flush is not configured")
			}
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			n, err := flush(cmd.Context(), cliCtx.Config, cliCtx.Logger)
			if err != nil {
				return fmt.Errorf("cache flush failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d cached embeddings removed\n", color.GreenString("Flushed:"), n)
			return nil
		},
	})
	return cmd
}
