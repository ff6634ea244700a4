package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reachpoint/reachpoint/internal/core/db"
	"github.com/reachpoint/reachpoint/internal/rules"
	"github.com/reachpoint/reachpoint/internal/store"
	"github.com/reachpoint/reachpoint/internal/types"
)

var recalcAudienceCmd = &cobra.Command{
	Use:   "recalc-audience",
	Short: "Recompute stored audience sizes for all segments",
	Long:  `Evaluates every segment's rules against the current customer population and rewrites the cached audienceSize. Offline maintenance; the API computes sizes live regardless.`,
	RunE:  runRecalcAudience,
}

func init() {
	rootCmd.AddCommand(recalcAudienceCmd)
}

func runRecalcAudience(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	log := newLogger()

	if dbURL == "" {
		return fmt.Errorf("--db-url required")
	}
	database, err := db.Open(dbURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	st, err := store.New(database, log)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	engine := rules.NewEngine(log)

	customers := st.Collection(store.Customers)
	segments := st.Collection(store.Segments)

	population, err := customers.FetchAllRecords(ctx)
	if err != nil {
		return err
	}

	segs, err := store.FetchAll[types.Segment](ctx, segments)
	if err != nil {
		return err
	}

	updated := 0
	for _, seg := range segs {
		size := len(engine.MatchingSubset(seg.Rules, population))
		if size == seg.AudienceSize {
			continue
		}
		seg.AudienceSize = size
		if err := segments.Put(ctx, string(seg.ID), seg); err != nil {
			return fmt.Errorf("failed to update segment %s: %w", seg.ID, err)
		}
		updated++
	}

	log.Info().Int("segments", len(segs)).Int("updated", updated).Msg("audience sizes recalculated")
	return nil
}
