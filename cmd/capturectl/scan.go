package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/fieldcapture/internal/entity"
	"github.com/joseph-ayodele/fieldcapture/internal/ocr"
	"github.com/joseph-ayodele/fieldcapture/internal/session"
)

func newScanCmd(root *rootOptions) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Read a live barcode feed (zbarcam lines) from stdin and save it as a session on EOF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root)
			if err != nil {
				return err
			}
			defer a.close()

			rec := a.newReconciler()
			if err := a.resume(ctx, rec, sessionID); err != nil {
				return err
			}

			events := make(chan entity.BarcodeEvent, a.cfg.Barcode.QueueSize)
			scanner := session.NewLiveScanner(rec, a.cfg.Barcode.Cooldown, a.logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return ocr.ReadBarcodeEvents(gctx, cmd.InOrStdin(), events, a.logger) })
			g.Go(func() error { return scanner.Run(gctx, events) })
			if err := g.Wait(); err != nil && !errors.Is(err, ctx.Err()) {
				return err
			}

			res := rec.Save(ctx)
			if err := printJSON(cmd.OutOrStdout(), struct {
				Save *resultOutput `json:"save"`
				View session.View  `json:"session"`
			}{newResultOutput(res), rec.View()}); err != nil {
				return err
			}
			if !res.OK() {
				return fmt.Errorf("save failed: %w", res.Err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "add to this stored session instead of creating a new one")
	return cmd
}
