package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/fieldcapture/internal/capture"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	var (
		initialScan bool
		debounce    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <dir>...",
		Short: "Analyze and save every image dropped into the given directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root)
			if err != nil {
				return err
			}
			defer a.close()

			images, errs, err := capture.WatchInbox(ctx, capture.InboxConfig{
				Roots:       args,
				InitialScan: initialScan,
				Debounce:    debounce,
			}, a.logger)
			if err != nil {
				return err
			}
			a.logger.Info("watching inbox", "roots", args)

			for {
				select {
				case <-ctx.Done():
					a.logger.Info("inbox watcher stopped")
					return nil
				case err, ok := <-errs:
					if !ok {
						errs = nil
						continue
					}
					a.logger.Warn("inbox watcher error", "error", err)
				case path, ok := <-images:
					if !ok {
						return nil
					}
					a.processImage(cmd, path)
				}
			}
		},
	}
	cmd.Flags().BoolVar(&initialScan, "initial-scan", false, "also process images already present")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "wait this long after the last write before processing a file")
	return cmd
}

// processImage runs one image through a fresh session: capture, analyze, save
// every plausible candidate.
func (a *app) processImage(cmd *cobra.Command, path string) {
	ctx := cmd.Context()
	logger := a.logger.With("image", path)

	// rename events arrive under the old name; re-check the file is still an image
	image, err := capture.FileSource{Path: path}.CapturePhoto(ctx)
	if err != nil {
		logger.Debug("inbox file skipped", "error", err)
		return
	}

	rec := a.newReconciler()
	if res := rec.Capture(image); !res.OK() {
		logger.Warn("capture failed", "status", res.Status, "error", res.Err)
		return
	}
	analyzed := rec.Analyze(ctx)
	if !analyzed.OK() {
		logger.Warn("analyze failed", "status", analyzed.Status, "error", analyzed.Err)
		return
	}
	saved := rec.Save(ctx)
	if !saved.OK() {
		logger.Error("save failed", "status", saved.Status, "error", saved.Err)
		return
	}
	logger.Info("image processed",
		"status", saved.Status,
		"session_id", saved.SessionID,
		"candidates", analyzed.Added,
		"accepted", len(saved.Accepted))
	_ = printJSON(cmd.OutOrStdout(), newResultOutput(saved))
}
