package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/fieldcapture/internal/capture"
	"github.com/joseph-ayodele/fieldcapture/internal/session"
)

type analyzeOptions struct {
	sessionID string
	deselect  []string
	edits     []string
	dryRun    bool
}

type analyzeOutput struct {
	Analyze *resultOutput `json:"analyze"`
	Save    *resultOutput `json:"save,omitempty"`
	View    session.View  `json:"session"`
}

// resultOutput is the printable form of a session.Result.
type resultOutput struct {
	Status    string   `json:"status"`
	SessionID string   `json:"session_id,omitempty"`
	Added     int      `json:"added,omitempty"`
	Accepted  []string `json:"newly_accepted,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func newResultOutput(res session.Result) *resultOutput {
	out := &resultOutput{Status: string(res.Status), SessionID: res.SessionID, Added: res.Added}
	for _, v := range res.Accepted {
		out.Accepted = append(out.Accepted, v.Text)
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze <image>",
		Short: "Recognize values in an image and save the selected ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root)
			if err != nil {
				return err
			}
			defer a.close()

			image, err := capture.FileSource{Path: args[0]}.CapturePhoto(ctx)
			if err != nil {
				return err
			}

			rec := a.newReconciler()
			if err := a.resume(ctx, rec, opts.sessionID); err != nil {
				return err
			}
			if res := rec.Capture(image); !res.OK() {
				return res.Err
			}

			out := analyzeOutput{Analyze: newResultOutput(rec.Analyze(ctx))}
			for _, edit := range opts.edits {
				oldKey, newText, ok := strings.Cut(edit, "=")
				if !ok {
					return fmt.Errorf("--edit wants OLD=NEW, got %q", edit)
				}
				rec.Edit(oldKey, newText)
			}
			for _, key := range opts.deselect {
				rec.Toggle(key)
			}
			if !opts.dryRun {
				out.Save = newResultOutput(rec.Save(ctx))
			}
			out.View = rec.View()
			if opts.dryRun {
				a.logger.Info("dry run, nothing saved", "image", image, "pending", out.View.NewCount())
			}

			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if out.Save != nil && out.Save.Error != "" {
				return fmt.Errorf("save failed: %s", out.Save.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "update this stored session instead of creating a new one")
	cmd.Flags().StringArrayVar(&opts.deselect, "deselect", nil, "candidate value to leave out of the save (repeatable)")
	cmd.Flags().StringArrayVar(&opts.edits, "edit", nil, "rewrite a candidate before saving, OLD=NEW (repeatable)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "analyze only, do not save")
	return cmd
}
