package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sharefetch/downloader"
	"sharefetch/internal"
	"sharefetch/utils"
)

func newInfoCommand(o *options) *cobra.Command {
	infoCmd := &cobra.Command{
		Use:   "info <SHARE_LINK>...",
		Short: "Show information about one or more share links",
		Long: `Resolve each share link and print its state without downloading.
Links are resolved concurrently; results are printed in argument order.

Examples:
  sharefetch info abc123
  sharefetch info --format json https://files.example.com/share/abc123 def456`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd.Context(), o, args, cmd.OutOrStdout())
		},
	}

	infoCmd.Flags().IntVar(&o.concurrency, "concurrency", 4, "Number of links resolved at once")
	return infoCmd
}

func runInfo(ctx context.Context, o *options, links []string, out io.Writer) error {
	cfg := o.cfg
	if o.concurrency < 1 {
		return internal.NewValidationErrorWithValue("concurrency", "must be at least 1", o.concurrency)
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()

	if _, err := attachSession(ctx, client, cfg, false); err != nil {
		return err
	}

	display, err := utils.NewDisplay(cfg.Format, out)
	if err != nil {
		return err
	}
	api := downloader.NewHTTPShareAPI(client, cfg.APIBase, cfg.DownloadRoute)

	states := make([]internal.ResolutionState, len(links))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, link := range links {
		g.Go(func() error {
			// one resolver per link; they never share state
			resolver := downloader.NewShareLinkResolver(api, nil, nil)
			states[i] = resolver.Resolve(gctx, utils.ExtractToken(link))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	text := cfg.Format == "" || cfg.Format == "text"
	failed := 0
	var first internal.ResolutionState
	for i, state := range states {
		if text {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "[%s]\n", links[i])
		}
		if err := display.Render(state); err != nil {
			return err
		}
		if state.Kind != internal.StateInfo {
			if failed == 0 {
				first = state
			}
			failed++
		}
	}

	if failed > 0 {
		return &stateError{
			state: first,
			msg:   fmt.Sprintf("%d of %d share links are not available", failed, len(links)),
		}
	}
	return nil
}
