package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"sharefetch/downloader"
	"sharefetch/internal"
	"sharefetch/utils"
)

func newCreateCommand(o *options) *cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create <FILE_ID>",
		Short: "Create a share link for one of your files",
		Long: `Create an expiring share link for a file you own. Requires session
cookies (access_token and/or refresh_token) exported in Netscape format; an
expired access token is refreshed once before the link is created.

Examples:
  sharefetch create 42 -c cookies.txt
  sharefetch create 42 -c cookies.txt --expires-hours 72 --max-downloads 0 --qr`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd.Context(), o, args[0], cmd.OutOrStdout())
		},
	}

	createCmd.Flags().IntVar(&o.expiresHours, "expires-hours", 24, "Hours until the link expires")
	createCmd.Flags().IntVar(&o.maxDownloads, "max-downloads", 1, "Number of allowed downloads, 0 for unlimited")
	createCmd.Flags().BoolVar(&o.qr, "qr", false, "Print the link as a QR code")
	return createCmd
}

func runCreate(ctx context.Context, o *options, rawID string, out io.Writer) error {
	cfg := o.cfg

	fileID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || fileID <= 0 {
		return internal.NewValidationErrorWithValue("file_id", "must be a positive integer", rawID)
	}
	if o.expiresHours < 1 {
		return internal.NewValidationErrorWithValue("expires_hours", "must be at least 1", o.expiresHours)
	}
	if o.maxDownloads < 0 {
		return internal.NewValidationErrorWithValue("max_downloads", "must be >= 0", o.maxDownloads).
			WithSuggestion("Use 0 for unlimited downloads")
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()

	if _, err := attachSession(ctx, client, cfg, true); err != nil {
		if se, ok := internal.AsShareError(err); ok {
			internal.LogShareError(se)
		}
		return err
	}

	api := downloader.NewHTTPShareAPI(client, cfg.APIBase, cfg.DownloadRoute)
	link, err := api.CreateLink(ctx, fileID, internal.ShareLinkOptions{
		ExpiresHours: o.expiresHours,
		MaxDownloads: o.maxDownloads,
	})
	if err != nil {
		if se, ok := internal.AsShareError(err); ok {
			internal.LogShareError(se)
		}
		return err
	}
	internal.LogInfo("Created share link %s for file %d", link.Token, fileID)

	if err := utils.RenderShareLink(out, cfg.Format, link); err != nil {
		return err
	}

	if o.qr {
		fmt.Fprintln(out)
		qrterminal.GenerateWithConfig(link.URL, qrterminal.Config{
			Level:     qrterminal.M,
			Writer:    out,
			BlackChar: qrterminal.BLACK,
			WhiteChar: qrterminal.WHITE,
			QuietZone: 1,
		})
	}
	return nil
}
