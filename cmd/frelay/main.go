package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franksops/filerelay/config"
)

var log = logging.Logger("frelay")

var (
	v   = viper.New()
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "frelay",
	Short: "Stream files from a source to a multipart upload endpoint",
	Long: `frelay relays files from HTTP(S) URLs, Telegram file ids (tg:<file_id>),
S3 objects (s3://bucket/key) and local files to a multipart/form-data upload
endpoint, streaming each file without buffering it, and prints the download
link the destination returns.

Every flag can also be set with a FRELAY_* environment variable, e.g.
FRELAY_UPLOAD_URL, or in a .env file in the working directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(".env"); err != nil {
			return err
		}
		var err error
		if cfg, err = config.Load(v); err != nil {
			return err
		}
		return cfg.ApplyLogLevel()
	},
}

func init() {
	cobra.CheckErr(config.BindFlags(rootCmd.PersistentFlags(), v))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
