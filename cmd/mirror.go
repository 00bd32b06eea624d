package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sunbk201/tilespoof/internal/config"
	"github.com/sunbk201/tilespoof/internal/log"
	"github.com/sunbk201/tilespoof/internal/mirror"
	"github.com/sunbk201/tilespoof/internal/transport"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Serve the local tile mirror and placement map",
	Long:  "Download the configured tiles from the upstream origin, diff them against their blueprints and serve the highlighted tiles, the tile list and the placement map.",
	RunE:  runMirror,
}

func init() {
	mirrorCmd.Flags().StringP("data-dir", "d", "", "Directory holding config.json, tiles and blueprints")
	mirrorCmd.Flags().StringP("bind", "b", "", "Mirror bind address")
	mirrorCmd.Flags().IntP("port", "p", 0, "Mirror port")
	mirrorCmd.Flags().StringP("upstream", "u", "", "Upstream tile origin")
	mirrorCmd.Flags().Duration("interval", 0, "Update interval")

	_ = viper.BindPFlag("mirror.data-dir", mirrorCmd.Flags().Lookup("data-dir"))
	_ = viper.BindPFlag("mirror.bind-address", mirrorCmd.Flags().Lookup("bind"))
	_ = viper.BindPFlag("mirror.port", mirrorCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("mirror.update-interval", mirrorCmd.Flags().Lookup("interval"))

	rootCmd.AddCommand(mirrorCmd)
}

func runMirror(cmd *cobra.Command, args []string) error {
	if upstream, _ := cmd.Flags().GetString("upstream"); upstream != "" {
		viper.Set("upstream-origin", upstream)
	}
	cfg, err := config.BuildConfigFromViper()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	log.SetLogConf(cfg.LogLevel, nil)
	log.LogHeader(AppVersion, cfg)

	base, err := transport.New(cfg.UpstreamProxy)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	addShutdown("cancel", func() error { cancel(); return nil })

	if err := startMirror(ctx, cfg, &http.Client{Transport: base, Timeout: 30 * time.Second}); err != nil {
		shutdown()
		return err
	}
	return waitSignal()
}

// startMirror serves the mirror and keeps it updated until ctx is done.
func startMirror(ctx context.Context, cfg *config.Config, client *http.Client) error {
	updater := mirror.NewUpdater(mirror.UpdaterOptions{
		DataDir:   cfg.Mirror.DataDir,
		TilesFile: cfg.Mirror.TilesFile,
		Upstream:  cfg.UpstreamOrigin,
		Client:    client,
		CacheTTL:  cfg.Mirror.CacheTTL,
	})

	srv := mirror.NewServer(cfg.MirrorListenAddr(), cfg.Mirror.DataDir, updater)
	if err := srv.Start(); err != nil {
		slog.Error("mirror.Start", slog.Any("error", err))
		return err
	}
	addShutdown("mirror.Shutdown", func() error {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		return srv.Shutdown(sctx)
	})

	interval := cfg.Mirror.UpdateInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go updater.Run(ctx, interval)
	return nil
}
