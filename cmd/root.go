package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sunbk201/tilespoof/internal/api"
	"github.com/sunbk201/tilespoof/internal/config"
	"github.com/sunbk201/tilespoof/internal/intercept"
	"github.com/sunbk201/tilespoof/internal/log"
	"github.com/sunbk201/tilespoof/internal/mitm"
	"github.com/sunbk201/tilespoof/internal/placement"
	"github.com/sunbk201/tilespoof/internal/prompt"
	"github.com/sunbk201/tilespoof/internal/rewrite"
	"github.com/sunbk201/tilespoof/internal/rule"
	"github.com/sunbk201/tilespoof/internal/server"
	"github.com/sunbk201/tilespoof/internal/state"
	"github.com/sunbk201/tilespoof/internal/statistics"
	"github.com/sunbk201/tilespoof/internal/tiles"
	"github.com/sunbk201/tilespoof/internal/transport"
)

var (
	AppVersion    = "Development"
	shutdownChain []func() error
)

var rootCmd = &cobra.Command{
	Use:   "tilespoof",
	Short: "tilespoof redirects map tiles and overrides paint requests",
	Long:  "tilespoof is an intercepting proxy that redirects selected map tile requests to a local mirror and rewrites the next paint request with pixels taken from a placement provider.",
	RunE:  runRoot,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Short flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "Log level")
	rootCmd.Flags().StringP("bind", "b", "", "Proxy bind address")
	rootCmd.Flags().IntP("port", "p", 0, "Proxy port")
	rootCmd.Flags().StringP("upstream", "u", "", "Upstream tile origin")
	rootCmd.Flags().StringP("mirror-origin", "m", "", "Mirror origin spoofed tiles are sent to")
	rootCmd.Flags().BoolP("spoof", "s", false, "Enable tile spoofing on start")
	rootCmd.Flags().BoolP("version", "v", false, "Show version")
	rootCmd.Flags().BoolP("generate-config", "g", false, "Generate template config file")

	// Long flags
	rootCmd.Flags().String("tiles-config-url", "", "URL of the tile list")
	rootCmd.Flags().String("placement-url", "", "URL of the placement map")
	rootCmd.Flags().String("document-url", "", "Base URL relative request targets are resolved against")
	rootCmd.Flags().String("paint-marker", "", "Path marker of paint requests")
	rootCmd.Flags().String("prompt", "", "Pixel count prompt: api, terminal, fixed")
	rootCmd.Flags().Int("fixed-count", 0, "Pixel count answered in fixed prompt mode")
	rootCmd.Flags().String("upstream-proxy", "", "Proxy for outbound requests (http, https, socks5)")
	rootCmd.Flags().String("mitm-hostname", "", "Comma separated hosts to MitM")
	rootCmd.Flags().Bool("api", false, "Enable the control API")
	rootCmd.Flags().Int("api-port", 0, "Control API port")
	rootCmd.Flags().String("api-secret", "", "Control API secret")
	rootCmd.Flags().Bool("mirror", false, "Run the tile mirror in-process")

	// Bind all flags to viper using consistent key names
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("bind-address", rootCmd.Flags().Lookup("bind"))
	_ = viper.BindPFlag("port", rootCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("upstream-origin", rootCmd.Flags().Lookup("upstream"))
	_ = viper.BindPFlag("mirror-origin", rootCmd.Flags().Lookup("mirror-origin"))
	_ = viper.BindPFlag("spoof-on-start", rootCmd.Flags().Lookup("spoof"))
	_ = viper.BindPFlag("tiles-config-url", rootCmd.Flags().Lookup("tiles-config-url"))
	_ = viper.BindPFlag("placement-url", rootCmd.Flags().Lookup("placement-url"))
	_ = viper.BindPFlag("document-url", rootCmd.Flags().Lookup("document-url"))
	_ = viper.BindPFlag("paint-marker", rootCmd.Flags().Lookup("paint-marker"))
	_ = viper.BindPFlag("prompt.mode", rootCmd.Flags().Lookup("prompt"))
	_ = viper.BindPFlag("prompt.fixed-count", rootCmd.Flags().Lookup("fixed-count"))
	_ = viper.BindPFlag("upstream-proxy", rootCmd.Flags().Lookup("upstream-proxy"))
	_ = viper.BindPFlag("mitm.hostname", rootCmd.Flags().Lookup("mitm-hostname"))
	_ = viper.BindPFlag("api.enabled", rootCmd.Flags().Lookup("api"))
	_ = viper.BindPFlag("api.port", rootCmd.Flags().Lookup("api-port"))
	_ = viper.BindPFlag("api.secret", rootCmd.Flags().Lookup("api-secret"))
	_ = viper.BindPFlag("mirror.enabled", rootCmd.Flags().Lookup("mirror"))

	// Bind environment variables
	viper.SetEnvPrefix("TILESPOOF")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("api.secret", "TILESPOOF_API_SECRET")
	_ = viper.BindEnv("mitm.p12", "TILESPOOF_MITM_P12")
	_ = viper.BindEnv("mitm.passphrase", "TILESPOOF_MITM_PASSPHRASE")
}

func initConfig() {
	configFile := viper.GetString("config")
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.MergeInConfig(); err != nil {
			slog.Error("Failed to read config file", slog.Any("error", err))
			os.Exit(1)
		}
	}
	config.SetDefaults()
}

func runRoot(cmd *cobra.Command, args []string) error {
	showVer, _ := cmd.Flags().GetBool("version")
	if showVer {
		fmt.Printf("tilespoof version %s\n", AppVersion)
		return nil
	}

	genConfig, _ := cmd.Flags().GetBool("generate-config")
	if genConfig {
		if _, err := config.GenerateTemplateConfig(true); err != nil {
			return fmt.Errorf("failed to generate template config: %w", err)
		}
		fmt.Println("Template config file 'config.yaml' generated successfully.")
		return nil
	}

	cfg, err := config.BuildConfigFromViper()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logs := log.NewBroadcaster()
	log.SetLogConf(cfg.LogLevel, logs)
	log.LogHeader(AppVersion, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	addShutdown("cancel", func() error { cancel(); return nil })

	if err := startTilespoof(ctx, cfg, logs); err != nil {
		shutdown()
		return err
	}
	return waitSignal()
}

func startTilespoof(ctx context.Context, cfg *config.Config, logs *log.Broadcaster) error {
	base, err := transport.New(cfg.UpstreamProxy)
	if err != nil {
		slog.Error("transport.New", slog.Any("error", err))
		return err
	}
	direct := &http.Client{Transport: base, Timeout: 30 * time.Second}

	if cfg.Mirror.Enabled {
		if err := startMirror(ctx, cfg, direct); err != nil {
			return err
		}
	}

	coords, err := tiles.NewProvider(cfg.TilesConfigURL, direct).Load(ctx)
	if err != nil {
		// spoofing matches nothing until restart, everything else still works
		slog.Error("Tile list unavailable", slog.String("url", cfg.TilesConfigURL), slog.Any("error", err))
	}

	recorder := statistics.New(log.GetStatsFilePath("tilespoof_stats"), cfg.StatsDumpInterval)
	go recorder.Run(ctx)

	var (
		prompter prompt.Prompter
		queue    *prompt.Queue
	)
	switch cfg.Prompt.Mode {
	case config.PromptModeTerminal:
		prompter = prompt.NewTerminal(os.Stdin, os.Stdout)
	case config.PromptModeFixed:
		prompter = prompt.Fixed(cfg.Prompt.FixedCount)
	default:
		queue = prompt.NewQueue(cfg.Prompt.Timeout)
		prompter = queue
	}

	rewriter := rewrite.New(placement.NewClient(cfg.PlacementURL, direct), prompter)
	set, err := rule.NewSet(rule.Options{
		UpstreamHost: cfg.UpstreamHost(),
		ConfigPath:   cfg.ConfigPath,
		MirrorOrigin: cfg.MirrorOrigin,
		PaintMarker:  cfg.PaintMarker,
		Tiles:        coords,
		Rewriter:     rewriter,
		Recorder:     recorder,
	})
	if err != nil {
		slog.Error("rule.NewSet", slog.Any("error", err))
		return err
	}

	st := state.New(cfg.SpoofOnStart)
	interceptor, err := intercept.New(base, st, set.Spoof, set.Override, recorder, cfg.DocumentURL)
	if err != nil {
		slog.Error("intercept.New", slog.Any("error", err))
		return err
	}
	ca, err := mitm.LoadOrCreateCA(cfg.MITM.P12, cfg.MITM.Passphrase, caFilePath())
	if err != nil {
		slog.Error("mitm.LoadOrCreateCA", slog.Any("error", err))
		return err
	}
	filter, err := mitm.NewHostnameFilter(cfg.MITM.Hostname)
	if err != nil {
		slog.Error("mitm.NewHostnameFilter", slog.Any("error", err))
		return err
	}

	srv := server.New(cfg.ListenAddr(), interceptor, mitm.NewCertManager(ca), filter)
	if err := srv.Start(); err != nil {
		slog.Error("srv.Start", slog.Any("error", err))
		return err
	}
	addShutdown("srv.Shutdown", func() error {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		return srv.Shutdown(sctx)
	})

	if cfg.API.Enabled {
		apiServer := api.New(cfg.APIListenAddr(), AppVersion, cfg, api.Options{
			State:    st,
			Prompts:  queue,
			Recorder: recorder,
			Tiles:    coords,
			CA:       ca,
			Logs:     logs,
		})
		if err := apiServer.Start(); err != nil {
			slog.Error("apiServer.Start", slog.Any("error", err))
			return err
		}
		addShutdown("apiServer.Close", apiServer.Close)
	} else if queue != nil {
		slog.Warn("Prompt mode api without the control API, paint overrides will time out")
	}
	return nil
}

func caFilePath() string {
	return filepath.Join(log.GetLogDir(), "ca.p12")
}

func waitSignal() error {
	cleanup := make(chan os.Signal, 1)
	signal.Notify(cleanup, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGINT, syscall.SIGTERM)
	for {
		s := <-cleanup
		slog.Info("Received signal", slog.String("signal", s.String()))
		switch s {
		case syscall.SIGQUIT, syscall.SIGINT, syscall.SIGTERM:
			shutdown()
			return nil
		case syscall.SIGHUP:
		default:
			return nil
		}
	}
}

func addShutdown(name string, fn func() error) {
	shutdownChain = append(shutdownChain, func() error {
		if err := fn(); err != nil {
			slog.Error(name, slog.Any("error", err))
			return err
		}
		return nil
	})
}

func shutdown() {
	for i := len(shutdownChain) - 1; i >= 0; i-- {
		_ = shutdownChain[i]()
	}
	shutdownChain = nil
	slog.Info("tilespoof exit")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
