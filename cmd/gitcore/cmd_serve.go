package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/odvcencio/gitcore/pkg/remote"
	"github.com/odvcencio/gitcore/pkg/server"
	"github.com/spf13/cobra"
)

// serveConfig is the TOML file read by "serve --config".
type serveConfig struct {
	Listen       string `toml:"listen"`
	Root         string `toml:"root"`
	LogLevel     string `toml:"log_level"`
	MaxPackBytes int64  `toml:"max_pack_bytes"`
}

func defaultServeConfig() serveConfig {
	return serveConfig{
		Listen:       fmt.Sprintf(":%d", remote.DefaultPort),
		Root:         ".",
		MaxPackBytes: server.DefaultMaxPackBytes,
	}
}

func loadServeConfig(path string) (serveConfig, error) {
	cfg := defaultServeConfig()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("read %s: unknown keys %v", path, undecoded)
	}
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	var configPath string
	var flags serveConfig

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the repositories below a directory over TCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Listen = flags.Listen
			}
			if cmd.Flags().Changed("root") {
				cfg.Root = flags.Root
			}
			if cmd.Flags().Changed("max-pack-bytes") {
				cfg.MaxPackBytes = flags.MaxPackBytes
			}

			log := logger
			if cfg.LogLevel != "" && !cmd.Flags().Changed("log-level") {
				level, err := parseLogLevel(cfg.LogLevel)
				if err != nil {
					return err
				}
				log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			}

			if info, err := os.Stat(cfg.Root); err != nil || !info.IsDir() {
				return fmt.Errorf("root %q is not a directory", cfg.Root)
			}

			srv := server.New(server.DirLoader{Root: cfg.Root}, log)
			srv.MaxPackBytes = cfg.MaxPackBytes

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			log.Info("starting server", "listen", cfg.Listen, "root", cfg.Root)
			return srv.ListenAndServe(ctx, cfg.Listen)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "TOML configuration file")
	cmd.Flags().StringVar(&flags.Listen, "listen", defaultServeConfig().Listen, "address to listen on")
	cmd.Flags().StringVar(&flags.Root, "root", ".", "directory holding the served repositories")
	cmd.Flags().Int64Var(&flags.MaxPackBytes, "max-pack-bytes", server.DefaultMaxPackBytes, "largest accepted push pack")

	return cmd
}
