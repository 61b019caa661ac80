package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/deltasync/internal/config"
	"github.com/openmined/deltasync/internal/delta"
	"github.com/openmined/deltasync/internal/engine"
	"github.com/openmined/deltasync/internal/remote"
	"github.com/openmined/deltasync/internal/state"
	"github.com/openmined/deltasync/internal/utils"
	"github.com/openmined/deltasync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const configFileName = "config"

// cli holds what the subcommands share for one invocation.
type cli struct {
	v       *viper.Viper
	logFile *os.File
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:           "deltasync",
		Short:         "Detect and reconcile changes between a local tree and its remote copy",
		Version:       version.Detailed(),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logFile, _ := cmd.Flags().GetString("log-file")
			return c.setupLogging(cmd, logFile)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.close()
		},
	}

	flags := root.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("config", "c", "", "config file (default "+config.DefaultConfigPath+")")
	flags.String("state", "", "state database (default <root>/.deltasync/state.db)")
	flags.String("direction", "", "bidirectional, upload_only or download_only")
	flags.String("log-file", "", "also write debug logs to this file")
	flags.BoolP("verbose", "v", false, "debug logging")
	flags.StringP("output", "o", string(outputTable), "output format: table, json or yaml")

	root.AddCommand(
		newScanCmd(c),
		newPlanCmd(c),
		newBaselineCmd(c),
		newWatchCmd(c),
		newStateCmd(c),
		newVersionCmd(),
	)
	return root
}

// setupLogging logs to stderr so stdout stays parseable with -o json/yaml.
func (c *cli) setupLogging(cmd *cobra.Command, logFile string) error {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}

	handlers := []slog.Handler{
		tint.NewHandler(cmd.ErrOrStderr(), &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
			NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		}),
	}

	if logFile != "" && c.logFile == nil {
		path, err := utils.ResolvePath(logFile)
		if err != nil {
			return fmt.Errorf("log file: %w", err)
		}
		if err := utils.EnsureParent(path); err != nil {
			return fmt.Errorf("log file: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("log file: %w", err)
		}
		c.logFile = file
	}
	if c.logFile != nil {
		handlers = append(handlers, slog.NewTextHandler(c.logFile, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	slog.SetDefault(slog.New(utils.NewFanoutHandler(handlers...)))
	return nil
}

func (c *cli) close() error {
	if c.logFile == nil {
		return nil
	}
	err := c.logFile.Close()
	c.logFile = nil
	return err
}

// loadConfig merges the config file, DELTASYNC_* env vars and flags. A root
// given as an argument wins over all of them.
func (c *cli) loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	v := c.v

	if flag := cmd.Flag("config"); flag != nil && flag.Changed {
		v.SetConfigFile(flag.Value.String())
	} else {
		v.AddConfigPath(config.DefaultConfigDir)
		v.SetConfigName(configFileName)
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	for _, key := range []string{"root", "state_path", "direction", "log_file", "chunk_size", "hash_cache_size", "watch_interval", "remote.type"} {
		v.SetDefault(key, nil)
	}
	_ = v.BindPFlag("state_path", cmd.Flags().Lookup("state"))
	_ = v.BindPFlag("direction", cmd.Flags().Lookup("direction"))
	_ = v.BindPFlag("log_file", cmd.Flags().Lookup("log-file"))

	v.SetEnvPrefix("DELTASYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	if len(args) > 0 {
		cfg.Root = args[0]
	}
	cfg.Path = v.ConfigFileUsed()

	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.LogFile != "" && c.logFile == nil {
		if err := c.setupLogging(cmd, cfg.LogFile); err != nil {
			return nil, err
		}
	}

	slog.Debug("config loaded", "path", cfg.Path, "root", cfg.Root, "state", cfg.StatePath, "remote", cfg.Remote.Type)
	return &cfg, nil
}

// workspace is everything a pass over one root needs.
type workspace struct {
	cfg      *config.Config
	store    *state.Store
	ignore   *delta.IgnoreList
	hasher   *delta.Hasher
	source   remote.Source
	remoteID func(string) string
	engine   *engine.Engine
}

func (c *cli) openWorkspace(ctx context.Context, cmd *cobra.Command, args []string) (*workspace, error) {
	cfg, err := c.loadConfig(cmd, args)
	if err != nil {
		return nil, err
	}

	// the store would otherwise create a missing root as the parent of its db
	if !utils.DirExists(cfg.Root) {
		return nil, fmt.Errorf("sync root %s: %w", cfg.Root, os.ErrNotExist)
	}

	store, err := state.Open(cfg.StatePath)
	if err != nil {
		return nil, err
	}

	ws := &workspace{
		cfg:      cfg,
		store:    store,
		ignore:   delta.NewIgnoreList(cfg.Root, cfg.Ignore...),
		hasher:   delta.NewHasher(delta.WithChunkSize(cfg.ChunkSize), delta.WithCache(cfg.HashCacheSize)),
		remoteID: func(p string) string { return p },
	}

	if err := ws.openSource(ctx); err != nil {
		store.Close()
		return nil, err
	}

	ws.engine, err = engine.New(engine.Options{
		Root:      cfg.Root,
		Store:     store,
		Source:    ws.source,
		Hasher:    ws.hasher,
		Ignore:    ws.ignore,
		Direction: cfg.ParsedDirection(),
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return ws, nil
}

func (ws *workspace) openSource(ctx context.Context) error {
	switch ws.cfg.Remote.Type {
	case config.RemoteS3:
		client, err := remote.NewS3Client(ctx, ws.cfg.Remote.S3)
		if err != nil {
			return err
		}
		src, err := remote.NewS3Source(client, ws.cfg.Remote.S3, ws.store)
		if err != nil {
			return err
		}
		ws.source = src
		ws.remoteID = src.ObjectKey
	case config.RemoteHTTP:
		src, err := remote.NewHTTPSource(ws.cfg.Remote.HTTP)
		if err != nil {
			return err
		}
		ws.source = src
	default:
		ws.source = remote.NoopSource{}
	}
	return nil
}

func (ws *workspace) Close() error {
	return ws.store.Close()
}
