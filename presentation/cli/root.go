// Package cli is the command line entry point: one bridge per process,
// a supervisor for several bridges and one-shot operations.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"social_automation/application/engines"
	"social_automation/application/supervisor"
	"social_automation/domain/entities"
	"social_automation/infrastructure/catalog"
	"social_automation/presentation/bridge"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags
var Version = "dev"

// errOperationFailed makes `run` exit non-zero after printing the envelope
var errOperationFailed = errors.New("operation failed")

// Execute - runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand creates the root cobra command
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "social-automation",
		Short: "Browser automation bridges for social platforms",
		Long: `Drives a real browser session per platform and exposes profile reads,
posting, likes, follows, comments and messages as HTTP operations.

Examples:
  social-automation bridge --platform twitter
  social-automation supervise
  social-automation run instagram get_profile username=nasa`,
		SilenceUsage: true,
	}

	root.AddCommand(newBridgeCommand())
	root.AddCommand(newSuperviseCommand())
	root.AddCommand(newRunCommand())
	root.AddCommand(newCapabilitiesCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newBridgeCommand() *cobra.Command {
	var (
		platformFlag string
		port         int
	)

	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Serve one platform over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if platformFlag == "" {
				platformFlag = cfg.Platform
			}
			platform, err := entities.ParsePlatform(platformFlag)
			if err != nil {
				return err
			}

			app, err := NewApp(cfg, logger)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			defer app.Close(context.Background())

			pcfg, err := app.Catalog.Get(platform)
			if err != nil {
				return err
			}
			if port == 0 {
				port = cfg.Server.Port
			}
			if port == 0 {
				port = pcfg.Port
			}

			app.WatchCredentials(ctx)
			queue := app.Queue()
			go func() {
				if err := queue.Run(ctx); err != nil {
					logger.Errorf("Job queue stopped: %v", err)
				}
			}()

			srvCfg := bridge.Config{Platform: platform}
			if cfg.RateLimit.Enabled {
				srvCfg.RateLimit = &bridge.RateLimitConfig{
					RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
					Burst:             cfg.RateLimit.Burst,
				}
				srvCfg.GlobalRateLimit = &bridge.RateLimitConfig{
					RequestsPerSecond: cfg.RateLimit.GlobalRequestsPerSecond,
					Burst:             cfg.RateLimit.GlobalBurst,
				}
			}
			srv := bridge.NewServer(srvCfg, app.Runner, queue, app.Metrics, logger)
			return srv.Run(ctx, net.JoinHostPort(cfg.Server.Host, strconv.Itoa(port)))
		},
	}

	cmd.Flags().StringVarP(&platformFlag, "platform", "p", "", "Platform to serve (defaults to PLATFORM)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (defaults to PORT, then the platform's catalog port)")
	return cmd
}

func newSuperviseCommand() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "supervise [platform...]",
		Short: "Start one bridge process per platform and watch their health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := catalog.Load(cfg.Storage.CatalogDir)
			if err != nil {
				return err
			}

			names := args
			if len(names) == 0 {
				names = cfg.SupervisedPlatforms()
			}
			specs, err := supervisedSpecs(cat, cfg.Server.Host, names)
			if err != nil {
				return err
			}

			spawner, err := supervisor.NewExecSpawner()
			if err != nil {
				return err
			}
			registry := supervisor.NewRegistry(spawner, logger)

			ctx, stop := signalContext()
			defer stop()

			startErr := registry.StartAll(ctx, specs)
			printStatus(cmd, registry.Status())
			if startErr != nil {
				logger.Errorf("Some bridges failed to start: %v", startErr)
			}

			if interval == 0 {
				interval = cfg.Supervisor.HealthInterval
			}
			registry.Watch(ctx, interval)

			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			err = registry.StopAll(stopCtx)
			printStatus(cmd, registry.Status())
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "health-interval", 0, "Liveness check interval (defaults to SUPERVISOR_HEALTH_INTERVAL)")
	return cmd
}

// supervisedSpecs - one spec per named platform, every platform when none
// are named
func supervisedSpecs(cat *catalog.Catalog, host string, names []string) ([]supervisor.Spec, error) {
	platforms := entities.Platforms()
	if len(names) > 0 {
		platforms = platforms[:0:0]
		for _, name := range names {
			p, err := entities.ParsePlatform(name)
			if err != nil {
				return nil, err
			}
			platforms = append(platforms, p)
		}
	}

	specs := make([]supervisor.Spec, 0, len(platforms))
	for _, p := range platforms {
		pcfg, err := cat.Get(p)
		if err != nil {
			return nil, err
		}
		specs = append(specs, supervisor.Spec{Platform: p, Host: host, Port: pcfg.Port})
	}
	return specs, nil
}

func printStatus(cmd *cobra.Command, infos []supervisor.Info) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PLATFORM\tPORT\tPID\tSTATE\tERROR")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", info.Platform, info.Port, info.PID, info.State, info.Error)
	}
	w.Flush()
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <platform> <operation> [key=value...]",
		Short: "Run one operation and print the result envelope",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseRunArgs(args)
			if err != nil {
				return err
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			// keep stdout clean for the envelope
			logger.SetOutput(cmd.ErrOrStderr())

			app, err := NewApp(cfg, logger)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			defer app.Close(context.Background())

			env := app.Runner.Run(ctx, req)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(env); err != nil {
				return err
			}
			if !env.Success {
				return errOperationFailed
			}
			return nil
		},
	}
}

// parseRunArgs - platform, operation and key=value parameters
func parseRunArgs(args []string) (entities.Request, error) {
	platform, err := entities.ParsePlatform(args[0])
	if err != nil {
		return entities.Request{}, err
	}
	op, err := entities.ParseOperation(args[1])
	if err != nil {
		return entities.Request{}, err
	}

	params := make(map[string]string, len(args)-2)
	for _, kv := range args[2:] {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return entities.Request{}, fmt.Errorf("parameter %q is not key=value", kv)
		}
		params[key] = value
	}
	return entities.Request{Operation: op, Platform: platform, Params: params}, nil
}

func newCapabilitiesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities <platform>",
		Short: "Show the operations a platform supports on the loaded catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			platform, err := entities.ParsePlatform(args[0])
			if err != nil {
				return err
			}
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := catalog.Load(cfg.Storage.CatalogDir)
			if err != nil {
				return err
			}
			pcfg, err := cat.Get(platform)
			if err != nil {
				return err
			}
			eng, err := engines.New(pcfg)
			if err != nil {
				return err
			}
			caps := eng.Capabilities()
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(caps)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}
