package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/srvgate/internal/infrastructure/config"
	"github.com/GriffinCanCode/srvgate/internal/infrastructure/logging"
	"github.com/GriffinCanCode/srvgate/internal/kernel"
	"github.com/GriffinCanCode/srvgate/internal/kernel/remote"
	"github.com/GriffinCanCode/srvgate/internal/result"
	"github.com/GriffinCanCode/srvgate/internal/srv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "srvgate: %v\n", err)
		if code := result.CodeOf(err); code.Failed() {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// options are the global flags shared by every command.
type options struct {
	cfg     *config.Config
	name    string
	preload []string
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	opts := options{cfg: cfg}

	flagSet := pflag.NewFlagSet("srvgate", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&cfg.Remote.Address, "addr", cfg.Remote.Address, "emulator gRPC address")
	flagSet.DurationVar(&cfg.Remote.Timeout, "timeout", cfg.Remote.Timeout, "deadline of each command")
	flagSet.StringVar(&opts.name, "name", "srvgate", "process name to attach as")
	flagSet.StringSliceVar(&opts.preload, "preload", nil, "services whose handles are fetched up front and served from the override table")
	flagSet.StringVar(&cfg.Logging.Level, "log-level", "warn", "log level")
	flagSet.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "development logging")
	flagSet.Usage = func() { usage(flagSet) }
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() == 0 {
		usage(flagSet)
		return errors.New("missing command")
	}
	cmd, ok := commands[flagSet.Arg(0)]
	if !ok {
		return fmt.Errorf("unknown command %q", flagSet.Arg(0))
	}
	cmdArgs := flagSet.Args()[1:]
	if len(cmdArgs) < cmd.minArgs {
		return fmt.Errorf("%s: usage: srvgate %s %s", flagSet.Arg(0), flagSet.Arg(0), cmd.usage)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(ctx, cfg.Remote.Timeout)
	defer cancel()

	k, err := remote.Dial(ctx, cfg.Remote.Address, opts.name, remote.WithLogger(logger))
	if err != nil {
		return err
	}
	defer k.Close(context.WithoutCancel(ctx))

	overrides, err := preload(ctx, k, opts.preload, logger)
	if err != nil {
		return err
	}
	client := srv.New(k, srv.WithLogger(logger), srv.WithOverrides(overrides))
	defer client.Exit(context.WithoutCancel(ctx))

	env := &env{ctx: ctx, kernel: k, client: client, out: stdout, logger: logger}
	return cmd.run(env, cmdArgs)
}

// preload fetches a handle for each name with a direct manager query and
// installs them as overrides. On failure the handles fetched so far are closed.
func preload(ctx context.Context, k kernel.Kernel, names []string, logger *zap.Logger) (*srv.OverrideTable, error) {
	if len(names) == 0 {
		return nil, nil
	}
	direct := srv.New(k, srv.WithLogger(logger))
	defer direct.Exit(ctx)

	overrides := make([]srv.Override, 0, len(names))
	for _, name := range names {
		h, err := direct.GetServiceHandleDirect(ctx, name)
		if err != nil {
			for _, o := range overrides {
				if cerr := k.CloseHandle(ctx, o.Handle); cerr != nil {
					logger.Debug("failed to close preloaded handle", zap.String("service", o.Name), zap.Error(cerr))
				}
			}
			return nil, fmt.Errorf("preload %s: %w", name, err)
		}
		overrides = append(overrides, srv.Override{Name: name, Handle: h})
	}
	return srv.NewOverrideTable(overrides...), nil
}

func usage(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "srvgate talks to a service manager emulator.\n\nUsage:\n  srvgate [flags] <command> [args]\n\nCommands:\n")
	for _, name := range commandNames() {
		fmt.Fprintf(os.Stderr, "  %-22s %s\n", name+" "+commands[name].usage, commands[name].help)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n")
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
