// Command ArgPipe runs the chat command pipeline: it reads commands from a
// chat transport or the HTTP API, resolves their arguments and prompts users
// for whatever is missing.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/ArgPipe/internal/api"
	"github.com/BTreeMap/ArgPipe/internal/commands"
	"github.com/BTreeMap/ArgPipe/internal/fulfill"
	"github.com/BTreeMap/ArgPipe/internal/lockfile"
	"github.com/BTreeMap/ArgPipe/internal/messaging"
	"github.com/BTreeMap/ArgPipe/internal/models"
	"github.com/BTreeMap/ArgPipe/internal/prompt"
	"github.com/BTreeMap/ArgPipe/internal/resolver"
	"github.com/BTreeMap/ArgPipe/internal/scheduler"
	"github.com/BTreeMap/ArgPipe/internal/store"
	"github.com/BTreeMap/ArgPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/ArgPipe/internal/whatsapp"
)

func main() {
	initializeLogger("debug")

	config := loadEnvironmentConfig()
	flags, err := parseCommandLineFlags(flag.CommandLine, config, os.Args[1:])
	if err != nil {
		slog.Error("Invalid command line", "error", err)
		os.Exit(2)
	}
	initializeLogger(*flags.logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping ArgPipe", "transport", *flags.transport, "state_dir", *flags.stateDir)
	if err := run(ctx, flags); err != nil {
		slog.Error("ArgPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ArgPipe exited successfully")
}

// run wires the pipeline together and blocks until ctx is done or a
// component fails.
func run(ctx context.Context, flags Flags) error {
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.Open(store.WithDSN(*flags.dbDSN))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	service, apiOpts, err := buildTransport(ctx, flags)
	if err != nil {
		return err
	}
	var messenger prompt.Messenger = logMessenger{}
	if service != nil {
		messenger = service
		defer service.Stop()
	}

	collector := prompt.NewCollector(messenger, buildPromptOptions(flags)...)
	defer collector.Stop()

	resolvers := resolver.NewRegistry()
	if err := scheduler.Register(resolvers); err != nil {
		return fmt.Errorf("failed to register schedule resolver: %w", err)
	}
	registry := commands.NewRegistry(resolvers)
	schemas, err := loadCommandSchemas(*flags.commandsFile)
	if err != nil {
		return err
	}
	if err := registry.RegisterAll(schemas); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	b := newBot(st, messenger)
	b.bind(registry)

	runner := store.NewJobRunner(st, store.WithPollInterval(*flags.pollInterval))
	runner.RegisterHandler(ReminderJobKind, b.deliverReminder)
	if err := runner.RecoverStaleJobs(ctx); err != nil {
		slog.Warn("Failed to recover stale jobs", "error", err)
	}

	fulfiller := fulfill.New(resolvers, collector, fulfill.WithDirectory(st))
	dispatcher := commands.NewDispatcher(registry, fulfiller, messenger, commands.WithPrefix(*flags.prefix))
	router := messaging.NewRouter(collector, dispatcher,
		messaging.WithMemberRecorder(st),
		messaging.WithDeduplication(st))

	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(registry, dispatcher, router, collector, apiOpts...)

	if service != nil {
		if err := service.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s transport: %w", *flags.transport, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		return runner.Run(gctx)
	})
	if service != nil {
		g.Go(func() error {
			return router.Run(gctx, service)
		})
	}

	slog.Info("ArgPipe running", "commands", len(registry.List()), "prefix", dispatcher.Prefix())
	err = g.Wait()
	router.Wait()
	return err
}

// buildTransport connects the configured chat transport. The "none" transport
// returns a nil service; commands then arrive through the HTTP API only.
func buildTransport(ctx context.Context, flags Flags) (messaging.Service, []api.Option, error) {
	switch *flags.transport {
	case TransportWhatsApp:
		client, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(flags)...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil, nil
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		svc := messaging.NewTwilioService(client)
		return svc, []api.Option{api.WithTwilioWebhook(svc)}, nil
	default:
		slog.Info("No chat transport configured, serving the HTTP API only")
		return nil, nil, nil
	}
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.waDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDSN))
	}
	return waOpts
}

// buildPromptOptions constructs collector options
func buildPromptOptions(flags Flags) []prompt.Option {
	return []prompt.Option{
		prompt.WithDefaultTimeout(*flags.promptTimeout),
		prompt.WithDefaultRetries(*flags.promptRetries),
		prompt.WithCleanup(*flags.cleanupPrompts),
	}
}

// loadCommandSchemas reads path, or the built-in schemas when path is empty.
func loadCommandSchemas(path string) ([]commands.Command, error) {
	var r io.Reader = strings.NewReader(builtinCommands)
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open command schemas: %w", err)
		}
		defer f.Close()
		r = f
	}
	cmds, err := commands.LoadSchemas(r)
	if err != nil {
		return nil, fmt.Errorf("failed to load command schemas: %w", err)
	}
	if len(cmds) == 0 {
		return nil, errors.New("no commands defined")
	}
	return cmds, nil
}

// logMessenger stands in for a transport when none is configured.
type logMessenger struct{}

func (logMessenger) Send(_ context.Context, channelID, content string) (models.MessageRef, error) {
	slog.Info("logMessenger.Send", "channel", channelID, "content", content)
	return models.MessageRef{ChannelID: channelID}, nil
}

func (logMessenger) Edit(_ context.Context, ref models.MessageRef, content string) error {
	slog.Info("logMessenger.Edit", "channel", ref.ChannelID, "content", content)
	return nil
}

func (logMessenger) Delete(_ context.Context, ref models.MessageRef) error {
	slog.Info("logMessenger.Delete", "channel", ref.ChannelID)
	return nil
}
