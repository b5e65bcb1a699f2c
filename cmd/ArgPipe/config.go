package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/ArgPipe/internal/commands"
	"github.com/BTreeMap/ArgPipe/internal/models"
	"github.com/BTreeMap/ArgPipe/internal/store"
	"github.com/BTreeMap/ArgPipe/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ArgPipe state data
	DefaultStateDir = "/var/lib/argpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "argpipe.db"
	// DefaultWhatsAppDBFileName holds the whatsmeow session
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultJobPollInterval is how often due reminders are checked
	DefaultJobPollInterval = time.Second
)

// Transports selectable with -transport.
const (
	TransportWhatsApp = "whatsapp"
	TransportTwilio   = "twilio"
	TransportNone     = "none"
)

// Config holds environment configuration
type Config struct {
	StateDir       string
	DBDSN          string
	WhatsAppDSN    string
	Transport      string
	Prefix         string
	APIAddr        string
	CommandsFile   string
	LogLevel       string
	PromptTimeout  time.Duration
	PromptRetries  int
	CleanupPrompts bool
	PollInterval   time.Duration
}

// Flags holds command line flag values
type Flags struct {
	qrOutput       *string
	numeric        *bool
	stateDir       *string
	dbDSN          *string
	waDSN          *string
	transport      *string
	prefix         *string
	apiAddr        *string
	commandsFile   *string
	logLevel       *string
	promptTimeout  *time.Duration
	promptRetries  *int
	cleanupPrompts *bool
	pollInterval   *time.Duration
}

// initializeLogger installs the default text logger at level.
func initializeLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:       util.StringEnv("ARGPIPE_STATE_DIR", DefaultStateDir),
		DBDSN:          util.StringEnv("ARGPIPE_DB_DSN", os.Getenv("DATABASE_URL")),
		WhatsAppDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		Transport:      util.StringEnv("ARGPIPE_TRANSPORT", TransportWhatsApp),
		Prefix:         util.StringEnv("ARGPIPE_PREFIX", commands.DefaultPrefix),
		APIAddr:        os.Getenv("API_ADDR"),
		CommandsFile:   os.Getenv("ARGPIPE_COMMANDS_FILE"),
		LogLevel:       util.StringEnv("ARGPIPE_LOG_LEVEL", "debug"),
		PromptTimeout:  util.ParseDurationEnv("ARGPIPE_PROMPT_TIMEOUT", models.DefaultPromptTimeout),
		PromptRetries:  util.ParseIntEnv("ARGPIPE_PROMPT_RETRIES", models.DefaultPromptRetries),
		CleanupPrompts: util.ParseBoolEnv("ARGPIPE_CLEANUP_PROMPTS", false),
		PollInterval:   util.ParseDurationEnv("ARGPIPE_JOB_POLL_INTERVAL", DefaultJobPollInterval),
	}

	slog.Debug("environment variables loaded",
		"ARGPIPE_STATE_DIR", config.StateDir,
		"ARGPIPE_DB_DSN_SET", config.DBDSN != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"ARGPIPE_TRANSPORT", config.Transport,
		"ARGPIPE_PREFIX", config.Prefix,
		"API_ADDR", config.APIAddr,
		"ARGPIPE_COMMANDS_FILE", config.CommandsFile,
		"ARGPIPE_PROMPT_TIMEOUT", config.PromptTimeout,
		"ARGPIPE_PROMPT_RETRIES", config.PromptRetries,
		"ARGPIPE_CLEANUP_PROMPTS", config.CleanupPrompts,
		"ARGPIPE_JOB_POLL_INTERVAL", config.PollInterval)

	return config
}

// parseCommandLineFlags parses args with environment defaults.
func parseCommandLineFlags(fs *flag.FlagSet, config Config, args []string) (Flags, error) {
	flags := Flags{
		qrOutput:       fs.String("qr-output", "", "path to write login QR code"),
		numeric:        fs.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:       fs.String("state-dir", config.StateDir, "state directory for ArgPipe data (overrides $ARGPIPE_STATE_DIR)"),
		dbDSN:          fs.String("db-dsn", config.DBDSN, "directory store DSN; SQLite in the state directory when empty (overrides $ARGPIPE_DB_DSN or $DATABASE_URL)"),
		waDSN:          fs.String("whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow session DSN (overrides $WHATSAPP_DB_DSN)"),
		transport:      fs.String("transport", config.Transport, "chat transport: whatsapp, twilio or none (overrides $ARGPIPE_TRANSPORT)"),
		prefix:         fs.String("prefix", config.Prefix, "command prefix (overrides $ARGPIPE_PREFIX)"),
		apiAddr:        fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		commandsFile:   fs.String("commands", config.CommandsFile, "YAML command schema file; built-in commands when empty (overrides $ARGPIPE_COMMANDS_FILE)"),
		logLevel:       fs.String("log-level", config.LogLevel, "log level: debug, info, warn or error (overrides $ARGPIPE_LOG_LEVEL)"),
		promptTimeout:  fs.Duration("prompt-timeout", config.PromptTimeout, "default prompt timeout (overrides $ARGPIPE_PROMPT_TIMEOUT)"),
		promptRetries:  fs.Int("prompt-retries", config.PromptRetries, "default prompt retries (overrides $ARGPIPE_PROMPT_RETRIES)"),
		cleanupPrompts: fs.Bool("cleanup-prompts", config.CleanupPrompts, "delete prompt messages once answered (overrides $ARGPIPE_CLEANUP_PROMPTS)"),
		pollInterval:   fs.Duration("job-poll-interval", config.PollInterval, "how often due reminders are checked (overrides $ARGPIPE_JOB_POLL_INTERVAL)"),
	}

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	*flags.transport = strings.ToLower(strings.TrimSpace(*flags.transport))
	switch *flags.transport {
	case TransportWhatsApp, TransportTwilio, TransportNone:
	default:
		return Flags{}, fmt.Errorf("unknown transport %q", *flags.transport)
	}

	// File-backed databases follow the state directory unless set explicitly.
	if *flags.dbDSN == "" {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
	}
	if *flags.waDSN == "" {
		*flags.waDSN = "file:" + filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_type", store.DetectDSNType(*flags.dbDSN),
		"transport", *flags.transport,
		"prefix", *flags.prefix,
		"apiAddr", *flags.apiAddr,
		"commandsFile", *flags.commandsFile,
		"promptTimeout", *flags.promptTimeout,
		"promptRetries", *flags.promptRetries,
		"cleanupPrompts", *flags.cleanupPrompts,
		"pollInterval", *flags.pollInterval)

	return flags, nil
}
