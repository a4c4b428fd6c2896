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
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/PrimeBot/internal/api"
	"github.com/BTreeMap/PrimeBot/internal/flow"
	"github.com/BTreeMap/PrimeBot/internal/genai"
	"github.com/BTreeMap/PrimeBot/internal/lockfile"
	"github.com/BTreeMap/PrimeBot/internal/planner"
	"github.com/BTreeMap/PrimeBot/internal/store"
	"github.com/BTreeMap/PrimeBot/internal/twiliowhatsapp"
	"github.com/BTreeMap/PrimeBot/internal/util"
	"github.com/BTreeMap/PrimeBot/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for PrimeBot state data
	DefaultStateDir = "/var/lib/primebot"
	// DefaultAppDBFileName is the default SQLite database for sessions, pains and preferences
	DefaultAppDBFileName = "primebot.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow device database
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// MemoryDSN selects the in-memory store.
	MemoryDSN = "memory"
)

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(os.Stdout, config.LogLevel)

	flags, err := parseCommandLineFlags(config, os.Args[1:])
	if err != nil {
		slog.Error("Invalid command line", "error", err)
		os.Exit(2)
	}

	lock, err := lockfile.AcquireLock(flags.StateDir)
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	mods, err := buildModules(flags)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		lock.Release()
		os.Exit(2)
	}
	apiOpts, err := buildAPIOptions(flags)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		lock.Release()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping PrimeBot", "state_dir", flags.StateDir, "transport", flags.Transport, "api_addr", flags.APIAddr)
	if err := api.Run(ctx, mods, apiOpts...); err != nil {
		slog.Error("PrimeBot failed to run", "error", err)
		stop()
		lock.Release()
		os.Exit(1)
	}
	slog.Info("PrimeBot exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir            string
	DatabaseURL         string
	WhatsAppDSN         string
	OpenAIKey           string
	OpenAIModel         string
	OpenAIBaseURL       string
	OpenAITemperature   float64
	OpenAIMaxTokens     int
	GenAIDebug          bool
	APIAddr             string
	SystemPromptFile    string
	CannedFile          string
	CatalogFile         string
	CollaboratorTimeout time.Duration
	PainResolution      string
	Transport           string
	QueueSize           int
	IdleTimeout         time.Duration
	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioFromNumber    string
	LogLevel            string
}

// Flags holds resolved settings after command line overrides.
type Flags struct {
	StateDir            string
	DatabaseDSN         string
	WhatsAppDSN         string
	QROutput            string
	NumericCode         bool
	OpenAIKey           string
	OpenAIModel         string
	OpenAIBaseURL       string
	OpenAITemperature   float64
	OpenAIMaxTokens     int
	GenAIDebug          bool
	APIAddr             string
	SystemPromptFile    string
	CannedFile          string
	CatalogFile         string
	CollaboratorTimeout time.Duration
	PainResolution      string
	Transport           string
	QueueSize           int
	IdleTimeout         time.Duration
	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioFromNumber    string
}

// initializeLogger installs the default text logger at the configured level.
func initializeLogger(w io.Writer, level string) {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

// parseLogLevel maps PRIMEBOT_LOG_LEVEL to a slog level; debug is the default.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:            os.Getenv("PRIMEBOT_STATE_DIR"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		WhatsAppDSN:         os.Getenv("WHATSAPP_DB_DSN"),
		OpenAIKey:           os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:         os.Getenv("OPENAI_MODEL"),
		OpenAIBaseURL:       os.Getenv("OPENAI_BASE_URL"),
		OpenAITemperature:   util.ParseFloatEnv("OPENAI_TEMPERATURE", 0),
		OpenAIMaxTokens:     util.ParseIntEnv("OPENAI_MAX_TOKENS", 0),
		GenAIDebug:          util.ParseBoolEnv("PRIMEBOT_GENAI_DEBUG", false),
		APIAddr:             os.Getenv("API_ADDR"),
		SystemPromptFile:    os.Getenv("PRIMEBOT_SYSTEM_PROMPT_FILE"),
		CannedFile:          os.Getenv("PRIMEBOT_CANNED_FILE"),
		CatalogFile:         os.Getenv("PRIMEBOT_CATALOG_FILE"),
		CollaboratorTimeout: util.ParseDurationEnv("PRIMEBOT_COLLABORATOR_TIMEOUT", flow.DefaultCollaboratorTimeout),
		PainResolution:      os.Getenv("PRIMEBOT_PAIN_RESOLUTION"),
		Transport:           os.Getenv("PRIMEBOT_TRANSPORT"),
		QueueSize:           util.ParseIntEnv("PRIMEBOT_QUEUE_SIZE", flow.DefaultQueueSize),
		IdleTimeout:         util.ParseDurationEnv("PRIMEBOT_SESSION_IDLE_TIMEOUT", flow.DefaultIdleTimeout),
		TwilioAccountSID:    os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:     os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:    os.Getenv("TWILIO_FROM_NUMBER"),
		LogLevel:            os.Getenv("PRIMEBOT_LOG_LEVEL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No PRIMEBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"PRIMEBOT_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"API_ADDR", config.APIAddr,
		"PRIMEBOT_TRANSPORT", config.Transport,
		"PRIMEBOT_PAIN_RESOLUTION", config.PainResolution,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "")

	return config
}

// parseCommandLineFlags parses args with environment defaults. Database paths
// left unset are derived from the final state directory.
func parseCommandLineFlags(config Config, args []string) (Flags, error) {
	fs := flag.NewFlagSet("primebot", flag.ContinueOnError)
	f := Flags{}
	fs.StringVar(&f.StateDir, "state-dir", config.StateDir, "state directory for PrimeBot data (overrides $PRIMEBOT_STATE_DIR)")
	fs.StringVar(&f.DatabaseDSN, "db-dsn", config.DatabaseURL, "application database DSN, a SQLite path, a Postgres URL or \"memory\" (overrides $DATABASE_URL)")
	fs.StringVar(&f.WhatsAppDSN, "whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow device database DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&f.QROutput, "qr-output", "", "path to write the WhatsApp login QR code")
	fs.BoolVar(&f.NumericCode, "numeric-code", false, "print the WhatsApp pairing code instead of a QR code")
	fs.StringVar(&f.OpenAIKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&f.OpenAIModel, "openai-model", config.OpenAIModel, "chat model (overrides $OPENAI_MODEL)")
	fs.StringVar(&f.OpenAIBaseURL, "openai-base-url", config.OpenAIBaseURL, "OpenAI-compatible endpoint (overrides $OPENAI_BASE_URL)")
	fs.Float64Var(&f.OpenAITemperature, "openai-temperature", config.OpenAITemperature, "sampling temperature, 0 keeps the default (overrides $OPENAI_TEMPERATURE)")
	fs.IntVar(&f.OpenAIMaxTokens, "openai-max-tokens", config.OpenAIMaxTokens, "completion token limit, 0 keeps the default (overrides $OPENAI_MAX_TOKENS)")
	fs.BoolVar(&f.GenAIDebug, "genai-debug", config.GenAIDebug, "write model requests to the state directory (overrides $PRIMEBOT_GENAI_DEBUG)")
	fs.StringVar(&f.APIAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&f.SystemPromptFile, "system-prompt-file", config.SystemPromptFile, "chat system prompt file (overrides $PRIMEBOT_SYSTEM_PROMPT_FILE)")
	fs.StringVar(&f.CannedFile, "canned-file", config.CannedFile, "YAML table of canned replies replacing the built-in one (overrides $PRIMEBOT_CANNED_FILE)")
	fs.StringVar(&f.CatalogFile, "catalog-file", config.CatalogFile, "YAML exercise safety catalog replacing the built-in one (overrides $PRIMEBOT_CATALOG_FILE)")
	fs.DurationVar(&f.CollaboratorTimeout, "collaborator-timeout", config.CollaboratorTimeout, "bound on each collaborator call (overrides $PRIMEBOT_COLLABORATOR_TIMEOUT)")
	fs.StringVar(&f.PainResolution, "pain-resolution", config.PainResolution, "ambiguous pain resolution: ask or first (overrides $PRIMEBOT_PAIN_RESOLUTION)")
	fs.StringVar(&f.Transport, "transport", config.Transport, "messaging transport: none, twilio or whatsapp (overrides $PRIMEBOT_TRANSPORT)")
	fs.IntVar(&f.QueueSize, "queue-size", config.QueueSize, "turns that may wait per user (overrides $PRIMEBOT_QUEUE_SIZE)")
	fs.DurationVar(&f.IdleTimeout, "session-idle-timeout", config.IdleTimeout, "idle time before a user worker exits (overrides $PRIMEBOT_SESSION_IDLE_TIMEOUT)")
	f.TwilioAccountSID = config.TwilioAccountSID
	f.TwilioAuthToken = config.TwilioAuthToken
	f.TwilioFromNumber = config.TwilioFromNumber

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	if f.DatabaseDSN == "" {
		f.DatabaseDSN = filepath.Join(f.StateDir, DefaultAppDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", f.DatabaseDSN)
	}
	if f.WhatsAppDSN == "" {
		f.WhatsAppDSN = "file:" + filepath.Join(f.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}

	slog.Debug("flags parsed",
		"stateDir", f.StateDir,
		"dbDSN_set", f.DatabaseDSN != "",
		"openaiKeySet", f.OpenAIKey != "",
		"apiAddr", f.APIAddr,
		"transport", f.Transport,
		"collaboratorTimeout", f.CollaboratorTimeout)
	return f, nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	if flags.DatabaseDSN == MemoryDSN {
		slog.Debug("In-memory store requested")
		return nil
	}
	if store.DetectDSNType(flags.DatabaseDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		return []store.Option{store.WithPostgresDSN(flags.DatabaseDSN)}
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", flags.DatabaseDSN)
	return []store.Option{store.WithSQLiteDSN(flags.DatabaseDSN)}
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var opts []genai.Option
	if flags.OpenAIKey != "" {
		opts = append(opts, genai.WithAPIKey(flags.OpenAIKey))
	}
	if flags.OpenAIModel != "" {
		opts = append(opts, genai.WithModel(flags.OpenAIModel))
	}
	if flags.OpenAIBaseURL != "" {
		opts = append(opts, genai.WithBaseURL(flags.OpenAIBaseURL))
	}
	if flags.OpenAITemperature > 0 {
		opts = append(opts, genai.WithTemperature(flags.OpenAITemperature))
	}
	if flags.OpenAIMaxTokens > 0 {
		opts = append(opts, genai.WithMaxTokens(flags.OpenAIMaxTokens))
	}
	if flags.GenAIDebug {
		opts = append(opts, genai.WithDebugMode(true), genai.WithStateDir(flags.StateDir))
	}
	return opts
}

// buildPlannerOptions loads a custom exercise catalog when one is configured.
func buildPlannerOptions(flags Flags) ([]planner.Option, error) {
	if flags.CatalogFile == "" {
		return nil, nil
	}
	catalog, err := planner.LoadCatalogFile(flags.CatalogFile)
	if err != nil {
		return nil, err
	}
	slog.Debug("Using custom exercise catalog", "path", flags.CatalogFile)
	return []planner.Option{planner.WithCatalog(catalog)}, nil
}

// buildFlowOptions constructs orchestrator options.
func buildFlowOptions(flags Flags) ([]flow.Option, error) {
	policy, ok := flow.ParsePainResolutionPolicy(flags.PainResolution)
	if !ok {
		return nil, fmt.Errorf("unknown pain resolution policy %q", flags.PainResolution)
	}
	return []flow.Option{
		flow.WithCollaboratorTimeout(flags.CollaboratorTimeout),
		flow.WithPainResolutionPolicy(policy),
	}, nil
}

// buildTwilioOptions constructs Twilio client options
func buildTwilioOptions(flags Flags) []twiliowhatsapp.Option {
	var opts []twiliowhatsapp.Option
	if flags.TwilioAccountSID != "" {
		opts = append(opts, twiliowhatsapp.WithAccountSID(flags.TwilioAccountSID))
	}
	if flags.TwilioAuthToken != "" {
		opts = append(opts, twiliowhatsapp.WithAuthToken(flags.TwilioAuthToken))
	}
	if flags.TwilioFromNumber != "" {
		opts = append(opts, twiliowhatsapp.WithFromWhats(flags.TwilioFromNumber))
	}
	return opts
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var opts []whatsapp.Option
	if flags.WhatsAppDSN != "" {
		opts = append(opts, whatsapp.WithDBDSN(flags.WhatsAppDSN))
	}
	if flags.QROutput != "" {
		opts = append(opts, whatsapp.WithQRCodeOutput(flags.QROutput))
	}
	if flags.NumericCode {
		opts = append(opts, whatsapp.WithNumericCode())
	}
	return opts
}

// buildModules gathers the options of every component api.Run assembles.
func buildModules(flags Flags) (api.Modules, error) {
	flowOpts, err := buildFlowOptions(flags)
	if err != nil {
		return api.Modules{}, err
	}
	plannerOpts, err := buildPlannerOptions(flags)
	if err != nil {
		return api.Modules{}, err
	}
	return api.Modules{
		Store:    buildStoreOptions(flags),
		GenAI:    buildGenAIOptions(flags),
		Planner:  plannerOpts,
		Flow:     flowOpts,
		Runner:   []flow.RunnerOption{flow.WithQueueSize(flags.QueueSize), flow.WithIdleTimeout(flags.IdleTimeout)},
		Twilio:   buildTwilioOptions(flags),
		WhatsApp: buildWhatsAppOptions(flags),
	}, nil
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) ([]api.Option, error) {
	transport, err := api.ParseTransport(flags.Transport)
	if err != nil {
		return nil, err
	}
	opts := []api.Option{api.WithTransport(transport)}
	if flags.APIAddr != "" {
		opts = append(opts, api.WithAddr(flags.APIAddr))
	}
	if flags.SystemPromptFile != "" {
		opts = append(opts, api.WithSystemPromptFile(flags.SystemPromptFile))
	}
	if flags.CannedFile != "" {
		opts = append(opts, api.WithCannedFile(flags.CannedFile))
	}
	if transport == api.TransportTwilio && (flags.TwilioAccountSID == "" || flags.TwilioAuthToken == "") {
		return nil, errors.New("twilio transport needs TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN")
	}
	return opts, nil
}
