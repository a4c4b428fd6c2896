// Package api provides the HTTP server and process assembly for PrimeBot.
//
// It exposes the chat, session, pain and preference endpoints, and Run wires the
// store, the collaborators, the session runner and the optional messaging
// transport into one supervised process.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/PrimeBot/internal/canned"
	"github.com/BTreeMap/PrimeBot/internal/flow"
	"github.com/BTreeMap/PrimeBot/internal/genai"
	"github.com/BTreeMap/PrimeBot/internal/messaging"
	"github.com/BTreeMap/PrimeBot/internal/models"
	"github.com/BTreeMap/PrimeBot/internal/pain"
	"github.com/BTreeMap/PrimeBot/internal/planner"
	"github.com/BTreeMap/PrimeBot/internal/preferences"
	"github.com/BTreeMap/PrimeBot/internal/store"
	"github.com/BTreeMap/PrimeBot/internal/twiliowhatsapp"
	"github.com/BTreeMap/PrimeBot/internal/whatsapp"
)

// Defaults for the HTTP server.
const (
	DefaultAddr            = ":8080"
	DefaultRequestTimeout  = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Transport selects the messaging channel Run connects.
type Transport string

const (
	TransportNone     Transport = "none"
	TransportTwilio   Transport = "twilio"
	TransportWhatsApp Transport = "whatsapp"
)

// ParseTransport maps a configuration value to a Transport. Empty means none.
func ParseTransport(s string) (Transport, error) {
	switch Transport(s) {
	case "", TransportNone:
		return TransportNone, nil
	case TransportTwilio, TransportWhatsApp:
		return Transport(s), nil
	}
	return "", fmt.Errorf("unknown transport %q", s)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr             string
	RequestTimeout   time.Duration
	ShutdownTimeout  time.Duration
	Transport        Transport
	SystemPromptFile string
	CannedFile       string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithRequestTimeout bounds how long /chat waits for a turn.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Opts) {
		if d > 0 {
			o.RequestTimeout = d
		}
	}
}

// WithShutdownTimeout bounds graceful HTTP shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) {
		if d > 0 {
			o.ShutdownTimeout = d
		}
	}
}

// WithTransport selects the messaging transport.
func WithTransport(t Transport) Option {
	return func(o *Opts) {
		o.Transport = t
	}
}

// WithSystemPromptFile sets the file holding the chat system prompt.
func WithSystemPromptFile(path string) Option {
	return func(o *Opts) {
		o.SystemPromptFile = path
	}
}

// WithCannedFile replaces the built-in canned reply table with a YAML file.
func WithCannedFile(path string) Option {
	return func(o *Opts) {
		o.CannedFile = path
	}
}

func newOpts(opts []Option) Opts {
	cfg := Opts{
		Addr:            DefaultAddr,
		RequestTimeout:  DefaultRequestTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		Transport:       TransportNone,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

type chatRunner interface {
	Submit(ctx context.Context, userID, text string) (flow.TurnResult, error)
	Reset(ctx context.Context, userID string) error
	ActiveSessions() int
}

type sessionReader interface {
	Get(ctx context.Context, userID string) (models.Session, bool, error)
}

type painLister interface {
	List(ctx context.Context, userID string) ([]models.PainRecord, error)
}

type preferenceService interface {
	Get(ctx context.Context, userID string) (models.Preferences, error)
	Save(ctx context.Context, p models.Preferences) error
}

// Server holds the dependencies of the HTTP endpoints.
type Server struct {
	runner   chatRunner
	sessions sessionReader
	pains    painLister
	prefs    preferenceService
	dedup    store.DedupRepo
	webhook  http.HandlerFunc
	opts     Opts
}

// NewServer creates a Server. dedup and webhook may be nil; without a webhook
// the Twilio route is not registered.
func NewServer(runner chatRunner, sessions sessionReader, pains painLister, prefs preferenceService,
	dedup store.DedupRepo, webhook http.HandlerFunc, opts ...Option) *Server {
	return &Server{
		runner:   runner,
		sessions: sessions,
		pains:    pains,
		prefs:    prefs,
		dedup:    dedup,
		webhook:  webhook,
		opts:     newOpts(opts),
	}
}

// Handler returns the routed endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.chatHandler)
	mux.HandleFunc("/sessions/{userID}", s.sessionHandler)
	mux.HandleFunc("/users/{userID}/pains", s.painsHandler)
	mux.HandleFunc("/users/{userID}/preferences", s.preferencesHandler)
	mux.HandleFunc("/health", s.healthHandler)
	if s.webhook != nil {
		mux.HandleFunc("POST /twilio/webhook", s.webhook)
	}
	return mux
}

// Serve listens on the configured address until ctx ends, then shuts down.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Serve: listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()
	slog.Info("Server.Serve: shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Modules carries the options of every component Run assembles.
type Modules struct {
	Store    []store.Option
	GenAI    []genai.Option
	Planner  []planner.Option
	Flow     []flow.Option
	Runner   []flow.RunnerOption
	Twilio   []twiliowhatsapp.Option
	WhatsApp []whatsapp.Option
}

// Run assembles PrimeBot and blocks until ctx is cancelled or a component fails.
func Run(ctx context.Context, mods Modules, opts ...Option) error {
	cfg := newOpts(opts)

	st, err := store.New(mods.Store...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("Run: store close failed", "error", err)
		}
	}()

	gaClient, err := genai.NewClient(mods.GenAI...)
	if err != nil {
		return fmt.Errorf("failed to create GenAI client: %w", err)
	}

	pains := pain.NewTracker(st)
	prefs := preferences.NewService(st)
	plans, err := planner.NewGenerator(gaClient, pains, prefs, mods.Planner...)
	if err != nil {
		return fmt.Errorf("failed to create plan generator: %w", err)
	}
	table, err := loadCannedTable(cfg.CannedFile)
	if err != nil {
		return fmt.Errorf("failed to load canned responses: %w", err)
	}
	responder := genai.NewResponder(gaClient, genai.WithSystemPrompt(genai.LoadSystemPrompt(cfg.SystemPromptFile)))

	orch := flow.NewOrchestrator(flow.Collaborators{
		LLM:     responder,
		Planner: plans,
		Pains:   pains,
		Prefs:   prefs,
		Canned:  table,
	}, mods.Flow...)
	sessions := flow.NewSessionManager(st)
	runner := flow.NewSessionRunner(orch, sessions, mods.Runner...)
	defer runner.Close()

	svc, webhook, err := newTransport(ctx, cfg.Transport, mods)
	if err != nil {
		return err
	}

	if svc != nil {
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s transport: %w", cfg.Transport, err)
		}
	}
	server := NewServer(runner, sessions, pains, prefs, st, webhook, opts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Serve(gctx) })

	if svc != nil {
		bridge := messaging.NewBridge(svc, runner, st, st)
		sender := store.NewOutboxSender(st, messaging.SendFunc(svc))
		if err := sender.RecoverStaleMessages(); err != nil {
			slog.Warn("Run: outbox recovery failed", "error", err)
		}
		g.Go(func() error { return bridge.Run(gctx) })
		g.Go(func() error { return sender.Run(gctx) })
		g.Go(func() error {
			<-gctx.Done()
			return svc.Stop()
		})
	}

	slog.Info("Run: PrimeBot started", "addr", cfg.Addr, "transport", cfg.Transport)
	return g.Wait()
}

// newTransport connects the configured messaging transport. svc is nil for
// TransportNone; webhook is set only for Twilio.
func newTransport(ctx context.Context, t Transport, mods Modules) (messaging.Service, http.HandlerFunc, error) {
	switch t {
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient(mods.Twilio...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		svc := messaging.NewTwilioService(client)
		return svc, svc.TwilioWebhookHandler, nil
	case TransportWhatsApp:
		client, err := whatsapp.NewClient(ctx, mods.WhatsApp...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		context.AfterFunc(ctx, client.Disconnect)
		return messaging.NewWhatsAppService(client), nil, nil
	default:
		return nil, nil, nil
	}
}

// loadCannedTable reads path, or the built-in table when path is empty.
func loadCannedTable(path string) (*canned.Table, error) {
	if path == "" {
		return canned.Load()
	}
	slog.Info("Run: using custom canned table", "path", path)
	return canned.LoadFile(path)
}
