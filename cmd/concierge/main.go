// Command concierge runs the conversational concierge core with a terminal
// front end and an HTTP health/metrics endpoint.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/real-business/concierge/internal/chat"
	"github.com/real-business/concierge/internal/concierge"
	"github.com/real-business/concierge/internal/config"
	"github.com/real-business/concierge/internal/health"
	"github.com/real-business/concierge/internal/history"
	"github.com/real-business/concierge/internal/observe"
	"github.com/real-business/concierge/internal/session"
	"github.com/real-business/concierge/pkg/provider/chatapi"
	chatazure "github.com/real-business/concierge/pkg/provider/chatapi/azureapi"
	dirazure "github.com/real-business/concierge/pkg/provider/directory/azureapi"
	speechazure "github.com/real-business/concierge/pkg/provider/speech/azure"
	translateazure "github.com/real-business/concierge/pkg/provider/translate/azure"
	"github.com/real-business/concierge/pkg/provider/videocall/tavus"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Logger (level is hot-reloadable via the config watcher) ───────────────
	logLevel := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// ── Load configuration + watch for changes ────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.WidgetChanged {
			slog.Warn("widget settings changed on disk; restart to apply")
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "concierge: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "concierge: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()

	cfg := watcher.Current()
	logLevel.Set(slogLevel(cfg.Server.LogLevel))

	slog.Info("concierge starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "concierge"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	providers, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Health + metrics server ───────────────────────────────────────────────
	srv := startHTTPServer(cfg)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, providers)

	// ── Concierge instance ────────────────────────────────────────────────────
	c, err := concierge.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise concierge", "err", err)
		return 1
	}

	go printEvents(ctx, c)

	c.Open(ctx)
	fmt.Println(`Type a message, or /help for commands. Ctrl+C to quit.`)

	repl(ctx, c)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down…")
	if err := c.Close(shutdownCtx); err != nil {
		slog.Warn("concierge close error", "err", err)
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildProviders instantiates every backend client the config names. Only
// the completion backend is mandatory; missing credentials leave the
// corresponding slot nil and the feature disabled.
func buildProviders(cfg *config.Config) (*concierge.Providers, error) {
	ps := &concierge.Providers{}

	chatClient, err := chatazure.New(cfg.Assistant.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("create completion client: %w", err)
	}
	// Fail fast on a dead backend instead of timing out every turn.
	ps.Chat = chatapi.NewBreaker(chatClient, chatapi.BreakerConfig{})

	dirClient, err := dirazure.New(cfg.Assistant.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("create directory client: %w", err)
	}
	ps.Directory = dirClient

	recorder, err := history.NewRecorder(cfg.Assistant.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("create history recorder: %w", err)
	}
	ps.History = recorder

	trainer, err := history.NewTrainer(cfg.Assistant.BaseURL, cfg.Assistant.UserID, cfg.Assistant.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("create trainer: %w", err)
	}
	ps.Training = trainer

	if cfg.Speech.Key != "" && cfg.Speech.Region != "" {
		recognizer, err := speechazure.New(cfg.Speech.Key, cfg.Speech.Region)
		if err != nil {
			return nil, fmt.Errorf("create speech recognizer: %w", err)
		}
		ps.Speech = recognizer
	}

	if cfg.Translator.Configured() {
		translator, err := translateazure.New(cfg.Translator.Key, cfg.Translator.Endpoint, cfg.Translator.Region)
		if err != nil {
			return nil, fmt.Errorf("create translator: %w", err)
		}
		ps.Translator = translator
	}

	if cfg.Video.APIKey != "" {
		video, err := tavus.New(cfg.Video.APIKey)
		if err != nil {
			return nil, fmt.Errorf("create video client: %w", err)
		}
		ps.Video = video
		ps.Signal = video
	}

	return ps, nil
}

// ── HTTP server ───────────────────────────────────────────────────────────────

// startHTTPServer serves /healthz, /readyz, and /metrics when a listen
// address is configured. Returns nil when it is not.
func startHTTPServer(cfg *config.Config) *http.Server {
	if cfg.Server.ListenAddr == "" {
		return nil
	}

	mux := http.NewServeMux()
	health.New(health.Endpoint("assistant", cfg.Assistant.BaseURL, nil)).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: observe.Middleware(observe.DefaultMetrics())(mux),
	}
	go func() {
		slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
		}
	}()
	return srv
}

// ── Terminal front end ────────────────────────────────────────────────────────

const helpText = `Commands:
  /call              start a video call
  /ready             pass the device check
  /join              join the staged call
  /end               end the call
  /mic on|off        open or close the microphone
  /lang <language>   switch language (en, es, fr, de, or a name)
  /upload <path>     attach a file to the next message
  /continue          press the Continue affordance
  /retry             retry the last failed message
  /like, /dislike    rate the last reply
  /help              show this help
Anything else is sent as a chat message.`

// repl reads stdin commands until ctx is cancelled or stdin closes.
func repl(ctx context.Context, c *concierge.Concierge) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			handleLine(ctx, c, line)
		}
	}
}

// handleLine executes one REPL line.
func handleLine(ctx context.Context, c *concierge.Concierge, line string) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/help":
		fmt.Println(helpText)

	case "/call":
		c.StartCall(ctx)
		fmt.Printf("screen: %s\n", c.Screen())

	case "/ready":
		c.SetDeviceState(true, true)
		fmt.Println("device check passed")

	case "/join":
		if err := c.JoinCall(); err != nil {
			fmt.Printf("join: %v\n", err)
			return
		}
		fmt.Println("joined")

	case "/end":
		c.EndCall(ctx)
		fmt.Println("call ended")

	case "/mic":
		c.SetMicActive(ctx, arg == "on")

	case "/lang":
		c.SetLanguage(ctx, arg)
		fmt.Printf("language: %s\n", c.Snapshot().Language)

	case "/upload":
		uploadFile(c, arg)

	case "/continue":
		reportBusy(c.Continue(ctx))

	case "/retry":
		reportBusy(c.Retry(ctx))

	case "/like", "/dislike":
		rateLastReply(ctx, c, cmd == "/like")

	default:
		reportBusy(c.SubmitTurn(ctx, line))
	}
}

// uploadFile queues a local file as the next turn's attachment.
func uploadFile(c *concierge.Concierge, path string) {
	if path == "" {
		fmt.Println("usage: /upload <path>")
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("upload: %v\n", err)
		return
	}
	c.UploadFile(session.File{
		Name:        filepath.Base(path),
		ContentType: http.DetectContentType(data),
		Data:        data,
	})
	fmt.Printf("attached %s (%d bytes); it rides along with your next message\n", filepath.Base(path), len(data))
}

// rateLastReply records feedback against the most recent assistant message.
func rateLastReply(ctx context.Context, c *concierge.Concierge, like bool) {
	msgs := c.Snapshot().Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Sender != session.SenderAI {
			continue
		}
		kind := chat.FeedbackDislike
		if like {
			kind = chat.FeedbackLike
		}
		if err := c.Feedback(ctx, msgs[i].ID, kind); err != nil {
			fmt.Printf("feedback: %v\n", err)
		}
		return
	}
	fmt.Println("nothing to rate yet")
}

func reportBusy(err error) {
	if errors.Is(err, concierge.ErrBusy) {
		fmt.Println("hold on — still thinking about the last one")
	}
}

// printEvents renders the session event stream to the terminal.
func printEvents(ctx context.Context, c *concierge.Concierge) {
	events, unsubscribe := c.Events()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case session.EventMessageAppended:
				fmt.Printf("[%s] %s\n", ev.Message.Sender, ev.Message.Text)
			case session.EventLoadingChanged:
				if ev.Loading {
					fmt.Println("…")
				}
			case session.EventFlagsChanged:
				printFlags(ev.Flags)
			case session.EventCallChanged:
				fmt.Printf("call active: %v\n", ev.CallActive)
			case session.EventLanguageChanged:
				fmt.Printf("language now %s\n", ev.Text)
			}
		}
	}
}

func printFlags(f session.Flags) {
	var offers []string
	if f.ShowContinue {
		offers = append(offers, "/continue")
	}
	if f.ShowRetry {
		offers = append(offers, "/retry")
	}
	if f.ShowBuyNow {
		offers = append(offers, "buy now")
	}
	if f.InterviewCompleted {
		offers = append(offers, "sign up")
	}
	if len(offers) > 0 {
		fmt.Printf("available: %s\n", strings.Join(offers, ", "))
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, ps *concierge.Providers) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Concierge — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printFeature("Assistant", true)
	printFeature("Speech", ps.Speech != nil)
	printFeature("Translator", ps.Translator != nil)
	printFeature("Video calls", ps.Video != nil)
	fmt.Printf("║  %-14s : %-19s ║\n", "Language", defaultLanguage(cfg))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  %-14s : %-19s ║\n", "Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printFeature(name string, enabled bool) {
	value := "(disabled)"
	if enabled {
		value = "enabled"
	}
	fmt.Printf("║  %-14s : %-19s ║\n", name, value)
}

func defaultLanguage(cfg *config.Config) string {
	if cfg.Widget.DefaultLanguage != "" {
		return cfg.Widget.DefaultLanguage
	}
	return "en"
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
