package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	intake "github.com/hireloop/go-intake"
	"github.com/hireloop/go-intake/adapters/gologger"
	"github.com/hireloop/go-intake/core"
	"github.com/hireloop/go-intake/inbound"
	intakemigrations "github.com/hireloop/go-intake/migrations"
	"github.com/hireloop/go-intake/providers/mail"
	"github.com/hireloop/go-intake/providers/meet"
	"github.com/hireloop/go-intake/ratelimit"
	sqlstore "github.com/hireloop/go-intake/store/sql"
	"github.com/hireloop/go-intake/transport"
	"github.com/hireloop/go-intake/webhooks"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "intake-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, relying on OS environment variables")
	}

	loggerProvider, logger := gologger.Resolve("intake", nil, newSlogLogger())
	runtime, err := core.NewRuntime(core.Config{},
		core.WithLogger(logger),
		core.WithLoggerProvider(loggerProvider),
		core.WithConfigProvider(core.NewCfgxConfigProvider(envConfigLoader{})),
	)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	cfg := runtime.Config
	instr := runtime.Instrumentation

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := openPersistence(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return fmt.Errorf("build repository factory: %w", err)
	}
	ledger := factory.EventLedgerStore()
	ledger.PayloadByteLimit = cfg.PayloadByteLimit
	interviews, err := newInterviewStore(factory)
	if err != nil {
		return err
	}
	campaigns := factory.CampaignStore()

	pipeline := core.NewAsyncPipelineTrigger(func(ctx context.Context, interviewID string) error {
		// TODO: call the transcription service once its endpoint ships;
		// until then the trigger only records the request.
		instr.LogInfo(ctx, "transcription requested", map[string]any{
			"interview_id": interviewID,
		})
		return nil
	}, instr)
	defer pipeline.Close()

	dispatcher := inbound.NewDispatcher(instr)
	meetHandler := meet.NewHandler(interviews, pipeline, instr)
	if err := meetHandler.Register(dispatcher); err != nil {
		return fmt.Errorf("register meet handlers: %w", err)
	}
	mailHandler := mail.NewHandler(campaigns, instr)
	if err := mailHandler.Register(dispatcher); err != nil {
		return fmt.Errorf("register mail handlers: %w", err)
	}

	meetAdapter := meet.NewAdapter(cfg.Meet.SigningSecret)
	meetAdapter.Verifier.Skew = cfg.TolerableSkew
	mailAdapter := mail.NewAdapter(cfg.Mail.SigningSecret)
	mailAdapter.Verifier.Skew = cfg.TolerableSkew

	processor := webhooks.NewProcessor(ledger, dispatcher, meetAdapter, mailAdapter)
	processor.Instr = instr
	processor.MaxAttempts = cfg.Retry.MaxAttempts
	processor.Limiter = ratelimit.NewFixedWindowPolicy(cfg.Ingress.RequestsPerMinute, time.Minute)

	sweeper := webhooks.NewSweeper(ledger, processor)
	sweeper.Instr = instr
	sweeper.Batch = cfg.Retry.SweepBatch
	go runSweepLoop(ctx, sweeper, instr)

	facade, err := intake.NewFacade(ledger, interviews)
	if err != nil {
		return fmt.Errorf("build facade: %w", err)
	}
	commands := facade.Commands()
	queries := facade.Queries()

	webhookHandler := transport.NewWebhookHandler(processor, instr)
	webhookHandler.MaxBodyBytes = cfg.Ingress.MaxBodyBytes
	adminHandler := &transport.AdminHandler{
		GetEvent:            queries.GetEvent,
		ListDeadLetters:     queries.ListDeadLetters,
		GetInterview:        queries.GetInterview,
		ReplayEvent:         commands.ReplayEvent,
		CancelInterview:     commands.CancelInterview,
		RescheduleInterview: commands.RescheduleInterview,
		Transcripts:         core.NewTranscriptRecorder(interviews, instr),
	}

	addr := envOrDefault("INTAKE_HTTP_ADDR", ":8080")
	server := &http.Server{
		Addr:              addr,
		Handler:           transport.NewRouter(webhookHandler, adminHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		instr.LogInfo(ctx, "intake server listening", map[string]any{"addr": addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newInterviewStore(factory *sqlstore.RepositoryFactory) (*sqlstore.CachedInterviewStore, error) {
	base := factory.InterviewStore()
	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = durationEnv("INTAKE_INTERVIEW_CACHE_TTL", 30*time.Second)
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		return nil, fmt.Errorf("build interview cache: %w", err)
	}
	cached, err := sqlstore.NewCachedInterviewStore(base, cacheService)
	if err != nil {
		return nil, fmt.Errorf("build cached interview store: %w", err)
	}
	return cached, nil
}

func openPersistence(ctx context.Context) (*persistence.Client, error) {
	driver := envOrDefault("DATABASE_DRIVER", "postgres")
	dsn := os.Getenv("DATABASE_URL")
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var dialect schema.Dialect
	var migrationDialect string
	switch driver {
	case "postgres":
		dialect = pgdialect.New()
		migrationDialect = intakemigrations.DialectPostgres
	case "sqlite3":
		dialect = sqlitedialect.New()
		migrationDialect = intakemigrations.DialectSQLite
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{driver: driver, server: dsn}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("new persistence client: %w", err)
	}

	_, err = intakemigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != migrationDialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, intakemigrations.WithValidationTargets(migrationDialect))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return client, nil
}

func runSweepLoop(ctx context.Context, sweeper *webhooks.Sweeper, instr *core.Instrumentation) {
	interval := durationEnv("INTAKE_SWEEP_INTERVAL", time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := sweeper.Sweep(ctx)
			if err != nil {
				instr.LogError(ctx, "retry sweep failed", map[string]any{"error": err.Error()})
				continue
			}
			if result.Scanned > 0 {
				instr.LogInfo(ctx, "retry sweep finished", map[string]any{
					"scanned":   result.Scanned,
					"completed": result.Completed,
					"retried":   result.Retried,
					"dead":      result.Dead,
				})
			}
		}
	}
}

type persistenceConfig struct {
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool                { return os.Getenv("INTAKE_DB_DEBUG") == "true" }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "go-intake" }

// envConfigLoader maps INTAKE_* environment variables onto the nested
// config layout the cfgx provider expects.
type envConfigLoader struct{}

func (envConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	raw := map[string]any{}

	setString(raw, "service_name", os.Getenv("INTAKE_SERVICE_NAME"))
	if skew, ok := lookupDuration("INTAKE_TOLERABLE_SKEW"); ok {
		raw["tolerable_skew"] = skew
	}
	if limit, ok := lookupInt("INTAKE_PAYLOAD_BYTE_LIMIT"); ok {
		raw["payload_byte_limit"] = limit
	}

	if secret := os.Getenv("INTAKE_MEET_SIGNING_SECRET"); secret != "" {
		raw["meet"] = map[string]any{"signing_secret": secret}
	}
	if secret := os.Getenv("INTAKE_MAIL_SIGNING_SECRET"); secret != "" {
		raw["mail"] = map[string]any{"signing_secret": secret}
	}

	retry := map[string]any{}
	if attempts, ok := lookupInt("INTAKE_RETRY_MAX_ATTEMPTS"); ok {
		retry["max_attempts"] = attempts
	}
	if batch, ok := lookupInt("INTAKE_RETRY_SWEEP_BATCH"); ok {
		retry["sweep_batch"] = batch
	}
	if len(retry) > 0 {
		raw["retry"] = retry
	}

	ingress := map[string]any{}
	if maxBody, ok := lookupInt("INTAKE_MAX_BODY_BYTES"); ok {
		ingress["max_body_bytes"] = int64(maxBody)
	}
	if rpm, ok := lookupInt("INTAKE_REQUESTS_PER_MINUTE"); ok {
		ingress["requests_per_minute"] = rpm
	}
	if len(ingress) > 0 {
		raw["ingress"] = ingress
	}

	return raw, nil
}

func setString(raw map[string]any, key, value string) {
	if strings.TrimSpace(value) != "" {
		raw[key] = value
	}
}

func lookupInt(name string) (int, bool) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func lookupDuration(name string) (time.Duration, bool) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return 0, false
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	if parsed, ok := lookupDuration(name); ok {
		return parsed
	}
	return fallback
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}
