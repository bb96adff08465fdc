package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type engineBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
}

type Option func(*engineBuilder)

func WithLogger(logger Logger) Option {
	return func(b *engineBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *engineBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *engineBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *engineBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *engineBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *engineBuilder) {
		b.optionsResolver = resolver
	}
}

func defaultEngineBuilder(runtime Config) engineBuilder {
	loggerProvider, logger := glog.Resolve("intake", nil, nil)
	return engineBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     IntakeErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

// Runtime holds the resolved ambient dependencies the rest of the engine is
// wired with. Construct once at process start and pass by reference.
type Runtime struct {
	Config          Config
	Logger          Logger
	LoggerProvider  LoggerProvider
	Instrumentation *Instrumentation
	ErrorMapper     ErrorMapper
}

func NewRuntime(cfg Config, options ...Option) (*Runtime, error) {
	builder := defaultEngineBuilder(cfg)
	for _, option := range options {
		if option == nil {
			continue
		}
		option(&builder)
	}

	loaded, err := builder.configProvider.Load(context.Background(), DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("core: load config: %w", err)
	}
	resolved, err := builder.optionsResolver.Resolve(DefaultConfig(), loaded, builder.runtimeConfig)
	if err != nil {
		return nil, fmt.Errorf("core: resolve config: %w", err)
	}
	if err := resolved.Validate(); err != nil {
		return nil, err
	}

	mapper := builder.errorMapper
	if mapper == nil {
		mapper = IntakeErrorMapper
	}

	return &Runtime{
		Config:          resolved,
		Logger:          builder.logger,
		LoggerProvider:  builder.loggerProvider,
		Instrumentation: NewInstrumentation(builder.logger, builder.metricsRecorder),
		ErrorMapper:     mapper,
	}, nil
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || cfg.TolerableSkew > 0 {
		layer["tolerable_skew"] = cfg.TolerableSkew
	}
	if includeZero || cfg.PayloadByteLimit > 0 {
		layer["payload_byte_limit"] = cfg.PayloadByteLimit
	}
	if includeZero || strings.TrimSpace(cfg.Meet.SigningSecret) != "" {
		layer["meet"] = map[string]any{
			"signing_secret": cfg.Meet.SigningSecret,
		}
	}
	if includeZero || strings.TrimSpace(cfg.Mail.SigningSecret) != "" {
		layer["mail"] = map[string]any{
			"signing_secret": cfg.Mail.SigningSecret,
		}
	}
	if includeZero || cfg.Retry.MaxAttempts > 0 || cfg.Retry.SweepBatch > 0 {
		layer["retry"] = map[string]any{
			"max_attempts": cfg.Retry.MaxAttempts,
			"sweep_batch":  cfg.Retry.SweepBatch,
		}
	}
	if includeZero || cfg.Ingress.MaxBodyBytes > 0 || cfg.Ingress.RequestsPerMinute > 0 {
		layer["ingress"] = map[string]any{
			"max_body_bytes":      cfg.Ingress.MaxBodyBytes,
			"requests_per_minute": cfg.Ingress.RequestsPerMinute,
		}
	}
	return layer
}
