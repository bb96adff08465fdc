package intake

import "github.com/hireloop/go-intake/core"

type Config = core.Config

type ProviderConfig = core.ProviderConfig

type RetryConfig = core.RetryConfig

type IngressConfig = core.IngressConfig

type Option = core.Option

type Runtime = core.Runtime

type Provider = core.Provider
type EventEnvelope = core.EventEnvelope
type InboundRequest = core.InboundRequest
type InboundResult = core.InboundResult
type LedgerClaim = core.LedgerClaim
type WebhookEvent = core.WebhookEvent
type Interview = core.Interview
type CampaignSend = core.CampaignSend
type EngagementInput = core.EngagementInput
type EngagementResult = core.EngagementResult

type EventLedger = core.EventLedger
type InterviewStore = core.InterviewStore
type CampaignStore = core.CampaignStore
type PipelineTrigger = core.PipelineTrigger
type MetricsRecorder = core.MetricsRecorder
type Instrumentation = core.Instrumentation

const (
	ProviderMeet = core.ProviderMeet
	ProviderMail = core.ProviderMail
)

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithErrorMapper     = core.WithErrorMapper
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewRuntime(cfg Config, opts ...Option) (*Runtime, error) {
	return core.NewRuntime(cfg, opts...)
}

func NewInstrumentation(logger core.Logger, metrics MetricsRecorder) *Instrumentation {
	return core.NewInstrumentation(logger, metrics)
}
