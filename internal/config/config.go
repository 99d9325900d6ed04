package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type ServerConfig struct {
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
}

// StoreConfig selects where seen ids, daily logs and reports live.
type StoreConfig struct {
	Backend string `envconfig:"STORE_BACKEND" default:"postgres" validate:"oneof=postgres dynamo memory"`

	DBDSN               string        `envconfig:"DB_DSN" validate:"required_if=Backend postgres"`
	DBMaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=0"`
	DBMinConns          int32         `envconfig:"DB_MIN_CONNS" default:"0" validate:"min=0"`
	DBMaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	DBMaxConnIdleTime   time.Duration `envconfig:"DB_MAX_CONN_IDLE_TIME" default:"5m"`
	DBHealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"30s"`

	DynamoTable string `envconfig:"DYNAMO_TABLE" validate:"required_if=Backend dynamo"`

	// AWS
	AWSRegion          string `envconfig:"AWS_REGION" default:"us-east-1"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
}

// ProvidersConfig covers the outbound collaborators the engine talks to.
type ProvidersConfig struct {
	GraphAPIURL   string `envconfig:"GRAPH_API_URL" default:"https://graph.facebook.com/v21.0" validate:"url"`
	GraphAPIToken string `envconfig:"GRAPH_API_TOKEN" validate:"required"`

	SCIAPIURL          string `envconfig:"SCI_API_URL" validate:"required,url"`
	SCIUsername        string `envconfig:"SCI_USERNAME" validate:"required"`
	SCIPassword        string `envconfig:"SCI_PASSWORD" validate:"required"`
	SCIClientID        string `envconfig:"SCI_CLIENT_ID" default:"1"`
	SCIParamID         string `envconfig:"SCI_PARAM_ID" default:"127"`
	SCIPaymentClientID string `envconfig:"SCI_PAYMENT_CLIENT_ID" default:"910"`
	SCIPayerEmail      string `envconfig:"SCI_PAYER_EMAIL" validate:"omitempty,email"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY" validate:"required"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" validate:"omitempty,url"`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`

	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"60s" validate:"min=1s"`
	// Budget for one inbound message. Covers extract, auth, lookup, draft
	// and send in sequence, so it must exceed several HTTP_TIMEOUTs.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"330s" validate:"gtfield=HTTPTimeout"`
	// Replies get their own deadline, independent of the request budget.
	SendTimeout time.Duration `envconfig:"SEND_TIMEOUT" default:"15s" validate:"min=1s"`

	// Local token bucket for Graph API sends (per pod)
	OutboundRPS   float64 `envconfig:"OUTBOUND_RPS" default:"20" validate:"min=0"`
	OutboundBurst int     `envconfig:"OUTBOUND_BURST" default:"40" validate:"min=0"`

	BreakerMaxFailures uint32        `envconfig:"BREAKER_MAX_FAILURES" default:"5"`
	BreakerOpenTimeout time.Duration `envconfig:"BREAKER_OPEN_TIMEOUT" default:"30s"`
}

type WebhookConfig struct {
	ServerConfig
	StoreConfig
	ProvidersConfig

	PhoneNumberID string `envconfig:"PHONE_NUMBER_ID" validate:"required"`
	AppSecret     string `envconfig:"APP_SECRET" validate:"required"`
	VerifyToken   string `envconfig:"WEBHOOK_VERIFY_TOKEN" validate:"required"`

	// Daily logs are keyed by the calendar date at this offset.
	BusinessUTCOffsetHours int `envconfig:"BUSINESS_UTC_OFFSET_HOURS" default:"-5" validate:"min=-12,max=14"`

	DispatchMode string `envconfig:"DISPATCH_MODE" default:"inline" validate:"oneof=inline sqs"`
	SQSQueueURL  string `envconfig:"SQS_QUEUE_URL" validate:"required_if=DispatchMode sqs"`
}

// BusinessOffset is the configured offset as a duration.
func (c WebhookConfig) BusinessOffset() time.Duration {
	return time.Duration(c.BusinessUTCOffsetHours) * time.Hour
}

type WorkerConfig struct {
	ServerConfig
	StoreConfig
	ProvidersConfig

	// AWS / SQS
	SQSQueueURL   string `envconfig:"SQS_QUEUE_URL" validate:"required"`
	SQSWaitTime   int32  `envconfig:"SQS_WAIT_TIME" default:"20" validate:"min=0,max=20"`
	SQSMaxMsgs    int32  `envconfig:"SQS_MAX_MSGS" default:"10" validate:"min=1,max=10"`
	SQSVizTimeout int32  `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"360" validate:"min=0"`

	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"10" validate:"min=1"`
}

type MigrateConfig struct {
	DBDSN     string `envconfig:"DB_DSN" validate:"required"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// MockProviderConfig drives cmd/mock-provider, the local stand-in for the
// Graph API and the SCI API.
type MockProviderConfig struct {
	Port      string `envconfig:"PORT" default:"8089"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// found | none | error
	DebtMode string        `envconfig:"MOCK_DEBT_MODE" default:"found" validate:"oneof=found none error"`
	Delay    time.Duration `envconfig:"MOCK_DELAY" default:"0s"`

	// Simulated inbound deliveries are signed with AppSecret and posted to
	// WebhookURL on behalf of PhoneNumberID.
	WebhookURL    string `envconfig:"MOCK_WEBHOOK_URL" default:"http://localhost:8080/api/webhookMeta/webhookMessage" validate:"url"`
	AppSecret     string `envconfig:"APP_SECRET" default:"mock_secret"`
	PhoneNumberID string `envconfig:"PHONE_NUMBER_ID" default:"mock_phone_id"`

	WebhookMaxRetries int           `envconfig:"MOCK_WEBHOOK_MAX_RETRIES" default:"3" validate:"min=0"`
	WebhookRetryBase  time.Duration `envconfig:"MOCK_WEBHOOK_RETRY_BASE" default:"250ms"`
	WebhookRetryMax   time.Duration `envconfig:"MOCK_WEBHOOK_RETRY_MAX" default:"5s"`
}

func LoadWebhook() (WebhookConfig, error) {
	var cfg WebhookConfig
	return cfg, load(&cfg)
}

func LoadWorker() (WorkerConfig, error) {
	var cfg WorkerConfig
	return cfg, load(&cfg)
}

func LoadMigrate() (MigrateConfig, error) {
	var cfg MigrateConfig
	return cfg, load(&cfg)
}

func LoadMockProvider() (MockProviderConfig, error) {
	var cfg MockProviderConfig
	return cfg, load(&cfg)
}

// load reads an optional .env file, then the environment, then validates.
// Variables already set in the environment win over .env entries.
func load(cfg any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if err := envconfig.Process("", cfg); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
