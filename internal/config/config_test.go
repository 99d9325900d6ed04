package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setWebhookEnv(t *testing.T) {
	t.Helper()
	for k, v := range map[string]string{
		"PHONE_NUMBER_ID":      "PNID",
		"APP_SECRET":           "secret",
		"WEBHOOK_VERIFY_TOKEN": "verify",
		"GRAPH_API_TOKEN":      "graph-token",
		"SCI_API_URL":          "https://sci.example.com",
		"SCI_USERNAME":         "bot",
		"SCI_PASSWORD":         "pw",
		"OPENAI_API_KEY":       "sk-test",
		"DB_DSN":               "postgres://localhost/debtbot",
	} {
		t.Setenv(k, v)
	}
}

func TestLoadWebhookDefaults(t *testing.T) {
	setWebhookEnv(t)

	cfg, err := LoadWebhook()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "postgres", cfg.Backend)
	require.Equal(t, "inline", cfg.DispatchMode)
	require.Equal(t, "1", cfg.SCIClientID)
	require.Equal(t, "127", cfg.SCIParamID)
	require.Equal(t, "910", cfg.SCIPaymentClientID)
	require.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	require.Equal(t, 60*time.Second, cfg.HTTPTimeout)
	require.Equal(t, 330*time.Second, cfg.RequestTimeout)
	require.Equal(t, 15*time.Second, cfg.SendTimeout)
	require.Equal(t, -5*time.Hour, cfg.BusinessOffset())
}

func TestRequestTimeoutMustExceedCallTimeout(t *testing.T) {
	setWebhookEnv(t)
	t.Setenv("HTTP_TIMEOUT", "60s")
	t.Setenv("REQUEST_TIMEOUT", "60s")

	_, err := LoadWebhook()
	require.ErrorContains(t, err, "RequestTimeout")
}

func TestLoadWebhookMissingSecret(t *testing.T) {
	setWebhookEnv(t)
	t.Setenv("APP_SECRET", "")

	_, err := LoadWebhook()
	require.ErrorContains(t, err, "AppSecret")
}

func TestStoreBackendRequirements(t *testing.T) {
	setWebhookEnv(t)
	t.Setenv("STORE_BACKEND", "dynamo")

	_, err := LoadWebhook()
	require.ErrorContains(t, err, "DynamoTable")

	t.Setenv("DYNAMO_TABLE", "debtbot")
	t.Setenv("DB_DSN", "")
	cfg, err := LoadWebhook()
	require.NoError(t, err)
	require.Equal(t, "debtbot", cfg.DynamoTable)

	t.Setenv("STORE_BACKEND", "redis")
	_, err = LoadWebhook()
	require.Error(t, err)
}

func TestSQSDispatchNeedsQueue(t *testing.T) {
	setWebhookEnv(t)
	t.Setenv("DISPATCH_MODE", "sqs")

	_, err := LoadWebhook()
	require.ErrorContains(t, err, "SQSQueueURL")

	t.Setenv("SQS_QUEUE_URL", "http://localhost:4566/000000000000/inbound.fifo")
	_, err = LoadWebhook()
	require.NoError(t, err)
}

func TestOffsetBounds(t *testing.T) {
	setWebhookEnv(t)
	t.Setenv("BUSINESS_UTC_OFFSET_HOURS", "-13")

	_, err := LoadWebhook()
	require.Error(t, err)
}

func TestLoadWorker(t *testing.T) {
	setWebhookEnv(t)
	t.Setenv("SQS_QUEUE_URL", "http://localhost:4566/000000000000/inbound.fifo")
	t.Setenv("WORKER_CONCURRENCY", "4")

	cfg, err := LoadWorker()
	require.NoError(t, err)
	require.Equal(t, 4, cfg.WorkerConcurrency)
	require.EqualValues(t, 20, cfg.SQSWaitTime)
}

func TestLoadMigrateRequiresDSN(t *testing.T) {
	t.Setenv("DB_DSN", "")
	_, err := LoadMigrate()
	require.Error(t, err)

	t.Setenv("DB_DSN", "postgres://localhost/debtbot")
	cfg, err := LoadMigrate()
	require.NoError(t, err)
	require.Equal(t, "postgres://localhost/debtbot", cfg.DBDSN)
}
