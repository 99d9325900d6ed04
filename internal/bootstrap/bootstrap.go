// Package bootstrap builds the store and the conversation engine from config.
// Both binaries that run the engine share it.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"debtbot/internal/awsutil"
	"debtbot/internal/config"
	"debtbot/internal/conversation"
	"debtbot/internal/providers/llm"
	"debtbot/internal/providers/meta"
	"debtbot/internal/providers/sci"
	"debtbot/internal/resilience"
	"debtbot/internal/store"
	"debtbot/internal/store/dynamo"
	"debtbot/internal/store/memory"
	"debtbot/internal/store/pg"
)

func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "postgres":
		pool, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
			MaxConns:          cfg.DBMaxConns,
			MinConns:          cfg.DBMinConns,
			MaxConnLifetime:   cfg.DBMaxConnLifetime,
			MaxConnIdleTime:   cfg.DBMaxConnIdleTime,
			HealthCheckPeriod: cfg.DBHealthCheckPeriod,
		})
		if err != nil {
			return nil, err
		}
		return pg.New(pool), nil
	case "dynamo":
		client, err := awsutil.NewDynamoDBClient(ctx, awsutil.Options{Region: cfg.AWSRegion, Endpoint: cfg.LocalstackEndpoint})
		if err != nil {
			return nil, fmt.Errorf("dynamodb client: %w", err)
		}
		return dynamo.New(client, cfg.DynamoTable)
	case "memory":
		slog.Warn("using in-memory store; state is lost on restart")
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

// NewEngine wires the Graph API, SCI and LLM clients, each behind its own
// guard, into a conversation engine caching reports in reports.
func NewEngine(cfg config.ProvidersConfig, reports store.Reports) *conversation.Engine {
	guard := func(name string, rps float64, burst int) *resilience.Guard {
		return resilience.New(resilience.Config{
			Name:        name,
			CallTimeout: cfg.HTTPTimeout,
			RPS:         rps,
			Burst:       burst,
			MaxFailures: cfg.BreakerMaxFailures,
			OpenTimeout: cfg.BreakerOpenTimeout,
		})
	}

	messenger := &meta.Client{
		BaseURL: cfg.GraphAPIURL,
		Token:   cfg.GraphAPIToken,
		HTTP:    &http.Client{Timeout: cfg.HTTPTimeout},
		Guard:   guard("graph_api", cfg.OutboundRPS, cfg.OutboundBurst),
	}
	debts := sci.New(sci.Config{
		BaseURL:         cfg.SCIAPIURL,
		Username:        cfg.SCIUsername,
		Password:        cfg.SCIPassword,
		ParamID:         cfg.SCIParamID,
		PaymentClientID: cfg.SCIPaymentClientID,
		PayerEmail:      cfg.SCIPayerEmail,
		Timeout:         cfg.HTTPTimeout,
	}, guard("sci", 0, 0))
	model := llm.New(llm.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.HTTPTimeout,
	}, guard("openai", 0, 0))

	return &conversation.Engine{
		Extractor:   model,
		Drafter:     model,
		Debts:       debts,
		Payments:    debts,
		Messenger:   messenger,
		Reports:     reports,
		ClientID:    cfg.SCIClientID,
		SendTimeout: cfg.SendTimeout,
	}
}
