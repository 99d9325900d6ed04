// Package llm extracts vehicle fields from free text and drafts WhatsApp
// debt summaries using an OpenAI-compatible chat completions API.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"debtbot/internal/conversation"
	"debtbot/internal/domain"
	"debtbot/internal/resilience"
)

const (
	extractPrompt = "Eres un extractor de datos. Devuelve sólo los campos presentes: " +
		"placa, marca, modelo, anio, color, otros. Responde con un objeto JSON con esas claves " +
		"y omite las que no aparezcan en el texto."

	draftPrompt = "Eres un redactor para WhatsApp. Escribe un único mensaje claro y corto (3–5 líneas, máx. 450 caracteres) " +
		"en español de Colombia. Usa EXCLUSIVAMENTE los datos que te paso. " +
		"Incluye: placa, vigencia, municipio y dpto de matrícula (muniMatr/deptoMatr), TOTAL a pagar (total) " +
		"y fecha límite (fechaLim) en formato DD/MM/AAAA. Si 'sancion' > 0 o 'interes' > 0, menciónalos brevemente. " +
		"Formatea montos en COP con separador de miles y SIN decimales (ej: $917.688). " +
		"No inventes campos, no uses emojis, no devuelvas JSON."

	draftPreamble = "Datos de liquidación (usa SOLO lo que veas, no inventes):\n"
)

var ErrNoChoices = errors.New("no response choices returned")

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Client struct {
	client *openai.Client
	model  string
	guard  *resilience.Guard
}

func New(cfg Config, guard *resilience.Guard) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{
		client: openai.NewClientWithConfig(oc),
		model:  model,
		guard:  guard,
	}
}

// extraction fields are untyped because models answer "2015" and 2015
// interchangeably.
type extraction struct {
	Plate any `json:"placa"`
	Brand any `json:"marca"`
	Model any `json:"modelo"`
	Year  any `json:"anio"`
	Color any `json:"color"`
	Other any `json:"otros"`
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	var content string
	err := c.guard.Do(ctx, func(ctx context.Context) error {
		start := time.Now()
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return fmt.Errorf("chat completion failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return ErrNoChoices
		}
		content = resp.Choices[0].Message.Content
		slog.Debug("llm completion",
			"model", req.Model,
			"api_ms", time.Since(start).Milliseconds(),
			"tokens", resp.Usage.TotalTokens)
		return nil
	})
	return content, err
}

// Extract returns the vehicle fields present in text. A missing plate is not
// an error; the returned Plate is simply empty.
func (c *Client) Extract(ctx context.Context, text string) (domain.VehicleData, error) {
	content, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return domain.VehicleData{}, err
	}
	return parseExtraction(content)
}

func parseExtraction(content string) (domain.VehicleData, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.VehicleData{}, nil
	}
	var e extraction
	if err := json.Unmarshal([]byte(content), &e); err != nil {
		return domain.VehicleData{}, fmt.Errorf("decode extraction: %w", err)
	}
	return domain.VehicleData{
		Plate: domain.NormalizePlate(scalar(e.Plate)),
		Brand: scalar(e.Brand),
		Model: scalar(e.Model),
		Year:  scalar(e.Year),
		Color: scalar(e.Color),
		Other: scalar(e.Other),
	}, nil
}

// scalar flattens a loosely typed model answer to text.
func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// Draft asks the model for a short WhatsApp summary of line. An empty string
// with a nil error means the model produced nothing usable.
func (c *Client) Draft(ctx context.Context, line domain.DebtLine) (string, error) {
	user, err := c.draftInput(line)
	if err != nil {
		return "", err
	}
	content, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: draftPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// draftInput merges the raw debt item with a "_guia_formato" object holding
// preformatted values.
func (c *Client) draftInput(line domain.DebtLine) (string, error) {
	payload, err := line.Payload()
	if err != nil {
		return "", err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return "", fmt.Errorf("decode debt line: %w", err)
	}
	guide, err := json.Marshal(conversation.FormatGuide(line))
	if err != nil {
		return "", err
	}
	fields["_guia_formato"] = guide
	b, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return draftPreamble + string(b), nil
}
