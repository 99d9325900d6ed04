// Package sci talks to the SCI TOTAL API: token authentication, debt lookup
// by plate and payment transaction creation. Every operation fetches a fresh
// token and runs once; there are no retries.
package sci

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"debtbot/internal/domain"
	"debtbot/internal/resilience"
)

// ErrAPI matches every *APIError.
var ErrAPI = errors.New("sci api error")

// APIError is an HTTP failure or a response whose errorCount/errors
// fields are set.
type APIError struct {
	Op         string
	Status     int
	ErrorCount string
	Body       string
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("sci %s: status %d: %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("sci %s: errorCount=%s: %s", e.Op, e.ErrorCount, e.Body)
}

func (e *APIError) Unwrap() error { return ErrAPI }

type Config struct {
	BaseURL         string
	Username        string
	Password        string
	ParamID         string
	PaymentClientID string
	PayerEmail      string
	Timeout         time.Duration
}

type Client struct {
	cfg   Config
	http  *resty.Client
	guard *resilience.Guard
}

func New(cfg Config, guard *resilience.Guard) *Client {
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}
	return &Client{cfg: cfg, http: c, guard: guard}
}

type apiStatus struct {
	ErrorCount json.RawMessage `json:"errorCount"`
	Errors     json.RawMessage `json:"errors"`
}

// zeroOrAbsent is true for a missing field, null, false or the number 0.
// Any other value, including an empty list, counts as an error report.
func zeroOrAbsent(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	switch string(v) {
	case "", "null", "false":
		return true
	}
	f, err := strconv.ParseFloat(string(v), 64)
	return err == nil && f == 0
}

func (s apiStatus) failed() bool {
	return !zeroOrAbsent(s.ErrorCount) || !zeroOrAbsent(s.Errors)
}

// decode fails on non-2xx responses, unparseable bodies and bodies that
// report errors. out must expose its status through statusOf.
func decode[T any](op string, resp *resty.Response, out *T, statusOf func(*T) apiStatus) error {
	if resp.IsError() {
		return &APIError{Op: op, Status: resp.StatusCode(), Body: truncate(resp.String())}
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("sci %s: decode response: %w", op, err)
	}
	if st := statusOf(out); st.failed() {
		return &APIError{Op: op, ErrorCount: string(st.ErrorCount), Body: truncate(resp.String())}
	}
	return nil
}

type authResponse struct {
	Token    string    `json:"token"`
	Response apiStatus `json:"response"`
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	var out authResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"Username": c.cfg.Username,
			"Password": c.cfg.Password,
		}).
		Post("/Autenticacion")
	if err != nil {
		return "", fmt.Errorf("sci authenticate: %w", err)
	}
	if err := decode("authenticate", resp, &out, func(a *authResponse) apiStatus { return a.Response }); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", &APIError{Op: "authenticate", Body: "missing token"}
	}
	return out.Token, nil
}

type debtRequest struct {
	ClientID string `json:"idCliente"`
	Plate    string `json:"placa"`
}

type debtResponse struct {
	Items    []domain.DebtLine `json:"informacionDepartamental"`
	Response apiStatus         `json:"response"`
}

// QueryDebt returns every debt line the API knows for plate.
func (c *Client) QueryDebt(ctx context.Context, plate, clientID string) (domain.DebtQueryResult, error) {
	var out debtResponse
	err := c.guard.Do(ctx, func(ctx context.Context) error {
		token, err := c.authenticate(ctx)
		if err != nil {
			return err
		}
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetBody(debtRequest{ClientID: clientID, Plate: plate}).
			Post("/TotalApp/DeudaPlaca/" + c.cfg.ParamID)
		if err != nil {
			return fmt.Errorf("sci query debt: %w", err)
		}
		return decode("query_debt", resp, &out, func(d *debtResponse) apiStatus { return d.Response })
	})
	if err != nil {
		return domain.DebtQueryResult{}, err
	}
	return domain.DebtQueryResult{Items: out.Items}, nil
}

const (
	paymentDescription   = "Pago de trámites desde plataforma TOTAL"
	dispersionKeyword    = "RECAUDO_IUVA"
	dispersionDescFormat = "NOTIFICACION IUVA GENERADO DE TOTAL. EL MONTO INCLUYE EL VALOR DE LA SISTEMATIZACIÓN (PLACA: %s VIGENCIA: %s)"
)

type transactionRequest struct {
	Email       string       `json:"email"`
	Total       string       `json:"valorTotal"`
	VAT         string       `json:"iva"`
	Description string       `json:"descripcionPago"`
	ParamID     string       `json:"idParametro"`
	ClientID    string       `json:"idCliente"`
	Dispersion  []dispersion `json:"dispersion"`
}

type dispersion struct {
	Keyword     string `json:"palabraClave"`
	Reference   string `json:"referencia"`
	Value       string `json:"valor"`
	Tax         string `json:"impuesto"`
	Description string `json:"descripcion"`
	Settlement  string `json:"liquidacion"`
	EntityCode  string `json:"entityCode"`
	ServiceCode string `json:"serviceCode"`
}

func (c *Client) transactionBody(line domain.DebtLine) transactionRequest {
	return transactionRequest{
		Email:       c.cfg.PayerEmail,
		Total:       line.Total.String(),
		VAT:         "0",
		Description: paymentDescription,
		ParamID:     c.cfg.ParamID,
		ClientID:    c.cfg.PaymentClientID,
		Dispersion: []dispersion{{
			Keyword:     dispersionKeyword,
			Reference:   line.Declaration.String(),
			Value:       line.Total.String(),
			Tax:         "0",
			Description: fmt.Sprintf(dispersionDescFormat, line.Plate, line.Period),
		}},
	}
}

type transactionResponse struct {
	domain.Transaction
	Response apiStatus `json:"response"`
}

// CreateTransaction asks the gateway for a payment link covering line.
func (c *Client) CreateTransaction(ctx context.Context, line domain.DebtLine) (domain.Transaction, error) {
	var out transactionResponse
	body := c.transactionBody(line)
	err := c.guard.Do(ctx, func(ctx context.Context) error {
		token, err := c.authenticate(ctx)
		if err != nil {
			return err
		}
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetBody(body).
			Post("/TotalApp/CrearTransaccion")
		if err != nil {
			return fmt.Errorf("sci create transaction: %w", err)
		}
		return decode("create_transaction", resp, &out, func(t *transactionResponse) apiStatus { return t.Response })
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return out.Transaction, nil
}

func truncate(s string) string {
	const limit = 512
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
