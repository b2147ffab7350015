package vtuprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// VTPass response codes that mean the transaction definitively did not happen.
// Anything not in this set and not "000" is treated as indeterminate.
var vtpassKnownFailureCodes = map[string]string{
	"010": "variation does not exist",
	"011": "invalid arguments",
	"012": "product does not exist",
	"013": "below minimum amount allowed",
	"014": "request id already exists",
	"015": "invalid request id",
	"016": "transaction failed",
	"017": "above maximum amount allowed",
	"018": "low wallet balance at provider",
	"083": "system error at provider",
	"085": "invalid biller code",
}

const vtpassCodeSuccess = "000"

// VTPassAdapter purchases services from a VTPass-style VTU API.
type VTPassAdapter struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
	secretKey  string
}

func NewVTPassAdapter(logger *slog.Logger, baseURL, apiKey, secretKey string, httpClient *http.Client) *VTPassAdapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &VTPassAdapter{
		logger:     logger.With("provider", "vtpass"),
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		secretKey:  secretKey,
	}
}

func (p *VTPassAdapter) Name() string { return "vtpass" }

type vtpassPayResponse struct {
	Code                string `json:"code"`
	ResponseDescription string `json:"response_description"`
	Content             struct {
		Transactions struct {
			TransactionID string `json:"transactionId"`
			Status        string `json:"status"`
			ProductName   string `json:"product_name"`
		} `json:"transactions"`
	} `json:"content"`
	PurchasedCode string `json:"purchased_code,omitempty"`
	Token         string `json:"Token,omitempty"`
	Cards         []any  `json:"cards,omitempty"`
}

func (p *VTPassAdapter) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResponse, error) {
	p.logger.InfoContext(ctx, "VTPassAdapter: Purchase called",
		"request_id", req.RequestID, "service_type", req.ServiceType, "amount_minor", req.AmountMinor)

	body := map[string]any{
		"request_id": req.RequestID,
		// VTPass amounts are in major units.
		"amount": float64(req.AmountMinor) / 100,
	}
	for k, v := range req.Params {
		body[k] = v
	}

	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vtpass request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/pay", bytes.NewBuffer(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create vtpass HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", p.apiKey)
	httpReq.Header.Set("secret-key", p.secretKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		// The request may have reached the provider; only an explicit failure code may
		// be interpreted as a failure, so transport errors surface as errors and the
		// orchestrator treats them as indeterminate.
		p.logger.WarnContext(ctx, "VTPass request failed in transport", "error", err, "request_id", req.RequestID)
		return nil, fmt.Errorf("vtpass request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read vtpass response (status %d): %w", httpResp.StatusCode, err)
	}
	p.logger.DebugContext(ctx, "VTPass response received", "status_code", httpResp.StatusCode, "body_len", len(respBytes))

	var parsed vtpassPayResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil || parsed.Code == "" {
		p.logger.WarnContext(ctx, "Unparseable VTPass response, treating as indeterminate",
			"status_code", httpResp.StatusCode, "request_id", req.RequestID)
		return &PurchaseResponse{
			Outcome: OutcomeIndeterminate,
			Message: fmt.Sprintf("unrecognized provider response (HTTP %d)", httpResp.StatusCode),
		}, nil
	}

	switch {
	case parsed.Code == vtpassCodeSuccess:
		data := map[string]any{}
		if parsed.PurchasedCode != "" {
			data["purchased_code"] = parsed.PurchasedCode
		}
		if parsed.Token != "" {
			data["token"] = parsed.Token
		}
		if len(parsed.Cards) > 0 {
			data["cards"] = parsed.Cards
		}
		if parsed.Content.Transactions.ProductName != "" {
			data["product_name"] = parsed.Content.Transactions.ProductName
		}
		ref := parsed.Content.Transactions.TransactionID
		if ref == "" {
			ref = req.RequestID
		}
		return &PurchaseResponse{
			Outcome:           OutcomeSuccess,
			ProviderReference: ref,
			Message:           parsed.ResponseDescription,
			Data:              data,
		}, nil

	case vtpassKnownFailureCodes[parsed.Code] != "":
		msg := parsed.ResponseDescription
		if msg == "" {
			msg = vtpassKnownFailureCodes[parsed.Code]
		}
		p.logger.InfoContext(ctx, "VTPass reported known failure",
			"code", parsed.Code, "message", msg, "request_id", req.RequestID)
		return &PurchaseResponse{
			Outcome: OutcomeKnownFailure,
			Message: msg,
		}, nil

	default:
		p.logger.WarnContext(ctx, "VTPass returned unknown code, treating as indeterminate",
			"code", parsed.Code, "request_id", req.RequestID)
		return &PurchaseResponse{
			Outcome: OutcomeIndeterminate,
			Message: fmt.Sprintf("provider code %s: %s", parsed.Code, parsed.ResponseDescription),
		}, nil
	}
}
