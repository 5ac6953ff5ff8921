package scanner

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smartreceipt/smartreceipt/internal/config"
	"github.com/smartreceipt/smartreceipt/internal/metrics"
)

const extractionPrompt = `Extract the following fields from this receipt image and answer with a single JSON object, no markdown fences: store_name, store_address, date (ISO 8601), total_amount (number), tax_amount (number), currency (ISO 4217 code), items (array of {name, quantity, unit_price, total_price, category}). Use null for fields you cannot read.`

// GeminiScanner calls the Gemini vision API to extract receipt fields.
type GeminiScanner struct {
	log      *zap.Logger
	client   *http.Client
	endpoint string
	apiKey   string
	model    string
}

func NewGeminiScanner(cfg config.Config, log *zap.Logger) *GeminiScanner {
	timeout := time.Duration(cfg.Scanner.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GeminiScanner{
		log:      log.Named("scanner.gemini"),
		client:   &http.Client{Timeout: timeout},
		endpoint: strings.TrimRight(cfg.Scanner.Endpoint, "/"),
		apiKey:   cfg.Scanner.APIKey,
		model:    cfg.Scanner.Model,
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// extraction mirrors the JSON shape the prompt asks the model to produce.
type extraction struct {
	StoreName    *string  `json:"store_name"`
	StoreAddress *string  `json:"store_address"`
	Date         *string  `json:"date"`
	TotalAmount  *float64 `json:"total_amount"`
	TaxAmount    *float64 `json:"tax_amount"`
	Currency     *string  `json:"currency"`
	Items        []struct {
		Name       string  `json:"name"`
		Quantity   float64 `json:"quantity"`
		UnitPrice  float64 `json:"unit_price"`
		TotalPrice float64 `json:"total_price"`
		Category   string  `json:"category"`
	} `json:"items"`
}

func (g *GeminiScanner) Scan(ctx context.Context, image []byte, mimeType string) (Result, error) {
	if len(image) == 0 {
		return Result{}, errors.New("empty image")
	}

	start := time.Now()
	result := g.scan(ctx, image, mimeType)
	metrics.ScannerDuration.Observe(time.Since(start).Seconds())

	if !result.Success {
		g.log.Warn("extraction failed", zap.String("reason", result.ErrorMessage))
	}
	return result, ctx.Err()
}

func (g *GeminiScanner) scan(ctx context.Context, image []byte, mimeType string) Result {
	reqBody := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: extractionPrompt},
				{InlineData: &geminiInlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Failed(fmt.Sprintf("encode request: %v", err))
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.endpoint, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Failed(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Failed(fmt.Sprintf("call model: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Failed(fmt.Sprintf("read response: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return Failed(fmt.Sprintf("model returned status %d", resp.StatusCode))
	}

	var gr geminiResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return Failed(fmt.Sprintf("decode response: %v", err))
	}
	if gr.Error != nil {
		return Failed("model error: " + gr.Error.Message)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return Failed("model returned no candidates")
	}

	text := gr.Candidates[0].Content.Parts[0].Text
	return parseExtraction(text)
}

// parseExtraction turns the model's JSON answer into a Result. The model
// sometimes wraps the object in markdown fences despite the prompt.
func parseExtraction(text string) Result {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var ex extraction
	if err := json.Unmarshal([]byte(trimmed), &ex); err != nil {
		r := Failed("unparseable model answer")
		r.RawText = text
		return r
	}

	result := Result{Success: true, RawText: text}
	if ex.StoreName != nil {
		result.StoreName = *ex.StoreName
	}
	if ex.StoreAddress != nil {
		result.StoreAddress = *ex.StoreAddress
	}
	if ex.TotalAmount != nil {
		result.TotalAmount = *ex.TotalAmount
	}
	if ex.TaxAmount != nil {
		result.TaxAmount = *ex.TaxAmount
	}
	if ex.Currency != nil {
		result.Currency = strings.ToUpper(*ex.Currency)
	}
	if ex.Date != nil {
		if ts, err := parseReceiptDate(*ex.Date); err == nil {
			result.Date = &ts
		}
	}
	for _, it := range ex.Items {
		result.Items = append(result.Items, Item(it))
	}

	if result.StoreName == "" && result.TotalAmount == 0 && len(result.Items) == 0 {
		return Result{ErrorMessage: "no receipt fields recognized", RawText: text}
	}
	return result
}

func parseReceiptDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
