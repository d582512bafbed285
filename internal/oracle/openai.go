package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mbirkedal/vendorledger/internal/domain/model"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI chat-completions wire types.
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionResponse struct {
	Choices []ChatChoice `json:"choices"`
}

type ChatChoice struct {
	Message ChatMessage `json:"message"`
}

// ChatClient is the transport the OpenAI oracle talks through. Tests supply
// a fake; production uses the HTTP client below.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request ChatCompletionRequest) (*ChatCompletionResponse, error)
}

// httpChatClient calls the OpenAI API over HTTP.
type httpChatClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newHTTPChatClient(apiKey string) *httpChatClient {
	return &httpChatClient{
		apiKey:  apiKey,
		baseURL: "https://api.openai.com/v1",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *httpChatClient) CreateChatCompletion(ctx context.Context, request ChatCompletionRequest) (*ChatCompletionResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
				Code    string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
			return nil, fmt.Errorf("OpenAI API error: %s (type: %s, code: %s)",
				errorResp.Error.Message, errorResp.Error.Type, errorResp.Error.Code)
		}
		return nil, fmt.Errorf("OpenAI API returned status %d: %s", resp.StatusCode, string(body))
	}

	var response ChatCompletionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &response, nil
}

// OpenAIOracle implements Oracle against the OpenAI chat-completions API
// using JSON mode.
type OpenAIOracle struct {
	client ChatClient
	model  string
	cache  *promptCache
}

var _ Oracle = (*OpenAIOracle)(nil)

// NewOpenAIOracle creates an OpenAI-backed oracle from config.
func NewOpenAIOracle(cfg Config) *OpenAIOracle {
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIOracle{
		client: newHTTPChatClient(cfg.APIKey),
		model:  model,
		cache:  newPromptCache(time.Duration(cfg.CacheTTL) * time.Second),
	}
}

// NewOpenAIOracleWithClient creates an oracle over an existing transport.
func NewOpenAIOracleWithClient(client ChatClient, model string) *OpenAIOracle {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIOracle{
		client: client,
		model:  model,
		cache:  newPromptCache(0),
	}
}

// Categorize classifies a single transaction.
func (o *OpenAIOracle) Categorize(ctx context.Context, txn model.ParsedTransaction) (*Categorization, error) {
	var result Categorization
	err := o.complete(ctx, categorizationSystemMessage, buildCategorizationPrompt(txn), &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// IdentifyVendor extracts a canonical vendor name from a transaction.
func (o *OpenAIOracle) IdentifyVendor(ctx context.Context, txn model.ParsedTransaction) (*VendorIdentification, error) {
	var result VendorIdentification
	err := o.complete(ctx, identificationSystemMessage, buildIdentificationPrompt(txn), &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// EnrichVendor expands a vendor name into a full profile.
func (o *OpenAIOracle) EnrichVendor(ctx context.Context, vendorName string) (*VendorInfo, error) {
	var result VendorInfo
	err := o.complete(ctx, enrichmentSystemMessage, buildEnrichmentPrompt(vendorName), &result)
	if err != nil {
		return nil, err
	}
	normalizeVendorInfo(&result, vendorName)
	return &result, nil
}

// BatchCategorize classifies many transactions in one call.
func (o *OpenAIOracle) BatchCategorize(ctx context.Context, txns []model.ParsedTransaction) ([]BatchResult, error) {
	if len(txns) == 0 {
		return nil, nil
	}

	var result struct {
		Results []BatchResult `json:"results"`
	}
	err := o.complete(ctx, batchSystemMessage, buildBatchPrompt(txns), &result)
	if err != nil {
		return nil, err
	}
	return result.Results, nil
}

// complete runs one JSON-mode chat completion, going through the prompt
// cache first.
func (o *OpenAIOracle) complete(ctx context.Context, systemMessage, prompt string, out any) error {
	key := o.cache.key(systemMessage, prompt)
	if raw, ok := o.cache.get(key); ok {
		return json.Unmarshal(raw, out)
	}

	request := ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0.1,
		ResponseFormat: &ResponseFormat{
			Type: "json_object",
		},
		Messages: []ChatMessage{
			{Role: "system", Content: systemMessage},
			{Role: "user", Content: prompt},
		},
	}

	response, err := o.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return err
	}
	if len(response.Choices) == 0 {
		return ErrEmptyResponse
	}

	content := strings.TrimSpace(response.Choices[0].Message.Content)
	if content == "" {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("failed to parse oracle response: %w", err)
	}

	o.cache.set(key, json.RawMessage(content))
	return nil
}

// normalizeVendorInfo enforces the enrichment contract: a usable name and a
// valid product type, whatever the model returned.
func normalizeVendorInfo(info *VendorInfo, fallbackName string) {
	if strings.TrimSpace(info.Name) == "" {
		info.Name = fallbackName
	}
	productType := strings.ToLower(strings.TrimSpace(info.DefaultProductType))
	if productType != "services" && productType != "goods" {
		productType = "services"
	}
	info.DefaultProductType = productType
}
