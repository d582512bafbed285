package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/mbirkedal/vendorledger/internal/domain/model"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiOracle implements Oracle against the Gemini API. Gemini has no
// strict JSON mode here, so responses are scrubbed of Markdown fences before
// parsing.
type GeminiOracle struct {
	apiKey string
	model  string
	cache  *promptCache

	// newClient is swapped out in tests.
	newClient func(ctx context.Context) (geminiClient, error)
}

type geminiClient interface {
	GenerateText(ctx context.Context, modelName, prompt string) (string, error)
}

var _ Oracle = (*GeminiOracle)(nil)

// NewGeminiOracle creates a Gemini-backed oracle from config.
func NewGeminiOracle(cfg Config) *GeminiOracle {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultGeminiModel
	}
	o := &GeminiOracle{
		apiKey: cfg.APIKey,
		model:  modelName,
		cache:  newPromptCache(time.Duration(cfg.CacheTTL) * time.Second),
	}
	o.newClient = o.newAPIClient
	return o
}

func (o *GeminiOracle) newAPIClient(ctx context.Context) (geminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      o.apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &apiGeminiClient{client: client}, nil
}

type apiGeminiClient struct {
	client *genai.Client
}

func (c *apiGeminiClient) GenerateText(ctx context.Context, modelName, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, modelName, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return resp.Text(), nil
}

// Categorize classifies a single transaction.
func (o *GeminiOracle) Categorize(ctx context.Context, txn model.ParsedTransaction) (*Categorization, error) {
	var result Categorization
	err := o.complete(ctx, categorizationSystemMessage, buildCategorizationPrompt(txn), &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// IdentifyVendor extracts a canonical vendor name from a transaction.
func (o *GeminiOracle) IdentifyVendor(ctx context.Context, txn model.ParsedTransaction) (*VendorIdentification, error) {
	var result VendorIdentification
	err := o.complete(ctx, identificationSystemMessage, buildIdentificationPrompt(txn), &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// EnrichVendor expands a vendor name into a full profile.
func (o *GeminiOracle) EnrichVendor(ctx context.Context, vendorName string) (*VendorInfo, error) {
	var result VendorInfo
	err := o.complete(ctx, enrichmentSystemMessage, buildEnrichmentPrompt(vendorName), &result)
	if err != nil {
		return nil, err
	}
	normalizeVendorInfo(&result, vendorName)
	return &result, nil
}

// BatchCategorize classifies many transactions in one call.
func (o *GeminiOracle) BatchCategorize(ctx context.Context, txns []model.ParsedTransaction) ([]BatchResult, error) {
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

func (o *GeminiOracle) complete(ctx context.Context, systemMessage, prompt string, out any) error {
	key := o.cache.key(systemMessage, prompt)
	if raw, ok := o.cache.get(key); ok {
		return json.Unmarshal(raw, out)
	}

	client, err := o.newClient(ctx)
	if err != nil {
		return err
	}

	fullPrompt := systemMessage + "\n\n" + prompt + "\n\nRespond with valid raw JSON only. Do NOT wrap the response in code fences."
	raw, err := client.GenerateText(ctx, o.model, fullPrompt)
	if err != nil {
		return err
	}

	clean := cleanModelJSON(raw)
	if clean == "" {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(clean), out); err != nil {
		return fmt.Errorf("failed to parse oracle response: %w", err)
	}

	o.cache.set(key, json.RawMessage(clean))
	return nil
}

// cleanModelJSON strips Markdown fences and surrounding junk the model may
// emit despite instructions, keeping the outermost JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
