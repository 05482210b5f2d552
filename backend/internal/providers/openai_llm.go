package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAILLM implements LLMProviderPort against the Chat Completions API.
// Grounded on the teacher's provider-wrapper shape in internal/compass
// (single client, thin method-per-operation wrapper, explicit timeout per
// call) — the compass client itself was deleted, its shape carried here.
type OpenAILLM struct {
	client      openai.Client
	textModel   string
	visionModel string
	textTimeout time.Duration
	visTimeout  time.Duration
}

func NewOpenAILLM(apiKey, baseURL, textModel, visionModel string, textTimeout, visTimeout time.Duration) *OpenAILLM {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAILLM{
		client:      openai.NewClient(opts...),
		textModel:   textModel,
		visionModel: visionModel,
		textTimeout: textTimeout,
		visTimeout:  visTimeout,
	}
}

func (o *OpenAILLM) ExtractText(ctx context.Context, text string, ectx ExtractContext) (LLMResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.textTimeout)
	defer cancel()

	start := time.Now()
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(extractionSystemPrompt()),
	}
	for _, ex := range ectx.FewShotExamples {
		messages = append(messages,
			openai.UserMessage(ex.InputExcerpt),
			openai.AssistantMessage(ex.OutputJSON),
		)
	}
	messages = append(messages, openai.UserMessage(text))

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    o.textModel,
		Messages: messages,
	})
	if err != nil {
		return LLMResult{}, fmt.Errorf("openai chat completion: %w", err)
	}
	return toLLMResult(resp, o.textModel, start), nil
}

func (o *OpenAILLM) ExtractVision(ctx context.Context, pageImages [][]byte, ectx ExtractContext) (LLMResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.visTimeout)
	defer cancel()

	start := time.Now()
	content := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(extractionVisionPrompt()),
	}
	for _, img := range pageImages {
		dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(img)
		content = append(content, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURL,
		}))
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: o.visionModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessageParts(content...),
		},
	})
	if err != nil {
		return LLMResult{}, fmt.Errorf("openai vision completion: %w", err)
	}
	return toLLMResult(resp, o.visionModel, start), nil
}

func (o *OpenAILLM) RepairJSON(ctx context.Context, previousOutput, validationError string, ectx ExtractContext) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.textTimeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"The following output failed validation: %s\n\nOutput:\n%s\n\nReturn only corrected JSON matching the required schema.",
		validationError, previousOutput,
	)
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: o.textModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(extractionSystemPrompt()),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai repair completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai repair completion: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func toLLMResult(resp *openai.ChatCompletion, model string, start time.Time) LLMResult {
	var raw string
	if len(resp.Choices) > 0 {
		raw = resp.Choices[0].Message.Content
	}
	parsed, warnings := tryParseJSON(raw)
	return LLMResult{
		RawOutput:    raw,
		ParsedJSON:   parsed,
		Provider:     "openai",
		Model:        model,
		PromptTokens: int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		Latency:      time.Since(start),
		CostMicros:   estimateCostMicros(model, int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens)),
		Warnings:     warnings,
	}
}

// tryParseJSON strips a leading ```json fence, a common model habit, before
// handing the remainder to the canonical-record validator upstream (C6).
func tryParseJSON(raw string) ([]byte, []string) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return nil, []string{"empty model output"}
	}
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return nil, []string{"output did not start with JSON"}
	}
	return []byte(trimmed), nil
}

// estimateCostMicros is a table of illustrative per-token rates; operators
// override actual rates via provider billing reconciliation, not this code
// path. Kept simple so C7's budget gate has a number to sum against.
func estimateCostMicros(model string, promptTokens, outputTokens int) int64 {
	const (
		inputMicrosPerToken  = 5   // $0.005 / 1K tokens, illustrative
		outputMicrosPerToken = 15  // $0.015 / 1K tokens, illustrative
	)
	return int64(promptTokens*inputMicrosPerToken + outputTokens*outputMicrosPerToken)
}

func extractionSystemPrompt() string {
	return "You convert a purchase order document into the canonical OrderFlow JSON record. " +
		"Return only JSON matching the schema you were given. Never invent line items or values " +
		"that are not present in the source text."
}

func extractionVisionPrompt() string {
	return "The attached images are pages of a scanned purchase order. Convert them into the " +
		"canonical OrderFlow JSON record. Return only JSON. Never invent line items or values not " +
		"visible in the images."
}
