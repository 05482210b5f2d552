// Package providers defines the port contracts (§6.4) that isolate the core
// pipeline from concrete LLM, embedding, dropzone, and object-store
// implementations, plus the adapters OrderFlow ships with.
package providers

import (
	"context"
	"time"
)

// ExtractContext carries the per-call metadata an LLM prompt needs: the
// tenant's layout few-shot examples, the document's declared media type, and
// anything else the prompt template interpolates.
type ExtractContext struct {
	TenantID        string
	DocumentID      string
	MediaType       string
	FewShotExamples []FewShotExample
}

// FewShotExample is one (input, corrected-output) pair drawn from
// FeedbackEvent history for the document's layout fingerprint (§4.6, §4.13).
type FewShotExample struct {
	InputExcerpt string
	OutputJSON   string
}

// LLMResult is the normalized shape every LLMProviderPort method returns.
type LLMResult struct {
	RawOutput    string
	ParsedJSON   []byte // nil when RawOutput did not parse
	Provider     string
	Model        string
	PromptTokens int
	OutputTokens int
	Latency      time.Duration
	CostMicros   int64
	Warnings     []string
}

// LLMProviderPort is C6's dependency on a concrete LLM. extract_vision takes
// page images already rendered by the caller; repair_json is the one-shot
// repair attempt C6/C7 allow on unparseable output.
type LLMProviderPort interface {
	ExtractText(ctx context.Context, text string, ectx ExtractContext) (LLMResult, error)
	ExtractVision(ctx context.Context, pageImages [][]byte, ectx ExtractContext) (LLMResult, error)
	RepairJSON(ctx context.Context, previousOutput, validationError string, ectx ExtractContext) (string, error)
}

// EmbeddingProviderPort is C9's dependency on a concrete embedding model.
// Dimension reports the vector length the implementation accepts; Embed
// returns an error for a vector of any other length.
type EmbeddingProviderPort interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// DropzoneWriterPort is C12's dependency on the ERP handoff filesystem.
type DropzoneWriterPort interface {
	WriteAtomic(ctx context.Context, path string, data []byte) error
	ListAcks(ctx context.Context, prefix string) ([]string, error)
	Read(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}

// ObjectStorePort is the generic content-addressed blob store backing raw
// inbound bytes, Document bytes, and rendered page images.
type ObjectStorePort interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	PresignedRead(ctx context.Context, key string, ttl time.Duration) (string, error)
}
