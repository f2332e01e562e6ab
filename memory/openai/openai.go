// Package openai provides semantic memory on top of embedding vectors: an
// Embedder backed by the OpenAI embeddings API and a VectorStore index that
// ranks ingested records by cosine similarity to the query.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// Embedder turns texts into embedding vectors. Implementations must return
// one vector per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderOptions configure the OpenAI embedder.
type EmbedderOptions struct {
	Model string
}

// OpenAIEmbedder wraps the OpenAI embeddings API behind the Embedder seam.
type OpenAIEmbedder struct {
	client *openai.Client
	opts   EmbedderOptions
}

// NewEmbedder creates an embedder using the official client, configured from
// the environment (OPENAI_API_KEY).
func NewEmbedder(optFns ...func(o *EmbedderOptions)) *OpenAIEmbedder {
	client := openai.NewClient()
	return NewEmbedderFromClient(&client, optFns...)
}

// NewEmbedderFromClient creates an embedder from an existing client.
func NewEmbedderFromClient(client *openai.Client, optFns ...func(o *EmbedderOptions)) *OpenAIEmbedder {
	opts := EmbedderOptions{
		Model: openai.EmbeddingModelTextEmbedding3Small,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &OpenAIEmbedder{client: client, opts: opts}
}

// Embed implements Embedder via a single batched API call.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: e.opts.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		vecs[d.Index] = vec
	}

	return vecs, nil
}

// Interface compliance (compile-time assertion)
var _ Embedder = (*OpenAIEmbedder)(nil)
