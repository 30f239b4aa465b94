package assembler

import (
	"context"

	"github.com/loomkit/loom/knowledge"
	"github.com/loomkit/loom/retrieval"
)

// RetrieveRelevantDocuments is the lower-level entry point for callers that
// want ranked direct matches without critical injection or context
// formatting, e.g. a plain search feature.
func (a *Assembler) RetrieveRelevantDocuments(ctx context.Context, embedding []float32, opts knowledge.RetrievalOptions) (retrieval.Result, error) {
	return a.retriever.Retrieve(ctx, embedding, opts)
}

// RetrieveWithLinkedDocuments returns ranked direct matches plus their
// link-graph expansion, without critical injection or supersession
// adjustment.
func (a *Assembler) RetrieveWithLinkedDocuments(ctx context.Context, embedding []float32, opts knowledge.RetrievalOptions) (retrieval.Result, []knowledge.LinkedDocument, error) {
	direct, err := a.retriever.Retrieve(ctx, embedding, opts)
	if err != nil {
		return retrieval.Result{}, nil, err
	}
	linked, err := a.expandLinks(ctx, direct.Documents, opts)
	if err != nil {
		return retrieval.Result{}, nil, err
	}
	return direct, linked, nil
}
