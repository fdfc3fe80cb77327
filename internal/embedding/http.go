package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ragspace/internal/apperr"
)

// HTTPProvider calls an OpenAI-compatible /v1/embeddings endpoint.
type HTTPProvider struct {
	baseURL    string
	model      string
	dimensions int
	httpClient *http.Client
}

// NewHTTPProvider creates a provider against baseURL. dimensions is
// requested from the endpoint and validated on every response.
func NewHTTPProvider(baseURL, model string, dimensions int) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    baseURL,
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions *int     `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

func (p *HTTPProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, apperr.New(apperr.KindValidation, "no texts provided for embedding")
	}

	reqBody := embeddingRequest{
		Model:      p.model,
		Input:      texts,
		Dimensions: &p.dimensions,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embeddings request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEmbedding, "embeddings request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperr.Wrap(apperr.KindEmbedding,
			fmt.Sprintf("embeddings API returned status %d", resp.StatusCode),
			&HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)})
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, apperr.Wrap(apperr.KindEmbedding, "failed to decode embeddings response", err)
	}

	if len(embResp.Data) != len(texts) {
		return nil, apperr.Newf(apperr.KindEmbedding,
			"embeddings response length mismatch: expected %d got %d", len(texts), len(embResp.Data))
	}

	// The endpoint may return items out of order; place by index.
	embeddings := make([][]float32, len(texts))
	for _, data := range embResp.Data {
		if data.Index < 0 || data.Index >= len(embeddings) {
			return nil, apperr.Newf(apperr.KindEmbedding, "invalid embedding index %d", data.Index)
		}
		embeddings[data.Index] = data.Embedding
	}
	for i, vec := range embeddings {
		if vec == nil {
			return nil, apperr.Newf(apperr.KindEmbedding, "embeddings response missing index %d", i)
		}
		if len(vec) != p.dimensions {
			return nil, apperr.Newf(apperr.KindEmbedding,
				"embedding %d dimension mismatch: expected %d got %d", i, p.dimensions, len(vec))
		}
	}
	return embeddings, nil
}

// HTTPStatusError preserves the upstream status code so the retry
// helper can classify transience.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPStatusError) HTTPStatus() int { return e.StatusCode }
