package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ragspace/internal/apperr"
)

// HTTPProvider calls an OpenAI-compatible /v1/chat/completions endpoint.
type HTTPProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewHTTPProvider(baseURL, model string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message,omitempty"`
		Delta        chatMessage `json:"delta,omitempty"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

func (p *HTTPProvider) doRequest(ctx context.Context, req chatCompletionRequest) (*http.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindLLM, "chat completion request failed", err)
	}
	return resp, nil
}

func (p *HTTPProvider) GenerateAnswer(ctx context.Context, prompt, query string) (string, error) {
	resp, err := p.doRequest(ctx, chatCompletionRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: query},
		},
		Stream: false,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", apperr.Wrap(apperr.KindLLM,
			fmt.Sprintf("chat completion API returned status %d", resp.StatusCode),
			&HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)})
	}

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", apperr.Wrap(apperr.KindLLM, "failed to decode chat completion response", err)
	}
	if len(completion.Choices) == 0 {
		return "", apperr.New(apperr.KindLLM, "no choices in chat completion response")
	}
	return completion.Choices[0].Message.Content, nil
}

func (p *HTTPProvider) GenerateStream(ctx context.Context, prompt, query string) (<-chan string, <-chan error, error) {
	resp, err := p.doRequest(ctx, chatCompletionRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: query},
		},
		Stream: true,
	})
	if err != nil {
		return nil, nil, err
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, nil, apperr.Wrap(apperr.KindLLM,
			fmt.Sprintf("chat completion API returned status %d", resp.StatusCode),
			&HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)})
	}

	tokens := make(chan string, 10)
	errs := make(chan error, 1)

	go func() {
		defer resp.Body.Close()
		defer close(tokens)
		defer close(errs)

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					errs <- apperr.Wrap(apperr.KindLLM, "error reading stream", err)
				}
				return
			}

			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var streamResp chatCompletionResponse
			if err := json.Unmarshal([]byte(data), &streamResp); err != nil {
				errs <- apperr.Wrap(apperr.KindLLM, "failed to decode stream response", err)
				return
			}

			if len(streamResp.Choices) == 0 {
				continue
			}
			if delta := streamResp.Choices[0].Delta.Content; delta != "" {
				select {
				case tokens <- delta:
				case <-ctx.Done():
					return
				}
			}
			if streamResp.Choices[0].FinishReason != "" {
				return
			}
		}
	}()

	return tokens, errs, nil
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
