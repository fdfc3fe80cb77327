package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"ragspace/internal/conversation"
	"ragspace/internal/llm"
	"ragspace/internal/metrics"
	"ragspace/internal/model"
	"ragspace/internal/prompt"
	"ragspace/internal/queue"
	"ragspace/internal/rag"
	"ragspace/internal/repository"
	"ragspace/internal/service"
	"ragspace/internal/storage"
)

// stubRetriever returns fixed evidence; an empty result when barren.
type stubRetriever struct {
	barren bool
}

func (s *stubRetriever) Retrieve(context.Context, string, int, bool, string) (*rag.Result, error) {
	if s.barren {
		return &rag.Result{Timings: map[string]time.Duration{}}, nil
	}
	chunks := []model.RetrievedChunk{
		{Chunk: model.Chunk{ID: "c1", DocumentID: "d1", Content: "El presupuesto de viaje es $50."}, Similarity: 0.9},
	}
	ctxStr, _ := rag.NewContextBuilder(8000).Build(chunks)
	return &rag.Result{Context: ctxStr, Chunks: chunks, Timings: map[string]time.Duration{}}, nil
}

// statusStub satisfies the compare-and-set seam without a database.
type statusStub struct {
	docs *repository.MemoryDocumentRepository
}

func (s *statusStub) TransitionDocumentStatus(ctx context.Context, id, workspaceID string,
	from []model.DocumentStatus, to model.DocumentStatus, errorMessage string) (bool, error) {
	doc, err := s.docs.GetByID(ctx, id, workspaceID)
	if err != nil {
		return false, nil
	}
	for _, st := range from {
		if doc.Status == st {
			s.docs.SetStatus(id, to, errorMessage)
			return true, nil
		}
	}
	return false, nil
}

func newTestServer(t *testing.T, barren bool) *httptest.Server {
	t.Helper()
	logger := zap.NewNop()

	docs := repository.NewMemoryDocumentRepository()
	workspaces := service.NewWorkspaceService(
		repository.NewMemoryWorkspaceRepository(),
		repository.NewMemoryACLRepository(),
		docs,
		logger)

	objects := storage.NewMemoryStore()
	jobs := queue.NewMemoryQueue(16)
	statuses := &statusStub{docs: docs}
	uploads := service.NewUploadService(workspaces, docs, objects, jobs, statuses, 1<<20, logger)
	documents := service.NewDocumentService(workspaces, docs, objects, jobs, statuses, logger)

	composer, err := prompt.NewComposer(nil, "v1")
	if err != nil {
		t.Fatalf("NewComposer: %v", err)
	}
	conversations := conversation.NewMemoryStore(12)
	answers := service.NewAnswerService(workspaces, &stubRetriever{barren: barren}, composer,
		llm.NewFakeProvider(), conversations,
		service.AnswerOptions{}, metrics.NewNop(), logger)

	srv := httptest.NewServer(NewRouter(Deps{
		Workspaces:     workspaces,
		Uploads:        uploads,
		Documents:      documents,
		Answers:        answers,
		Conversations:  conversations,
		MaxUploadBytes: 1 << 20,
		Logger:         logger,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, method, url string, actor *model.Actor, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if actor != nil {
		req.Header.Set("X-User-ID", actor.UserID)
		req.Header.Set("X-User-Role", string(actor.Role))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

var apiOwner = model.Actor{UserID: "owner-1", Role: model.ActorRoleEmployee}

func createWorkspace(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	body := strings.NewReader(`{"name": "docs"}`)
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/workspaces", &apiOwner, body, "application/json")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create workspace status = %d", resp.StatusCode)
	}
	var ws workspaceResponse
	decodeBody(t, resp, &ws)
	return ws.ID
}

func TestIdentityHeadersRequired(t *testing.T) {
	srv := newTestServer(t, false)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/workspaces", nil, nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}

	bad := model.Actor{UserID: "u", Role: "SUPERUSER"}
	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/workspaces", &bad, nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("bad role status = %d, want 403", resp.StatusCode)
	}
}

func TestWorkspaceLifecycle(t *testing.T) {
	srv := newTestServer(t, false)
	wsID := createWorkspace(t, srv)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/workspaces/"+wsID, &apiOwner, nil, "")
	var ws workspaceResponse
	decodeBody(t, resp, &ws)
	if ws.Name != "docs" || ws.Visibility != "PRIVATE" {
		t.Errorf("workspace = %+v", ws)
	}

	resp = doRequest(t, http.MethodPatch, srv.URL+"/api/v1/workspaces/"+wsID, &apiOwner,
		strings.NewReader(`{"visibility": "ORG_READ"}`), "application/json")
	decodeBody(t, resp, &ws)
	if ws.Visibility != "ORG_READ" {
		t.Errorf("visibility = %s, want ORG_READ", ws.Visibility)
	}

	resp = doRequest(t, http.MethodPost, srv.URL+"/api/v1/workspaces/"+wsID+"/archive", &apiOwner, nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("archive status = %d, want 204", resp.StatusCode)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv := newTestServer(t, false)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/workspaces/missing", &apiOwner, nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var envelope errorResponse
	decodeBody(t, resp, &envelope)
	if envelope.Error.Code != "NOT_FOUND" {
		t.Errorf("code = %s, want NOT_FOUND", envelope.Error.Code)
	}
}

func multipartUpload(t *testing.T, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write([]byte(content))
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestDocumentUploadFlow(t *testing.T) {
	srv := newTestServer(t, false)
	wsID := createWorkspace(t, srv)

	body, contentType := multipartUpload(t, "notes.txt", "Travel budget is $50.")
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/workspaces/"+wsID+"/documents", &apiOwner, body, contentType)
	if resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload status = %d: %s", resp.StatusCode, raw)
	}
	var uploaded map[string]string
	decodeBody(t, resp, &uploaded)
	if uploaded["status"] != "PENDING" || uploaded["document_id"] == "" {
		t.Errorf("upload response = %v", uploaded)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/workspaces/"+wsID+"/documents", &apiOwner, nil, "")
	var docs []documentResponse
	decodeBody(t, resp, &docs)
	if len(docs) != 1 || docs[0].FileName != "notes.txt" {
		t.Errorf("documents = %+v", docs)
	}

	statusURL := fmt.Sprintf("%s/api/v1/workspaces/%s/documents/%s/status", srv.URL, wsID, uploaded["document_id"])
	resp = doRequest(t, http.MethodGet, statusURL, &apiOwner, nil, "")
	var status map[string]string
	decodeBody(t, resp, &status)
	if status["status"] != "PENDING" {
		t.Errorf("status = %v", status)
	}
}

func TestAnswerEndpoint(t *testing.T) {
	srv := newTestServer(t, false)
	wsID := createWorkspace(t, srv)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/workspaces/"+wsID+"/answers", &apiOwner,
		strings.NewReader(`{"query": "Cual es el presupuesto?"}`), "application/json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var res service.AnswerResult
	decodeBody(t, resp, &res)
	if !strings.Contains(res.Answer, "$50") {
		t.Errorf("answer = %q, want evidence surfaced", res.Answer)
	}
	if len(res.Sources) != 1 || res.Sources[0].ChunkID != "c1" {
		t.Errorf("sources = %+v", res.Sources)
	}
}

func TestAnswerFallbackWithoutEvidence(t *testing.T) {
	srv := newTestServer(t, true)
	wsID := createWorkspace(t, srv)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/workspaces/"+wsID+"/answers", &apiOwner,
		strings.NewReader(`{"query": "algo"}`), "application/json")
	var res service.AnswerResult
	decodeBody(t, resp, &res)
	if res.Answer != rag.NoEvidenceFallback {
		t.Errorf("answer = %q, want canonical fallback", res.Answer)
	}
}

func TestConversationLifecycle(t *testing.T) {
	srv := newTestServer(t, false)
	wsID := createWorkspace(t, srv)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/conversations", &apiOwner, nil, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create conversation status = %d, want 201", resp.StatusCode)
	}
	var created map[string]string
	decodeBody(t, resp, &created)
	convID := created["conversation_id"]
	if convID == "" {
		t.Fatalf("create response = %v, want a conversation_id", created)
	}

	body := fmt.Sprintf(`{"query": "Cual es el presupuesto?", "conversation_id": %q}`, convID)
	resp = doRequest(t, http.MethodPost, srv.URL+"/api/v1/workspaces/"+wsID+"/answers", &apiOwner,
		strings.NewReader(body), "application/json")
	var res service.AnswerResult
	decodeBody(t, resp, &res)
	if res.ConversationID != convID {
		t.Errorf("conversation_id = %s, want %s", res.ConversationID, convID)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/conversations/"+convID, &apiOwner, nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d", resp.StatusCode)
	}
	var history conversationResponse
	decodeBody(t, resp, &history)
	if len(history.Messages) != 2 {
		t.Fatalf("messages = %+v, want user turn and assistant turn", history.Messages)
	}
	if history.Messages[0].Role != "user" || history.Messages[1].Role != "assistant" {
		t.Errorf("roles = %s, %s", history.Messages[0].Role, history.Messages[1].Role)
	}

	resp = doRequest(t, http.MethodDelete, srv.URL+"/api/v1/conversations/"+convID, &apiOwner, nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("clear status = %d, want 204", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/conversations/"+convID, &apiOwner, nil, "")
	decodeBody(t, resp, &history)
	if len(history.Messages) != 0 {
		t.Errorf("messages after clear = %+v, want none", history.Messages)
	}
}

func TestAnswerStreamEndpoint(t *testing.T) {
	srv := newTestServer(t, false)
	wsID := createWorkspace(t, srv)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/workspaces/"+wsID+"/answers/stream", &apiOwner,
		strings.NewReader(`{"query": "Cual es el presupuesto?"}`), "application/json")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %s", ct)
	}

	var eventTypes []string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventTypes = append(eventTypes, strings.TrimPrefix(line, "event: "))
		}
	}

	if len(eventTypes) < 3 {
		t.Fatalf("events = %v, want sources + tokens + done", eventTypes)
	}
	if eventTypes[0] != service.EventSources {
		t.Errorf("first event = %s, want sources", eventTypes[0])
	}
	if eventTypes[len(eventTypes)-1] != service.EventDone {
		t.Errorf("last event = %s, want done", eventTypes[len(eventTypes)-1])
	}
	for _, et := range eventTypes[1 : len(eventTypes)-1] {
		if et != service.EventToken {
			t.Errorf("middle event = %s, want token", et)
		}
	}
}
