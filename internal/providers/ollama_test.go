package providers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"triagebench/internal/dataset"
	"triagebench/internal/providers"
)

const signalsLine = `{"device_hint":"windows","mentions_vpn":true,"mentions_email":false,` +
	`"mentions_wifi_or_network":false,"mentions_printer":false,"mentions_software_app":false,` +
	`"mentions_laptop_issue":false,"access_request":false,"security_incident":false,` +
	`"scope":"single_user","error_codes":["809"],"urgency_words":false,"summary":"vpn error 809"}`

func ollamaOptions(baseURL string) providers.Options {
	return providers.Options{BaseURL: baseURL, Timeout: 5 * time.Second}
}

func testCase() dataset.Case {
	return dataset.Case{ID: "t1", InputText: "vpn error 809", Expected: map[string]any{}}
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		t.Fatalf("bad request body: %v", err)
	}
	return payload
}

func TestOllama_ChatPath(t *testing.T) {
	var chatCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&chatCalls, 1)
		payload := decodeBody(t, r)
		if payload["model"] != "test-model" {
			t.Errorf("model = %v", payload["model"])
		}
		if _, ok := payload["format"].(map[string]any); !ok {
			t.Errorf("default format must be the JSON schema, got %T", payload["format"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message":           map[string]any{"content": signalsLine},
			"prompt_eval_count": 42,
			"eval_count":        17,
		})
	}))
	defer srv.Close()

	o := providers.NewOllama(ollamaOptions(srv.URL))
	res, err := o.Generate(context.Background(), testCase(), "test-model")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "ok" {
		t.Fatalf("status = %q, error %s: %s", res.Status, res.ErrorType, res.ErrorMsg)
	}
	if res.Actual["device_hint"] != "windows" || res.Actual["mentions_vpn"] != true {
		t.Errorf("actual = %v", res.Actual)
	}
	if res.Usage == nil || *res.Usage.PromptTokens != 42 || *res.Usage.CompletionTokens != 17 {
		t.Errorf("usage = %+v", res.Usage)
	}
	if *res.Usage.TotalTokens != 59 {
		t.Errorf("total_tokens = %d, want summed 59", *res.Usage.TotalTokens)
	}
	if atomic.LoadInt32(&chatCalls) != 1 {
		t.Errorf("chat calls = %d", chatCalls)
	}
}

func TestOllama_FallsBackToGenerate(t *testing.T) {
	var generateCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			http.NotFound(w, r)
		case "/api/generate":
			atomic.AddInt32(&generateCalls, 1)
			payload := decodeBody(t, r)
			if _, ok := payload["prompt"].(string); !ok {
				t.Error("generate payload must carry a prompt")
			}
			json.NewEncoder(w).Encode(map[string]any{
				"response":   signalsLine,
				"eval_count": 9,
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	o := providers.NewOllama(ollamaOptions(srv.URL))
	res, err := o.Generate(context.Background(), testCase(), "test-model")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "ok" {
		t.Fatalf("status = %q: %s", res.Status, res.ErrorMsg)
	}
	if atomic.LoadInt32(&generateCalls) != 1 {
		t.Errorf("generate calls = %d", generateCalls)
	}
}

func TestOllama_RetriesOnceOnParseFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		content := "sorry, no JSON today"
		if n > 1 {
			content = signalsLine
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"content": content},
		})
	}))
	defer srv.Close()

	o := providers.NewOllama(ollamaOptions(srv.URL))
	res, err := o.Generate(context.Background(), testCase(), "test-model")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "ok" {
		t.Fatalf("retry should have recovered: %s %s", res.ErrorType, res.ErrorMsg)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestOllama_ParseFailureAfterRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"content": "still not json"},
		})
	}))
	defer srv.Close()

	o := providers.NewOllama(ollamaOptions(srv.URL))
	res, err := o.Generate(context.Background(), testCase(), "test-model")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "error" {
		t.Fatalf("status = %q, want error", res.Status)
	}
	if res.ErrorType != "ExtractionFailure" {
		t.Errorf("error_type = %q, want ExtractionFailure", res.ErrorType)
	}
	if res.RawText != "still not json" {
		t.Errorf("raw_text = %q", res.RawText)
	}
}

func TestOllama_HTTPErrorResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	o := providers.NewOllama(ollamaOptions(srv.URL))
	res, err := o.Generate(context.Background(), testCase(), "test-model")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "error" || res.ErrorType != "HTTPError" {
		t.Errorf("result = %+v", res)
	}
}

func TestOllama_ConnectionRefusedIsHardError(t *testing.T) {
	opts := ollamaOptions("http://127.0.0.1:1")
	o := providers.NewOllama(opts)

	_, err := o.Generate(context.Background(), testCase(), "test-model")
	if err == nil {
		t.Fatal("unreachable server must return an error")
	}
}

func TestOllama_JSONModeFallsBackToSchema(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		payload := decodeBody(t, r)
		if n == 1 {
			if payload["format"] != "json" {
				t.Errorf("first call format = %v, want json", payload["format"])
			}
			http.Error(w, "format not supported", http.StatusBadRequest)
			return
		}
		if _, ok := payload["format"].(map[string]any); !ok {
			t.Errorf("fallback format must be the schema, got %T", payload["format"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"content": signalsLine},
		})
	}))
	defer srv.Close()

	opts := ollamaOptions(srv.URL)
	opts.JSONMode = true
	o := providers.NewOllama(opts)

	res, err := o.Generate(context.Background(), testCase(), "test-model")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "ok" {
		t.Fatalf("status = %q: %s", res.Status, res.ErrorMsg)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestOllama_ShapeErrorResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			// Valid JSON object but missing message.content.
			json.NewEncoder(w).Encode(map[string]any{"done": true})
		case "/api/generate":
			json.NewEncoder(w).Encode(map[string]any{"done": true})
		}
	}))
	defer srv.Close()

	o := providers.NewOllama(ollamaOptions(srv.URL))
	res, err := o.Generate(context.Background(), testCase(), "test-model")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "error" || res.ErrorType != "ResponseShapeError" {
		t.Errorf("result = %+v", res)
	}
}
