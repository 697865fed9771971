package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"triagebench/internal/dataset"
	"triagebench/internal/repair"
)

const defaultOllamaBaseURL = "http://localhost:11434"

var signalFieldOrder = []string{
	"device_hint",
	"mentions_vpn",
	"mentions_email",
	"mentions_wifi_or_network",
	"mentions_printer",
	"mentions_software_app",
	"mentions_laptop_issue",
	"access_request",
	"security_incident",
	"scope",
	"error_codes",
	"urgency_words",
	"summary",
}

// signalsJSONSchema constrains structured output to the TicketSignals
// shape when the server supports schema-valued format.
var signalsJSONSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"device_hint":              map[string]any{"type": "string", "enum": []string{"windows", "mac", "iphone", "android", "unknown"}},
		"mentions_vpn":             map[string]any{"type": "boolean"},
		"mentions_email":           map[string]any{"type": "boolean"},
		"mentions_wifi_or_network": map[string]any{"type": "boolean"},
		"mentions_printer":         map[string]any{"type": "boolean"},
		"mentions_software_app":    map[string]any{"type": "boolean"},
		"mentions_laptop_issue":    map[string]any{"type": "boolean"},
		"access_request":           map[string]any{"type": "boolean"},
		"security_incident":        map[string]any{"type": "boolean"},
		"scope":                    map[string]any{"type": "string", "enum": []string{"single_user", "multiple_users", "unknown"}},
		"error_codes":              map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"urgency_words":            map[string]any{"type": "boolean"},
		"summary":                  map[string]any{"type": "string"},
	},
	"required":             signalFieldOrder,
	"additionalProperties": false,
}

const signalsSystemPrompt = `You extract TicketSignals from support tickets.
Return exactly one single-line minified JSON object and nothing else.
No markdown, no code fences, no commentary, and no extra leading/trailing text.
Do not output final category/priority labels. Output only the requested signal fields.
Always include all required TicketSignals fields exactly once.
Field rules:
- device_hint must be one of ["windows","mac","iphone","android","unknown"]
- scope must be one of ["single_user","multiple_users","unknown"]
- error_codes must be an array of strings (empty array if none)
- summary must be concise and factual (max ~20 tokens)
`

// Ollama extracts TicketSignals from a local Ollama server. It prefers
// /api/chat and falls back to /api/generate when the endpoint or the
// response shape is missing, and retries one parse failure with a
// stricter prompt.
type Ollama struct {
	baseURL     string
	client      *http.Client
	temperature float64
	numPredict  int
	numCtx      int
	jsonMode    bool
}

func NewOllama(opts Options) *Ollama {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	numPredict := opts.NumPredict
	if numPredict <= 0 {
		numPredict = 320
	}
	numCtx := opts.NumCtx
	if numCtx <= 0 {
		numCtx = 2048
	}
	return &Ollama{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: timeout},
		temperature: opts.Temperature,
		numPredict:  numPredict,
		numCtx:      numCtx,
		jsonMode:    opts.JSONMode,
	}
}

func (o *Ollama) Generate(ctx context.Context, c dataset.Case, model string) (*Result, error) {
	promptChars := len(c.InputText)
	userPrompt := buildSignalsPrompt(c.InputText)

	start := time.Now()
	rawText, usage, err := o.callModel(ctx, model, userPrompt)
	if err != nil {
		latency := latencyMS(start)
		switch e := err.(type) {
		case *connectionError:
			return nil, fmt.Errorf(
				"ollama not reachable at %s; start it with 'ollama serve' and ensure model exists: 'ollama pull %s'",
				o.baseURL, model)
		case *httpStatusError:
			body := strings.TrimSpace(fmt.Sprintf("HTTP %d: %s", e.status, e.body))
			return &Result{
				LatencyMS:   latency,
				RawText:     clip(body, 500),
				Status:      "error",
				ErrorType:   "HTTPError",
				ErrorMsg:    clip(body, 300),
				PromptChars: promptChars,
			}, nil
		case *shapeError:
			return &Result{
				LatencyMS:   latency,
				RawText:     clip(e.payload, 500),
				Status:      "error",
				ErrorType:   "ResponseShapeError",
				ErrorMsg:    e.msg,
				PromptChars: promptChars,
			}, nil
		}
		return &Result{
			LatencyMS:   latency,
			Status:      "error",
			ErrorType:   "ProviderError",
			ErrorMsg:    err.Error(),
			PromptChars: promptChars,
		}, nil
	}

	actual, ok, failure := repair.ParseObject(rawText)
	if !ok {
		retryPrompt := userPrompt + "\n\nIMPORTANT: Return exactly one single-line minified JSON object. " +
			"No extra text. Include all required fields."
		retryErrorType := string(failure)
		retryErrorMsg := parseErrorMessage(failure)
		retryText, retryUsage, retryErr := o.callModel(ctx, model, retryPrompt)
		switch e := retryErr.(type) {
		case nil:
			retryActual, retryOK, retryFailure := repair.ParseObject(retryText)
			if retryOK {
				return &Result{
					Actual:        retryActual,
					LatencyMS:     latencyMS(start),
					Usage:         firstUsage(retryUsage, usage),
					Status:        "ok",
					PromptChars:   promptChars,
					ResponseChars: len(retryText),
				}, nil
			}
			rawText = retryText
			usage = firstUsage(retryUsage, usage)
			retryErrorType = string(retryFailure)
			retryErrorMsg = parseErrorMessage(retryFailure)
		case *httpStatusError:
			rawText = strings.TrimSpace(fmt.Sprintf("HTTP %d: %s", e.status, e.body))
			retryErrorType = "HTTPError"
			retryErrorMsg = clip(rawText, 300)
		case *shapeError:
			rawText = e.payload
			retryErrorType = "ResponseShapeError"
			retryErrorMsg = e.msg
		default:
			rawText = retryErr.Error()
			retryErrorType = "ProviderError"
			retryErrorMsg = retryErr.Error()
		}

		return &Result{
			LatencyMS:     latencyMS(start),
			RawText:       clip(rawText, 500),
			Usage:         usage,
			Status:        "error",
			ErrorType:     retryErrorType,
			ErrorMsg:      retryErrorMsg,
			PromptChars:   promptChars,
			ResponseChars: len(rawText),
		}, nil
	}

	return &Result{
		Actual:        actual,
		LatencyMS:     latencyMS(start),
		Usage:         usage,
		Status:        "ok",
		PromptChars:   promptChars,
		ResponseChars: len(rawText),
	}, nil
}

// callModel tries the preferred output format first. Plain json_mode can
// be rejected by some server builds; on 400/404/422 it falls back to the
// schema-valued format.
func (o *Ollama) callModel(ctx context.Context, model, userPrompt string) (string, *Usage, error) {
	var preferred any = signalsJSONSchema
	if o.jsonMode {
		preferred = "json"
	}
	text, usage, err := o.callModelWithFormat(ctx, model, userPrompt, preferred)
	if err != nil {
		if httpErr, ok := err.(*httpStatusError); ok && o.jsonMode && jsonModeFallbackStatus(httpErr.status) {
			return o.callModelWithFormat(ctx, model, userPrompt, signalsJSONSchema)
		}
		return "", nil, err
	}
	return text, usage, nil
}

func (o *Ollama) callModelWithFormat(ctx context.Context, model, userPrompt string, format any) (string, *Usage, error) {
	options := map[string]any{
		"temperature": o.temperature,
		"num_predict": o.numPredict,
		"num_ctx":     o.numCtx,
	}
	chatPayload := map[string]any{
		"model":  model,
		"stream": false,
		"format": format,
		"messages": []map[string]string{
			{"role": "system", "content": signalsSystemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"options": options,
	}

	body, err := o.postJSON(ctx, "/api/chat", chatPayload)
	if err == nil {
		content := gjson.GetBytes(body, "message.content")
		if content.Type != gjson.String {
			err = &shapeError{msg: "ollama /api/chat response missing message.content", payload: string(body)}
		} else {
			return content.String(), extractUsage(body), nil
		}
	}
	switch err.(type) {
	case *endpointNotFoundError, *shapeError:
	default:
		return "", nil, err
	}

	generatePayload := map[string]any{
		"model":   model,
		"stream":  false,
		"format":  format,
		"prompt":  "System:\n" + signalsSystemPrompt + "\n\nUser:\n" + userPrompt,
		"options": options,
	}
	body, err = o.postJSON(ctx, "/api/generate", generatePayload)
	if err != nil {
		return "", nil, err
	}
	text := gjson.GetBytes(body, "response")
	if text.Type != gjson.String {
		return "", nil, &shapeError{msg: "ollama /api/generate response missing response text", payload: string(body)}
	}
	return text.String(), extractUsage(body), nil
}

func (o *Ollama) postJSON(ctx context.Context, path string, payload map[string]any) ([]byte, error) {
	url := o.baseURL + path
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &connectionError{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &connectionError{err: err}
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, &endpointNotFoundError{path: path}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &httpStatusError{status: resp.StatusCode, body: clip(strings.TrimSpace(string(body)), 500)}
	}

	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return nil, fmt.Errorf("ollama API returned non-object payload at %s", url)
	}
	return body, nil
}

func buildSignalsPrompt(ticketText string) string {
	return "Extract TicketSignals from this support ticket.\n" +
		"Ticket: " + ticketText + "\n" +
		"Return exactly one single-line minified JSON object only.\n" +
		"No markdown, no code fences, and no commentary.\n" +
		"Include all required fields: " + strings.Join(signalFieldOrder, ", ") + "."
}

// extractUsage probes the response for token counts under the names the
// chat and generate endpoints use.
func extractUsage(body []byte) *Usage {
	prompt := firstInt(body, "prompt_eval_count", "input_eval_count")
	completion := firstInt(body, "eval_count", "output_eval_count")
	total := firstInt(body, "total_tokens")
	if prompt == nil && completion == nil && total == nil {
		return nil
	}
	return sumUsage(&Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      total,
	})
}

func firstInt(body []byte, keys ...string) *int {
	for _, key := range keys {
		value := gjson.GetBytes(body, key)
		if value.Type == gjson.Number {
			return intPtr(int(value.Int()))
		}
	}
	return nil
}

func firstUsage(usages ...*Usage) *Usage {
	for _, u := range usages {
		if u != nil {
			return u
		}
	}
	return nil
}

func jsonModeFallbackStatus(status int) bool {
	switch status {
	case 400, 404, 422:
		return true
	}
	return false
}

func parseErrorMessage(failure repair.FailureKind) string {
	switch failure {
	case repair.EmptyOutput:
		return "Model returned empty output"
	case repair.ExtractionFailure:
		return "Could not extract a JSON object from model output"
	}
	return "Model did not return a valid JSON object"
}

func latencyMS(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

type connectionError struct{ err error }

func (e *connectionError) Error() string { return e.err.Error() }
func (e *connectionError) Unwrap() error { return e.err }

type endpointNotFoundError struct{ path string }

func (e *endpointNotFoundError) Error() string { return "endpoint not found: " + e.path }

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string { return fmt.Sprintf("ollama HTTP error %d", e.status) }

type shapeError struct {
	msg     string
	payload string
}

func (e *shapeError) Error() string { return e.msg }
