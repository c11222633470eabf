package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/agritutor/agritutor/internal/errors"
	"github.com/agritutor/agritutor/internal/observability"
	"github.com/agritutor/agritutor/internal/server/handlers"
	"github.com/agritutor/agritutor/internal/tutor"
)

// fakeChat is an OpenAI-compatible /chat/completions endpoint that records
// request bodies.
type fakeChat struct {
	mu     sync.Mutex
	bodies []string
	status int
}

func (f *fakeChat) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.bodies = append(f.bodies, string(body))
	status := f.status
	f.mu.Unlock()

	if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer test-key" {
		http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
		return
	}
	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Rotate legumes with cereals."},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":5,"total_tokens":17}}`))
}

func (f *fakeChat) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...)
}

func newFakeTutor(t *testing.T, fake *fakeChat) *tutor.Service {
	t.Helper()
	upstream := httptest.NewServer(fake)
	t.Cleanup(upstream.Close)

	cfg := tutor.Config{
		DefaultProvider: "fake",
		Providers: map[string]tutor.ProviderInstanceConfig{
			"fake": {
				Enabled:    true,
				AIProvider: "openai",
				BaseURL:    upstream.URL,
				Models:     map[string]string{"default": "test-model"},
				Credentials: []tutor.CredentialConfig{
					{Enabled: true, Label: "primary", APIKey: "test-key"},
				},
			},
		},
	}
	return &tutor.Service{Providers: tutor.NewRegistry(cfg)}
}

func postJSON(t *testing.T, client *http.Client, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := client.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	return resp, data
}

func TestAPI_CatalogEndpoints(t *testing.T) {
	observability.InitCLILogger("test", false)
	handlers.InitHealthManager("test")

	ts, client := newAPIServer(t, nil)

	resp, err := client.Get(ts.URL + "/v1/categories")
	require.NoError(t, err)
	var categories handlers.CategoriesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&categories))
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, categories.Categories, 6)
	assert.Equal(t, "lesson", categories.Categories[0].ID)

	resp, body := postJSON(t, client, ts.URL+"/v1/templates/regional-context/fill",
		`{"values":{"TOPIC":"Drip irrigation","REGION":"Punjab"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var filled handlers.FillResponse
	require.NoError(t, json.Unmarshal(body, &filled))
	assert.Equal(t, "regional-context", filled.TemplateID)
	assert.Contains(t, filled.Prompt, "explain Drip irrigation specifically for Punjab agriculture")
	require.NotNil(t, filled.Complete)
	assert.True(t, *filled.Complete)

	// Without a tutor the model-backed endpoints are unavailable.
	resp, body = postJSON(t, client, ts.URL+"/v1/ask", `{"prompt":"crop rotation"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, string(body))
}

func TestAPI_AskAndLessonAgainstProvider(t *testing.T) {
	observability.InitCLILogger("test", false)
	handlers.InitHealthManager("test")

	fake := &fakeChat{}
	ts, client := newAPIServer(t, newFakeTutor(t, fake))

	resp, body := postJSON(t, client, ts.URL+"/v1/ask", `{"prompt":"crop rotation"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var answer tutor.Answer
	require.NoError(t, json.Unmarshal(body, &answer))
	assert.Equal(t, "Rotate legumes with cereals.", answer.Text)
	assert.Equal(t, "fake", answer.Provider)
	assert.Equal(t, "test-model", answer.Model)
	assert.Equal(t, tutor.WrapQuestion("crop rotation"), answer.Prompt)
	require.NotNil(t, answer.Usage)

	calls := fake.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], `"model":"test-model"`)
	assert.Contains(t, calls[0], "As AgriTutor AI, an expert agriculture tutor")

	resp, body = postJSON(t, client, ts.URL+"/v1/lessons",
		`{"topic":"Soil pH","purpose":"regional","region":"Punjab"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &answer))
	assert.Contains(t, answer.Prompt, "Soil pH")
	assert.Contains(t, answer.Prompt, "Punjab")
	require.Len(t, fake.calls(), 2)
}

func TestAPI_IncompleteTemplateNeverReachesProvider(t *testing.T) {
	observability.InitCLILogger("test", false)
	handlers.InitHealthManager("test")

	fake := &fakeChat{}
	ts, client := newAPIServer(t, newFakeTutor(t, fake))

	resp, body := postJSON(t, client, ts.URL+"/v1/ask",
		`{"template_id":"regional-context","values":{"TOPIC":"Drip irrigation","REGION":"  "}}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
	var errBody apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(body, &errBody))
	assert.Equal(t, apperrors.CodeValidationFailed, errBody.Error.Code)
	assert.Empty(t, fake.calls())
}

func TestAPI_ProviderRateLimitMapsTo429(t *testing.T) {
	observability.InitCLILogger("test", false)
	handlers.InitHealthManager("test")

	fake := &fakeChat{status: http.StatusTooManyRequests}
	ts, client := newAPIServer(t, newFakeTutor(t, fake))

	resp, body := postJSON(t, client, ts.URL+"/v1/ask", `{"prompt":"pest control","no_cache":true}`)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode, string(body))
	var errBody apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(body, &errBody))
	assert.Equal(t, apperrors.CodeRateLimited, errBody.Error.Code)
}
