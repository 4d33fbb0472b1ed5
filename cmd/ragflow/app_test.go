package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/BaSui01/ragflow/agent/checkpoint"
	"github.com/BaSui01/ragflow/api/handlers"
	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/rag"
	"github.com/BaSui01/ragflow/rag/websearch"
	"github.com/BaSui01/ragflow/testutil"
	"github.com/BaSui01/ragflow/testutil/mocks"
	"github.com/BaSui01/ragflow/types"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeLLM 模拟 OpenAI 兼容接口：路由请求返回 route，其余 JSON 模式请求一律评为 yes，文本请求返回 answer
func fakeLLM(t *testing.T, route, answer string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		content := answer
		switch {
		case strings.Contains(string(body), "You route user questions"):
			content = `{"route":"` + route + `","reasoning":"test"}`
		case strings.Contains(string(body), `"response_format"`):
			content = `{"relevant":"yes"}`
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "cmpl-1",
			"model": "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testConfig(llmURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.LLM.BaseURL = llmURL
	cfg.LLM.APIKey = "test"
	cfg.LLM.MaxRetries = 0
	cfg.Metrics.Namespace = "ragflow_test"
	cfg.WebSearch.APIKey = ""
	return cfg
}

func TestApp_DirectQuestionOverHTTP(t *testing.T) {
	llmSrv, calls := fakeLLM(t, "direct", "Hello from the model.")
	cfg := testConfig(llmSrv.URL)

	app, err := NewApp(testutil.TestContext(t), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	api := httptest.NewServer(newRouter(app, cfg))
	t.Cleanup(api.Close)

	resp, err := http.Post(api.URL+"/v1/ask", "application/json",
		strings.NewReader(`{"question":"hi there","thread_id":"cli-1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var env struct {
		Data struct {
			Answer string `json:"answer"`
			Route  string `json:"route"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, "Hello from the model.", env.Data.Answer)
	assert.Equal(t, "direct", env.Data.Route)
	assert.Equal(t, int32(2), calls.Load(), "router + generator")

	metricsResp, err := http.Get(api.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(metricsResp.Body)
	metricsResp.Body.Close()
	assert.Contains(t, string(body), `ragflow_test_pipeline_runs_total{route="direct",status="success"} 1`)
	assert.Contains(t, string(body), `ragflow_test_http_requests_total{method="POST",path="/v1/ask",status="2xx"} 1`)
	assert.Contains(t, string(body), `ragflow_test_node_executions_total`)

	healthResp, err := http.Get(api.URL + "/health")
	require.NoError(t, err)
	healthResp.Body.Close()
	assert.Equal(t, http.StatusOK, healthResp.StatusCode)
}

func TestApp_SeedMemoryIndex(t *testing.T) {
	llmSrv, _ := fakeLLM(t, "direct", "unused")
	app, err := NewApp(testutil.TestContext(t), testConfig(llmSrv.URL), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	docs := []types.Document{
		{Content: "Refunds are issued within 14 days.", Metadata: types.Metadata{Source: "policy.pdf", Page: types.IntPtr(2)}},
		{Content: "Shipping takes three business days.", Metadata: types.Metadata{Source: "shipping.pdf"}},
	}
	data, err := json.Marshal(docs)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "docs.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	n, err := app.Seed(testutil.TestContext(t), path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	idx, ok := app.seeder.(rag.Index)
	require.True(t, ok)
	got, err := idx.Search(testutil.TestContext(t), "refunds issued", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "policy.pdf", got[0].Metadata.Source)

	_, err = app.Seed(testutil.TestContext(t), filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestApp_RedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	llmSrv, _ := fakeLLM(t, "web_search", "Answer from the web.")
	cfg := testConfig(llmSrv.URL)
	cfg.Redis.Addr = mr.Addr()
	cfg.Checkpoint.Type = "redis"
	cfg.WebSearch.CacheBackend = "redis"

	web := mocks.NewFakeWebSearch(websearch.Result{URL: "https://example.com", Title: "Example", Content: "web content"})
	app, err := newApp(testutil.TestContext(t), cfg, zap.NewNop(), appOverrides{web: web})
	require.NoError(t, err)
	t.Cleanup(app.Close)

	res, err := app.Session.Invoke(testutil.TestContext(t), "latest news", "redis-thread")
	require.NoError(t, err)
	assert.Equal(t, types.RouteWebSearch, res.State.Route)
	assert.Equal(t, "Answer from the web.", res.State.Generation)

	keys := mr.Keys()
	assert.Contains(t, keys, cfg.Checkpoint.KeyPrefix+"redis-thread")
	assert.Contains(t, keys, webCacheNamespace+websearch.CacheKey(web.Name(), "latest news", cfg.WebSearch.MaxResults))

	status := app.Health.Run(testutil.TestContext(t))
	assert.Equal(t, "healthy", status.Status)
	assert.Contains(t, status.Checks, "redis")
	assert.True(t, status.Checks["redis"].Critical)
	assert.Contains(t, status.Checks, "checkpoint")
}

func TestApp_RedisCacheOnlyIsOptional(t *testing.T) {
	mr := miniredis.RunT(t)
	llmSrv, _ := fakeLLM(t, "direct", "Hi.")
	cfg := testConfig(llmSrv.URL)
	cfg.Redis.Addr = mr.Addr()
	cfg.WebSearch.CacheBackend = "redis"

	app, err := newApp(testutil.TestContext(t), cfg, zap.NewNop(), appOverrides{web: mocks.NewFakeWebSearch()})
	require.NoError(t, err)
	t.Cleanup(app.Close)

	mr.Close()
	status := app.Health.Run(testutil.TestContext(t))
	assert.Equal(t, handlers.StatusDegraded, status.Status)
	assert.Equal(t, "fail", status.Checks["redis"].Status)
	assert.False(t, status.Checks["redis"].Critical)
	assert.Equal(t, "pass", status.Checks["checkpoint"].Status)
}

func TestApp_DatabaseCheckpoint(t *testing.T) {
	llmSrv, _ := fakeLLM(t, "direct", "Stored in sqlite.")
	cfg := testConfig(llmSrv.URL)
	cfg.Checkpoint.Type = "database"
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = "file:" + checkpoint.NewThreadID() + "?mode=memory&cache=shared"

	app, err := NewApp(testutil.TestContext(t), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	_, err = app.Session.Invoke(testutil.TestContext(t), "remember me", "db-thread")
	require.NoError(t, err)

	cp, err := app.Session.History(testutil.TestContext(t), "db-thread")
	require.NoError(t, err)
	require.Len(t, cp.ChatHistory, 2)
	assert.Equal(t, "Stored in sqlite.", cp.ChatHistory[1].Content)

	status := app.Health.Run(context.Background())
	assert.Equal(t, "pass", status.Checks["database"].Status)
}

func TestApp_Errors(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0")
	cfg.LLM.Provider = "cohere"
	_, err := NewApp(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)

	cfg = testConfig("http://127.0.0.1:0")
	cfg.Checkpoint.Type = "redis"
	cfg.Redis.Addr = "127.0.0.1:1"
	_, err = NewApp(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	p, err := newProvider(config.LLMConfig{Provider: "anthropic", APIKey: "k", Model: "claude"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	p, err = newProvider(config.LLMConfig{Provider: "openai", BaseURL: "http://localhost"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}
