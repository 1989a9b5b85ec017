package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/ideaforge-backend/internal/data/repos"
	"github.com/yungbote/ideaforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/ideaforge-backend/internal/generation/dedupe"
	"github.com/yungbote/ideaforge-backend/internal/generation/orchestrator"
	"github.com/yungbote/ideaforge-backend/internal/generation/profile"
	"github.com/yungbote/ideaforge-backend/internal/generation/prompt"
	"github.com/yungbote/ideaforge-backend/internal/generation/stream"
	"github.com/yungbote/ideaforge-backend/internal/generation/tracker"
	httpH "github.com/yungbote/ideaforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/ideaforge-backend/internal/http/middleware"
	"github.com/yungbote/ideaforge-backend/internal/llm"
	"github.com/yungbote/ideaforge-backend/internal/observability"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/realtime"
	"github.com/yungbote/ideaforge-backend/internal/services"
)

const testDim = 4

func ideaText(problem string) string {
	qa := []prompt.QA{{Question: "Who pays?", Answer: "Shippers."}}
	p := prompt.Payload{
		Domain:   "Logistics",
		Problem:  problem,
		Solution: "A dispatch copilot for " + problem,
		Summary:  "Copilot summary",
		Example:  prompt.Example{Situation: "A truck idles", Action: "The copilot reroutes", Outcome: "Fuel saved"},
		Criteria: map[string]prompt.CriterionEval{
			"technicalFeasibility": {Score: 8, Reasoning: "simple", QA: qa},
			"marketSize":           {Score: 6, Reasoning: "medium", QA: qa},
			"monetizationClarity":  {Score: 4, Reasoning: "unclear", QA: qa},
		},
		RegulatoryComplexity: 3,
	}
	raw, _ := json.Marshal(p)
	return string(raw)
}

type routerHarness struct {
	engine  *gin.Engine
	tokens  services.TokenService
	tracker *tracker.Tracker
	metrics *observability.Metrics
}

func newRouterHarness(t *testing.T, authDisabled bool) *routerHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	log := testutil.Logger(t)

	slotsRepo := repos.NewGenerationSlotRepo(db, log)
	ideaRepo := repos.NewIdeaRepo(db, log, testDim)
	require.NoError(t, slotsRepo.EnsureSlots(dbctx.New(context.Background()), 3))

	store, err := profile.NewStaticStore(log, "default", &profile.Profile{
		ID:      "default",
		Name:    "Default",
		LLM:     profile.LLMConfig{Provider: "fake", Model: "fake-1"},
		Prompts: profile.Prompts{Template: "Idea in {{.Domain}}"},
		Domains: []string{"Logistics"},
		Criteria: []profile.Criterion{
			{Name: "technicalFeasibility", Weight: 1},
			{Name: "marketSize", Weight: 1},
			{Name: "monetizationClarity", Weight: 1},
		},
	})
	require.NoError(t, err)

	var calls int
	registry := llm.NewRegistry("fake")
	registry.Register("fake", llm.GeneratorFunc(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		calls++
		return llm.Response{Text: ideaText("lost pallets " + string(rune('a'+calls)))}, nil
	}))
	var n int
	emb := llm.EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		v := make([]float32, testDim)
		v[n%testDim] = 1
		n++
		return v, nil
	})

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	hub := realtime.NewSSEHub(log)
	notifier := realtime.NewLifecycleNotifier(log, hub, nil)
	tr := tracker.New(log, db, repos.NewGenerationSessionRepo(db, log), repos.NewGenerationLogRepo(db, log), nil,
		tracker.WithNotifier(notifier), tracker.WithMetrics(metrics))
	orch, err := orchestrator.New(log, orchestrator.Deps{
		Tracker:  tr,
		Profiles: store,
		Slots:    slotsRepo,
		Prompts:  prompt.NewBuilder(1),
		LLMs:     registry,
		Detector: dedupe.NewDetector(log, ideaRepo, emb),
		Embedder: emb,
		Ideas:    ideaRepo,
		Metrics:  metrics,
	})
	require.NoError(t, err)

	tokens, err := services.NewTokenService(log, "router-secret", "ideaforge")
	require.NoError(t, err)

	genSvc := services.NewGenerationService(log, orch)
	slotSvc := services.NewSlotService(log, slotsRepo, tr.Active(), store)
	engine := NewRouter(RouterConfig{
		Log:               log,
		Metrics:           metrics,
		AuthMiddleware:    httpMW.NewAuthMiddleware(log, tokens, authDisabled),
		GenerationHandler: httpH.NewGenerationHandler(log, genSvc),
		StreamHandler:     httpH.NewStreamHandler(log, stream.New(log, tr, stream.WithPollInterval(5*time.Millisecond)), metrics, nil),
		RealtimeHandler:   httpH.NewRealtimeHandler(log, hub, metrics),
		SlotHandler:       httpH.NewSlotHandler(log, slotSvc, notifier),
		ProfileHandler:    httpH.NewProfileHandler(store),
		HealthHandler:     httpH.NewHealthHandler(db),
	})
	return &routerHarness{engine: engine, tokens: tokens, tracker: tr, metrics: metrics}
}

func (h *routerHarness) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	tok, err := h.tokens.Issue("tester", time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

type errorBody struct {
	Error struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		SessionID   string `json:"sessionId"`
		DuplicateOf string `json:"duplicateOf"`
	} `json:"error"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRouter_GenerateAndInspect(t *testing.T) {
	h := newRouterHarness(t, false)

	rec := h.do(t, http.MethodPost, "/api/generate", `{"sessionId":"http-1","domain":"Logistics"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[orchestrator.Result](t, rec)
	assert.Equal(t, "http-1", res.SessionID)
	require.NotNil(t, res.Idea)
	assert.Equal(t, 60, res.Summary.WeightedScore)
	assert.NotEmpty(t, res.Logs)
	assert.Equal(t, "default", res.Configuration.ProfileID)

	rec = h.do(t, http.MethodGet, "/api/generation/sessions/http-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)

	rec = h.do(t, http.MethodGet, "/api/generation/sessions/http-1/logs?after=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[struct {
		Logs []map[string]any `json:"logs"`
	}](t, rec)
	assert.Len(t, logs.Logs, len(res.Logs)-1)

	rec = h.do(t, http.MethodGet, "/api/generation/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"activeCount":0,"activeSessions":[]}`, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/api/generation/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_ErrorEnvelope(t *testing.T) {
	h := newRouterHarness(t, false)

	rec := h.do(t, http.MethodPut, "/api/slots/2", `{"autoGenerate":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/generate", `{"slotNumber":2}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "slot_auto_generate", body.Error.Code)
	assert.NotEmpty(t, body.Error.Message)

	rec = h.do(t, http.MethodPost, "/api/generate", `{"profileId":"missing","sessionId":"s-missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body = decode[errorBody](t, rec)
	assert.Equal(t, "s-missing", body.Error.SessionID)

	rec = h.do(t, http.MethodPost, "/api/generate", `{"slotNumber":11}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/generate", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Slots(t *testing.T) {
	h := newRouterHarness(t, false)

	rec := h.do(t, http.MethodGet, "/api/slots", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"slot_number":3`)

	rec = h.do(t, http.MethodPut, "/api/slots/1", `{"autoGenerate":true,"intervalMinutes":99999}`)
	require.Equal(t, http.StatusOK, rec.Code)
	slot := decode[struct {
		Slot map[string]any `json:"slot"`
	}](t, rec)
	assert.EqualValues(t, 1440, slot.Slot["interval_minutes"])
	assert.NotNil(t, slot.Slot["next_scheduled_at"])

	rec = h.do(t, http.MethodGet, "/api/slots/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(t, http.MethodGet, "/api/slots/9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/profiles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"default"`)
}

func TestRouter_SSEStreamEndsWithComplete(t *testing.T) {
	h := newRouterHarness(t, false)
	rec := h.do(t, http.MethodPost, "/api/generate", `{"sessionId":"sse-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/generation/sessions/sse-1/stream", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var events []string
	sc := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			events = append(events, name)
		}
	}
	require.NotEmpty(t, events)
	assert.Equal(t, "log", events[0])
	assert.Equal(t, "complete", events[len(events)-1])
	completes := 0
	for _, e := range events {
		if e == "complete" {
			completes++
		}
	}
	assert.Equal(t, 1, completes)
}

func TestRouter_WebSocketStream(t *testing.T) {
	h := newRouterHarness(t, true)
	rec := h.do(t, http.MethodPost, "/api/generate", `{"sessionId":"ws-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	srv := httptest.NewServer(h.engine)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/generation/sessions/ws-1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var last string
	for {
		var frame struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&frame); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected close: %v", err)
			break
		}
		last = frame.Event
	}
	assert.Equal(t, stream.EventComplete, last)
}

func TestRouter_AuthAndMetrics(t *testing.T) {
	h := newRouterHarness(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/slots", nil)
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	rec = httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ideaforge_http_requests_total")
}
