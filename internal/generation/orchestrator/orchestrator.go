package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/yungbote/ideaforge-backend/internal/data/repos"
	types "github.com/yungbote/ideaforge-backend/internal/domain/generation"
	"github.com/yungbote/ideaforge-backend/internal/domain/ideas"
	"github.com/yungbote/ideaforge-backend/internal/generation/dedupe"
	"github.com/yungbote/ideaforge-backend/internal/generation/profile"
	"github.com/yungbote/ideaforge-backend/internal/generation/prompt"
	"github.com/yungbote/ideaforge-backend/internal/generation/scoring"
	"github.com/yungbote/ideaforge-backend/internal/generation/tracker"
	"github.com/yungbote/ideaforge-backend/internal/llm"
	"github.com/yungbote/ideaforge-backend/internal/observability"
	"github.com/yungbote/ideaforge-backend/internal/platform/apierr"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

const maxSessionIDLen = 64

type Request struct {
	SessionID          string        `json:"sessionId,omitempty"`
	Framework          string        `json:"framework,omitempty"`
	Domain             string        `json:"domain,omitempty"`
	SkipDuplicateCheck bool          `json:"skipDuplicateCheck,omitempty"`
	ProfileID          string        `json:"profileId,omitempty"`
	SlotNumber         *int          `json:"slotNumber,omitempty"`
	Trigger            types.Trigger `json:"-"`
}

type Result struct {
	SessionID     string            `json:"sessionId"`
	Idea          *ideas.Idea       `json:"idea"`
	Logs          []*types.LogEntry `json:"logs"`
	Summary       Summary           `json:"summary"`
	Configuration Configuration     `json:"configuration"`
}

type Summary struct {
	WeightedScore      int                `json:"weightedScore"`
	Complexity         scoring.Complexity `json:"complexity"`
	DuplicateCheck     DuplicateSummary   `json:"duplicateCheck"`
	InputTokens        int                `json:"inputTokens,omitempty"`
	OutputTokens       int                `json:"outputTokens,omitempty"`
	DurationMS         int64              `json:"durationMs"`
	EmbeddingAvailable bool               `json:"embeddingAvailable"`
}

type DuplicateSummary struct {
	Skipped    bool          `json:"skipped"`
	Method     dedupe.Method `json:"method,omitempty"`
	Similarity float64       `json:"similarity"`
	Threshold  float64       `json:"threshold"`
}

type Configuration struct {
	ProfileID   string             `json:"profileId"`
	ProfileName string             `json:"profileName"`
	Framework   string             `json:"framework"`
	Domain      string             `json:"domain"`
	Samples     map[string]string  `json:"samples,omitempty"`
	Provider    string             `json:"provider"`
	Model       string             `json:"model"`
	Temperature *float64           `json:"temperature,omitempty"`
	MaxTokens   int                `json:"maxTokens"`
	Weights     map[string]float64 `json:"weights"`
	SlotNumber  *int               `json:"slotNumber,omitempty"`
	Trigger     types.Trigger      `json:"trigger"`
}

// Outcome is delivered once on the channel returned by Launch.
type Outcome struct {
	SessionID string
	Result    *Result
	Err       error
}

// ProfileSource resolves the effective profile for a run.
type ProfileSource interface {
	Resolve(requested, slotAssigned string) (*profile.Profile, error)
}

// SlotReader is the slot lookup the pre-session guard needs.
type SlotReader interface {
	GetByNumber(dbc dbctx.Context, number int) (*types.Slot, error)
}

type Deps struct {
	Tracker  *tracker.Tracker
	Profiles ProfileSource
	Slots    SlotReader
	Prompts  *prompt.Builder
	LLMs     *llm.Registry
	Detector *dedupe.Detector
	Embedder llm.Embedder
	Ideas    repos.IdeaRepo
	Metrics  *observability.Metrics
}

type Orchestrator struct {
	tracker  *tracker.Tracker
	profiles ProfileSource
	slots    SlotReader
	prompts  *prompt.Builder
	llms     *llm.Registry
	detector *dedupe.Detector
	embedder llm.Embedder
	ideas    repos.IdeaRepo
	metrics  *observability.Metrics
	log      *logger.Logger
}

func New(log *logger.Logger, d Deps) (*Orchestrator, error) {
	switch {
	case d.Tracker == nil:
		return nil, errors.New("orchestrator: tracker required")
	case d.Profiles == nil:
		return nil, errors.New("orchestrator: profile source required")
	case d.LLMs == nil:
		return nil, errors.New("orchestrator: llm registry required")
	case d.Detector == nil:
		return nil, errors.New("orchestrator: duplicate detector required")
	case d.Ideas == nil:
		return nil, errors.New("orchestrator: idea repo required")
	}
	if d.Prompts == nil {
		d.Prompts = prompt.NewBuilder(time.Now().UnixNano())
	}
	return &Orchestrator{
		tracker:  d.Tracker,
		profiles: d.Profiles,
		slots:    d.Slots,
		prompts:  d.Prompts,
		llms:     d.LLMs,
		detector: d.Detector,
		embedder: d.Embedder,
		ideas:    d.Ideas,
		metrics:  d.Metrics,
		log:      log.With("service", "GenerationOrchestrator"),
	}, nil
}

func (o *Orchestrator) Tracker() *tracker.Tracker { return o.tracker }

// Run executes one generation to a terminal state. Caller cancellation does
// not abort the run once the session exists.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	run, err := o.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	return o.execute(context.WithoutCancel(ctx), run)
}

// Launch registers the session synchronously and runs the pipeline in the
// background. The slot is observably busy before Launch returns.
func (o *Orchestrator) Launch(ctx context.Context, req Request) (string, <-chan Outcome, error) {
	run, err := o.begin(ctx, req)
	if err != nil {
		return "", nil, err
	}
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		res, err := o.execute(context.WithoutCancel(ctx), run)
		out <- Outcome{SessionID: run.sessionID, Result: res, Err: err}
	}()
	return run.sessionID, out, nil
}

type runState struct {
	sessionID   string
	req         Request
	slotProfile string
	startedAt   time.Time
}

// begin validates the request, applies the slot guard and creates the
// session. Nothing is persisted when it fails.
func (o *Orchestrator) begin(ctx context.Context, req Request) (*runState, error) {
	if req.Trigger == "" {
		req.Trigger = types.TriggerManual
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if len(req.SessionID) > maxSessionIDLen {
		return nil, apierr.InvalidArgument("invalid_session_id", fmt.Errorf("session id must be at most %d characters", maxSessionIDLen))
	}
	req.ProfileID = strings.TrimSpace(req.ProfileID)

	var slotProfile string
	if req.SlotNumber != nil {
		n := *req.SlotNumber
		if !types.ValidSlotNumber(n) {
			return nil, apierr.InvalidArgument("invalid_slot_number", fmt.Errorf("slot number must be between %d and %d", types.MinSlotNumber, types.MaxSlotNumber))
		}
		if o.slots == nil {
			return nil, apierr.Internal("slots_unavailable", errors.New("slot store not configured"))
		}
		slot, err := o.slots.GetByNumber(dbctx.New(ctx), n)
		if err != nil {
			return nil, apierr.Internal("slot_lookup_failed", fmt.Errorf("load slot %d: %w", n, err))
		}
		if slot == nil {
			return nil, apierr.NotFound("slot_not_found", fmt.Errorf("slot %d does not exist", n)).WithDetail("slot_number", n)
		}
		if req.Trigger != types.TriggerAuto {
			if slot.AutoGenerate {
				return nil, apierr.Conflict("slot_auto_generate", fmt.Errorf("slot %d is in auto-generate mode; disable auto-generate to trigger it manually", n)).
					WithDetail("slot_number", n)
			}
			if !slot.Enabled {
				return nil, apierr.Conflict("slot_disabled", fmt.Errorf("slot %d is disabled", n)).WithDetail("slot_number", n)
			}
		}
		if slot.ProfileID != nil {
			slotProfile = *slot.ProfileID
		}
	}

	profileID := req.ProfileID
	if profileID == "" {
		profileID = slotProfile
	}
	_, err := o.tracker.Start(ctx, tracker.StartParams{
		SessionID:     req.SessionID,
		SlotNumber:    req.SlotNumber,
		Trigger:       req.Trigger,
		ProfileID:     profileID,
		ExclusiveSlot: req.Trigger == types.TriggerAuto,
	})
	if err != nil {
		return nil, err
	}
	return &runState{sessionID: req.SessionID, req: req, slotProfile: slotProfile, startedAt: time.Now()}, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *runState) (*Result, error) {
	sid := run.sessionID
	req := run.req
	log := o.log.With("session_id", sid)

	ctx, span := observability.Tracer().Start(ctx, "generation.run", trace.WithAttributes(
		attribute.String("generation.session_id", sid),
		attribute.String("generation.trigger", string(req.Trigger)),
	))
	defer span.End()

	fail := func(err error) (*Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		err = apierr.Ensure("generation_failed", err).WithDetail("session_id", sid)
		if ferr := o.tracker.Fail(ctx, sid, err); ferr != nil {
			log.Error("Failed to record session failure", "error", ferr, "cause", err)
		}
		log.Warn("Generation failed", "error", err, "kind", apierr.KindOf(err))
		return nil, err
	}
	advance := func(stage types.Stage, msg string, meta map[string]any) error {
		span.AddEvent(string(stage))
		return o.tracker.Advance(ctx, sid, stage, msg, meta)
	}
	note := func(level types.Level, msg string, meta map[string]any) error {
		return o.tracker.Log(ctx, sid, level, msg, meta)
	}

	// config_load
	if err := advance(types.StageConfigLoad, "Loading generation profile", map[string]any{
		"requested_profile": req.ProfileID,
		"slot_profile":      run.slotProfile,
	}); err != nil {
		return fail(err)
	}
	p, err := o.profiles.Resolve(req.ProfileID, run.slotProfile)
	if err != nil {
		return fail(err)
	}
	gen, err := o.llms.Get(p.LLM.Provider)
	if err != nil {
		return fail(apierr.ExternalService("llm_provider_unavailable", fmt.Errorf("profile %s: %w", p.ID, err)))
	}
	span.SetAttributes(attribute.String("generation.profile_id", p.ID), attribute.String("generation.provider", gen.Provider()))
	cfg := Configuration{
		ProfileID:   p.ID,
		ProfileName: p.Name,
		Provider:    gen.Provider(),
		Model:       p.LLM.Model,
		Temperature: p.LLM.Temperature,
		MaxTokens:   p.LLM.MaxTokens,
		Weights:     p.Weights(),
		SlotNumber:  req.SlotNumber,
		Trigger:     req.Trigger,
	}
	if err := note(types.LevelInfo, fmt.Sprintf("Using profile %q", p.Name), map[string]any{
		"profile_id": p.ID,
		"provider":   cfg.Provider,
		"model":      cfg.Model,
		"criteria":   len(p.Criteria),
	}); err != nil {
		return fail(err)
	}

	// prompt_build
	if err := o.tracker.AdvanceWith(ctx, sid, types.StagePromptBuild, "Building prompt", nil, map[string]interface{}{"profile_id": p.ID}); err != nil {
		return fail(err)
	}
	pr, err := o.prompts.Build(p, prompt.Overrides{Framework: req.Framework, Domain: req.Domain})
	if err != nil {
		return fail(err)
	}
	cfg.Framework, cfg.Domain, cfg.Samples = pr.Framework, pr.Domain, pr.Samples
	if err := note(types.LevelInfo, "Prompt built", map[string]any{
		"framework":    pr.Framework,
		"domain":       pr.Domain,
		"samples":      pr.Samples,
		"prompt_chars": len(pr.System) + len(pr.User),
	}); err != nil {
		return fail(err)
	}

	// api_call
	if err := advance(types.StageAPICall, fmt.Sprintf("Requesting idea from %s", cfg.Provider), map[string]any{
		"provider": cfg.Provider,
		"model":    cfg.Model,
	}); err != nil {
		return fail(err)
	}
	callStart := time.Now()
	resp, err := gen.Generate(ctx, llm.Request{
		System:      pr.System,
		User:        pr.User,
		Model:       p.LLM.Model,
		Temperature: p.LLM.Temperature,
		MaxTokens:   p.LLM.MaxTokens,
		JSON:        true,
	})
	callDur := time.Since(callStart)
	if err != nil {
		o.metrics.LLMRequest(cfg.Provider, cfg.Model, "error", callDur, 0, 0)
		return fail(providerFailure(cfg.Provider, err))
	}
	o.metrics.LLMRequest(cfg.Provider, cfg.Model, "ok", callDur, resp.InputTokens, resp.OutputTokens)
	if resp.Model != "" {
		cfg.Model = resp.Model
	}
	if err := note(types.LevelInfo, "Model response received", map[string]any{
		"chars":         len(resp.Text),
		"input_tokens":  resp.InputTokens,
		"output_tokens": resp.OutputTokens,
		"latency_ms":    callDur.Milliseconds(),
	}); err != nil {
		return fail(err)
	}

	// response_parse
	if err := advance(types.StageResponseParse, "Parsing model response", nil); err != nil {
		return fail(err)
	}
	payload, err := prompt.Parse(resp.Text)
	if err != nil {
		return fail(err)
	}
	if err := payload.Validate(p.CriterionNames()); err != nil {
		return fail(err)
	}
	if err := note(types.LevelInfo, "Response validated", map[string]any{"criteria": len(payload.Criteria)}); err != nil {
		return fail(err)
	}

	// duplicate_check
	cand := dedupe.Candidate{Domain: payload.Domain, Problem: payload.Problem, Solution: payload.Solution, Summary: payload.Summary}
	dup := DuplicateSummary{Skipped: req.SkipDuplicateCheck, Threshold: o.threshold(p)}
	var embedding []float32
	if req.SkipDuplicateCheck {
		if err := advance(types.StageDuplicateCheck, "Duplicate check skipped on request", map[string]any{"skipped": true}); err != nil {
			return fail(err)
		}
		embedding = o.bestEffortEmbedding(ctx, sid, cand)
	} else {
		if err := advance(types.StageDuplicateCheck, "Checking for duplicates", map[string]any{"threshold": dup.Threshold}); err != nil {
			return fail(err)
		}
		verdict, err := o.detector.Check(ctx, cand, dup.Threshold)
		if err != nil {
			return fail(err)
		}
		o.metrics.DuplicateCheck(string(verdict.Method), verdict.Duplicate)
		dup.Method, dup.Similarity = verdict.Method, verdict.Similarity
		if verdict.Duplicate {
			match := *verdict.MatchedIdeaID
			return fail(apierr.Conflict("duplicate_idea", fmt.Errorf("generated idea duplicates existing idea %s (%s match, similarity %.3f)", match, verdict.Method, verdict.Similarity)).
				WithDetail("duplicate_of", match).
				WithDetail("similarity", verdict.Similarity))
		}
		if err := note(types.LevelInfo, "No duplicate found", map[string]any{
			"method":          string(verdict.Method),
			"best_similarity": verdict.Similarity,
		}); err != nil {
			return fail(err)
		}
		embedding = verdict.Embedding
	}

	// database_save, with the score computed at its start
	if err := advance(types.StageDatabaseSave, "Scoring and saving idea", nil); err != nil {
		return fail(err)
	}
	scores := payload.Scores()
	weighted := scoring.WeightedScore(scores, p.Weights())
	complexity := scoring.ComplexityScores(scores, payload.RegulatoryComplexity, scoring.Keys{
		TechnicalFeasibility: p.ComplexityKeys.TechnicalFeasibility,
		MarketSize:           p.ComplexityKeys.MarketSize,
		MonetizationClarity:  p.ComplexityKeys.MonetizationClarity,
	})
	if err := note(types.LevelInfo, "Scores computed", map[string]any{
		"step":           "scoring",
		"weighted_score": weighted,
		"complexity":     complexity,
	}); err != nil {
		return fail(err)
	}

	idea, err := buildIdea(sid, cfg, payload, weighted, complexity, embedding)
	if err != nil {
		return fail(apierr.Internal("idea_encode_failed", err))
	}

	// complete, committed together with the idea and its history entry
	elapsed := time.Since(run.startedAt)
	if err := o.tracker.CompleteWith(ctx, sid, idea.ID, "Idea generated", map[string]any{
		"idea_id":        idea.ID.String(),
		"weighted_score": weighted,
		"duration_ms":    elapsed.Milliseconds(),
	}, func(dbc dbctx.Context) error {
		return o.saveIdea(dbc, idea)
	}); err != nil {
		return fail(err)
	}
	logs, err := o.tracker.Logs(ctx, sid)
	if err != nil {
		log.Warn("Failed to load session logs for result", "error", err)
	}
	log.Info("Generation complete", "idea_id", idea.ID, "weighted_score", weighted, "duration_ms", elapsed.Milliseconds())

	return &Result{
		SessionID: sid,
		Idea:      idea,
		Logs:      logs,
		Summary: Summary{
			WeightedScore:      weighted,
			Complexity:         complexity,
			DuplicateCheck:     dup,
			InputTokens:        resp.InputTokens,
			OutputTokens:       resp.OutputTokens,
			DurationMS:         elapsed.Milliseconds(),
			EmbeddingAvailable: len(embedding) > 0,
		},
		Configuration: cfg,
	}, nil
}

func (o *Orchestrator) threshold(p *profile.Profile) float64 {
	if p.DuplicateThreshold > 0 && p.DuplicateThreshold <= 1 {
		return p.DuplicateThreshold
	}
	return o.detector.Threshold()
}

// bestEffortEmbedding embeds the idea when the duplicate check is skipped.
// A failure is logged and the idea is stored without a vector.
func (o *Orchestrator) bestEffortEmbedding(ctx context.Context, sid string, c dedupe.Candidate) []float32 {
	if o.embedder == nil {
		_ = o.tracker.Log(ctx, sid, types.LevelWarning, "No embedding provider configured; idea stored without embedding", nil)
		return nil
	}
	vec, err := o.embedder.Embed(ctx, c.EmbeddingText())
	if err != nil {
		_ = o.tracker.Log(ctx, sid, types.LevelWarning, "Embedding failed; idea stored without embedding", map[string]any{"error": err.Error()})
		return nil
	}
	return vec
}

func (o *Orchestrator) saveIdea(dbc dbctx.Context, idea *ideas.Idea) error {
	if err := o.ideas.Create(dbc, idea); err != nil {
		return apierr.Internal("idea_save_failed", fmt.Errorf("save idea: %w", err))
	}
	snapshot, err := json.Marshal(idea)
	if err != nil {
		return apierr.Internal("idea_save_failed", fmt.Errorf("encode idea snapshot: %w", err))
	}
	if err := o.ideas.AppendHistory(dbc, &ideas.IdeaHistory{
		IdeaID:    idea.ID,
		SessionID: idea.SessionID,
		Event:     ideas.HistoryEventCreated,
		Snapshot:  datatypes.JSON(snapshot),
	}); err != nil {
		return apierr.Internal("idea_save_failed", fmt.Errorf("save idea history: %w", err))
	}
	return nil
}

func buildIdea(sid string, cfg Configuration, p *prompt.Payload, weighted int, c scoring.Complexity, embedding []float32) (*ideas.Idea, error) {
	example, err := json.Marshal(p.Example)
	if err != nil {
		return nil, err
	}
	scores, err := json.Marshal(p.Scores())
	if err != nil {
		return nil, err
	}
	details, err := json.Marshal(p.Criteria)
	if err != nil {
		return nil, err
	}
	meta := map[string]any{
		"provider": cfg.Provider,
		"model":    cfg.Model,
		"trigger":  string(cfg.Trigger),
	}
	if cfg.SlotNumber != nil {
		meta["slot_number"] = *cfg.SlotNumber
	}
	if len(cfg.Samples) > 0 {
		meta["samples"] = cfg.Samples
	}
	for k, v := range p.Metadata {
		if _, taken := meta[k]; !taken {
			meta[k] = v
		}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	var components datatypes.JSON
	if len(p.Components) > 0 {
		raw, err := json.Marshal(p.Components)
		if err != nil {
			return nil, err
		}
		components = datatypes.JSON(raw)
	}
	domain := strings.TrimSpace(p.Domain)
	if domain == "" {
		domain = cfg.Domain
	}
	return &ideas.Idea{
		ID:                   uuid.New(),
		SessionID:            sid,
		ProfileID:            cfg.ProfileID,
		Framework:            cfg.Framework,
		Domain:               domain,
		Problem:              strings.TrimSpace(p.Problem),
		Solution:             strings.TrimSpace(p.Solution),
		Summary:              strings.TrimSpace(p.Summary),
		Example:              datatypes.JSON(example),
		CriteriaScores:       datatypes.JSON(scores),
		CriteriaDetails:      datatypes.JSON(details),
		WeightedScore:        weighted,
		TechnicalComplexity:  c.Technical,
		RegulatoryComplexity: c.Regulatory,
		SalesComplexity:      c.Sales,
		TotalComplexity:      c.Total,
		Embedding:            ideas.Vector(embedding),
		Components:           components,
		Metadata:             datatypes.JSON(metaJSON),
		CreatedAt:            time.Now().UTC(),
	}, nil
}

// providerFailure wraps an LLM error as ExternalService keeping the
// provider's own message.
func providerFailure(provider string, err error) error {
	if pe, ok := llm.AsProviderError(err); ok {
		return apierr.ExternalService("llm_"+string(pe.Kind), err).
			WithDetail("provider", pe.Provider).
			WithDetail("provider_error", string(pe.Kind))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apierr.ExternalService("llm_timeout", fmt.Errorf("%s: request timed out: %w", provider, err)).WithDetail("provider", provider)
	}
	return apierr.ExternalService("llm_request_failed", fmt.Errorf("%s: %w", provider, err)).WithDetail("provider", provider)
}
