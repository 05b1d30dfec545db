// Package rag answers questions over the indexed documents. It embeds the
// question, retrieves the nearest records, builds a prompt with the
// conversation history and asks the generator for the final answer.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/engine/semantic"
	"github.com/WessleyAI/docqa/engine/session"
	"github.com/WessleyAI/docqa/pkg/metrics"
	"github.com/google/uuid"
)

// ErrGenerateTimeout is returned when the generator does not answer within
// Options.GenerateTimeout.
var ErrGenerateTimeout = errors.New("rag: generation timed out")

// Options configures the service. Use DefaultOptions as the base.
type Options struct {
	TopK int
	// ContextChars caps each retrieved text placed in the prompt; 0 keeps
	// it whole.
	ContextChars int
	// HistoryTurns is how many previous turns enter the prompt; negative
	// disables history.
	HistoryTurns    int
	MaxTokens       int
	Temperature     float32
	GenerateTimeout time.Duration
	PreviewChars    int
	SystemPrompt    string
	// CondenseQuestion rewrites a follow-up into a standalone question
	// before retrieval when there is history.
	CondenseQuestion bool
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		TopK:            3,
		ContextChars:    4000,
		HistoryTurns:    10,
		MaxTokens:       1000,
		Temperature:     0.1,
		GenerateTimeout: 60 * time.Second,
		PreviewChars:    250,
		SystemPrompt:    defaultSystemPrompt,
	}
}

const defaultSystemPrompt = `You are a helpful assistant answering questions about the user's documents.
Use only the context below. If the context does not contain the answer, say
that you don't know instead of making one up.`

// Deps holds the collaborators of a Service.
type Deps struct {
	Embedder   domain.Embedder
	Generator  domain.Generator
	Collection semantic.Collection
	Sessions   session.Store
	Metrics    *metrics.Registry
	Logger     *slog.Logger
	// NewSessionID issues ids for requests that carry none.
	NewSessionID func() string
	Now          func() time.Time
}

// Service is the retrieval-answer service.
type Service struct {
	emb      domain.Embedder
	gen      domain.Generator
	coll     semantic.Collection
	sessions session.Store
	opts     Options
	log      *slog.Logger
	newID    func() string
	now      func() time.Time

	questions   *metrics.Counter
	failures    *metrics.Counter
	noContext   *metrics.Counter
	embedTime   *metrics.Histogram
	generateDur *metrics.Histogram
}

// Answer is the result of Ask.
type Answer struct {
	Text      string
	Sources   []domain.SourceRef
	SessionID string
}

func New(d Deps, opts Options) *Service {
	def := DefaultOptions()
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = def.GenerateTimeout
	}
	if opts.PreviewChars <= 0 {
		opts.PreviewChars = def.PreviewChars
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = def.SystemPrompt
	}
	if d.Sessions == nil {
		d.Sessions = session.NewMemStore()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.NewSessionID == nil {
		d.NewSessionID = uuid.NewString
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		emb:         d.Embedder,
		gen:         d.Generator,
		coll:        d.Collection,
		sessions:    d.Sessions,
		opts:        opts,
		log:         d.Logger.With("component", "rag"),
		newID:       d.NewSessionID,
		now:         d.Now,
		questions:   d.Metrics.Counter("docqa_rag_questions_total", "Questions received."),
		failures:    d.Metrics.Counter("docqa_rag_failures_total", "Questions that ended in an error."),
		noContext:   d.Metrics.Counter("docqa_rag_empty_retrievals_total", "Questions answered without any retrieved record."),
		embedTime:   d.Metrics.Histogram("docqa_rag_embed_duration_seconds", "Question embedding latency.", nil),
		generateDur: d.Metrics.Histogram("docqa_generate_duration_seconds", "Generation latency.", nil),
	}
}

// Options returns the effective options.
func (s *Service) Options() Options { return s.opts }

// Ask answers req.Question. An empty question fails with
// domain.ErrEmptyQuestion before any downstream call. The turn is recorded
// in the session only after a successful generation.
func (s *Service) Ask(ctx context.Context, req domain.AskRequest) (*Answer, error) {
	if err := domain.ValidateQuestion(req.Question); err != nil {
		return nil, err
	}
	s.questions.Inc()
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.newID()
	}
	log := s.log.With("session_id", sessionID, "question_len", len(req.Question))

	ans, err := s.ask(ctx, sessionID, req.Question, log)
	if err != nil {
		s.failures.Inc()
		log.Error("rag: ask failed", "error", err)
		return nil, err
	}
	return ans, nil
}

func (s *Service) ask(ctx context.Context, sessionID, question string, log *slog.Logger) (*Answer, error) {
	var history []domain.Turn
	if s.opts.HistoryTurns >= 0 {
		h, err := s.sessions.History(ctx, sessionID, s.opts.HistoryTurns)
		if err != nil {
			return nil, fmt.Errorf("rag: load history: %w", err)
		}
		history = h
	}

	query := question
	if s.opts.CondenseQuestion && len(history) > 0 {
		q, err := s.generate(ctx, condensePrompt(history, question), s.opts.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("rag: condense question: %w", err)
		}
		if q = strings.TrimSpace(q); q != "" {
			query = q
		}
		log.Debug("rag: condensed question", "standalone_len", len(query))
	}

	hits, err := s.retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		s.noContext.Inc()
		log.Warn("rag: no records retrieved")
	}

	prompt := buildPrompt(s.opts.SystemPrompt, hits, history, question, s.opts.ContextChars)
	text, err := s.generate(ctx, prompt, s.opts.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("rag: generate: %w", err)
	}

	turn := domain.Turn{Question: question, Answer: text, At: s.now().UTC()}
	if err := s.sessions.Append(ctx, sessionID, turn); err != nil {
		// The answer is still valid; only the memory of it is lost.
		log.Error("rag: record turn failed", "error", err)
	}

	log.Info("rag: answered", "hits", len(hits), "history", len(history), "answer_len", len(text))
	return &Answer{Text: text, Sources: previews(hits, s.opts.PreviewChars), SessionID: sessionID}, nil
}

func (s *Service) retrieve(ctx context.Context, query string) ([]domain.Hit, error) {
	start := time.Now()
	vec, err := s.emb.Embed(ctx, query)
	s.embedTime.Since(start)
	if err != nil {
		return nil, fmt.Errorf("rag: embed question: %w", err)
	}
	want, err := s.coll.Dimension(ctx)
	if err != nil {
		return nil, fmt.Errorf("rag: collection dimension: %w", err)
	}
	if err := domain.CheckDimension(want, vec); err != nil {
		return nil, fmt.Errorf("rag: question vector: %w", err)
	}
	hits, err := s.coll.Query(ctx, vec, s.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("rag: query collection: %w", err)
	}
	return hits, nil
}

// generate bounds the call by GenerateTimeout. Hitting the deadline yields
// ErrGenerateTimeout; a cancelled parent context passes through.
func (s *Service) generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	gctx, cancel := context.WithTimeout(ctx, s.opts.GenerateTimeout)
	defer cancel()

	start := time.Now()
	text, err := s.gen.Generate(gctx, domain.GenerateRequest{
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: s.opts.Temperature,
	})
	s.generateDur.Since(start)
	if err != nil {
		if ctx.Err() == nil && errors.Is(gctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrGenerateTimeout, s.opts.GenerateTimeout)
		}
		return "", err
	}
	return text, nil
}

// Reset forgets the conversation of sessionID.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	if err := s.sessions.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("rag: reset session: %w", err)
	}
	s.log.Info("rag: session cleared", "session_id", sessionID)
	return nil
}

// previews cites each hit by source with the first n runes of its text.
// The result is never nil.
func previews(hits []domain.Hit, n int) []domain.SourceRef {
	refs := make([]domain.SourceRef, 0, len(hits))
	for _, h := range hits {
		p := domain.Truncate(h.Record.Text, n)
		if len(p) < len(h.Record.Text) {
			p += "..."
		}
		refs = append(refs, domain.SourceRef{Source: h.Record.SourceFile, ContentPreview: p})
	}
	return refs
}
