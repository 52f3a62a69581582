package generator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jason-s-yu/aiquiz/internal/apperr"
	"github.com/jason-s-yu/aiquiz/internal/config"
	"github.com/jason-s-yu/aiquiz/internal/models"
	"github.com/jason-s-yu/aiquiz/internal/secret"
	"github.com/jason-s-yu/aiquiz/internal/tracing"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = tracing.Tracer("generator")

const systemPrompt = `You write multiple-choice quiz questions for a trivia game.
Every question must be answerable from general knowledge about the player's keywords.
Each question has exactly one correct answer and between one and five wrong answers.
Wrong answers must be plausible and must not repeat the correct answer.
Do not let the correct answer echo words from the question.
For each question add a short clarification explaining the answer and naming a source.

Reply with a single JSON object and nothing else, in this shape:
{"questions":[{"question":"...","answer":"...","wrong_answers":["...","..."],"clarification":"..."}]}`

// OpenAI generates questions with the chat completions API.
type OpenAI struct {
	client      openai.Client
	keys        secret.Provider
	model       string
	temperature float64
	logger      *logrus.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewOpenAI builds the client. httpClient may be nil. The API key is not read here;
// it is fetched from keys on every call.
func NewOpenAI(cfg config.GeneratorConfig, keys secret.Provider, httpClient *http.Client, logger *logrus.Logger) *OpenAI {
	opts := []option.RequestOption{
		// Retries are left to queue redelivery.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	now := uint64(time.Now().UnixNano())
	return &OpenAI{
		client:      openai.NewClient(opts...),
		keys:        keys,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      logger,
		rng:         rand.New(rand.NewPCG(now, now>>1|1)),
	}
}

// Generate asks for a few more questions than needed, since some are usually discarded.
func (o *OpenAI) Generate(ctx context.Context, req Request) ([]models.Question, error) {
	if req.Count < 1 {
		return nil, fmt.Errorf("question count %d must be positive", req.Count)
	}
	key, err := o.keys.Secret(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "resolve generator api key", err)
	}

	asked := req.Count + spare(req.Count)
	ctx, span := tracer.Start(ctx, "generator.ChatCompletion", trace.WithAttributes(
		attribute.String("llm.model", o.model),
		attribute.Int("llm.questions_asked", asked),
	))
	defer span.End()

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt(req.Keywords, asked)),
		},
		Temperature: openai.Float(o.temperature),
	}, option.WithAPIKey(key))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		return nil, apperr.Wrap(apperr.Unavailable, "chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in completion", ErrMalformedOutput)
	}

	drafts, err := ParseDrafts(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	o.logger.WithFields(logrus.Fields{
		"model":   o.model,
		"asked":   asked,
		"drafted": len(drafts),
	}).Debug("generator reply parsed")

	o.mu.Lock()
	defer o.mu.Unlock()
	return Assemble(drafts, req.Keywords, req.Count, o.rng)
}

func spare(count int) int {
	return max(2, count/3)
}

func userPrompt(keywords []string, count int) string {
	return fmt.Sprintf("Keywords: %s\nWrite %d questions.", strings.Join(keywords, ", "), count)
}
