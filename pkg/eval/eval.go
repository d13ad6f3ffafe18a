// Package eval drives the evaluation run: every validation sample is
// dispatched to every configured model in every enabled mode, with results
// appended to a JSONL store as they arrive. Reruns skip keys already
// recorded, so an interrupted run resumes where it left off.
package eval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sightlinelabs/vizbench/pkg/dataset"
	"github.com/sightlinelabs/vizbench/pkg/eventstream"
	"github.com/sightlinelabs/vizbench/pkg/llm"
	"github.com/sightlinelabs/vizbench/pkg/llm/provider"
	"github.com/sightlinelabs/vizbench/pkg/prompt"
	"github.com/sightlinelabs/vizbench/pkg/results"
	"github.com/sightlinelabs/vizbench/pkg/utils"
	"github.com/sightlinelabs/vizbench/pkg/vector"
)

// Options carries the run-level knobs that are fixed for the lifetime of a
// Runner.
type Options struct {
	// TopK is how many similar training samples to retrieve per dispatch.
	TopK int

	// WithContext / WithoutContext toggle the two evaluation modes. At
	// least one must be enabled.
	WithContext    bool
	WithoutContext bool

	// EmbeddingProvider labels every record with the service that produced
	// the embeddings; it is informational only.
	EmbeddingProvider string

	// Template overrides the prompt wording. The zero value falls back to
	// the default template.
	Template prompt.Template

	// ProviderKinds maps model names to their provider kind ("openai",
	// "anthropic", ...) for event attribution. Optional.
	ProviderKinds map[string]string

	// RunID tags published events so downstream consumers can group one
	// run's records. Generated when empty.
	RunID string
}

// Runner executes samples x models x modes against a results store.
type Runner struct {
	store      *results.Store
	collection vector.Collection
	providers  []provider.Provider
	publisher  eventstream.Publisher
	opts       Options
	logger     *zap.Logger
}

func NewRunner(store *results.Store, collection vector.Collection, providers []provider.Provider, publisher eventstream.Publisher, opts Options, logger *zap.Logger) (*Runner, error) {
	if store == nil {
		return nil, fmt.Errorf("results store is required")
	}
	if collection == nil {
		return nil, fmt.Errorf("vector collection is required")
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	if !opts.WithContext && !opts.WithoutContext {
		return nil, fmt.Errorf("at least one evaluation mode must be enabled")
	}
	if opts.TopK < 1 {
		return nil, fmt.Errorf("top_k must be at least 1, got %d", opts.TopK)
	}
	if publisher == nil {
		return nil, fmt.Errorf("event publisher is required")
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		store:      store,
		collection: collection,
		providers:  providers,
		publisher:  publisher,
		opts:       opts,
		logger:     logger,
	}, nil
}

// Run evaluates every sample against every provider. Models proceed in
// parallel; within a model the rate limiter alone throttles admission, so
// in-flight requests overlap. The returned error is non-nil only when a
// worker could not persist a record or the context was canceled before all
// keys were scheduled; per-dispatch failures are recorded and do not stop
// the run.
func (r *Runner) Run(ctx context.Context, samples []dataset.Sample) error {
	r.logger.Info("starting evaluation run",
		zap.String("run_id", r.opts.RunID),
		zap.Int("samples", len(samples)),
		zap.Int("models", len(r.providers)),
		zap.Bool("with_context", r.opts.WithContext),
		zap.Bool("without_context", r.opts.WithoutContext))

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range r.providers {
		p := p
		g.Go(func() error {
			return r.runModel(ctx, p, samples)
		})
	}
	return g.Wait()
}

func (r *Runner) modes() []bool {
	var modes []bool
	if r.opts.WithContext {
		modes = append(modes, true)
	}
	if r.opts.WithoutContext {
		modes = append(modes, false)
	}
	return modes
}

// runModel walks the sample x mode grid for one provider. Each key is
// dispatched in its own goroutine; cancellation stops scheduling new keys
// while dispatches already started run to completion on a detached context.
func (r *Runner) runModel(ctx context.Context, p provider.Provider, samples []dataset.Sample) error {
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		persistErr error
		skipped    int
		scheduled  int
	)

	// Detached so in-flight work survives cancellation of the run context.
	callCtx := context.WithoutCancel(ctx)

schedule:
	for _, sample := range samples {
		for _, withContext := range r.modes() {
			if ctx.Err() != nil {
				break schedule
			}

			key := results.Key{ValidationID: sample.ID, ModelName: p.Name(), WithContext: withContext}
			if r.store.Contains(key) {
				skipped++
				continue
			}

			scheduled++
			wg.Add(1)
			go func(sample dataset.Sample, withContext bool) {
				defer wg.Done()
				rec := r.dispatch(callCtx, p, sample, withContext)
				if err := r.persist(callCtx, rec); err != nil {
					mu.Lock()
					if persistErr == nil {
						persistErr = err
					}
					mu.Unlock()
				}
			}(sample, withContext)
		}
	}
	wg.Wait()

	r.logger.Info("model evaluation finished",
		zap.String("model", p.Name()),
		zap.Int("scheduled", scheduled),
		zap.Int("skipped", skipped))

	if persistErr != nil {
		return fmt.Errorf("persisting results for %s: %w", p.Name(), persistErr)
	}
	return ctx.Err()
}

// dispatch retrieves context when the mode calls for it, assembles the
// prompt, and runs one generation. It always returns a record; failures are
// captured in the record's error field. The processing time covers the whole
// dispatch, retries and backoff included.
func (r *Runner) dispatch(ctx context.Context, p provider.Provider, sample dataset.Sample, withContext bool) results.EvaluationRecord {
	start := time.Now()
	rec := results.EvaluationRecord{
		ValidationID:      sample.ID,
		ModelName:         p.Name(),
		WithContext:       withContext,
		EmbeddingProvider: r.opts.EmbeddingProvider,
		TopKSimilar:       r.opts.TopK,
		ImageURL:          sample.Metadata.ImageURL,
		RealQuestion:      sample.Metadata.Question,
		CrowdMajority:     sample.Metadata.CrowdMajority,
		Timestamp:         time.Now().UTC(),
	}

	var neighbors []vector.Result
	if withContext {
		var err error
		neighbors, err = r.collection.Search(ctx, sample.Embedding, r.opts.TopK, vector.ExcludeID(sample.ID))
		if err != nil {
			rec.Error = fmt.Sprintf("retrieving similar images: %v", err)
			rec.ProcessingTimeSeconds = time.Since(start).Seconds()
			r.logger.Warn("retrieval failed",
				zap.String("validation_id", sample.ID),
				zap.String("model", p.Name()),
				zap.Error(err))
			return rec
		}
	}
	rec.SimilarImages = neighbors
	rec.PromptUsed = prompt.Assemble(sample, neighbors, withContext, r.opts.Template)

	mode := "without_context"
	if withContext {
		mode = "with_context"
	}
	req := llm.Request{
		Prompt:       rec.PromptUsed,
		ImageURLs:    []string{sample.Metadata.ImageURL},
		SystemPrompt: prompt.SystemPrompt(r.opts.Template),
		Mode:         mode,
	}

	resp, err := p.Generate(ctx, llm.NewConversation(), req)
	rec.ProcessingTimeSeconds = time.Since(start).Seconds()
	if err != nil {
		rec.Error = fmt.Sprintf("generating response: %v", err)
		r.logger.Warn("generation failed",
			zap.String("validation_id", sample.ID),
			zap.String("model", p.Name()),
			zap.String("mode", mode),
			zap.Error(err))
		return rec
	}

	rec.LLMResponse = resp.Text
	r.logger.Debug("model responded",
		zap.String("validation_id", sample.ID),
		zap.String("model", p.Name()),
		zap.String("preview", utils.Truncate(resp.Text, 80)))
	return rec
}

// persist appends the record and publishes it. Publish failures are logged
// and swallowed; a record on disk but not on the stream is acceptable, the
// reverse is not.
func (r *Runner) persist(ctx context.Context, rec results.EvaluationRecord) error {
	if err := r.store.Append(rec); err != nil {
		return err
	}

	event := &eventstream.RecordPersistedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeRecordPersisted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source: eventstream.EventSource{
			RunID:     r.opts.RunID,
			ModelName: rec.ModelName,
			Provider:  r.opts.ProviderKinds[rec.ModelName],
		},
		Record: rec,
	}
	if err := r.publisher.PublishRecord(ctx, event); err != nil {
		r.logger.Warn("publishing record event failed",
			zap.String("validation_id", rec.ValidationID),
			zap.String("model", rec.ModelName),
			zap.Error(err))
	}
	return nil
}
