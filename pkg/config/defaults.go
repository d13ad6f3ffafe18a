package config

const (
	defaultTrainEmbeddings      = "embeddings/train.json"
	defaultValidationEmbeddings = "embeddings/validation.json"
	defaultDimensions           = 1024
	defaultEmbeddingProvider    = "cohere"

	defaultRetrievalBackend   = "sqlitevec"
	defaultRetrievalTopK      = 3
	defaultRetrievalColl      = "train"
	defaultQdrantPort         = 6334

	defaultResultsPath    = "results/results.jsonl"
	defaultAttemptTimeout = 120
	defaultMaxRetries     = 5

	defaultEventsProvider = "nop"
	defaultKafkaTopic     = "vizbench.results"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values. The models list
// defaults to empty; "vizbench run" refuses to start without at least one.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Dataset: DatasetConfig{
			TrainEmbeddings:      defaultTrainEmbeddings,
			ValidationEmbeddings: defaultValidationEmbeddings,
			Dimensions:           defaultDimensions,
			EmbeddingProvider:    defaultEmbeddingProvider,
		},
		Retrieval: RetrievalConfig{
			Backend:    defaultRetrievalBackend,
			Collection: defaultRetrievalColl,
			TopK:       defaultRetrievalTopK,
			QdrantPort: defaultQdrantPort,
		},
		Evaluation: EvaluationConfig{
			ResultsPath:           defaultResultsPath,
			WithContext:           true,
			WithoutContext:        true,
			AttemptTimeoutSeconds: defaultAttemptTimeout,
			MaxRetries:            defaultMaxRetries,
		},
		Events: EventsConfig{
			Provider:   defaultEventsProvider,
			KafkaTopic: defaultKafkaTopic,
		},
	}
}
