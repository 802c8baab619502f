package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Neo4j      Neo4jConfig
	Milvus     MilvusConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	LLM        LLMConfig
	Search     SearchConfig
	QA         QAConfig
	Behavior   BehaviorConfig
	Citation   CitationConfig
	Merge      MergeConfig
	Heuristics HeuristicsConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	Provider       string
	Model          string
	APIKey         string
	Temperature    float32
	MaxTokens      int
	EmbeddingModel string
	EmbeddingDim   int
}

type SearchConfig struct {
	MaxResults        int
	ScoreThreshold    float64
	BackendTimeoutSec int
	OverallTimeoutSec int
	PubMedBaseURL     string
	PubMedAPIKey      string
	WebProxyEnabled   bool
	WebProxyAPIKey    string
}

type QAConfig struct {
	TopKEvidence           int
	AutoIntegrateThreshold float64
	ConflictPolicy         string
	ConflictPenalty        float64
	LatencyEMAAlpha        float64
	AnswerCacheTTLMin      int
}

type BehaviorConfig struct {
	RetentionHours       int
	MinSupport           int
	MiningIntervalSec    int
	PatternCacheTTLMin   int
	PrefetchIntervalSec  int
	MaxInteractionsPerCh int
}

type CitationConfig struct {
	RelevanceThreshold float64
	SuggestionCutoff   float64
	MaxSuggestions     int
	RecentCitationMin  int
}

type MergeConfig struct {
	DefaultStrategy    string
	AutoApplyThreshold float64
	ConflictPolicy     string
}

// HeuristicsConfig carries the tunable pattern-matching data the engines
// run on. Everything here has a default but can be overridden from the
// config file so the lists can grow without code changes.
type HeuristicsConfig struct {
	GoldStandardKeywords []string
	HighKeywords         []string
	ModerateKeywords     []string
	LowKeywords          []string
	OpposingPairs        []string
	DomainConcepts       []string
	UrgencyKeywords      []string
	RequiredSections     []string
	ExpectedConcepts     map[string][]string
	SectionProgression   []string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/chapter-agent")

	viper.SetEnvPrefix("CHAPTER_AGENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("neo4j.uri", "bolt://localhost:7687")
	viper.SetDefault("neo4j.username", "neo4j")
	viper.SetDefault("neo4j.password", "password")
	viper.SetDefault("neo4j.database", "neo4j")

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "chapter_chunks")
	viper.SetDefault("milvus.vectorDim", 1536)

	viper.SetDefault("sqlite.path", "./data/chapters.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-large")
	viper.SetDefault("llm.embeddingDim", 1536)

	viper.SetDefault("search.maxResults", 20)
	viper.SetDefault("search.scoreThreshold", 0.5)
	viper.SetDefault("search.backendTimeoutSec", 4)
	viper.SetDefault("search.overallTimeoutSec", 10)
	viper.SetDefault("search.pubmedBaseURL", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	viper.SetDefault("search.webProxyEnabled", true)

	viper.SetDefault("qa.topKEvidence", 5)
	viper.SetDefault("qa.autoIntegrateThreshold", 0.75)
	viper.SetDefault("qa.conflictPolicy", "prefer_quality")
	viper.SetDefault("qa.conflictPenalty", 0.1)
	viper.SetDefault("qa.latencyEMAAlpha", 0.2)
	viper.SetDefault("qa.answerCacheTTLMin", 30)

	viper.SetDefault("behavior.retentionHours", 72)
	viper.SetDefault("behavior.minSupport", 3)
	viper.SetDefault("behavior.miningIntervalSec", 300)
	viper.SetDefault("behavior.patternCacheTTLMin", 30)
	viper.SetDefault("behavior.prefetchIntervalSec", 300)
	viper.SetDefault("behavior.maxInteractionsPerCh", 5000)

	viper.SetDefault("citation.relevanceThreshold", 0.3)
	viper.SetDefault("citation.suggestionCutoff", 0.5)
	viper.SetDefault("citation.maxSuggestions", 10)
	viper.SetDefault("citation.recentCitationMin", 60)

	viper.SetDefault("merge.defaultStrategy", "balanced")
	viper.SetDefault("merge.autoApplyThreshold", 0.8)
	viper.SetDefault("merge.conflictPolicy", "prefer_quality")

	viper.SetDefault("heuristics.goldStandardKeywords", []string{
		"systematic review", "meta-analysis", "clinical guideline", "cochrane",
	})
	viper.SetDefault("heuristics.highKeywords", []string{
		"randomized controlled trial", "randomised controlled trial", "rct", "double-blind",
	})
	viper.SetDefault("heuristics.moderateKeywords", []string{
		"cohort study", "cohort", "case-control", "prospective study", "retrospective study",
	})
	viper.SetDefault("heuristics.lowKeywords", []string{
		"case report", "case series", "expert opinion", "editorial", "letter",
	})
	viper.SetDefault("heuristics.opposingPairs", []string{
		"effective|ineffective",
		"increases|decreases",
		"indicated|contraindicated",
		"safe|unsafe",
		"recommended|discouraged",
		"improves|worsens",
		"superior|inferior",
		"beneficial|harmful",
	})
	viper.SetDefault("heuristics.domainConcepts", []string{
		"aneurysm", "craniotomy", "glioma", "glioblastoma", "meningioma",
		"hydrocephalus", "shunt", "hemorrhage", "subarachnoid", "subdural",
		"epidural", "laminectomy", "discectomy", "stenosis", "tumor",
		"resection", "embolization", "radiosurgery", "vasospasm", "edema",
		"intracranial pressure", "craniectomy", "stereotactic", "biopsy",
		"seizure", "epilepsy", "stroke", "ischemia", "angiography",
	})
	viper.SetDefault("heuristics.urgencyKeywords", []string{
		"emergency", "immediately", "life-threatening", "urgent", "acute", "stat",
	})
	viper.SetDefault("heuristics.requiredSections", []string{
		"Introduction", "Epidemiology", "Pathophysiology", "Diagnosis",
		"Treatment", "Complications", "Prognosis",
	})
	viper.SetDefault("heuristics.expectedConcepts", map[string][]string{
		"vascular":   {"aneurysm", "subarachnoid", "vasospasm", "embolization", "angiography"},
		"oncology":   {"glioma", "resection", "radiosurgery", "biopsy", "tumor"},
		"spine":      {"laminectomy", "discectomy", "stenosis", "fusion"},
		"functional": {"seizure", "epilepsy", "stereotactic", "stimulation"},
	})
	viper.SetDefault("heuristics.sectionProgression", []string{
		"Introduction", "Epidemiology", "Pathophysiology", "Diagnosis", "Treatment",
	})

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}

// OpposingTermPairs splits the configured "a|b" entries. Malformed entries
// are skipped rather than failing startup.
func (h HeuristicsConfig) OpposingTermPairs() [][2]string {
	pairs := make([][2]string, 0, len(h.OpposingPairs))
	for _, raw := range h.OpposingPairs {
		parts := strings.SplitN(raw, "|", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		pairs = append(pairs, [2]string{strings.ToLower(parts[0]), strings.ToLower(parts[1])})
	}
	return pairs
}
