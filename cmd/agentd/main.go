// Command agentd runs a single analytics-agent conversation end to end:
// given a natural-language question on the command line (or a default demo
// prompt), it wires up the catalog, artifact store, tool executors, and
// runtime loop, then streams the resulting events to stdout until the
// conversation reaches a terminating tool or a final message.
//
// # Configuration
//
// Environment variables:
//
//	LLM_PROVIDER            - "anthropic" or "openai" (default: "anthropic")
//	ANTHROPIC_API_KEY       - required when LLM_PROVIDER=anthropic
//	OPENAI_API_KEY          - required when LLM_PROVIDER=openai
//	LLM_MODEL               - default completion model id
//	LLM_SMALL_MODEL         - model id used for cheap internal calls (plan
//	                          decomposition, relevance filtering)
//	LLM_MAX_TOKENS          - max tokens per completion (default: 4096)
//	LLM_TEMPERATURE         - sampling temperature (default: 0.2)
//	MONGO_URI               - MongoDB connection string (default: "mongodb://localhost:27017")
//	MONGO_DATABASE          - database name (default: "analyst_agent")
//	MONGO_CONNECT_TIMEOUT   - mongo connect timeout (default: "10s")
//	REDIS_URL               - Redis address for the shared rate-limit budget (optional)
//	REDIS_PASSWORD          - Redis password (optional)
//	RATE_LIMIT_INITIAL_TPM  - initial tokens-per-minute budget (default: 60000)
//	RATE_LIMIT_MAX_TPM      - max tokens-per-minute budget (default: 240000)
//	ORGANIZATION_ID         - caller's organization id (default: a fixed demo UUID)
//	USER_ID                 - caller's user id (default: a fixed demo UUID)
//	DATA_SOURCE_ID          - warehouse connection id surfaced to tools (optional)
//	DATA_SOURCE_SYNTAX      - SQL dialect for create/update metrics (default: "generic")
//	CONVERSATION_LOG_DRIVER - "mongo" or "inmem" (default: "inmem")
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	openaisdk "github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dataplane-ai/analyst-agent/internal/agent"
	"github.com/dataplane-ai/analyst-agent/internal/artifact/mongostore"
	"github.com/dataplane-ai/analyst-agent/internal/catalog"
	"github.com/dataplane-ai/analyst-agent/internal/catalog/mongosource"
	"github.com/dataplane-ai/analyst-agent/internal/catalog/naiverank"
	"github.com/dataplane-ai/analyst-agent/internal/concurrency"
	"github.com/dataplane-ai/analyst-agent/internal/llm"
	"github.com/dataplane-ai/analyst-agent/internal/llm/anthropic"
	"github.com/dataplane-ai/analyst-agent/internal/llm/openai"
	"github.com/dataplane-ai/analyst-agent/internal/llm/ratelimit"
	"github.com/dataplane-ai/analyst-agent/internal/mode"
	"github.com/dataplane-ai/analyst-agent/internal/runlog"
	"github.com/dataplane-ai/analyst-agent/internal/runlog/inmem"
	runlogmongo "github.com/dataplane-ai/analyst-agent/internal/runlog/mongo"
	runlogmongoclient "github.com/dataplane-ai/analyst-agent/internal/runlog/mongo/clients/mongo"
	"github.com/dataplane-ai/analyst-agent/internal/stream"
	"github.com/dataplane-ai/analyst-agent/internal/telemetry/clue"
	"github.com/dataplane-ai/analyst-agent/internal/tools"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx := context.Background()

	question := "What were our top 5 customers by revenue last quarter?"
	if len(os.Args) > 1 {
		question = strings.Join(os.Args[1:], " ")
	}

	mongoURI := envOr("MONGO_URI", "mongodb://localhost:27017")
	mongoDatabase := envOr("MONGO_DATABASE", "analyst_agent")
	mongoConnectTimeout := envDurationOr("MONGO_CONNECT_TIMEOUT", 10*time.Second)

	mongoClient, err := mongo.Connect(options.Client().ApplyURI(mongoURI).SetConnectTimeout(mongoConnectTimeout))
	if err != nil {
		return fmt.Errorf("connect to mongo: %w", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(ctx); err != nil {
			log.Printf("disconnect mongo: %v", err)
		}
	}()

	artifactStore, err := mongostore.New(ctx, mongostore.Options{
		Client:   mongoClient,
		Database: mongoDatabase,
	})
	if err != nil {
		return fmt.Errorf("create artifact store: %w", err)
	}

	runLog, err := buildRunLog(mongoClient, mongoDatabase)
	if err != nil {
		return fmt.Errorf("create run log store: %w", err)
	}

	llmClient, err := buildLLMClient(ctx)
	if err != nil {
		return fmt.Errorf("create llm client: %w", err)
	}

	datasetSource, err := mongosource.New(mongosource.Options{
		Client:   mongoClient,
		Database: mongoDatabase,
	})
	if err != nil {
		return fmt.Errorf("create dataset source: %w", err)
	}
	reranker := naiverank.New()
	relevanceFilter := catalog.NewRelevanceFilter(llmClient)

	modes, err := mode.NewRegistry(mode.DefaultPromptSources())
	if err != nil {
		return fmt.Errorf("build mode registry: %w", err)
	}

	streamReg := stream.NewRegistry()
	streamReg.Register(tools.NameCreateMetrics, stream.MetricProcessor{})
	streamReg.Register(tools.NameUpdateMetrics, stream.MetricProcessor{})
	streamReg.Register(tools.NameCreateDashboards, stream.DashboardProcessor{})
	streamReg.Register(tools.NameUpdateDashboards, stream.DashboardProcessor{})
	streamReg.Register(tools.NameCreatePlanStraightforward, stream.TextProcessor{Field: "plan"})
	streamReg.Register(tools.NameCreatePlanInvestigative, stream.TextProcessor{Field: "plan"})
	streamReg.Register(tools.NameMessageUserClarifyingQuestion, stream.TextProcessor{Field: "question"})

	pool := concurrency.NewPool(envIntOr("MAX_IN_FLIGHT_TOOLS", concurrency.DefaultMaxInFlight))

	agentTools := []tools.Executor{
		tools.SearchDataCatalog{Source: datasetSource, Reranker: reranker, Filter: relevanceFilter},
		tools.PlanTool{ToolName: tools.NameCreatePlanStraightforward, Client: llmClient},
		tools.PlanTool{ToolName: tools.NameCreatePlanInvestigative, Client: llmClient},
		tools.CreateMetrics{Store: artifactStore, Pool: pool},
		tools.UpdateMetrics{Store: artifactStore, Pool: pool},
		tools.CreateDashboards{Store: artifactStore, Pool: pool},
		tools.UpdateDashboards{Store: artifactStore, Pool: pool},
		tools.Done{},
		tools.MessageUserClarifyingQuestion{},
	}

	orgID := envUUIDOr("ORGANIZATION_ID", uuid.MustParse("00000000-0000-0000-0000-000000000001"))
	userID := envUUIDOr("USER_ID", uuid.MustParse("00000000-0000-0000-0000-000000000002"))

	a, err := agent.New(agent.Options{
		LLM:              llmClient,
		Modes:            modes,
		Tools:            agentTools,
		StreamRegistry:   streamReg,
		RunLog:           runLog,
		Logger:           clue.NewLogger(),
		Metrics:          clue.NewMetrics(),
		Tracer:           clue.NewTracer(),
		OrgID:            orgID,
		UserID:           userID,
		DataSourceID:     os.Getenv("DATA_SOURCE_ID"),
		DataSourceSyntax: envOr("DATA_SOURCE_SYNTAX", "generic"),
	})
	if err != nil {
		return fmt.Errorf("construct agent: %w", err)
	}

	events, err := a.Run(ctx, question)
	if err != nil {
		return fmt.Errorf("start conversation: %w", err)
	}

	log.Printf("conversation %s started: %q", a.ConversationID(), question)
	for ev := range events {
		printEvent(ev)
	}
	return nil
}

func printEvent(ev agent.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("event marshal failed: %v", err)
		return
	}
	switch ev.(type) {
	case agent.Done:
		fmt.Printf("[done] %s\n", payload)
	case agent.Error:
		fmt.Printf("[error] %s\n", payload)
	default:
		fmt.Printf("%T %s\n", ev, payload)
	}
}

func buildRunLog(mongoClient *mongo.Client, database string) (runlog.Store, error) {
	driver := envOr("CONVERSATION_LOG_DRIVER", "inmem")
	if driver == "mongo" {
		return runlogmongo.NewStoreFromMongo(runlogmongoclient.Options{
			Client:   mongoClient,
			Database: database,
		})
	}
	return inmem.New(), nil
}

func buildLLMClient(ctx context.Context) (llm.Client, error) {
	provider := strings.ToLower(envOr("LLM_PROVIDER", "anthropic"))
	defaultModel := envOr("LLM_MODEL", defaultModelFor(provider))
	smallModel := envOr("LLM_SMALL_MODEL", defaultModel)
	maxTokens := envIntOr("LLM_MAX_TOKENS", 4096)
	temperature := envFloatOr("LLM_TEMPERATURE", 0.2)

	var base llm.Client
	var err error
	switch provider {
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
		oc := openaisdk.NewClient(openaioption.WithAPIKey(apiKey))
		base, err = openai.New(&oc.Chat.Completions, openai.Options{
			DefaultModel: defaultModel,
			SmallModel:   smallModel,
			MaxTokens:    maxTokens,
			Temperature:  temperature,
		})
	default:
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic")
		}
		ac := anthropicsdk.NewClient(anthropicoption.WithAPIKey(apiKey))
		base, err = anthropic.New(&ac.Messages, anthropic.Options{
			DefaultModel: defaultModel,
			SmallModel:   smallModel,
			MaxTokens:    maxTokens,
			Temperature:  temperature,
		})
	}
	if err != nil {
		return nil, err
	}

	rdb, key := buildRedis()
	initialTPM := envFloatOr("RATE_LIMIT_INITIAL_TPM", 60000)
	maxTPM := envFloatOr("RATE_LIMIT_MAX_TPM", 240000)
	limiter := ratelimit.New(ctx, rdb, key, initialTPM, maxTPM)
	return limiter.Wrap(base), nil
}

func defaultModelFor(provider string) string {
	if provider == "openai" {
		return "gpt-4o"
	}
	return "claude-sonnet-4-5"
}

func buildRedis() (*redis.Client, string) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		return nil, ""
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     url,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	return rdb, "agentd:llm-budget"
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOr(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envFloatOr(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDurationOr(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envUUIDOr(key string, defaultVal uuid.UUID) uuid.UUID {
	if v := os.Getenv(key); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			return id
		}
	}
	return defaultVal
}
