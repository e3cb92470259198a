package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dealeros/carbot/agent/analytics"
	"github.com/dealeros/carbot/agent/broker"
	"github.com/dealeros/carbot/agent/contract"
	"github.com/dealeros/carbot/agent/inventory"
	"github.com/dealeros/carbot/agent/llm"
	"github.com/dealeros/carbot/agent/manager"
	"github.com/dealeros/carbot/agent/orchestrator"
	"github.com/dealeros/carbot/agent/profile"
	"github.com/dealeros/carbot/agent/prompt"
	"github.com/dealeros/carbot/agent/research"
	"github.com/dealeros/carbot/agent/runner"
	"github.com/dealeros/carbot/agent/stage"
	"github.com/dealeros/carbot/agent/state"
	"github.com/dealeros/carbot/agent/tools"
	configx "github.com/dealeros/carbot/pkg/config"
	logx "github.com/dealeros/carbot/pkg/logger"
	_ "github.com/dealeros/carbot/pkg/logger/autoload"
	openaix "github.com/dealeros/carbot/pkg/openai"
	websearchx "github.com/dealeros/carbot/pkg/websearch"
)

type AppConfig struct {
	InventoryPath    string `envconfig:"INVENTORY_PATH"`
	MetricsAddr      string `envconfig:"METRICS_ADDR"`
	WebSearchEnabled bool   `envconfig:"WEBSEARCH_ENABLED" default:"false"`
	PostgresEnabled  bool   `envconfig:"ANALYTICS_POSTGRES_ENABLED" default:"false"`
	ArchiveEnabled   bool   `envconfig:"ARCHIVE_ENABLED" default:"false"`
}

func main() {
	appCfg := configx.MustNew[AppConfig]("")

	llmCfg := configx.MustNew[llm.Config]("OPENAI")
	if err := llmCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid llm config")
	}

	index := loadInventory(appCfg.InventoryPath)
	sink := buildSink(appCfg)

	profiles := profile.NewStore()
	stages := stage.NewMachine()
	store := state.NewStore()
	prompts := prompt.LoadPromptSet()

	registry := tools.NewRegistry(sink)
	mustRegister := func(role contract.Role, spec contract.ToolSpec, handler tools.HandlerFunc) {
		if err := registry.Register(spec, handler); err != nil {
			log.Fatal().Err(err).Str("tool", spec.Name).Msg("tool registration failed")
		}
		registry.Grant(role, spec.Name)
	}

	spec, handler := tools.NewProfileTool(profiles)
	mustRegister(contract.RoleSales, spec, handler)
	spec, handler = tools.NewStageTool(stages, index)
	mustRegister(contract.RoleSales, spec, handler)
	spec, handler = tools.NewSearchTool(index)
	mustRegister(contract.RoleSales, spec, handler)
	spec, handler = tools.NewVehicleDetailsTool(index)
	mustRegister(contract.RoleSales, spec, handler)
	spec, handler = tools.NewFinalizeSaleTool(index, stages)
	mustRegister(contract.RoleSales, spec, handler)

	policy := manager.NewPolicy(index)
	spec, handler = manager.NewPricingTool(policy)
	mustRegister(contract.RoleManager, spec, handler)
	spec, handler = manager.NewDirectivesTool(policy)
	mustRegister(contract.RoleManager, spec, handler)

	researchSvc := research.NewService(buildWebSearch(appCfg), index)
	spec, handler = research.NewSearchWebTool(researchSvc)
	mustRegister(contract.RoleResearch, spec, handler)

	b := broker.New(profiles)
	for _, role := range []contract.Role{contract.RoleResearch, contract.RoleManager} {
		client, err := openaix.New(llmCfg.OpenAIFor(role))
		if err != nil {
			log.Fatal().Err(err).Str("role", string(role)).Msg("openai client init failed")
		}
		sub := runner.New(client, registry, runner.WithBudget(llmCfg.TurnBudget), runner.WithSink(sink))
		promptText := prompts.Research
		if role == contract.RoleManager {
			promptText = prompts.Manager
		}
		if err := b.Bind(role, sub, promptText); err != nil {
			log.Fatal().Err(err).Str("role", string(role)).Msg("broker bind failed")
		}
	}
	if err := b.RegisterDelegationTools(registry); err != nil {
		log.Fatal().Err(err).Msg("delegation tool registration failed")
	}

	salesClient, err := openaix.New(llmCfg.OpenAIFor(contract.RoleSales))
	if err != nil {
		log.Fatal().Err(err).Msg("openai client init failed")
	}
	sales := runner.New(salesClient, registry, runner.WithBudget(llmCfg.TurnBudget), runner.WithSink(sink))

	opts := []orchestrator.Option{orchestrator.WithSink(sink)}
	if archive := buildArchive(appCfg); archive != nil {
		opts = append(opts, orchestrator.WithArchive(archive))
	}
	orch := orchestrator.New(store, profiles, stages, sales, prompts.Sales, opts...)

	serveMetrics(appCfg.MetricsAddr)
	chatLoop(orch)
}

func loadInventory(path string) *inventory.Index {
	if strings.TrimSpace(path) == "" {
		return inventory.DefaultIndex()
	}
	index, err := inventory.LoadIndex(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("inventory load failed")
	}
	return index
}

func buildSink(appCfg *AppConfig) contract.Sink {
	sinks := []contract.Sink{analytics.NewPrometheusSink(prometheus.DefaultRegisterer)}
	if appCfg.PostgresEnabled {
		pgCfg := configx.MustNew[analytics.PostgresConfig]("ANALYTICS_POSTGRES")
		pg := analytics.NewPostgresSink(*pgCfg)
		if err := pg.Init(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("analytics table init failed")
		}
		sinks = append(sinks, pg)
	}
	return analytics.NewMultiSink(sinks...)
}

func buildWebSearch(appCfg *AppConfig) contract.Research {
	if !appCfg.WebSearchEnabled {
		return nil
	}
	cfg := configx.MustNew[websearchx.Config]("WEBSEARCH")
	return websearchx.MustNew(*cfg)
}

func buildArchive(appCfg *AppConfig) state.Archive {
	if !appCfg.ArchiveEnabled {
		return nil
	}
	cfg := configx.MustNew[state.UpstashRedisConfig]("UPSTASH_REDIS")
	archive, err := state.NewUpstashRedisArchive(*cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("archive init failed")
	}
	return archive
}

func serveMetrics(addr string) {
	if strings.TrimSpace(addr) == "" {
		return
	}
	logger := logx.Component("metrics")
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	logger.Info().Str("addr", addr).Msg("metrics endpoint up")
}

func chatLoop(orch *orchestrator.Orchestrator) {
	logger := logx.Component("chat")
	conversationID := uuid.NewString()
	fmt.Printf("Conversation %s. Type a message, /snapshot for state, /quit to exit.\n", conversationID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			orch.End(conversationID)
			return
		case line == "/snapshot":
			snap, err := orch.Snapshot(conversationID)
			if err != nil {
				fmt.Println("no conversation state yet")
				continue
			}
			payload, _ := json.MarshalIndent(snap, "", "  ")
			fmt.Println(string(payload))
		default:
			reply, err := orch.HandleMessage(context.Background(), conversationID, line)
			if err != nil {
				if errors.Is(err, contract.ErrConversationBusy) {
					fmt.Println("still working on the previous message")
					continue
				}
				logger.Error().Err(err).Msg("turn failed")
				continue
			}
			fmt.Println(reply)
		}
	}
}
