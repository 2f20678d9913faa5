package bdd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/stretchr/testify/require"
	"github.com/voice-engine-studio/memory-service/internal/cmd/serve"
	"github.com/voice-engine-studio/memory-service/internal/config"
	"github.com/voice-engine-studio/memory-service/internal/testutil/cucumber"

	// Import plugins to trigger init() registration
	_ "github.com/voice-engine-studio/memory-service/internal/plugin/cache/local"
	_ "github.com/voice-engine-studio/memory-service/internal/plugin/complete/openai"
	_ "github.com/voice-engine-studio/memory-service/internal/plugin/embed/disabled"
	_ "github.com/voice-engine-studio/memory-service/internal/plugin/route/system"
	_ "github.com/voice-engine-studio/memory-service/internal/plugin/store/memory"
)

func TestFeatures(t *testing.T) {
	llm := NewMockCompletion(t)

	cfg := config.DefaultConfig()
	cfg.DatastoreType = "memory"
	cfg.EmbedType = "none"
	cfg.CacheType = "local"
	cfg.CompletionType = "openai"
	cfg.OpenAIAPIKey = "test"
	cfg.OpenAIBaseURL = llm.Server.URL + "/v1"
	cfg.IndexerInterval = 20 * time.Millisecond
	cfg.Listener.Port = 0
	cfg.Listener.EnableTLS = false
	ctx := config.WithContext(context.Background(), &cfg)

	srv, err := serve.StartServer(ctx, &cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	apiURL := fmt.Sprintf("http://localhost:%d", srv.Running.Port)

	featureFiles, err := filepath.Glob(filepath.Join("features", "*.feature"))
	require.NoError(t, err)
	require.NotEmpty(t, featureFiles, "No feature files found")

	opts := cucumber.DefaultOptions()
	// The mock completion reply is shared across scenarios.
	opts.Concurrency = 1
	for _, arg := range os.Args[1:] {
		if arg == "-test.v=true" || arg == "-test.v" || arg == "-v" {
			opts.Format = "pretty"
		}
	}

	for _, featurePath := range featureFiles {
		name := strings.TrimSuffix(filepath.Base(featurePath), ".feature")
		t.Run(name, func(t *testing.T) {
			o := opts
			o.TestingT = t
			o.Paths = []string{featurePath}
			defer cucumber.ApplyReportOptions(&o, t.Name())()

			suite := cucumber.NewTestSuite()
			suite.APIURL = apiURL
			suite.TestingT = t
			suite.Extra["llm"] = llm

			status := godog.TestSuite{
				Name:                name,
				Options:             &o,
				ScenarioInitializer: suite.InitializeScenario,
			}.Run()
			if status != 0 {
				t.Fail()
			}
		})
	}
}
