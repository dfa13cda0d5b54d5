package config_test

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/upstream-selector/config"
	"github.com/angeloszaimis/upstream-selector/internal/scoring"
)

const validConfig = `
server:
  address: ":8080"
  environment: "dev"

selector:
  scorer: "least-conn"
  closing_timeout: "10s"
  failure_status: 502

metrics:
  buffer_size: 50

backends:
  - url: "http://localhost:8081"
    weight: 3
  - url: "http://localhost:8082"

logging:
  level: "debug"
`

var _ = Describe("Config", func() {
	var tempDir string

	writeConfig := func(content string) {
		err := os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte(content), 0o644)
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
	})

	Describe("Load", func() {
		Context("with valid config file", func() {
			BeforeEach(func() {
				writeConfig(validConfig)
			})

			It("should load configuration successfully", func() {
				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Address).To(Equal(":8080"))
				Expect(cfg.Logging.Level).To(Equal(config.LogLevelDebug))
			})

			It("should parse the selector section", func() {
				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Selector.Scorer).To(Equal("least-conn"))
				Expect(cfg.Selector.ClosingTimeoutDuration()).To(Equal(10 * time.Second))
				Expect(cfg.Selector.FailureStatus).To(Equal(http.StatusBadGateway))
			})

			It("should parse backends and metrics", func() {
				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Backends).To(HaveLen(2))
				Expect(cfg.Backends[0].Weight).To(Equal(3))
				Expect(cfg.Backends[1].URL).To(Equal("http://localhost:8082"))
				Expect(cfg.Backends[1].Weight).To(BeZero())
				Expect(cfg.Metrics.BufferSize).To(Equal(50))
			})

			It("should let environment variables override the file", func() {
				GinkgoT().Setenv("SELECTOR_SCORER", "random")
				GinkgoT().Setenv("SELECTOR_CLOSING_TIMEOUT", "1m")

				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Selector.Scorer).To(Equal("random"))
				Expect(cfg.Selector.ClosingTimeoutDuration()).To(Equal(time.Minute))
			})
		})

		Context("with only backends configured", func() {
			BeforeEach(func() {
				writeConfig("backends:\n  - url: \"http://localhost:8081\"\n")
			})

			It("should use defaults", func() {
				cfg, err := config.Load(tempDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Environment).To(Equal(config.EnvDev))
				Expect(cfg.Server.ShutdownTimeoutDuration()).To(Equal(5 * time.Second))
				Expect(cfg.Selector.Scorer).To(Equal("round-robin"))
				Expect(cfg.Selector.ClosingTimeoutDuration()).To(Equal(30 * time.Second))
				Expect(cfg.Selector.FailureStatus).To(Equal(http.StatusInternalServerError))
				Expect(cfg.Metrics.BufferSize).To(Equal(1000))
				Expect(cfg.Logging.Level).To(Equal(config.LogLevelInfo))
			})
		})

		Context("without a config file", func() {
			It("should fail because no backends are configured", func() {
				_, err := config.Load(tempDir)
				Expect(err).To(MatchError(ContainSubstring("Backends")))
			})
		})
	})

	Describe("Validate", func() {
		var cfg config.Config

		BeforeEach(func() {
			cfg = config.Config{
				Server:   config.ServerConfig{Address: ":8080", Environment: config.EnvProd, ShutdownTimeout: "5s"},
				Selector: config.SelectorConfig{Scorer: "round-robin", ClosingTimeout: "30s", FailureStatus: 500},
				Metrics:  config.MetricsConfig{BufferSize: 10},
				Backends: []config.BackendConfig{{URL: "http://localhost:8081"}},
				Logging:  config.LoggingConfig{Level: config.LogLevelWarn},
			}
		})

		It("should accept a complete configuration", func() {
			Expect(cfg.Validate()).To(Succeed())
		})

		DescribeTable("should accept every registered scorer",
			func(name string) {
				cfg.Selector.Scorer = name
				Expect(cfg.Validate()).To(Succeed())
			},
			Entry("round robin", scoring.RoundRobin),
			Entry("least connections", scoring.LeastConn),
			Entry("least response", scoring.LeastResponse),
			Entry("random", scoring.Random),
			Entry("consistent hash", scoring.ConsistentHash),
			Entry("weighted round robin", scoring.WeightedRoundRobin),
		)

		It("should accept weighted backends", func() {
			cfg.Backends = []config.BackendConfig{
				{URL: "http://localhost:8081", Weight: 5},
				{URL: "http://localhost:8082"},
			}
			Expect(cfg.Validate()).To(Succeed())
		})

		DescribeTable("should reject invalid values",
			func(mutate func(*config.Config), field string) {
				mutate(&cfg)
				Expect(cfg.Validate()).To(MatchError(ContainSubstring(field)))
			},
			Entry("unknown scorer", func(c *config.Config) { c.Selector.Scorer = "fastest" }, "Selector"),
			Entry("bad closing timeout", func(c *config.Config) { c.Selector.ClosingTimeout = "soon" }, "Selector"),
			Entry("negative closing timeout", func(c *config.Config) { c.Selector.ClosingTimeout = "-1s" }, "Selector"),
			Entry("failure status out of range", func(c *config.Config) { c.Selector.FailureStatus = 700 }, "Selector"),
			Entry("unknown environment", func(c *config.Config) { c.Server.Environment = "qa" }, "Server"),
			Entry("bad address", func(c *config.Config) { c.Server.Address = "localhost" }, "Server"),
			Entry("unknown log level", func(c *config.Config) { c.Logging.Level = "trace" }, "Logging"),
			Entry("negative buffer size", func(c *config.Config) { c.Metrics.BufferSize = -1 }, "Metrics"),
			Entry("no backends", func(c *config.Config) { c.Backends = nil }, "Backends"),
			Entry("backend without scheme", func(c *config.Config) { c.Backends[0].URL = "localhost:8081" }, "Backends"),
			Entry("backend with ftp scheme", func(c *config.Config) { c.Backends[0].URL = "ftp://localhost" }, "Backends"),
			Entry("negative backend weight", func(c *config.Config) { c.Backends[0].Weight = -1 }, "Backends"),
		)
	})
})
