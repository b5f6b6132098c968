package config_test

import (
	"os"
	"path/filepath"
	"time"

	"github.com/alexmihai1804/autowatering/internal/config"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("when the file overrides every field", func() {
			BeforeEach(func() {
				valid := `
logging:
  level: "debug"
  format: "json"
database:
  mount_point: "/mnt/db"
kv:
  driver: "postgres"
  dsn: "postgres://localhost/autowatering"
cache:
  driver: "redis"
  addr: "localhost:6379"
  ttl: 10m
timing:
  flow_timeout: 45s
  debounce_interval: 300ms
  consecutive_faults_n: 5
debug:
  enabled: true
  addr: ":9090"
`
				Expect(os.WriteFile(configFile, []byte(valid), 0644)).To(Succeed())
			})

			It("loads every field", func() {
				cfg, err := config.Load(configFile)
				Expect(err).NotTo(HaveOccurred())

				Expect(cfg.Logging.Level).To(Equal("debug"))
				Expect(cfg.KV.Driver).To(Equal("postgres"))
				Expect(cfg.KV.DSN).To(Equal("postgres://localhost/autowatering"))
				Expect(cfg.Cache.TTL).To(Equal(10 * time.Minute))
				Expect(cfg.Timing.FlowTimeout).To(Equal(45 * time.Second))
				Expect(cfg.Timing.ConsecutiveFaultsN).To(Equal(5))
				Expect(cfg.Debug.Enabled).To(BeTrue())
			})
		})

		Context("when the file only overrides one field", func() {
			BeforeEach(func() {
				Expect(os.WriteFile(configFile, []byte("logging:\n  level: \"debug\"\n  format: \"text\"\n"), 0644)).To(Succeed())
			})

			It("keeps on-device defaults for everything else", func() {
				cfg, err := config.Load(configFile)
				Expect(err).NotTo(HaveOccurred())

				Expect(cfg.Logging.Level).To(Equal("debug"))
				Expect(cfg.KV.Driver).To(Equal("file"))
				Expect(cfg.Timing.FlowTimeout).To(Equal(30 * time.Second))
			})
		})

		Context("when the file fails validation", func() {
			BeforeEach(func() {
				Expect(os.WriteFile(configFile, []byte("logging:\n  level: \"verbose\"\n  format: \"text\"\n"), 0644)).To(Succeed())
			})

			It("returns an error", func() {
				_, err := config.Load(configFile)
				Expect(err).To(HaveOccurred())
			})
		})

		Context("when the file does not exist", func() {
			It("returns an error", func() {
				_, err := config.Load(filepath.Join(tempDir, "missing.yaml"))
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Default", func() {
		It("returns the on-device defaults", func() {
			cfg := config.Default()
			Expect(cfg.KV.Driver).To(Equal("file"))
			Expect(cfg.Cache.Driver).To(Equal("memory"))
			Expect(cfg.Debug.Enabled).To(BeFalse())
		})
	})
})
