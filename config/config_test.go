package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/diibridge/config"
)

var _ = Describe("Config", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("should have valid defaults", func() {
		c := config.Default()

		Expect(c.Validate()).To(Succeed())
		Expect(c.MemBase).To(Equal(uint64(0x80000000)))
		Expect(c.ChunkSize).To(Equal(50))
		Expect(time.Duration(c.PollInterval)).To(Equal(100 * time.Microsecond))
		Expect(c.SignExtend).To(BeTrue())
	})

	It("should round-trip through a file", func() {
		path := filepath.Join(dir, "bridge.json")
		c := config.Default()
		c.Port = 6001
		c.PollInterval = config.Duration(time.Millisecond)

		Expect(c.Save(path)).To(Succeed())

		loaded, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(Equal(c))
	})

	It("should keep defaults for fields missing from the file", func() {
		path := filepath.Join(dir, "partial.json")
		Expect(os.WriteFile(path, []byte(`{"port": 7000, "poll_interval": "1ms"}`), 0644)).
			To(Succeed())

		c, err := config.Load(path)

		Expect(err).NotTo(HaveOccurred())
		Expect(c.Port).To(Equal(7000))
		Expect(time.Duration(c.PollInterval)).To(Equal(time.Millisecond))
		Expect(c.ChunkSize).To(Equal(50))
	})

	It("should encode durations as strings", func() {
		data, err := json.Marshal(config.Default())

		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`"poll_interval":"100µs"`))
	})

	It("should fail on a missing file", func() {
		_, err := config.Load(filepath.Join(dir, "missing.json"))
		Expect(err).To(HaveOccurred())
	})

	It("should fail on malformed JSON", func() {
		path := filepath.Join(dir, "bad.json")
		Expect(os.WriteFile(path, []byte(`{"port":`), 0644)).To(Succeed())

		_, err := config.Load(path)
		Expect(err).To(HaveOccurred())
	})

	DescribeTable("validation failures",
		func(mutate func(*config.Config)) {
			c := config.Default()
			mutate(c)

			Expect(c.Validate()).To(MatchError(config.ErrInvalid))
		},
		Entry("negative port", func(c *config.Config) { c.Port = -1 }),
		Entry("zero memory", func(c *config.Config) { c.MemSize = 0 }),
		Entry("unaligned memory", func(c *config.Config) { c.MemSize = 6 }),
		Entry("wrapping window", func(c *config.Config) {
			c.MemBase = 0xFFFFFFFFFFFFFFF0
			c.MemSize = 0x20
		}),
		Entry("no reset edges", func(c *config.Config) { c.ResetEdges = 0 }),
		Entry("zero chunk size", func(c *config.Config) { c.ChunkSize = 0 }),
		Entry("zero poll interval", func(c *config.Config) { c.PollInterval = 0 }),
		Entry("zero clock", func(c *config.Config) { c.ClockFreqMHz = 0 }),
	)

	It("should clone independently", func() {
		c := config.Default()
		clone := c.Clone()
		clone.Port = 1

		Expect(c.Port).To(Equal(5000))
	})

	Describe("ApplyEnv", func() {
		It("should overlay environment variables", func() {
			GinkgoT().Setenv("DIIBRIDGE_PORT", "5123")
			GinkgoT().Setenv("DIIBRIDGE_MEM_BASE", "0x1000")
			GinkgoT().Setenv("DIIBRIDGE_SIGN_EXTEND", "false")
			GinkgoT().Setenv("DIIBRIDGE_POLL_INTERVAL", "2ms")

			c := config.Default()
			Expect(c.ApplyEnv(filepath.Join(dir, "none.env"))).To(Succeed())

			Expect(c.Port).To(Equal(5123))
			Expect(c.MemBase).To(Equal(uint64(0x1000)))
			Expect(c.SignExtend).To(BeFalse())
			Expect(time.Duration(c.PollInterval)).To(Equal(2 * time.Millisecond))
		})

		It("should read variables from an env file", func() {
			path := filepath.Join(dir, "bridge.env")
			Expect(os.WriteFile(path, []byte("DIIBRIDGE_CHUNK_SIZE=7\n"), 0644)).
				To(Succeed())
			DeferCleanup(os.Unsetenv, "DIIBRIDGE_CHUNK_SIZE")

			c := config.Default()
			Expect(c.ApplyEnv(path)).To(Succeed())

			Expect(c.ChunkSize).To(Equal(7))
		})

		It("should reject malformed values", func() {
			GinkgoT().Setenv("DIIBRIDGE_RESET_EDGES", "many")

			c := config.Default()

			Expect(c.ApplyEnv(filepath.Join(dir, "none.env"))).
				To(MatchError(config.ErrInvalid))
		})
	})
})
