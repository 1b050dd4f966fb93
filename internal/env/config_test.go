package env_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zapcore"

	"github.com/luma/sockrpc/internal/env"
)

var _ = Describe("env / LoadConfig", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "sockrpc-env")
		Expect(err).To(Succeed())
	})

	AfterEach(func() {
		for _, key := range []string{"SOCKRPC_SOCKET_PATH", "SOCKRPC_RECONNECT_DELAY", "SOCKRPC_DEBUG_HTTP"} {
			os.Unsetenv(key)
		}
		os.RemoveAll(dir)
	})

	writeConfig := func(contents string) string {
		path := filepath.Join(dir, "sockrpc.toml")
		Expect(os.WriteFile(path, []byte(contents), 0600)).To(Succeed())
		return path
	}

	It("uses the defaults without a file or environment", func() {
		config, err := env.LoadConfig(context.Background(), "")
		Expect(err).To(Succeed())
		Expect(*config).To(Equal(env.DefaultConfig()))
		Expect(config.RequireSocketPath()).To(MatchError(env.ErrMissingSocketPath))
	})

	It("reads the TOML file", func() {
		path := writeConfig(`
socketPath = "/run/daemon.sock"
reconnectDelay = "250ms"
logLevel = "debug"
`)

		config, err := env.LoadConfig(context.Background(), path)
		Expect(err).To(Succeed())
		Expect(config.SocketPath).To(Equal("/run/daemon.sock"))
		Expect(config.ReconnectDelay).To(Equal(250 * time.Millisecond))
		Expect(config.LogLevel).To(Equal("debug"))
		Expect(config.LogEncoding).To(Equal(env.DefaultLogEncoding))
		Expect(config.RequireSocketPath()).To(Succeed())
	})

	It("lets the environment override the file", func() {
		path := writeConfig(`socketPath = "/run/daemon.sock"`)

		os.Setenv("SOCKRPC_SOCKET_PATH", "/tmp/other.sock")
		os.Setenv("SOCKRPC_RECONNECT_DELAY", "2s")
		os.Setenv("SOCKRPC_DEBUG_HTTP", "true")

		config, err := env.LoadConfig(context.Background(), path)
		Expect(err).To(Succeed())
		Expect(config.SocketPath).To(Equal("/tmp/other.sock"))
		Expect(config.ReconnectDelay).To(Equal(2 * time.Second))
		Expect(config.DebugHTTP).To(BeTrue())
	})

	It("fails on a missing or invalid file", func() {
		_, err := env.LoadConfig(context.Background(), filepath.Join(dir, "missing.toml"))
		Expect(err).To(HaveOccurred())

		_, err = env.LoadConfig(context.Background(), writeConfig(`socketPath = `))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("env / MakeLogger", func() {
	It("builds loggers for valid levels and encodings", func() {
		log, err := env.MakeLogger("debug", "console")
		Expect(err).To(Succeed())
		Expect(log.Core().Enabled(zapcore.DebugLevel)).To(BeTrue())

		log, err = env.MakeLogger("warn", "json")
		Expect(err).To(Succeed())
		Expect(log.Core().Enabled(zapcore.InfoLevel)).To(BeFalse())
	})

	It("rejects unknown levels and encodings", func() {
		_, err := env.MakeLogger("loud", "json")
		Expect(err).To(HaveOccurred())

		_, err = env.MakeLogger("info", "xml")
		Expect(err).To(HaveOccurred())
	})
})
