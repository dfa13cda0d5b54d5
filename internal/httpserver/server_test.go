package httpserver_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/upstream-selector/internal/httpserver"
)

var _ = Describe("HTTP Server", func() {
	var log *slog.Logger

	noop := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(GinkgoWriter, nil))
	})

	Context("server creation", func() {
		DescribeTable("accepts valid addresses",
			func(addr string) {
				srv, err := httpserver.New(httpserver.Config{Address: addr}, noop, log)
				Expect(err).NotTo(HaveOccurred())
				Expect(srv).NotTo(BeNil())
			},
			Entry("host name", "localhost:9999"),
			Entry("IP address", "127.0.0.1:9999"),
			Entry("port only", ":9999"),
			Entry("ephemeral port", ":0"),
		)

		DescribeTable("rejects invalid addresses",
			func(addr string) {
				srv, err := httpserver.New(httpserver.Config{Address: addr}, noop, log)
				Expect(err).To(HaveOccurred())
				Expect(srv).To(BeNil())
			},
			Entry("empty", ""),
			Entry("too many colons", "invalid:host:port"),
			Entry("missing port", "localhost:"),
			Entry("named port", "localhost:http"),
			Entry("bad host", "bad_host!:8080"),
		)

		It("rejects negative timeouts", func() {
			_, err := httpserver.New(httpserver.Config{Address: ":0", ReadTimeout: -time.Second}, noop, log)
			Expect(err).To(MatchError(ContainSubstring("ReadTimeout")))
		})
	})

	Context("server lifecycle", func() {
		var testServer *httpserver.Server

		AfterEach(func() {
			if testServer != nil {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = testServer.Shutdown(ctx)
			}
		})

		It("starts and handles requests", func() {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("test"))
			})
			var err error
			testServer, err = httpserver.New(httpserver.Config{Address: "127.0.0.1:0"}, handler, log)
			Expect(err).NotTo(HaveOccurred())

			addr, err := testServer.Listen()
			Expect(err).NotTo(HaveOccurred())

			go func() {
				defer GinkgoRecover()
				Expect(testServer.Start()).To(Succeed())
			}()

			resp, err := http.Get("http://" + addr.String())
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal("test"))
		})

		It("shuts down gracefully", func() {
			var err error
			testServer, err = httpserver.New(httpserver.Config{Address: "127.0.0.1:0"}, noop, log)
			Expect(err).NotTo(HaveOccurred())

			done := make(chan error, 1)
			go func() {
				done <- testServer.Start()
			}()
			Eventually(func() error {
				_, err := testServer.Listen()
				return err
			}).Should(Succeed())

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			Expect(testServer.Shutdown(ctx)).To(Succeed())
			Eventually(done).Should(Receive(BeNil()))
		})
	})
})
