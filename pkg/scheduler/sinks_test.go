package scheduler_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spicaengine/fnscheduler/pkg/scheduler"
)

var _ = Describe("LoggerSinks", func() {
	var (
		logs  *observer.ObservedLogs
		sinks *scheduler.LoggerSinks
	)

	BeforeEach(func() {
		var core zapcore.Core
		core, logs = observer.New(zapcore.DebugLevel)
		sinks = scheduler.NewLoggerSinks(zap.New(core))
	})

	It("should log complete lines tagged with the execution", func() {
		out := sinks.Open("ev-1", "fn-a")

		_, err := out.Stdout.Write([]byte("hello\nworld\n"))
		Expect(err).NotTo(HaveOccurred())
		_, err = out.Stderr.Write([]byte("boom\n"))
		Expect(err).NotTo(HaveOccurred())

		Expect(logs.FilterMessage("hello").Len()).To(Equal(1))
		Expect(logs.FilterMessage("world").Len()).To(Equal(1))
		entry := logs.FilterMessage("boom").All()[0]
		Expect(entry.Level).To(Equal(zapcore.ErrorLevel))
		Expect(entry.ContextMap()).To(HaveKeyWithValue("event_id", "ev-1"))
		Expect(entry.ContextMap()).To(HaveKeyWithValue("function_id", "fn-a"))
	})

	It("should hold a partial line until flushed", func() {
		out := sinks.Open("ev-1", "fn-a")

		_, err := out.Stdout.Write([]byte("no newline"))
		Expect(err).NotTo(HaveOccurred())
		Expect(logs.Len()).To(BeZero())

		out.Flush()
		Expect(logs.FilterMessage("no newline").Len()).To(Equal(1))

		// flushing again emits nothing new
		out.Flush()
		Expect(logs.Len()).To(Equal(1))
	})

	It("should write diagnostics at info level", func() {
		sinks.Diagnose("ev-1", "fn-a", "Function (handler.a) did timeout after 5 seconds.")

		entry := logs.All()[0]
		Expect(entry.Level).To(Equal(zapcore.InfoLevel))
		Expect(entry.Message).To(Equal("Function (handler.a) did timeout after 5 seconds."))
	})
})

var _ = Describe("StdSinks", func() {
	It("should pass output through and write diagnostics to stderr", func() {
		var stdout, stderr bytes.Buffer
		sinks := &scheduler.StdSinks{Stdout: &stdout, Stderr: &stderr}

		out := sinks.Open("ev-1", "fn-a")
		_, _ = out.Stdout.Write([]byte("hi"))
		out.Flush()
		sinks.Diagnose("ev-1", "fn-a", "Function (handler.a) did timeout after 5 seconds.")

		Expect(stdout.String()).To(Equal("hi"))
		Expect(stderr.String()).To(ContainSubstring("Function (handler.a) did timeout after 5 seconds."))
	})
})
