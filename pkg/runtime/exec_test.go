package runtime_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/spicaengine/fnscheduler/pkg/runtime"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ = Describe("ExecRuntime", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	writeScript := func(body string) string {
		path := filepath.Join(dir, "entrypoint.sh")
		Expect(os.WriteFile(path, []byte(body), 0o600)).To(Succeed())
		return path
	}

	It("describes the process with interpreter, env and worker id", func() {
		rt := runtime.NewExecRuntime(
			runtime.WithInterpreter("/bin/sh", "-e"),
			runtime.WithWorkDir(dir),
			runtime.WithEnv(map[string]string{"REGION": "eu"}),
		)

		spec := rt.ProcessSpec(runtime.SpawnOptions{
			ID:             "w1",
			EntrypointPath: "/srv/entry.sh",
			Env:            map[string]string{runtime.EnvEnqueuerAddr: "127.0.0.1:5678"},
		})

		Expect(spec.Args).To(Equal([]string{"/bin/sh", "-e", "/srv/entry.sh"}))
		Expect(spec.Cwd).To(Equal(dir))
		Expect(spec.Env).To(ContainElements(
			"REGION=eu",
			"WORKER_ID=w1",
			"ENQUEUER_ADDR=127.0.0.1:5678",
		))
	})

	It("lets spawn options override runtime env", func() {
		rt := runtime.NewExecRuntime(runtime.WithEnv(map[string]string{"MODE": "a"}))
		spec := rt.ProcessSpec(runtime.SpawnOptions{ID: "w1", EntrypointPath: "x", Env: map[string]string{"MODE": "b"}})
		Expect(spec.Env).To(ContainElement("MODE=b"))
		Expect(spec.Env).NotTo(ContainElement("MODE=a"))
	})

	It("refuses an empty entrypoint", func() {
		_, err := runtime.NewExecRuntime().Spawn(context.Background(), runtime.SpawnOptions{ID: "w1"})
		Expect(err).To(HaveOccurred())
	})

	It("fails without retrying when the interpreter is missing", func() {
		rt := runtime.NewExecRuntime(runtime.WithInterpreter(filepath.Join(dir, "missing")))
		_, err := rt.Spawn(context.Background(), runtime.SpawnOptions{ID: "w1", EntrypointPath: "x"})
		Expect(err).To(MatchError(ContainSubstring("w1")))
	})

	It("streams output to the attached writers and signals exit", func() {
		// Given a script that prints its worker id after a short delay
		script := writeScript("sleep 0.3\necho \"out $WORKER_ID\"\necho err >&2\n")
		rt := runtime.NewExecRuntime(runtime.WithInterpreter("/bin/sh"))

		// When it is spawned with writers attached
		p, err := rt.Spawn(context.Background(), runtime.SpawnOptions{ID: "w7", EntrypointPath: script})
		Expect(err).NotTo(HaveOccurred())
		stdout, stderr := &syncBuffer{}, &syncBuffer{}
		p.Attach(stdout, stderr)

		// Then Exited closes and output reaches the writers
		Eventually(p.Exited(), 5*time.Second).Should(BeClosed())
		Expect(p.ID()).To(Equal("w7"))
		Eventually(stdout.String).Should(ContainSubstring("out w7"))
		Eventually(stderr.String).Should(ContainSubstring("err"))
	})

	It("kills a long-running process", func() {
		script := writeScript("exec sleep 30\n")
		rt := runtime.NewExecRuntime(runtime.WithInterpreter("/bin/sh"))

		p, err := rt.Spawn(context.Background(), runtime.SpawnOptions{ID: "w1", EntrypointPath: script})
		Expect(err).NotTo(HaveOccurred())
		Consistently(p.Exited(), 200*time.Millisecond).ShouldNot(BeClosed())

		Expect(p.Kill()).To(Succeed())
		Eventually(p.Exited(), 5*time.Second).Should(BeClosed())
	})
})
