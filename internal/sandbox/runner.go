// Package sandbox implements the Sandbox Runner (spec §4.10): running
// untrusted user code in an ephemeral, isolated containerd container
// with enforced CPU/memory/output/time limits. Grounded on the
// containerd client wiring the corpus uses for container lifecycle
// (pull/create/start/wait/delete), adapted here to a single
// run-to-completion invocation per job instead of a long-lived
// service container.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/rs/zerolog"

	"github.com/collabhub/server/internal/execqueue"
)

const namespace = "collabhub-exec"

// identRe validates any identifier interpolated into a shell-invoked
// command (spec §4.10: prevents shell injection through class or
// file names derived from user input).
var identRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Image maps a supported language to the container image and the
// in-container command used to compile (if needed) and run code fed
// on stdin.
type Image struct {
	Ref     string
	Command []string // argv; code arrives on stdin, never mounted
}

// Limits are the enforced resource caps, defaulted from spec §4.10.
type Limits struct {
	CPUCores    float64
	MemoryBytes int64
	TmpfsBytes  int64
	OutputBytes int64
}

func defaultLimits() Limits {
	return Limits{
		CPUCores:    1,
		MemoryBytes: 256 * 1024 * 1024,
		TmpfsBytes:  10 * 1024 * 1024,
		OutputBytes: 1024 * 1024,
	}
}

// Runner dispatches execution jobs to containerd.
type Runner struct {
	client  *containerd.Client
	images  map[string]Image
	limits  Limits
	log     zerolog.Logger
	enabled bool
}

// Config configures the Runner.
type Config struct {
	SocketPath string
	Images     map[string]Image
	Limits     Limits
}

// New connects to containerd and verifies the configured images are
// present. If the engine is unreachable or an image is missing, it
// returns a Runner with enabled=false: execution endpoints must then
// answer sandbox_unavailable rather than degrading silently (spec
// §4.10 availability signals).
func New(ctx context.Context, cfg Config, log zerolog.Logger) *Runner {
	l := log.With().Str("component", "sandbox").Logger()

	limits := cfg.Limits
	if limits == (Limits{}) {
		limits = defaultLimits()
	}

	r := &Runner{images: cfg.Images, limits: limits, log: l}

	client, err := containerd.New(cfg.SocketPath)
	if err != nil {
		l.Warn().Err(err).Msg("containerd unreachable at startup, sandbox disabled")
		return r
	}

	nsCtx := namespaces.WithNamespace(ctx, namespace)

	for lang, img := range cfg.Images {
		if _, err := client.GetImage(nsCtx, img.Ref); err != nil {
			l.Warn().Err(err).Str("language", lang).Str("image", img.Ref).Msg("required sandbox image missing, sandbox disabled")
			return r
		}
	}

	r.client = client
	r.enabled = true

	return r
}

// Available reports whether the sandbox is usable.
func (r *Runner) Available() bool {
	return r.enabled
}

// Close releases the containerd client connection.
func (r *Runner) Close() error {
	if r.client != nil {
		return r.client.Close()
	}

	return nil
}

// Run executes job in an isolated container and returns its result.
// It satisfies execqueue.Runner.
func (r *Runner) Run(ctx context.Context, job execqueue.Job) execqueue.Result {
	if !r.enabled {
		return execqueue.Result{Status: execqueue.StatusFailed, Reason: "sandbox_unavailable"}
	}

	img, ok := r.images[job.Language]
	if !ok {
		return execqueue.Result{Status: execqueue.StatusFailed, Reason: "unsupported_language"}
	}

	if job.Language == "java" {
		className, err := publicClassName(job.Code)
		if err != nil {
			return execqueue.Result{Status: execqueue.StatusFailed, Reason: "compile_error", Stderr: err.Error()}
		}

		img.Command = substituteClassName(img.Command, className)
	}

	return r.runContainer(ctx, job, img)
}

// publicClassName extracts the public class identifier from Java
// source so the in-container compile/run command can reference the
// right file name, then validates it against identRe before it is
// ever interpolated into argv (spec §4.10: prevents shell injection
// via a user-controlled identifier).
func publicClassName(code []byte) (string, error) {
	match := javaClassRe.FindSubmatch(code)
	if match == nil {
		return "", fmt.Errorf("no public class found")
	}

	name := string(match[1])
	if !identRe.MatchString(name) {
		return "", fmt.Errorf("invalid class name")
	}

	return name, nil
}

var javaClassRe = regexp.MustCompile(`public\s+class\s+([A-Za-z0-9_]+)`)

// substituteClassName replaces the "__CLASSNAME__" placeholder in a
// command template with a pre-validated identifier.
func substituteClassName(command []string, className string) []string {
	out := make([]string, len(command))

	for i, arg := range command {
		if arg == "__CLASSNAME__" {
			out[i] = className
		} else {
			out[i] = arg
		}
	}

	return out
}

func (r *Runner) runContainer(ctx context.Context, job execqueue.Job, img Image) execqueue.Result {
	ctx = namespaces.WithNamespace(ctx, namespace)

	image, err := r.client.GetImage(ctx, img.Ref)
	if err != nil {
		return execqueue.Result{Status: execqueue.StatusFailed, Reason: "image_unavailable"}
	}

	containerID := "exec-" + job.ID

	shares := uint64(r.limits.CPUCores * 1024)
	quota := int64(r.limits.CPUCores * 100000)
	period := uint64(100000)

	tmpfsSize := fmt.Sprintf("size=%d", r.limits.TmpfsBytes)

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithProcessArgs(img.Command...),
		oci.WithCPUShares(shares),
		oci.WithCPUCFS(quota, period),
		oci.WithMemoryLimit(uint64(r.limits.MemoryBytes)),
		oci.WithRootFSReadonly(),
		oci.WithNoNewPrivileges,
		oci.WithUser("65534:65534"), // non-root
		oci.WithMounts([]specs.Mount{
			{
				Destination: "/work",
				Type:        "tmpfs",
				Source:      "tmpfs",
				Options:     []string{"noexec", "nosuid", "nodev", tmpfsSize},
			},
		}),
		// No network SpecOpts is applied: containerd's generated spec
		// namespaces the container into a private network namespace
		// with only loopback unless a CNI plugin wires a veth in, so
		// omitting network configuration here is the isolation.
	}

	container, err := r.client.NewContainer(
		ctx,
		containerID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(containerID+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return execqueue.Result{Status: execqueue.StatusFailed, Reason: "create_error"}
	}

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_ = container.Delete(cleanupCtx, containerd.WithSnapshotCleanup)
	}()

	return r.runTask(ctx, container, job)
}

func (r *Runner) runTask(ctx context.Context, container containerd.Container, job execqueue.Job) execqueue.Result {
	stdin := bytes.NewReader(job.Code)

	var stdout, stderr limitedBuffer
	stdout.limit = r.limits.OutputBytes
	stderr.limit = r.limits.OutputBytes

	task, err := container.NewTask(ctx, cio.NewCreator(cio.WithStreams(stdin, &stdout, &stderr)))
	if err != nil {
		return execqueue.Result{Status: execqueue.StatusFailed, Reason: "task_error"}
	}
	defer task.Delete(ctx) //nolint:errcheck

	exitCh, err := task.Wait(ctx)
	if err != nil {
		return execqueue.Result{Status: execqueue.StatusFailed, Reason: "wait_error"}
	}

	if err := task.Start(ctx); err != nil {
		return execqueue.Result{Status: execqueue.StatusFailed, Reason: "start_error"}
	}

	select {
	case status := <-exitCh:
		if stdout.overflowed || stderr.overflowed {
			_ = task.Kill(ctx, syscall.SIGKILL)
			return execqueue.Result{Status: execqueue.StatusFailed, Reason: "output_limit", Stdout: stdout.String(), Stderr: stderr.String()}
		}

		code := int(status.ExitCode())
		if code != 0 {
			return execqueue.Result{
				Status: execqueue.StatusFailed, Reason: compileOrRuntimeReason(job.Language, stderr.String()),
				Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: code,
			}
		}

		return execqueue.Result{Status: execqueue.StatusCompleted, Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: code}
	case <-ctx.Done():
		_ = task.Kill(ctx, syscall.SIGKILL)
		return execqueue.Result{Status: execqueue.StatusTimeout, Reason: "timeout", Stdout: stdout.String(), Stderr: stderr.String()}
	}
}

// javaCompileErrorRe matches javac's "File.java:3: error: ..."
// diagnostic format.
var javaCompileErrorRe = regexp.MustCompile(`\.java:\d+: error:`)

// syntaxErrorRe matches CPython's and V8's parse-time diagnostic
// names, which both toolchains raise before any user code runs.
var syntaxErrorRe = regexp.MustCompile(`(?m)^(Syntax|Indentation)Error\b`)

// compileOrRuntimeReason makes a best-effort, per-language distinction
// between a compiler/parse diagnostic and a runtime failure so callers
// can report "compile error" separately from ordinary non-zero exits,
// per spec §4.10. Detection is pattern-matching on each toolchain's
// known diagnostic format, not a real compiler integration, so an
// unrecognized language or diagnostic shape falls back to
// "runtime_error".
func compileOrRuntimeReason(language, stderr string) string {
	switch language {
	case "java":
		if javaCompileErrorRe.MatchString(stderr) {
			return "compile_error"
		}
	case "python", "node":
		if syntaxErrorRe.MatchString(stderr) {
			return "compile_error"
		}
	}

	return "runtime_error"
}

// limitedBuffer caps how much stdout/stderr it will retain before
// marking itself overflowed, used to enforce the output cap without
// buffering unbounded attacker-controlled output.
type limitedBuffer struct {
	buf        bytes.Buffer
	limit      int64
	overflowed bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.overflowed {
		return len(p), nil
	}

	if int64(b.buf.Len()+len(p)) > b.limit {
		b.overflowed = true
		remaining := b.limit - int64(b.buf.Len())

		if remaining > 0 {
			b.buf.Write(p[:remaining])
		}

		return len(p), nil
	}

	return b.buf.Write(p)
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}

var _ io.Writer = (*limitedBuffer)(nil)
