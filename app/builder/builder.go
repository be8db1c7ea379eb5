// Package builder runs the packaging pipeline: updates twa manifest in the workspace, calls the packaging
// tool to regenerate manifest checksum and to build signed apk, verifies the output and stores it as an artifact.
package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/syncs"
	"github.com/google/uuid"
	"github.com/otiai10/copy"

	"github.com/umputun/apkbuild/app/builder/event"
	"github.com/umputun/apkbuild/app/manifest"
	"github.com/umputun/apkbuild/app/shell"
)

//go:generate moq -out mocks/runner.go -pkg mocks -skip-ensure -fmt goimports . Runner
//go:generate moq -out mocks/gate.go -pkg mocks -skip-ensure -fmt goimports . Gate
//go:generate moq -out mocks/event_handler.go -pkg mocks -skip-ensure -fmt goimports . EventHandler
//go:generate moq -out mocks/notifier.go -pkg mocks -skip-ensure -fmt goimports . Notifier

// DefaultOutput is the apk location produced by the tool, relative to workspace
const DefaultOutput = "app/build/outputs/apk/release/app-release-signed.apk"

var (
	// ErrBadRequest returned for missing or unusable request fields
	ErrBadRequest = errors.New("bad request")
	// ErrOutputMissing returned when the tool reported success but there is no apk
	ErrOutputMissing = errors.New("build output missing")
	// ErrNotReady returned when the resource gate rejects a build
	ErrNotReady = errors.New("builder not ready")
)

// Builder makes apk for given host and launcher name. Thread safe, the number of
// simultaneous builds limited to 1 in shared mode and to MaxBuilds in isolated mode.
type Builder struct {
	Config
	Runner       Runner
	Gate         Gate
	EventHandler EventHandler
	Notifier     Notifier

	once sync.Once
	sema sync.Locker
	now  func() time.Time
}

// Config defines builder's file layout and concurrency
type Config struct {
	WorkDir       string        // project directory with manifest and signing key
	Manifest      string        // manifest file, relative to workspace
	Output        string        // produced apk, relative to workspace
	ArtifactsDir  string        // where successful outputs are stored
	PackagePrefix string        // prefix for package_name
	ShellConfig   string        // optional shell config emitted into workspace, relative
	BuildArgs     []string      // args for the build subcommand
	Isolate       bool          // run each build in a private copy of WorkDir
	MaxBuilds     int           // concurrent builds in isolated mode
	TempDir       string        // parent for isolated workspaces, system temp if empty
	Timeout       time.Duration // build timeout, 0 for none
	HostName      string        // used in notification subjects
	SkipCopy      []string      // files not copied into isolated workspaces, path-* siblings skipped too
}

// Runner executes packaging tool subcommand in a directory
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// Gate checks if there are enough resources to start a build
type Gate interface {
	Check(ctx context.Context, path string) (ok bool, reason string)
}

// EventHandler gets build lifecycle events
type EventHandler interface {
	OnBuildStart(e event.Start)
	OnBuildComplete(e event.Complete)
}

// Notifier delivers build results
type Notifier interface {
	Send(ctx context.Context, subj, text string) error
	IsOnError() bool
	IsOnCompletion() bool
	MakeErrorHTML(name, host, errorLog string) (string, error)
	MakeCompletionHTML(name, host, packageName string) (string, error)
}

// Repeater repeats failed function
type Repeater interface {
	Do(ctx context.Context, fun func() error, errors ...error) (err error)
}

// Request is a build request
type Request struct {
	Host         string `json:"host" jsonschema:"description=start url of the web app,example=https://example.com/"`
	LauncherName string `json:"launcherName" jsonschema:"description=application name shown by the launcher,example=Example"`
}

// Validate checks required fields
func (r Request) Validate() error {
	if r.Host == "" || r.LauncherName == "" {
		return fmt.Errorf("%w: host and launcher name are required", ErrBadRequest)
	}
	return nil
}

// Result of successful build
type Result struct {
	ID          string
	PackageName string
	Artifact    string // path to stored apk
	FileName    string // suggested download name
	Size        int64
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Build runs the whole pipeline for the request. It is detached from ctx cancellation,
// once started the build runs to the end or to the configured timeout.
func (b *Builder) Build(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	b.once.Do(b.init)

	if b.Gate != nil && !reflect.ValueOf(b.Gate).IsNil() {
		if ok, reason := b.Gate.Check(ctx, b.WorkDir); !ok {
			return Result{}, fmt.Errorf("%w: %s", ErrNotReady, reason)
		}
	}

	ctx = context.WithoutCancel(ctx)
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	b.sema.Lock()
	defer b.sema.Unlock()

	res := Result{
		ID:          uuid.NewString(),
		PackageName: manifest.PackageName(b.PackagePrefix, req.LauncherName),
		StartedAt:   b.now(),
	}
	log.Printf("[INFO] build %s started, host: %s, name: %q", res.ID, req.Host, req.LauncherName)
	if b.EventHandler != nil {
		b.EventHandler.OnBuildStart(event.Start{ID: res.ID, Host: req.Host, LauncherName: req.LauncherName,
			PackageName: res.PackageName, StartedAt: res.StartedAt})
	}

	output, err := b.run(ctx, req, &res)
	res.FinishedAt = b.now()

	if b.EventHandler != nil {
		evt := event.Complete{ID: res.ID, StartedAt: res.StartedAt, FinishedAt: res.FinishedAt, Output: output,
			Artifact: filepath.Base(res.Artifact), Size: res.Size, Err: err}
		if err != nil {
			evt.ExitCode, evt.Artifact = 1, ""
			var toolErr *ToolError
			if errors.As(err, &toolErr) {
				evt.ExitCode = toolErr.ExitCode
			}
		}
		b.EventHandler.OnBuildComplete(evt)
	}
	if e := b.notify(ctx, req, res, err); e != nil {
		log.Printf("[WARN] failed to notify, %v", e)
	}

	if err != nil {
		log.Printf("[WARN] build %s failed in %v, %v", res.ID, res.FinishedAt.Sub(res.StartedAt), err)
		return Result{}, err
	}
	res.FileName = manifest.SafeName(req.LauncherName) + "_" + strconv.FormatInt(res.FinishedAt.UnixMilli(), 10) + ".apk"
	log.Printf("[INFO] build %s completed in %v, %s (%d bytes)", res.ID, res.FinishedAt.Sub(res.StartedAt), res.Artifact, res.Size)
	return res, nil
}

// run performs the build steps in the workspace and returns combined tool output
func (b *Builder) run(ctx context.Context, req Request, res *Result) (output string, err error) {
	ws, cleanup, err := b.workspace(res.ID)
	if err != nil {
		return "", err
	}
	defer cleanup()

	if err = b.updateManifest(ws, req); err != nil {
		return "", err
	}

	// output left from a previous build must not pass for the result of this one
	apk := filepath.Join(ws, b.Output)
	if err = os.Remove(apk); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to remove stale output: %w", err)
	}

	checksumOut, err := b.Runner.Run(ctx, ws, "manifest-checksum", b.Manifest)
	if err != nil {
		return checksumOut, fmt.Errorf("manifest checksum: %w", err)
	}

	buildOut, err := b.Runner.Run(ctx, ws, append([]string{"build"}, b.BuildArgs...)...)
	output = joinOutput(checksumOut, buildOut)
	if err != nil {
		return output, fmt.Errorf("build: %w", err)
	}

	st, err := os.Stat(apk)
	if err != nil {
		return output, fmt.Errorf("%w: %w", ErrOutputMissing, err)
	}
	if st.IsDir() {
		return output, fmt.Errorf("%w: %s is a directory", ErrOutputMissing, apk)
	}

	res.Artifact = filepath.Join(b.ArtifactsDir, res.ID+".apk")
	if err = copy.Copy(apk, res.Artifact); err != nil {
		return output, fmt.Errorf("failed to store artifact: %w", err)
	}
	res.Size = st.Size()
	return output, nil
}

func (b *Builder) updateManifest(ws string, req Request) error {
	m, err := manifest.Load(filepath.Join(ws, b.Manifest))
	if err != nil {
		return fmt.Errorf("failed to update manifest: %w", err)
	}
	m.Apply(req.Host, req.LauncherName, b.PackagePrefix)
	if err = m.Save(); err != nil {
		return fmt.Errorf("failed to update manifest: %w", err)
	}

	if b.ShellConfig == "" {
		return nil
	}
	cfg := shell.Config{LaunchURL: req.Host, AppName: req.LauncherName}
	if err = shell.SaveConfig(filepath.Join(ws, b.ShellConfig), cfg); err != nil {
		return fmt.Errorf("failed to write shell config: %w", err)
	}
	return nil
}

func (b *Builder) notify(ctx context.Context, req Request, res Result, buildErr error) error {
	if b.Notifier == nil || reflect.ValueOf(b.Notifier).IsNil() {
		return nil
	}

	if buildErr != nil && b.Notifier.IsOnError() {
		msg, err := b.Notifier.MakeErrorHTML(req.LauncherName, req.Host, buildErr.Error())
		if err != nil {
			return fmt.Errorf("can't make html email: %w", err)
		}
		return b.Notifier.Send(ctx, fmt.Sprintf("failed apk build %q on %s", req.LauncherName, b.HostName), msg)
	}

	if buildErr == nil && b.Notifier.IsOnCompletion() {
		msg, err := b.Notifier.MakeCompletionHTML(req.LauncherName, req.Host, res.PackageName)
		if err != nil {
			return fmt.Errorf("can't make html email: %w", err)
		}
		return b.Notifier.Send(ctx, fmt.Sprintf("completed apk build %q on %s", req.LauncherName, b.HostName), msg)
	}
	return nil
}

func (b *Builder) init() {
	if b.Manifest == "" {
		b.Manifest = manifest.DefaultFileName
	}
	if b.Output == "" {
		b.Output = DefaultOutput
	}
	if b.ArtifactsDir == "" {
		b.ArtifactsDir = filepath.Join(os.TempDir(), "apkbuild-artifacts")
	}
	if err := os.MkdirAll(b.ArtifactsDir, 0o750); err != nil {
		log.Printf("[WARN] can't make artifacts dir %s, %v", b.ArtifactsDir, err)
	}

	capacity := 1
	if b.Isolate && b.MaxBuilds > 1 {
		capacity = b.MaxBuilds
	}
	b.sema = syncs.NewSemaphore(capacity)
	if b.now == nil {
		b.now = time.Now
	}
	log.Printf("[INFO] builder for %s, isolated: %v, concurrent builds: %d", b.WorkDir, b.Isolate, capacity)
}

func joinOutput(parts ...string) string {
	res := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if res != "" {
			res += "\n"
		}
		res += p
	}
	return res
}
