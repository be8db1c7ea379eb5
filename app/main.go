package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	gonotify "github.com/go-pkgz/notify"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/umputun/go-flags"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/umputun/apkbuild/app/builder"
	"github.com/umputun/apkbuild/app/conditions"
	"github.com/umputun/apkbuild/app/notify"
	"github.com/umputun/apkbuild/app/retention"
	"github.com/umputun/apkbuild/app/web"
	"github.com/umputun/apkbuild/app/web/persistence"
)

var opts struct {
	Listen        string        `short:"l" long:"listen" env:"APKBUILD_LISTEN" default:"0.0.0.0:3000" description:"listen address"`
	WorkDir       string        `short:"w" long:"workdir" env:"APKBUILD_WORKDIR" default:"." description:"bubblewrap project directory"`
	Tool          string        `long:"tool" env:"APKBUILD_TOOL" default:"bubblewrap" description:"packaging tool binary"`
	Manifest      string        `long:"manifest" env:"APKBUILD_MANIFEST" default:"twa-manifest.json" description:"manifest file, relative to workdir"`
	Output        string        `long:"output" env:"APKBUILD_OUTPUT" default:"app/build/outputs/apk/release/app-release-signed.apk" description:"produced apk, relative to workdir"`
	PackagePrefix string        `long:"package-prefix" env:"APKBUILD_PACKAGE_PREFIX" default:"com.twa" description:"package name prefix"`
	BuildArgs     []string      `long:"build-args" env:"APKBUILD_BUILD_ARGS" env-delim:"," default:"--skipPwaValidation" description:"build subcommand args"`
	MaxLogLines   int           `long:"max-log-lines" env:"APKBUILD_MAX_LOG_LINES" default:"100" description:"max lines of tool output kept"`
	BuildTimeout  time.Duration `long:"build-timeout" env:"APKBUILD_BUILD_TIMEOUT" description:"build timeout, 0 for none"`
	Artifacts     string        `long:"artifacts" env:"APKBUILD_ARTIFACTS" default:"var/artifacts" description:"stored apk directory"`
	Isolate       bool          `long:"isolate" env:"APKBUILD_ISOLATE" description:"run each build in a private copy of workdir"`
	MaxBuilds     int           `long:"max-builds" env:"APKBUILD_MAX_BUILDS" default:"2" description:"max concurrent builds in isolated mode"`
	DB            string        `long:"db" env:"APKBUILD_DB" default:"var/apkbuild.db" description:"build history database"`
	ShellConfig   string        `long:"shell-config" env:"APKBUILD_SHELL_CONFIG" description:"shell config emitted into workdir, relative"`
	RateLimit     float64       `long:"rate-limit" env:"APKBUILD_RATE_LIMIT" description:"build requests per second per client, 0 disables"`
	Dbg           bool          `long:"dbg" env:"APKBUILD_DEBUG" description:"debug mode"`

	Repeater struct {
		Attempts int           `long:"attempts" env:"ATTEMPTS" default:"1" description:"how many times to run failed tool command"`
		Duration time.Duration `long:"duration" env:"DURATION" default:"1s" description:"initial duration"`
		Factor   float64       `long:"factor" env:"FACTOR" default:"3" description:"backoff factor"`
		Jitter   bool          `long:"jitter" env:"JITTER" description:"jitter"`
	} `group:"repeater" namespace:"repeater" env-namespace:"APKBUILD_REPEATER"`

	Gate struct {
		MinDiskFree int     `long:"min-disk-free" env:"MIN_DISK_FREE" description:"min free disk on workdir volume, MB"`
		MaxMemory   int     `long:"max-memory" env:"MAX_MEMORY" description:"max memory usage, percent"`
		MaxLoad     float64 `long:"max-load" env:"MAX_LOAD" description:"max 1 minute load average"`
		MaxCPU      int     `long:"max-cpu" env:"MAX_CPU" description:"max cpu usage, percent"`
		Custom      string  `long:"custom" env:"CUSTOM" description:"custom shell check, must exit with 0"`
	} `group:"gate" namespace:"gate" env-namespace:"APKBUILD_GATE"`

	Retention struct {
		Schedule   string        `long:"schedule" env:"SCHEDULE" default:"@hourly" description:"cleanup schedule"`
		MaxAge     time.Duration `long:"max-age" env:"MAX_AGE" default:"168h" description:"max age of stored artifacts, 0 keeps forever"`
		MaxRecords int           `long:"max-records" env:"MAX_RECORDS" default:"1000" description:"max builds in history, 0 keeps all"`
	} `group:"retention" namespace:"retention" env-namespace:"APKBUILD_RETENTION"`

	Notify struct {
		EnabledError       bool          `long:"enabled-error" env:"ENABLED_ERROR" description:"notify on failed builds"`
		EnabledCompletion  bool          `long:"enabled-complete" env:"ENABLED_COMPLETE" description:"notify on completed builds"`
		SMTPHost           string        `long:"smtp-host" env:"SMTP_HOST" description:"SMTP host"`
		SMTPPort           int           `long:"smtp-port" env:"SMTP_PORT" default:"25" description:"SMTP port"`
		SMTPUsername       string        `long:"smtp-username" env:"SMTP_USERNAME" description:"SMTP user name"`
		SMTPPassword       string        `long:"smtp-password" env:"SMTP_PASSWORD" description:"SMTP password"`
		SMTPTLS            bool          `long:"smtp-tls" env:"SMTP_TLS" description:"enable SMTP TLS"`
		SMTPTimeOut        time.Duration `long:"smtp-timeout" env:"SMTP_TIMEOUT" default:"10s" description:"SMTP TCP connection timeout"`
		FromEmail          string        `long:"from" env:"FROM" description:"SMTP from email"`
		ToEmails           []string      `long:"to" env:"TO" description:"SMTP to email(s)" env-delim:","`
		WebhookURLs        []string      `long:"webhook" env:"WEBHOOK" description:"webhook url(s)" env-delim:","`
		WebhookHeaders     []string      `long:"webhook-header" env:"WEBHOOK_HEADER" description:"webhook header, name:value" env-delim:","`
		WebhookTimeout     time.Duration `long:"webhook-timeout" env:"WEBHOOK_TIMEOUT" default:"10s" description:"webhook timeout"`
		ErrorTemplate      string        `long:"err-template" env:"ERR_TEMPLATE" description:"custom error template file"`
		CompletionTemplate string        `long:"completion-template" env:"COMPLETION_TEMPLATE" description:"custom completion template file"`
		HostName           string        `long:"host" env:"HOSTNAME" description:"host name shown in notifications"`
	} `group:"notify" namespace:"notify" env-namespace:"APKBUILD_NOTIFY"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"enable logging to file"`
		Filename        string `long:"filename" env:"FILENAME" default:"var/apkbuild.log" description:"file name"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"max log file size, MB"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"max number of rotated files"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"30" description:"max age of rotated files, days"`
		EnabledCompress bool   `long:"enabled-compress" env:"ENABLED_COMPRESS" description:"compress rotated files"`
	} `group:"log" namespace:"log" env-namespace:"APKBUILD_LOG"`

	Auth struct {
		Password     string `long:"password" env:"PASSWORD" description:"basic auth password, hashed on start"`
		PasswordHash string `long:"password-hash" env:"PASSWORD_HASH" description:"basic auth bcrypt password hash"`
	} `group:"auth" namespace:"auth" env-namespace:"APKBUILD_AUTH"`

	Version bool `short:"V" long:"version" description:"show version and exit"`
}

var revision = "unknown"

func main() {
	fmt.Printf("apkbuild %s\n", revision)

	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(2)
	}
	if opts.Version {
		os.Exit(0)
	}
	setupLogs()

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	signals(cancel) // handle SIGQUIT and SIGTERM

	if err := run(ctx); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

// run wires all components together and blocks until ctx is canceled
func run(ctx context.Context) error {
	if st, err := os.Stat(opts.WorkDir); err != nil || !st.IsDir() {
		return fmt.Errorf("workdir %q is not a directory", opts.WorkDir)
	}
	passwordHash, err := makePasswordHash()
	if err != nil {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(opts.DB), 0o750); err != nil {
		return fmt.Errorf("can't make db directory: %w", err)
	}
	store, err := persistence.NewSQLiteStore(opts.DB)
	if err != nil {
		return fmt.Errorf("can't open build history: %w", err)
	}
	defer store.Close() //nolint:errcheck // nothing to do on close error

	pruner, err := retention.NewPruner(retention.Config{Schedule: opts.Retention.Schedule, MaxAge: opts.Retention.MaxAge,
		MaxRecords: opts.Retention.MaxRecords, ArtifactsDir: opts.Artifacts}, store)
	if err != nil {
		return err
	}

	bld := &builder.Builder{
		Config: builder.Config{
			WorkDir:       opts.WorkDir,
			Manifest:      opts.Manifest,
			Output:        opts.Output,
			ArtifactsDir:  opts.Artifacts,
			PackagePrefix: opts.PackagePrefix,
			ShellConfig:   opts.ShellConfig,
			BuildArgs:     opts.BuildArgs,
			Isolate:       opts.Isolate,
			MaxBuilds:     opts.MaxBuilds,
			Timeout:       opts.BuildTimeout,
			HostName:      makeHostName(),
			SkipCopy:      makeSkipCopy(),
		},
		Runner: &builder.ExecRunner{
			Tool:        opts.Tool,
			MaxLogLines: opts.MaxLogLines,
			LogOutput:   true,
			Repeater: repeater.New(&strategy.Backoff{Repeats: opts.Repeater.Attempts, Duration: opts.Repeater.Duration,
				Factor: opts.Repeater.Factor, Jitter: opts.Repeater.Jitter}),
		},
	}
	if gate := makeGateConfig(); gate.Enabled() {
		bld.Gate = conditions.NewChecker(gate)
	}
	if notifier := makeNotifier(); notifier != nil {
		bld.Notifier = notifier
	}

	srv, err := web.New(web.Config{
		Builder:        bld,
		Store:          store,
		ArtifactsDir:   opts.Artifacts,
		Version:        revision,
		PasswordHash:   passwordHash,
		BuildRateLimit: opts.RateLimit,
		WriteTimeout:   makeWriteTimeout(),
	})
	if err != nil {
		return err
	}
	bld.EventHandler = srv

	retentionErr := make(chan error, 1)
	go func() { retentionErr <- pruner.Run(ctx) }()

	log.Printf("[INFO] builds in %s (isolated: %v), tool %q, artifacts in %s", opts.WorkDir, opts.Isolate, opts.Tool, opts.Artifacts)
	if err := srv.Run(ctx, opts.Listen); err != nil {
		return err
	}
	return <-retentionErr
}

// makeSkipCopy lists service files which may live inside workdir and must not get into isolated workspaces
func makeSkipCopy() []string {
	res := []string{opts.DB}
	if opts.Log.Enabled && opts.Log.Filename != "" {
		// rotated files are named <base>-<timestamp><ext>
		res = append(res, opts.Log.Filename, strings.TrimSuffix(opts.Log.Filename, filepath.Ext(opts.Log.Filename)))
	}
	return res
}

func makeGateConfig() conditions.Config {
	return conditions.Config{
		MinDiskFreeMB: opts.Gate.MinDiskFree,
		MaxMemoryUsed: opts.Gate.MaxMemory,
		MaxLoadAvg:    opts.Gate.MaxLoad,
		MaxCPU:        opts.Gate.MaxCPU,
		Custom:        opts.Gate.Custom,
	}
}

// makeNotifier returns nil if notifications disabled or no destination set
func makeNotifier() *notify.Service {
	if !opts.Notify.EnabledError && !opts.Notify.EnabledCompletion {
		return nil
	}

	if opts.Notify.FromEmail == "" {
		opts.Notify.FromEmail = "apkbuild@" + makeHostName()
	}

	return notify.NewService(
		notify.Params{
			EnabledError:       opts.Notify.EnabledError,
			EnabledCompletion:  opts.Notify.EnabledCompletion,
			ErrorTemplate:      opts.Notify.ErrorTemplate,
			CompletionTemplate: opts.Notify.CompletionTemplate,
			HostName:           makeHostName(),
		},
		notify.SendersParams{
			SMTPParams: gonotify.SMTPParams{
				Host:        opts.Notify.SMTPHost,
				Port:        opts.Notify.SMTPPort,
				TLS:         opts.Notify.SMTPTLS,
				ContentType: "text/html",
				Username:    opts.Notify.SMTPUsername,
				Password:    opts.Notify.SMTPPassword,
				TimeOut:     opts.Notify.SMTPTimeOut,
			},
			FromEmail:      opts.Notify.FromEmail,
			ToEmails:       opts.Notify.ToEmails,
			WebhookURLs:    opts.Notify.WebhookURLs,
			WebhookHeaders: opts.Notify.WebhookHeaders,
			WebhookTimeout: opts.Notify.WebhookTimeout,
		},
	)
}

func makeHostName() string {
	if opts.Notify.HostName != "" {
		return opts.Notify.HostName
	}
	return notify.HostName()
}

// makePasswordHash returns bcrypt hash for basic auth, empty if auth disabled
func makePasswordHash() (string, error) {
	if opts.Auth.PasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(opts.Auth.PasswordHash)); err != nil {
			return "", fmt.Errorf("invalid auth password hash: %w", err)
		}
		return opts.Auth.PasswordHash, nil
	}
	if opts.Auth.Password == "" {
		return "", nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Auth.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("can't hash auth password: %w", err)
	}
	return string(hash), nil
}

// makeWriteTimeout keeps response open for the whole build, unlimited builds get no write timeout
func makeWriteTimeout() time.Duration {
	if opts.BuildTimeout <= 0 {
		return 0
	}
	return opts.BuildTimeout + time.Minute
}

// setupLogs configures lgr and returns the log destination, rotated file or stdout
func setupLogs() io.Writer {
	var out io.Writer = os.Stdout
	if opts.Log.Enabled {
		out = &lumberjack.Logger{
			Filename:   opts.Log.Filename,
			MaxSize:    opts.Log.MaxSize,
			MaxBackups: opts.Log.MaxBackups,
			MaxAge:     opts.Log.MaxAge,
			Compress:   opts.Log.EnabledCompress,
		}
	}

	logOpts := []log.Option{log.Msec, log.LevelBraces, log.Out(out), log.Err(out)}
	if opts.Dbg {
		logOpts = append(logOpts, log.Debug, log.CallerFunc, log.CallerPkg, log.CallerFile)
	}
	log.Setup(logOpts...)
	return out
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // catch SIGQUIT and print stack traces
				length := runtime.Stack(stacktrace, true)
				fmt.Println(string(stacktrace[:length]))
				continue
			}
			log.Printf("[INFO] %s received, shutting down", strings.ToLower(sig.String()))
			cancel() // terminate on SIGTERM and SIGINT
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
}
