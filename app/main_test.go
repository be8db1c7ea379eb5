package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/umputun/go-flags"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/natefinch/lumberjack.v2"
)

func Test_makeHostName(t *testing.T) {
	opts.Notify.HostName = "test"
	assert.Equal(t, "test", makeHostName())

	opts.Notify.HostName = ""
	t.Setenv("MHOST", "")
	exp, err := os.Hostname()
	require.NoError(t, err)
	assert.Equal(t, exp, makeHostName())
}

func Test_makeNotifier(t *testing.T) {
	defer func() { opts.Notify.WebhookURLs, opts.Notify.ToEmails = nil, nil }()
	opts.Notify.HostName = "build-host"
	opts.Notify.EnabledCompletion, opts.Notify.EnabledError = false, false
	opts.Notify.FromEmail = ""
	opts.Notify.ToEmails = []string{"test@example.com"}
	assert.Nil(t, makeNotifier())

	opts.Notify.EnabledCompletion = true
	notif := makeNotifier()
	require.NotNil(t, notif)
	assert.True(t, notif.IsOnCompletion())
	assert.False(t, notif.IsOnError())
	assert.Equal(t, "apkbuild@build-host", opts.Notify.FromEmail,
		"side effect of creating notifier with empty From is setting the From based on hostname")

	opts.Notify.ToEmails = nil
	assert.Nil(t, makeNotifier(), "no destinations")

	opts.Notify.WebhookURLs = []string{"https://example.com/hook"}
	assert.NotNil(t, makeNotifier())
}

func Test_makePasswordHash(t *testing.T) {
	defer func() { opts.Auth.Password, opts.Auth.PasswordHash = "", "" }()

	hash, err := makePasswordHash()
	require.NoError(t, err)
	assert.Empty(t, hash, "auth disabled")

	opts.Auth.Password = "secret"
	hash, err = makePasswordHash()
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")))

	preset, err := bcrypt.GenerateFromPassword([]byte("other"), bcrypt.MinCost)
	require.NoError(t, err)
	opts.Auth.PasswordHash = string(preset)
	hash, err = makePasswordHash()
	require.NoError(t, err)
	assert.Equal(t, string(preset), hash, "hash takes precedence over password")

	opts.Auth.PasswordHash = "not-a-hash"
	_, err = makePasswordHash()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid auth password hash")
}

func Test_makeWriteTimeout(t *testing.T) {
	defer func() { opts.BuildTimeout = 0 }()
	opts.BuildTimeout = 0
	assert.Equal(t, time.Duration(0), makeWriteTimeout())
	opts.BuildTimeout = 10 * time.Minute
	assert.Equal(t, 11*time.Minute, makeWriteTimeout())
}

func Test_makeGateConfig(t *testing.T) {
	defer func() { opts.Gate.MaxMemory, opts.Gate.Custom = 0, "" }()
	assert.False(t, makeGateConfig().Enabled())

	opts.Gate.MaxMemory = 90
	opts.Gate.Custom = "true"
	cfg := makeGateConfig()
	assert.True(t, cfg.Enabled())
	assert.Equal(t, 90, cfg.MaxMemoryUsed)
	assert.Equal(t, "true", cfg.Custom)
}

func Test_setupLogsWithLogsDisabled(t *testing.T) {
	opts.Log.Enabled = false
	assert.Equal(t, os.Stdout, setupLogs())
}

func Test_setupLogsToFile(t *testing.T) {
	defer func() { opts.Log.Enabled = false; setupLogs() }()
	fname := filepath.Join(t.TempDir(), "apkbuild.log")

	opts.Log.Enabled = true
	opts.Log.Filename = fname
	opts.Log.MaxSize = 100
	opts.Log.MaxBackups = 7
	opts.Log.MaxAge = 0
	opts.Log.EnabledCompress = false

	out := setupLogs()
	assert.IsType(t, &lumberjack.Logger{}, out)

	logger := out.(*lumberjack.Logger)
	assert.Equal(t, fname, logger.Filename)
	assert.Equal(t, 100, logger.MaxSize)
	assert.Equal(t, 7, logger.MaxBackups)
	assert.Equal(t, 0, logger.MaxAge)
	assert.False(t, logger.Compress)
}

const fakeTool = `#!/bin/sh
case "$1" in
  manifest-checksum) echo "checksum ok" ;;
  build)
    mkdir -p app/build/outputs/apk/release
    echo "apk for $2" > app/build/outputs/apk/release/app-release-signed.apk
    ;;
esac
`

func Test_run(t *testing.T) {
	tmp := t.TempDir()
	workDir := filepath.Join(tmp, "project")
	require.NoError(t, os.MkdirAll(workDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "twa-manifest.json"),
		[]byte(`{"packageId":"com.example","name":"old"}`), 0o600))
	tool := filepath.Join(tmp, "fake-bubblewrap")
	require.NoError(t, os.WriteFile(tool, []byte(fakeTool), 0o700)) //nolint:gosec // test script must be executable

	port := chooseRandomUnusedPort(t)
	_, err := flags.ParseArgs(&opts, []string{
		"--listen=" + fmt.Sprintf("127.0.0.1:%d", port),
		"--workdir=" + workDir,
		"--tool=" + tool,
		"--artifacts=" + filepath.Join(tmp, "artifacts"),
		"--db=" + filepath.Join(tmp, "var", "builds.db"),
		"--shell-config=shell.yml",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/ping")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Post(base+"/build-apk", "application/json",
		strings.NewReader(`{"host":"https://example.com","launcherName":"Demo"}`))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "apk for --skipPwaValidation\n", string(body))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="Demo_`)
	assert.FileExists(t, filepath.Join(workDir, "shell.yml"))

	manifestData, err := os.ReadFile(filepath.Join(workDir, "twa-manifest.json"))
	require.NoError(t, err)
	assert.Contains(t, string(manifestData), `"package_name": "com.twa.demo"`)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run didn't stop")
	}
}

func Test_runBadWorkDir(t *testing.T) {
	defer func() { opts.WorkDir = "." }()
	opts.WorkDir = "/non/existent/dir"
	err := run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a directory")
}

func Test_runBadRetentionSchedule(t *testing.T) {
	defer func() { opts.WorkDir, opts.DB, opts.Retention.Schedule = ".", "", "@hourly" }()
	tmp := t.TempDir()
	opts.WorkDir = tmp
	opts.DB = filepath.Join(tmp, "var", "builds.db")
	opts.Retention.Schedule = "not a schedule"

	done := make(chan error, 1)
	go func() { done <- run(context.Background()) }()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), `can't parse retention schedule "not a schedule"`)
	case <-time.After(5 * time.Second):
		t.Fatal("run didn't fail on bad retention schedule")
	}
}

func Test_makeSkipCopy(t *testing.T) {
	defer func() { opts.DB, opts.Log.Enabled, opts.Log.Filename = "", false, "" }()
	opts.DB = "var/apkbuild.db"
	opts.Log.Enabled = false
	assert.Equal(t, []string{"var/apkbuild.db"}, makeSkipCopy())

	opts.Log.Enabled, opts.Log.Filename = true, "var/apkbuild.log"
	assert.Equal(t, []string{"var/apkbuild.db", "var/apkbuild.log", "var/apkbuild"}, makeSkipCopy())
}

func chooseRandomUnusedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}
