package shell

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShell_Start(t *testing.T) {
	surface := &History{}
	sh := New(Config{LaunchURL: "https://example.com", AppName: "Example"}, surface, NewDispatcher(nil))
	require.NoError(t, sh.Start())

	assert.Equal(t, "https://example.com", surface.Current())
	assert.Equal(t, "Example", surface.Title())
	assert.Equal(t, Settings{JavaScriptEnabled: true, DOMStorageEnabled: true}, surface.Settings())
	require.NotNil(t, sh.Callback())
	assert.True(t, sh.Callback().Enabled())
}

func TestShell_StartNoURL(t *testing.T) {
	sh := New(Config{AppName: "Example"}, &History{}, NewDispatcher(nil))
	assert.Error(t, sh.Start())
	assert.Nil(t, sh.Callback())
}

func TestShell_StartLoadErrorIgnored(t *testing.T) {
	surface := &failingSurface{History: &History{}}
	sh := New(Config{LaunchURL: "https://example.com", AppName: "Example"}, surface, NewDispatcher(nil))
	require.NoError(t, sh.Start())
	assert.Equal(t, "Example", surface.Title())
}

func TestShell_BackWithoutHistory(t *testing.T) {
	fallbacks := 0
	surface := &History{}
	sh := New(Config{LaunchURL: "https://example.com", AppName: "Example"}, surface, NewDispatcher(func() { fallbacks++ }))
	require.NoError(t, sh.Start())

	sh.dispatcher.Dispatch()
	assert.Equal(t, 1, fallbacks, "platform default called exactly once")
	assert.False(t, sh.Callback().Enabled(), "callback disabled itself")
	assert.Equal(t, "https://example.com", surface.Current())
}

func TestShell_BackWithHistory(t *testing.T) {
	fallbacks := 0
	surface := &History{}
	sh := New(Config{LaunchURL: "https://example.com", AppName: "Example"}, surface, NewDispatcher(func() { fallbacks++ }))
	require.NoError(t, sh.Start())
	require.NoError(t, surface.Load("https://example.com/page1"))
	require.NoError(t, surface.Load("https://example.com/page2"))

	sh.dispatcher.Dispatch()
	assert.Equal(t, "https://example.com/page1", surface.Current())
	assert.Equal(t, 0, fallbacks)
	assert.True(t, sh.Callback().Enabled())

	sh.dispatcher.Dispatch()
	assert.Equal(t, "https://example.com", surface.Current())
	assert.Equal(t, 0, fallbacks)

	// history exhausted, next gesture goes to the platform
	sh.dispatcher.Dispatch()
	assert.Equal(t, 1, fallbacks)
	assert.False(t, sh.Callback().Enabled())
}

func TestHistory_Navigation(t *testing.T) {
	h := &History{}
	assert.Empty(t, h.Current())
	assert.False(t, h.CanGoBack())
	require.Error(t, h.Load(""))

	require.NoError(t, h.Load("https://example.com"))
	h.GoBack()
	assert.Equal(t, "https://example.com", h.Current(), "root page never popped")

	require.NoError(t, h.Load("https://example.com/a"))
	assert.True(t, h.CanGoBack())
	h.GoBack()
	assert.Equal(t, "https://example.com", h.Current())
	assert.False(t, h.CanGoBack())
}

func TestDispatcher_Priority(t *testing.T) {
	var calls []string
	d := NewDispatcher(func() { calls = append(calls, "default") })
	first := NewCallback(true, func() { calls = append(calls, "first") })
	second := NewCallback(true, func() { calls = append(calls, "second") })
	d.Add(first)
	d.Add(second)

	d.Dispatch()
	second.SetEnabled(false)
	d.Dispatch()
	first.SetEnabled(false)
	d.Dispatch()
	assert.Equal(t, []string{"second", "first", "default"}, calls)
}

func TestDispatcher_NoFallback(t *testing.T) {
	d := NewDispatcher(nil)
	assert.NotPanics(t, d.Dispatch)
}

func TestConfig_SaveLoad(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "res", "shell.yml")
	cfg := Config{LaunchURL: "https://example.com/app", AppName: "My App"}
	require.NoError(t, SaveConfig(fname, cfg))

	loaded, err := LoadConfig(fname)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestConfig_LoadTestdata(t *testing.T) {
	cfg, err := LoadConfig("testdata/shell.yml")
	require.NoError(t, err)
	assert.Equal(t, Config{LaunchURL: "https://umputun.dev/", AppName: "Umputun"}, cfg)
}

type failingSurface struct {
	*History
}

func (f *failingSurface) Load(string) error { return errors.New("offline") }
