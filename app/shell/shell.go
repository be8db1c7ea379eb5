// Package shell implements the display shell: a single remote page shown in an embedded browser
// surface with back gestures routed into the surface history before the platform default.
package shell

import (
	"fmt"
	"sync"

	log "github.com/go-pkgz/lgr"
)

// Settings of the embedded surface applied on start
type Settings struct {
	JavaScriptEnabled bool
	DOMStorageEnabled bool
}

// Surface is the embedded browser view
type Surface interface {
	Configure(s Settings)
	Load(url string) error
	CanGoBack() bool
	GoBack()
	SetTitle(title string)
}

// Shell wires static config, the surface and back gestures together
type Shell struct {
	cfg        Config
	surface    Surface
	dispatcher *Dispatcher
	callback   *Callback
}

// New makes shell for given config, surface and dispatcher
func New(cfg Config, surface Surface, dispatcher *Dispatcher) *Shell {
	return &Shell{cfg: cfg, surface: surface, dispatcher: dispatcher}
}

// Start applies surface settings, loads the launch address, sets the title and registers back callback.
// Load errors are left to the surface.
func (s *Shell) Start() error {
	if s.cfg.LaunchURL == "" {
		return fmt.Errorf("launch url is not set")
	}
	s.surface.Configure(Settings{JavaScriptEnabled: true, DOMStorageEnabled: true})
	if err := s.surface.Load(s.cfg.LaunchURL); err != nil {
		log.Printf("[WARN] failed to load %s: %v", s.cfg.LaunchURL, err)
	}
	s.surface.SetTitle(s.cfg.AppName)

	s.callback = NewCallback(true, s.onBack)
	s.dispatcher.Add(s.callback)
	return nil
}

// Callback returns the back callback registered by Start, nil before start
func (s *Shell) Callback() *Callback { return s.callback }

func (s *Shell) onBack() {
	if s.surface.CanGoBack() {
		s.surface.GoBack()
		return
	}
	// nothing to go back to inside the surface, step aside and let the platform handle it
	s.callback.SetEnabled(false)
	s.dispatcher.Dispatch()
}

// Callback is a back gesture handler which can be switched off
type Callback struct {
	mu      sync.Mutex
	enabled bool
	handle  func()
}

// NewCallback makes callback with initial enabled state
func NewCallback(enabled bool, handle func()) *Callback {
	return &Callback{enabled: enabled, handle: handle}
}

// Enabled reports whether callback takes part in dispatching
func (c *Callback) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SetEnabled switches callback on or off
func (c *Callback) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

// Dispatcher routes back gestures to the most recently added enabled callback,
// falling back to the platform default if none is enabled.
type Dispatcher struct {
	mu        sync.Mutex
	callbacks []*Callback
	fallback  func()
}

// NewDispatcher makes dispatcher with platform default back behavior
func NewDispatcher(fallback func()) *Dispatcher {
	return &Dispatcher{fallback: fallback}
}

// Add registers callback, the last added has priority
func (d *Dispatcher) Add(c *Callback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callbacks = append(d.callbacks, c)
}

// Dispatch delivers a back gesture
func (d *Dispatcher) Dispatch() {
	d.mu.Lock()
	var target *Callback
	for i := len(d.callbacks) - 1; i >= 0; i-- {
		if d.callbacks[i].Enabled() {
			target = d.callbacks[i]
			break
		}
	}
	d.mu.Unlock()

	// handlers may re-dispatch, so call them without holding the lock
	if target != nil {
		target.handle()
		return
	}
	if d.fallback != nil {
		d.fallback()
	}
}
