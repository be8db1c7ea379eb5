package shell

import (
	"fmt"
	"sync"
)

var _ Surface = (*History)(nil)

// History is an in-memory Surface keeping a navigation stack. It has no rendering, platform
// integrations provide their own Surface and History stands in for them in tests.
type History struct {
	mu       sync.Mutex
	settings Settings
	title    string
	stack    []string
}

// Configure stores settings
func (h *History) Configure(s Settings) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settings = s
}

// Load navigates to url, pushing it on the stack
func (h *History) Load(url string) error {
	if url == "" {
		return fmt.Errorf("empty url")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stack = append(h.stack, url)
	return nil
}

// CanGoBack is true if there is a page before the current one
func (h *History) CanGoBack() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.stack) > 1
}

// GoBack pops current page
func (h *History) GoBack() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.stack) > 1 {
		h.stack = h.stack[:len(h.stack)-1]
	}
}

// SetTitle sets visible title
func (h *History) SetTitle(title string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.title = title
}

// Current returns current url, empty if nothing loaded
func (h *History) Current() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.stack) == 0 {
		return ""
	}
	return h.stack[len(h.stack)-1]
}

// Title returns visible title
func (h *History) Title() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.title
}

// Settings returns applied settings
func (h *History) Settings() Settings {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.settings
}
