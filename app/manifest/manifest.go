// Package manifest deals with the twa descriptor file consumed by the packaging tool.
// Only the fields the builder controls are typed, everything else in the document is kept as is.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	log "github.com/go-pkgz/lgr"
	"github.com/google/renameio"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	// DefaultFileName is the manifest file name used by the packaging tool
	DefaultFileName = "twa-manifest.json"
	// DefaultPackagePrefix is prepended to the identifier derived from the launcher name
	DefaultPackagePrefix = "com.twa"
)

var (
	reNotLowerAlnum = regexp.MustCompile(`[^a-z0-9]`)
	reNotAlnum      = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// Manifest is a loaded descriptor. Fields holds the whole document as raw values in the original
// key order, typed accessors cover the keys overwritten on each build.
type Manifest struct {
	path   string
	fields *orderedmap.OrderedMap[string, json.RawMessage]
}

// Load reads descriptor from the file
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	fields := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(data, fields); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return &Manifest{path: path, fields: fields}, nil
}

// Apply overwrites start url, names and package name for the given host and launcher name
func (m *Manifest) Apply(host, launcherName, packagePrefix string) {
	m.fields.Set("start_url", rawString(host))
	m.fields.Set("name", rawString(launcherName))
	m.fields.Set("short_name", rawString(launcherName))
	m.fields.Set("package_name", rawString(PackageName(packagePrefix, launcherName)))
}

// Save writes descriptor back to its file, atomically. Keys keep their loaded order, new keys go last.
// Values are written as is, without html escaping.
func (m *Manifest) Save() error {
	compact := bytes.Buffer{}
	compact.WriteByte('{')
	for pair := m.fields.Oldest(); pair != nil; pair = pair.Next() {
		if pair != m.fields.Oldest() {
			compact.WriteByte(',')
		}
		compact.Write(rawString(pair.Key))
		compact.WriteByte(':')
		compact.Write(pair.Value)
	}
	compact.WriteByte('}')

	data := bytes.Buffer{}
	if err := json.Indent(&data, compact.Bytes(), "", "  "); err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := renameio.WriteFile(m.path, data.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", m.path, err)
	}
	log.Printf("[DEBUG] manifest %s updated", m.path)
	return nil
}

// StartURL returns start_url value
func (m *Manifest) StartURL() string { return m.str("start_url") }

// Name returns name value
func (m *Manifest) Name() string { return m.str("name") }

// ShortName returns short_name value
func (m *Manifest) ShortName() string { return m.str("short_name") }

// PackageName returns package_name value
func (m *Manifest) PackageName() string { return m.str("package_name") }

// Get returns decoded value for the key, nil if missing. Numbers are returned as json.Number.
func (m *Manifest) Get(key string) any {
	raw, ok := m.fields.Get(key)
	if !ok {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

// Path returns the file the manifest was loaded from
func (m *Manifest) Path() string { return m.path }

func (m *Manifest) str(key string) string {
	if v, ok := m.Get(key).(string); ok {
		return v
	}
	return ""
}

// rawString encodes string as json without escaping html characters, so urls with & stay readable
func rawString(s string) json.RawMessage {
	buf := bytes.Buffer{}
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s) // string encoding can't fail
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

// Identifier makes lowercase alphanumeric identifier from launcher name, i.e. "My App!" -> "myapp"
func Identifier(launcherName string) string {
	return reNotLowerAlnum.ReplaceAllString(strings.ToLower(launcherName), "")
}

// PackageName makes package identifier from prefix and launcher name.
// Empty prefix results in the bare identifier.
func PackageName(prefix, launcherName string) string {
	id := Identifier(launcherName)
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		return id
	}
	return prefix + "." + id
}

// SafeName replaces every non-alphanumeric character with underscore, used for download file names
func SafeName(launcherName string) string {
	return reNotAlnum.ReplaceAllString(launcherName, "_")
}
