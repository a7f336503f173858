package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// RuntimeType discriminates the three runtime-driver variants a catalog
// entry may describe. The registry's factory switches on this tag rather
// than on Go dynamic type identity, since the catalog is decoded from
// plain JSON with no type information of its own.
type RuntimeType string

const (
	RuntimeTypeCLI RuntimeType = "cli"
	RuntimeTypeAPI RuntimeType = "api"
	RuntimeTypeSDK RuntimeType = "sdk"
)

// ModelSpec is a provider/model pairing with free-form parameters, used
// both as a runtime's default model and as a per-agent override.
type ModelSpec struct {
	Provider   string            `json:"provider,omitempty"`
	ModelID    string            `json:"modelId,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// MergeModelSpec applies the model-merge rule: explicit's Provider/ModelID
// fall through to def's when empty; Parameters are merged key-by-key with
// explicit entries winning. Both nil returns nil.
func MergeModelSpec(explicit, def *ModelSpec) *ModelSpec {
	if explicit == nil && def == nil {
		return nil
	}
	merged := &ModelSpec{Parameters: map[string]string{}}
	if def != nil {
		merged.Provider = def.Provider
		merged.ModelID = def.ModelID
		for k, v := range def.Parameters {
			merged.Parameters[k] = v
		}
	}
	if explicit != nil {
		if explicit.Provider != "" {
			merged.Provider = explicit.Provider
		}
		if explicit.ModelID != "" {
			merged.ModelID = explicit.ModelID
		}
		for k, v := range explicit.Parameters {
			merged.Parameters[k] = v
		}
	}
	if len(merged.Parameters) == 0 {
		merged.Parameters = nil
	}
	return merged
}

// RuntimeEntry is one catalog entry, fields populated according to Type.
type RuntimeEntry struct {
	Type         RuntimeType `json:"type"`
	ID           string      `json:"id"`
	DisplayName  string      `json:"displayName,omitempty"`
	DefaultModel *ModelSpec  `json:"defaultModel,omitempty"`

	// cli
	Executable string            `json:"executable,omitempty"`
	Args       []string          `json:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	Defaults   map[string]string `json:"defaults,omitempty"`

	// api
	BaseURL      string `json:"baseUrl,omitempty"`
	APIKeyEnvVar string `json:"apiKeyEnvVar,omitempty"`

	// sdk
	SDKName string            `json:"sdkName,omitempty"`
	Options map[string]string `json:"options,omitempty"`
}

func (e RuntimeEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("runtime entry missing id")
	}
	switch e.Type {
	case RuntimeTypeCLI:
		if e.Executable == "" {
			return fmt.Errorf("runtime %q: cli entries require executable", e.ID)
		}
	case RuntimeTypeAPI:
		if e.BaseURL == "" {
			return fmt.Errorf("runtime %q: api entries require baseUrl", e.ID)
		}
	case RuntimeTypeSDK:
		if e.SDKName == "" {
			return fmt.Errorf("runtime %q: sdk entries require sdkName", e.ID)
		}
	default:
		return fmt.Errorf("runtime %q: unknown type %q (must be cli, api, or sdk)", e.ID, e.Type)
	}
	return nil
}

// catalogDocument is the runtimes.json envelope: {"runtimes": [...]},
// optionally carrying a deployment-tuned activity_classifier block.
type catalogDocument struct {
	Runtimes           []RuntimeEntry      `json:"runtimes"`
	ActivityClassifier map[string][]string `json:"activity_classifier,omitempty"`
}

// legacyProvidersDocument is the cli-providers.json envelope, semantically
// equivalent to a catalogDocument with every entry implicitly type "cli".
type legacyProvidersDocument struct {
	Providers []struct {
		ID          string            `json:"id"`
		DisplayName string            `json:"displayName,omitempty"`
		Executable  string            `json:"executable"`
		Args        []string          `json:"args"`
		Env         map[string]string `json:"env,omitempty"`
		Defaults    map[string]string `json:"defaults,omitempty"`
	} `json:"providers"`
}

// Catalog is the in-memory runtime registry and driver factory: a
// case-insensitive lookup from runtime id to its entry.
type Catalog struct {
	byID map[string]RuntimeEntry

	// ActivityClassifier resolves the activity-state keyword heuristic,
	// externalized so a deployment can tune it rather than hardcode it,
	// with DefaultActivityClassifier as the compiled-in fallback.
	ActivityClassifier map[string][]string
}

func newCatalog() *Catalog {
	return &Catalog{byID: map[string]RuntimeEntry{}}
}

// Lookup finds a runtime entry by id, case-insensitively.
func (c *Catalog) Lookup(id string) (RuntimeEntry, bool) {
	e, ok := c.byID[strings.ToLower(id)]
	return e, ok
}

func (c *Catalog) add(e RuntimeEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	key := strings.ToLower(e.ID)
	if _, exists := c.byID[key]; exists {
		return fmt.Errorf("duplicate runtime id: %s", e.ID)
	}
	c.byID[key] = e
	return nil
}

// LoadCatalog parses a runtimes.json file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read runtime catalog: %w", err)
	}
	var doc catalogDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse runtime catalog JSON: %w", err)
	}
	cat := newCatalog()
	for _, e := range doc.Runtimes {
		if err := cat.add(e); err != nil {
			return nil, err
		}
	}
	if len(doc.ActivityClassifier) > 0 {
		cat.ActivityClassifier = doc.ActivityClassifier
	} else {
		cat.ActivityClassifier = DefaultActivityClassifier()
	}
	return cat, nil
}

// LoadLegacyProviders parses a cli-providers.json file into the same
// Catalog shape, defaulting every entry's Type to "cli".
func LoadLegacyProviders(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read legacy provider catalog: %w", err)
	}
	var doc legacyProvidersDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse legacy provider catalog JSON: %w", err)
	}
	cat := newCatalog()
	for _, p := range doc.Providers {
		entry := RuntimeEntry{
			Type:        RuntimeTypeCLI,
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Executable:  p.Executable,
			Args:        p.Args,
			Env:         p.Env,
			Defaults:    p.Defaults,
		}
		if err := cat.add(entry); err != nil {
			return nil, err
		}
	}
	cat.ActivityClassifier = DefaultActivityClassifier()
	return cat, nil
}

// Merge folds other's entries into c, returning an error on any id
// collision so two catalogs loaded together (e.g. runtimes.json plus
// cli-providers.json) never silently shadow each other.
func (c *Catalog) Merge(other *Catalog) error {
	for _, e := range other.byID {
		if err := c.add(e); err != nil {
			return err
		}
	}
	return nil
}

// DefaultActivityClassifier is the compiled-in keyword set used when a
// catalog omits its own activity_classifier block.
func DefaultActivityClassifier() map[string][]string {
	return map[string][]string{
		"Typing":   {"write", "edit", "bash"},
		"Reading":  {"read", "grep", "find", "ls"},
		"Thinking": {"thinking"},
		"Waiting":  {"waiting"},
	}
}

// ClassifyActivity applies the classifier's keyword heuristic to a single
// protocol-adapter line, returning "Idle" when nothing matches.
func (c *Catalog) ClassifyActivity(line string) string {
	lower := strings.ToLower(line)
	classifier := c.ActivityClassifier
	if classifier == nil {
		classifier = DefaultActivityClassifier()
	}
	// Stable order matters: Typing/Reading/Thinking/Waiting, checked in
	// that fixed precedence.
	for _, state := range []string{"Typing", "Reading", "Thinking", "Waiting"} {
		for _, kw := range classifier[state] {
			if strings.Contains(lower, kw) {
				return state
			}
		}
	}
	return "Idle"
}
