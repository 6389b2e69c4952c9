package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sentinel-ai/gateway/pkg/common/models"
	"gopkg.in/yaml.v3"
)

// Engine holds the registry of named policy contexts. The registry is a
// copy-on-write snapshot; Resolve never observes a half-applied Register.
type Engine struct {
	mu       sync.RWMutex
	registry map[string]Policy
}

func NewEngine() *Engine {
	return &Engine{registry: defaultPolicies()}
}

// Register adds a custom named policy. Pre-registered and previously
// registered context names collide with ErrDuplicateContext.
func (e *Engine) Register(p Policy) error {
	if err := validate(p); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.registry[p.Context]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateContext, p.Context)
	}

	next := make(map[string]Policy, len(e.registry)+1)
	for name, existing := range e.registry {
		next[name] = existing
	}
	next[p.Context] = p.clone()
	e.registry = next
	return nil
}

func (e *Engine) snapshot() map[string]Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry
}

// Resolve merges a caller override onto the named base policy and returns a
// new policy value. For compliance contexts restoration stays forbidden no
// matter what the override says.
func (e *Engine) Resolve(contextName string, override *models.PolicyOverride) (Policy, error) {
	base, ok := e.snapshot()[contextName]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %s", ErrUnknownContext, contextName)
	}

	merged := base.clone()
	if override == nil {
		return merged, nil
	}

	if override.EnabledEntities != nil {
		merged.EnabledEntities = append([]string(nil), override.EnabledEntities...)
	}
	if override.DisabledEntities != nil {
		merged.DisabledEntities = append([]string(nil), override.DisabledEntities...)
	}

	if override.MinConfidence != nil {
		if base.Compliance {
			// Compliance floors can only be raised.
			if *override.MinConfidence > merged.MinConfidence {
				merged.MinConfidence = *override.MinConfidence
			}
		} else {
			merged.MinConfidence = *override.MinConfidence
		}
	}

	if override.RestorationAllowed != nil && !base.Compliance {
		merged.RestorationAllowed = *override.RestorationAllowed
	}
	if base.Compliance {
		merged.RestorationAllowed = false
	}

	return merged, nil
}

// Contexts returns the registered context names in sorted order.
func (e *Engine) Contexts() []string {
	snap := e.snapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns every registered policy, sorted by context name.
func (e *Engine) List() []Policy {
	snap := e.snapshot()
	out := make([]Policy, 0, len(snap))
	for _, name := range e.Contexts() {
		out = append(out, snap[name].clone())
	}
	return out
}

type policyFile struct {
	Policies []Policy `yaml:"policies"`
}

// LoadFile registers additional contexts from a YAML file at startup.
func (e *Engine) LoadFile(path string) error {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}

	var file policyFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return err
	}

	for _, p := range file.Policies {
		if err := e.Register(p); err != nil {
			return err
		}
	}
	return nil
}
