package board

import (
	"embed"
	"fmt"
	"os"
	"path"
	"sort"
	"sync"
)

// DefaultProfile is the profile used when none is requested
const DefaultProfile = "msi-nct6687d"

//go:embed profiles/*.yaml
var builtinFS embed.FS

// Registry holds the known board profiles by name
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// globalRegistry holds the built-in profiles
var globalRegistry = NewRegistry()

func init() {
	entries, err := builtinFS.ReadDir("profiles")
	if err != nil {
		panic(fmt.Sprintf("board: reading built-in profiles: %v", err))
	}
	for _, e := range entries {
		data, err := builtinFS.ReadFile(path.Join("profiles", e.Name()))
		if err != nil {
			panic(fmt.Sprintf("board: reading %s: %v", e.Name(), err))
		}
		p, err := Parse(data)
		if err != nil {
			panic(fmt.Sprintf("board: built-in %s: %v", e.Name(), err))
		}
		if err := globalRegistry.Register(p); err != nil {
			panic(fmt.Sprintf("board: %v", err))
		}
	}
}

// NewRegistry creates an empty profile registry
func NewRegistry() *Registry {
	return &Registry{
		profiles: make(map[string]*Profile),
	}
}

// Register adds a profile to the global registry
func Register(p *Profile) error {
	return globalRegistry.Register(p)
}

// Get retrieves a profile from the global registry
func Get(name string) (*Profile, error) {
	return globalRegistry.Get(name)
}

// List returns all globally registered profile names
func List() []string {
	return globalRegistry.List()
}

// Resolve returns the profile named ref, or loads ref as a file path if it
// names an existing file. An empty ref selects DefaultProfile.
func Resolve(ref string) (*Profile, error) {
	if ref == "" {
		ref = DefaultProfile
	}
	if fi, err := os.Stat(ref); err == nil && !fi.IsDir() {
		return Load(ref)
	}
	return Get(ref)
}

// Register adds a profile to the registry
func (r *Registry) Register(p *Profile) error {
	if p == nil {
		return fmt.Errorf("profile cannot be nil")
	}
	if p.Name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.profiles[p.Name]; exists {
		return fmt.Errorf("profile %q already registered", p.Name)
	}

	r.profiles[p.Name] = p
	return nil
}

// Get retrieves a profile by name
func (r *Registry) Get(name string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.profiles[name]
	if !exists {
		return nil, fmt.Errorf("profile %q not found", name)
	}
	return p, nil
}

// List returns all registered profile names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}
