package profile

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/viper"
)

// ErrUnknownProfile is returned when no profile has the requested name.
var ErrUnknownProfile = errors.New("unknown profile")

type file struct {
	Profiles []*Profile `mapstructure:"profiles"`
}

// Load reads profiles from a YAML, TOML or JSON file with a top-level
// "profiles" list.
func Load(path string) ([]*Profile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read profiles %s: %w", path, err)
	}

	var f file
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("decode profiles %s: %w", path, err)
	}
	for _, p := range f.Profiles {
		if p.Engine == "" {
			p.Engine = EngineBrowser
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return f.Profiles, nil
}

// Registry resolves profile names to profiles.
type Registry struct {
	profiles map[string]*Profile
}

// NewRegistry returns a registry holding the built-in profiles.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]*Profile, len(builtins))}
	for _, name := range BuiltinNames() {
		p, _ := Builtin(name)
		r.profiles[name] = p
	}
	return r
}

// Add validates p and registers it, replacing any profile with the same name.
func (r *Registry) Add(p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.profiles[p.Name] = p
	return nil
}

// LoadFile adds every profile found in path.
func (r *Registry) LoadFile(path string) error {
	profiles, err := Load(path)
	if err != nil {
		return err
	}
	for _, p := range profiles {
		r.profiles[p.Name] = p
	}
	return nil
}

// Get returns the named profile.
func (r *Registry) Get(name string) (*Profile, error) {
	p, ok := r.profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	return p, nil
}

// Names lists registered profiles in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
