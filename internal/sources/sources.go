// Package sources is the static catalog of harvest targets.
package sources

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Instruction is a free-form per-source directive. Only Status is read today.
type Instruction struct {
	Text   string `yaml:"text"`
	Status string `yaml:"status"`
}

// Source is one harvest target.
type Source struct {
	ID       int           `yaml:"id"`
	Name     string        `yaml:"name"`
	Key      string        `yaml:"key"`
	URL      string        `yaml:"url"`
	Strategy string        `yaml:"strategy"`
	Period   time.Duration `yaml:"period"` // declared cadence; the scheduler uses the global interval
	Status   string        `yaml:"status"`

	Instructions []Instruction `yaml:"instructions,omitempty"`

	// Optional overrides of the global pipeline policy.
	StalenessWindow     time.Duration     `yaml:"staleness_window,omitempty"`
	SimilarityThreshold float64           `yaml:"similarity_threshold,omitempty"`
	Exclude             []string          `yaml:"exclude,omitempty"`
	Selectors           map[string]string `yaml:"selectors,omitempty"`
}

// clone copies s including its slices and maps.
func (s Source) clone() Source {
	s.Instructions = slices.Clone(s.Instructions)
	s.Exclude = slices.Clone(s.Exclude)
	s.Selectors = maps.Clone(s.Selectors)
	return s
}

func (s Source) Active() bool {
	return strings.EqualFold(s.Status, StatusActive)
}

// ActiveInstructions returns instructions whose status is active.
func (s Source) ActiveInstructions() []Instruction {
	var out []Instruction
	for _, in := range s.Instructions {
		if strings.EqualFold(in.Status, StatusActive) {
			out = append(out, in)
		}
	}
	return out
}

// StalenessOr returns the per-source staleness window, or def when unset.
func (s Source) StalenessOr(def time.Duration) time.Duration {
	if s.StalenessWindow > 0 {
		return s.StalenessWindow
	}
	return def
}

// ThresholdOr returns the per-source similarity threshold, or def when unset.
func (s Source) ThresholdOr(def float64) float64 {
	if s.SimilarityThreshold > 0 {
		return s.SimilarityThreshold
	}
	return def
}

// Registry is the immutable catalog loaded at startup.
type Registry struct {
	sources []Source
}

// SourcesConfig is YAML config structure
//
//	sources:
//	  - id: 1
//	    key: ...
type SourcesConfig struct {
	Sources []Source `yaml:"sources"`
}

// LoadRegistry reads the source catalog from a YAML file.
func LoadRegistry(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg SourcesConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return NewRegistry(cfg.Sources)
}

// NewRegistry validates sources and wraps them in a Registry.
func NewRegistry(list []Source) (*Registry, error) {
	var errs []error
	seenKeys := make(map[string]bool, len(list))
	seenIDs := make(map[int]bool, len(list))

	for i, s := range list {
		switch {
		case s.Key == "":
			errs = append(errs, fmt.Errorf("source #%d: key is required", i))
			continue
		case seenKeys[s.Key]:
			errs = append(errs, fmt.Errorf("source %q: duplicate key", s.Key))
		case seenIDs[s.ID]:
			errs = append(errs, fmt.Errorf("source %q: duplicate id %d", s.Key, s.ID))
		}
		seenKeys[s.Key] = true
		seenIDs[s.ID] = true

		if !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
			errs = append(errs, fmt.Errorf("source %q: url must be absolute http(s)", s.Key))
		}
		if s.Strategy == "" {
			errs = append(errs, fmt.Errorf("source %q: strategy is required", s.Key))
		}
		if s.SimilarityThreshold < 0 || s.SimilarityThreshold > 1 {
			errs = append(errs, fmt.Errorf("source %q: similarity_threshold must be in [0, 1]", s.Key))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	cp := make([]Source, len(list))
	for i, s := range list {
		cp[i] = s.clone()
	}
	return &Registry{sources: cp}, nil
}

// All returns every source in catalog order.
func (r *Registry) All() []Source {
	out := make([]Source, len(r.sources))
	for i, s := range r.sources {
		out[i] = s.clone()
	}
	return out
}

// Active returns the active sources in catalog order.
func (r *Registry) Active() []Source {
	var out []Source
	for _, s := range r.sources {
		if s.Active() {
			out = append(out, s.clone())
		}
	}
	return out
}

// ByKey looks a source up by its stable key.
func (r *Registry) ByKey(key string) (Source, bool) {
	for _, s := range r.sources {
		if s.Key == key {
			return s.clone(), true
		}
	}
	return Source{}, false
}
