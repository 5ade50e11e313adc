// Package dashconfig loads and saves the dashboard file and the service settings.
package dashconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"chipdeck/internal/binding"
	"chipdeck/internal/chip"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported dashboard format")
	ErrDuplicateID       = errors.New("duplicate widget id")
)

type View struct {
	Title string        `json:"title,omitempty" yaml:"title,omitempty" toml:"title,omitempty"`
	Path  string        `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
	Chips []chip.Config `json:"chips" yaml:"chips" toml:"chips"`
}

type Dashboard struct {
	Title string `json:"title,omitempty" yaml:"title,omitempty" toml:"title,omitempty"`
	Views []View `json:"views" yaml:"views" toml:"views"`
}

// Widgets flattens every view's chips in display order.
func (d Dashboard) Widgets() []chip.Config {
	var out []chip.Config
	for _, v := range d.Views {
		out = append(out, v.Chips...)
	}
	return out
}

// Find returns the chip with id.
func (d Dashboard) Find(id string) (chip.Config, bool) {
	for _, c := range d.Widgets() {
		if c.ID == id {
			return c, true
		}
	}
	return chip.Config{}, false
}

// Replace swaps the chip with cfg.ID for cfg, reporting whether it was found.
func (d *Dashboard) Replace(cfg chip.Config) bool {
	for vi := range d.Views {
		for ci := range d.Views[vi].Chips {
			if d.Views[vi].Chips[ci].ID == cfg.ID {
				d.Views[vi].Chips[ci] = cfg
				return true
			}
		}
	}
	return false
}

// EnsureIDs gives every chip without an id a fresh one and reports whether any was added.
func (d *Dashboard) EnsureIDs() bool {
	changed := false
	for vi := range d.Views {
		for ci := range d.Views[vi].Chips {
			c := &d.Views[vi].Chips[ci]
			if strings.TrimSpace(c.ID) == "" {
				c.ID = uuid.NewString()
				changed = true
			}
		}
	}
	return changed
}

// Validate rejects unknown widget types and duplicate ids. Duplicate override states are
// allowed (the first record wins) and reported as warnings.
func Validate(d Dashboard, reg *chip.Registry) (warnings []string, err error) {
	seen := map[string]bool{}
	var errs []error
	for _, c := range d.Widgets() {
		label := c.ID
		if label == "" {
			label = c.Type
		}
		if c.ID != "" {
			if seen[c.ID] {
				errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateID, c.ID))
			}
			seen[c.ID] = true
		}
		if reg != nil && !reg.Has(c.Type) {
			errs = append(errs, fmt.Errorf("widget %s: %w: %q", label, chip.ErrUnknownType, c.Type))
			continue
		}
		if err := validateFields(c); err != nil {
			errs = append(errs, fmt.Errorf("widget %s: %w", label, err))
		}
		for _, state := range binding.DuplicateStates(c.States) {
			warnings = append(warnings, fmt.Sprintf("widget %s: state %q has more than one override, the first one wins", label, state))
		}
	}
	return warnings, errors.Join(errs...)
}

func validateFields(c chip.Config) error {
	switch chip.NormalizeType(c.Type) {
	case chip.TypeBattery, chip.TypeBinarySensor, chip.TypeEntityCard,
		chip.TypeClimate, chip.TypeFan, chip.TypeAirQuality, chip.TypeLastTriggered:
		if strings.TrimSpace(c.Entity) == "" {
			return errors.New("entity is required")
		}
	case chip.TypeMultiTemperatures:
		for i, item := range c.Temperatures {
			if strings.TrimSpace(item.Entity) == "" {
				return fmt.Errorf("temperatures[%d]: entity is required", i)
			}
		}
	}
	return nil
}

type format int

const (
	formatYAML format = iota
	formatTOML
	formatJSON
)

func formatOf(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML, nil
	case ".toml":
		return formatTOML, nil
	case ".json":
		return formatJSON, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Decode parses a dashboard in the format implied by path's extension.
func Decode(path string, b []byte) (Dashboard, error) {
	f, err := formatOf(path)
	if err != nil {
		return Dashboard{}, err
	}
	var d Dashboard
	switch f {
	case formatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&d); err != nil && !errors.Is(err, io.EOF) {
			return Dashboard{}, fmt.Errorf("decode %s: %w", path, err)
		}
	case formatTOML:
		dec := toml.NewDecoder(bytes.NewReader(b))
		dec.EnableUnmarshalerInterface()
		if err := dec.Decode(&d); err != nil {
			return Dashboard{}, fmt.Errorf("decode %s: %w", path, err)
		}
	case formatJSON:
		if err := json.Unmarshal(b, &d); err != nil {
			return Dashboard{}, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return d, nil
}

// Encode renders d in the format implied by path's extension.
func Encode(path string, d Dashboard) ([]byte, error) {
	f, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	switch f {
	case formatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(d); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case formatTOML:
		return toml.Marshal(d)
	default:
		return json.MarshalIndent(d, "", "  ")
	}
}

// Store reads and writes one dashboard file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the dashboard. A missing file is an empty dashboard. Chips without an id get
// one and the file is rewritten so ids stay stable across restarts.
func (s *Store) Load() (Dashboard, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Dashboard{}, nil
		}
		return Dashboard{}, err
	}
	d, err := Decode(s.path, b)
	if err != nil {
		return Dashboard{}, err
	}
	if d.EnsureIDs() {
		if err := s.Save(d); err != nil {
			return Dashboard{}, fmt.Errorf("persist generated ids: %w", err)
		}
	}
	return d, nil
}

func (s *Store) Save(d Dashboard) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	b, err := Encode(s.path, d)
	if err != nil {
		return err
	}
	return writeAtomically(s.path, b)
}
