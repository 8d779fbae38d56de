// Package catalog holds the traffic sign reference data used to interpret
// detections. A Catalog is immutable once built and safe for concurrent use.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type Category string

const (
	CategorySpeedLimit    Category = "speed_limit"
	CategoryProhibition   Category = "prohibition"
	CategoryWarning       Category = "warning"
	CategoryMandatory     Category = "mandatory"
	CategoryInformational Category = "informational"
)

// Kind describes how a sign affects the active posted limit.
type Kind string

const (
	KindNone         Kind = ""
	KindLimit        Kind = "limit"
	KindEndLimit     Kind = "end_limit"
	KindEndAllLimits Kind = "end_all_limits"
)

type Entry struct {
	ID       int      `json:"class_id" yaml:"class_id"`
	Name     string   `json:"name" yaml:"name"`
	Category Category `json:"category" yaml:"category"`
	Kind     Kind     `json:"kind,omitempty" yaml:"kind,omitempty"`
	LimitKPH *int     `json:"limit_kph" yaml:"limit_kph,omitempty"`
	Aliases  []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

func (e Entry) IsSpeedLimit() bool {
	return e.Kind == KindLimit && e.LimitKPH != nil
}

var ErrUnknownSignClass = errors.New("unknown sign class")

type UnknownSignClassError struct {
	ClassID int
	Name    string
}

func (e *UnknownSignClassError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("unknown sign class %q", e.Name)
	}
	return fmt.Sprintf("unknown sign class %d", e.ClassID)
}

func (e *UnknownSignClassError) Unwrap() error {
	return ErrUnknownSignClass
}

type Catalog struct {
	byID   map[int]Entry
	byName map[string]int
	ids    []int
}

// New validates entries and indexes them by id, name and aliases.
func New(entries []Entry) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, errors.New("catalog has no entries")
	}
	c := &Catalog{
		byID:   make(map[int]Entry, len(entries)),
		byName: make(map[string]int, len(entries)*2),
	}
	for _, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("class %d: empty name", e.ID)
		}
		if _, dup := c.byID[e.ID]; dup {
			return nil, fmt.Errorf("class %d: duplicate id", e.ID)
		}
		if e.Kind == KindLimit && (e.LimitKPH == nil || *e.LimitKPH <= 0) {
			return nil, fmt.Errorf("class %d: limit sign requires positive limit_kph", e.ID)
		}
		if e.Kind != KindLimit && e.LimitKPH != nil {
			return nil, fmt.Errorf("class %d: limit_kph set on non-limit sign", e.ID)
		}
		if e.Category == "" {
			e.Category = CategoryInformational
		}
		e.Aliases = append([]string(nil), e.Aliases...)
		c.byID[e.ID] = e
		c.ids = append(c.ids, e.ID)
		for _, name := range append([]string{e.Name}, e.Aliases...) {
			key := NormalizeName(name)
			if prev, ok := c.byName[key]; ok && prev != e.ID {
				return nil, fmt.Errorf("class %d: name %q already used by class %d", e.ID, name, prev)
			}
			c.byName[key] = e.ID
		}
	}
	sort.Ints(c.ids)
	return c, nil
}

func (c *Catalog) Lookup(id int) (Entry, error) {
	e, ok := c.byID[id]
	if !ok {
		return Entry{}, &UnknownSignClassError{ClassID: id}
	}
	return e, nil
}

// Resolve maps a sign class name, alias or numeric id string to its entry.
func (c *Catalog) Resolve(name string) (Entry, error) {
	key := NormalizeName(name)
	if id, ok := c.byName[key]; ok {
		return c.byID[id], nil
	}
	if id, err := strconv.Atoi(key); err == nil {
		if e, ok := c.byID[id]; ok {
			return e, nil
		}
	}
	return Entry{}, &UnknownSignClassError{ClassID: -1, Name: name}
}

func (c *Catalog) All() []Entry {
	out := make([]Entry, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.byID[id])
	}
	return out
}

func (c *Catalog) SpeedLimits() []Entry {
	out := make([]Entry, 0)
	for _, id := range c.ids {
		if e := c.byID[id]; e.IsSpeedLimit() {
			out = append(out, e)
		}
	}
	return out
}

func (c *Catalog) Len() int {
	return len(c.ids)
}

func NormalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer(" ", "_", "-", "_").Replace(n)
	return n
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// Default returns the built-in GTSRB catalog. The same instance is shared by
// every caller.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := New(gtsrbEntries())
		if err != nil {
			panic("catalog: invalid built-in entries: " + err.Error())
		}
		defaultCat = c
	})
	return defaultCat
}

type fileFormat struct {
	Classes []Entry `yaml:"classes"`
}

// LoadFile reads a YAML catalog. An empty path yields the built-in catalog.
func LoadFile(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return New(f.Classes)
}
