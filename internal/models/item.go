package models

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalidCatalog = errors.New("invalid catalog")

// Item is one reward in the case. Tickets is its weight in the draw.
type Item struct {
	ID      string `json:"id" yaml:"id"`
	Title   string `json:"title" yaml:"title"`
	Tickets uint64 `json:"tickets" yaml:"tickets"`
}

// Catalog is the ordered reward list. It is never modified after load.
type Catalog []Item

func DefaultCatalog() Catalog {
	return Catalog{
		{ID: "L1", Title: "1 000 000", Tickets: 1},
		{ID: "R1", Title: "500 000", Tickets: 2},
		{ID: "R2", Title: "300 000", Tickets: 4},
		{ID: "C1", Title: "10 000", Tickets: 3000},
		{ID: "C2", Title: "10 000", Tickets: 3000},
		{ID: "C3", Title: "10 000", Tickets: 3000},
	}
}

func (c Catalog) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidCatalog)
	}

	seen := make(map[string]bool, len(c))
	var total uint64
	for i, it := range c {
		if it.ID == "" {
			return fmt.Errorf("%w: item %d has no id", ErrInvalidCatalog, i)
		}
		if seen[it.ID] {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidCatalog, it.ID)
		}
		seen[it.ID] = true

		if it.Tickets < 1 {
			return fmt.Errorf("%w: item %q needs at least one ticket", ErrInvalidCatalog, it.ID)
		}
		if total+it.Tickets < total {
			return fmt.Errorf("%w: ticket total overflows", ErrInvalidCatalog)
		}
		total += it.Tickets
	}

	return nil
}

func (c Catalog) TotalTickets() uint64 {
	var total uint64
	for _, it := range c {
		total += it.Tickets
	}
	return total
}

type catalogFile struct {
	Items []Item `yaml:"items"`
}

// LoadCatalog reads a YAML catalog from path, or returns the built-in
// catalog when path is empty.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	catalog := Catalog(file.Items)
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return catalog, nil
}
