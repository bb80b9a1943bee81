package catalog

import (
	"fmt"

	"github.com/schoolops/caseflow/internal/domain/workflow"
)

// Catalog is an immutable registry of workflow definitions keyed by
// category. It is built once at startup from validated definitions and is
// safe for concurrent reads without locking.
type Catalog struct {
	definitions map[string]workflow.Definition
}

// New builds a catalog from the given definitions, validating each one and
// rejecting duplicate categories. Any violation is a startup failure.
func New(defs []workflow.Definition) (*Catalog, error) {
	definitions := make(map[string]workflow.Definition, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, exists := definitions[def.Category]; exists {
			return nil, fmt.Errorf("%w: duplicate category %q",
				workflow.ErrInvalidDefinition, def.Category)
		}
		definitions[def.Category] = def
	}

	return &Catalog{definitions: definitions}, nil
}

// Lookup returns the definition for a category. An unknown category is not
// an error: it means the case has no gated lifecycle.
func (c *Catalog) Lookup(category string) (workflow.Definition, bool) {
	def, ok := c.definitions[category]
	return def, ok
}

// Categories returns the configured category identifiers.
func (c *Catalog) Categories() []string {
	categories := make([]string, 0, len(c.definitions))
	for category := range c.definitions {
		categories = append(categories, category)
	}
	return categories
}

// Len returns the number of configured categories.
func (c *Catalog) Len() int {
	return len(c.definitions)
}
