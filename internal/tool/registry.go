package tool

import (
	"log/slog"

	"atproto-mcp/internal/domain"
)

// Group is a named set of tools registered together.
type Group struct {
	Name  string
	Tools []domain.Tool
}

// Catalog is the read-only, ordered registry of tools. It is built once by
// NewCatalog and never mutated afterwards, so concurrent reads need no lock.
type Catalog struct {
	ordered []domain.Tool
	byName  map[string]domain.Tool
}

// NewCatalog registers the groups in order. A name registered twice is a
// configuration error naming both groups; nothing is silently shadowed.
func NewCatalog(logger *slog.Logger, groups ...Group) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]domain.Tool)}
	owner := make(map[string]string)
	for _, g := range groups {
		for _, t := range g.Tools {
			name := t.Name()
			if name == "" {
				return nil, domain.ConfigErrorf("group %s: tool with empty name", g.Name)
			}
			if prev, exists := owner[name]; exists {
				return nil, domain.ConfigErrorf("duplicate tool %q in group %s (already registered by group %s)", name, g.Name, prev)
			}
			owner[name] = g.Name
			c.byName[name] = t
			c.ordered = append(c.ordered, t)
		}
		if logger != nil {
			logger.Debug("registered tool group", "group", g.Name, "tools", len(g.Tools))
		}
	}
	return c, nil
}

// Lookup returns the tool registered under name.
func (c *Catalog) Lookup(name string) (domain.Tool, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// List returns the tools in registration order.
func (c *Catalog) List() []domain.Tool {
	out := make([]domain.Tool, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Definitions returns the listing view of every tool in registration order.
func (c *Catalog) Definitions() []domain.ToolDefinition {
	defs := make([]domain.ToolDefinition, 0, len(c.ordered))
	for _, t := range c.ordered {
		defs = append(defs, domain.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.ordered))
	for _, t := range c.ordered {
		names = append(names, t.Name())
	}
	return names
}

func (c *Catalog) Len() int { return len(c.ordered) }
