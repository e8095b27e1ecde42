package graph

import (
	"fmt"
	"strings"
)

// CycleError represents a declared depends-on cycle between components.
type CycleError struct {
	Name string
	Path []string
}

func (e *CycleError) Error() string {
	var b strings.Builder
	b.WriteString("depends-on cycle detected:\n\n")

	if len(e.Path) == 0 {
		b.WriteString(fmt.Sprintf("    %s\n", e.Name))
		b.WriteString("      ↓\n")
		b.WriteString(fmt.Sprintf("    %s (cycle)\n", e.Name))
	} else {
		for i, name := range e.Path {
			b.WriteString(fmt.Sprintf("    %s\n", name))
			if i < len(e.Path)-1 {
				b.WriteString("      ↓\n")
			}
		}
	}

	b.WriteString("\nTo resolve this:\n")
	b.WriteString("  • Remove one of the depends-on declarations\n")
	b.WriteString("  • Restructure so initialization order is acyclic\n")

	return b.String()
}
