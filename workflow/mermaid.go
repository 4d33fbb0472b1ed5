package workflow

import (
	"fmt"
	"sort"
	"strings"
)

// Mermaid 导出 flowchart 文本。条件边以路由键作为边标签。
func (g *CompiledGraph[S, U]) Mermaid() string {
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")
	sb.WriteString("    __start__([start]) --> " + g.entry + "\n")
	for _, from := range g.order {
		if to, ok := g.edges[from]; ok {
			fmt.Fprintf(&sb, "    %s --> %s\n", from, mermaidNode(to))
			continue
		}
		b := g.branches[from]
		keys := make([]string, 0, len(b.targets))
		for k := range b.targets {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "    %s -.->|%s| %s\n", from, k, mermaidNode(b.targets[k]))
		}
	}
	return sb.String()
}

func mermaidNode(name string) string {
	if name == End {
		return "__end__([end])"
	}
	return name
}
