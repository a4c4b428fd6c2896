package messaging

import (
	"strings"

	"github.com/BTreeMap/PrimeBot/internal/models"
)

// RenderMessage flattens an assistant message into plain chat text: plans become
// numbered exercise lists and navigation targets or actions become labelled lines.
func RenderMessage(m models.Message) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(m.Text))

	p := m.Payload
	if p == nil {
		return b.String()
	}
	switch p.Kind {
	case models.PayloadPlan:
		if p.Plan != nil {
			appendBlock(&b, p.Plan.Render())
		}
	case models.PayloadNavigation:
		if p.Navigation != nil {
			appendBlock(&b, "👉 "+p.Navigation.Label+": "+p.Navigation.Link)
		}
	case models.PayloadActions:
		lines := make([]string, 0, len(p.Actions))
		for _, a := range p.Actions {
			line := "👉 " + a.Label
			if a.Path != "" {
				line += ": " + a.Path
			}
			lines = append(lines, line)
		}
		if len(lines) > 0 {
			appendBlock(&b, strings.Join(lines, "\n"))
		}
	}
	return b.String()
}

func appendBlock(b *strings.Builder, block string) {
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString(block)
}
