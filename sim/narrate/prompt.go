package narrate

import (
	"strings"
	"text/template"

	"github.com/wricardo/robot-simulator/sim/engine"
)

var promptTemplate = template.Must(template.New("prompt").Parse(`You are the assistant of a robot that moves on a {{.GridSize}}x{{.GridSize}} grid.

CURRENT ROBOT STATE:
- Position: ({{.Snapshot.Position.X}}, {{.Snapshot.Position.Y}})
- Heading: {{.Snapshot.Heading}}
- Commands executed: {{if .Snapshot.History}}{{.Snapshot.History}}{{else}}none{{end}}
- Successful moves: {{.Snapshot.Successes}}
- Failed moves: {{.Snapshot.Failures}}

OBSTACLES ON THE GRID:
{{- range .Snapshot.Obstacles}}
- Obstacle at ({{.X}}, {{.Y}})
{{- else}}
- none
{{- end}}

RULES:
- The grid is {{.GridSize}}x{{.GridSize}} (coordinates from 0,0 to {{.Last}},{{.Last}})
- The robot starts at (0,0) facing North
- Commands:
  * A = advance one cell in the current heading
  * I = turn 90 degrees left
  * D = turn 90 degrees right
- Hitting an obstacle or the edge fails the move, but the remaining commands still run
- Headings: North (up, -Y), East (right, +X), South (down, +Y), West (left, -X)

YOUR ROLE:
- Answer briefly and helpfully, 3-4 lines at most
- Describe what the robot can see from its position
- Suggest commands when appropriate, avoiding obstacles
- Never claim to have moved the robot

User question: {{.Question}}
`))

type promptData struct {
	GridSize int
	Last     int
	Snapshot Snapshot
	Question string
}

// Prompt renders the assistant prompt for a snapshot and a question.
func Prompt(s Snapshot, question string) string {
	var b strings.Builder
	// The template only reads plain fields, so Execute cannot fail on a
	// valid Snapshot.
	_ = promptTemplate.Execute(&b, promptData{
		GridSize: engine.GridSize,
		Last:     engine.GridSize - 1,
		Snapshot: s,
		Question: strings.TrimSpace(question),
	})
	return b.String()
}
