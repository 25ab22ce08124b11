// Package render implements the replay rendering service for the Card
// Battle System. It turns a battle result into a self-contained HTML replay
// page, stores it on disk keyed by battle id, and serves it over HTTP. The
// render endpoint is idempotent: re-rendering a known battle returns the
// original handle.
package render

import (
	"bytes"
	"fmt"
	"html/template"

	"card-battle-system/pkg/models"
)

// replayTemplate is the whole replay page. Kept inline so the renderer
// binary is self-contained.
const replayTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Battle Replay {{.BattleID}}</title>
<style>
body { font-family: monospace; background: #1a1a2e; color: #e0e0e0; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { color: #f0c040; font-size: 1.4em; }
.vitals { display: flex; justify-content: space-between; margin: 1em 0; }
.fighter { font-weight: bold; }
table { width: 100%; border-collapse: collapse; }
th, td { padding: 4px 8px; text-align: left; border-bottom: 1px solid #333; }
.crit { color: #ff5555; font-weight: bold; }
.winner { margin-top: 1.5em; font-size: 1.2em; color: #50fa7b; }
.tie { margin-top: 1.5em; font-size: 1.2em; color: #8be9fd; }
</style>
</head>
<body>
<h1>Battle Replay</h1>
<div class="vitals">
<span class="fighter">{{.NameA}} ({{.Result.StartingA}} HP)</span>
<span>vs</span>
<span class="fighter">{{.NameB}} ({{.Result.StartingB}} HP)</span>
</div>
<table>
<tr><th>Turn</th><th>Attacker</th><th>Damage</th><th>{{.NameA}}</th><th>{{.NameB}}</th></tr>
{{range .Result.Exchanges}}<tr>
<td>{{.Turn}}</td>
<td>{{if eq .Attacker 1}}{{$.NameA}}{{else}}{{$.NameB}}{{end}}{{if .Critical}} <span class="crit">CRIT!</span>{{end}}</td>
<td>{{.Damage}}</td>
<td>{{.VitalityA}}</td>
<td>{{.VitalityB}}</td>
</tr>
{{end}}</table>
{{if .WinnerName}}<div class="winner">Winner: {{.WinnerName}}</div>
{{else}}<div class="tie">The battle ends in a draw.</div>
{{end}}</body>
</html>
`

var pageTmpl = template.Must(template.New("replay").Parse(replayTemplate))

// pageData is the template context for one replay page.
type pageData struct {
	BattleID   string
	NameA      string
	NameB      string
	Result     models.BattleResult
	WinnerName string
}

// BuildReplayPage renders the HTML replay for a battle result. Participant
// names pass through html/template escaping, so chat-supplied names are safe
// to embed.
func BuildReplayPage(result models.BattleResult, a, b models.Participant) ([]byte, error) {
	data := pageData{
		BattleID: result.ID,
		NameA:    a.Name,
		NameB:    b.Name,
		Result:   result,
	}
	switch result.Winner {
	case models.SideA:
		data.WinnerName = a.Name
	case models.SideB:
		data.WinnerName = b.Name
	}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render replay page: %w", err)
	}
	return buf.Bytes(), nil
}
