package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/gvance/cyclebridge/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"linkOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Cycle Bridge</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.up { color: green; font-weight: bold; }
.down { color: red; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Cycle Bridge</h1>

<h2>Sensors</h2>
<table>
<tr><th>BLE Link</th><td class="{{if eq (linkOrUnknown .Link) "SUBSCRIBED"}}up{{else if eq (linkOrUnknown .Link) "UNKNOWN"}}unknown{{else}}down{{end}}">{{linkOrUnknown .Link}}{{if .LinkDetail}} ({{.LinkDetail}}){{end}}</td></tr>
{{if .Fused.Heading}}<tr><th>Heading</th><td>{{printf "%.1f" .Fused.Heading.Heading}}&deg;</td></tr>{{else}}<tr><th>Heading</th><td class="unknown">no data</td></tr>{{end}}
{{if .Fused.Cadence}}<tr><th>Wheel Revs</th><td>{{.Fused.Cadence.CumulativeRevs}}</td></tr>
<tr><th>Speed</th><td>{{printf "%.1f" .Fused.SensorSpeed}} km/h</td></tr>
<tr><th>Stall Count</th><td>{{.Fused.Stall.NoGrowthCount}}</td></tr>{{else}}<tr><th>Wheel</th><td class="unknown">no data</td></tr>{{end}}
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Control</h2>
<table>
<tr><th>Steer</th><td>{{printf "%.3f" .Command.Steer}}</td></tr>
<tr><th>Throttle</th><td>{{printf "%.3f" .Command.Throttle}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Simulator</th><td>{{.Config.SimURL}}</td></tr>
<tr><th>Heading Feed</th><td>{{.Config.ListenAddr}}</td></tr>
</table>

<h2>Counts</h2>
<table>
<tr><th>Heading Records</th><td>{{.Counts.HeadingRecords}}</td></tr>
<tr><th>Framing Errors</th><td>{{.Counts.FramingErrors}}</td></tr>
<tr><th>BLE Notifications</th><td>{{.Counts.Notifications}}</td></tr>
<tr><th>Decode Errors</th><td>{{.Counts.DecodeErrors}}</td></tr>
<tr><th>Actuator Errors</th><td>{{.Counts.ActuatorErrors}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Downsample</th><td>every {{.Config.Every}} ticks</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() and Ready() methods but the template needs fields.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Ready  bool
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Ready:    snap.Ready(),
	}
	indexTmpl.Execute(w, data)
}
