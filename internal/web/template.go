package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/Xylopyrographer/CabinMonitor/internal/status"
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
	"when": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02 15:04:05Z")
	},
	"yesno": func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Cabin Monitor{{if .Config.DeviceName}} - {{.Config.DeviceName}}{{end}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.bad { color: red; }
.muted { color: #888; }
</style>
</head>
<body>
<h1>Cabin Monitor{{if .Config.DeviceName}}: {{.Config.DeviceName}}{{end}}</h1>

<h2>Device</h2>
<table>
<tr><th>State</th><td id="state">{{if .Device.State}}{{.Device.State}}{{else}}UNKNOWN{{end}}</td></tr>
<tr><th>Monitoring</th><td class="{{if .Device.MonitoringEnabled}}ok{{else}}bad{{end}}">{{if .Device.MonitoringEnabled}}enabled{{else}}disabled until {{when .Device.ResumesAt}}{{end}}</td></tr>
<tr><th>Last activity</th><td>{{when .Device.LastActivity}}</td></tr>
<tr><th>Last capture</th><td>{{when .Device.LastCapture}}</td></tr>
<tr><th>Captures</th><td>{{.Device.Captures}}</td></tr>
<tr><th>Stored</th><td>{{.Device.Stored}} ({{.Device.Confirmed}} confirmed)</td></tr>
</table>

<h2>Upload</h2>
<table>
<tr><th>Last cycle</th><td>{{if .Device.LastUpload}}{{.Device.LastUpload.Label}} ({{.Device.LastUpload.Succeeded}}/{{.Device.LastUpload.Attempted}}) at {{when .Device.LastUploadAt}}{{else}}none{{end}}</td></tr>
<tr><th>Interrupted</th><td>{{yesno .Device.UploadInterrupted}}</td></tr>
<tr><th>Server</th><td class="{{if .Device.ProbeOK}}ok{{else if .Device.ProbeKnown}}bad{{else}}muted{{end}}">{{if not .Device.ProbeKnown}}not checked{{else if .Device.ProbeOK}}reachable{{else}}unreachable{{end}} ({{when .Device.LastProbe}})</td></tr>
<tr><th>Transport</th><td>{{.Config.UploadTransport}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
{{with .Modem}}<tr><th>Modem</th><td class="{{if .Online}}ok{{else}}bad{{end}}">{{if .Online}}{{.Port}}{{else}}offline{{end}}</td></tr>
<tr><th>Registered</th><td>{{yesno .Registered}}</td></tr>
<tr><th>Data context</th><td>{{yesno .ContextOpen}}</td></tr>{{end}}
<tr><th>Time sync</th><td>{{when .Device.LastTimeSync}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}ok{{else}}bad{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}{{if .MQTTBuffered}}, {{.MQTTBuffered}} buffered{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{when .StartTime}}</td></tr>
<tr><th>Loop</th><td>{{.Config.LoopMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> &middot; <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
