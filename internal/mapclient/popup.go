package mapclient

import (
	"bytes"
	"html/template"
	"time"
)

var popupTemplates = template.Must(template.New("popups").Funcs(template.FuncMap{
	"clock": func(unix int64) string {
		return time.Unix(unix, 0).Local().Format("15:04")
	},
}).Parse(`
{{define "stop"}}<h2>{{.Name}}</h2>{{end}}
{{define "vehicle-loading"}}<h2>{{.Line}} {{.TripID}}</h2><p>Loading upcoming stops...</p>{{end}}
{{define "vehicle"}}<h2>{{.Vehicle.Line}} {{.Vehicle.TripID}}</h2>
{{- if .Vehicle.LicensePlate}}<p class="plate">{{.Vehicle.LicensePlate}}</p>{{end}}
{{- if .Stops}}<ol class="upcoming">
{{- range .Stops}}<li data-stop-id="{{.StopID}}">{{if .StopName}}{{.StopName}}{{else}}{{.StopID}}{{end}}
{{- if .PredictedArrival}} <span class="eta">{{clock .PredictedArrival}}</span>{{else if .ArrivalTime}} <span class="scheduled">{{.ArrivalTime}}</span>{{end}}</li>
{{- end}}</ol>
{{- else}}<p>No upcoming stops.</p>{{end}}
{{- end}}
`))

func render(name string, data any) string {
	var buf bytes.Buffer
	if err := popupTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return ""
	}
	return buf.String()
}

func StopPopup(stop Stop) string {
	return render("stop", stop)
}

func LoadingPopup(vehicle VehiclePosition) string {
	return render("vehicle-loading", vehicle)
}

func VehiclePopup(vehicle VehiclePosition, stops []UpcomingStop) string {
	return render("vehicle", struct {
		Vehicle VehiclePosition
		Stops   []UpcomingStop
	}{vehicle, stops})
}
