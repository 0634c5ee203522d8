package notify

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/pesio-ai/be-print-rfq/internal/matching"
)

const rfqTemplate = `Hello {{greeting .}},

{{broker .}} is requesting a quote for job {{.JobNumber}}{{with .JobTitle}} "{{.}}"{{end}}.
Please quote against reference {{.RequestNumber}}.
{{with specLines .Spec}}
Specification:
{{range .}}  {{.}}
{{end}}{{end}}
Required services:
{{range .RequiredServices}}  - {{.Label}}
{{end}}{{with .LineItems}}
Line items:
{{range $i, $l := .}}  {{inc $i}}. {{$l.Description}}{{if $l.Quantity}} (qty {{$l.Quantity}}){{end}}
{{end}}{{end}}
Please reply{{with .DueDate}} by {{date .}}{{end}} with your total cost, lead time in days and any notes{{with .ReplyTo}} to {{.}}{{end}}.

Thank you,
{{broker .}}
`

// TemplateRenderer renders a fixed plain-text RFQ email.
type TemplateRenderer struct {
	tmpl *template.Template
}

// NewTemplateRenderer creates the default renderer.
func NewTemplateRenderer() *TemplateRenderer {
	funcs := template.FuncMap{
		"greeting": func(r *Request) string {
			if s := strings.TrimSpace(r.VendorContact); s != "" {
				return s
			}
			if s := strings.TrimSpace(r.VendorName); s != "" {
				return s
			}
			return "there"
		},
		"broker": func(r *Request) string {
			if s := strings.TrimSpace(r.BrokerName); s != "" {
				return s
			}
			return "Our team"
		},
		"specLines": specLines,
		"inc":       func(i int) int { return i + 1 },
		"date":      func(t *time.Time) string { return t.Format("Monday, 2 January 2006") },
	}
	return &TemplateRenderer{
		tmpl: template.Must(template.New("rfq").Funcs(funcs).Parse(rfqTemplate)),
	}
}

// Render implements Renderer.
func (r *TemplateRenderer) Render(_ context.Context, req *Request) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, req); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func specLines(spec matching.JobSpec) []string {
	var lines []string
	add := func(label, value string) {
		if v := strings.TrimSpace(value); v != "" {
			lines = append(lines, label+": "+v)
		}
	}
	add("Product", spec.ProductType)
	add("Finished size", spec.FinishedSize)
	add("Paper stock", spec.PaperStock)
	add("Colours", spec.Colors)
	if spec.Quantity != nil {
		add("Quantity", strconv.Itoa(*spec.Quantity))
	}
	if spec.PageCount != nil {
		add("Page count", strconv.Itoa(*spec.PageCount))
	}
	add("Finishing", spec.Finishing)
	add("Binding", spec.BindingStyle)
	add("Coating", spec.Coating)
	add("Notes", spec.Notes)
	return lines
}
