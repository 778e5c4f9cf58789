// Package report renders the markdown comments posted after an upgrade run.
package report

import (
	"bytes"
	"strings"
	"text/template"
)

// Package is one entry of an apt change set.
type Package struct {
	Name      string
	Installed string
	Candidate string
}

// AptChanges is the planned apt change set for one machine.
type AptChanges struct {
	Machine string
	Upgrade []Package
	Install []Package
	Remove  []Package
}

// ScoopApp is one row of `scoop status`.
type ScoopApp struct {
	Name      string
	Installed string
	Latest    string
	Missing   string
	Info      string
}

// ScoopChanges lists the apps scoop reported as outdated.
type ScoopChanges struct {
	Machine string
	Apps    []ScoopApp
}

var funcs = template.FuncMap{
	"cell": func(s string) string { return strings.ReplaceAll(s, "|", `\|`) },
}

var aptTmpl = template.Must(template.New("apt").Funcs(funcs).Parse(`## {{ .Machine }} : apt upgrade

| Type | Count |
| ---- | ---- |
| Upgrade | {{ len .Upgrade }} |
| Install | {{ len .Install }} |
| Remove | {{ len .Remove }} |

### Upgrades

{{ range .Upgrade }}- ` + "`{{ .Name }}` (`{{ .Installed }}` -> `{{ .Candidate }}`)" + `
{{ end }}
### Installations

{{ range .Install }}- ` + "`{{ .Name }}` (`{{ .Candidate }}`)" + `
{{ end }}
### Removals

{{ range .Remove }}- ` + "`{{ .Name }}` (`{{ .Installed }}`)" + `
{{ end }}`))

var scoopTmpl = template.Must(template.New("scoop").Funcs(funcs).Parse(`## {{ .Machine }} : scoop upgrade

### Upgrades

{{ if .Apps -}}
| Name | Installed Version | Latest Version | Missing Dependencies | Info |
| --- | --- | --- | --- | --- |
{{ range .Apps }}| {{ cell .Name }} | {{ cell .Installed }} | {{ cell .Latest }} | {{ cell .Missing }} | {{ cell .Info }} |
{{ end }}{{ else -}}
No upgrades available.
{{ end }}`))

// Apt renders the apt change-set comment.
func Apt(c AptChanges) (string, error) {
	return render(aptTmpl, c)
}

// Scoop renders the scoop status comment.
func Scoop(c ScoopChanges) (string, error) {
	return render(scoopTmpl, c)
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}
