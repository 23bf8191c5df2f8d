package notify

import (
	"strings"
	"text/template"
	"time"

	"kapantask/domain"
)

var funcs = template.FuncMap{
	"when": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 UTC") },
}

var taskTemplate = template.Must(template.New("task").Funcs(funcs).Parse(`A new task has been assigned to {{.AssignedTo.Name}}.

Title: {{.Title}}
Status: {{.Status.Label}}
Due: {{when .DueDate}}
Assigned by: {{.AssignedBy.DisplayName}}

{{.Description}}
`))

var commentTemplate = template.Must(template.New("comment").Funcs(funcs).Parse(`{{.User.DisplayName}} commented on "{{.Task.Title}}".

{{.Content}}

Task status: {{.Task.Status.Label}}
Due: {{when .Task.DueDate}}
Department: {{.Task.AssignedTo.Name}}
`))

func renderTask(t domain.Task) (string, error) {
	return execute(taskTemplate, t)
}

func renderComment(c domain.Comment) (string, error) {
	return execute(commentTemplate, c)
}

func execute(tmpl *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
