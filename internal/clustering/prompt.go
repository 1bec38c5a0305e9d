package clustering

import (
	_ "embed"
	"strings"
	"text/template"
)

//go:embed prompt.tmpl
var promptSource string

const instructions = "You are an analytics assistant. Output valid JSON only, with no commentary."

var promptTemplate = template.Must(template.New("cluster").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(promptSource))

type promptData struct {
	TopN      int
	Questions []string
}

func renderPrompt(questions []string, topN int) (string, error) {
	var b strings.Builder
	if err := promptTemplate.Execute(&b, promptData{TopN: topN, Questions: questions}); err != nil {
		return "", err
	}
	return b.String(), nil
}
