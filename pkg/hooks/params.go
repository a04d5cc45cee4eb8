package hooks

import (
	"bytes"
	"regexp"
	"text/template"

	"github.com/mhrivnak/orderflow/pkg/errdef"
)

var paramName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Substitute replaces every {{ name }} in text with the value of the parameter name.
// Referencing an unknown parameter is an error.
func Substitute(text string, params map[string]string) (string, error) {
	funcs := template.FuncMap{}
	for name, value := range params {
		if !paramName.MatchString(name) {
			return "", errdef.NewBadRequest("invalid parameter name %q", name)
		}
		v := value
		funcs[name] = func() string { return v }
	}

	tmpl, err := template.New("param").Option("missingkey=error").Funcs(funcs).Parse(text)
	if err != nil {
		return "", errdef.NewBadRequest("failed to parse %q: %v", text, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, nil); err != nil {
		return "", errdef.NewBadRequest("failed to substitute %q: %v", text, err)
	}
	return buf.String(), nil
}

// SubstituteAll applies Substitute to every value of values.
func SubstituteAll(values, params map[string]string) (map[string]string, error) {
	result := make(map[string]string, len(values))
	for key, value := range values {
		substituted, err := Substitute(value, params)
		if err != nil {
			return nil, err
		}
		result[key] = substituted
	}
	return result, nil
}
