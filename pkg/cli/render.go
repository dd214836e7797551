package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-querykit/pkg/models"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"

	errorReportPrefix = "Error executing query"
)

var (
	heading = color.New(color.FgCyan, color.Bold)
	warning = color.New(color.FgYellow)
	success = color.New(color.FgGreen)
	failure = color.New(color.FgRed, color.Bold)
)

// render writes v as JSON or YAML, or calls text for the text format.
// YAML goes through JSON first so both formats share the json tags.
func (a *app) render(w io.Writer, v any, text func(io.Writer) error) error {
	switch a.output {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(w)
	}
}

func writeWarnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		warning.Fprintln(w, "! "+msg)
	}
}

func writeResult(w io.Writer, result *models.QueryResult) {
	if result.SQL != "" {
		heading.Fprintln(w, "SQL:")
		fmt.Fprintln(w, result.SQL)
		fmt.Fprintln(w)
	}
	switch {
	case strings.HasPrefix(result.Report, errorReportPrefix):
		failure.Fprintln(w, result.Report)
	case !result.HasData():
		success.Fprintln(w, result.Report)
	default:
		fmt.Fprintln(w, result.Report)
	}
	if len(result.Warnings) > 0 {
		fmt.Fprintln(w)
		writeWarnings(w, result.Warnings)
	}
}

// writeYAML renders v as YAML inside text output.
func writeYAML(w io.Writer, v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
