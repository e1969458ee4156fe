package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	gojson "github.com/goccy/go-json"

	"rigz/pkg/runtime"
	"rigz/pkg/value"
)

type OutputFormat string

const (
	OutputPrint OutputFormat = "print"
	OutputJSON  OutputFormat = "json"
	OutputLog   OutputFormat = "log"
)

func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return OutputPrint, nil
	case OutputPrint, OutputJSON, OutputLog:
		return f, nil
	default:
		return "", fmt.Errorf("invalid output format %q", s)
	}
}

// WriteResult reports the last value of each program, in the order of names.
func WriteResult(w io.Writer, log *slog.Logger, format OutputFormat, names []string, res runtime.Result) error {
	switch format {
	case OutputJSON:
		out := make(map[string]any, len(res.Values))
		for name, v := range res.Values {
			out[name] = v.Plain()
		}
		data, err := gojson.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case OutputLog:
		for _, name := range names {
			log.Info("Result", "program", name, "value", resultOf(res, name).String())
		}
		return nil
	default:
		fmt.Fprintln(w, "Results:")
		for _, name := range names {
			if _, err := fmt.Fprintf(w, "\t%s: %s\n", name, resultOf(res, name)); err != nil {
				return err
			}
		}
		return nil
	}
}

func resultOf(res runtime.Result, name string) value.Value {
	if v, ok := res.Values[name]; ok {
		return v
	}
	return value.None()
}
