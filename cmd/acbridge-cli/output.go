package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"google.golang.org/protobuf/types/known/structpb"
)

type outputMode struct {
	json bool
}

func (o outputMode) printJSON(value any) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fatal("format json", err)
	}
	fmt.Println(string(data))
}

func (o outputMode) table(rows [][]string) {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

// done prints the acknowledgement for a command with an empty response.
func (o outputMode) done(fields map[string]any, text string) {
	if o.json {
		fields["status"] = "ok"
		o.printJSON(fields)
		return
	}
	fmt.Println("ok: " + text)
}

// formatValue renders a Struct value for tables; missing values print as "-".
func formatValue(v *structpb.Value) string {
	if v == nil {
		return "-"
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		if kind.StringValue == "" {
			return "-"
		}
		return kind.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(kind.NumberValue, 'f', -1, 64)
	case *structpb.Value_BoolValue:
		return strconv.FormatBool(kind.BoolValue)
	default:
		return "-"
	}
}
