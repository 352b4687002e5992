package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// output writes command results as text or JSON.
type output struct {
	format string
	w      io.Writer
}

func newOutput(opts *RootOptions, cmd *cobra.Command) *output {
	return &output{format: opts.Format, w: cmd.OutOrStdout()}
}

func (o *output) isJSON() bool { return o.format == "json" }

func (o *output) json(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// names prints one name per line, or a JSON array.
func (o *output) names(names []string) error {
	if o.isJSON() {
		return o.json(names)
	}
	for _, n := range names {
		if _, err := fmt.Fprintln(o.w, n); err != nil {
			return err
		}
	}
	return nil
}

// table prints rows under an upper-cased header.
func (o *output) table(header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(header, "\t")))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}

// cell formats a scanned value for text output.
func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case string:
		return x
	}
	return fmt.Sprint(v)
}
