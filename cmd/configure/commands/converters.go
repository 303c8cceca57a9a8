package commands

import (
	"fmt"
	"strings"

	"github.com/benvon/logstream/internal/converter"
	"github.com/benvon/logstream/internal/webconfig"
	"github.com/spf13/cobra"
)

// NewConvertersCmd creates the converters command.
func NewConvertersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "converters",
		Short: "Inspect the message converter list",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List message converters in resolution order",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for i, c := range webconfig.MessageConverters().All() {
				types := c.SupportedMediaTypes()
				names := make([]string, len(types))
				for j, t := range types {
					names[j] = t.String()
				}
				if _, err := fmt.Fprintf(out, "%d. %s\n   %s\n", i+1, converterName(c), strings.Join(names, ", ")); err != nil {
					return err
				}
			}
			return nil
		},
	})
	return cmd
}

func converterName(c converter.MessageConverter) string {
	switch c := c.(type) {
	case *converter.StringConverter:
		return "string (charset " + c.Charset() + ")"
	case *converter.JSONConverter:
		return "json"
	default:
		return fmt.Sprintf("%T", c)
	}
}
