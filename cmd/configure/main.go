package main

import (
	"fmt"
	"os"

	"github.com/benvon/logstream/cmd/configure/commands"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "logstream-configure",
		Short: "Configuration tool for the logstream API",
		Long:  "CLI tool for inspecting the web configuration: CORS mappings and message converters",
	}

	rootCmd.AddCommand(commands.NewCorsCmd())
	rootCmd.AddCommand(commands.NewConvertersCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
