package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List registered tools and their schemas",
	RunE:  runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	names := reg.Names()
	sort.Strings(names)
	for _, name := range names {
		t, ok := reg.Get(name)
		if !ok {
			continue
		}
		fmt.Printf("%s: %s\n", name, t.Description())
		schema := t.InputSchema()
		keys := make([]string, 0, len(schema))
		for k := range schema {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			prop := schema[k]
			var notes []string
			if !prop.Optional {
				notes = append(notes, "required")
			}
			if len(prop.Enum) > 0 {
				notes = append(notes, "one of: "+strings.Join(prop.Enum, ", "))
			}
			suffix := ""
			if len(notes) > 0 {
				suffix = " (" + strings.Join(notes, "; ") + ")"
			}
			fmt.Printf("  %s: %s%s\n", k, prop.Description, suffix)
		}
	}
	return nil
}
