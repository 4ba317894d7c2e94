package cli

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"chatzalo/pkg/store"
)

type keySummary struct {
	Total   int            `yaml:"total"`
	Kinds   map[string]int `yaml:"kinds"`
	Samples []string       `yaml:"samples,omitempty"`
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <database-path>",
		Short: "Summarize the key space of a stopped database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, _ := cmd.Flags().GetString("prefix")
			samples, _ := cmd.Flags().GetInt("samples")
			sum, err := inspectDatabase(args[0], prefix, samples)
			if err != nil {
				return err
			}
			if asYAML, _ := cmd.Flags().GetBool("yaml"); asYAML {
				return printYAML(cmd, sum)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total keys: %s\n", humanize.Comma(int64(sum.Total)))
			kinds := make([]string, 0, len(sum.Kinds))
			for k := range sum.Kinds {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			for _, k := range kinds {
				fmt.Fprintf(out, "  %-14s %s\n", k, humanize.Comma(int64(sum.Kinds[k])))
			}
			for _, k := range sum.Samples {
				fmt.Fprintf(out, "  sample: %s\n", k)
			}
			return nil
		},
	}
	cmd.Flags().String("prefix", "", "only keys with this prefix, e.g. g: or u:")
	cmd.Flags().Int("samples", 0, "print up to n sample keys")
	cmd.Flags().Bool("yaml", false, "print the summary as YAML")
	return cmd
}

func inspectDatabase(dbPath, prefix string, samples int) (keySummary, error) {
	st, err := openExisting(dbPath)
	if err != nil {
		return keySummary{}, err
	}
	defer st.Close()

	keys, err := st.ListKeys(prefix)
	if err != nil {
		return keySummary{}, err
	}
	sum := keySummary{Total: len(keys), Kinds: map[string]int{}}
	for i, k := range keys {
		sum.Kinds[store.KeyKind(k)]++
		if i < samples {
			sum.Samples = append(sum.Samples, k)
		}
	}
	return sum, nil
}
