package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/systemshift/graphdex/internal/server/indexspec"
)

func (c *command) initSpecCmd() {
	cmd := &cobra.Command{
		Use:   "spec [index-spec]",
		Short: "Check an index spec and print it in canonical form",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := c.config.GetString(optionNameIndexSpec)
			if len(args) == 1 {
				raw = args[0]
			}

			spec, err := indexspec.Parse(raw)
			if err != nil {
				return err
			}
			if len(spec) == 0 {
				return errors.New("syntax error in index spec")
			}

			cmd.Println(indexspec.Format(spec))
			for _, label := range spec.Labels() {
				for _, e := range spec[label] {
					cmd.Printf("  %s <- %s %v\n", e.IndexName, label, e.Properties)
				}
			}
			return nil
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return c.config.BindPFlags(cmd.Flags())
		},
	}
	cmd.Flags().String(optionNameIndexSpec, "", "index spec to check when no argument is given")
	cmd.SetOut(c.root.OutOrStdout())
	c.root.AddCommand(cmd)
}
