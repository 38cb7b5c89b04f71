package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sugarme/segforest/segforest"
)

func InspectCommand() *cobra.Command {
	var head int64

	cmd := &cobra.Command{
		Use:   "inspect model.ot",
		Short: "Lists the tensors of a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := segforest.Inspect(args[0])
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"#", "name", "shape", "dtype"})
			for i, info := range infos {
				t.AppendRow(table.Row{i, info.Name, fmt.Sprint(info.Shape), info.DType})
			}
			t.Render()

			if head > 0 {
				name, values, err := segforest.Head(args[0], head)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %v\n", name, values)
			}
			return nil
		},
	}

	cmd.Flags().Int64VarP(&head, "head", "", 100, "print the first values of the first tensor")

	return cmd
}
