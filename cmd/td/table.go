package main

import (
	"github.com/spf13/cobra"
)

func tableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Manage tables",
	}
	cmd.AddCommand(tableDeleteCmd())
	cmd.AddCommand(tableSchemaCmd())
	return cmd
}

func tableDeleteCmd() *cobra.Command {
	var collection, name string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a frozen table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().do("DELETE", "/api/collections/"+collection+"/tables/"+name, nil, nil, nil)
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "collection name")
	cmd.Flags().StringVar(&name, "name", "", "table name")
	_ = cmd.MarkFlagRequired("collection")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func tableSchemaCmd() *cobra.Command {
	var collection, name string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Show the current schema of a table",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out interface{}
			if err := newClient().do("GET", "/api/collections/"+collection+"/tables/"+name+"/schema", nil, nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "collection name")
	cmd.Flags().StringVar(&name, "name", "", "table name")
	_ = cmd.MarkFlagRequired("collection")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
