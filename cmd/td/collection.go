package main

import (
	"github.com/spf13/cobra"
)

func collectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Manage collections",
	}
	cmd.AddCommand(collectionCreateCmd())
	cmd.AddCommand(collectionDeleteCmd())
	return cmd
}

func collectionCreateCmd() *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{"name": name, "description": description}
			var out map[string]interface{}
			if err := newClient().do("POST", "/api/collections", nil, body, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "collection name")
	cmd.Flags().StringVar(&description, "description", "", "collection description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func collectionDeleteCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a collection and everything in it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().do("DELETE", "/api/collections/"+name, nil, nil, nil)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "collection name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
