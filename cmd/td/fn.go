package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

func fnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fn",
		Short: "Manage functions",
	}
	cmd.AddCommand(fnRegisterCmd())
	cmd.AddCommand(fnUpdateCmd())
	cmd.AddCommand(fnDeleteCmd())
	cmd.AddCommand(fnTriggerCmd())
	return cmd
}

// readDecl loads a function declaration document from disk.
func readDecl(path string) (map[string]interface{}, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var decl map[string]interface{}
	if err := json.Unmarshal(b, &decl); err != nil {
		return nil, fmt.Errorf("parse declaration %s: %w", path, err)
	}
	return decl, nil
}

func fnRegisterCmd() *cobra.Command {
	var collection, declPath string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new function",
		RunE: func(cmd *cobra.Command, args []string) error {
			decl, err := readDecl(declPath)
			if err != nil {
				return err
			}
			var out map[string]interface{}
			if err := newClient().do("POST", "/api/collections/"+collection+"/functions", nil, decl, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "collection name")
	cmd.Flags().StringVar(&declPath, "decl", "", "path to the function declaration file")
	_ = cmd.MarkFlagRequired("collection")
	_ = cmd.MarkFlagRequired("decl")
	return cmd
}

func fnUpdateCmd() *cobra.Command {
	var collection, name, declPath string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update an existing function",
		RunE: func(cmd *cobra.Command, args []string) error {
			decl, err := readDecl(declPath)
			if err != nil {
				return err
			}
			var out map[string]interface{}
			if err := newClient().do("POST", "/api/collections/"+collection+"/functions/"+name, nil, decl, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "collection name")
	cmd.Flags().StringVar(&name, "name", "", "function name")
	cmd.Flags().StringVar(&declPath, "decl", "", "path to the function declaration file")
	_ = cmd.MarkFlagRequired("collection")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("decl")
	return cmd
}

func fnDeleteCmd() *cobra.Command {
	var collection, name string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a function",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().do("DELETE", "/api/collections/"+collection+"/functions/"+name, nil, nil, nil)
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "collection name")
	cmd.Flags().StringVar(&name, "name", "", "function name")
	_ = cmd.MarkFlagRequired("collection")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func fnTriggerCmd() *cobra.Command {
	var collection, name, executionName string
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Trigger a function",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{}
			if executionName != "" {
				body["name"] = executionName
			}
			var out map[string]interface{}
			if err := newClient().do("POST", "/api/collections/"+collection+"/functions/"+name+"/trigger", url.Values{}, body, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "collection name")
	cmd.Flags().StringVar(&name, "name", "", "function name")
	cmd.Flags().StringVar(&executionName, "execution-name", "", "optional execution name")
	_ = cmd.MarkFlagRequired("collection")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
