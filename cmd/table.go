/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tenantcart/apiserver/config"
	"github.com/tenantcart/apiserver/internal/db"
)

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Manage the DynamoDB accounts table",
}

var tableCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the accounts table if it does not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		client, err := db.OpenDynamoDB(cmd.Context(), cfg.DynamoDB, 0)
		if err != nil {
			return err
		}

		created, err := db.EnsureTable(cmd.Context(), client, cfg.DynamoDB.TableName)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(cmd.OutOrStdout(), "created table %s\n", cfg.DynamoDB.TableName)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "table %s already exists\n", cfg.DynamoDB.TableName)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tableCmd)
	tableCmd.AddCommand(tableCreateCmd)
}
