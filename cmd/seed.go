/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tenantcart/apiserver/config"
	"github.com/tenantcart/apiserver/internal/server"
	"github.com/tenantcart/apiserver/internal/services"
)

var seedFile string

type seedAccount struct {
	TenantID string         `json:"tenantID"`
	UserID   string         `json:"userID"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data"`
}

// seedCmd upserts demo accounts. Existing accounts with the same key are
// overwritten, including their order history.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Upsert accounts from a JSON file",
	Long: `Upserts accounts from a JSON array of
{"tenantID", "userID", "password", "data"} objects. Usage:

	tenantcart seed --file accounts.json
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(seedFile)
		if err != nil {
			return err
		}
		var accounts []seedAccount
		if err := json.Unmarshal(raw, &accounts); err != nil {
			return fmt.Errorf("parse %s: %w", seedFile, err)
		}
		if len(accounts) == 0 {
			return errors.New("seed file contains no accounts")
		}

		cfg := config.LoadConfig()
		repo, closeStore, err := server.OpenAccountStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = closeStore() }()

		svc := services.NewAccountService(repo, cfg.StoreTimeout)
		for i, a := range accounts {
			account, err := svc.ImportAccount(cmd.Context(), services.CreateAccountInput{
				TenantID: a.TenantID,
				UserID:   a.UserID,
				Password: a.Password,
				Data:     a.Data,
			})
			if err != nil {
				return fmt.Errorf("account %d: %w", i, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %s/%s (%s)\n", account.TenantID, account.UserID, account.Data.Role)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "accounts JSON file")
	_ = seedCmd.MarkFlagRequired("file")
}
