/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tenantcart/apiserver/config"
	"github.com/tenantcart/apiserver/internal/services"
	"github.com/tenantcart/apiserver/internal/storage"
)

var catalogFile string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the product catalog in object storage",
}

var catalogUploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Validate and upload a catalog JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(catalogFile)
		if err != nil {
			return err
		}
		products, err := services.ParseCatalog(bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("invalid catalog: %w", err)
		}

		cfg := config.LoadConfig()
		objects, err := storage.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if objects == nil {
			return errors.New("CATALOG_BACKEND is not configured")
		}

		if err := objects.EnsureBucket(cmd.Context()); err != nil {
			return fmt.Errorf("ensure bucket: %w", err)
		}
		if err := objects.Put(cmd.Context(), cfg.Catalog.ObjectKey, bytes.NewReader(raw), int64(len(raw)), "application/json"); err != nil {
			return fmt.Errorf("upload catalog: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d products to %s/%s\n", len(products), objects.Bucket(), cfg.Catalog.ObjectKey)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogUploadCmd)
	catalogUploadCmd.Flags().StringVarP(&catalogFile, "file", "f", "", "catalog JSON file")
	_ = catalogUploadCmd.MarkFlagRequired("file")
}
