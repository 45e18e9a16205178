/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/spf13/cobra"
	"github.com/tenantcart/apiserver/config"
	"github.com/tenantcart/apiserver/internal/server"
)

// lambdaCmd serves the same router from AWS Lambda behind an API Gateway
// HTTP API (payload format 2.0).
var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Runs the API as an AWS Lambda handler",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadConfig()

		srv, err := server.New(cmd.Context(), cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = srv.Shutdown(context.Background()) }()
		srv.StartJobs()

		adapter := httpadapter.NewV2(srv.Handler())
		lambda.Start(adapter.ProxyWithContext)
	},
}

func init() {
	rootCmd.AddCommand(lambdaCmd)
}
