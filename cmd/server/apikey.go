package main

import (
	"encoding/json"
	"fmt"
	"time"

	"ccfolio/internal/entity"
	"ccfolio/internal/usecase"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func apiKeyCmd(envFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage push-session API keys",
	}
	cmd.AddCommand(apiKeyCreateCmd(envFile))
	return cmd
}

func apiKeyCreateCmd(envFile *string) *cobra.Command {
	var (
		owner       string
		description string
		ttl         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key and print it once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			container, err := buildContainer(ctx, *envFile)
			if err != nil {
				return err
			}

			return container.Invoke(func(keys usecase.APIKeyUsecase, cl *closers, log *zap.Logger) error {
				defer cl.run(ctx, log)

				created, err := keys.Create(ctx, owner, entity.CreateAPIKeyRequest{
					Description: description,
					TTLSeconds:  int64(ttl.Seconds()),
				})
				if err != nil {
					return err
				}

				out, err := json.MarshalIndent(created, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "user id that owns the key")
	cmd.Flags().StringVar(&description, "description", "", "free-form label")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "lifetime; zero never expires")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
