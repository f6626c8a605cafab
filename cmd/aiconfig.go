package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/aiconfig"
	"github.com/spigell/job-aggregator/internal/logger"
	"github.com/spigell/job-aggregator/internal/secrets"
)

var aiConfigCmd = &cobra.Command{
	Use:   "ai-config",
	Short: "Manage AI configurations of the cli user",
}

var aiConfigListCmd = &cobra.Command{
	Use:   "list",
	Short: "List AI configurations, the most recently selected first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withConfigs(cmd.Context(), func(ctx context.Context, m *aiconfig.Manager, userID string) error {
			cfgs, err := m.List(ctx, userID)
			if err != nil {
				return err
			}
			return printJSON(cfgs)
		})
	},
}

var aiConfigCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an AI configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		flags := cmd.Flags()
		provider, _ := flags.GetString("provider")
		model, _ := flags.GetString("model")
		endpoint, _ := flags.GetString("endpoint")
		credentialFile, _ := flags.GetString("credential-file")

		credential, err := secrets.LoadOptional(secrets.Source{
			Name: "ai credential",
			File: credentialFile,
			Env:  "JOBAGG_AI_CREDENTIAL",
		})
		if err != nil {
			return err
		}

		return withConfigs(cmd.Context(), func(ctx context.Context, m *aiconfig.Manager, userID string) error {
			cfg, err := m.Create(ctx, userID, aiconfig.CreateRequest{
				Provider:   aiconfig.Provider(provider),
				Model:      model,
				Endpoint:   endpoint,
				Credential: credential,
			})
			if err != nil {
				return err
			}
			return printJSON(cfg)
		})
	},
}

var aiConfigActivateCmd = &cobra.Command{
	Use:   "activate [id]",
	Short: "Make a configuration the active one, choosing it interactively when no id is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConfigs(cmd.Context(), func(ctx context.Context, m *aiconfig.Manager, userID string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			} else {
				selected, err := selectConfig(ctx, m, userID)
				if err != nil {
					return err
				}
				id = selected
			}

			cfg, err := m.Activate(ctx, userID, id)
			if err != nil {
				return err
			}
			return printJSON(cfg)
		})
	},
}

var aiConfigDeactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Turn AI classification off for the cli user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withConfigs(cmd.Context(), func(ctx context.Context, m *aiconfig.Manager, userID string) error {
			return m.Deactivate(ctx, userID)
		})
	},
}

func init() {
	rootCmd.AddCommand(aiConfigCmd)
	aiConfigCmd.AddCommand(aiConfigListCmd, aiConfigCreateCmd, aiConfigActivateCmd, aiConfigDeactivateCmd)

	aiConfigCreateCmd.Flags().String("provider", "", "one of local-inference, self-hosted, hosted-api")
	aiConfigCreateCmd.Flags().String("model", "", "model name")
	aiConfigCreateCmd.Flags().String("endpoint", "", "provider endpoint, required unless the provider is hosted-api")
	aiConfigCreateCmd.Flags().String("credential-file", "", "file with the API key or token (JOBAGG_AI_CREDENTIAL is used when unset)")
}

func withConfigs(ctx context.Context, fn func(ctx context.Context, m *aiconfig.Manager, userID string) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	if strings.EqualFold(strings.TrimSpace(config.Storage.Driver), "memory") {
		return errors.New("ai-config needs persistent storage, storage.driver memory forgets everything when the command exits")
	}

	st, closeStore, err := openStore(ctx, config.Storage, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	return fn(ctx, aiconfig.NewManager(st, logger), config.UserID)
}

func selectConfig(ctx context.Context, m *aiconfig.Manager, userID string) (string, error) {
	cfgs, err := m.List(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(cfgs) == 0 {
		return "", fmt.Errorf("there are no ai configurations, create one first")
	}

	items := make([]string, 0, len(cfgs))
	for _, cfg := range cfgs {
		label := fmt.Sprintf("%s %s / %s", cfg.ID, cfg.Provider, cfg.Model)
		if cfg.IsActive {
			label += " (active)"
		}
		items = append(items, label)
	}

	configPrompt := promptui.Select{
		Label: "Choose a configuration and press ENTER",
		Items: items,
	}
	idx, _, err := configPrompt.Run()
	if err != nil {
		return "", err
	}
	return cfgs[idx].ID, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
