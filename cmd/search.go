package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/aiconfig"
	"github.com/spigell/job-aggregator/internal/filtering"
	"github.com/spigell/job-aggregator/internal/listing"
	"github.com/spigell/job-aggregator/internal/logger"
)

const (
	PromptSave            = "Save listings"
	PromptExit            = "Exit"
	PromptReportBySources = "Report by sources"
	PromptListingsToFile  = "Dump listings to file"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "Proceed?",
	Items: []string{PromptSave, PromptExit, PromptReportBySources, PromptListingsToFile},
}

var searchCmd = &cobra.Command{
	Use:   "search [keywords]",
	Short: "Search the configured sources once, filter the results and save them",
	Run: func(cmd *cobra.Command, args []string) {
		search(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().BoolP("auto-approve", "y", false, "save the listings without asking")
	searchCmd.Flags().StringP("keywords", "k", "", "keywords to search for, positional arguments are used when unset")
	searchCmd.Flags().StringSliceP("source", "s", nil, "sources to query (default is every configured source)")
	searchCmd.Flags().StringP("location", "l", "", "location to search in")
	searchCmd.Flags().Bool("ai", false, "classify listings with the active AI configuration")

	viper.BindPFlag("search.keywords", searchCmd.Flags().Lookup("keywords"))
	viper.BindPFlag("search.sources", searchCmd.Flags().Lookup("source"))
	viper.BindPFlag("search.location", searchCmd.Flags().Lookup("location"))
	viper.BindPFlag("search.filter.use-ai", searchCmd.Flags().Lookup("ai"))
}

func search(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	criteria := config.Search.Criteria
	if len(args) > 0 && !cmd.Flags().Changed("keywords") {
		criteria.Keywords = strings.Join(args, " ")
	}

	sources := make([]listing.Source, 0, len(config.Search.Sources))
	for _, raw := range config.Search.Sources {
		src, err := listing.ParseSource(raw)
		if err != nil {
			logger.Fatal("parsing sources", zap.Error(err))
		}
		sources = append(sources, src)
	}

	d, err := buildDeps(ctx, config, logger)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}
	defer d.Close()

	logger.Info("starting the search", zap.String("keywords", criteria.Keywords), zap.Any("sources", sources))

	aggregated, err := d.aggregator.Aggregate(ctx, criteria, sources, config.Sources.Timeout)
	if err != nil {
		logger.Fatal("aggregating listings", zap.Error(err))
	}
	for src, reason := range aggregated.SourceErrors {
		logger.Warn("source returned nothing", zap.String("source", string(src)), zap.String("reason", reason))
	}

	if len(aggregated.Listings) == 0 {
		logger.Info("exiting", zap.String("reason", "no listings found"))
		return
	}

	var active *aiconfig.Config
	if config.Search.Filter.UseAI {
		if active, err = d.configs.Active(ctx, config.UserID); err != nil {
			logger.Fatal("getting the active ai config", zap.Error(err))
		}
	}

	result, err := d.orchestrator.Filter(ctx, aggregated.Listings, config.Search.Filter, active)
	if err != nil {
		logger.Fatal("filtering failed", zap.Error(err))
	}

	pretty, _ := json.MarshalIndent(result.Steps, "", "  ")
	logger.Debug(fmt.Sprintf("filter steps: \n %s", pretty))
	if result.AISkippedReason != "" {
		logger.Info("ai classification skipped", zap.String("reason", result.AISkippedReason))
	}

	if len(result.Accepted()) == 0 {
		logger.Info("exiting", zap.String("reason", "no listings left after filters"))
		return
	}

	autoApprove, _ := cmd.Flags().GetBool("auto-approve")
	action := PromptSave
	for {
		if !autoApprove {
			_, action, err = prompt.Run()
			if err != nil {
				logger.Fatal("exiting", zap.Error(err))
			}
		}

		logger.Info("current list of listings", zap.Int("count", len(result.Accepted())))

		if err := handleAction(ctx, action, d, logger, config.UserID, result); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}

		if autoApprove {
			return
		}
	}
}

func handleAction(ctx context.Context, action string, d *deps, logger *zap.Logger, userID string, result *filtering.Result) error {
	switch action {
	case PromptSave:
		inserted, duplicates, err := d.orchestrator.Persist(ctx, userID, result)
		if err != nil {
			return fmt.Errorf("saving listings: %w", err)
		}
		logger.Info("listings saved", zap.Int("inserted", inserted), zap.Int("duplicates", duplicates))
		return nil
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	case PromptReportBySources:
		accepted := &listing.Listings{Items: result.Accepted()}
		pretty, _ := json.MarshalIndent(accepted.ReportBySource(), "", "  ")
		logger.Info(string(pretty), zap.Int("listings count", accepted.Len()))
		return nil
	case PromptListingsToFile:
		accepted := &listing.Listings{Items: result.Accepted()}
		filename, err := accepted.DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}
