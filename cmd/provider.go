package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/airqa/inspect-cli/internal/model"
	"github.com/airqa/inspect-cli/internal/provider"
)

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Manage AI service configurations",
}

var providerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active configurations by priority",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		configs, err := env.Store.ListActiveConfigs(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tPROVIDER\tFORMAT\tMODEL\tPRIORITY\tDEFAULT\tSUCCESS RATE\tLAST TEST")
		for _, c := range configs {
			lastTest := "-"
			if c.LastTestAt != nil {
				lastTest = fmt.Sprintf("%s (%s)", c.LastTestAt.Format(time.RFC3339), c.LastTestResult)
			}
			def := ""
			if c.Default {
				def = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%.0f%%\t%s\n",
				c.Name, c.Provider, c.Format, c.Model, c.Priority, def, c.SuccessRate()*100, lastTest)
		}
		return w.Flush()
	},
}

var providerAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register or update a configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		flags := cmd.Flags()
		format, _ := flags.GetString("format")
		providerName, _ := flags.GetString("provider")
		baseURL, _ := flags.GetString("base-url")
		apiKey, _ := flags.GetString("api-key")
		modelName, _ := flags.GetString("model")
		timeoutSecs, _ := flags.GetInt("timeout")
		maxRetries, _ := flags.GetInt("retries")
		priority, _ := flags.GetInt("priority")
		isDefault, _ := flags.GetBool("default")

		sc := &model.ServiceConfig{
			Name:       args[0],
			Provider:   providerName,
			Format:     model.WireFormat(format),
			BaseURL:    baseURL,
			APIKey:     apiKey,
			Model:      modelName,
			Timeout:    time.Duration(timeoutSecs) * time.Second,
			MaxRetries: maxRetries,
			Priority:   priority,
			Active:     true,
			Default:    isDefault,
		}

		// Reject unknown formats before they reach the registry.
		if _, err := provider.New(*sc); err != nil {
			return err
		}

		if err := env.Store.SaveConfig(ctx, sc); err != nil {
			return err
		}
		zap.L().Info("configuration saved", zap.String("name", sc.Name), zap.Bool("default", sc.Default))
		return nil
	},
}

var providerTestAll bool

var providerTestCmd = &cobra.Command{
	Use:   "test [name]",
	Short: "Probe a configuration, or every active one with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if providerTestAll {
			configs, err := env.Store.ListActiveConfigs(ctx)
			if err != nil {
				return err
			}
			g, ctx := errgroup.WithContext(ctx)
			g.SetLimit(4)
			for _, c := range configs {
				c := c
				g.Go(func() error {
					testOne(ctx, env, c)
					return nil
				})
			}
			return g.Wait()
		}

		if len(args) == 0 {
			return eris.New("provider test: name required unless --all is set")
		}
		sc, err := env.Resolver.ResolveByName(ctx, args[0])
		if err != nil {
			return err
		}
		testOne(ctx, env, *sc)
		return nil
	},
}

func testOne(ctx context.Context, env *appEnv, sc model.ServiceConfig) {
	err := env.Monitor.Track(ctx, sc, model.CallProbe, "", func(ctx context.Context) error {
		return provider.ProbeConfig(ctx, sc)
	})

	result := "ok"
	if err != nil {
		result = err.Error()
	}
	if sc.ID != "" {
		if rerr := env.Store.RecordTestResult(ctx, sc.ID, result); rerr != nil {
			zap.L().Warn("record test result failed", zap.Error(rerr))
		}
	}

	if err != nil {
		fmt.Printf("%s: FAIL (%v)\n", sc.Name, err)
		return
	}
	fmt.Printf("%s: OK\n", sc.Name)
}

var providerSwitchCmd = &cobra.Command{
	Use:   "switch <name>",
	Short: "Make a configuration the default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Resolver.SetDefault(ctx, args[0]); err != nil {
			return err
		}
		env.Factory.InvalidateAll()

		sc, err := env.Resolver.ResolveByName(ctx, args[0])
		if err != nil {
			return err
		}
		if err := env.Resolver.Switch(ctx, "", sc, "manual switch"); err != nil {
			return err
		}
		fmt.Printf("default configuration is now %s\n", args[0])
		return nil
	},
}

var providerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the configuration the next call would use",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sc, err := env.Resolver.Resolve(ctx, "")
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s/%s, model %s, priority %d)\n",
			sc.Name, sc.Provider, sc.Format, sc.Model, sc.Priority)
		return nil
	},
}

var providerRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a configuration from the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.DeleteConfig(ctx, args[0]); err != nil {
			return err
		}
		env.Resolver.ClearCache()
		env.Factory.InvalidateAll()
		fmt.Printf("removed %s\n", args[0])
		return nil
	},
}

func init() {
	providerAddCmd.Flags().String("provider", "", "provider brand (gemini, openai, anthropic, ...)")
	providerAddCmd.Flags().String("format", "", "wire format: gemini, openai, or anthropic")
	providerAddCmd.Flags().String("base-url", "", "API base URL")
	providerAddCmd.Flags().String("api-key", "", "API key")
	providerAddCmd.Flags().String("model", "", "model name")
	providerAddCmd.Flags().Int("timeout", 30, "call timeout in seconds")
	providerAddCmd.Flags().Int("retries", 3, "max retries per call")
	providerAddCmd.Flags().Int("priority", 100, "failover priority, lower first")
	providerAddCmd.Flags().Bool("default", false, "make this the default configuration")

	providerTestCmd.Flags().BoolVar(&providerTestAll, "all", false, "probe every active configuration concurrently")

	providerCmd.AddCommand(providerListCmd, providerAddCmd, providerTestCmd, providerSwitchCmd, providerShowCmd, providerRemoveCmd)
	rootCmd.AddCommand(providerCmd)
}
