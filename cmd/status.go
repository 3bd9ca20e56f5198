package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check the llm provider and the cache store",
		Run: func(cmd *cobra.Command, _ []string) {
			health(cmd)
		},
	}

	providersCmd = &cobra.Command{
		Use:   "providers",
		Short: "List configured llm providers",
		Run: func(_ *cobra.Command, _ []string) {
			listProviders()
		},
	}

	personasCmd = &cobra.Command{
		Use:   "personas",
		Short: "List analysis personas",
		Run: func(_ *cobra.Command, _ []string) {
			listPersonas()
		},
	}
)

func init() {
	rootCmd.AddCommand(healthCmd, providersCmd, personasCmd)
	healthCmd.Flags().Bool("output-json", false, "print the status as json")
}

func health(cmd *cobra.Command) {
	ctx, cancel := commandContext()
	defer cancel()
	rt := setup(ctx)
	defer rt.close()

	status := rt.engine.HealthCheck(ctx)

	if asJSON, _ := cmd.Flags().GetBool("output-json"); asJSON {
		if err := printJSON(status); err != nil {
			rt.logger.Fatal("printing status", zap.Error(err))
		}
		return
	}

	storage := status.Storage.Backend
	if !status.Storage.Enabled {
		storage = "disabled"
	}

	rows := [][]string{
		{"llm provider", status.Provider.Name, healthLabel(status.Provider.Healthy, true), status.Provider.Error},
		{"storage", storage, healthLabel(status.Storage.Healthy, status.Storage.Enabled), status.Storage.Error},
	}
	fmt.Println(renderTable([]string{"Component", "Name", "Status", "Error"}, rows, nil))
}

func healthLabel(healthy, enabled bool) string {
	switch {
	case !enabled:
		return "n/a"
	case healthy:
		return "healthy"
	default:
		return "unhealthy"
	}
}

func listProviders() {
	ctx, cancel := commandContext()
	defer cancel()
	rt := setup(ctx)
	defer rt.close()

	current := rt.engine.ProviderInfo()

	names := make([]string, 0, len(rt.cfg.Providers))
	for name := range rt.cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		p := rt.cfg.Providers[name]
		models := make([]string, 0, len(p.Models))
		for _, m := range p.Models {
			models = append(models, m.Name)
		}

		marker := ""
		if name == current.Name {
			marker = "*"
			if !current.Available {
				marker = "* (unavailable)"
			}
		}

		rows = append(rows, []string{
			marker,
			name,
			p.Kind,
			strconv.FormatBool(p.Enabled),
			p.DefaultModel,
			strings.Join(models, ", "),
		})
	}
	fmt.Println(renderTable([]string{"Current", "Name", "Kind", "Enabled", "Default model", "Models"}, rows, nil))
}

func listPersonas() {
	ctx, cancel := commandContext()
	defer cancel()
	rt := setup(ctx)
	defer rt.close()

	rows := [][]string{}
	for _, p := range rt.engine.Personas() {
		marker := ""
		if p.Key == rt.cfg.Analysis.DefaultPersona {
			marker = "*"
		}
		rows = append(rows, []string{marker, p.Key, p.Name, p.Description})
	}
	fmt.Println(renderTable([]string{"Default", "Key", "Name", "Description"}, rows, nil))
}
