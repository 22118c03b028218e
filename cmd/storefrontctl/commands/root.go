// Package commands — административный CLI витрины: миграции, каталог, сотрудники, DLQ, заказы.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/coffeeshop/internal/app"
)

// globals — общие для подкоманд настройки, заполняются в PersistentPreRunE.
type globals struct {
	envFile string
	cfg     app.Config
}

// Execute запускает CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "storefrontctl",
		Short:         "Coffee shop storefront administration",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.LoadDotEnv(g.envFile); err != nil {
				return err
			}
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			app.ConfigureLogger(cfg.LogLevel)
			g.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file with STOREFRONT_* overrides")

	root.AddCommand(
		migrateCmd(g),
		seedCmd(g),
		staffCmd(g),
		dlqCmd(g),
		ordersCmd(g),
		versionCmd(),
	)
	return root
}
