package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/coffeeshop/internal/app"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/account"
)

func staffCmd(g *globals) *cobra.Command {
	var in account.RegisterInput

	create := &cobra.Command{
		Use:   "create",
		Short: "Register a staff account and print its access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, err := app.CreateStaff(cmd.Context(), g.cfg, in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "staff id: %s\n", session.Customer.ID)
			fmt.Fprintf(out, "access token: %s\n", session.Token.AccessToken)
			return nil
		},
	}
	create.Flags().StringVar(&in.Email, "email", "", "staff email")
	create.Flags().StringVar(&in.Password, "password", "", "staff password")
	create.Flags().StringVar(&in.Name, "name", "", "display name")
	create.Flags().StringVar(&in.Phone, "phone", "", "contact phone")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	cmd := &cobra.Command{Use: "staff", Short: "Manage staff accounts"}
	cmd.AddCommand(create)
	return cmd
}
