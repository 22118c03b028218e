package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/transport/grpcapi"
)

const deskCallTimeout = 10 * time.Second

// deskFlags — подключение к OrderDesk.
type deskFlags struct {
	addr  string
	token string
}

func (f *deskFlags) dial(g *globals) (*grpc.ClientConn, error) {
	addr := strings.TrimSpace(f.addr)
	if addr == "" {
		addr = g.cfg.GRPCAddr
		if strings.HasPrefix(addr, ":") {
			addr = "127.0.0.1" + addr
		}
	}
	return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

func (f *deskFlags) context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, deskCallTimeout)
	if token := strings.TrimSpace(f.token); token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	}
	return ctx, cancel
}

func ordersCmd(g *globals) *cobra.Command {
	flags := &deskFlags{}

	cmd := &cobra.Command{Use: "orders", Short: "Inspect and advance orders through the OrderDesk gRPC API"}
	cmd.PersistentFlags().StringVar(&flags.addr, "addr", "", "OrderDesk address (default: STOREFRONT_GRPC_ADDR)")
	cmd.PersistentFlags().StringVar(&flags.token, "token", "", "staff access token")

	cmd.AddCommand(orderGetCmd(g, flags), orderListCmd(g, flags), orderStatusCmd(g, flags))
	return cmd
}

func orderGetCmd(g *globals, flags *deskFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get ORDER_ID",
		Short: "Print an order with its timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := flags.dial(g)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := flags.context(cmd.Context())
			defer cancel()
			resp, err := grpcapi.NewOrderDeskClient(conn).GetOrder(ctx, &grpcapi.GetOrderRequest{OrderID: args[0]})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func orderListCmd(g *globals, flags *deskFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list CUSTOMER_ID",
		Short: "Print a customer's orders, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := flags.dial(g)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := flags.context(cmd.Context())
			defer cancel()
			resp, err := grpcapi.NewOrderDeskClient(conn).ListCustomerOrders(ctx, &grpcapi.ListCustomerOrdersRequest{
				CustomerID: args[0],
				Limit:      limit,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max orders to return")
	return cmd
}

func orderStatusCmd(g *globals, flags *deskFlags) *cobra.Command {
	var reason, key string
	cmd := &cobra.Command{
		Use:   "status ORDER_ID STATUS",
		Short: "Move an order to the next status (preparing, delivering, delivered, canceled)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := flags.dial(g)
			if err != nil {
				return err
			}
			defer conn.Close()

			if strings.TrimSpace(key) == "" {
				key = uuid.NewString()
			}
			ctx, cancel := flags.context(cmd.Context())
			defer cancel()
			ctx = metadata.AppendToOutgoingContext(ctx, grpcapi.IdempotencyKeyMetadata, key)

			resp, err := grpcapi.NewOrderDeskClient(conn).UpdateOrderStatus(ctx, &grpcapi.UpdateOrderStatusRequest{
				OrderID: args[0],
				Status:  domain.OrderStatus(args[1]),
				Reason:  reason,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "order %s is now %s (idempotency-key %s)\n", resp.Order.ID, resp.Order.Status, key)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason shown in the order timeline")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "reuse a key to retry safely (default: random)")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
