package main

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/cleancoindev/zaidan-dealer-client/internal/app"
	"github.com/cleancoindev/zaidan-dealer-client/internal/chain"
	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
)

func marketsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "markets",
		Short: "List the pairs the dealer quotes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				markets, err := a.Session.Markets(ctx)
				if err != nil {
					return err
				}
				for _, m := range markets {
					fmt.Fprintln(cmd.OutOrStdout(), m)
				}
				return nil
			})
		},
	}
}

func assetsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "assets",
		Short: "List the dealer's asset tickers and token addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				assets, err := a.Session.Assets(ctx)
				if err != nil {
					return err
				}
				for ticker, addr := range assets {
					fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", ticker, addr.Hex())
				}
				return nil
			})
		},
	}
}

type quoteFlags struct {
	size string
	pair string
	side string
}

func (f *quoteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.size, "size", "", "amount of the base asset, in display units")
	cmd.Flags().StringVar(&f.pair, "pair", "", "market as BASE/QUOTE, e.g. WETH/DAI")
	cmd.Flags().StringVar(&f.side, "side", "", "bid to buy the base asset, ask to sell it")
	_ = cmd.MarkFlagRequired("size")
	_ = cmd.MarkFlagRequired("pair")
	_ = cmd.MarkFlagRequired("side")
}

func (f *quoteFlags) request(ctx context.Context, a *app.App) (*model.Quote, error) {
	size, err := parseSize(f.size)
	if err != nil {
		return nil, err
	}
	side, err := model.ParseSide(f.side)
	if err != nil {
		return nil, apperrors.NewInvalidInput(err.Error())
	}
	return a.Trader.Quotes.RequestQuote(ctx, size, f.pair, side)
}

func quoteCommand(opts *options) *cobra.Command {
	var flags quoteFlags
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Request a quote without trading it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				q, err := flags.request(ctx, a)
				if err != nil {
					return err
				}
				return printQuote(ctx, cmd, a, q)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func swapCommand(opts *options) *cobra.Command {
	var size, sell, buy string
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Request a quote by the assets to exchange instead of a market",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				amount, err := parseSize(size)
				if err != nil {
					return err
				}
				q, err := a.Trader.Quotes.RequestSwapQuote(ctx, amount, sell, buy)
				if err != nil {
					return err
				}
				return printQuote(ctx, cmd, a, q)
			})
		},
	}
	cmd.Flags().StringVar(&size, "size", "", "amount of the market's base asset, in display units")
	cmd.Flags().StringVar(&sell, "sell", "", "ticker of the asset to give")
	cmd.Flags().StringVar(&buy, "buy", "", "ticker of the asset to receive")
	_ = cmd.MarkFlagRequired("size")
	_ = cmd.MarkFlagRequired("sell")
	_ = cmd.MarkFlagRequired("buy")
	return cmd
}

func tradeCommand(opts *options) *cobra.Command {
	var (
		flags    quoteFlags
		maxSpend string
		wait     bool
	)
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Quote, sign and settle in one go",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				q, err := flags.request(ctx, a)
				if err != nil {
					return err
				}
				if maxSpend != "" {
					if err := checkSpend(ctx, a, q, maxSpend); err != nil {
						return err
					}
				}
				res, err := a.Trader.Execute(ctx, q, wait)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&maxSpend, "max-spend", "", "refuse quotes costing more of the taker asset than this, in display units")
	cmd.Flags().BoolVar(&wait, "wait", true, "wait for the settlement transaction to be mined")
	return cmd
}

func allowanceCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allowance",
		Short: "Inspect or grant the asset proxy allowance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check ASSET",
		Short: "Report whether trading ASSET needs an approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				state, err := a.Trader.Allowances.HasAllowance(ctx, args[0])
				if err != nil {
					return err
				}
				amount := state.Allowance.String()
				if state.Sufficient {
					amount = "unlimited"
				} else if dec, err := chain.Decimals(ctx, a.Session.Backend(), common.HexToAddress(state.Token)); err == nil {
					amount = model.FromBaseUnits(state.Allowance, int32(dec)).String()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s allowance for %s: %s (sufficient: %t)\n",
					state.Asset, state.Spender, amount, state.Sufficient)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set ASSET",
		Short: "Approve the asset proxy to move ASSET and wait for the approval to be mined",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				conf, err := a.Trader.Allowances.SetAllowance(ctx, args[0])
				if conf != nil {
					if perr := printJSON(cmd, conf); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	})
	return cmd
}

func awaitCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "await TXID",
		Short: "Wait for a settlement transaction to be mined",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				conf, err := a.Trader.Waiter.Await(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, conf)
			})
		},
	}
}

func parseSize(s string) (decimal.Decimal, error) {
	size, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, apperrors.NewInvalidInput(fmt.Sprintf("invalid size %q", s))
	}
	return size, nil
}

// quoteView is a quote with its order amounts in display units.
type quoteView struct {
	*model.Quote
	Gives string `json:"gives,omitempty"`
	Gets  string `json:"gets,omitempty"`
}

func printQuote(ctx context.Context, cmd *cobra.Command, a *app.App, q *model.Quote) error {
	view := quoteView{Quote: q}
	if amount, ticker, err := displayAmount(ctx, a, q.Order.TakerAssetAmount, q.Order.TakerAssetData); err == nil {
		view.Gives = amount.String() + " " + ticker
	}
	if amount, ticker, err := displayAmount(ctx, a, q.Order.MakerAssetAmount, q.Order.MakerAssetData); err == nil {
		view.Gets = amount.String() + " " + ticker
	}
	return printJSON(cmd, view)
}

func displayAmount(ctx context.Context, a *app.App, raw string, assetData []byte) (decimal.Decimal, string, error) {
	amount, token, dec, err := orderAmount(ctx, a, raw, assetData)
	if err != nil {
		return decimal.Zero, "", err
	}
	ticker := token.Hex()
	if nc, err := a.Session.Context(); err == nil {
		if t, ok := nc.TickerFor(token); ok {
			ticker = t
		}
	}
	return model.FromBaseUnits(amount, dec), ticker, nil
}

func orderAmount(ctx context.Context, a *app.App, raw string, assetData []byte) (*big.Int, common.Address, int32, error) {
	amount, err := model.ParseUint256(raw)
	if err != nil {
		return nil, common.Address{}, 0, err
	}
	token, err := chain.DecodeERC20AssetData(assetData)
	if err != nil {
		return nil, common.Address{}, 0, err
	}
	dec, err := chain.Decimals(ctx, a.Session.Backend(), token)
	if err != nil {
		return nil, common.Address{}, 0, err
	}
	return amount, token, int32(dec), nil
}

// checkSpend refuses q when its taker amount exceeds limit.
func checkSpend(ctx context.Context, a *app.App, q *model.Quote, limit string) error {
	ceil, err := decimal.NewFromString(strings.TrimSpace(limit))
	if err != nil {
		return apperrors.NewInvalidInput(fmt.Sprintf("invalid max spend %q", limit))
	}
	amount, _, dec, err := orderAmount(ctx, a, q.Order.TakerAssetAmount, q.Order.TakerAssetData)
	if err != nil {
		return apperrors.New(apperrors.ErrUpstream, "failed to read taker asset decimals", err)
	}
	ceiling, err := model.ToBaseUnits(ceil, dec)
	if err != nil {
		return apperrors.NewInvalidInput(err.Error())
	}
	if amount.Cmp(ceiling) > 0 {
		return apperrors.Newf(apperrors.ErrInvalidInput, "quote %s costs %s, above the %s limit",
			q.ID, model.FromBaseUnits(amount, dec), ceil)
	}
	return nil
}
