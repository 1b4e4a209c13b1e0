// Command x402pay pays for a 402 gated resource from the configured wallet
// and prints what the gate returns.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/vitwit/x402pay"
	"github.com/vitwit/x402pay/config"
	"github.com/vitwit/x402pay/logger"
	"github.com/vitwit/x402pay/payment"
	"github.com/vitwit/x402pay/pricing"
	"github.com/vitwit/x402pay/provider"
	"github.com/vitwit/x402pay/types"
	"github.com/vitwit/x402pay/wallet"
)

func main() {
	var (
		envFile = flag.String("env", "", "Path to a .env file (default ./.env if present)")
		path    = flag.String("path", "", "Resource path to fetch (overrides X402PAY_RESOURCE_PATH)")
		yes     = flag.Bool("yes", false, "Approve the transfer without prompting (in-process wallet only)")
		proceed = flag.Bool("proceed-on-network-error", false, "Pay on the current network if switching fails")
		version = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("x402pay %s (x402 v%d)\n", x402pay.Version, x402pay.ProtocolVersion)
		return
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []provider.LocalOption
	if !*yes {
		opts = append(opts, provider.WithApprover(promptApprover(cfg.Converter())))
	}
	p, err := provider.Open(ctx, provider.Settings{
		WalletRPCURL: cfg.WalletRPCURL,
		PrivateKey:   cfg.PrivateKey,
	}, opts...)
	if err != nil {
		log.Fatalf("open wallet: %v (set X402PAY_WALLET_RPC_URL or X402PAY_PRIVATE_KEY)", err)
	}
	if c, ok := p.(interface{ Close() }); ok {
		defer c.Close()
	}

	network := cfg.NetworkDescriptor()
	flowCfg := x402pay.Config{
		Network:         network,
		Recipient:       cfg.Recipient,
		Price:           cfg.PriceUSD(),
		Converter:       cfg.Converter(),
		ResourceBaseURL: cfg.ResourceBaseURL,
		FetchTimeout:    cfg.FetchTimeout,
		Poll: payment.WaiterConfig{
			Interval:       cfg.PollInterval,
			MaxAttempts:    cfg.PollAttempts,
			RequestTimeout: cfg.RequestTimeout,
		},
	}

	flow, err := x402pay.New(p, flowCfg,
		x402pay.WithLogger(zl),
		x402pay.WithProceedOnNetworkError(*proceed),
		x402pay.WithStatusFunc(func(stage x402pay.Stage, msg string) {
			fmt.Fprintln(os.Stderr, msg)
		}),
	)
	if err != nil {
		log.Fatalf("init flow: %v", err)
	}

	resource := cfg.ResourcePath
	if *path != "" {
		resource = *path
	}

	out, err := flow.Run(ctx, resource)
	if out != nil && out.Session != nil {
		fmt.Fprintf(os.Stderr, "Wallet: %s\n", wallet.FormatAddress(out.Session.Address()))
	}
	if out != nil && out.Record != nil {
		if link := network.ExplorerTxURL(out.Record.Hash); link != "" {
			fmt.Fprintf(os.Stderr, "Transaction: %s\n", link)
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, userMessage(err))
		os.Exit(1)
	}

	if out.Result.PaymentRequired() {
		fmt.Fprintln(os.Stderr, "The gate still requires payment:")
		printJSON(out.Result.Requirement.Raw)
		os.Exit(2)
	}
	printJSON(out.Result.Payload)
}

// promptApprover asks on the terminal before the in-process wallet signs.
func promptApprover(conv pricing.Converter) provider.Approver {
	return func(ctx context.Context, req types.TransferRequest) bool {
		fmt.Fprintf(os.Stderr, "%s? [y/N] ", describeTransfer(req, conv))

		answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return false
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes"
	}
}

func describeTransfer(req types.TransferRequest, conv pricing.Converter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Send %s ETH ($%s)",
		pricing.FormatNative(req.Value, conv.Decimals),
		conv.FiatAmount(req.Value).StringFixed(2))
	if n, ok := types.NetworkByChainID(req.ChainID); ok {
		fmt.Fprintf(&b, " on %s", n)
	}
	fmt.Fprintf(&b, " from %s to %s", wallet.FormatAddress(req.From), wallet.FormatAddress(req.To))
	return b.String()
}

func userMessage(err error) string {
	switch types.ErrorCode(err) {
	case types.ErrWalletUnavailable:
		return "No wallet available: " + messageOf(err)
	case types.ErrNetworkError:
		return "Network Error: " + messageOf(err)
	case "":
		return "Error: " + err.Error()
	default:
		return "Error: " + messageOf(err)
	}
}

func messageOf(err error) string {
	var xe *types.X402Error
	if errors.As(err, &xe) {
		return xe.Message
	}
	return err.Error()
}

func printJSON(raw json.RawMessage) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Println(string(raw))
		return
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
