package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcadapter "github.com/simaogato/securesend-backend/internal/adapter/grpc"
	"github.com/simaogato/securesend-backend/internal/domain"
	"github.com/simaogato/securesend-backend/internal/ui"
)

const commandsMessage = `Commands:
  send            run a transfer (--asset, --amount, --to, optional --fee)
  assets          list supported assets and their limits
  receipt <hash>  show a completed transfer
  history         list completed transfers, newest first (--asset, --limit)
  summary         outbound volume per asset (--window)`

// errAborted is returned when the user declines a prompt
var errAborted = errors.New("transfer aborted")

// pipelineClient is the part of the gRPC client used by send
type pipelineClient interface {
	OpenSession(ctx context.Context) (uuid.UUID, domain.PipelineState, error)
	Submit(ctx context.Context, id uuid.UUID, form domain.TransferForm) (domain.PipelineState, error)
	AcknowledgeWarnings(ctx context.Context, id uuid.UUID) (domain.PipelineState, error)
	Confirm(ctx context.Context, id uuid.UUID) (domain.PipelineState, error)
	Cancel(ctx context.Context, id uuid.UUID) (domain.PipelineState, error)
	CloseSession(ctx context.Context, id uuid.UUID) error
}

// promptFunc asks a yes/no question
type promptFunc func(question string) (bool, error)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, rest, stop, err := configure(args)
	if err != nil {
		return fmt.Errorf("unable to configure: %w", err)
	}
	if stop {
		return nil
	}
	if len(rest) < 1 {
		return fmt.Errorf("no command specified\n%s", commandsMessage)
	}

	if cfg.NoColor {
		color.NoColor = true
	}
	cs := ui.DefaultColorScheme()

	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", cfg.Addr, err)
	}
	defer conn.Close()

	client := grpcadapter.NewClient(conn, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	switch rest[0] {
	case "send":
		form := domain.TransferForm{
			AssetSymbol:      cfg.Asset,
			Amount:           cfg.Amount,
			RecipientAddress: cfg.To,
			FeeEstimate:      cfg.Fee,
		}
		prompt := stdinPrompt(bufio.NewReader(os.Stdin), os.Stdout)
		if cfg.Yes {
			prompt = func(string) (bool, error) { return true, nil }
		}
		return send(ctx, client, form, prompt, os.Stdout, cs)

	case "assets":
		assets, err := client.ListAssets(ctx)
		if err != nil {
			return err
		}
		ui.PrintAssets(os.Stdout, cs, assets)
		return nil

	case "receipt":
		if len(rest) < 2 {
			return errors.New("receipt requires a transaction hash")
		}
		record, err := client.GetReceipt(ctx, rest[1])
		if err != nil {
			return err
		}
		ui.PrintHeader(os.Stdout, cs, fmt.Sprintf("%s %s to %s", record.Amount, record.AssetSymbol, record.RecipientAddress))
		ui.PrintReceipt(os.Stdout, cs, domain.Receipt{Hash: record.Hash, ExplorerURL: record.ExplorerURL})
		return nil

	case "history":
		records, err := client.ListReceipts(ctx, cfg.Asset, cfg.Limit)
		if err != nil {
			return err
		}
		ui.PrintHistory(os.Stdout, cs, records)
		return nil

	case "summary":
		summary, err := client.GetSummary(ctx, cfg.Window)
		if err != nil {
			return err
		}
		ui.PrintSummary(os.Stdout, cs, summary)
		return nil

	default:
		return fmt.Errorf("unrecognized command %q\n%s", rest[0], commandsMessage)
	}
}

// send drives one transfer through the pipeline.
// Logic:
//  1. Open a session and submit the form; rejected forms end the command
//  2. Soft warnings are shown and must be accepted explicitly
//  3. The final confirmation shows amount, asset and recipient
//  4. Confirm and show the receipt or the execution error
//
// Declining a prompt cancels the run.
func send(ctx context.Context, client pipelineClient, form domain.TransferForm, prompt promptFunc, out io.Writer, cs *ui.ColorScheme) error {
	id, _, err := client.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.CloseSession(context.WithoutCancel(ctx), id) }()

	state, err := client.Submit(ctx, id, form)
	ui.PrintState(out, cs, state)
	if err != nil {
		return err
	}

	if state.AckRequired {
		ok, err := prompt("Proceed despite the warnings above?")
		if err != nil {
			return err
		}
		if !ok {
			_, _ = client.Cancel(ctx, id)
			return errAborted
		}
		if state, err = client.AcknowledgeWarnings(ctx, id); err != nil {
			return err
		}
	}

	ok, err := prompt(fmt.Sprintf("Send %s %s to %s?", state.Request.Amount, state.Request.AssetSymbol, state.Request.RecipientAddress))
	if err != nil {
		return err
	}
	if !ok {
		_, _ = client.Cancel(ctx, id)
		return errAborted
	}

	state, err = client.Confirm(ctx, id)
	ui.PrintState(out, cs, state)
	return err
}

// stdinPrompt asks on out and reads a y/yes answer from in
func stdinPrompt(in *bufio.Reader, out io.Writer) promptFunc {
	return func(question string) (bool, error) {
		fmt.Fprintf(out, "%s [y/N]: ", question)
		answer, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, fmt.Errorf("failed to read answer: %w", err)
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes", nil
	}
}
