package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/swiftbridge/convert-client/internal/conversion"
)

// runConvertCommand converts one message read from a file or stdin and
// writes the XML to stdout (or -o FILE). Exit codes: 0 success, 1 failure,
// 2 usage, 3 out of credits or anonymous limit.
func runConvertCommand(opts globalOptions, args []string) int {
	var typeArg, outPath, inPath string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-t", "--type":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --type requires a value")
				return 2
			}
			typeArg = args[i+1]
			i++
		case "-o", "--out":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --out requires a value")
				return 2
			}
			outPath = args[i+1]
			i++
		default:
			if inPath != "" {
				fmt.Fprintf(os.Stderr, "Error: unexpected argument %q\n", args[i])
				return 2
			}
			inPath = args[i]
		}
	}
	if typeArg == "" {
		fmt.Fprintf(os.Stderr, "Error: --type is required (%s)\n", messageTypeList())
		return 2
	}
	mt, err := conversion.ParseMessageType(typeArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v (%s)\n", err, messageTypeList())
		return 2
	}

	source, err := readSource(inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	a, err := newApp(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	<-a.session.Initialize(ctx)

	out := a.convert.Submit(ctx, conversion.Request{Source: source, MessageType: mt})
	switch out.Tag {
	case conversion.TagSuccess:
		if outPath == "" {
			fmt.Println(out.XML)
			return 0
		}
		if err := os.WriteFile(outPath, []byte(out.XML), 0o600); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	case conversion.TagQuotaExceeded, conversion.TagAnonymousLimitReached:
		fmt.Fprintln(os.Stderr, out.Message)
		return 3
	default:
		fmt.Fprintln(os.Stderr, out.Message)
		return 1
	}
}

// runBalanceCommand prints the credit balance for the configured credential.
func runBalanceCommand(opts globalOptions) int {
	a, err := newApp(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer a.close()

	if _, ok := a.store.Get(); !ok {
		fmt.Fprintln(os.Stderr, "Not signed in. Set CONVERT_SESSION_TOKEN or use the shell to log in.")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	b, ok, err := a.credits.Balance(ctx)
	switch {
	case err != nil:
		fmt.Fprintf(os.Stderr, "Failed to fetch credit balance: %v\n", describe(err))
		return 1
	case !ok:
		fmt.Fprintln(os.Stderr, "Your session has expired. Please sign in again.")
		return 1
	}
	printBalance(b)
	return 0
}

func readSource(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	// #nosec G304 -- user-chosen input file
	data, err := os.ReadFile(path)
	return string(data), err
}
