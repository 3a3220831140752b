package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/swiftbridge/convert-client/internal/apierr"
	"github.com/swiftbridge/convert-client/internal/auth"
	"github.com/swiftbridge/convert-client/internal/config"
	"github.com/swiftbridge/convert-client/internal/conversion"
	"github.com/swiftbridge/convert-client/internal/credits"
	"github.com/swiftbridge/convert-client/internal/events"
	"github.com/swiftbridge/convert-client/internal/session"
	"github.com/swiftbridge/convert-client/internal/tui"
	"github.com/swiftbridge/convert-client/internal/utils"
)

// shell is the interactive session. It owns the app for its lifetime.
type shell struct {
	app    *app
	in     *prompter
	status *tui.StatusLine
	sigCh  chan os.Signal
}

type shellCommand struct {
	usage string
	help  string
	run   func(ctx context.Context, sh *shell, args []string) error
}

var errQuit = errors.New("quit")

// shellCommands is filled in init to allow the help command to list it.
var shellCommands map[string]shellCommand

var shellOrder = []string{
	"status", "login", "register", "verify", "oauth", "callback", "logout",
	"refresh", "profile", "convert", "history", "delete",
	"balance", "packages", "buy", "reconcile", "journal", "stats", "help", "quit",
}

func init() {
	shellCommands = map[string]shellCommand{
		"status":    {"status", "Show session state and credits", cmdStatus},
		"login":     {"login [EMAIL]", "Sign in with email and password", cmdLogin},
		"register":  {"register [EMAIL]", "Create an account and sign in", cmdRegister},
		"verify":    {"verify TOKEN|LINK", "Confirm an email address", cmdVerify},
		"oauth":     {"oauth", "Sign in through the browser", cmdOAuth},
		"callback":  {"callback URL", "Finish a browser sign-in from its callback URL", cmdCallback},
		"logout":    {"logout", "Sign out", cmdLogout},
		"refresh":   {"refresh", "Reload the profile", cmdRefresh},
		"profile":   {"profile [NAME]", "Show the profile, or set the display name", cmdProfile},
		"convert":   {"convert TYPE [FILE [OUT]]", "Convert an MT message (paste, end with '.')", cmdConvert},
		"history":   {"history [PAGE]", "List past conversions on the server", cmdHistory},
		"delete":    {"delete ID", "Delete a conversion from the server history", cmdDelete},
		"balance":   {"balance", "Show the credit balance", cmdBalance},
		"packages":  {"packages", "List credit packages", cmdPackages},
		"buy":       {"buy PACKAGE", "Buy a credit package", cmdBuy},
		"reconcile": {"reconcile", "Wait for purchased credits to arrive", cmdReconcile},
		"journal":   {"journal [N]", "Show recent local conversion outcomes", cmdJournal},
		"stats":     {"stats", "Show session counters", cmdStats},
		"help":      {"help", "Show this help", cmdHelp},
		"quit":      {"quit", "Leave the shell", func(context.Context, *shell, []string) error { return errQuit }},
	}
	shellCommands["exit"] = shellCommands["quit"]
	shellCommands["whoami"] = shellCommands["status"]
}

func runShell(opts globalOptions) int {
	a, err := newApp(opts)
	if err != nil {
		printError(err.Error())
		return 1
	}
	defer a.close()

	sh := &shell{
		app:   a,
		in:    newPrompter(),
		sigCh: make(chan os.Signal, 1),
	}
	sh.status = tui.NewStatusLine(tui.StatusFunc(a.statusSnapshot), os.Stdout)
	signal.Notify(sh.sigCh, os.Interrupt)
	defer signal.Stop(sh.sigCh)

	unsubscribe := a.bus.Subscribe(func(ev events.Event) {
		if ev.Kind == events.KindNavigateLogin && ev.Reason != "logout" {
			printWarn("Your session has ended. Use 'login' to sign in again.")
		}
	})
	defer unsubscribe()

	printHeader("convertctl " + Version)
	printInfo("API: " + a.cfg.API.BaseURL)

	initCtx, cancel := context.WithTimeout(context.Background(), a.cfg.API.Timeout)
	select {
	case <-a.session.Initialize(initCtx):
	case <-time.After(a.cfg.API.Timeout):
	}
	cancel()

	sh.status.Print()
	fmt.Println("Type 'help' for commands.")

	for {
		sh.status.RenderFooter()
		line, err := sh.in.readLine("convert> ")
		if err != nil {
			fmt.Println()
			return 0
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		cmd, ok := shellCommands[strings.ToLower(fields[0])]
		if !ok {
			printError(fmt.Sprintf("Unknown command %q. Type 'help'.", fields[0]))
			continue
		}

		err = sh.run(cmd, fields[1:])
		if errors.Is(err, errQuit) {
			return 0
		}
		if err != nil {
			printError(err.Error())
		}
	}
}

// run executes one command with a context that Ctrl-C cancels.
func (sh *shell) run(cmd shellCommand, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sh.sigCh:
			cancel()
		case <-done:
		}
	}()

	err := cmd.run(ctx, sh, args)
	sh.app.syncCredits(ctx)
	return err
}

// statusSnapshot adapts the session to the status line.
func (a *app) statusSnapshot() tui.Status {
	snap := a.session.State()
	st := tui.Status{Authenticated: snap.Status == session.StatusAuthenticated}
	if snap.Profile != nil {
		st.Email = snap.Profile.Email()
		st.DisplayName = snap.Profile.DisplayName()
		if n, ok := snap.Profile.Credits(); ok {
			st.Credits = &n
		}
	}
	return st
}

// =============================================================================
// SESSION COMMANDS
// =============================================================================

func cmdStatus(_ context.Context, sh *shell, _ []string) error {
	sh.status.Print()
	if token, ok := sh.app.store.Get(); ok {
		printInfo("Credential: " + utils.MaskKeyShort(token))
	}
	return nil
}

func cmdLogin(ctx context.Context, sh *shell, args []string) error {
	email, password, err := sh.askCredentials(args)
	if err != nil {
		return err
	}
	printStep("Signing in...")
	token, err := sh.app.auth.Authenticate(ctx, email, password)
	if err != nil {
		return userError(auth.Message(err))
	}
	return sh.adopt(ctx, token)
}

func cmdRegister(ctx context.Context, sh *shell, args []string) error {
	email, password, err := sh.askCredentials(args)
	if err != nil {
		return err
	}
	printStep("Creating account...")
	token, err := sh.app.auth.Register(ctx, email, password)
	if err != nil {
		return userError(auth.Message(err))
	}
	printInfo("Check your inbox and run 'verify' with the link to get 5 free credits.")
	return sh.adopt(ctx, token)
}

func cmdVerify(ctx context.Context, sh *shell, args []string) error {
	if len(args) == 0 {
		return userError("usage: verify TOKEN|LINK")
	}
	token := args[0]
	if strings.Contains(token, "token=") {
		if t, err := auth.ParseCallback(token); err == nil {
			token = t
		}
	}
	if err := sh.app.auth.VerifyEmail(ctx, token); err != nil {
		return userError(auth.Message(err))
	}
	printSuccess(auth.MessageVerified)
	return nil
}

func cmdOAuth(ctx context.Context, sh *shell, _ []string) error {
	ctx, cancel := context.WithTimeout(ctx, config.DefaultOAuthTimeout)
	defer cancel()

	h := auth.NewHandoff(sh.app.cfg.API.BaseURL)
	defer h.Close()

	authorizeURL, err := h.Connect(ctx)
	if err != nil {
		return err
	}
	printInfo("Open this URL in your browser to sign in:")
	fmt.Printf("\n  %s%s%s\n\n", tui.ColorCyan, authorizeURL, tui.ColorReset)
	printStep("Waiting for authorization (Ctrl-C to cancel)...")

	token, err := h.WaitForToken(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrOAuthFailed) {
			return userError(auth.MessageOAuthFailed)
		}
		return err
	}
	return sh.adopt(ctx, token)
}

func cmdCallback(ctx context.Context, sh *shell, args []string) error {
	if len(args) == 0 {
		return userError("usage: callback URL")
	}
	token, err := auth.ParseCallback(args[0])
	if err != nil {
		return userError(auth.Message(err))
	}
	return sh.adopt(ctx, token)
}

func cmdLogout(ctx context.Context, sh *shell, _ []string) error {
	sh.app.session.Logout(ctx)
	printSuccess("Signed out")
	return nil
}

func cmdRefresh(ctx context.Context, sh *shell, _ []string) error {
	if err := sh.app.session.Refresh(ctx); err != nil {
		return describe(err)
	}
	sh.status.Print()
	return nil
}

func cmdProfile(ctx context.Context, sh *shell, args []string) error {
	if len(args) > 0 {
		if err := sh.app.session.UpdateProfile(ctx, strings.Join(args, " ")); err != nil {
			return describe(err)
		}
		printSuccess("Profile updated successfully")
	} else if err := sh.app.session.Refresh(ctx); err != nil {
		return describe(err)
	}

	p := sh.app.session.State().Profile
	if p == nil {
		printWarn("No profile loaded")
		return nil
	}
	fmt.Printf("  Email:        %s\n", p.Email())
	fmt.Printf("  Display name: %s\n", p.DisplayName())
	if n, ok := p.Credits(); ok {
		fmt.Printf("  Credits:      %d\n", n)
	}
	return nil
}

// adopt hands a fresh credential to the session and loads the profile.
func (sh *shell) adopt(ctx context.Context, token string) error {
	if err := sh.app.session.Login(token); err != nil {
		return err
	}
	printSuccess("Signed in")
	if err := sh.app.session.Refresh(ctx); err != nil {
		printWarn("Signed in, but the profile could not be loaded: " + apierr.Classify(err).Message)
	}
	sh.status.Print()
	return nil
}

func (sh *shell) askCredentials(args []string) (email, password string, err error) {
	if len(args) > 0 {
		email = args[0]
	} else if email, err = sh.in.readLine("Email: "); err != nil {
		return "", "", err
	}
	if password, err = sh.in.readSecret("Password: "); err != nil {
		return "", "", err
	}
	return email, password, nil
}

// =============================================================================
// CONVERSION COMMANDS
// =============================================================================

func cmdConvert(ctx context.Context, sh *shell, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: convert TYPE [FILE [OUT]] (types: %s)", messageTypeList())
	}
	mt, err := conversion.ParseMessageType(args[0])
	if err != nil {
		return fmt.Errorf("%w (types: %s)", err, messageTypeList())
	}

	var source string
	if len(args) > 1 {
		// #nosec G304 -- user-chosen input file
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		source = string(data)
	} else {
		if source, err = sh.in.readBlock("Paste the MT message, then a line with a single '.':"); err != nil {
			return err
		}
	}

	req := conversion.Request{Source: source, MessageType: mt}
	if err := conversion.Validate(req); err != nil {
		return userError("Please enter a SWIFT MT message to convert")
	}

	printStep(fmt.Sprintf("Converting %s...", mt))
	out := sh.app.convert.Submit(ctx, req)

	outPath := ""
	if len(args) > 2 {
		outPath = args[2]
	}
	return reportOutcome(out, outPath)
}

func cmdHistory(ctx context.Context, sh *shell, args []string) error {
	page := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return userError("usage: history [PAGE]")
		}
		page = n
	}

	entries, ok, err := sh.app.convert.History(ctx)
	if err != nil {
		return userError("Failed to load conversion history: " + apierr.Classify(err).Message)
	}
	if !ok {
		return nil
	}
	if len(entries) == 0 {
		printInfo("No conversions yet")
		return nil
	}

	rows, pages := conversion.Page(entries, page, config.DefaultHistoryPageSize)
	for _, e := range rows {
		fmt.Printf("  %-38s %-10s %-16s %s\n", e.ID, e.ConversionType, e.Status, e.CreatedAt)
	}
	fmt.Printf("  page %d/%d, %d total\n", page, pages, len(entries))
	return nil
}

func cmdDelete(ctx context.Context, sh *shell, args []string) error {
	if len(args) == 0 {
		return userError("usage: delete ID")
	}
	ok, err := sh.app.convert.DeleteHistory(ctx, args[0])
	switch {
	case errors.Is(err, conversion.ErrDeleteUnsupported):
		return userError("Delete not supported by server")
	case err != nil:
		return userError("Failed to delete conversion")
	case ok:
		printSuccess("Conversion deleted")
	}
	return nil
}

func cmdJournal(ctx context.Context, sh *shell, args []string) error {
	if sh.app.journal == nil {
		printWarn("The local journal is disabled")
		return nil
	}
	n := config.DefaultHistoryPageSize
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
			n = v
		}
	}
	entries, err := sh.app.journal.List(ctx, n)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("  %s  %-9s %-24s %6dB  %s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.MessageType, e.Outcome, e.PayloadBytes, e.Message)
	}
	if len(entries) == 0 {
		printInfo("Journal is empty")
	}
	return nil
}

// =============================================================================
// CREDIT COMMANDS
// =============================================================================

func cmdBalance(ctx context.Context, sh *shell, _ []string) error {
	b, ok, err := sh.app.credits.Balance(ctx)
	if err != nil {
		return userError("Failed to fetch credit balance: " + apierr.Classify(err).Message)
	}
	if ok {
		printBalance(b)
	}
	return nil
}

func cmdPackages(ctx context.Context, sh *shell, _ []string) error {
	pkgs, err := sh.app.credits.Packages(ctx)
	if err != nil {
		return userError("Failed to fetch credit packages: " + apierr.Classify(err).Message)
	}
	for _, p := range pkgs {
		marker := " "
		if p.Popular {
			marker = "*"
		}
		fmt.Printf(" %s %-12s %-20s %5d credits  %8.2f %s\n", marker, p.ID, p.Name, p.Credits, p.Price, p.Currency)
		if p.Description != "" {
			fmt.Printf("   %s%s%s\n", tui.ColorDim, p.Description, tui.ColorReset)
		}
	}
	return nil
}

func cmdBuy(ctx context.Context, sh *shell, args []string) error {
	if len(args) == 0 {
		return userError("usage: buy PACKAGE")
	}
	res, err := sh.app.credits.Purchase(ctx, args[0])
	if err != nil {
		return userError(credits.PurchaseMessage(err))
	}

	if !res.NeedsCheckout() {
		if res.Message != "" {
			printSuccess(res.Message)
		}
		return cmdBalance(ctx, sh, nil)
	}

	printInfo("Complete the payment in your browser:")
	fmt.Printf("\n  %s%s%s\n\n", tui.ColorCyan, res.CheckoutURL, tui.ColorReset)
	if !sh.in.confirm("Press Enter once the payment is done to confirm your credits") {
		printInfo("Run 'reconcile' after paying to confirm your credits.")
		return nil
	}
	return cmdReconcile(ctx, sh, nil)
}

func cmdReconcile(ctx context.Context, sh *shell, _ []string) error {
	printStep("Processing your payment...")
	res := sh.app.poller.Reconcile(ctx)

	switch {
	case res.Superseded:
		return nil
	case res.Confirmed:
		printSuccess(fmt.Sprintf("Payment confirmed. You now have %d credits.", res.Balance))
	default:
		printWarn(fmt.Sprintf("No new credits visible yet after %d checks (balance %d). They may take a moment; run 'reconcile' again.",
			res.Attempts, res.Balance))
	}
	return nil
}

func cmdStats(ctx context.Context, sh *shell, _ []string) error {
	s := sh.app.metrics.Snapshot()
	fmt.Printf("  Uptime:        %s\n", s.Uptime)
	fmt.Printf("  Requests:      %d (%d failed, %d session expiries)\n", s.Requests.Total, s.Requests.Failed, s.Requests.Unauthorized)
	fmt.Printf("  Conversions:   %d ok, %d out of credits, %d anonymous limit, %d failed\n",
		s.Conversions.Success, s.Conversions.QuotaExceeded, s.Conversions.AnonymousLimit, s.Conversions.Failure)
	fmt.Printf("  Reconcile:     %d runs, %d checks, %d confirmed\n", s.Reconcile.Runs, s.Reconcile.Attempts, s.Reconcile.Confirmed)

	if sh.app.journal != nil {
		counts, err := sh.app.journal.CountByOutcome(ctx)
		if err == nil && len(counts) > 0 {
			fmt.Printf("  Journal:       %d success, %d failure (all time)\n",
				counts[string(conversion.TagSuccess)], counts[string(conversion.TagFailure)])
		}
	}
	return nil
}

func cmdHelp(context.Context, *shell, []string) error {
	fmt.Println("Commands:")
	for _, name := range shellOrder {
		c := shellCommands[name]
		fmt.Printf("  %-28s %s\n", c.usage, c.help)
	}
	return nil
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func reportOutcome(out conversion.Outcome, outPath string) error {
	switch out.Tag {
	case conversion.TagSuccess:
		if outPath != "" {
			if err := os.WriteFile(outPath, []byte(out.XML), 0o600); err != nil {
				return err
			}
			printSuccess("Converted. Written to " + outPath)
			return nil
		}
		printSuccess("Converted")
		fmt.Println(out.XML)
		return nil
	case conversion.TagQuotaExceeded:
		printWarn(out.Message)
		printInfo("Run 'packages' and 'buy PACKAGE' to add credits.")
	case conversion.TagAnonymousLimitReached:
		printWarn(out.Message)
		printInfo("Run 'register' to create an account.")
	default:
		printError(out.Message)
	}
	return nil
}

func printBalance(b credits.Balance) {
	fmt.Printf("  Available:  %d credits\n", b.AvailableCredits)
	fmt.Printf("  Used:       %d\n", b.TotalCreditsUsed)
	fmt.Printf("  Purchased:  %d\n", b.TotalCreditsPurchased)
	if b.LastUpdated != "" {
		fmt.Printf("  Updated:    %s\n", b.LastUpdated)
	}
}

// describe turns an error into its user-visible message.
func describe(err error) error {
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		return userError("You are not signed in. Use 'login' first.")
	case errors.Is(err, session.ErrEmptyDisplayName):
		return userError("Display name cannot be empty")
	}
	return userError(apierr.Classify(err).Message)
}

func messageTypeList() string {
	names := make([]string, len(conversion.MessageTypes))
	for i, mt := range conversion.MessageTypes {
		names[i] = string(mt)
	}
	return strings.Join(names, ", ")
}
