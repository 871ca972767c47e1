package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/handiism/cloudlibrary-downloader/internal/app"
	"github.com/handiism/cloudlibrary-downloader/internal/cloudlibrary"
	"github.com/handiism/cloudlibrary-downloader/internal/config"
	"github.com/handiism/cloudlibrary-downloader/internal/model"
	"github.com/handiism/cloudlibrary-downloader/internal/progress"
	"github.com/handiism/cloudlibrary-downloader/internal/tui"
)

const header = "cloudLibrary Downloader"

type flags struct {
	library        string
	username       string
	password       string
	promptPassword bool
	cookie         string
	title          string
	dumpJSON       bool
	release        bool
	list           bool
	output         string
	configPath     string
	verbose        bool
	tui            bool
}

func main() {
	os.Exit(execute())
}

func execute() int {
	var (
		f    flags
		code int
	)

	cmd := &cobra.Command{
		Use:   "cloudlibrary-dl",
		Short: "Download borrowed audiobooks from cloudLibrary",
		Example: "  cloudlibrary-dl -l mylib -u 12345678 -p 0000 -t abc123 --dump-json --release\n" +
			"  cloudlibrary-dl -l mylib -c \"$SESSION_COOKIE\" --list",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code = run(cmd.Context(), f)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.library, "library", "l", "", "library identifier as used in the cloudLibrary URL")
	fl.StringVarP(&f.username, "username", "u", "", "library card number")
	fl.StringVarP(&f.password, "password", "p", "", "PIN or password")
	fl.BoolVar(&f.promptPassword, "prompt-password", false, "read the password from the terminal")
	fl.StringVarP(&f.cookie, "cookie", "c", "", "existing session cookie value instead of username and password")
	fl.StringVarP(&f.title, "title", "t", "", "media id to download; borrowed first if not on loan (default: every audiobook on loan)")
	fl.BoolVar(&f.dumpJSON, "dump-json", false, "write <media id>.json with the title metadata")
	fl.BoolVar(&f.release, "release", false, "return the title after a complete download")
	fl.BoolVar(&f.list, "list", false, "list current loans and exit")
	fl.StringVar(&f.output, "output", "", "output directory (overrides config)")
	fl.StringVar(&f.configPath, "config", "", "path to a JSON settings file")
	fl.BoolVar(&f.verbose, "verbose", false, "show verbose output")
	fl.BoolVar(&f.tui, "tui", false, "show an interactive progress view")

	// Handle interrupts
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted, cancelling...")
		cancel()
	}()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return app.ExitConfig
	}
	return code
}

func run(ctx context.Context, f flags) int {
	settings, err := loadSettings(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return app.ExitConfig
	}

	creds := cloudlibrary.Credentials{Username: f.username, Password: f.password, Token: f.cookie}
	if f.promptPassword || (f.username != "" && f.password == "" && f.cookie == "") {
		creds.Password, err = readPassword("Password: ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading password: %v\n", err)
			return app.ExitConfig
		}
	}

	opts := app.Options{
		Library:     f.library,
		Credentials: creds,
		MediaID:     strings.TrimSpace(f.title),
		DumpJSON:    f.dumpJSON,
		Release:     f.release,
		List:        f.list,
	}

	var (
		report *app.Report
		runErr error
	)
	if f.tui {
		program := tui.NewProgram(ctx, header, f.verbose)
		a, err := app.New(settings, program.Handle)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return app.ExitCode(err, nil)
		}
		report, runErr = program.Run(a, func(ctx context.Context) (*app.Report, error) {
			return a.Run(ctx, opts)
		})
	} else {
		printer := progress.NewPrinter(os.Stdout, f.verbose)
		a, err := app.New(settings, printer.Handle)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return app.ExitCode(err, nil)
		}
		fmt.Println(header)
		fmt.Println(strings.Repeat("─", 40))
		report, runErr = a.Run(ctx, opts)
		printSummary(report)
	}

	code := app.ExitCode(runErr, report)
	if runErr != nil && code != app.ExitInterrupted {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
	}
	if code == app.ExitInterrupted {
		fmt.Fprintln(os.Stderr, "Download cancelled.")
	}
	return code
}

// loadSettings layers the settings file, the environment and the flags.
func loadSettings(f flags) (*config.Settings, error) {
	settings := config.DefaultSettings()
	if f.configPath != "" {
		var err error
		if settings, err = config.Load(f.configPath); err != nil {
			return nil, err
		}
	}
	if err := settings.LoadEnv(); err != nil {
		return nil, err
	}
	if f.output != "" {
		settings.DownloadsPath = f.output
	}
	if f.library != "" {
		settings.Library = f.library
	}
	return settings, nil
}

func readPassword(prompt string) (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal; pass --password")
	}
	fmt.Fprint(os.Stderr, prompt)
	bytePassword, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(bytePassword)), nil
}

func printSummary(report *app.Report) {
	if report == nil || len(report.Titles) == 0 {
		return
	}

	fmt.Println()
	fmt.Println(strings.Repeat("─", 40))
	for _, t := range report.Titles {
		name := t.Title
		if name == "" {
			name = t.MediaID
		}
		switch {
		case t.Err != nil:
			fmt.Printf("✗ %s: %v\n", name, t.Err)
		default:
			tally := t.Tally
			fmt.Printf("%s %s: %d/%d chapters (%d already present, %d failed), %.2f MB\n",
				mark(tally), name, tally.Succeeded, len(t.Outcomes), tally.Skipped, tally.Failed,
				float64(tally.Bytes)/1024/1024)
			if t.Dir != "" {
				fmt.Printf("  %s\n", t.Dir)
			}
		}
	}
	for _, tr := range report.Transitions() {
		fmt.Printf("  %s: %s → %s\n", tr.MediaID, tr.From, tr.To)
	}
}

func mark(t model.Tally) string {
	if t.Complete() {
		return "✓"
	}
	return "!"
}
