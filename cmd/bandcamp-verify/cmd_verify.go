package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	ioutils "github.com/handiism/bandcamp-verificator/internal/io"
	"github.com/handiism/bandcamp-verificator/internal/model"
	"github.com/handiism/bandcamp-verificator/internal/verify"
)

const previewCount = 10

var verifyFlags struct {
	input     string
	codes     string
	crumb     string
	clientID  string
	session   string
	identity  string
	output    string
	format    string
	transport string
	verbose   bool
	dryRun    bool
}

// verifyCmd checks a list of codes
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify download codes from a file or the command line",
	Long: `Verifies each code in order and writes one result row per attempted code.

Codes are read one per line from --input, or from --codes separated by
newlines or commas. Ctrl+C stops after the current code and still writes
the results gathered so far.

Example:
  bandcamp-verify verify -i codes.txt -o results.json -f json`,
	RunE: runVerify,
}

func init() {
	f := verifyCmd.Flags()
	f.StringVarP(&verifyFlags.input, "input", "i", "", "File with one code per line")
	f.StringVarP(&verifyFlags.codes, "codes", "c", "", "Codes separated by newlines or commas")
	f.StringVar(&verifyFlags.crumb, "crumb", "", "Crumb for the verify endpoint")
	f.StringVar(&verifyFlags.clientID, "client-id", "", "client_id cookie value")
	f.StringVar(&verifyFlags.session, "session", "", "session cookie value")
	f.StringVar(&verifyFlags.identity, "identity", "", "identity cookie value (optional)")
	f.StringVarP(&verifyFlags.output, "output", "o", "", "Output file (default from config, results.csv)")
	f.StringVarP(&verifyFlags.format, "format", "f", "", "Output format: csv or json")
	f.StringVar(&verifyFlags.transport, "transport", "", "Transport: http or browser")
	f.BoolVarP(&verifyFlags.verbose, "verbose", "v", false, "Print a sample of the results")
	f.BoolVar(&verifyFlags.dryRun, "dry-run", false, "Show what would be verified without sending requests")

	verifyCmd.MarkFlagsMutuallyExclusive("input", "codes")
	verifyCmd.MarkFlagsOneRequired("input", "codes")
}

func loadCodes() ([]string, error) {
	if verifyFlags.input != "" {
		return ioutils.ReadCodesFile(verifyFlags.input, settings.MaxCodeLength)
	}
	raw := strings.ReplaceAll(verifyFlags.codes, ",", "\n")
	return ioutils.SanitizeCodes(raw, settings.MaxCodeLength), nil
}

func applyVerifyFlags() {
	if verifyFlags.output != "" {
		settings.OutputPath = verifyFlags.output
	}
	if verifyFlags.format != "" {
		settings.OutputFormat = strings.ToLower(verifyFlags.format)
	} else if strings.HasSuffix(strings.ToLower(settings.OutputPath), ".json") {
		settings.OutputFormat = ioutils.FormatJSON
	}
	if verifyFlags.transport != "" {
		settings.Transport = strings.ToLower(verifyFlags.transport)
	}
}

// resolveCredentials layers flags over config and env, then prompts for
// anything still missing.
func resolveCredentials(in *os.File) (model.Credentials, error) {
	creds := settings.ToCredentials()
	for _, f := range []struct {
		flag string
		dst  *string
	}{
		{verifyFlags.clientID, &creds.ClientID},
		{verifyFlags.session, &creds.Session},
		{verifyFlags.identity, &creds.Identity},
		{verifyFlags.crumb, &creds.Crumb},
	} {
		if v := strings.TrimSpace(f.flag); v != "" {
			*f.dst = v
		}
	}

	reader := bufio.NewReader(in)
	prompt := func(label string, secret bool) (string, error) {
		fmt.Fprintf(os.Stderr, "%s: ", label)
		if secret && term.IsTerminal(int(in.Fd())) {
			b, err := term.ReadPassword(int(in.Fd()))
			fmt.Fprintln(os.Stderr)
			return strings.TrimSpace(string(b)), err
		}
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}

	var err error
	if creds.ClientID == "" {
		if creds.ClientID, err = prompt("client_id", false); err != nil {
			return creds, fmt.Errorf("read client_id: %w", err)
		}
	}
	if creds.Session == "" {
		if creds.Session, err = prompt("session", true); err != nil {
			return creds, fmt.Errorf("read session: %w", err)
		}
	}
	if creds.Crumb == "" && settings.Transport == verify.TransportHTTP {
		if creds.Crumb, err = prompt("crumb (blank to fetch)", false); err != nil {
			return creds, fmt.Errorf("read crumb: %w", err)
		}
	}
	return creds, nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	applyVerifyFlags()
	if err := settings.Validate(); err != nil {
		return err
	}

	codes, err := loadCodes()
	if err != nil {
		return err
	}
	if len(codes) == 0 {
		return errors.New("no codes to verify")
	}
	if len(codes) > settings.MaxCodes {
		return fmt.Errorf("too many codes: %d (max %d)", len(codes), settings.MaxCodes)
	}

	out := cmd.OutOrStdout()
	if verifyFlags.dryRun {
		fmt.Fprintf(out, "[Dry run - not verifying]\n\n")
		fmt.Fprintf(out, "Codes: %d\n", len(codes))
		for i, code := range codes {
			if i == previewCount {
				fmt.Fprintf(out, "  ... and %d more\n", len(codes)-previewCount)
				break
			}
			fmt.Fprintf(out, "  %d. %s\n", i+1, code)
		}
		fmt.Fprintf(out, "Output: %s (%s)\n", settings.OutputPath, settings.OutputFormat)
		return nil
	}

	creds, err := resolveCredentials(os.Stdin)
	if err != nil {
		return err
	}

	engine, err := verify.Open(cmd.Context(), settings, creds, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	// First signal stops between codes; the request in flight completes.
	var stop atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigCh)
		close(sigCh)
	}()
	go func() {
		if _, ok := <-sigCh; ok {
			fmt.Fprintln(os.Stderr, "\nInterrupted, stopping after current code...")
			stop.Store(true)
		}
	}()

	fmt.Fprintf(out, "Verifying %d code(s) via %s\n\n", len(codes), settings.Transport)
	results := engine.VerifyBatch(context.Background(), codes, func(done, total int, r model.VerificationResult) {
		status := "✓"
		detail := "valid"
		if !r.Success {
			status, detail = "✗", r.Error
		}
		fmt.Fprintf(out, "[%d/%d] %s %s %s (%s)\n", done, total, status, r.Code, detail, ioutils.FormatElapsed(r.ElapsedMS))
	}, stop.Load)

	if err := ioutils.WriteResults(settings.OutputPath, settings.OutputFormat, results); err != nil {
		logger.Error("failed to write results", zap.String("path", settings.OutputPath), zap.Error(err))
		return fmt.Errorf("write results: %w", err)
	}

	success, failed := model.Summary(results)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Total: %d | Successful: %d | Failed: %d\n", len(results), success, failed)
	if len(results) < len(codes) {
		fmt.Fprintf(out, "Stopped early: %d of %d codes attempted\n", len(results), len(codes))
	}
	fmt.Fprintf(out, "Results saved to %s\n", settings.OutputPath)

	if verifyFlags.verbose {
		printSample(out, results)
	}
	return nil
}

func printSample(out io.Writer, results []model.VerificationResult) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NO", "CODE", "STATUS", "SUCCESS", "ELAPSED", "RESPONSE")
	for i, r := range results {
		if i == previewCount {
			break
		}
		t.Row(strconv.Itoa(i+1), r.Code, strconv.Itoa(r.HTTPStatus), strconv.FormatBool(r.Success),
			ioutils.FormatElapsed(r.ElapsedMS), ioutils.Truncate(ioutils.FlattenBody(r.Body), 60))
	}
	fmt.Fprintf(out, "\n%s\n", t.String())
}
