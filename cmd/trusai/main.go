package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/config"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/ledger"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/ledger/ledgerdb"
	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

const defaultAddr = "http://localhost:8080"

func main() {
	exitFn(run(os.Args[1:], os.Stdout, os.Stderr))
}

var exitFn = os.Exit

// errChainInvalid makes verify exit 1 without printing an extra error line.
var errChainInvalid = errors.New("chain verification failed")

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(context.Background())
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errChainInvalid):
		return 1
	}
	fmt.Fprintln(stderr, err.Error())
	var uerr usageError
	if errors.As(err, &uerr) {
		return 2
	}
	return 1
}

type cliOptions struct {
	addr    string
	token   string
	jsonOut bool
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "trusai",
		Short:         "TRUSAI operator CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })
	root.PersistentFlags().StringVar(&opts.addr, "addr", envOrDefault("TRUSAI_ADDR", defaultAddr), "gateway address")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("TRUSAI_ADMIN_TOKEN"), "operator bearer token")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print raw JSON response")

	root.AddCommand(
		newVerifyCmd(opts, stdout),
		newEventsCmd(opts, stdout),
		newConsentCmd(opts, stdout),
		newModelCmd(opts, stdout),
		newFairnessCmd(opts, stdout),
	)
	return root
}

func newVerifyCmd(opts *cliOptions, stdout io.Writer) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the decision and governance chains",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				decisionRes, governanceRes types.ChainVerification
				err                        error
			)
			if configPath != "" {
				decisionRes, governanceRes, err = verifyOffline(cmd.Context(), configPath)
				if err != nil {
					return err
				}
			} else {
				var report struct {
					Decision   types.ChainVerification `json:"decision_chain"`
					Governance types.ChainVerification `json:"governance_chain"`
				}
				body, err := call(opts, http.MethodGet, "/v1/governance/verify", nil)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					_, _ = stdout.Write(body)
				}
				if err := json.Unmarshal(body, &report); err != nil {
					return fmt.Errorf("invalid response: %w", err)
				}
				decisionRes, governanceRes = report.Decision, report.Governance
			}
			if !opts.jsonOut {
				printVerification(stdout, "decision", decisionRes)
				printVerification(stdout, "governance", governanceRes)
			}
			if !decisionRes.Valid || !governanceRes.Valid {
				return errChainInvalid
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "verify the configured database directly instead of calling the gateway")
	return cmd
}

// verifyOffline opens the ledger named by the gateway config and verifies
// both chains without a running gateway.
func verifyOffline(ctx context.Context, configPath string) (types.ChainVerification, types.ChainVerification, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return types.ChainVerification{}, types.ChainVerification{}, err
	}
	store, closeFn, err := ledgerdb.Open(ctx, cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return types.ChainVerification{}, types.ChainVerification{}, err
	}
	defer func() { _ = closeFn() }()

	l := ledger.New(store, nil)
	decisionRes, err := l.VerifyDecisions(ctx)
	if err != nil && !errors.Is(err, ledger.ErrIntegrity) {
		return types.ChainVerification{}, types.ChainVerification{}, err
	}
	governanceRes, err := l.VerifyGovernance(ctx)
	if err != nil && !errors.Is(err, ledger.ErrIntegrity) {
		return types.ChainVerification{}, types.ChainVerification{}, err
	}
	return decisionRes, governanceRes, nil
}

func printVerification(w io.Writer, chain string, res types.ChainVerification) {
	if res.Valid {
		fmt.Fprintf(w, "valid=true chain=%s entries=%d\n", chain, res.Entries)
		return
	}
	fmt.Fprintf(w, "valid=false chain=%s entries=%d failed_seq=%d error=%s\n", chain, res.Entries, res.FailedSeq, res.Reason)
}

func newEventsCmd(opts *cliOptions, stdout io.Writer) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent governance events",
		Args:  noArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			body, err := call(opts, http.MethodGet, "/v1/governance/events?limit="+strconv.Itoa(limit), nil)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				_, err = stdout.Write(body)
				return err
			}
			var payload struct {
				Events []ledger.GovernanceEvent `json:"events"`
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				return fmt.Errorf("invalid response: %w", err)
			}
			for _, e := range payload.Events {
				fmt.Fprintf(stdout, "%d\t%s\t%s\t%s\n", e.Seq, e.CreatedAt, e.EventType, e.ScorerVersion)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of events")
	return cmd
}

func newConsentCmd(opts *cliOptions, stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consent",
		Short: "Show or change the consent state",
		Args:  noArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return printConsent(opts, stdout, http.MethodGet, "/v1/consent", nil)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <group>=<true|false>...",
		Short: "Set consent for one or more groups",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			state, err := parseConsentArgs(args)
			if err != nil {
				return usageError{err}
			}
			payload, err := json.Marshal(map[string]any{"consent": state})
			if err != nil {
				return err
			}
			return printConsent(opts, stdout, http.MethodPut, "/v1/consent", payload)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Restore default consent",
		Args:  noArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return printConsent(opts, stdout, http.MethodPost, "/v1/consent/reset", nil)
		},
	})
	return cmd
}

// parseConsentArgs reads group=bool pairs. Group names may contain spaces,
// so the split is on the last '='.
func parseConsentArgs(args []string) (map[string]bool, error) {
	state := make(map[string]bool, len(args))
	for _, arg := range args {
		i := strings.LastIndex(arg, "=")
		if i <= 0 {
			return nil, fmt.Errorf("expected <group>=<true|false>, got %q", arg)
		}
		allowed, err := strconv.ParseBool(arg[i+1:])
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", arg[:i], err)
		}
		state[arg[:i]] = allowed
	}
	return state, nil
}

func printConsent(opts *cliOptions, stdout io.Writer, method, path string, payload []byte) error {
	body, err := call(opts, method, path, payload)
	if err != nil {
		return err
	}
	if opts.jsonOut {
		_, err = stdout.Write(body)
		return err
	}
	var view types.ConsentView
	if err := json.Unmarshal(body, &view); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	for _, group := range sortedKeys(view.Consent) {
		fmt.Fprintf(stdout, "%s=%t\n", group, view.Consent[group])
	}
	return nil
}

func newModelCmd(opts *cliOptions, stdout io.Writer) *cobra.Command {
	show := func(method, path string) func(*cobra.Command, []string) error {
		return func(_ *cobra.Command, _ []string) error {
			body, err := call(opts, method, path, nil)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				_, err = stdout.Write(body)
				return err
			}
			var status types.ModelStatus
			if err := json.Unmarshal(body, &status); err != nil {
				return fmt.Errorf("invalid response: %w", err)
			}
			if status.Model == nil {
				fmt.Fprintf(stdout, "version=%s active=%t\n", status.Version, status.Active)
				return nil
			}
			fmt.Fprintf(stdout, "version=%s active=%t name=%s hash=%s features=%d\n",
				status.Version, status.Active, status.Model.Name, status.Model.Hash, len(status.Model.Features))
			return nil
		}
	}
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Show model status",
		Args:  noArgs,
		RunE:  show(http.MethodGet, "/v1/governance/model"),
	}
	cmd.AddCommand(
		&cobra.Command{Use: "pause", Short: "Stop serving decisions", Args: noArgs, RunE: show(http.MethodPost, "/v1/governance/model/pause")},
		&cobra.Command{Use: "resume", Short: "Resume serving decisions", Args: noArgs, RunE: show(http.MethodPost, "/v1/governance/model/resume")},
	)
	return cmd
}

func newFairnessCmd(opts *cliOptions, stdout io.Writer) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "fairness",
		Short: "Print the latest fairness assessment",
		Args:  noArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path := "/v1/governance/fairness"
			if refresh {
				path += "?refresh=true"
			}
			body, err := call(opts, http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				_, err = stdout.Write(body)
				return err
			}
			var res struct {
				Metrics types.FairnessReport `json:"metrics"`
				Alert   types.BiasAlert      `json:"alert"`
			}
			if err := json.Unmarshal(body, &res); err != nil {
				return fmt.Errorf("invalid response: %w", err)
			}
			if !res.Metrics.Available {
				fmt.Fprintf(stdout, "available=false reason=%s\n", res.Metrics.Reason)
				return nil
			}
			fmt.Fprintf(stdout, "attribute=%s population=%d bias_detected=%t\n", res.Metrics.SensitiveAttribute, res.Metrics.Population, res.Alert.BiasDetected)
			for _, group := range sortedKeys(res.Metrics.SelectionRateByGroup) {
				fmt.Fprintf(stdout, "  %s=%.4f\n", group, res.Metrics.SelectionRateByGroup[group])
			}
			for _, r := range res.Alert.Reasons {
				fmt.Fprintf(stdout, "  alert: %s\n", r.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "run the monitor instead of reading the latest result")
	return cmd
}

func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return usageError{err}
	}
	return nil
}

func call(opts *cliOptions, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, strings.TrimRight(opts.addr, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s failed: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func envOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
