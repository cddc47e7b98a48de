package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/llm-gauge/internal/evaluation"
	"github.com/giantswarm/llm-gauge/internal/kserve"
	"github.com/giantswarm/llm-gauge/internal/llm"
	"github.com/giantswarm/llm-gauge/internal/runner"
	"github.com/giantswarm/llm-gauge/internal/suts"
)

type judgeFlags struct {
	endpoint string
	apiKey   string
	model    string
	timeout  time.Duration
}

func (f *judgeFlags) addTo(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.endpoint, "judge-endpoint", "", "OpenAI-compatible endpoint of the LLM judge")
	cmd.Flags().StringVar(&f.apiKey, "judge-api-key", "", "API key of the LLM judge (or set OPENAI_API_KEY)")
	cmd.Flags().StringVar(&f.model, "judge-model", "", "Model of the LLM judge")
	cmd.Flags().DurationVar(&f.timeout, "judge-timeout", 2*time.Minute, "Timeout of a single LLM judge call (0 disables it)")
}

func (f judgeFlags) client() llm.Client {
	var opts []llm.Option
	if f.model != "" {
		opts = append(opts, llm.WithModel(f.model))
	}
	if f.timeout > 0 {
		opts = append(opts, llm.WithHTTPClient(&http.Client{Timeout: f.timeout}))
	}
	return suts.NewLLMClient(f.endpoint, f.apiKey, opts...)
}

func newRunCmd() *cobra.Command {
	var (
		sutType      string
		sutConfig    string
		sutUID       string
		model        string
		endpoint     string
		apiKey       string
		temperature  float64
		testsDir     string
		dataDir      string
		outputDir    string
		maxTestItems int
		noCaching    bool
		noProgress   bool
		workers      int
		callTimeout  time.Duration
		discover     string
		inCluster    bool
		timeout      time.Duration
		transcript   bool
		judge        judgeFlags
	)

	cmd := &cobra.Command{
		Use:   "run <test>",
		Short: "Run a test against a system under test",
		Long: `Run every item of a test against a system under test (SUT), annotate the
responses, aggregate the results and write a JSON test record to the output
directory.

The SUT is described by --sut-config (a YAML file) and/or flags; flags win.
An OpenAI-compatible SUT can be served on KServe for the duration of the run by
a "deployment" block in the SUT config, or found on an existing InferenceService
with --discover-endpoint.

SUT and annotator responses are cached under --data-dir, so re-running a test
only calls the SUT for items it has not seen.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			cfg := suts.Config{Type: suts.TypeOpenAI}
			if sutConfig != "" {
				var err error
				if cfg, err = suts.LoadConfig(sutConfig); err != nil {
					return err
				}
			}
			flags := cmd.Flags()
			if flags.Changed("sut-type") || cfg.Type == "" {
				cfg.Type = sutType
			}
			if flags.Changed("sut-uid") {
				cfg.UID = sutUID
			}
			if flags.Changed("model") {
				cfg.Model = model
			}
			if flags.Changed("endpoint") {
				cfg.Endpoint = endpoint
			}
			if flags.Changed("api-key") {
				cfg.APIKey = apiKey
			}
			if flags.Changed("temperature") {
				cfg.Temperature = llm.Float64Ptr(temperature)
			}

			opts := []runner.Option{
				runner.WithCaching(!noCaching),
				runner.WithProgressBar(!noProgress),
				runner.WithWorkers(workers),
				runner.WithCallTimeout(callTimeout),
			}
			if flags.Changed("max-test-items") {
				opts = append(opts, runner.WithMaxTestItems(maxTestItems))
			}

			var manager *kserve.Manager
			if cfg.Deployment != nil || discover != "" {
				namespace, _ := cmd.Flags().GetString("namespace")
				kubeconfig, _ := cmd.Flags().GetString("kubeconfig")
				var err error
				if manager, err = kserve.NewManager(namespace, kubeconfig, inCluster); err != nil {
					return fmt.Errorf("failed to create KServe manager: %w", err)
				}
			}

			out, err := evaluation.Execute(ctx, evaluation.Request{
				Test:             args[0],
				TestsDir:         testsDir,
				SUT:              cfg,
				DiscoverEndpoint: discover,
				DataDir:          dataDir,
				OutputDir:        outputDir,
				Judge:            judge.client(),
				Options:          opts,
			}, manager)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(w)
			if transcript {
				_, _ = fmt.Fprint(w, out.Record.Transcript())
				_, _ = fmt.Fprintln(w, "---")
			}
			_, _ = fmt.Fprint(w, out.Record.Summary())
			_, _ = fmt.Fprintf(w, "Record: %s\n", out.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&sutType, "sut-type", suts.TypeOpenAI, "SUT type: openai, anthropic or echo")
	cmd.Flags().StringVar(&sutConfig, "sut-config", "", "YAML file describing the SUT")
	cmd.Flags().StringVar(&sutUID, "sut-uid", "", "UID to record the SUT under (default: <type>/<model>)")
	cmd.Flags().StringVar(&model, "model", "", "Model name sent to the SUT")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "SUT API endpoint URL")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "SUT API key (or set OPENAI_API_KEY / ANTHROPIC_API_KEY)")
	cmd.Flags().Float64Var(&temperature, "temperature", 0.0, "Default temperature for prompts that do not set one")
	cmd.Flags().StringVar(&testsDir, "tests-dir", "", "External tests directory")
	cmd.Flags().StringVar(&dataDir, "data-dir", "data", "Directory for caches and downloaded dependencies")
	cmd.Flags().StringVar(&outputDir, "output-dir", "results", "Directory for test records")
	cmd.Flags().IntVar(&maxTestItems, "max-test-items", 0, "Run a deterministic sample of at most this many test items")
	cmd.Flags().BoolVar(&noCaching, "no-caching", false, "Call the SUT and annotators even for cached requests")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	cmd.Flags().IntVar(&workers, "workers", 1, "Number of test items processed concurrently")
	cmd.Flags().DurationVar(&callTimeout, "call-timeout", 0, "Timeout for each SUT and annotator call. 0 means no timeout")
	cmd.Flags().StringVar(&discover, "discover-endpoint", "", "Use the endpoint of this existing KServe InferenceService")
	cmd.Flags().BoolVar(&inCluster, "in-cluster", false, "Use in-cluster Kubernetes authentication")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall timeout for the test run (e.g. 30m, 1h). 0 means no timeout")
	cmd.Flags().BoolVar(&transcript, "transcript", false, "Print every question and answer after the run")
	judge.addTo(cmd)

	return cmd
}
