// Command query sends a single prompt to an LLM provider and prints the
// reply.
//
//	query "What is the capital of France?"
//	query -p openai -m gpt-4o --stream "Tell me a story"
//	query -f diagram.png "What does this diagram show?"
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/abstractllm/abstractllm"
	"github.com/abstractllm/abstractllm/pkg/config"
	"github.com/abstractllm/abstractllm/pkg/handlers"
	"github.com/abstractllm/abstractllm/pkg/llm"
	"github.com/abstractllm/abstractllm/pkg/media"
)

const defaultProvider = "anthropic"

// stringSlice collects repeated flag values.
type stringSlice []string

func (s *stringSlice) String() string { return strings.Join(*s, ",") }

func (s *stringSlice) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type cliFlags struct {
	provider   string
	model      string
	apiKey     string
	system     string
	files      stringSlice
	stream     bool
	debug      bool
	configPath string
	envFile    string
	timeout    string
	verbose    bool
}

func main() {
	// Handle subcommands before flag parsing.
	if len(os.Args) > 1 && os.Args[1] == "init" {
		initCmd := flag.NewFlagSet("init", flag.ExitOnError)
		initCmd.Usage = func() {
			fmt.Fprintf(os.Stderr, "Usage: query init [flags]\n\nCreate a query.yaml config file interactively.\n\nFlags:\n")
			initCmd.PrintDefaults()
		}
		path := initCmd.String("config", "query.yaml", "path to write the configuration file")
		_ = initCmd.Parse(os.Args[2:])

		if err := runInit(*path); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	var f cliFlags

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: query [flags] \"prompt\"\n       query init [flags]\n\nFlags:\n")
		flag.PrintDefaults()
	}

	flag.StringVar(&f.provider, "provider", "", "provider to use (openai, anthropic, ollama, gemini)")
	flag.StringVar(&f.provider, "p", "", "shorthand for -provider")
	flag.StringVar(&f.model, "model", "", "model override")
	flag.StringVar(&f.model, "m", "", "shorthand for -model")
	flag.StringVar(&f.apiKey, "api-key", "", "API key (overrides config and environment)")
	flag.StringVar(&f.system, "system", "", "system prompt")
	flag.StringVar(&f.system, "s", "", "shorthand for -system")
	flag.Var(&f.files, "file", "attach a file, URL, data URI, or s3:// object (repeatable)")
	flag.Var(&f.files, "f", "shorthand for -file")
	flag.BoolVar(&f.stream, "stream", false, "stream the response as it is generated")
	flag.BoolVar(&f.debug, "debug", false, "write request payloads as JSON under the debug directory")
	flag.StringVar(&f.configPath, "config", "", "path to configuration file (default: query.yaml or ~/.config/abstractllm/query.yaml)")
	flag.StringVar(&f.envFile, "env", ".env", "path to .env file (ignored if missing)")
	flag.StringVar(&f.timeout, "timeout", "", "request timeout as a duration (e.g. 2m, 30s)")
	flag.BoolVar(&f.verbose, "verbose", false, "log requests and token usage to stderr")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	setupLogging(f.verbose)

	if err := loadDotEnv(f.envFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(f, flag.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		os.Exit(1)
	}
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func run(f cliFlags, prompt string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfigFile(f.configPath)
	if err != nil {
		return err
	}

	name := firstNonEmpty(f.provider, cfg.Provider, defaultProvider)
	params := cfg.ParamsFor(name)
	applyFlags(params, f)

	if timeout := firstNonEmpty(f.timeout, cfg.Timeout); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("query: invalid timeout %q: %w", timeout, err)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	var hs []handlers.Handler
	if f.verbose {
		hs = append(hs, handlers.NewLogger(slog.Default()))
	}
	if f.debug {
		dir := cfg.DebugDir
		if dir == "" {
			dir = "debug"
		}
		rec, err := handlers.NewRecorder(dir)
		if err != nil {
			return err
		}
		hs = append(hs, rec)
	}

	p, err := abstractllm.New(ctx, name, params, abstractllm.WithHandlers(hs...))
	if err != nil {
		return err
	}

	var opts []llm.GenerateOption
	if len(f.files) > 0 {
		inputs, err := media.FromSources(ctx, f.files)
		if err != nil {
			return err
		}
		opts = append(opts, llm.WithFiles(inputs...))
	}

	stream := f.stream || cfg.Stream
	if stream {
		return runStream(ctx, p, prompt, opts)
	}
	return runOnce(ctx, p, prompt, opts, f.verbose)
}

func loadConfigFile(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	if path == "" {
		return Config{}, nil
	}
	return LoadConfig(path)
}

// applyFlags folds command-line values into the instance parameters. Flags
// win over the config file.
func applyFlags(params config.Params, f cliFlags) {
	if f.model != "" {
		params[config.Model] = f.model
	}
	if f.apiKey != "" {
		params[config.APIKey] = f.apiKey
	}
	if f.system != "" {
		params[config.SystemPrompt] = f.system
	}
}

func runOnce(ctx context.Context, p llm.Provider, prompt string, opts []llm.GenerateOption, verbose bool) error {
	resp, err := p.Generate(ctx, prompt, opts...)
	if err != nil {
		return err
	}

	fmt.Print(renderMarkdown(resp.Text))

	if verbose {
		slog.Info("generation finished",
			"model", resp.Model,
			"finish_reason", resp.FinishReason,
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens)
	}
	return nil
}

func runStream(ctx context.Context, p llm.Provider, prompt string, opts []llm.GenerateOption) error {
	ch, err := p.GenerateStream(ctx, prompt, opts...)
	if err != nil {
		return err
	}

	for chunk := range ch {
		if chunk.Err != nil {
			fmt.Println()
			return chunk.Err
		}
		fmt.Print(chunk.Delta)
	}
	fmt.Println()

	return ctx.Err()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
