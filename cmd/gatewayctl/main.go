// Command gatewayctl is the operator CLI for the governance gateway: it
// evaluates a single piece of text through the full tier pipeline, inspects
// and sweeps the decision cache, and renders the distribution health badge.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/pranaya-mathur/sovereign-gateway/audit"
	"github.com/pranaya-mathur/sovereign-gateway/cache"
	"github.com/pranaya-mathur/sovereign-gateway/config"
	"github.com/pranaya-mathur/sovereign-gateway/patterns"
	"github.com/pranaya-mathur/sovereign-gateway/policy"
	"github.com/pranaya-mathur/sovereign-gateway/tier3"
	"github.com/pranaya-mathur/sovereign-gateway/tower"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI and returns the process exit code: 0 for
// ALLOW/LOG/WARN, 1 for BLOCK, 2 for a usage or internal error.
func run(args []string) int {
	fs := flag.NewFlagSet("gatewayctl", flag.ContinueOnError)

	var (
		configPath  string
		versionFlag bool
	)
	fs.StringVar(&configPath, "config", "gateway.yaml", "path to the gateway configuration file")
	fs.BoolVar(&versionFlag, "version", false, "print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: gatewayctl <command> [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  evaluate <text>   Run text through the detection pipeline\n")
		fmt.Fprintf(os.Stderr, "  cache stats       Print decision cache hit/miss statistics\n")
		fmt.Fprintf(os.Stderr, "  cache sweep       Evict expired decision cache entries\n")
		fmt.Fprintf(os.Stderr, "  badge             Print the tier-distribution SVG health badge\n")
		fmt.Fprintf(os.Stderr, "  version           Print version and exit\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if versionFlag {
		fmt.Printf("gatewayctl %s (commit: %s)\n", version, commit)
		return 0
	}

	remaining := fs.Args()
	if len(remaining) == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("loading configuration", "path", configPath, "error", err)
		return 2
	}

	command := remaining[0]
	switch command {
	case "evaluate":
		return runEvaluate(remaining[1:], cfg)
	case "cache":
		return runCache(remaining[1:], cfg)
	case "badge":
		return runBadge(cfg)
	case "version":
		fmt.Printf("gatewayctl %s (commit: %s)\n", version, commit)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		fs.Usage()
		return 2
	}
}

// buildTower assembles a tower.Tower from the resolved configuration,
// wiring the pattern catalogue, decision cache, policy document, and audit
// sink the way a long-running gateway process would at startup.
func buildTower(cfg *config.Config) (*tower.Tower, error) {
	cat := patterns.Builtin()
	if p := cfg.PatternPath(); p != "" {
		load := patterns.LoadFromFile
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			load = patterns.LoadFromDir
		}
		loaded, err := load(p)
		if err != nil {
			return nil, fmt.Errorf("loading pattern catalogue: %w", err)
		}
		cat = loaded
	}

	pol := policy.Default()
	if p := cfg.PolicyPath(); p != "" {
		loaded, err := policy.Load(p)
		if err != nil {
			return nil, fmt.Errorf("loading policy document: %w", err)
		}
		pol = loaded
	}

	opts := []tower.Option{tower.WithPolicy(pol)}

	c, err := cache.Load(cfg.CachePath(), cfg.Cache.CacheTTL(cache.DefaultTTL))
	if err != nil {
		return nil, fmt.Errorf("loading decision cache: %w", err)
	}
	opts = append(opts, tower.WithCache(c))

	if apiKey := cfg.Tier3.APIKey(); apiKey != "" {
		agentOpts := []tier3.Option{tier3.WithAPIKey(apiKey)}
		if cfg.Tier3.Model != "" {
			agentOpts = append(agentOpts, tier3.WithModel(cfg.Tier3.Model))
		}
		if cfg.Tier3.BaseURL != "" {
			agentOpts = append(agentOpts, tier3.WithBaseURL(cfg.Tier3.BaseURL))
		}
		agentOpts = append(agentOpts, tier3.WithTimeout(cfg.Tier3.Tier3Timeout(0)))
		provider := tier3.NewOpenAIAgent(agentOpts...)
		agent := tier3.NewAgent(c, provider).WithConfidenceFloor(cfg.Tier3.ConfidenceFloor(tier3.DefaultConfidenceFloor))
		opts = append(opts, tower.WithTier3(agent))
	}

	if p := cfg.AuditPath(); p != "" {
		sink, err := audit.NewFileSink(p)
		if err != nil {
			return nil, fmt.Errorf("opening audit sink: %w", err)
		}
		opts = append(opts, tower.WithAuditSink(sink))
	}

	return tower.New(cat, opts...), nil
}

func runEvaluate(args []string, cfg *config.Config) int {
	fs := flag.NewFlagSet("gatewayctl evaluate", flag.ContinueOnError)
	var contextJSON string
	fs.StringVar(&contextJSON, "context", "", "request context as a JSON object of string fields")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: gatewayctl evaluate [-context '{...}'] <text>")
		return 2
	}
	text := fs.Arg(0)

	var reqContext map[string]string
	if contextJSON != "" {
		if err := json.Unmarshal([]byte(contextJSON), &reqContext); err != nil {
			slog.Error("parsing -context as JSON", "error", err)
			return 2
		}
	}

	tw, err := buildTower(cfg)
	if err != nil {
		slog.Error("building gateway", "error", err)
		return 2
	}

	v := tw.Evaluate(context.Background(), text, reqContext)
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		slog.Error("marshalling verdict", "error", err)
		return 2
	}
	fmt.Println(string(out))

	if v.ShouldBlock() {
		return 1
	}
	return 0
}

func runCache(args []string, cfg *config.Config) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: gatewayctl cache <stats|sweep>")
		return 2
	}

	c, err := cache.Load(cfg.CachePath(), cfg.Cache.CacheTTL(cache.DefaultTTL))
	if err != nil {
		slog.Error("loading decision cache", "error", err)
		return 2
	}

	switch args[0] {
	case "stats":
		out, _ := json.MarshalIndent(c.Stats(), "", "  ")
		fmt.Println(string(out))
		return 0
	case "sweep":
		removed := c.Sweep()
		fmt.Printf("removed %d expired entries\n", removed)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown cache subcommand %q\n", args[0])
		return 2
	}
}

func runBadge(cfg *config.Config) int {
	tw, err := buildTower(cfg)
	if err != nil {
		slog.Error("building gateway", "error", err)
		return 2
	}
	fmt.Println(tw.Monitor().Badge())
	return 0
}
