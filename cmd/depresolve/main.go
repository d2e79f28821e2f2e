package main

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"maps"
	"os"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/amterp/color"
	mapset "github.com/deckarep/golang-set/v2"
	dr "github.com/rhansen/depresolve"
	"github.com/rhansen/depresolve/internal/command"
	"github.com/rhansen/depresolve/internal/logging"
	"github.com/rhansen/depresolve/repository"
)

//go:embed depresolve.1.in
var man []byte

var (
	cyanf    = color.New(color.FgCyan).SprintfFunc()
	redf     = color.New(color.FgRed).SprintfFunc()
	hiblackf = color.New(color.FgHiBlack).SprintfFunc()
)

type outputFn = func(ctx context.Context, g *dr.Graph) error

type config struct {
	root     string
	repos    []string
	exec     string
	conf     string
	resolver *dr.ConflictResolver
	output   *outputFn
	prefetch int
	check    bool
}

func ver() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi.Main.Version == "(devel)" {
		return ""
	}
	return bi.Main.Version
}

func showMan(ctx context.Context) error {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return fmt.Errorf("failed to fetch Go build information")
	}
	date := ""
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.time":
			when, err := time.Parse(time.RFC3339, s.Value)
			if err != nil {
				return fmt.Errorf("failed to parse vcs.time %q: %w", s.Value, err)
			}
			date = when.Format(time.DateOnly)
		}
	}
	man := bytes.ReplaceAll(man, []byte("%DATE%"), []byte(date))
	man = bytes.ReplaceAll(man, []byte("%VERSION%"), []byte(ver()))
	cmd := command.New(ctx, ".", "man", "-l", "-")
	cmd.Stdin = bytes.NewBuffer(man)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("man failed: %w", err)
	}
	return nil
}

var allResolvers = map[string]*dr.ConflictResolver{
	"latest": &dr.LatestVersion,
	"fail":   &dr.FailOnVersionConflict,
}

var allOutputFuncs = [...]outputFn{
	outputTree,
	outputRaw,
	outputDot,
	outputOrder,
}

var allOutput = map[string]*outputFn{
	"tree":  &allOutputFuncs[0],
	"raw":   &allOutputFuncs[1],
	"dot":   &allOutputFuncs[2],
	"order": &allOutputFuncs[3],
}

func nodeCompare(a, b *dr.Node) int {
	if c := dr.ComponentIdentityCompare(a.Component(), b.Component()); c != 0 {
		return c
	}
	return strings.Compare(a.Configuration(), b.Configuration())
}

func outputTree(ctx context.Context, g *dr.Graph) error {
	seenMsg := hiblackf(" (repeat)")
	intransitiveMsg := cyanf(" (intransitive)")
	seen := mapset.NewSet[*dr.Node]()
	var visit func(n *dr.Node, e *dr.Edge, indent int)
	visit = func(n *dr.Node, e *dr.Edge, indent int) {
		wasSeen := !seen.Add(n)
		fmt.Print(strings.Repeat("  ", indent))
		if e != nil && e.Requested().Version != n.Component().Version {
			fmt.Print(hiblackf("%v -> ", e.Requested()))
		}
		if wasSeen {
			fmt.Printf("%s%s", hiblackf("%v", n), seenMsg)
		} else {
			fmt.Print(n)
		}
		if e != nil && !e.Transitive() {
			fmt.Print(intransitiveMsg)
		}
		fmt.Print("\n")
		if wasSeen {
			return
		}
		for e := range n.Outgoing() {
			if err := e.Failure(); err != nil {
				fmt.Print(strings.Repeat("  ", indent+1))
				fmt.Printf("%s\n", redf("%v FAILED: %v", e.Requested(), errors.Unwrap(err)))
				continue
			}
			for _, m := range e.To() {
				visit(m, e, indent+1)
			}
		}
	}
	visit(g.Root(), nil, 0)
	return nil
}

func outputRaw(ctx context.Context, g *dr.Graph) error {
	for _, n := range slices.SortedFunc(g.Nodes(), nodeCompare) {
		fmt.Printf("%v\n", n)
	}
	return nil
}

func outputOrder(ctx context.Context, g *dr.Graph) error {
	for _, n := range dr.DependenciesFirst(g) {
		fmt.Printf("%v\n", n)
	}
	return nil
}

func outputDot(ctx context.Context, g *dr.Graph) error {
	fmt.Print("digraph {\n")
	fmt.Print("  outputorder= \"edgesfirst\";\n")
	fmt.Print("  overlap = prism;\n")
	fmt.Print("  overlap_scaling = -10;\n")
	fmt.Print("  node [style=filled,fillcolor=\"white\",shape=box];\n")
	for _, n := range slices.SortedFunc(g.Nodes(), nodeCompare) {
		attrs := []string{}
		if n == g.Root() {
			attrs = append(attrs, "fillcolor=\"black\"", "fontcolor=\"white\"")
		}
		fmt.Printf("  %q [%s];\n", n, strings.Join(attrs, ","))
	}
	for _, n := range slices.SortedFunc(g.Nodes(), nodeCompare) {
		for e := range n.Outgoing() {
			attrs := []string{}
			if !e.Transitive() {
				attrs = append(attrs, "class=\"intransitive\"", "style=\"dashed\"")
			}
			if e.Failure() != nil {
				attrs = append(attrs, "color=\"red\"")
				fmt.Printf("  %q -> %q [%s];\n", n, e.Requested(), strings.Join(attrs, ","))
				continue
			}
			for _, m := range e.To() {
				fmt.Printf("  %q -> %q [%s];\n", n, m, strings.Join(attrs, ","))
			}
		}
	}
	fmt.Print("}\n")
	return nil
}

// errFailures is returned by run when the graph was printed but some dependencies failed.
var errFailures = errors.New("some dependencies could not be resolved")

func run(ctx context.Context, cfg *config) error {
	repo := repository.NewStatic()
	for _, p := range cfg.repos {
		if err := load(repo, p); err != nil {
			return err
		}
	}
	var provider dr.MetadataProvider = repo
	if cfg.exec != "" {
		provider = repository.Chain(repo, &repository.Exec{Args: strings.Fields(cfg.exec)})
	}
	rootId, err := dr.ParseComponentIdentity(cfg.root)
	if err != nil {
		return err
	}
	root, err := repo.Lookup(rootId)
	if err != nil {
		return err
	}
	opts := []dr.Option{
		dr.WithConflictResolver(*cfg.resolver),
		dr.WithPrefetch(cfg.prefetch),
	}
	if cfg.check {
		opts = append(opts, dr.WithInvariantChecks())
	}
	g, err := dr.Resolve(ctx, provider, root, cfg.conf, opts...)
	if err != nil {
		return err
	}
	if err := (*cfg.output)(ctx, g); err != nil {
		return err
	}
	for _, f := range g.Failures() {
		slog.ErrorContext(ctx, "unresolved dependency", "error", f)
	}
	if len(g.Failures()) > 0 {
		return errFailures
	}
	return nil
}

func load(repo *repository.Static, p string) (retErr error) {
	fi, err := os.Stat(p)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return repo.AddFromDir(p)
	}
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); retErr == nil {
			retErr = err
		}
	}()
	if err := repo.LoadYAML(f); err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}
	return nil
}

var slogLevel = func() *slog.LevelVar {
	lvl := &slog.LevelVar{}
	lvl.Set(logging.LevelInfo)
	slog.SetDefault(slog.New(logging.NewHandler(os.Stderr, lvl)))
	return lvl
}()

func choiceFlag[T any](p *T, name string, choices map[string]T, dflt string, post func(string) error, usage string) {
	cstr := strings.Join(slices.Sorted(maps.Keys(choices)), ", ")
	var ok bool
	if *p, ok = choices[dflt]; !ok {
		panic(fmt.Errorf("invalid default for %v option: %v", dflt, name))
	}
	usage += fmt.Sprintf(" (one of: %v; default: %v)", cstr, dflt)
	flag.Func(name, usage, func(arg string) error {
		if arg == "" {
			arg = dflt
		}
		v, ok := choices[arg]
		if !ok {
			return fmt.Errorf("expected one of: %v", cstr)
		}
		*p = v
		if post != nil {
			return post(arg)
		}
		return nil
	})
}

func parseFlags(ctx context.Context) *config {
	cfg := &config{}

	flag.BoolFunc("v", "Increase log verbosity, or set it to the given level.", logging.VerbosityFlag(slogLevel, true))
	flag.BoolFunc("q", "Decrease log verbosity, or set it to the given level.", logging.VerbosityFlag(slogLevel, false))

	colorChoices := map[string]bool{
		"auto":   color.NoColor,
		"never":  true,
		"always": false,
	}
	choiceFlag(&color.NoColor, "color", colorChoices, "auto", nil,
		"Output colors according to `mode`.")
	flag.Func("repo", "Read YAML repository descriptors from `path` (a file or a directory).  May be repeated.",
		func(arg string) error {
			cfg.repos = append(cfg.repos, arg)
			return nil
		})
	flag.StringVar(&cfg.exec, "exec", "",
		"Obtain metadata missing from the repository descriptors by running `command`.")
	flag.StringVar(&cfg.conf, "conf", dr.DefaultConfiguration, "Resolve the root component's `configuration`.")
	choiceFlag(&cfg.resolver, "conflict", allResolvers, "latest", nil,
		"Reconcile competing versions of a module according to `mode`.")
	choiceFlag(&cfg.output, "format", allOutput, "tree", nil,
		"Print the graph according to `mode`.")
	flag.IntVar(&cfg.prefetch, "prefetch", 8, "Fetch metadata for up to `n` dependencies concurrently.")
	flag.BoolVar(&cfg.check, "check", false, "Verify the consistency of the graph after every step (slow).")
	flag.BoolFunc("man", "Show the usage manual and exit.", func(_ string) error {
		if err := showMan(ctx); err != nil {
			log.Fatal(err)
		}
		os.Exit(0)
		return nil
	})
	help := func(string) error {
		// Pet peeve: Help output should be written to standard output, not standard error, when the
		// user explicitly requests the help.  This makes it easier for them to pipe the help output to
		// a pager.
		flag.CommandLine.SetOutput(os.Stdout)
		flag.Usage()
		os.Exit(0)
		return nil
	}
	helpUsage := "Print usage information and exit."
	flag.BoolFunc("h", helpUsage, help)
	flag.BoolFunc("help", helpUsage, help)
	flag.BoolFunc("version", "Print the version and exit.", func(string) error {
		v := ver()
		if v == "" {
			log.Fatal("the Go build information is unavalable; try passing the \"-buildvcs=true\" build option to go")
		}
		fmt.Printf("%s\n", v)
		os.Exit(0)
		return nil
	})
	flag.Parse()
	if len(cfg.repos) == 0 {
		log.Fatal("at least one -repo is required")
	}
	if flag.NArg() != 1 {
		log.Fatal("exactly one root component is required")
	}
	cfg.root = flag.Arg(0)
	return cfg
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := parseFlags(ctx)
	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, errFailures) {
			os.Exit(2)
		}
		slog.ErrorContext(ctx, "failed", "error", err)
		os.Exit(1)
	}
}
