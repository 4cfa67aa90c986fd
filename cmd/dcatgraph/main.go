package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/coolbeans/dcatgraph/pkg/align"
	"github.com/coolbeans/dcatgraph/pkg/blah"
	"github.com/coolbeans/dcatgraph/pkg/catalog"
	"github.com/coolbeans/dcatgraph/pkg/config"
	"github.com/coolbeans/dcatgraph/pkg/format"
	"github.com/coolbeans/dcatgraph/pkg/metrics"
	"github.com/coolbeans/dcatgraph/pkg/playground"
	"github.com/coolbeans/dcatgraph/pkg/prefix"
	"github.com/coolbeans/dcatgraph/pkg/query"
	"github.com/coolbeans/dcatgraph/pkg/store"
)

var version = "0.1.0"

// app is the state shared by every command, built before any of them runs.
type app struct {
	configPath string
	logLevel   string
	verbose    bool

	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func main() {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "dcatgraph",
		Short: "Load DCAT catalogs and query their datasets",
		Long: `dcatgraph reads a DCAT catalog, loads every distribution it can resolve
into a dataset graph, and answers SPARQL SELECT queries over the catalog,
the dataset, or the dataset's inferred closure under ontologies and
alignment files.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.setup() },
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(a.loadCmd())
	rootCmd.AddCommand(a.queryCmd())
	rootCmd.AddCommand(a.formatsCmd())
	rootCmd.AddCommand(a.prefixesCmd())
	rootCmd.AddCommand(a.convertCmd())
	rootCmd.AddCommand(a.watchCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// setup reads the configuration and installs the logger and metrics.
func (a *app) setup() error {
	cfg := config.Default()
	if a.configPath != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.verbose {
		cfg.LogLevel = "debug"
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)

	a.registry = prometheus.NewRegistry()
	a.metrics, err = metrics.New(a.registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	a.cfg = cfg
	return nil
}

// formats builds the format registry: the built-ins, Blah, then the
// configured aliases.
func (a *app) formats() (*format.Registry, error) {
	reg := format.NewRegistry()
	if err := format.InstallDefaults(reg); err != nil {
		return nil, err
	}
	if err := blah.Install(reg); err != nil {
		return nil, err
	}
	if err := a.cfg.ApplyFormats(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func (a *app) resolver() (*format.Resolver, error) {
	reg, err := a.formats()
	if err != nil {
		return nil, err
	}
	return format.NewResolver(reg,
		format.WithProbeCache(format.NewProbeCache(a.cfg.HTTP.ProbeCacheTTL)),
		format.WithUserAgent(a.cfg.HTTP.UserAgent),
		format.WithTimeout(a.cfg.HTTP.Timeout),
		format.WithLogger(a.logger),
		format.WithMetrics(a.metrics)), nil
}

func (a *app) prefixes() (*prefix.Registry, error) {
	reg := prefix.NewRegistry()
	if err := a.cfg.ApplyPrefixes(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// modelFlags are the flags of every command that builds a model.
type modelFlags struct {
	catalog    string
	base       string
	ontologies []string
	alignDir   string
}

func (f *modelFlags) register(cmd *cobra.Command, withCatalog bool) {
	if withCatalog {
		cmd.Flags().StringVar(&f.catalog, "catalog", "", "catalog URL or file")
	}
	cmd.Flags().StringVar(&f.base, "base", "", "base namespace for relative identifiers")
	cmd.Flags().StringArrayVar(&f.ontologies, "ontology", nil, "ontology URL or file to load into the schema graph (repeatable)")
	cmd.Flags().StringVar(&f.alignDir, "align-dir", "", "directory of alignment files (default from config)")
}

// model builds a catalog model from the configuration, loads the catalog
// and ontologies and applies the alignment directory. The alignment
// registry is returned so that callers can watch it.
func (a *app) model(ctx context.Context, f *modelFlags) (*catalog.Model, *catalog.Report, *align.Registry, error) {
	resolver, err := a.resolver()
	if err != nil {
		return nil, nil, nil, err
	}
	prefixes, err := a.prefixes()
	if err != nil {
		return nil, nil, nil, err
	}

	m, err := catalog.NewModel(
		catalog.WithLogger(a.logger),
		catalog.WithMetrics(a.metrics),
		catalog.WithResolver(resolver),
		catalog.WithPrefixes(prefixes),
		catalog.WithConcurrency(a.cfg.Loader.Concurrency),
		catalog.WithDeclaredFormatFallback(a.cfg.Loader.DeclaredFormatFallback),
		catalog.WithQueryOptions(
			query.WithPlanning(a.cfg.Query.Planning),
			query.WithTimeout(a.cfg.Query.Timeout)),
	)
	if err != nil {
		return nil, nil, nil, err
	}

	report, err := m.Load(ctx, f.catalog, f.base)
	if err != nil {
		return nil, nil, nil, err
	}
	for _, ontology := range f.ontologies {
		if err := m.LoadOntology(ctx, ontology); err != nil {
			return nil, nil, nil, err
		}
	}

	alignments := align.NewRegistry(m.Prefixes(), m.Alignment(), align.WithLogger(a.logger))
	dir := f.alignDir
	if dir == "" {
		dir = a.cfg.AlignmentDir
	}
	if dir != "" {
		if err := alignments.LoadDirectory(dir); err != nil {
			return nil, nil, nil, err
		}
	}
	return m, report, alignments, nil
}

func (a *app) loadCmd() *cobra.Command {
	var f modelFlags
	cmd := &cobra.Command{
		Use:   "load <catalog>",
		Short: "Load a catalog and report its distributions",
		Long: `Load a DCAT catalog and every distribution it lists.

Distributions whose format cannot be resolved, or that fail to download or
parse, are skipped and listed with the stage at which they failed.

Example:
  dcatgraph load catalog.ttl --base http://example.org/ns#`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.catalog = args[0]
			m, report, _, err := a.model(cmd.Context(), &f)
			if err != nil {
				return err
			}

			fmt.Print(report)
			fmt.Printf("Triples: catalog %d, schema %d, alignment %d, dataset %d\n",
				m.Catalog().Len(), m.Schema().Len(), m.Alignment().Len(), m.Data().Len())
			return nil
		},
	}
	f.register(cmd, false)
	return cmd
}

func (a *app) queryCmd() *cobra.Command {
	var (
		f             modelFlags
		graph         string
		output        string
		timing        bool
		prefixes      []string
		templateName  string
		params        []string
		listTemplates bool
	)
	cmd := &cobra.Command{
		Use:   "query [sparql]",
		Short: "Query a loaded catalog",
		Long: `Run a SPARQL SELECT query against the catalog graph, the dataset graph or
the inferred view of the dataset.

The DCAT namespaces (dcat, dct, dctype, foaf, owl, rdf, rdfs, skos, vcard,
xsd) are predeclared; --prefix adds more.

Examples:
  dcatgraph query --catalog catalog.ttl --graph catalog \
    "SELECT ?dist ?url WHERE { ?dist dcat:downloadURL ?url }"

  dcatgraph query --catalog catalog.ttl --base http://dcat.query.defaultns# \
    --graph inferred --align-dir alignments \
    --prefix foaf_friends=http://dcat.query.defaultns# \
    "SELECT DISTINCT ?n WHERE { foaf_friends:me foaf:knows ?f . ?f foaf:name ?n }"

  # Use a template; its graph is used unless --graph is given
  dcatgraph query --catalog catalog.ttl --template datasets --param match=water

Use --list-templates to see available templates.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if listTemplates {
				printTemplates()
				return nil
			}

			var body string
			switch {
			case templateName != "":
				tmpl, ok := playground.Get(templateName)
				if !ok {
					return fmt.Errorf("unknown template: %s\nUse --list-templates to see available templates", templateName)
				}
				values := make(map[string]string, len(params))
				for _, param := range params {
					k, v, ok := strings.Cut(param, "=")
					if !ok {
						return fmt.Errorf("--param %q: want name=value", param)
					}
					values[k] = v
				}
				rendered, err := playground.RenderQuery(tmpl, values)
				if err != nil {
					return err
				}
				body = rendered
				if !cmd.Flags().Changed("graph") {
					graph = tmpl.Graph
				}
			case len(args) > 0:
				body = args[0]
			default:
				return fmt.Errorf("provide a query or use --template\nUse --list-templates to see available templates")
			}

			if f.catalog == "" {
				return fmt.Errorf("--catalog is required")
			}
			ctx := cmd.Context()
			m, _, _, err := a.model(ctx, &f)
			if err != nil {
				return err
			}
			for _, binding := range prefixes {
				p, ns, ok := strings.Cut(binding, "=")
				if !ok {
					return fmt.Errorf("--prefix %q: want prefix=namespace", binding)
				}
				if err := m.SetPrefix(p, &ns); err != nil {
					return err
				}
			}

			var prepared *query.Prepared
			switch graph {
			case playground.GraphCatalog:
				prepared, err = m.PrepCatalogQuery(body)
			case playground.GraphData, store.GraphDataset:
				prepared, err = m.PrepDataQuery(body)
			case playground.GraphInferred:
				prepared, err = m.PrepInferredQuery(ctx, body)
			default:
				return fmt.Errorf("unknown graph %q: want catalog, data or inferred", graph)
			}
			if err != nil {
				return err
			}

			result, err := prepared.Run(ctx)
			if err != nil {
				return err
			}
			out, err := result.Format(query.OutputFormat(output))
			if err != nil {
				return err
			}
			fmt.Println(out)

			if timing {
				fmt.Printf("\nParse: %v  Plan: %v  Execute: %v  Total: %v  (%d rows)\n",
					result.Metrics.ParseTime, result.Metrics.PlanTime,
					result.Metrics.ExecuteTime, result.Metrics.TotalTime, result.Count)
			}
			return nil
		},
	}
	f.register(cmd, true)
	cmd.Flags().StringVar(&graph, "graph", playground.GraphData, "graph to query: catalog, data or inferred")
	cmd.Flags().StringVarP(&output, "format", "f", string(query.FormatTable), "output format: table, json or csv")
	cmd.Flags().BoolVar(&timing, "timing", false, "print query timing")
	cmd.Flags().StringArrayVar(&prefixes, "prefix", nil, "extra prefix as prefix=namespace (repeatable)")
	cmd.Flags().StringVarP(&templateName, "template", "t", "", "use a query template")
	cmd.Flags().StringArrayVar(&params, "param", nil, "template parameter as name=value (repeatable)")
	cmd.Flags().BoolVar(&listTemplates, "list-templates", false, "list available query templates")
	return cmd
}

func printTemplates() {
	fmt.Println("Available query templates:")
	fmt.Println()
	for _, name := range playground.TemplateNames() {
		tmpl, _ := playground.Get(name)
		fmt.Printf("  %-18s %-9s %s\n", name, tmpl.Graph, tmpl.Description)
		for _, param := range tmpl.Parameters {
			required := ""
			if param.Required {
				required = " (required)"
			}
			fmt.Printf("  %-18s   --param %s=...  %s%s\n", "", param.Name, param.Description, required)
		}
	}
	fmt.Println()
	fmt.Println("Usage: dcatgraph query --catalog <catalog> --template <name>")
}

func (a *app) formatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List installed formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.formats()
			if err != nil {
				return err
			}

			fmt.Printf("%-16s %-24s %-20s %s\n", "NAME", "MEDIA TYPE", "EXTENSIONS", "WRITER")
			for _, f := range reg.Formats() {
				_, writable := f.Writer()
				fmt.Printf("%-16s %-24s %-20s %v\n", f.Name, f.MediaType, strings.Join(f.Extensions, ","), writable)
			}
			fmt.Printf("\nAccept: %s\n", reg.AcceptHeader())
			return nil
		},
	}
}

func (a *app) prefixesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prefixes",
		Short: "Print the query prefix preamble",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.prefixes()
			if err != nil {
				return err
			}
			fmt.Print(reg.Preamble())
			return nil
		},
	}
}

func (a *app) convertCmd() *cobra.Command {
	var (
		to     string
		base   string
		output string
	)
	cmd := &cobra.Command{
		Use:   "convert <input>",
		Short: "Convert an RDF document between formats",
		Long: `Read an RDF document in any installed format and write it in another.

Examples:
  dcatgraph convert catalog.ttl --to ntriples
  dcatgraph convert https://example.org/data.rdf --to jsonld -o data.jsonld`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := a.resolver()
			if err != nil {
				return err
			}
			target, ok := resolver.Registry().Find(to)
			if !ok {
				return fmt.Errorf("unknown format %q", to)
			}
			writer, ok := target.Writer()
			if !ok {
				return fmt.Errorf("format %s cannot be written", target.Name)
			}

			g := store.NewNamedGraph("input", base)
			source, err := resolver.Read(cmd.Context(), g, args[0], base)
			if err != nil {
				return err
			}

			prefixes, err := a.prefixes()
			if err != nil {
				return err
			}

			w := os.Stdout
			if output != "" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer file.Close()
				w = file
			}
			if err := writer.Write(w, g, prefixes.Map()); err != nil {
				return fmt.Errorf("write %s: %w", target.Name, err)
			}
			a.logger.Info("converted", "input", args[0], "from", source.Name, "to", target.Name, "triples", g.Len())
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", format.NameTurtle, "output format name, e.g. turtle, ntriples, jsonld, rdfxml")
	cmd.Flags().StringVar(&base, "base", "", "base IRI for relative identifiers")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}
