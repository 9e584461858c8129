package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/project-atlas/internal/indexer"
	"github.com/mvp-joe/project-atlas/internal/search"
	"github.com/mvp-joe/project-atlas/internal/storage"
)

var (
	searchRepoFlag     string
	searchLanguageFlag string
	searchTypeFlag     string
	searchPathFlag     string
	searchLimitFlag    int
	searchOffsetFlag   int
	searchLexicalOnly  bool
	searchVectorOnly   bool
	searchAutoWeights  bool
	searchRerankFlag   bool
	searchJSONFlag     bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Hybrid search over indexed code",
	Long: `Search runs the query through trigram lexical matching and vector
similarity in parallel, fuses the candidates by weighted reciprocal rank,
and prints the top hits. Repeated queries answer from cache for thirty
seconds.

Examples:
  # Search everywhere
  atlas search "retry with backoff"

  # Scope to one repository and language
  atlas search "parse config" --repository acme-api --language python

  # Let the query's shape pick the fusion weights
  atlas search "handleAuth(ctx)" --auto-weights

  # Machine-readable output
  atlas search "websocket upgrade" --json
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchRepoFlag, "repository", "r", "", "restrict to one repository")
	searchCmd.Flags().StringVarP(&searchLanguageFlag, "language", "l", "", "restrict to one language")
	searchCmd.Flags().StringVar(&searchTypeFlag, "type", "", "restrict to a chunk type (function, class, method, ...)")
	searchCmd.Flags().StringVar(&searchPathFlag, "path", "", "restrict to paths containing this substring")
	searchCmd.Flags().IntVarP(&searchLimitFlag, "limit", "n", search.DefaultTopK, "number of results")
	searchCmd.Flags().IntVar(&searchOffsetFlag, "offset", 0, "pagination offset")
	searchCmd.Flags().BoolVar(&searchLexicalOnly, "lexical", false, "lexical matching only")
	searchCmd.Flags().BoolVar(&searchVectorOnly, "vector", false, "vector similarity only")
	searchCmd.Flags().BoolVar(&searchAutoWeights, "auto-weights", false, "pick fusion weights from the query's shape")
	searchCmd.Flags().BoolVar(&searchRerankFlag, "rerank", false, "re-score the top candidates with the cross-encoder")
	searchCmd.Flags().BoolVar(&searchJSONFlag, "json", false, "output as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if searchLexicalOnly && searchVectorOnly {
		return fmt.Errorf("--lexical and --vector are mutually exclusive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger()
	defer logger.Sync()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	shared := openShared(cfg, logger)
	if shared != nil {
		defer shared.Close()
	}

	embedSvc := newEmbedService(cfg, logger)

	var reranker search.Reranker
	if searchRerankFlag || cfg.Search.RerankEnabled {
		endpoint := cfg.Search.RerankEndpoint
		if endpoint == "" {
			endpoint = cfg.Embedding.Endpoint
		}
		reranker, err = search.NewRemoteReranker(endpoint, cfg.Search.RerankModel)
		if err != nil {
			return fmt.Errorf("reranker unavailable: %w", err)
		}
	}

	engine := search.NewEngine(store, shared, embedSvc, reranker, logger)

	req := search.Request{
		Query: strings.Join(args, " "),
		Filters: storage.SearchFilters{
			Repository:   searchRepoFlag,
			Language:     searchLanguageFlag,
			ChunkType:    searchTypeFlag,
			PathContains: searchPathFlag,
		},
		TopK:          searchLimitFlag,
		Offset:        searchOffsetFlag,
		EnableLexical: !searchVectorOnly,
		EnableVector:  !searchLexicalOnly,
		LexicalWeight: cfg.Search.LexicalWeight,
		VectorWeight:  cfg.Search.VectorWeight,
		AutoWeights:   searchAutoWeights,
		EnableRerank:  searchRerankFlag || cfg.Search.RerankEnabled,
	}

	resp, err := engine.Search(ctx, req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	// Scope header is best-effort: absence of cached metadata never blocks
	// the results themselves.
	if searchRepoFlag != "" && !searchJSONFlag {
		if meta, err := indexer.CachedRepoMeta(ctx, store, shared, searchRepoFlag); err == nil {
			fmt.Printf("Searching %s: %s chunks across %s files\n\n",
				meta.Repository, formatNumber(meta.ChunkCount), formatNumber(meta.FileCount))
		}
	}

	if searchJSONFlag {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	printSearchResults(resp)
	return nil
}

func printSearchResults(resp *search.Response) {
	if len(resp.Results) == 0 {
		fmt.Println("No results")
		return
	}

	for _, r := range resp.Results {
		name := r.NamePath
		if name == "" {
			name = r.Name
		}
		fmt.Printf("%2d. %s  %s:%d-%d", r.Rank, name, r.FilePath, r.StartLine, r.EndLine)
		if r.Repository != "" {
			fmt.Printf("  [%s]", r.Repository)
		}
		fmt.Printf("  (score %.4f", r.RRFScore)
		if r.RerankScore != nil {
			fmt.Printf(", rerank %.3f", *r.RerankScore)
		}
		fmt.Println(")")

		fmt.Println(indentSnippet(r.SourceCode, 3))
	}

	meta := resp.Metadata
	fmt.Printf("%d results in %.1f ms (lexical %d, vector %d",
		meta.TotalResults, meta.TotalTimeMs,
		meta.PoolSizes["lexical"], meta.PoolSizes["vector"])
	if meta.CacheHit {
		fmt.Print(", cached")
	}
	fmt.Println(")")
}

// indentSnippet returns the first maxLines of code, indented for display.
func indentSnippet(source string, maxLines int) string {
	lines := strings.Split(strings.TrimRight(source, "\n"), "\n")
	truncated := false
	if len(lines) > maxLines {
		lines = lines[:maxLines]
		truncated = true
	}
	for i, l := range lines {
		lines[i] = "      " + l
	}
	out := strings.Join(lines, "\n")
	if truncated {
		out += "\n      ..."
	}
	return out
}
