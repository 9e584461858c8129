package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/project-atlas/internal/graph"
	"github.com/mvp-joe/project-atlas/internal/storage"
)

var (
	graphRepoFlag     string
	graphDepthFlag    int
	graphRelationFlag string
	graphJSONFlag     bool
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Query the call graph of indexed code",
	Long: `Graph answers reachability questions over the stored call graph:
what a function calls, what calls it, and how two symbols connect.
Arguments are symbol names (resolved against node labels) or node ids;
answers are cached for two minutes.

Examples:
  # Everything handle_request reaches within 3 hops
  atlas graph callees handle_request --repository acme-api

  # Who calls validate_token, directly or indirectly
  atlas graph callers validate_token --repository acme-api

  # Shortest call chain between two functions
  atlas graph path main process_payment --repository acme-api
`,
}

var graphCallersCmd = &cobra.Command{
	Use:   "callers <name|node-id>",
	Short: "List functions that reach the given symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGraphTraverse(args[0], storage.DirectionInbound)
	},
}

var graphCalleesCmd = &cobra.Command{
	Use:   "callees <name|node-id>",
	Short: "List functions the given symbol reaches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGraphTraverse(args[0], storage.DirectionOutbound)
	},
}

var graphPathCmd = &cobra.Command{
	Use:   "path <from> <to>",
	Short: "Show the shortest call chain between two symbols",
	Args:  cobra.ExactArgs(2),
	RunE:  runGraphPath,
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.AddCommand(graphCallersCmd, graphCalleesCmd, graphPathCmd)

	graphCmd.PersistentFlags().StringVarP(&graphRepoFlag, "repository", "r", "", "restrict name resolution to one repository")
	graphCmd.PersistentFlags().IntVarP(&graphDepthFlag, "depth", "d", graph.DefaultMaxDepth, "maximum hops")
	graphCmd.PersistentFlags().StringVar(&graphRelationFlag, "relation", "calls", "edge relation to follow (calls, imports, re_exports; empty for any)")
	graphCmd.PersistentFlags().BoolVar(&graphJSONFlag, "json", false, "output as JSON")
}

// openTraverser wires storage and the shared cache behind a traverser.
// The returned cleanup closes everything it opened.
func openTraverser(ctx context.Context) (*graph.Traverser, *storage.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Sync()
		return nil, nil, nil, err
	}

	shared := openShared(cfg, logger)
	cleanup := func() {
		if shared != nil {
			shared.Close()
		}
		store.Close()
		logger.Sync()
	}
	return graph.NewTraverser(store, shared, logger), store, cleanup, nil
}

// resolveNode turns a symbol name, or an already-parsed node id, into one
// node id. Ambiguous names list the candidates instead of guessing.
func resolveNode(ctx context.Context, store *storage.Store, arg string) (string, error) {
	if _, err := uuid.Parse(arg); err == nil {
		return arg, nil
	}

	nodes, err := store.FindNodesByLabel(ctx, graphRepoFlag, arg, 20)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", arg, err)
	}
	switch len(nodes) {
	case 0:
		return "", fmt.Errorf("no graph node named %q (is the repository indexed with a graph?)", arg)
	case 1:
		return nodes[0].ID, nil
	}

	var lines []string
	for _, n := range nodes {
		lines = append(lines, fmt.Sprintf("  %s  %s  %s", n.ID, n.Type, nodeFile(n)))
	}
	return "", fmt.Errorf("%q is ambiguous, pass a node id:\n%s", arg, strings.Join(lines, "\n"))
}

func runGraphTraverse(arg string, direction storage.TraverseDirection) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	trav, store, cleanup, err := openTraverser(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	nodeID, err := resolveNode(ctx, store, arg)
	if err != nil {
		return err
	}

	res, err := trav.Traverse(ctx, nodeID, direction, graphRelationFlag, graphDepthFlag)
	if err != nil {
		return err
	}

	if graphJSONFlag {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(res.Nodes) == 0 {
		fmt.Printf("Nothing within %d hops\n", res.MaxDepth)
		return nil
	}
	fmt.Printf("%d nodes within %d hops:\n", res.TotalNodes, res.MaxDepth)
	for _, n := range res.Nodes {
		fmt.Printf("  %-10s %s  (%s)\n", n.Type, n.Label, nodeFile(n))
	}
	return nil
}

func runGraphPath(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	trav, store, cleanup, err := openTraverser(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	sourceID, err := resolveNode(ctx, store, args[0])
	if err != nil {
		return err
	}
	targetID, err := resolveNode(ctx, store, args[1])
	if err != nil {
		return err
	}

	path, err := trav.FindPath(ctx, sourceID, targetID, graphRelationFlag, graphDepthFlag)
	if err != nil {
		return err
	}

	if graphJSONFlag {
		data, err := json.MarshalIndent(map[string]any{"path": path}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(path) == 0 {
		fmt.Printf("No path within %d hops\n", graphDepthFlag)
		return nil
	}

	nodes, err := store.NodesByIDs(ctx, path)
	if err != nil {
		return err
	}
	byID := make(map[string]*storage.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	for i, id := range path {
		label := id
		if n, ok := byID[id]; ok {
			label = fmt.Sprintf("%s (%s)", n.Label, nodeFile(n))
		}
		if i > 0 {
			fmt.Print("  -> ")
		}
		fmt.Println(label)
	}
	return nil
}

// nodeFile pulls the file path out of a node's properties.
func nodeFile(n *storage.Node) string {
	if fp, ok := n.Properties["file_path"].(string); ok {
		return fp
	}
	return "?"
}
