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

	"github.com/mvp-joe/project-atlas/internal/memory"
	"github.com/mvp-joe/project-atlas/internal/storage"
)

var (
	memoryTypeFlag    string
	memoryTagsFlag    []string
	memoryProjectFlag string
	memoryAuthorFlag  string
	memoryChunksFlag  []string
	memoryLimitFlag   int
	memoryOffsetFlag  int
	memoryJSONFlag    bool
	memoryTitleFlag   string
	memoryContentFlag string
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Store and search notes, decisions, and context",
	Long: `Memory keeps free-form records alongside the code index: decisions,
conversation summaries, notes. Records are embedded on write and found
later by hybrid search, so phrasing does not have to match.

Examples:
  # Record a decision
  atlas memory add "Use pgvector HNSW" "Chose HNSW over IVFFlat for recall at our scale." --type decision

  # Find it later with different words
  atlas memory search "why did we pick the vector index"

  # List decisions for one project
  atlas memory list --type decision --project billing
`,
}

var memoryAddCmd = &cobra.Command{
	Use:   "add <title> <content>",
	Short: "Store a new memory",
	Args:  cobra.ExactArgs(2),
	RunE:  runMemoryAdd,
}

var memoryGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryGet,
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List memories, newest first",
	RunE:  runMemoryList,
}

var memorySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Hybrid search over stored memories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMemorySearch,
}

var memoryUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a memory's fields and re-embed it",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryUpdate,
}

var memoryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Soft-delete a memory (recoverable until purged)",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryDelete,
}

var memoryPurgeCmd = &cobra.Command{
	Use:   "purge <id>",
	Short: "Permanently remove a soft-deleted memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryPurge,
}

func init() {
	rootCmd.AddCommand(memoryCmd)
	memoryCmd.AddCommand(memoryAddCmd, memoryGetCmd, memoryListCmd, memorySearchCmd,
		memoryUpdateCmd, memoryDeleteCmd, memoryPurgeCmd)

	memoryAddCmd.Flags().StringVar(&memoryTypeFlag, "type", "", "memory type (note, decision, conversation, ...)")
	memoryAddCmd.Flags().StringSliceVar(&memoryTagsFlag, "tags", nil, "comma-separated tags")
	memoryAddCmd.Flags().StringVar(&memoryProjectFlag, "project", "", "project the memory belongs to")
	memoryAddCmd.Flags().StringVar(&memoryAuthorFlag, "author", "", "author attribution")
	memoryAddCmd.Flags().StringSliceVar(&memoryChunksFlag, "chunks", nil, "related code chunk IDs")

	memoryGetCmd.Flags().BoolVar(&memoryJSONFlag, "json", false, "output as JSON")

	memoryListCmd.Flags().StringVar(&memoryTypeFlag, "type", "", "filter by memory type")
	memoryListCmd.Flags().StringSliceVar(&memoryTagsFlag, "tags", nil, "filter by tags (all must match)")
	memoryListCmd.Flags().StringVar(&memoryProjectFlag, "project", "", "filter by project")
	memoryListCmd.Flags().IntVarP(&memoryLimitFlag, "limit", "n", memory.DefaultListLimit, "page size")
	memoryListCmd.Flags().IntVar(&memoryOffsetFlag, "offset", 0, "pagination offset")
	memoryListCmd.Flags().BoolVar(&memoryJSONFlag, "json", false, "output as JSON")

	memorySearchCmd.Flags().IntVarP(&memoryLimitFlag, "limit", "n", 10, "number of results")
	memorySearchCmd.Flags().BoolVar(&memoryJSONFlag, "json", false, "output as JSON")

	memoryUpdateCmd.Flags().StringVar(&memoryTitleFlag, "title", "", "new title")
	memoryUpdateCmd.Flags().StringVar(&memoryContentFlag, "content", "", "new content")
	memoryUpdateCmd.Flags().StringVar(&memoryTypeFlag, "type", "", "new memory type")
	memoryUpdateCmd.Flags().StringSliceVar(&memoryTagsFlag, "tags", nil, "replace tags")
	memoryUpdateCmd.Flags().StringSliceVar(&memoryChunksFlag, "chunks", nil, "replace related chunk IDs")
}

// openMemoryService wires storage and embeddings behind the memory service.
// The returned cleanup closes everything it opened.
func openMemoryService(ctx context.Context) (*memory.Service, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Sync()
		return nil, nil, err
	}

	embedSvc := newEmbedService(cfg, logger)
	svc := memory.NewService(store, embedSvc, cfg.Embedding.TextModel, logger)

	cleanup := func() {
		embedSvc.ForceMemoryCleanup()
		store.Close()
		logger.Sync()
	}
	return svc, cleanup, nil
}

func runMemoryAdd(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := openMemoryService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	mem, err := svc.Create(ctx, memory.CreateInput{
		Title:           args[0],
		Content:         args[1],
		MemoryType:      memoryTypeFlag,
		Tags:            memoryTagsFlag,
		ProjectID:       memoryProjectFlag,
		Author:          memoryAuthorFlag,
		RelatedChunkIDs: memoryChunksFlag,
	})
	if err != nil {
		return err
	}

	fmt.Printf("✓ Stored memory %s (%s)\n", mem.ID, mem.MemoryType)
	return nil
}

func runMemoryGet(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := openMemoryService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	mem, err := svc.Get(ctx, args[0])
	if err != nil {
		return err
	}

	if memoryJSONFlag {
		return printMemoryJSON(mem)
	}
	printMemory(mem, true)
	return nil
}

func runMemoryList(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := openMemoryService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	memories, err := svc.List(ctx, memory.ListOptions{
		ProjectID:  memoryProjectFlag,
		MemoryType: memoryTypeFlag,
		Tags:       memoryTagsFlag,
		Limit:      memoryLimitFlag,
		Offset:     memoryOffsetFlag,
	})
	if err != nil {
		return err
	}

	if memoryJSONFlag {
		data, err := json.MarshalIndent(memories, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(memories) == 0 {
		fmt.Println("No memories found")
		return nil
	}
	for _, mem := range memories {
		printMemory(mem, false)
		fmt.Println()
	}
	return nil
}

func runMemorySearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := openMemoryService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	results, err := svc.Search(ctx, memory.SearchRequest{
		Query: strings.Join(args, " "),
		Limit: memoryLimitFlag,
	})
	if err != nil {
		return err
	}

	if memoryJSONFlag {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No results")
		return nil
	}
	for i, res := range results {
		fmt.Printf("%2d. %s  (score %.4f)\n", i+1, res.Memory.Title, res.Score)
		fmt.Printf("    %s  %s  %s\n", res.Memory.ID, res.Memory.MemoryType,
			res.Memory.CreatedAt.Format("2006-01-02"))
		fmt.Printf("    %s\n", firstLine(res.Memory.Content))
	}
	return nil
}

func runMemoryUpdate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := openMemoryService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var in memory.UpdateInput
	if cmd.Flags().Changed("title") {
		in.Title = &memoryTitleFlag
	}
	if cmd.Flags().Changed("content") {
		in.Content = &memoryContentFlag
	}
	if cmd.Flags().Changed("type") {
		in.MemoryType = &memoryTypeFlag
	}
	if cmd.Flags().Changed("tags") {
		in.Tags = memoryTagsFlag
	}
	if cmd.Flags().Changed("chunks") {
		in.RelatedChunkIDs = memoryChunksFlag
	}

	mem, err := svc.Update(ctx, args[0], in)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Updated memory %s\n", mem.ID)
	return nil
}

func runMemoryDelete(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := openMemoryService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svc.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("✓ Deleted memory %s (purge to remove permanently)\n", args[0])
	return nil
}

func runMemoryPurge(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := openMemoryService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svc.Purge(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("✓ Purged memory %s\n", args[0])
	return nil
}

func printMemoryJSON(mem *storage.Memory) error {
	data, err := json.MarshalIndent(mem, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printMemory(mem *storage.Memory, full bool) {
	fmt.Printf("%s  [%s]\n", mem.Title, mem.MemoryType)
	fmt.Printf("  ID: %s\n", mem.ID)
	fmt.Printf("  Created: %s", mem.CreatedAt.Format("2006-01-02 15:04"))
	if !mem.UpdatedAt.Equal(mem.CreatedAt) && !mem.UpdatedAt.IsZero() {
		fmt.Printf("  Updated: %s", mem.UpdatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Println()
	if len(mem.Tags) > 0 {
		fmt.Printf("  Tags: %s\n", strings.Join(mem.Tags, ", "))
	}
	if mem.ProjectID != "" {
		fmt.Printf("  Project: %s\n", mem.ProjectID)
	}
	if full {
		fmt.Printf("\n%s\n", mem.Content)
	} else {
		fmt.Printf("  %s\n", firstLine(mem.Content))
	}
}

// firstLine truncates content to one display line.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
