package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/panday-team/panday/internal/config"
	"github.com/panday-team/panday/internal/models"
	"github.com/panday-team/panday/internal/service"
)

type querier interface {
	QueryEmbeddings(ctx context.Context, req models.QueryRequest) (models.QueryResponse, error)
	ActiveBackend() string
}

type (
	loadFunc  func() (*config.Config, error)
	buildFunc func(ctx context.Context, cfg *config.Config) (querier, func(), error)
)

type queryOptions struct {
	topK      int
	roadmapID string
	userID    string
	backend   string
	asJSON    bool
}

func newRootCmd(load loadFunc, build buildFunc) *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query-embeddings [query]",
		Short: "Query roadmap embeddings",
		Long: `Embeds the query and returns the most similar roadmap nodes from the configured backend.
When the postgres backend fails, the file index is tried before giving up.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, load, build, opts, args[0])
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.topK, "top-k", "k", models.DefaultTopK, "number of sources to return")
	flags.StringVarP(&opts.roadmapID, "roadmap", "r", "", "roadmap id (default DEFAULT_ROADMAP_ID)")
	flags.StringVar(&opts.userID, "user", "", "user id for a personalized index")
	flags.StringVar(&opts.backend, "backend", "", "json or postgres (default EMBEDDINGS_BACKEND)")
	flags.BoolVar(&opts.asJSON, "json", false, "print the full response as JSON")

	return cmd
}

func runQuery(cmd *cobra.Command, load loadFunc, build buildFunc, opts *queryOptions, query string) error {
	if opts.topK < 1 || opts.topK > models.MaxTopK {
		return fmt.Errorf("--top-k must be between 1 and %d", models.MaxTopK)
	}

	if opts.roadmapID != "" && !models.ValidRoadmapID(opts.roadmapID) {
		return fmt.Errorf("invalid roadmap id %q", opts.roadmapID)
	}

	cfg, err := load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if opts.backend != "" {
		if _, ok := service.ParseBackendName(opts.backend); !ok {
			return fmt.Errorf("unknown backend %q", opts.backend)
		}

		cfg.EmbeddingsBackend = opts.backend
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	q, closeFn, err := build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build retrieval stack: %w", err)
	}

	if closeFn != nil {
		defer closeFn()
	}

	req := models.QueryRequest{Query: query, TopK: opts.topK, RoadmapID: opts.roadmapID}
	if opts.userID != "" {
		req.UserID = &opts.userID
	}

	resp, err := q.QueryEmbeddings(ctx, req)
	if err != nil {
		return err
	}

	if opts.asJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}

		cmd.Println(string(data))

		return nil
	}

	printSources(cmd, q.ActiveBackend(), resp)

	return nil
}

func printSources(cmd *cobra.Command, backend string, resp models.QueryResponse) {
	cmd.Printf("Backend: %s  Roadmap: %s\n", backend, resp.RoadmapID)

	if len(resp.Sources) == 0 {
		cmd.Println("No results found.")

		return
	}

	cmd.Println()

	for i, src := range resp.Sources {
		cmd.Printf("  [%d] %s (%.3f)\n", i+1, src.Title, src.Score)

		if src.URL != "" {
			cmd.Printf("      %s\n", src.URL)
		}

		if src.TextSnippet != "" {
			cmd.Printf("      %s\n", src.TextSnippet)
		}
	}
}
