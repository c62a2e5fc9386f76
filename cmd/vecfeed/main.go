// Copyright 2025 Syntropic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/syntropic/vecfeed"
	"github.com/syntropic/vecfeed/ai"
	"github.com/syntropic/vecfeed/ai/openai"
	"github.com/syntropic/vecfeed/chunker"
	"github.com/syntropic/vecfeed/extract"
	"github.com/syntropic/vecfeed/ingest"
	"github.com/syntropic/vecfeed/upload"
	"github.com/syntropic/vecfeed/vectordb/weaviate"
)

func main() {
	// A missing .env file is fine; flags and real env vars still apply.
	godotenv.Load()

	app := &cli.App{
		Name:  "vecfeed",
		Usage: "Chunk documents and deliver them to a vector search backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Directory holding the chunk store and delivery ledger",
				Value:   "./vecfeed_data",
				EnvVars: []string{"VECFEED_DATA_DIR"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "weaviate-url",
				Usage:   "Weaviate instance base URL",
				Value:   weaviate.DefaultBaseURL,
				EnvVars: []string{"WEAVIATE_URL"},
			},
			&cli.StringFlag{
				Name:    "weaviate-api-key",
				Usage:   "Bearer token for the Weaviate instance (empty for unauthenticated)",
				EnvVars: []string{"WEAVIATE_API_KEY"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Chunk every supported document under a directory into the local store",
				ArgsUsage: "<root>",
				Action:    ingestCommand,
				Flags: append(ingestFlags(),
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Keep running and re-ingest files as they change",
					},
				),
			},
			{
				Name:   "upload",
				Usage:  "Deliver stored chunks to the backend, skipping already delivered ones",
				Action: uploadCommand,
				Flags:  uploadFlags(),
			},
			{
				Name:      "run",
				Usage:     "Ingest a directory, then upload everything in one go",
				ArgsUsage: "<root>",
				Action:    runCommand,
				Flags:     append(ingestFlags(), uploadFlags()...),
			},
			{
				Name:  "schema",
				Usage: "Manage the backend class definition",
				Subcommands: []*cli.Command{
					{
						Name:   "ensure",
						Usage:  "Create the class if absent, verify it if present",
						Action: schemaEnsureCommand,
					},
					{
						Name:   "show",
						Usage:  "Print the stored class definition",
						Action: schemaShowCommand,
					},
					{
						Name:   "reset",
						Usage:  "Drop and recreate the class, losing every stored object",
						Action: schemaResetCommand,
						Flags: []cli.Flag{
							&cli.BoolFlag{
								Name:  "force",
								Usage: "Confirm the destructive reset",
							},
						},
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show local store, ledger and backend state",
				Action: statusCommand,
			},
			{
				Name:      "query",
				Usage:     "Run a semantic search against the backend",
				ArgsUsage: "<text>",
				Action:    queryCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of matches to return",
						Value: weaviate.DefaultQueryLimit,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func ingestFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "target-size",
			Usage: "Chunk size in characters",
			Value: chunker.DefaultTargetSize,
		},
		&cli.IntFlag{
			Name:  "overlap",
			Usage: "Characters shared between adjacent chunks",
			Value: chunker.DefaultOverlap,
		},
		&cli.StringFlag{
			Name:  "role",
			Usage: "Role tag for every document (default: first path segment under the root)",
		},
		&cli.StringFlag{
			Name:  "source",
			Usage: "Source prefix recorded on every chunk, e.g. s3://corp-docs",
		},
	}
}

func uploadFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "batch-size",
			Usage: "Number of chunks per backend call",
			Value: upload.DefaultBatchSize,
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Number of concurrent in-flight batches",
			Value: upload.DefaultWorkers,
		},
		&cli.IntFlag{
			Name:  "max-attempts",
			Usage: "Delivery attempts per batch before it is abandoned",
			Value: upload.DefaultMaxAttempts,
		},
		&cli.IntFlag{
			Name:  "tokens-per-minute",
			Usage: "Embedding token budget per minute (0 disables the proactive limiter)",
		},
		&cli.BoolFlag{
			Name:  "embed",
			Usage: "Embed client-side and attach vectors instead of vectorizing server-side",
		},
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL (with --embed)",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name (with --embed)",
			Value: "embeddinggemma",
		},
	}
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one argument: the directory to ingest")
	}

	ctx, cancel := signalContext()
	defer cancel()

	feed, err := vecfeed.Open(c.String("data-dir"))
	if err != nil {
		return fmt.Errorf("opening data directory: %w", err)
	}
	defer feed.Close()

	pipeline, err := ingestTree(ctx, c, feed, c.Args().First())
	if err != nil {
		return err
	}

	if c.Bool("watch") {
		fmt.Fprintln(os.Stderr, "Watching for changes, Ctrl-C stops")
		if err := pipeline.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("watch failed: %w", err)
		}
	}
	return nil
}

func uploadCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	feed, err := vecfeed.Open(c.String("data-dir"))
	if err != nil {
		return fmt.Errorf("opening data directory: %w", err)
	}
	defer feed.Close()

	return uploadChunks(ctx, c, feed)
}

func runCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one argument: the directory to ingest")
	}

	ctx, cancel := signalContext()
	defer cancel()

	feed, err := vecfeed.Open(c.String("data-dir"))
	if err != nil {
		return fmt.Errorf("opening data directory: %w", err)
	}
	defer feed.Close()

	if _, err := ingestTree(ctx, c, feed, c.Args().First()); err != nil {
		return err
	}
	return uploadChunks(ctx, c, feed)
}

// ingestTree chunks every supported file under root into the feed's
// store and returns the pipeline for optional watch mode.
func ingestTree(ctx context.Context, c *cli.Context, feed *vecfeed.Feed, root string) (*ingest.Pipeline, error) {
	var exOpts []extract.Option
	if role := c.String("role"); role != "" {
		exOpts = append(exOpts, extract.WithRole(role))
	}
	if source := c.String("source"); source != "" {
		exOpts = append(exOpts, extract.WithSource(source))
	}
	extractor, err := extract.New(root, exOpts...)
	if err != nil {
		return nil, err
	}

	chk, err := chunker.New(chunker.Config{
		TargetSize: c.Int("target-size"),
		Overlap:    c.Int("overlap"),
	})
	if err != nil {
		return nil, fmt.Errorf("invalid chunking configuration: %w", err)
	}

	pipeline, err := feed.NewIngestPipeline(extractor, ingest.WithChunker(chk))
	if err != nil {
		return nil, err
	}

	report, err := pipeline.IngestDir(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Ingested %d files into %d chunks, skipped %d\n",
		report.Files, report.Chunks, report.Skipped)
	return pipeline, nil
}

// uploadChunks ensures the backend schema, then delivers everything in
// the feed's store that the ledger does not already record.
func uploadChunks(ctx context.Context, c *cli.Context, feed *vecfeed.Feed) error {
	cfg := weaviate.Config{
		BaseURL: c.String("weaviate-url"),
		APIKey:  c.String("weaviate-api-key"),
	}
	if c.Bool("embed") {
		// Vectors arrive with the objects; the class must not vectorize.
		cfg.Vectorizer = "none"
	}
	client, err := weaviate.New(cfg, slog.Default())
	if err != nil {
		return err
	}

	if err := client.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}

	opts := []upload.Option{
		upload.WithBatchSize(c.Int("batch-size")),
		upload.WithWorkers(c.Int("workers")),
		upload.WithMaxAttempts(c.Int("max-attempts")),
		upload.WithProgress(os.Stderr),
	}
	if tpm := c.Int("tokens-per-minute"); tpm > 0 {
		limiterCfg := upload.DefaultLimiterConfig()
		limiterCfg.TokensPerMinute = tpm
		opts = append(opts, upload.WithRateLimiter(upload.NewRateLimiter(limiterCfg)))
	}
	if c.Bool("embed") {
		embedder, err := newEmbedder(c)
		if err != nil {
			return err
		}
		opts = append(opts, upload.WithEmbedder(embedder))
	}

	uploader, err := feed.NewUploader(client, opts...)
	if err != nil {
		return err
	}
	defer uploader.Release()

	summary, err := uploader.Run(ctx, feed.Chunks().AllChunks(ctx))
	if summary != nil && len(summary.FailedChunkIDs) > 0 {
		fmt.Fprintf(os.Stderr, "Failed chunk IDs: %s\n", strings.Join(summary.FailedChunkIDs, ", "))
	}
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return nil
}

func schemaEnsureCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	client, err := newWeaviateClient(c)
	if err != nil {
		return err
	}
	if err := client.EnsureSchema(ctx); err != nil {
		return err
	}

	fmt.Printf("Class %s is ready\n", client.Class())
	return nil
}

func schemaShowCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	client, err := newWeaviateClient(c)
	if err != nil {
		return err
	}
	class, err := client.Schema(ctx)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(class, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func schemaResetCommand(c *cli.Context) error {
	if !c.Bool("force") {
		return fmt.Errorf("schema reset drops every stored object; pass --force to confirm")
	}

	ctx, cancel := signalContext()
	defer cancel()

	client, err := newWeaviateClient(c)
	if err != nil {
		return err
	}
	if err := client.ResetSchema(ctx); err != nil {
		return err
	}

	// The backend's objects are gone; the ledger must forget them too
	// or the next upload would skip everything.
	feed, err := vecfeed.Open(c.String("data-dir"))
	if err != nil {
		return fmt.Errorf("opening data directory: %w", err)
	}
	defer feed.Close()
	if err := feed.Ledger().Clear(ctx); err != nil {
		return fmt.Errorf("clearing delivery ledger: %w", err)
	}

	fmt.Printf("Class %s dropped and recreated, delivery ledger cleared\n", client.Class())
	return nil
}

func statusCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	feed, err := vecfeed.Open(c.String("data-dir"))
	if err != nil {
		return fmt.Errorf("opening data directory: %w", err)
	}
	defer feed.Close()

	stored, err := feed.Chunks().CountChunks(ctx)
	if err != nil {
		return err
	}
	docs, err := feed.Chunks().Documents(ctx)
	if err != nil {
		return err
	}
	delivered, err := feed.Ledger().Len(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Local store: %d chunks across %d documents\n", stored, len(docs))
	fmt.Printf("Ledger:      %d chunks delivered\n", delivered)

	client, err := newWeaviateClient(c)
	if err != nil {
		return err
	}
	meta, err := client.Meta(ctx)
	if err != nil {
		fmt.Printf("Backend:     unreachable at %s (%v)\n", c.String("weaviate-url"), err)
		return nil
	}
	count, err := client.Count(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Backend:     weaviate %s at %s\n", meta.Version, c.String("weaviate-url"))
	fmt.Printf("Class:       %s, %d objects\n", client.Class(), count)
	return nil
}

func queryCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one argument: the query text")
	}

	ctx, cancel := signalContext()
	defer cancel()

	client, err := newWeaviateClient(c)
	if err != nil {
		return err
	}

	results, err := client.NearText(ctx, c.Args().First(), c.Int("limit"))
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. %s [%s] chunk %d, distance %.4f\n", i+1, r.Source, r.Role, r.ChunkIndex, r.Distance)
		fmt.Printf("   %s\n", r.Text)
	}
	return nil
}

func newWeaviateClient(c *cli.Context) (*weaviate.Client, error) {
	return weaviate.New(weaviate.Config{
		BaseURL: c.String("weaviate-url"),
		APIKey:  c.String("weaviate-api-key"),
	}, slog.Default())
}

func newEmbedder(c *cli.Context) (ai.Embedder, error) {
	aiConfig := ai.NewConfig(
		ai.WithHost(c.String("embedding-host")),
		ai.WithModel(c.String("embedding-model")),
		ai.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}
	return openai.NewEmbedder(aiConfig)
}

// signalContext returns a context canceled by SIGINT or SIGTERM, so a
// watch or upload run shuts down cleanly on Ctrl-C.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	return ctx, cancel
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
