// Package main implements the corpusd CLI: corpus ingestion and
// question answering over a local document collection.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/chunker"
	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/corpus"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/index"
	"github.com/fyrsmithlabs/corpusd/internal/ingest"
	"github.com/fyrsmithlabs/corpusd/internal/llm"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/orchestrator"
	"github.com/fyrsmithlabs/corpusd/internal/retriever"
	"github.com/fyrsmithlabs/corpusd/internal/session"
	"github.com/fyrsmithlabs/corpusd/internal/synthesizer"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		switch orchestrator.Classify(err) {
		case orchestrator.ClassConfig:
			os.Exit(2)
		default:
			os.Exit(1)
		}
	}
}

var rootCmd = &cobra.Command{
	Use:   "corpusd",
	Short: "Question answering over a local document corpus",
	Long: `corpusd ingests a directory of text documents into a vector index and
answers questions about them, citing the passages each answer came from.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
}

// app bundles the wired pipeline for one command invocation.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	index    *index.Index
	ingester *ingest.Service
	orch     *orchestrator.Orchestrator
	sessions *session.Registry
}

// newApp loads configuration and wires the full pipeline.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewService(cfg.EmbeddingsConfig(), logger)
	if err != nil {
		return nil, err
	}

	chat, err := llm.NewOpenAIClient(cfg.LLMConfig(), logger)
	if err != nil {
		return nil, err
	}

	idx, err := index.New(ctx, cfg.Index, embedder, logger)
	if err != nil {
		return nil, err
	}

	ret, err := retriever.New(cfg.RetrieverConfig(), idx, logger)
	if err != nil {
		idx.Close()
		return nil, err
	}

	syn, err := synthesizer.New(cfg.SynthesizerConfig(), chat, logger)
	if err != nil {
		idx.Close()
		return nil, err
	}

	ch, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		idx.Close()
		return nil, err
	}

	loader := corpus.NewLoader(cfg.Corpus.Path, logger)
	memory := session.NewMemory(chat, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		index:    idx,
		ingester: ingest.NewService(loader, ch, idx, logger),
		orch:     orchestrator.New(idx, ret, memory, syn, logger),
		sessions: session.NewRegistry(),
	}, nil
}

// close releases the app's resources.
func (a *app) close() {
	if err := a.index.Close(); err != nil {
		a.logger.Warn("closing index", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func printReport(report *ingest.Report) {
	fmt.Printf("Documents: %d\n", report.Documents)
	fmt.Printf("Chunks:    %d\n", report.Chunks)
	fmt.Printf("Embedded:  %d\n", report.Embedded)
	fmt.Printf("Skipped:   %d\n", report.Skipped)
	fmt.Printf("Removed:   %d\n", report.Removed)
	for _, f := range report.Failures {
		fmt.Fprintf(os.Stderr, "failed: %s: %v\n", f.Path, f.Err)
	}
}
