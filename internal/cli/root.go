// Package cli 实现 ragctl 命令行工具，直接操作数据库与向量存储，不经过 Kafka 与 MinIO。
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"iep-rag-go/internal/apperr"
	"iep-rag-go/internal/app"
	"iep-rag-go/internal/config"
	"iep-rag-go/internal/model"
	"iep-rag-go/internal/pipeline"
	"iep-rag-go/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// CoreFactory 根据配置文件路径构建 app.Core。测试中可替换。
type CoreFactory func(ctx context.Context, configPath string) (*app.Core, *config.Config, error)

// DefaultCoreFactory 读取配置并调用 app.NewCore。
func DefaultCoreFactory(ctx context.Context, configPath string) (*app.Core, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	core, err := app.NewCore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return core, cfg, nil
}

type runner struct {
	factory    CoreFactory
	configPath string
}

func (r *runner) withCore(cmd *cobra.Command, fn func(ctx context.Context, core *app.Core, cfg *config.Config) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	core, cfg, err := r.factory(ctx, r.configPath)
	if err != nil {
		return err
	}
	defer core.Close(context.Background())
	return fn(ctx, core, cfg)
}

// NewRootCommand 创建 ragctl 根命令。
func NewRootCommand(factory CoreFactory) *cobra.Command {
	r := &runner{factory: factory}
	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Operate the IEP retrieval store",
		Long:          `Ingest documents, search chunks and preview RAG context without running the HTTP server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(os.Stdout)
	root.PersistentFlags().StringVarP(&r.configPath, "config", "c", "./configs/config.yaml", "config file path")

	root.AddCommand(
		r.ingestCommand(),
		r.searchCommand(),
		r.contextCommand(),
		r.deleteCommand(),
		r.listCommand(),
	)
	return root
}

func (r *runner) ingestCommand() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Extract, chunk, embed and store a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = filepath.Base(args[0])
			}
			return r.withCore(cmd, func(ctx context.Context, core *app.Core, cfg *config.Config) error {
				pages, err := core.Extractor.ExtractPages(ctx, data, name)
				if err != nil {
					return err
				}
				doc := &model.Document{
					ID:       uuid.NewString(),
					FileName: name,
					Size:     int64(len(data)),
					Status:   model.DocumentProcessing,
				}
				if err := core.Documents.Create(ctx, doc); err != nil {
					return err
				}
				proc := pipeline.NewProcessor(core.Documents, nil, core.Extractor, core.Embedder, core.Store, cfg.RAG)
				n, err := proc.IngestText(ctx, doc.ID, pages)
				if err != nil {
					return fmt.Errorf("ingest %s (document %s): %w", name, doc.ID, err)
				}
				cmd.Printf("document %s ready: %d chunks from %d pages\n", doc.ID, n, len(pages))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "file name to record (default: base name of the path)")
	return cmd
}

func (r *runner) searchCommand() *cobra.Command {
	var (
		limit      int
		documentID string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search stored chunks by semantic similarity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withCore(cmd, func(ctx context.Context, core *app.Core, cfg *config.Config) error {
				svc := service.NewSearchService(core.Embedder, core.Store, cfg.RAG.SearchDefaultLimit, cfg.RAG.SearchMaxLimit)
				results, err := svc.Search(ctx, service.SearchRequest{Query: args[0], Limit: limit, DocumentID: documentID})
				if err != nil {
					return err
				}
				if asJSON {
					data, err := json.MarshalIndent(results, "", "  ")
					if err != nil {
						return err
					}
					cmd.Println(string(data))
					return nil
				}
				if len(results) == 0 {
					cmd.Println("No results found.")
					return nil
				}
				for i, res := range results {
					cmd.Printf("[%d] %.4f %s#%d\n%s\n\n", i+1, res.Score, res.DocumentID, res.ChunkIndex, res.Content)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results")
	cmd.Flags().StringVar(&documentID, "document", "", "restrict search to one document")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func (r *runner) contextCommand() *cobra.Command {
	var profilePath string
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Build the RAG context for a student profile JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if profilePath != "-" {
				f, err := os.Open(profilePath)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			var profile model.StudentProfile
			if err := json.NewDecoder(in).Decode(&profile); err != nil {
				return apperr.InvalidInput("decode profile: %v", err)
			}
			return r.withCore(cmd, func(ctx context.Context, core *app.Core, cfg *config.Config) error {
				text := service.NewRAGService(core.Embedder, core.Store, cfg.RAG.ContextTopK).GetContext(ctx, profile)
				cmd.Println(text)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&profilePath, "profile", "p", "-", "profile JSON file, - for stdin")
	return cmd
}

func (r *runner) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [documentId]",
		Short: "Delete a document and all of its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withCore(cmd, func(ctx context.Context, core *app.Core, _ *config.Config) error {
				n, err := core.Store.DeleteChunks(ctx, args[0])
				if err != nil {
					return err
				}
				if err := core.Documents.Delete(ctx, args[0]); err != nil && !errors.Is(err, apperr.ErrNotFound) {
					return err
				}
				cmd.Printf("deleted %d chunks\n", n)
				return nil
			})
		},
	}
}

func (r *runner) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List documents and their ingestion status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withCore(cmd, func(ctx context.Context, core *app.Core, _ *config.Config) error {
				docs, err := core.Documents.List(ctx)
				if err != nil {
					return err
				}
				for _, d := range docs {
					line := fmt.Sprintf("%s  %-10s  %4d  %s", d.ID, d.Status, d.ChunkCount, d.FileName)
					if d.ErrorMessage != "" {
						line += "  (" + d.ErrorMessage + ")"
					}
					cmd.Println(line)
				}
				return nil
			})
		},
	}
}
