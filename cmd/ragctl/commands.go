package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"docqa/internal/app"
	"docqa/internal/model"
	"docqa/internal/pkg/pdfextract"
	"docqa/internal/rag"
)

type service interface {
	Ingest(ctx context.Context, input app.IngestInput) (*app.IngestResult, error)
	Ask(ctx context.Context, input app.AskInput) (*rag.Answer, error)
	ListDocuments(ctx context.Context, tenantID string) ([]model.Document, error)
	DeleteDocument(ctx context.Context, tenantID, documentID string) error
	DeleteAllForTenant(ctx context.Context, tenantID string) (int64, error)
}

type opener func(ctx context.Context) (service, func(), error)

type cli struct {
	fs     afero.Fs
	open   opener
	svc    service
	close  func()
	tenant string
	json   bool
}

// newRootCmd builds the command tree. The returned func releases whatever
// the command opened and is safe to call when nothing was.
func newRootCmd(fs afero.Fs, open opener) (*cobra.Command, func()) {
	c := &cli{fs: fs, open: open}

	root := &cobra.Command{
		Use:               "ragctl",
		Short:             "Operate on a tenant's document index",
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(c.tenant) == "" {
				return errors.New("--tenant is required")
			}
			svc, closeFn, err := c.open(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize failed: %w", err)
			}
			c.svc, c.close = svc, closeFn
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.tenant, "tenant", "t", "", "tenant (user) id")
	root.PersistentFlags().BoolVar(&c.json, "json", false, "print JSON output")

	root.AddCommand(c.ingestCmd(), c.askCmd(), c.filesCmd(), c.deleteCmd(), c.purgeCmd())
	return root, func() {
		if c.close != nil {
			c.close()
		}
	}
}

func (c *cli) ingestCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest text or PDF files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name != "" && len(args) > 1 {
				return errors.New("--name only applies to a single file")
			}
			var results []*app.IngestResult
			for _, path := range args {
				raw, text, err := c.readDocument(path)
				if err != nil {
					return err
				}
				docName := name
				if docName == "" {
					docName = filepath.Base(path)
				}
				res, err := c.svc.Ingest(cmd.Context(), app.IngestInput{
					TenantID: c.tenant,
					Name:     docName,
					Text:     text,
					Raw:      raw,
				})
				if err != nil {
					return fmt.Errorf("ingest %s failed: %w", path, err)
				}
				results = append(results, res)
				if !c.json {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %d chunks\n", res.DocumentID, res.Name, res.ChunkCount)
				}
			}
			if c.json {
				return c.printJSON(cmd, results)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (single file only)")
	return cmd
}

func (c *cli) askCmd() *cobra.Command {
	var systemPrompt string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question against the tenant's documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			answer, err := c.svc.Ask(cmd.Context(), app.AskInput{
				TenantID:     c.tenant,
				Question:     args[0],
				SystemPrompt: systemPrompt,
			})
			if err != nil {
				return fmt.Errorf("ask failed: %w", err)
			}
			if c.json {
				return c.printJSON(cmd, answer)
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer.Answer)
			if len(answer.Sources) > 0 {
				fmt.Fprintln(cmd.OutOrStdout())
				fmt.Fprintln(cmd.OutOrStdout(), "Sources:")
				for i, s := range answer.Sources {
					fmt.Fprintf(cmd.OutOrStdout(), "  [%d] %s (%.3f)\n", i+1, s.Filename, s.Score)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&systemPrompt, "system-prompt", "", "override the tenant's system prompt")
	return cmd
}

func (c *cli) filesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List ingested documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			docs, err := c.svc.ListDocuments(cmd.Context(), c.tenant)
			if err != nil {
				return fmt.Errorf("list documents failed: %w", err)
			}
			if c.json {
				return c.printJSON(cmd, docs)
			}
			if len(docs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No documents.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCHUNKS\tSTATUS\tCREATED")
			for _, d := range docs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", d.ID, d.Name, d.ChunkCount, d.Status, d.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete one document and its index entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.svc.DeleteDocument(cmd.Context(), c.tenant, args[0]); err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func (c *cli) purgeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every document of the tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to purge without --yes")
			}
			n, err := c.svc.DeleteAllForTenant(cmd.Context(), c.tenant)
			if err != nil {
				return fmt.Errorf("purge failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d documents\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the purge")
	return cmd
}

// readDocument returns the raw bytes worth keeping (PDFs only) and the text
// to ingest.
func (c *cli) readDocument(path string) ([]byte, string, error) {
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s failed: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err := pdfextract.ExtractText(data)
		if err != nil {
			return nil, "", fmt.Errorf("extract %s failed: %w", path, err)
		}
		return data, text, nil
	}
	return nil, string(data), nil
}

func (c *cli) printJSON(cmd *cobra.Command, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
