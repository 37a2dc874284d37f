package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"catalogadmin/internal/importer"
	"catalogadmin/internal/storage"
)

type exportOutput struct {
	Format    importer.Format `json:"format"`
	Products  int             `json:"products"`
	Path      string          `json:"path,omitempty"`
	Key       string          `json:"key,omitempty"`
	URL       string          `json:"url,omitempty"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty"`
}

func newExportCmd(a *app) *cobra.Command {
	var (
		format  string
		out     string
		archive bool
		linkTTL time.Duration
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the catalog in the import column layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := importer.ParseFormat(format)
			if err != nil {
				return err
			}
			categories, products, err := a.stores()
			if err != nil {
				return err
			}
			exporter := importer.NewExporter(categories, products)
			ctx := cmd.Context()

			if archive {
				client, err := storage.New(a.cfg.S3Endpoint, a.cfg.S3Region, a.cfg.S3AccessKey, a.cfg.S3SecretKey, a.cfg.S3Bucket)
				if err != nil {
					return err
				}
				if client == nil {
					return fmt.Errorf("--archive needs S3_ENDPOINT, S3_ACCESS_KEY and S3_SECRET_KEY")
				}
				var buf bytes.Buffer
				n, err := exporter.Export(ctx, &buf, f)
				if err != nil {
					return err
				}
				key := client.ExportKey(string(f))
				contentType := storage.ContentTypeCSV
				if f == importer.FormatXLSX {
					contentType = storage.ContentTypeXLSX
				}
				if err := client.Upload(ctx, key, contentType, &buf, int64(buf.Len())); err != nil {
					return err
				}
				url, err := client.PresignedURL(ctx, key, linkTTL)
				if err != nil {
					return err
				}
				expires := time.Now().Add(linkTTL).UTC()
				return writeJSON(exportOutput{Format: f, Products: n, Key: key, URL: url, ExpiresAt: &expires})
			}

			// CSV goes to stdout by default; XLSX is binary and needs a file.
			var w io.Writer = stdout
			if out == "" && f == importer.FormatXLSX {
				out = fmt.Sprintf("catalog-%s.xlsx", time.Now().UTC().Format("20060102"))
			}
			if out != "" && out != "-" {
				file, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer file.Close()
				w = file
			}

			n, err := exporter.Export(ctx, w, f)
			if err != nil {
				return err
			}
			if w != stdout {
				return writeJSON(exportOutput{Format: f, Products: n, Path: out})
			}
			fmt.Fprintf(os.Stderr, "exported %d products\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", string(importer.FormatCSV), "Output format: csv or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file, - for stdout (default: stdout for csv, catalog-DATE.xlsx for xlsx)")
	cmd.Flags().BoolVar(&archive, "archive", false, "Upload to the archive bucket and print a download link instead")
	cmd.Flags().DurationVar(&linkTTL, "link-ttl", 15*time.Minute, "Validity of the archive download link")
	return cmd
}
