package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/obz-ai/obz/pkg/client"
	"github.com/obz-ai/obz/pkg/logging"
	"github.com/obz-ai/obz/pkg/projector"
	"github.com/spf13/cobra"
)

// projectionOutput is what `obz project` prints.
type projectionOutput struct {
	Samples                int               `json:"samples"`
	Features               int               `json:"features"`
	ExplainedVarianceRatio []float64         `json:"explained_variance_ratio,omitempty"`
	PCA                    []projector.Point `json:"pca_coords"`
	UMAP                   []projector.Point `json:"umap_coords"`
	Transformed            *coordsOutput     `json:"transformed,omitempty"`
	RefEntryID             string            `json:"ref_entry_id,omitempty"`
}

type coordsOutput struct {
	PCA  []projector.Point `json:"pca_coords"`
	UMAP []projector.Point `json:"umap_coords"`
}

func newProjectCmd(a *app) *cobra.Command {
	var (
		input     string
		transform string
		upload    bool
		refName   string
		precision string
	)

	cmd := &cobra.Command{
		Use:   "project",
		Short: "Fit the embedding projector on a reference batch",
		Long: `Reads a JSON array of embeddings (one array of numbers per sample), fits
the PCA and UMAP-slot reducers on it and prints the 2-D reference
coordinates. With --transform, a second batch is projected into the fitted
spaces. With --upload, the reference features and coordinates are sent to
the backend as a new reference entry of the configured project.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := readEmbeddings(input)
			if err != nil {
				return err
			}
			X, err := projector.FromRows(rows)
			if err != nil {
				return err
			}

			logger := a.named(logging.LoggerDataInspector)
			p := projector.New(projector.Options{
				PCAComponents:  a.cfg.Projector.PCAComponents,
				UMAPComponents: a.cfg.Projector.UMAPComponents,
				Logger:         logger,
			})
			if err := p.Fit(X); err != nil {
				return err
			}
			logger.Info("[Project] Projector fitted", "input", input, "samples", len(rows), "features", len(rows[0]))
			ref, err := p.ReferenceEmbeddings()
			if err != nil {
				return err
			}

			out := projectionOutput{Samples: len(rows), Features: len(rows[0])}
			out.PCA, out.UMAP = ref.Points()
			if pca, ok := pcaSlot(p).(*projector.PCA); ok {
				out.ExplainedVarianceRatio = pca.ExplainedVarianceRatio()
			}

			if transform != "" {
				more, err := readEmbeddings(transform)
				if err != nil {
					return err
				}
				Y, err := projector.FromRows(more)
				if err != nil {
					return err
				}
				res, err := p.Transform(Y)
				if err != nil {
					return err
				}
				var t coordsOutput
				t.PCA, t.UMAP = res.Points()
				out.Transformed = &t
			}

			if upload {
				projectID, err := a.requireProject()
				if err != nil {
					return err
				}
				entry, err := a.client.CreateRefEntry(cmd.Context(), client.RefEntryRequest{
					ProjectID:  projectID,
					Name:       refName,
					Samples:    out.Samples,
					FeatureDim: out.Features,
				})
				if err != nil {
					return err
				}
				err = a.client.UploadRefFeatures(cmd.Context(), client.RefFeatures{
					RefEntryID: entry.ID,
					Features:   rows,
					Precision:  client.Precision(precision),
					PCACoords:  out.PCA,
					UMAPCoords: out.UMAP,
				})
				if err != nil {
					return err
				}
				out.RefEntryID = entry.ID
				a.logger.Info("[Project] Reference features uploaded", "ref_entry_id", entry.ID, "samples", out.Samples)
			}

			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			printProjection(cmd, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "JSON file with the reference embeddings")
	cmd.Flags().StringVarP(&transform, "transform", "t", "", "JSON file with embeddings to project after fitting")
	cmd.Flags().BoolVar(&upload, "upload", false, "Upload reference features and coordinates to the backend")
	cmd.Flags().StringVar(&refName, "ref-name", "reference", "Name of the reference entry created by --upload")
	cmd.Flags().StringVar(&precision, "precision", string(client.Float32), "Feature precision for --upload (float32 or float16)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func pcaSlot(p *projector.Projector) projector.Reducer {
	pca, _ := p.Reducers()
	return pca
}

func readEmbeddings(path string) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read embeddings: %w", err)
	}
	var rows [][]float32
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("invalid embeddings file %s: %w", path, err)
	}
	return rows, nil
}

func printProjection(cmd *cobra.Command, out projectionOutput) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Fitted projector on %d samples x %d features\n", out.Samples, out.Features)
	if len(out.ExplainedVarianceRatio) > 0 {
		fmt.Fprintf(w, "PCA explained variance ratio: %.4f\n", out.ExplainedVarianceRatio)
	}
	fmt.Fprintln(w, "idx\tpca_x\tpca_y\tumap_x\tumap_y")
	for i := range out.PCA {
		fmt.Fprintf(w, "%d\t%.6f\t%.6f\t%.6f\t%.6f\n", i, out.PCA[i].X, out.PCA[i].Y, out.UMAP[i].X, out.UMAP[i].Y)
	}
	if out.Transformed != nil {
		fmt.Fprintf(w, "Transformed %d samples\n", len(out.Transformed.PCA))
		for i := range out.Transformed.PCA {
			t := out.Transformed
			fmt.Fprintf(w, "%d\t%.6f\t%.6f\t%.6f\t%.6f\n", i, t.PCA[i].X, t.PCA[i].Y, t.UMAP[i].X, t.UMAP[i].Y)
		}
	}
	if out.RefEntryID != "" {
		fmt.Fprintf(w, "Uploaded reference entry %s\n", out.RefEntryID)
	}
}
