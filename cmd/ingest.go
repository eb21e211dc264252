package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/legalpub/internal/model"
	"github.com/sells-group/legalpub/internal/pipeline"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run the pipeline for one attorney",
	Long:  "Fetches publications for an OAB registration, materializes and enriches processes, reconciles clients and optionally persists the result. Prints the sync result as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		oab, _ := cmd.Flags().GetString("oab")
		uf, _ := cmd.Flags().GetString("uf")
		name, _ := cmd.Flags().GetString("name")
		persist, _ := cmd.Flags().GetBool("persist")
		fromFile, _ := cmd.Flags().GetString("from-file")

		req := pipeline.Request{OABNumber: oab, UF: uf, Name: name, Persist: persist}
		if fromFile != "" {
			pubs, err := loadPublications(fromFile)
			if err != nil {
				return err
			}
			req.Publications = pubs
			zap.L().Info("ingest: loaded publications from file",
				zap.String("path", fromFile),
				zap.Int("count", len(pubs)),
			)
		}

		env, err := initPipeline(ctx, persist)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Sync(ctx, req)
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		return writeResult(cmd.OutOrStdout(), result)
	},
}

// publicationFile is the wrapped fixture layout: {publications: [...]}.
type publicationFile struct {
	Publications []model.Publication `yaml:"publications"`
}

// loadPublications reads a YAML or JSON fixture holding either a bare list
// of publications or a document with a top-level "publications" key.
func loadPublications(path string) ([]model.Publication, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}

	var list []model.Publication
	if err := yaml.Unmarshal(data, &list); err == nil {
		return nonNil(list), nil
	}

	var doc publicationFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "ingest: parse %s", path)
	}
	return nonNil(doc.Publications), nil
}

// nonNil keeps an empty fixture distinct from "no fixture", which would
// make the pipeline call the provider.
func nonNil(pubs []model.Publication) []model.Publication {
	if pubs == nil {
		return []model.Publication{}
	}
	return pubs
}

func writeResult(w io.Writer, result *model.SyncResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

func init() {
	ingestCmd.Flags().String("oab", "", "OAB registration number (required)")
	ingestCmd.Flags().String("uf", "", "state of the OAB registration (required)")
	ingestCmd.Flags().String("name", "", "attorney name")
	ingestCmd.Flags().Bool("persist", false, "write the result to the configured store")
	ingestCmd.Flags().String("from-file", "", "read publications from a YAML or JSON fixture instead of the provider")
	_ = ingestCmd.MarkFlagRequired("oab")
	_ = ingestCmd.MarkFlagRequired("uf")
	rootCmd.AddCommand(ingestCmd)
}
