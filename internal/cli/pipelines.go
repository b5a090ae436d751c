package cli

import (
	"io"

	"bauchermatch/internal/config"
	"bauchermatch/internal/core"
	"bauchermatch/internal/extraction"
	applog "bauchermatch/internal/log"
	"bauchermatch/internal/pdf"
	"bauchermatch/internal/pipeline"
)

// BuildPipelines creates one upload pipeline per extraction variant, all
// sharing the extraction client and the output directory.
func BuildPipelines(cfg *config.Config, logger *applog.Logger) []*pipeline.Pipeline {
	client := extraction.NewClient(cfg.ExtractionBaseURL, cfg.ExtractionTimeout,
		logger.WithComponent(applog.ComponentExtraction).Slog())
	saver := pipeline.DirSaver{Dir: cfg.OutputDir}

	var preflight func(io.ReadSeeker) error
	if cfg.PDFPreflight {
		preflight = func(rs io.ReadSeeker) error {
			_, err := pdf.Preflight(rs)
			return err
		}
	}

	pipelineLogger := logger.WithComponent(applog.ComponentPipeline).Slog()
	variants := []core.Variant{core.VariantFull, core.VariantFullJSON, core.VariantPartial}
	pipes := make([]*pipeline.Pipeline, 0, len(variants))
	for _, v := range variants {
		pipes = append(pipes, pipeline.New(client, saver, pipeline.Options{
			Variant:   v,
			Preflight: preflight,
			Logger:    pipelineLogger,
		}))
	}

	logger.Info("Upload pipelines ready",
		"extraction_url", cfg.ExtractionBaseURL,
		"output_dir", cfg.OutputDir,
		"preflight", cfg.PDFPreflight)
	return pipes
}
