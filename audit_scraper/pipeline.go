package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// PipelineConfig locates the two SPARCS sources and where their output goes.
type PipelineConfig struct {
	ComplianceURL string
	PDFDir        string
	AuditURL      string
	OutDir        string
}

type pipelineStep struct {
	name string
	run  func(context.Context) error
}

// RunPipeline pulls the compliance PDFs and then the audit report tables,
// stopping at the first step that fails. Table extraction from the PDFs is
// not part of this tool.
func (s *Scraper) RunPipeline(ctx context.Context, cfg PipelineConfig) error {
	steps := []pipelineStep{
		{"compliance pdfs", func(ctx context.Context) error {
			_, err := s.PullCompliancePDFs(ctx, cfg.ComplianceURL, cfg.PDFDir)
			return err
		}},
		{"audit reports", func(ctx context.Context) error {
			_, err := s.Run(ctx, cfg.AuditURL, cfg.OutDir)
			return err
		}},
	}

	for i, step := range steps {
		log := s.logger.With(zap.Int("step", i+1), zap.String("name", step.name))
		log.Info("step started")
		if err := step.run(ctx); err != nil {
			log.Error("step failed, stopping pipeline", zap.Error(err))
			return fmt.Errorf("%s: %w", step.name, err)
		}
		log.Info("step finished")
	}
	s.logger.Info("pipeline finished")
	return nil
}
