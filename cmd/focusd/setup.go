package main

import (
	"fmt"

	"github.com/realtime-ai/focusstream/pkg/classifier"
	"github.com/realtime-ai/focusstream/pkg/config"
	"github.com/realtime-ai/focusstream/pkg/eeg"
	"github.com/realtime-ai/focusstream/pkg/logging"
	"github.com/realtime-ai/focusstream/pkg/pipeline"
	"github.com/sirupsen/logrus"
)

// loadRecording reads the configured recording and reconciles its sampling
// rate with the configuration.
func loadRecording(c *config.Config) (*eeg.Recording, error) {
	rec, err := eeg.Load(c.Data.Path)
	if err != nil {
		return nil, err
	}
	if rec.SampleRate > 0 && rec.SampleRate != c.SampleRate {
		logging.For("cli").WithFields(logrus.Fields{
			"recording_rate":  rec.SampleRate,
			"configured_rate": c.SampleRate,
		}).Warn("using the recording's sampling rate")
		c.SampleRate = rec.SampleRate
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// buildPipeline loads the recording and classifier artifact and assembles
// the pipeline. Any failure here is fatal to the caller.
func buildPipeline(c *config.Config) (*pipeline.Pipeline, *eeg.Recording, error) {
	rec, err := loadRecording(c)
	if err != nil {
		return nil, nil, err
	}

	artifact, err := classifier.LoadArtifact(c.Model.Path)
	if err != nil {
		return nil, nil, err
	}
	opts := c.PipelineOptions()
	if err := artifact.CheckBands(opts.BandNames()); err != nil {
		return nil, nil, err
	}
	model, err := artifact.Classifier()
	if err != nil {
		return nil, nil, err
	}

	src, err := eeg.NewSource(rec.Samples, opts.ChunkLen)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", rec.Path, err)
	}
	p, err := pipeline.New(src, model, opts)
	if err != nil {
		return nil, nil, err
	}
	return p, rec, nil
}
