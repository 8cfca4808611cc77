package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/realtime-ai/focusstream/pkg/classifier"
	"github.com/realtime-ai/focusstream/pkg/config"
	"github.com/realtime-ai/focusstream/pkg/dsp"
	"github.com/realtime-ai/focusstream/pkg/eeg"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Describe the recording, filter and band coverage",
	Long: `Print the recording's length and duration, the designed bandpass filter
coefficients, and which periodogram bins each band averages over. Bands that
contain no bin at the configured chunk length are flagged as degenerate.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := loadRecording(cfg)
		if err != nil {
			return err
		}
		return inspect(cmd.OutOrStdout(), cfg, rec)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func inspect(w io.Writer, c *config.Config, rec *eeg.Recording) error {
	opts := c.PipelineOptions()
	ext, err := dsp.NewExtractor(dsp.ExtractorConfig{
		SampleRate: opts.SampleRate,
		ChunkLen:   opts.ChunkLen,
		Passband:   opts.Passband,
		Order:      opts.FilterOrder,
		Bands:      opts.Bands,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "recording:   %s\n", rec.Path)
	fmt.Fprintf(w, "samples:     %d\n", len(rec.Samples))
	fmt.Fprintf(w, "sample rate: %d Hz\n", opts.SampleRate)
	fmt.Fprintf(w, "duration:    %.1f s\n", float64(len(rec.Samples))/float64(opts.SampleRate))
	fmt.Fprintf(w, "chunks:      %d of %d samples (%s each)\n",
		len(rec.Samples)/opts.ChunkLen, opts.ChunkLen, opts.ChunkDuration())
	if len(rec.Labels) > 0 {
		fmt.Fprintf(w, "labels:      %d, one per %d samples\n", len(rec.Labels), rec.ChunkSize)
	}

	coeffs := ext.Coefficients()
	fmt.Fprintf(w, "\nbandpass:    order %d, %g-%g Hz\n", opts.FilterOrder, opts.Passband.Low, opts.Passband.High)
	fmt.Fprintf(w, "b: %v\n", coeffs.B)
	fmt.Fprintf(w, "a: %v\n\n", coeffs.A)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BAND\tRANGE (Hz)\tBINS\tFIRST\tLAST\t")
	for _, cov := range ext.Coverage() {
		rng := fmt.Sprintf("%g-%g", cov.Band.Low, cov.Band.High)
		if cov.Degenerate() {
			fmt.Fprintf(tw, "%s\t%s\t0\t-\t-\tdegenerate, power is always 0\n", cov.Band.Name, rng)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%g\t%g\t\n", cov.Band.Name, rng, cov.Bins, cov.First, cov.Last)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	artifact, err := classifier.LoadArtifact(c.Model.Path)
	if err != nil {
		fmt.Fprintf(w, "\nmodel:       unavailable (%v)\n", err)
		return nil
	}
	status := "matches configured bands"
	if err := artifact.CheckBands(opts.BandNames()); err != nil {
		status = err.Error()
	}
	fmt.Fprintf(w, "\nmodel:       %s, bands %v, %s\n", c.Model.Path, artifact.Bands, status)
	return nil
}
