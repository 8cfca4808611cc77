package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/realtime-ai/focusstream/pkg/classifier"
	"github.com/realtime-ai/focusstream/pkg/eeg"
	"github.com/realtime-ai/focusstream/pkg/pipeline"
	"github.com/realtime-ai/focusstream/pkg/verdict"
	"github.com/spf13/cobra"
)

var (
	replayChunks int
	replayJSON   bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Run the pipeline offline and print each verdict",
	Long: `Advance the pipeline as fast as possible for a number of chunks without any
networking and print one line per verdict. When the recording carries
ground-truth labels, the verdicts are scored against them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayChunks < 1 {
			return fmt.Errorf("--chunks must be at least 1, got %d", replayChunks)
		}
		p, rec, err := buildPipeline(cfg)
		if err != nil {
			return err
		}
		_, err = replay(cmd.OutOrStdout(), p, rec, replayChunks, replayJSON)
		return err
	},
}

func init() {
	replayCmd.Flags().IntVar(&replayChunks, "chunks", 250, "number of chunks to process")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "print JSON lines instead of text")
	rootCmd.AddCommand(replayCmd)
}

// replayVerdict is one emitted verdict.
type replayVerdict struct {
	Type       string  `json:"type"`
	Chunk      uint64  `json:"chunk"`
	TimeS      float64 `json:"time_s"`
	Verdict    string  `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Truth      string  `json:"truth,omitempty"`
}

// replaySummary closes a replay.
type replaySummary struct {
	Type            string   `json:"type"`
	Chunks          int      `json:"chunks"`
	Verdicts        int      `json:"verdicts"`
	ChunkAccuracy   *float64 `json:"chunk_accuracy,omitempty"`
	VerdictAccuracy *float64 `json:"verdict_accuracy,omitempty"`
}

// replay advances p chunks times, writing each verdict to w. Ground truth is
// pooled with the same majority rule as the predictions, so each verdict is
// compared against the majority label of the chunks it covers.
func replay(w io.Writer, p *pipeline.Pipeline, rec *eeg.Recording, chunks int, asJSON bool) (replaySummary, error) {
	opts := p.Options()
	truths := verdict.New(opts.WindowSize, opts.ChunkDuration())
	scored := len(rec.Labels) > 0

	var (
		summary        = replaySummary{Type: "summary", Chunks: chunks}
		chunkHits      int
		verdictHits    int
		scoredVerdicts int
		enc            = json.NewEncoder(w)
	)

	for k := 0; k < chunks; k++ {
		snap, err := p.Advance()
		if err != nil {
			return summary, fmt.Errorf("chunk %d: %w", k, err)
		}

		var truthVerdict verdict.Verdict
		var truthEmitted bool
		if scored {
			label, ok := rec.LabelAt(eeg.ChunkStart(k, len(rec.Samples), opts.ChunkLen))
			if !ok {
				// Labels do not cover the whole recording
				scored = false
			} else {
				truth := classifier.Label(label)
				if truth == snap.Label {
					chunkHits++
				}
				truthVerdict, truthEmitted = truths.Add(truth)
			}
		}

		if !snap.NewVerdict {
			continue
		}
		summary.Verdicts++

		out := replayVerdict{
			Type:       "verdict",
			Chunk:      snap.Seq,
			TimeS:      float64(snap.Seq) * opts.ChunkDuration().Seconds(),
			Verdict:    snap.Verdict.Label.String(),
			Confidence: snap.Verdict.Confidence,
		}
		if scored && truthEmitted {
			scoredVerdicts++
			if truthVerdict.Label == snap.Verdict.Label {
				verdictHits++
			}
			out.Truth = truthVerdict.Label.String()
		}

		if asJSON {
			if err := enc.Encode(out); err != nil {
				return summary, err
			}
			continue
		}
		line := fmt.Sprintf("chunk %6d  t=%8.1fs  %s", out.Chunk, out.TimeS, snap.Verdict)
		if out.Truth != "" {
			line += "  truth: " + out.Truth
		}
		fmt.Fprintln(w, line)
	}

	if len(rec.Labels) > 0 && scored {
		acc := float64(chunkHits) / float64(chunks)
		summary.ChunkAccuracy = &acc
		if scoredVerdicts > 0 {
			vacc := float64(verdictHits) / float64(scoredVerdicts)
			summary.VerdictAccuracy = &vacc
		}
	}

	if asJSON {
		return summary, enc.Encode(summary)
	}
	fmt.Fprintf(w, "%d chunks, %d verdicts", summary.Chunks, summary.Verdicts)
	if summary.ChunkAccuracy != nil {
		fmt.Fprintf(w, ", chunk accuracy %.3f", *summary.ChunkAccuracy)
	}
	if summary.VerdictAccuracy != nil {
		fmt.Fprintf(w, ", verdict accuracy %.3f", *summary.VerdictAccuracy)
	}
	fmt.Fprintln(w)
	return summary, nil
}
