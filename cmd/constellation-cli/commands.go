package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/graph"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/notes"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/relationship"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/logger"
)

type options struct {
	file      string
	format    string
	workers   int
	noPrune   bool
	logLevel  string
	threshold float64
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "constellation-cli",
		Short: "Compute note similarities and relationships from a notes file",
		Long: `constellation-cli reads notes from a JSON, YAML or TOML file and runs the
TF-IDF cosine similarity pipeline over them.

Examples:
  constellation-cli matrix -f notes.json
  constellation-cli relationships -f notes.yaml --threshold 0.3
  constellation-cli related -f notes.json --threshold 0.3 --seed n1,n2
  constellation-cli graph -f notes.json --threshold 0.3 --format yaml
  constellation-cli relationships -f notes.toml --threshold 0.2 --format table`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(logger.New(cmd.ErrOrStderr(), opts.logLevel, "text"))
		},
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&opts.file, "file", "f", "", "notes file (.json, .yaml, .yml or .toml)")
	flags.StringVar(&opts.format, "format", "auto", "output format: auto, json, yaml or table (auto is table on a terminal, json otherwise)")
	flags.IntVar(&opts.workers, "workers", 0, "matrix workers (0 = GOMAXPROCS)")
	flags.BoolVar(&opts.noPrune, "no-prune", false, "score every pair instead of pruning pairs without shared terms")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	_ = root.MarkPersistentFlagRequired("file")

	root.AddCommand(
		newMatrixCmd(opts),
		newRelationshipsCmd(opts),
		newRelatedCmd(opts),
		newGraphCmd(opts),
	)
	return root
}

func newMatrixCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "matrix",
		Short: "Print the pairwise similarity matrix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, _, err := prepare(opts)
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), opts.format, snap.Similarities())
		},
	}
}

func newRelationshipsCmd(opts *options) *cobra.Command {
	var directed bool
	cmd := &cobra.Command{
		Use:   "relationships",
		Short: "Print relationships at or above --threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := relationship.ValidateThreshold(opts.threshold); err != nil {
				return err
			}
			snap, _, err := prepare(opts)
			if err != nil {
				return err
			}
			var rels []relationship.Relationship
			if directed {
				rels, err = relationship.ExtractDirected(snap.Matrix, opts.threshold)
			} else {
				rels, err = snap.Relationships(opts.threshold)
			}
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), opts.format, rels)
		},
	}
	addThresholdFlag(cmd, opts)
	cmd.Flags().BoolVar(&directed, "directed", false, "emit both directions of every pair")
	return cmd
}

func newRelatedCmd(opts *options) *cobra.Command {
	var seeds []string
	cmd := &cobra.Command{
		Use:   "related",
		Short: "Print the seeds and every note directly related to one of them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := relationship.ValidateThreshold(opts.threshold); err != nil {
				return err
			}
			snap, _, err := prepare(opts)
			if err != nil {
				return err
			}
			ids, err := snap.RelatedTo(seeds, opts.threshold)
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), opts.format, ids)
		},
	}
	addThresholdFlag(cmd, opts)
	cmd.Flags().StringSliceVar(&seeds, "seed", nil, "seed note IDs (repeatable or comma separated)")
	_ = cmd.MarkFlagRequired("seed")
	return cmd
}

func newGraphCmd(opts *options) *cobra.Command {
	var content bool
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the constellation graph of tags and notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := relationship.ValidateThreshold(opts.threshold); err != nil {
				return err
			}
			snap, ns, err := prepare(opts)
			if err != nil {
				return err
			}
			rels, err := snap.Relationships(opts.threshold)
			if err != nil {
				return err
			}
			g := graph.Build(ns, notes.CollectTags(ns), rels, graph.Options{ContentEdges: content})
			return write(cmd.OutOrStdout(), opts.format, g)
		},
	}
	addThresholdFlag(cmd, opts)
	cmd.Flags().BoolVar(&content, "content", true, "include content-similarity edges")
	return cmd
}

func addThresholdFlag(cmd *cobra.Command, opts *options) {
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "minimum similarity in [0, 1]")
	_ = cmd.MarkFlagRequired("threshold")
}

func prepare(opts *options) (*similarity.Snapshot, []notes.Note, error) {
	ns, err := notes.LoadFile(opts.file)
	if err != nil {
		return nil, nil, err
	}
	engine := similarity.NewEngine(similarity.Options{
		Workers:        opts.workers,
		DisablePruning: opts.noPrune,
	})
	snap, err := engine.Prepare(notes.Documents(ns))
	if err != nil {
		return nil, nil, err
	}
	return snap, ns, nil
}

func write(w io.Writer, format string, v any) error {
	switch resolveFormat(format, w) {
	case "table":
		return writeTable(w, v)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
