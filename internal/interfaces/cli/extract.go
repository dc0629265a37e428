package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/PII-Anonymizer/internal/application/anonymization"
	"github.com/turtacn/PII-Anonymizer/internal/bootstrap"
	"github.com/turtacn/PII-Anonymizer/internal/config"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/document"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PII-Anonymizer/internal/intelligence/detector"
	"github.com/turtacn/PII-Anonymizer/internal/intelligence/pii"
	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

// Default paths of the extract command.
const (
	DefaultInputPath = "data/text.txt"
)

// ExtractOptions holds the extract flags.  Pipeline flags override the
// configuration only when given explicitly.
type ExtractOptions struct {
	Input             string
	Output            string
	Language          string
	Threshold         float64
	Filter            bool
	FilterFile        string
	Anonymize         bool
	ResolveEntities   bool
	NoFuzzy           bool
	IncludeScores     bool
	PlaceholderFormat string
	SplitOutput       bool
	Labels            []string
	ChunkSize         int
	ChunkOverlap      int
	Detector          string
	DetectorURL       string
	MaxInputBytes     int64
}

// NewExtractCmd creates the extract command.
func NewExtractCmd() *cobra.Command {
	opts := &ExtractOptions{}

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Detect personal data in a document and optionally anonymize it",
		Example: `  piianon extract -i letter.txt
  piianon extract -i letter.txt --anonymize -o letter.json
  piianon extract -i contract.pdf --labels person,email
  piianon extract -i letter.txt --anonymize --split-output -o out/letter --placeholder-format angles`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Input, "input", "i", DefaultInputPath, "input document (.txt, .md, .pdf, .docx)")
	f.StringVarP(&opts.Output, "output", "o", "", "output file (default: stdout); base path with --split-output")
	f.StringVarP(&opts.Language, "language", "l", pii.DefaultLanguage, "document language")
	f.Float64VarP(&opts.Threshold, "threshold", "t", pii.DefaultThreshold, "minimum detection score in [0,1]")
	f.BoolVar(&opts.Filter, "filter", false, "drop known false positives")
	f.StringVar(&opts.FilterFile, "filter-file", pii.DefaultFalsePositivesFile, "false-positive table (JSON label -> texts)")
	f.BoolVar(&opts.Anonymize, "anonymize", false, "replace entities with placeholders")
	f.BoolVar(&opts.ResolveEntities, "resolve-entities", true, "give coreferent mentions one placeholder")
	f.BoolVar(&opts.NoFuzzy, "no-fuzzy", false, "disable fuzzy replacement of undetected variants")
	f.BoolVar(&opts.IncludeScores, "include-scores", false, "add confidence scores to the entity mapping")
	f.StringVar(&opts.PlaceholderFormat, "placeholder-format", string(pii.FormatBrackets), "brackets|angles|double_angles|curly|custom")
	f.BoolVar(&opts.SplitOutput, "split-output", false, "write <base>_anonymized.txt and <base>_metadata.json")
	f.StringSliceVar(&opts.Labels, "labels", append([]string(nil), pii.DefaultLabels...), "entity labels to detect")
	f.IntVar(&opts.ChunkSize, "chunk-size", pii.DefaultChunkSize, "chunk size in bytes")
	f.IntVar(&opts.ChunkOverlap, "chunk-overlap", pii.DefaultChunkOverlap, "chunk overlap in bytes")
	f.StringVar(&opts.Detector, "detector", "", "detector kind (pattern|http); overrides the config")
	f.StringVar(&opts.DetectorURL, "detector-url", "", "model server endpoint for the http detector")
	f.Int64Var(&opts.MaxInputBytes, "max-input-bytes", document.DefaultMaxSize, "reject input files larger than this")

	return cmd
}

// applyFlags copies explicitly set flags into cfg.
func applyFlags(cmd *cobra.Command, opts *ExtractOptions, cfg *config.Config) {
	f := cmd.Flags()
	p := &cfg.Pipeline
	if f.Changed("language") {
		p.Language = opts.Language
	}
	if f.Changed("threshold") {
		p.Threshold = opts.Threshold
	}
	if f.Changed("filter") {
		p.FilterEnabled = opts.Filter
	}
	if f.Changed("filter-file") {
		p.FilterFile = opts.FilterFile
	}
	if f.Changed("resolve-entities") {
		p.ResolveEntities = opts.ResolveEntities
	}
	if f.Changed("no-fuzzy") {
		p.FuzzyMatching = !opts.NoFuzzy
	}
	if f.Changed("include-scores") {
		p.IncludeScores = opts.IncludeScores
	}
	if f.Changed("placeholder-format") {
		p.PlaceholderFormat = opts.PlaceholderFormat
	}
	if f.Changed("labels") {
		p.Labels = opts.Labels
	}
	if f.Changed("chunk-size") {
		p.ChunkSize = opts.ChunkSize
	}
	if f.Changed("chunk-overlap") {
		p.ChunkOverlap = opts.ChunkOverlap
	}
	if f.Changed("detector") {
		cfg.Detector.Kind = opts.Detector
	}
	if f.Changed("detector-url") {
		cfg.Detector.Endpoint = opts.DetectorURL
		if !f.Changed("detector") {
			cfg.Detector.Kind = detector.KindHTTP
		}
	}
	// No scrape endpoint in a one-shot process.
	cfg.Metrics.Enabled = false
}

func runExtract(cmd *cobra.Command, opts *ExtractOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	cfg := *cliCtx.Config
	cfg.Pipeline.Labels = append([]string(nil), cfg.Pipeline.Labels...)
	applyFlags(cmd, opts, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := cliCtx.Logger.Named("extract")

	text, format, err := document.NewReader(opts.MaxInputBytes).Read(opts.Input)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := bootstrap.New(ctx, &cfg, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	start := time.Now()
	logger.Info("processing document",
		logging.String("input", opts.Input),
		logging.String("format", string(format)),
		logging.Int("bytes", len(text)),
		logging.Bool("anonymize", opts.Anonymize))

	if !opts.Anonymize {
		out, err := rt.Service.Detect(ctx, &anonymization.DetectInput{Text: text})
		if err != nil {
			return err
		}
		if err := writePayload(cmd, opts.Output, out); err != nil {
			return err
		}
		logger.Info("detection finished",
			logging.Int("entities", out.Statistics.TotalEntities),
			logging.Duration("duration", time.Since(start)))
		printSummary(summaryWriter(cmd, opts), out.Statistics.Labels, out.Statistics.TotalEntities, -1)
		return nil
	}

	out, err := rt.Service.Anonymize(ctx, &anonymization.AnonymizeInput{Text: text})
	if err != nil {
		return err
	}
	if opts.SplitOutput {
		base := splitBase(opts.Input, opts.Output)
		textPath, metaPath, err := writeSplit(base, out)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Anonymized text: %s\nMetadata:        %s\n", textPath, metaPath)
	} else if err := writePayload(cmd, opts.Output, out); err != nil {
		return err
	}
	logger.Info("anonymization finished",
		logging.Int("entities", out.Statistics.TotalEntities),
		logging.Int("placeholders", out.Statistics.Placeholders),
		logging.Duration("duration", time.Since(start)))
	printSummary(summaryWriter(cmd, opts), out.Statistics.Labels, out.Statistics.TotalEntities, out.Statistics.Placeholders)
	return nil
}

// summaryWriter keeps stdout parseable when the payload goes there.
func summaryWriter(cmd *cobra.Command, opts *ExtractOptions) io.Writer {
	if opts.Output == "" && !opts.SplitOutput {
		return cmd.ErrOrStderr()
	}
	return cmd.OutOrStdout()
}

func writePayload(cmd *cobra.Command, path string, v interface{}) error {
	data, err := anonymization.EncodeJSON(v)
	if err != nil {
		return err
	}
	if path == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	return writeFile(path, data)
}

// splitBase strips the extension from the output path, or from the input
// path when no output is given.
func splitBase(input, output string) string {
	base := output
	if base == "" {
		base = input
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func writeSplit(base string, out *anonymization.AnonymizationOutput) (string, string, error) {
	textPath := base + "_anonymized.txt"
	metaPath := base + "_metadata.json"

	if err := writeFile(textPath, []byte(out.AnonymizedText)); err != nil {
		return "", "", err
	}
	meta, err := anonymization.EncodeJSON(out.Metadata())
	if err != nil {
		return "", "", err
	}
	if err := writeFile(metaPath, meta); err != nil {
		return "", "", err
	}
	return textPath, metaPath, nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, errors.CodeInternal, "create %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, errors.CodeInternal, "write %s", path)
	}
	return nil
}

// printSummary prints entity counts per label.  placeholders < 0 omits the
// placeholder line.
func printSummary(w io.Writer, labels map[string]int, total, placeholders int) {
	names := make([]string, 0, len(labels))
	for l := range labels {
		names = append(names, l)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names)+1)
	for _, l := range names {
		rows = append(rows, []string{l, strconv.Itoa(labels[l])})
	}
	rows = append(rows, []string{"TOTAL", strconv.Itoa(total)})

	fmt.Fprint(w, FormatTable([]string{"LABEL", "ENTITIES"}, rows))
	if placeholders >= 0 {
		fmt.Fprintf(w, "Placeholders: %d\n", placeholders)
	}
}

//Personal.AI order the ending
