// Package pipeline runs the category translation batch: fetch the source
// rows, send each non-empty payload to the translator, upsert the result
// under the destination language.
//
// Rows are handled strictly one after another. A failed translation is
// logged and skipped; a failed write or a cancelled context stops the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/minios-linux/octrans/i18n"
	"github.com/minios-linux/octrans/lockfile"
	"github.com/minios-linux/octrans/store"
	"github.com/minios-linux/octrans/translate"
)

// Source yields the rows of one language.
type Source interface {
	FetchByLanguage(ctx context.Context, languageID int) ([]store.CategoryDescription, error)
}

// Sink writes a destination row. Only fields are assigned when the row
// already exists.
type Sink interface {
	Upsert(ctx context.Context, row store.CategoryDescription, fields []string) (store.UpsertResult, error)
}

// Ledger remembers which payloads were already translated.
// *lockfile.LockFile satisfies it.
type Ledger interface {
	IsChanged(pair string, categoryID int, payload string) bool
	Update(pair string, categoryID int, payload string)
}

// pruner is implemented by ledgers that can forget deleted categories.
type pruner interface {
	Prune(pair string, current []int) int
}

// messenger is implemented by translators that can show their request.
type messenger interface {
	Messages(fields translate.Fields) ([]translate.Message, error)
}

// Options controls one run.
type Options struct {
	SourceLangID int
	DestLangID   int
	// Execute performs translator calls and writes; false is a dry run.
	Execute bool
	// Verbose logs every row and its outgoing messages.
	Verbose bool
	// KeepSourceOnMissing writes the source text for a payload field the
	// translation left out, instead of an empty string.
	KeepSourceOnMissing bool
	// SanitizeHTML runs translated description fields through a UGC policy.
	SanitizeHTML bool
	// Progress receives a progress bar during non-verbose executing runs.
	Progress io.Writer
}

// Summary counts the outcome of a run.
type Summary struct {
	Total      int
	Processed  int
	Empty      int
	Unchanged  int
	Translated int
	Inserted   int
	Updated    int
	Failed     int
}

// Lines renders the non-zero counters for people.
func (s Summary) Lines() []string {
	var lines []string
	if s.Translated > 0 {
		lines = append(lines, fmt.Sprintf(i18n.N("%d category translated", "%d categories translated", s.Translated), s.Translated))
		lines = append(lines, fmt.Sprintf(i18n.T("%d inserted, %d updated"), s.Inserted, s.Updated))
	}
	if s.Unchanged > 0 {
		lines = append(lines, fmt.Sprintf(i18n.N("%d category unchanged since the last run", "%d categories unchanged since the last run", s.Unchanged), s.Unchanged))
	}
	if s.Empty > 0 {
		lines = append(lines, fmt.Sprintf(i18n.N("%d category skipped as empty", "%d categories skipped as empty", s.Empty), s.Empty))
	}
	if s.Failed > 0 {
		lines = append(lines, fmt.Sprintf(i18n.N("%d category failed", "%d categories failed", s.Failed), s.Failed))
	}
	return lines
}

// htmlFields are sanitised when Options.SanitizeHTML is set.
var htmlFields = map[string]bool{
	store.FieldDescription:       true,
	store.FieldDescriptionBottom: true,
}

// Runner executes the batch.
type Runner struct {
	src    Source
	sink   Sink
	tr     translate.Translator
	ledger Ledger
	opts   Options
	log    zerolog.Logger
	policy *bluemonday.Policy
}

// New creates a runner. The translator may be nil for dry runs.
func New(src Source, sink Sink, tr translate.Translator, log zerolog.Logger, opts Options) *Runner {
	r := &Runner{src: src, sink: sink, tr: tr, opts: opts, log: log}
	if opts.SanitizeHTML {
		r.policy = bluemonday.UGCPolicy()
	}
	return r
}

// WithLedger enables incremental mode.
func (r *Runner) WithLedger(l Ledger) *Runner {
	r.ledger = l
	return r
}

// ---------------------------------------------------------------------------
// Payload
// ---------------------------------------------------------------------------

// blankCutset is the set of bytes a field may consist of and still count
// as empty: ASCII whitespace, NUL and vertical tab. Non-breaking and other
// Unicode spaces are content.
const blankCutset = " \t\n\r\x00\x0B"

// BuildPayload collects the fields of row whose trimmed text is non-empty.
// Values are taken untrimmed.
func BuildPayload(row store.CategoryDescription) translate.Fields {
	payload := translate.Fields{}
	for _, f := range store.Fields {
		v := row.Field(f)
		if strings.Trim(v, blankCutset) != "" {
			payload[f] = v
		}
	}
	return payload
}

// payloadFields returns the keys of payload in canonical column order.
func payloadFields(payload translate.Fields) []string {
	fields := make([]string, 0, len(payload))
	for _, f := range store.Fields {
		if _, ok := payload[f]; ok {
			fields = append(fields, f)
		}
	}
	return fields
}

// DestinationRow builds the row written for src. Every payload field takes
// the translated value; a field the translation lacks becomes "" unless
// keepSource is set.
func DestinationRow(src store.CategoryDescription, destLangID int, payload, translated translate.Fields, keepSource bool) (store.CategoryDescription, []string) {
	row := store.CategoryDescription{CategoryID: src.CategoryID, LanguageID: destLangID}
	fields := payloadFields(payload)
	for _, f := range fields {
		v, ok := translated[f]
		if !ok && keepSource {
			v = payload[f]
		}
		row.SetField(f, v)
	}
	return row, fields
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

// Run processes every source row once.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	if r.opts.Execute && r.tr == nil {
		return sum, errors.New("pipeline: executing run without a translator")
	}

	rows, err := r.src.FetchByLanguage(ctx, r.opts.SourceLangID)
	if err != nil {
		return sum, err
	}
	sum.Total = len(rows)
	r.log.Info().
		Int("total", sum.Total).
		Int("language_id", r.opts.SourceLangID).
		Msgf(i18n.T("Found %d categories with language_id=%d."), sum.Total, r.opts.SourceLangID)

	pair := lockfile.PairKey(r.opts.SourceLangID, r.opts.DestLangID)
	bar := r.progressBar(sum.Total)
	ids := make([]int, 0, len(rows))

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("run aborted at category %d: %w", row.CategoryID, err)
		}
		sum.Processed++
		ids = append(ids, row.CategoryID)

		if err := r.processRow(ctx, i+1, row, pair, &sum); err != nil {
			return sum, err
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(r.opts.Progress)
	}

	if r.opts.Execute && r.ledger != nil {
		if p, ok := r.ledger.(pruner); ok {
			if n := p.Prune(pair, ids); n > 0 {
				r.log.Debug().Int("removed", n).Msg("pruned deleted categories from lock file")
			}
		}
	}

	r.log.Info().
		Int("processed", sum.Processed).
		Int("total", sum.Total).
		Int("translated", sum.Translated).
		Int("failed", sum.Failed).
		Msgf(i18n.T("Processed %d/%d categories."), sum.Processed, sum.Total)
	return sum, nil
}

func (r *Runner) processRow(ctx context.Context, n int, row store.CategoryDescription, pair string, sum *Summary) error {
	log := r.log.With().Int("category_id", row.CategoryID).Logger()
	if r.opts.Verbose {
		log.Debug().Msgf("[%d/%d] category %d", n, sum.Total, row.CategoryID)
	}

	payload := BuildPayload(row)
	if len(payload) == 0 {
		sum.Empty++
		log.Debug().Msg("no content to translate, skipping")
		return nil
	}

	encoded, err := translate.EncodeFields(payload)
	if err != nil {
		return err
	}
	if r.ledger != nil && !r.ledger.IsChanged(pair, row.CategoryID, encoded) {
		sum.Unchanged++
		log.Debug().Msg("unchanged since the last run, skipping")
		return nil
	}

	if r.opts.Verbose {
		r.logMessages(log, payload, encoded)
	}
	if !r.opts.Execute {
		return nil
	}

	translated, err := r.tr.Translate(ctx, payload)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("run aborted at category %d: %w", row.CategoryID, ctx.Err())
		}
		sum.Failed++
		if errors.Is(err, translate.ErrInvalidResponse) {
			log.Error().Err(err).Msgf("Invalid JSON for category %d", row.CategoryID)
		} else {
			log.Error().Err(err).Msgf("Translation request failed for category %d", row.CategoryID)
		}
		return nil
	}

	dest, fields := DestinationRow(row, r.opts.DestLangID, payload, translated, r.opts.KeepSourceOnMissing)
	if r.policy != nil {
		for _, f := range fields {
			if htmlFields[f] {
				dest.SetField(f, r.policy.Sanitize(dest.Field(f)))
			}
		}
	}

	res, err := r.sink.Upsert(ctx, dest, fields)
	if err != nil {
		return err
	}
	sum.Translated++
	switch res {
	case store.Inserted:
		sum.Inserted++
	case store.Updated:
		sum.Updated++
	}
	if r.ledger != nil {
		r.ledger.Update(pair, row.CategoryID, encoded)
	}
	log.Debug().Str("result", res.String()).Strs("fields", fields).Msg("done")
	return nil
}

func (r *Runner) logMessages(log zerolog.Logger, payload translate.Fields, encoded string) {
	m, ok := r.tr.(messenger)
	if !ok {
		log.Debug().Str("payload", encoded).Msg("payload")
		return
	}
	msgs, err := m.Messages(payload)
	if err != nil {
		log.Debug().Str("payload", encoded).Msg("payload")
		return
	}
	for _, msg := range msgs {
		log.Debug().Str("role", msg.Role).Msg(msg.Content)
	}
}

func (r *Runner) progressBar(total int) *progressbar.ProgressBar {
	if r.opts.Progress == nil || r.opts.Verbose || !r.opts.Execute || total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.opts.Progress),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan]categories[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
