// Package resolver combines the oracle's two lookup strategies into one
// enrichment result per identity record.
package resolver

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/contact-enricher/internal/extract"
	"github.com/sells-group/contact-enricher/internal/model"
)

// DefaultIDCommand is the bot command for a raw lookup by national ID.
const DefaultIDCommand = "/raw"

// ExcludedPhonePrefix marks numbers that are never written to the store.
const ExcludedPhonePrefix = "+380"

// Querier runs one oracle exchange.
type Querier interface {
	Query(ctx context.Context, text, target string) model.QueryResult
}

// Resolver queries by national ID first and, when that yields a birth date,
// by full name plus birth date.
type Resolver struct {
	q         Querier
	idCommand string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithIDCommand overrides the national ID lookup command.
func WithIDCommand(cmd string) Option {
	return func(r *Resolver) {
		if cmd != "" {
			r.idCommand = cmd
		}
	}
}

// New creates a Resolver over q.
func New(q Querier, opts ...Option) *Resolver {
	r := &Resolver{q: q, idCommand: DefaultIDCommand}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve enriches one record. A service limit in the ID round is returned
// as LimitSignal with no data. A limit in the name round only drops that
// round's phones.
func (r *Resolver) Resolve(ctx context.Context, rec model.IdentityRecord) model.EnrichmentResult {
	log := zap.L().With(zap.Int("row", rec.Row), zap.String("national_id", rec.NationalID))

	byID := r.q.Query(ctx, r.idCommand+" "+rec.NationalID, rec.FullName)
	if byID.Outcome == model.OutcomeServiceLimit {
		return model.EnrichmentResult{LimitSignal: byID.Limit}
	}

	phones := append([]string(nil), byID.Data.Phones...)
	birthday := byID.Data.Birthday

	if birthday != "" {
		byName := r.q.Query(ctx, strings.TrimSpace(rec.FullName+" "+birthday), rec.FullName)
		switch byName.Outcome {
		case model.OutcomeServiceLimit:
			log.Warn("resolver: name lookup blocked", zap.String("reason", byName.Limit))
		case model.OutcomeFound:
			// Only phones are taken from the name lookup.
			phones = append(phones, byName.Data.Phones...)
		}
	}

	res := model.EnrichmentResult{
		Phones:   CleanPhones(phones),
		Emails:   extract.UniqueFold(byID.Data.Emails),
		Birthday: birthday,
	}
	log.Debug("resolver: resolved",
		zap.Strings("phones", res.Phones),
		zap.Strings("emails", res.Emails),
		zap.String("birthday", res.Birthday),
	)
	return res
}

// CleanPhones drops excluded numbers, strips the leading "+" and removes
// duplicates, keeping first-seen order.
func CleanPhones(phones []string) []string {
	kept := make([]string, 0, len(phones))
	for _, p := range phones {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, ExcludedPhonePrefix) {
			continue
		}
		kept = append(kept, strings.TrimPrefix(p, "+"))
	}
	return extract.Unique(kept)
}
