package model

// ContactData is what a single oracle exchange or document yielded.
type ContactData struct {
	Phones   []string `json:"phones"`
	Emails   []string `json:"emails"`
	Birthday string   `json:"birthday,omitempty"` // DD.MM.YYYY
}

// Empty reports whether no phone, email or birthday was found.
func (d ContactData) Empty() bool {
	return len(d.Phones) == 0 && len(d.Emails) == 0 && d.Birthday == ""
}

// Merge appends other's phones and emails. A non-empty birthday in other
// replaces the current one.
func (d *ContactData) Merge(other ContactData) {
	d.Phones = append(d.Phones, other.Phones...)
	d.Emails = append(d.Emails, other.Emails...)
	if other.Birthday != "" {
		d.Birthday = other.Birthday
	}
}

// Outcome classifies one oracle exchange.
type Outcome string

const (
	OutcomeFound        Outcome = "found"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeTransient    Outcome = "transient_failure"
	OutcomeServiceLimit Outcome = "service_limit"
)

// QueryResult is the explicit result of one oracle query. Data is only
// meaningful for OutcomeFound, Limit only for OutcomeServiceLimit.
type QueryResult struct {
	Outcome Outcome     `json:"outcome"`
	Data    ContactData `json:"data"`
	Limit   string      `json:"limit,omitempty"`
	Err     error       `json:"-"`
}

// EnrichmentResult is the merged outcome of all query rounds for one record.
type EnrichmentResult struct {
	Phones   []string `json:"phones"`
	Emails   []string `json:"emails"`
	Birthday string   `json:"birthday,omitempty"`

	// LimitSignal is set when the oracle blocked the whole credential.
	// It aborts the current sweep and is not a per-row error.
	LimitSignal string `json:"limit_signal,omitempty"`
}

// Limited reports whether the oracle signalled a service-level limit.
func (r EnrichmentResult) Limited() bool {
	return r.LimitSignal != ""
}
