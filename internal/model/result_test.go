package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		outcome Outcome
		want    string
	}{
		{OutcomeFound, "found"},
		{OutcomeNotFound, "not_found"},
		{OutcomeTransient, "transient_failure"},
		{OutcomeServiceLimit, "service_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.outcome))
		})
	}
}

func TestContactData_Empty(t *testing.T) {
	t.Parallel()

	assert.True(t, ContactData{}.Empty())
	assert.False(t, ContactData{Phones: []string{"+79991234567"}}.Empty())
	assert.False(t, ContactData{Emails: []string{"a@b.co"}}.Empty())
	assert.False(t, ContactData{Birthday: "01.01.1990"}.Empty())
}

func TestContactData_Merge(t *testing.T) {
	t.Parallel()

	d := ContactData{Phones: []string{"+1"}, Birthday: "01.01.1990"}
	d.Merge(ContactData{Phones: []string{"+2"}, Emails: []string{"a@b.co"}})

	assert.Equal(t, []string{"+1", "+2"}, d.Phones)
	assert.Equal(t, []string{"a@b.co"}, d.Emails)
	assert.Equal(t, "01.01.1990", d.Birthday, "empty birthday must not clear an existing one")

	d.Merge(ContactData{Birthday: "02.02.1992"})
	assert.Equal(t, "02.02.1992", d.Birthday)
}

func TestEnrichmentResult_Limited(t *testing.T) {
	t.Parallel()

	assert.False(t, EnrichmentResult{}.Limited())
	assert.True(t, EnrichmentResult{LimitSignal: "Превышен дневной лимит запросов"}.Limited())
}
