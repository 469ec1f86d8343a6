package ident

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCLocale(t *testing.T) {
	p := NewParser()
	got, err := p.Parse("Wed Aug 27 10:15:42 2025")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.August, 27, 10, 15, 42, 0, time.Local), got)
}

func TestParseDayBeforeMonth(t *testing.T) {
	p := NewParser()
	got, err := p.Parse("Wed 27 Aug 10:15:42 2025")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.August, 27, 10, 15, 42, 0, time.Local), got)
}

func TestParsePaddedSingleDigitDay(t *testing.T) {
	p := NewParser()
	got, err := p.Parse("Mon Mar  3 09:05:00 2025")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.March, 3, 9, 5, 0, 0, time.Local), got)
}

func TestParseWithoutWeekday(t *testing.T) {
	p := NewParser()
	got, err := p.Parse("Aug 27 10:15:42 2025")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.August, 27, 10, 15, 42, 0, time.Local), got)
}

func TestParseMixedFormatsAgree(t *testing.T) {
	// Records written under different locales must normalize to the same
	// instant.
	p := NewParser()
	a, err := p.Parse("Wed Aug 27 10:15:42 2025")
	require.NoError(t, err)
	b, err := p.Parse("Wed 27 Aug 10:15:42 2025")
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestParseRejectsGarbage(t *testing.T) {
	p := NewParser()
	for _, s := range []string{"", "   ", "yesterday", "2025-13-45T99:99:99"} {
		_, err := p.Parse(s)
		assert.Error(t, err, "input %q", s)
	}
}
