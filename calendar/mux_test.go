package calendar_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilherme-santos/compasssync/calendar"
	"github.com/guilherme-santos/compasssync/internal/providertest"
)

func TestMux(t *testing.T) {
	mux := calendar.NewMux()
	_, err := mux.Get("google")
	assert.Error(t, err)

	p := providertest.New("primary")
	mux.Register(providertest.Platform, p)
	mux.Register("google", p)

	got, err := mux.Get(providertest.Platform)
	require.NoError(t, err)
	assert.Same(t, p, got)
	assert.Equal(t, []string{"fake", "google"}, mux.Platforms())
}
