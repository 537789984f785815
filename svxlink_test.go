package svxlink_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dj1an/svxlink"
	"github.com/dj1an/svxlink/internal/mock"
)

func TestSourceHolder(t *testing.T) {
	var h svxlink.SourceHolder

	// Notifications without a registered source are dropped.
	h.NotifyResume()
	h.NotifyFlushed()

	src := &mock.Source{}
	h.SetSource(src)
	h.NotifyResume()
	h.NotifyFlushed()
	h.NotifyFlushed()
	assert.Equal(t, 1, src.Resumed)
	assert.Equal(t, 2, src.Flushes)

	h.SetSource(nil)
	h.NotifyResume()
	assert.Equal(t, 1, src.Resumed)
}

func TestNewUID(t *testing.T) {
	assert.NotEqual(t, svxlink.NewUID(), svxlink.NewUID())
}
