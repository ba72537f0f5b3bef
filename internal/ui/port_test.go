package ui_test

import (
	"testing"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/ui"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/ui/uitest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelpers(t *testing.T) {
	span := uitest.New("span").Attr("title", "Alice").WithText("hello")
	root := uitest.New("root").Add(".//span", span)

	assert.True(t, ui.Has(root, ".//span"))
	assert.False(t, ui.Has(root, ".//div"))

	text, err := ui.FindText(root, ".//span")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	title, err := ui.FindAttribute(root, ".//span", "title")
	require.NoError(t, err)
	assert.Equal(t, "Alice", title)

	_, err = ui.FindAttribute(root, ".//span", "style")
	assert.ErrorIs(t, err, ui.ErrNotFound)
}

func TestStaleNode(t *testing.T) {
	n := uitest.New("gone")
	n.Stale = true

	_, err := n.Text()
	assert.True(t, ui.IsStale(err))
	assert.False(t, ui.Has(n, ".//x"))
}

func TestAsScrollable(t *testing.T) {
	_, err := ui.AsScrollable(uitest.New("plain"))
	assert.ErrorIs(t, err, ui.ErrUnsupported)

	s, err := ui.AsScrollable(uitest.NewScroller("pane", 100))
	require.NoError(t, err)
	require.NoError(t, s.ScrollBy(150))
	off, err := s.ScrollOffset()
	require.NoError(t, err)
	assert.Equal(t, 100, off)
}
