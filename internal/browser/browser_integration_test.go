//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/browser"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/clock"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/harvest"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/ui"
)

func page() string {
	var b strings.Builder
	b.WriteString(`<html><body>
<div contenteditable="true" role="textbox" id="search"></div>
<div id="list" style="height:200px; overflow-y:scroll">`)
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, `<div class="row" style="height:40px" title="row %d">row %d</div>`, i, i)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func TestTab_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page())
	}))
	defer ts.Close()

	cfg := browser.DefaultConfig()
	cfg.Headless = true
	cfg.ProfileDir = t.TempDir()
	cfg.NavigationTimeout = "10s"

	chrome := browser.New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	defer func() {
		if err := chrome.Close(); err != nil {
			t.Logf("Close error: %v", err)
		}
	}()

	require.NoError(t, chrome.Start(ctx), "Failed to start browser")
	tab, err := chrome.OpenTab(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, tab.ID())
	require.NoError(t, tab.Navigate(ctx, ts.URL))

	doc, err := tab.Document(ctx)
	require.NoError(t, err)

	rows, err := doc.FindAll(`//div[@class="row"]`)
	require.NoError(t, err)
	assert.Len(t, rows, 50)

	title, err := ui.FindAttribute(doc, `//div[@class="row"][3]`, "title")
	require.NoError(t, err)
	assert.Equal(t, "row 2", title)

	_, err = doc.Find(`//div[@id="missing"]`)
	assert.ErrorIs(t, err, ui.ErrNotFound)

	listNode, err := doc.Find(`//div[@id="list"]`)
	require.NoError(t, err)
	list, err := ui.AsScrollable(listNode)
	require.NoError(t, err)

	require.NoError(t, list.ScrollBy(1000))
	offset, err := list.ScrollOffset()
	require.NoError(t, err)
	assert.Equal(t, 1000, offset)

	opts := harvest.DefaultOptions()
	opts.RevealStep = 300
	stats, err := harvest.New(opts, &clock.Fake{}).RevealUntilTop(ctx, list, nil)
	require.NoError(t, err)
	assert.Equal(t, harvest.RevealStallCeiling, stats.Outcome)
	offset, err = list.ScrollOffset()
	require.NoError(t, err)
	assert.Equal(t, 0, offset)

	box, err := tab.WaitFor(ctx, `//div[@id="search"]`, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, box.Click())
	require.NoError(t, tab.Type(ctx, box, "Thandi"))
	text, err := box.Text()
	require.NoError(t, err)
	assert.Equal(t, "Thandi", text)
	require.NoError(t, tab.Clear(ctx, box))
	text, err = box.Text()
	require.NoError(t, err)
	assert.Empty(t, text)

	_, err = tab.WaitFor(ctx, `//div[@id="never"]`, 500*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	tabs := chrome.Tabs()
	require.Len(t, tabs, 1)
	assert.Equal(t, tab.ID(), tabs[0].ID)
	assert.Equal(t, ts.URL+"/", tabs[0].URL)
}
