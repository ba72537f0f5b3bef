package scrape

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/classify"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/clock"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/config"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/harvest"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/stall"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/store"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/types"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/ui"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/ui/uitest"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/whatsapp"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// overlay serves scrollable fakes for some locators on top of a fake tree.
type overlay struct {
	ui.Node
	panes map[ui.Locator]ui.Node
}

func (o overlay) Find(loc ui.Locator) (ui.Node, error) {
	if n, ok := o.panes[loc]; ok {
		return n, nil
	}
	return o.Node.Find(loc)
}

type fakeSession struct {
	doc       ui.Node
	loginFail bool
	shots     int
}

func (s *fakeSession) Navigate(context.Context, string) error      { return nil }
func (s *fakeSession) Document(context.Context) (ui.Node, error)   { return s.doc, nil }
func (s *fakeSession) Clear(context.Context, ui.Node) error        { return nil }
func (s *fakeSession) Type(context.Context, ui.Node, string) error { return nil }
func (s *fakeSession) PressEnter(context.Context) error            { return nil }

func (s *fakeSession) WaitFor(_ context.Context, loc ui.Locator, _ time.Duration) (ui.Node, error) {
	if s.loginFail {
		return nil, context.DeadlineExceeded
	}
	n, err := s.doc.Find(loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return n, nil
}

func (s *fakeSession) Screenshot(context.Context) ([]byte, error) {
	s.shots++
	return []byte("png"), nil
}

type recordingSink struct {
	mu       sync.Mutex
	begun    []store.Run
	results  []types.ContactResult
	finished []store.Run
	putErr   error
}

func (r *recordingSink) Begin(_ context.Context, run store.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.begun = append(r.begun, run)
	return nil
}

func (r *recordingSink) Put(_ context.Context, res types.ContactResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.putErr != nil {
		return r.putErr
	}
	r.results = append(r.results, res)
	return nil
}

func (r *recordingSink) Finish(_ context.Context, run store.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, run)
	return nil
}

// world is a fake web client with a side panel, a search box and one chat
// pane whose rows follow the selected contact.
type world struct {
	site    whatsapp.Locators
	rows    classify.Locators
	doc     *uitest.Node
	results *uitest.Node
	chats   map[string][]*uitest.Node
	current string
	session *fakeSession
}

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{
		site:  whatsapp.DefaultLocators(),
		rows:  classify.DefaultLocators(),
		doc:   uitest.New("doc"),
		chats: map[string][]*uitest.Node{},
	}
	w.doc.Add(w.site.ChatList, uitest.New("grid").Attr(w.site.RowCountAttr, "4"))
	w.doc.Add(w.site.SearchBox, uitest.New("search"))
	w.results = uitest.New("results")
	w.doc.Add(w.site.SearchResults, w.results)

	rowsContainer := uitest.New("rows")
	rowsContainer.Query = func(loc ui.Locator) ([]*uitest.Node, bool) {
		if loc != w.site.Rows {
			return nil, false
		}
		return w.chats[w.current], true
	}
	w.doc.Add(w.site.RowsContainer, rowsContainer)

	chatPane := uitest.NewScroller("chat", 0)
	chatPane.Add(stall.DefaultLocators().Banner, uitest.New("banner").WithText(stall.DefaultBanners().TopReached))

	w.session = &fakeSession{doc: overlay{
		Node: w.doc,
		panes: map[ui.Locator]ui.Node{
			w.site.SidePanel: uitest.NewScroller("pane-side", 0),
			w.site.ChatPane:  chatPane,
		},
	}}
	return w
}

// contact adds a side panel item, and unless hidden, a matching search result.
func (w *world) contact(name string, group, searchable bool, rows ...*uitest.Node) {
	rank := 72 * len(w.doc.Children[w.site.ContactItem])
	preview := uitest.New("preview").Add(w.site.PreviewText, uitest.New("last").WithText("hello"))
	if group {
		preview.Add(w.site.SenderPrefix, uitest.New("prefix"))
	}
	item := uitest.New(name).
		Attr("style", fmt.Sprintf("z-index: 1; transform: translateY(%dpx);", rank)).
		Add(w.site.ContactName, uitest.New("title").Attr("title", name)).
		Add(w.site.PreviewBox, preview)
	w.doc.Add(w.site.ContactItem, item)

	if searchable {
		result := uitest.New("result " + name).Add(w.site.ResultName, uitest.New("title").Attr("title", name))
		result.OnClick = func() { w.current = name }
		w.results.Add(w.site.ResultItem, result)
	}
	w.chats[name] = rows
}

func (w *world) textRow(header, text string) *uitest.Node {
	return uitest.New("row").
		Add(w.rows.TextPayload, uitest.New("payload").Attr(w.rows.HeaderAttr, header)).
		Add(w.rows.TextSpan, uitest.New("span").WithText(text))
}

func (w *world) scraper(sink store.Sink, opts Options) *Scraper {
	opts.Site = w.site
	opts.Rows = w.rows
	opts.Stall = stall.DefaultLocators()
	opts.Banners = stall.DefaultBanners()
	s := New(w.session, sink, opts, &clock.Fake{})
	s.newID = func() string { return "run-1" }
	return s
}

func TestRun(t *testing.T) {
	w := newWorld(t)
	w.contact("Thandi", false, true,
		w.textRow("[09:15, 02/03/2024] Thandi: ", "Morning!"),
		w.textRow("[09:16, 02/03/2024] Me: ", "Hi"),
	)
	w.contact("Braai Crew", true, true, w.textRow("[10:00, 02/03/2024] Sipho: ", "Saturday?"))
	w.contact("Lerato", false, true, w.textRow("[11:00, 02/03/2024] Lerato: ", "Sent"))

	sink := &recordingSink{}
	report, err := w.scraper(sink, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", report.RunID)
	require.Len(t, report.Contacts, 2)
	assert.Equal(t, "Thandi", report.Contacts[0].Name)
	assert.Equal(t, 2, report.Contacts[0].Messages)
	assert.Equal(t, harvest.RevealTopBanner, report.Contacts[0].Outcome)
	assert.Equal(t, 1, report.Contacts[0].Stalls)
	assert.Equal(t, "Lerato", report.Contacts[1].Name)
	assert.Equal(t, 3, report.Messages())
	assert.Zero(t, report.Failed())

	require.Len(t, sink.results, 2)
	want := []types.MessageRecord{
		{Header: "[09:15, 02/03/2024] Thandi: ", Text: "Morning!"},
		{Header: "[09:16, 02/03/2024] Me: ", Text: "Hi"},
	}
	if diff := cmp.Diff(want, sink.results[0].Records); diff != "" {
		t.Errorf("Thandi records mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, types.ContactDone, sink.results[1].Status)
	assert.Equal(t, 1, sink.results[1].Position)

	require.Len(t, sink.begun, 1)
	require.Len(t, sink.finished, 1)
	assert.Equal(t, 2, sink.finished[0].Contacts)
	assert.Equal(t, 3, sink.finished[0].Messages)
}

func TestRun_FailedContactIsIsolated(t *testing.T) {
	w := newWorld(t)
	w.contact("Thandi", false, false)
	w.contact("Lerato", false, true, w.textRow("[11:00, 02/03/2024] Lerato: ", "Sent"))

	dir := t.TempDir()
	sink := &recordingSink{}
	report, err := w.scraper(sink, Options{ScreenshotDir: dir}).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Contacts, 2)
	assert.Equal(t, types.ContactFailed, report.Contacts[0].Status)
	assert.Contains(t, report.Contacts[0].Err, "contact not found")
	assert.Equal(t, types.ContactDone, report.Contacts[1].Status)
	assert.Equal(t, 1, report.Failed())

	require.Len(t, sink.results, 2)
	assert.True(t, sink.results[0].Failed())
	assert.ErrorIs(t, sink.results[0].Err, whatsapp.ErrContactNotFound)
	assert.Equal(t, 1, sink.finished[0].Failed)

	assert.Equal(t, 1, w.session.shots)
	_, err = os.Stat(filepath.Join(dir, "run-1_000.png"))
	assert.NoError(t, err)
}

func TestRun_PartialAndEvictedRows(t *testing.T) {
	w := newWorld(t)
	quoteWithoutSender := w.textRow("[12:00, 02/03/2024] Thandi: ", "Agreed").
		Add(w.rows.ReplyBlock, uitest.New("quote"))
	evicted := w.textRow("[12:01, 02/03/2024] Thandi: ", "gone")
	evicted.Stale = true
	w.contact("Thandi", false, true, quoteWithoutSender, evicted)

	sink := &recordingSink{}
	report, err := w.scraper(sink, Options{}).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Contacts, 1)
	assert.Equal(t, 1, report.Contacts[0].Messages)
	assert.Equal(t, 2, report.Contacts[0].RowErrors)

	require.Len(t, sink.results, 1)
	got := sink.results[0].Records
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Reply)
	assert.Equal(t, "Agreed", got[0].Text)
}

func TestRun_Only(t *testing.T) {
	w := newWorld(t)
	w.contact("Thandi", false, true, w.textRow("h", "a"))
	w.contact("Lerato", false, true, w.textRow("h", "b"))

	sink := &recordingSink{}
	report, err := w.scraper(sink, Options{Only: []string{" Lerato ", "Nobody"}}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Contacts, 1)
	assert.Equal(t, "Lerato", report.Contacts[0].Name)
}

func TestRun_LoginTimeout(t *testing.T) {
	w := newWorld(t)
	w.session.loginFail = true

	sink := &recordingSink{}
	report, err := w.scraper(sink, Options{}).Run(context.Background())
	assert.ErrorIs(t, err, whatsapp.ErrLoginTimeout)
	assert.Empty(t, report.Contacts)
	assert.Empty(t, sink.begun, "nothing is written before login")
}

func TestRun_SinkFailureStopsRun(t *testing.T) {
	w := newWorld(t)
	w.contact("Thandi", false, true, w.textRow("h", "a"))
	w.contact("Lerato", false, true, w.textRow("h", "b"))

	boom := errors.New("disk full")
	sink := &recordingSink{putErr: boom}
	report, err := w.scraper(sink, Options{}).Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, report.Contacts, 1)
	assert.Len(t, sink.finished, 1, "the run is still finalized")
}

func TestRun_Canceled(t *testing.T) {
	w := newWorld(t)
	w.contact("Thandi", false, true, w.textRow("h", "a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &recordingSink{}
	_, err := w.scraper(sink, Options{}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContacts(t *testing.T) {
	w := newWorld(t)
	w.contact("Thandi", false, true)
	w.contact("Family", true, true)
	w.contact("Lerato", false, true)

	names, err := w.scraper(&recordingSink{}, Options{}).Contacts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Thandi", "Lerato"}, names)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Chat.StallCeiling = 11

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, 11, opts.Harvest.RevealStallCeiling)
	assert.Equal(t, cfg.Locators.Site.ChatPane, opts.Stall.ChatPane)
	assert.Equal(t, 5*time.Second, opts.StallSettle)
	assert.Equal(t, whatsapp.DefaultURL, opts.URL)
}

func TestReport(t *testing.T) {
	start := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	r := &Report{
		StartedAt: start,
		Contacts: []ContactReport{
			{Status: types.ContactDone, Messages: 4},
			{Status: types.ContactFailed},
			{Status: types.ContactDone, Messages: 1},
		},
	}
	assert.Zero(t, r.Duration())
	r.FinishedAt = start.Add(90 * time.Second)
	assert.Equal(t, 90*time.Second, r.Duration())
	assert.Equal(t, 5, r.Messages())
	assert.Equal(t, 1, r.Failed())
}
