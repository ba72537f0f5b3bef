// Package scrape runs a full harvest: login, contact enumeration, and for
// every private contact the history reveal and row classification.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/classify"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/clock"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/config"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/harvest"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/logging"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/stall"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/store"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/types"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/ui"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/whatsapp"
)

// Screenshotter is implemented by sessions that can capture the page. When
// available a screenshot is saved for every failed contact.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Options configure a Scraper.
type Options struct {
	URL         string
	Harvest     harvest.Options
	Timing      whatsapp.Timing
	Site        whatsapp.Locators
	Stall       stall.Locators
	Banners     stall.Banners
	Rows        classify.Locators
	StallSettle time.Duration

	// Only restricts the run to these contact names. Empty means all.
	Only []string
	// ScreenshotDir receives <run>_<position>.png for failed contacts.
	ScreenshotDir string
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		URL:         cfg.Login.URL,
		Harvest:     cfg.HarvestOptions(),
		Timing:      cfg.Timing(),
		Site:        cfg.Locators.Site,
		Stall:       cfg.StallLocators(),
		Banners:     cfg.Banners,
		Rows:        cfg.Locators.Rows,
		StallSettle: cfg.GetStallSettle(),
	}
}

// Scraper drives one session through a run.
type Scraper struct {
	session    whatsapp.Session
	client     *whatsapp.Client
	harvester  *harvest.Harvester
	classifier *classify.Classifier
	sink       store.Sink
	clock      clock.Clock
	opts       Options

	newID func() string
	now   func() time.Time
}

// New returns a scraper delivering results to sink. A nil clock sleeps on
// the wall clock.
func New(session whatsapp.Session, sink store.Sink, opts Options, c clock.Clock) *Scraper {
	if c == nil {
		c = clock.Real{}
	}
	if opts.URL == "" {
		opts.URL = whatsapp.DefaultURL
	}
	if opts.Stall.ChatPane == "" {
		opts.Stall.ChatPane = opts.Site.ChatPane
	}
	return &Scraper{
		session:    session,
		client:     whatsapp.NewClient(session, opts.Site, opts.Timing, c),
		harvester:  harvest.New(opts.Harvest, c),
		classifier: classify.New(opts.Rows),
		sink:       sink,
		clock:      c,
		opts:       opts,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// Contacts logs in and enumerates the private contacts, applying the
// Only filter.
func (s *Scraper) Contacts(ctx context.Context) ([]string, error) {
	start := s.now()
	if err := s.client.WaitForLogin(ctx, s.opts.URL); err != nil {
		logging.Audit(logging.AuditEvent{Event: logging.AuditLogin, Err: err})
		return nil, err
	}
	logging.Audit(logging.AuditEvent{
		Event:      logging.AuditLogin,
		Success:    true,
		DurationMs: s.now().Sub(start).Milliseconds(),
	})

	names, err := s.client.Contacts(ctx, s.harvester)
	if err != nil {
		return nil, fmt.Errorf("enumerate contacts: %w", err)
	}
	return s.filter(names), nil
}

func (s *Scraper) filter(names []string) []string {
	if len(s.opts.Only) == 0 {
		return names
	}
	want := make(map[string]struct{}, len(s.opts.Only))
	for _, n := range s.opts.Only {
		want[strings.TrimSpace(n)] = struct{}{}
	}
	var out []string
	for _, n := range names {
		if _, ok := want[n]; ok {
			out = append(out, n)
		}
	}
	for _, n := range s.opts.Only {
		if !contains(out, strings.TrimSpace(n)) {
			logging.SessionWarn("requested contact %q is not a private chat in the side panel", n)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Run performs a full harvest. Failing contacts are recorded and skipped.
// Results already delivered are finalized even when ctx is canceled.
func (s *Scraper) Run(ctx context.Context) (*Report, error) {
	run := store.Run{ID: s.newID(), StartedAt: s.now()}
	report := &Report{RunID: run.ID, StartedAt: run.StartedAt}
	logging.Audit(logging.AuditEvent{Event: logging.AuditRunStart, RunID: run.ID})
	logging.Session("run %s started", run.ID)

	names, err := s.Contacts(ctx)
	if err != nil {
		report.FinishedAt = s.now()
		logging.Audit(logging.AuditEvent{Event: logging.AuditRunEnd, RunID: run.ID, Err: err})
		return report, err
	}
	logging.Audit(logging.AuditEvent{Event: logging.AuditContactsFound, RunID: run.ID, Count: len(names), Success: true})
	logging.Session("harvesting %d contacts", len(names))

	if err := s.sink.Begin(ctx, run); err != nil {
		return report, fmt.Errorf("begin run: %w", err)
	}

	var runErr error
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		res, cr := s.harvestContact(ctx, run.ID, i, name)
		report.Contacts = append(report.Contacts, cr)

		if err := s.sink.Put(context.WithoutCancel(ctx), res); err != nil {
			runErr = fmt.Errorf("store %q: %w", name, err)
			break
		}
		if res.Failed() && ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
	}

	run.FinishedAt = s.now()
	report.FinishedAt = run.FinishedAt
	run.Contacts = len(report.Contacts)
	run.Failed = report.Failed()
	run.Messages = report.Messages()

	if err := s.sink.Finish(context.WithoutCancel(ctx), run); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("finish run: %w", err))
	}

	logging.Audit(logging.AuditEvent{
		Event:      logging.AuditRunEnd,
		RunID:      run.ID,
		Success:    runErr == nil,
		DurationMs: report.Duration().Milliseconds(),
		Count:      run.Messages,
		Err:        runErr,
	})
	logging.Session("run %s finished: %d contacts, %d failed, %d messages",
		run.ID, run.Contacts, run.Failed, run.Messages)
	return report, runErr
}

// harvestContact opens one chat, reveals its history and classifies it.
func (s *Scraper) harvestContact(ctx context.Context, runID string, pos int, name string) (types.ContactResult, ContactReport) {
	res := types.ContactResult{RunID: runID, Name: name, Position: pos, StartedAt: s.now()}
	cr := ContactReport{Name: name}
	logging.Audit(logging.AuditEvent{Event: logging.AuditContactStart, RunID: runID, Contact: name})

	records, stats, rowErrs, err := s.collect(ctx, name)
	res.FinishedAt = s.now()
	cr.Duration = res.FinishedAt.Sub(res.StartedAt)
	cr.Stalls = stats.Stalls
	cr.Outcome = stats.Outcome
	cr.RowErrors = rowErrs
	res.RowErrors = rowErrs

	for d, n := range stats.Diagnoses {
		logging.Audit(logging.AuditEvent{
			Event:   logging.AuditStall,
			RunID:   runID,
			Contact: name,
			Count:   n,
			Detail:  d.String(),
		})
	}

	if err != nil {
		res.Status = types.ContactFailed
		res.Err = err
		cr.Status = types.ContactFailed
		cr.Err = err.Error()
		logging.SessionWarn("contact %q failed: %v", name, err)
		s.screenshot(ctx, runID, pos)
		logging.Audit(logging.AuditEvent{
			Event:      logging.AuditContactFailed,
			RunID:      runID,
			Contact:    name,
			DurationMs: cr.Duration.Milliseconds(),
			Err:        err,
		})
		return res, cr
	}

	res.Status = types.ContactDone
	res.Records = records
	cr.Status = types.ContactDone
	cr.Messages = len(records)
	logging.Session("contact %q: %d messages (%s after %d stalls)", name, len(records), stats.Outcome, stats.Stalls)
	logging.Audit(logging.AuditEvent{
		Event:      logging.AuditContactDone,
		RunID:      runID,
		Contact:    name,
		Success:    true,
		Count:      len(records),
		DurationMs: cr.Duration.Milliseconds(),
		Detail:     stats.Outcome.String(),
	})
	return res, cr
}

func (s *Scraper) collect(ctx context.Context, name string) ([]types.MessageRecord, harvest.RevealStats, int, error) {
	var stats harvest.RevealStats
	if err := s.client.SelectContact(ctx, name); err != nil {
		return nil, stats, 0, err
	}
	pane, err := s.client.ChatPane(ctx)
	if err != nil {
		return nil, stats, 0, err
	}
	doc, err := s.client.Document(ctx)
	if err != nil {
		return nil, stats, 0, err
	}
	resolver := stall.NewResolver(doc, s.opts.Stall, s.opts.Banners, s.clock, s.opts.StallSettle)

	stats, err = s.harvester.RevealUntilTop(ctx, pane, resolver)
	if err != nil {
		return nil, stats, 0, fmt.Errorf("reveal history: %w", err)
	}

	rows, err := s.client.Rows(ctx)
	if err != nil {
		return nil, stats, 0, err
	}
	records, rowErrs := s.classifyRows(name, rows)
	return records, stats, rowErrs, nil
}

// classifyRows keeps every record, including partial ones. Rows already
// evicted from the page are dropped.
func (s *Scraper) classifyRows(name string, rows []ui.Node) ([]types.MessageRecord, int) {
	timer := logging.StartTimer(logging.CategoryClassify, "classify "+name)
	defer timer.Stop()

	records := make([]types.MessageRecord, 0, len(rows))
	misses := 0
	for i, row := range rows {
		if _, _, err := row.Attribute("role"); ui.IsStale(err) {
			misses++
			logging.ClassifyWarn("%s row %d evicted before reading, skipped", name, i)
			continue
		}
		rec, err := s.classifier.Classify(row)
		if err != nil {
			misses++
			logging.ClassifyWarn("%s row %d partially classified: %v", name, i, err)
		}
		records = append(records, rec)
	}
	logging.ClassifyDebug("%s: %d rows, %d misses", name, len(rows), misses)
	return records, misses
}

func (s *Scraper) screenshot(ctx context.Context, runID string, pos int) {
	shooter, ok := s.session.(Screenshotter)
	if !ok || s.opts.ScreenshotDir == "" {
		return
	}
	png, err := shooter.Screenshot(context.WithoutCancel(ctx))
	if err != nil {
		logging.BrowserWarn("screenshot failed: %v", err)
		return
	}
	if err := os.MkdirAll(s.opts.ScreenshotDir, 0o755); err != nil {
		logging.BrowserWarn("screenshot dir: %v", err)
		return
	}
	path := filepath.Join(s.opts.ScreenshotDir, fmt.Sprintf("%s_%03d.png", runID, pos))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		logging.BrowserWarn("write screenshot: %v", err)
		return
	}
	logging.Browser("saved failure screenshot %s", path)
}
