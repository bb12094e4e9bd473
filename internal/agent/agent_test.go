package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciciliostudio/sidekick/internal/detect"
	"github.com/ciciliostudio/sidekick/internal/executor"
	"github.com/ciciliostudio/sidekick/internal/pending"
	"github.com/ciciliostudio/sidekick/internal/router"
	"github.com/ciciliostudio/sidekick/internal/types"
)

type fakeSource struct {
	html      string
	url       string
	title     string
	selection string
	htmlErr   error
}

func (f *fakeSource) PageHTML() (string, error) {
	return f.html, f.htmlErr
}

func (f *fakeSource) PageInfo() (string, string, error) {
	return f.url, f.title, nil
}

func (f *fakeSource) SelectedText() (string, error) {
	return f.selection, nil
}

func (f *fakeSource) BodyTextLength() (int, error) {
	return len(f.html), nil
}

type nullDriver struct{}

func (nullDriver) Snapshot(_ context.Context) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader("<html><body></body></html>"))
}
func (nullDriver) ApplyValue(_ context.Context, _ string, _ executor.FieldKind, _ string) error {
	return nil
}
func (nullDriver) Click(_ context.Context, _ string) error             { return nil }
func (nullDriver) SubmitForm(_ context.Context, _ string) error        { return nil }
func (nullDriver) IsVisible(_ context.Context, _ string) (bool, error) { return true, nil }
func (nullDriver) ScrollIntoView(_ context.Context, _ string) error    { return nil }
func (nullDriver) Highlight(_ context.Context, _ string, _ time.Duration) error {
	return nil
}

func newFixture(t *testing.T, source *fakeSource) (*Agent, *router.Router, *detect.Detector) {
	t.Helper()
	bus := router.New(time.Second)
	t.Cleanup(bus.Close)

	detector := detect.New(20*time.Millisecond, 200)
	exec := executor.New(nullDriver{}, pending.NewStore())
	a := New(bus, source, exec, detector)
	return a, bus, detector
}

func TestExtractHandler(t *testing.T) {
	source := &fakeSource{
		html:      `<html><body><h1>Hello</h1><p>Visible words here.</p></body></html>`,
		url:       "https://a.example",
		title:     "A",
		selection: "words",
	}
	_, bus, _ := newFixture(t, source)

	var page types.PageContext
	err := bus.Request(context.Background(), router.ContextAgent, "context.extract", nil, &page)
	require.NoError(t, err)

	assert.Equal(t, "https://a.example", page.URL)
	assert.Equal(t, "A", page.Title)
	assert.Equal(t, "words", page.SelectedText)
	require.Len(t, page.Headings, 1)
	assert.Equal(t, "Hello", page.Headings[0].Text)
}

func TestExtractHandlerPageUnreachable(t *testing.T) {
	source := &fakeSource{htmlErr: assert.AnError}
	_, bus, _ := newFixture(t, source)

	err := bus.Request(context.Background(), router.ContextAgent, "context.extract", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page unreachable")
}

func TestExtractSetsDetectorBaseline(t *testing.T) {
	source := &fakeSource{html: `<html><body><p>short page body</p></body></html>`}
	_, bus, detector := newFixture(t, source)

	require.NoError(t, bus.Request(context.Background(), router.ContextAgent, "context.extract", nil, nil))

	// The baseline equals the source length, so an equal-length mutation
	// burst is quiet.
	detector.OnMutation(len(source.html))
	select {
	case <-detector.Signals():
		t.Fatal("baseline was not set by extraction")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSurfaceSingleton(t *testing.T) {
	_, bus, _ := newFixture(t, &fakeSource{html: "<html><body></body></html>"})

	var state SurfaceState
	require.NoError(t, bus.Request(context.Background(), router.ContextAgent, "surface.open", nil, &state))
	assert.False(t, state.AlreadyOpen)

	require.NoError(t, bus.Request(context.Background(), router.ContextAgent, "surface.open", nil, &state))
	assert.True(t, state.AlreadyOpen, "second open is a no-op on an already-open surface")

	require.NoError(t, bus.Request(context.Background(), router.ContextAgent, "surface.close", nil, nil))
	require.NoError(t, bus.Request(context.Background(), router.ContextAgent, "surface.open", nil, &state))
	assert.False(t, state.AlreadyOpen)
}

func TestStalenessForwardedToCoordinator(t *testing.T) {
	a, bus, detector := newFixture(t, &fakeSource{html: "<html><body></body></html>"})

	received := make(chan StaleNotice, 1)
	bus.Handle(router.ContextCoordinator, "context.stale", func(_ context.Context, payload json.RawMessage) (interface{}, error) {
		var notice StaleNotice
		if err := json.Unmarshal(payload, &notice); err != nil {
			return nil, err
		}
		received <- notice
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	detector.OnNavigate("https://moved.example")

	select {
	case notice := <-received:
		assert.Equal(t, "navigation", notice.Cause)
		assert.Equal(t, "https://moved.example", notice.URL)
	case <-time.After(time.Second):
		t.Fatal("staleness notice never arrived")
	}
}

func TestCancelWithoutPendingIsQuiet(t *testing.T) {
	_, bus, _ := newFixture(t, &fakeSource{html: "<html><body></body></html>"})

	err := bus.Request(context.Background(), router.ContextAgent, "action.cancel",
		CancelRequest{Category: types.CategoryClick}, nil)
	assert.NoError(t, err)
}

func TestCancelStaleIDKeepsReplacementParked(t *testing.T) {
	a, bus, _ := newFixture(t, &fakeSource{html: "<html><body></body></html>"})

	cmd := types.ActionCommand{Kind: types.ActionClick, Target: types.TargetDescriptor{Text: "First"}}
	firstID := a.exec.Pending().Put(cmd)
	cmd.Target.Text = "Second"
	secondID := a.exec.Pending().Put(cmd)

	err := bus.Request(context.Background(), router.ContextAgent, "action.cancel",
		CancelRequest{Category: types.CategoryClick, PendingID: firstID}, nil)
	assert.NoError(t, err)

	// The replacement is still confirmable.
	kept, _, ok := a.exec.Pending().Peek(types.CategoryClick)
	require.True(t, ok, "cancelling a superseded prompt must not drop the newer command")
	assert.Equal(t, "Second", kept.Target.Text)

	err = bus.Request(context.Background(), router.ContextAgent, "action.confirm",
		ConfirmRequest{Category: types.CategoryClick, PendingID: secondID}, nil)
	assert.NoError(t, err)
}

func TestExhaustedReinjectionReportsDeliveryFailure(t *testing.T) {
	a, bus, detector := newFixture(t, &fakeSource{html: "<html><body></body></html>"})
	a.backoff = time.Millisecond
	a.SetReinjector(func() error { return assert.AnError })

	received := make(chan DeliveryFailure, 1)
	bus.Handle(router.ContextCoordinator, "context.stale", func(_ context.Context, _ json.RawMessage) (interface{}, error) {
		return nil, nil
	})
	bus.Handle(router.ContextCoordinator, "delivery.failed", func(_ context.Context, payload json.RawMessage) (interface{}, error) {
		var failure DeliveryFailure
		if err := json.Unmarshal(payload, &failure); err != nil {
			return nil, err
		}
		received <- failure
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	detector.OnNavigate("https://moved.example")

	select {
	case failure := <-received:
		assert.Equal(t, "page-observer", failure.Stage)
		assert.Contains(t, failure.Error, assert.AnError.Error())
	case <-time.After(2 * time.Second):
		t.Fatal("delivery failure never reached the coordinator")
	}
}
