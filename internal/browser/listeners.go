package browser

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/ciciliostudio/sidekick/internal/detect"
	"github.com/ciciliostudio/sidekick/internal/logging"
)

// mutationBinding is the page-exposed callback the injected observer calls
// with the current body text length.
const mutationBinding = "__sidekickMutation"

// observerScript installs a MutationObserver on every new document. It
// reports the body's text length so the detector can compute deltas without
// shipping page content across the binding.
const observerScript = `(() => {
	if (window.__sidekickObserver) return;
	const report = () => {
		const len = document.body ? document.body.innerText.length : 0;
		if (window.` + mutationBinding + `) window.` + mutationBinding + `(String(len));
	};
	const install = () => {
		if (!document.body) return;
		window.__sidekickObserver = new MutationObserver(report);
		window.__sidekickObserver.observe(document.body, {
			childList: true,
			subtree: true,
			characterData: true,
		});
	};
	if (document.readyState === 'loading') {
		document.addEventListener('DOMContentLoaded', install);
	} else {
		install();
	}
})();`

// AttachListeners wires the tab's navigation events and an injected mutation
// observer into the change detector. It must be called once after the
// manager starts.
func AttachListeners(m *Manager, detector *detect.Detector) error {
	ctx := m.Context()

	if err := chromedp.Run(ctx,
		cdpruntime.AddBinding(mutationBinding),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(observerScript).Do(ctx)
			return err
		}),
	); err != nil {
		return err
	}

	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame.ParentID != "" {
				return // subframe
			}
			detector.OnNavigate(e.Frame.URL)

		case *page.EventNavigatedWithinDocument:
			detector.OnNavigate(e.URL)

		case *cdpruntime.EventBindingCalled:
			if e.Name != mutationBinding {
				return
			}
			var raw string
			if err := json.Unmarshal([]byte(e.Payload), &raw); err != nil {
				logging.Debug("mutation binding payload not a string: %v", err)
				return
			}
			length, err := strconv.Atoi(raw)
			if err != nil {
				logging.Debug("mutation binding payload not a length: %q", raw)
				return
			}
			detector.OnMutation(length)
		}
	})

	// The observer script only auto-installs on documents loaded after this
	// point; inject into the current document directly.
	var ignored interface{}
	if err := m.Eval(observerScript, &ignored); err != nil {
		logging.Debug("installing observer on current document: %v", err)
	}

	return nil
}

// ReinjectObserver verifies the tab is still reachable on the debug port and
// reinstalls the mutation observer in the current document.
func ReinjectObserver(m *Manager) error {
	if err := HealthCheck(m.DebugPort()); err != nil {
		return err
	}
	var ignored interface{}
	return m.Eval(observerScript, &ignored)
}
