package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ciciliostudio/sidekick/internal/executor"
	"github.com/ciciliostudio/sidekick/internal/logging"
)

// pageEvaluator is the slice of the manager the driver scripts run through.
type pageEvaluator interface {
	PageHTML() (string, error)
	Eval(script string, result interface{}) error
}

// highlightEntry tracks one active highlight so overlapping requests restore
// the element's original inline style exactly once.
type highlightEntry struct {
	timer   *time.Timer
	outline string
	offset  string
	seq     int
}

// Driver implements the executor's page surface over a live chromedp tab.
// All element operations go through querySelector with the selectors the
// resolver produced from the same serialized DOM.
type Driver struct {
	page pageEvaluator

	hmu        sync.Mutex
	highlights map[string]*highlightEntry
}

// NewDriver wraps a manager as a page driver.
func NewDriver(m *Manager) *Driver {
	return newDriver(m)
}

func newDriver(page pageEvaluator) *Driver {
	return &Driver{
		page:       page,
		highlights: make(map[string]*highlightEntry),
	}
}

// Snapshot parses the tab's current serialized DOM.
func (d *Driver) Snapshot(ctx context.Context) (*goquery.Document, error) {
	html, err := d.page.PageHTML()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot page: %w", err)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// ApplyValue writes a value through the element's native path for its kind
// and dispatches input and change events so framework listeners fire.
func (d *Driver) ApplyValue(ctx context.Context, selector string, kind executor.FieldKind, value string) error {
	var script string
	switch kind {
	case executor.Checkable:
		script = fmt.Sprintf(`(() => {
			const el = document.querySelector(%q);
			if (!el) return false;
			if (el.type === 'radio') {
				el.checked = true;
			} else {
				const off = ['', 'no', 'false', 'off', '0', 'unchecked'];
				el.checked = !off.includes(%q.toLowerCase());
			}
			el.dispatchEvent(new Event('input', { bubbles: true }));
			el.dispatchEvent(new Event('change', { bubbles: true }));
			return true;
		})()`, selector, value)
	case executor.Selectable:
		script = fmt.Sprintf(`(() => {
			const el = document.querySelector(%q);
			if (!el) return false;
			const want = %q;
			let matched = false;
			for (const opt of el.options) {
				if (opt.value === want || opt.textContent.trim() === want) {
					el.value = opt.value;
					matched = true;
					break;
				}
			}
			if (!matched) el.value = want;
			el.dispatchEvent(new Event('input', { bubbles: true }));
			el.dispatchEvent(new Event('change', { bubbles: true }));
			return true;
		})()`, selector, value)
	default:
		script = fmt.Sprintf(`(() => {
			const el = document.querySelector(%q);
			if (!el) return false;
			el.focus();
			el.value = %q;
			el.dispatchEvent(new Event('input', { bubbles: true }));
			el.dispatchEvent(new Event('change', { bubbles: true }));
			return true;
		})()`, selector, value)
	}

	return d.evalFound(script, selector)
}

// Click dispatches a full mouse event sequence on the element.
func (d *Driver) Click(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		const opts = { view: window, bubbles: true, cancelable: true };
		el.dispatchEvent(new MouseEvent('mousedown', opts));
		el.dispatchEvent(new MouseEvent('mouseup', opts));
		el.click();
		return true;
	})()`, selector)

	return d.evalFound(script, selector)
}

// SubmitForm submits the form through requestSubmit so validation and submit
// listeners run, falling back to a dispatched submit event.
func (d *Driver) SubmitForm(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(() => {
		const form = document.querySelector(%q);
		if (!form) return false;
		if (typeof form.requestSubmit === 'function') {
			form.requestSubmit();
		} else {
			form.dispatchEvent(new Event('submit', { bubbles: true, cancelable: true }));
		}
		return true;
	})()`, selector)

	return d.evalFound(script, selector)
}

// IsVisible reports whether the element takes up layout space and is not
// hidden by computed style.
func (d *Driver) IsVisible(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		if (el.getClientRects().length === 0) return false;
		const style = window.getComputedStyle(el);
		return style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
	})()`, selector)

	var visible bool
	if err := d.page.Eval(script, &visible); err != nil {
		return false, err
	}
	return visible, nil
}

// ScrollIntoView centers the element in the viewport.
func (d *Driver) ScrollIntoView(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.scrollIntoView({ block: 'center', behavior: 'auto' });
		return true;
	})()`, selector)

	return d.evalFound(script, selector)
}

// Highlight applies a temporary outline and restores the element's prior
// inline style when the duration elapses. Re-highlighting an element that is
// already highlighted extends the outline window; the original style read
// before the first application is the one restored, never stacked values.
func (d *Driver) Highlight(ctx context.Context, selector string, duration time.Duration) error {
	d.hmu.Lock()
	defer d.hmu.Unlock()

	entry, active := d.highlights[selector]
	if active {
		entry.timer.Stop()
	} else {
		outline, offset, err := d.readInlineOutline(selector)
		if err != nil {
			return err
		}
		entry = &highlightEntry{outline: outline, offset: offset}
		d.highlights[selector] = entry
	}

	if err := d.applyOutline(selector); err != nil {
		if !active {
			delete(d.highlights, selector)
		}
		return err
	}

	entry.seq++
	seq := entry.seq
	entry.timer = time.AfterFunc(duration, func() {
		d.revertHighlight(selector, seq)
	})
	return nil
}

func (d *Driver) readInlineOutline(selector string) (outline, offset string, err error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return null;
		return [el.style.outline || '', el.style.outlineOffset || ''];
	})()`, selector)

	var style []string
	if err := d.page.Eval(script, &style); err != nil {
		return "", "", err
	}
	if len(style) != 2 {
		return "", "", fmt.Errorf("element not found in live page: %s", selector)
	}
	return style[0], style[1], nil
}

func (d *Driver) applyOutline(selector string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.style.outline = '3px solid #f2b64c';
		el.style.outlineOffset = '2px';
		return true;
	})()`, selector)

	return d.evalFound(script, selector)
}

// revertHighlight restores the saved inline style once the last-scheduled
// window elapses. A stale seq means a newer highlight took over the entry.
func (d *Driver) revertHighlight(selector string, seq int) {
	d.hmu.Lock()
	defer d.hmu.Unlock()

	entry, ok := d.highlights[selector]
	if !ok || entry.seq != seq {
		return
	}
	delete(d.highlights, selector)

	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.style.outline = %q;
		el.style.outlineOffset = %q;
		return true;
	})()`, selector, entry.outline, entry.offset)

	if err := d.evalFound(script, selector); err != nil {
		logging.Debug("restoring highlight style: %v", err)
	}
}

// evalFound runs a script that returns false when the element is missing.
func (d *Driver) evalFound(script, selector string) error {
	var found bool
	if err := d.page.Eval(script, &found); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("element not found in live page: %s", selector)
	}
	return nil
}
