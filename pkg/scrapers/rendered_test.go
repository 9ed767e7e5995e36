package scrapers

import (
	"context"
	"errors"
	"listing-hunter/pkg/browser"
	"listing-hunter/pkg/models"
	"testing"
)

type fakeRenderer struct {
	pages  map[string]string
	closed bool
}

func (f *fakeRenderer) Render(_ context.Context, url string) (string, error) {
	html, ok := f.pages[url]
	if !ok {
		return "", errors.New("navigation failed")
	}
	return html, nil
}

func (f *fakeRenderer) Close() { f.closed = true }

func launcher(r *fakeRenderer) browser.Launcher {
	return func(context.Context) (browser.Renderer, error) { return r, nil }
}

var testPage = Page{URLTemplate: "https://shop.test/search?q=%s", Item: "article", Exclude: "#slider"}

const searchHTML = `<html><body>
<article id="a1"><p>one</p></article>
<div id="slider"><article id="promo"><p>promo</p></article></div>
<article id="a2"><p>two</p></article>
</body></html>`

func TestFetchRenderedSkipsFailedTermsAndCarousels(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		"https://shop.test/search?q=kiton": searchHTML,
	}}

	records, err := FetchRendered(context.Background(), launcher(r), testPage, []string{"missing", "kiton"}, nil)
	if err != nil {
		t.Fatalf("FetchRendered: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	for i, want := range []string{"a1", "a2"} {
		s, err := Selection(records[i])
		if err != nil {
			t.Fatal(err)
		}
		if id, _ := s.Attr("id"); id != want {
			t.Errorf("record %d id = %s, want %s", i, id, want)
		}
	}
	if !r.closed {
		t.Error("session should be closed after fetch")
	}
}

func TestFetchRenderedAllTermsFailed(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{}}

	_, err := FetchRendered(context.Background(), launcher(r), testPage, []string{"a", "b"}, nil)
	if !errors.Is(err, models.ErrSourceUnreachable) {
		t.Fatalf("expected ErrSourceUnreachable, got %v", err)
	}
	if !r.closed {
		t.Error("session should be closed on failure too")
	}
}

func TestFetchRenderedLaunchFailure(t *testing.T) {
	launch := func(context.Context) (browser.Renderer, error) { return nil, errors.New("chrome not found") }

	_, err := FetchRendered(context.Background(), launch, testPage, []string{"a"}, nil)
	if !errors.Is(err, models.ErrSourceUnreachable) {
		t.Fatalf("expected ErrSourceUnreachable, got %v", err)
	}
}

func TestTextAndAttr(t *testing.T) {
	nodes, err := Select(`<article><a href="/x">link</a><p class="t">hi</p></article>`, "article", "")
	if err != nil || len(nodes) != 1 {
		t.Fatalf("Select: %v, %d nodes", err, len(nodes))
	}

	if v, err := Text(nodes[0], "p.t"); err != nil || v != "hi" {
		t.Errorf("Text = %q, %v", v, err)
	}
	if v, err := Attr(nodes[0], "a", "href"); err != nil || v != "/x" {
		t.Errorf("Attr = %q, %v", v, err)
	}
	if _, err := Attr(nodes[0], "img", "src"); err == nil {
		t.Error("expected error for missing element")
	}
	if _, err := Text("not a selection", "p"); !errors.Is(err, models.ErrUnexpectedRecord) {
		t.Errorf("expected ErrUnexpectedRecord, got %v", err)
	}
}
