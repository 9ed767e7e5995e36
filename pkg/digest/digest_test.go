package digest

import (
	"bytes"
	"listing-hunter/pkg/models"
	"strings"
	"testing"
)

func sample() []models.Listing {
	return []models.Listing{
		{ID: "1", Brand: "Kiton", Price: "100 kr", Size: "48", URL: "https://x/1", ImageURL: "https://x/1.jpg"},
		{ID: "2", Brand: "Etro", Price: "200 kr", URL: "https://x/2", ImageURL: "https://x/2.jpg", Condition: "Very good"},
		{ID: "3", Brand: "Kiton", Price: "300 kr", URL: "https://x/3", ImageURL: "https://x/3.jpg", Title: "Tie"},
		{ID: "4", Brand: "Kiton", Price: "400 kr", URL: "https://x/4", ImageURL: "https://x/4.jpg"},
	}
}

func TestGroupPreservesOrder(t *testing.T) {
	sections := Group(sample())

	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	if sections[0].Brand != "Kiton" || sections[1].Brand != "Etro" {
		t.Fatalf("unexpected brand order: %s, %s", sections[0].Brand, sections[1].Brand)
	}

	kiton := sections[0].Rows
	if len(kiton) != 2 {
		t.Fatalf("expected Kiton to span 2 rows, got %d", len(kiton))
	}
	if kiton[0][0].ID != "1" || kiton[0][1].ID != "3" || kiton[1][0].ID != "4" {
		t.Errorf("unexpected Kiton order")
	}
	if kiton[1][1] != nil {
		t.Errorf("last row should be padded with an empty cell")
	}
}

func TestRenderCountsEntriesAndSections(t *testing.T) {
	out, err := Render(sample())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := string(out)

	if got := strings.Count(html, `class="listing"`); got != 4 {
		t.Errorf("expected 4 listing entries, got %d", got)
	}
	if got := strings.Count(html, `class="brand"`); got != 2 {
		t.Errorf("expected 2 brand sections, got %d", got)
	}
	if !strings.Contains(html, `<a href="https://x/1" target="_blank"><img src="https://x/1.jpg"`) {
		t.Errorf("expected clickable thumbnail for listing 1")
	}
	if strings.Index(html, "Kiton") > strings.Index(html, "Etro") {
		t.Errorf("Kiton section should come first")
	}
}

func TestRenderOmitsMissingOptionalFields(t *testing.T) {
	out, err := Render(sample()[:1])
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := string(out)

	if !strings.Contains(html, "<b>Size:</b> 48") {
		t.Errorf("size row missing")
	}
	if strings.Contains(html, "Condition:") {
		t.Errorf("condition row should be omitted when empty")
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	a, err := Render(sample())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Render(sample())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("rendering the same input twice produced different output")
	}
}

func TestRenderEscapesMarkup(t *testing.T) {
	in := sample()[:1]
	in[0].Brand = `<script>alert(1)</script>`

	out, err := Render(in)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(out), "<script>") {
		t.Error("brand text must be escaped")
	}
}

func TestRenderEmpty(t *testing.T) {
	if _, err := Render(nil); err == nil {
		t.Error("expected error for empty digest")
	}
}
