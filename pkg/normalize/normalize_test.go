package normalize

import (
	"errors"
	"listing-hunter/pkg/models"
	"strings"
	"testing"
)

func mapAccessor(key string) Accessor {
	return func(raw models.RawRecord) (string, error) {
		m, ok := raw.(map[string]string)
		if !ok {
			return "", models.ErrUnexpectedRecord
		}
		v, ok := m[key]
		if !ok {
			return "", errors.New("missing " + key)
		}
		return v, nil
	}
}

func testAccessors() Accessors {
	return Accessors{
		ID:        mapAccessor("id"),
		Brand:     mapAccessor("brand"),
		Title:     mapAccessor("title"),
		Price:     mapAccessor("price"),
		Size:      mapAccessor("size"),
		Condition: mapAccessor("condition"),
		URL:       mapAccessor("url"),
		ImageURL:  mapAccessor("img"),
		Sold:      func(price string) bool { return strings.Contains(price, "\u00a0") },
	}
}

func complete() map[string]string {
	return map[string]string{
		"id":    "123",
		"brand": "Kiton",
		"price": "1 200 kr",
		"url":   "https://example.com/items/123",
		"img":   "https://example.com/123.jpg",
	}
}

func TestNormalizeComplete(t *testing.T) {
	raw := complete()
	raw["size"] = "  M  "

	l, ok := Normalize(raw, testAccessors())
	if !ok {
		t.Fatal("expected complete record to normalize")
	}
	if l.ID != "123" || l.Brand != "Kiton" {
		t.Errorf("unexpected listing: %+v", l)
	}
	if l.Size != "M" {
		t.Errorf("size not trimmed: %q", l.Size)
	}
	if l.Title != "" || l.Condition != "" {
		t.Errorf("missing optional fields should stay empty: %+v", l)
	}
}

func TestNormalizeDropsIncomplete(t *testing.T) {
	for _, key := range []string{"id", "brand", "price", "url", "img"} {
		t.Run(key, func(t *testing.T) {
			raw := complete()
			delete(raw, key)
			if _, ok := Normalize(raw, testAccessors()); ok {
				t.Errorf("record without %s should be dropped", key)
			}
		})
	}

	t.Run("blank value", func(t *testing.T) {
		raw := complete()
		raw["brand"] = "   "
		if _, ok := Normalize(raw, testAccessors()); ok {
			t.Error("whitespace-only brand should be dropped")
		}
	})
}

func TestNormalizeDropsSold(t *testing.T) {
	raw := complete()
	raw["price"] = "Såld\u00a0"
	if _, ok := Normalize(raw, testAccessors()); ok {
		t.Error("sold record should be dropped")
	}
}

func TestNormalizeSurvivesPanickingAccessor(t *testing.T) {
	acc := testAccessors()
	acc.Title = func(models.RawRecord) (string, error) {
		var s []string
		return s[3], nil
	}

	l, ok := Normalize(complete(), acc)
	if !ok {
		t.Fatal("a failing optional accessor must not drop the record")
	}
	if l.Title != "" {
		t.Errorf("title = %q, want empty", l.Title)
	}
}

func TestNormalizeWrongRecordType(t *testing.T) {
	if _, ok := Normalize(42, testAccessors()); ok {
		t.Error("unexpected record type should be dropped")
	}
}
