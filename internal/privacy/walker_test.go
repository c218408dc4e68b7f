package privacy

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/raaihank/pii-sentinel/internal/document"
)

func TestWalk(t *testing.T) {
	p := testPseudonymizer(t)
	e := testEngine(t, AllCategories(), nil)

	doc := map[string]any{
		"user@example.com": "user@example.com",
		"amount":           json.Number("4111111111111111"),
		"list":             []any{"8.8.8.8", 42.0, true, nil},
		"nested": map[string]any{
			"iban": "DE89370400440532013000",
		},
		"yaml": map[any]any{
			1: "admin@uk.eu",
		},
	}

	res, err := e.Walk(context.Background(), doc)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	want := map[string]any{
		"user@example.com": "email-6a9841@example.com",
		"amount":           json.Number("4111111111111111"),
		"list":             []any{"ipv4-" + p.Pseudonymize("8.8.8.8", 8), 42.0, true, nil},
		"nested": map[string]any{
			"iban": "iban-" + p.Pseudonymize("DE89370400440532013000", 12),
		},
		"yaml": map[any]any{
			1: "email-67d73c@uk.eu",
		},
	}
	if !reflect.DeepEqual(res.Document, want) {
		t.Errorf("Expected %v, got %v", want, res.Document)
	}

	wantFindings := []Finding{
		{Category: CategoryEmail, Count: 2},
		{Category: CategoryIPv4, Count: 1},
		{Category: CategoryIBAN, Count: 1},
	}
	if !reflect.DeepEqual(res.Findings, wantFindings) {
		t.Errorf("Expected findings %v, got %v", wantFindings, res.Findings)
	}

	if doc["user@example.com"] != "user@example.com" {
		t.Error("Walk must not mutate its input")
	}
}

func TestWalkScalars(t *testing.T) {
	e := testEngine(t, AllCategories(), nil)

	for _, v := range []any{nil, 3, 2.5, false, json.Number("1")} {
		res, err := e.Walk(context.Background(), v)
		if err != nil {
			t.Fatalf("Walk failed: %v", err)
		}
		if !reflect.DeepEqual(res.Document, v) {
			t.Errorf("Expected %v unchanged, got %v", v, res.Document)
		}
	}

	res, err := e.Walk(context.Background(), []string{"user@example.com"})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if !reflect.DeepEqual(res.Document, []string{"email-6a9841@example.com"}) {
		t.Errorf("Unexpected document %v", res.Document)
	}
}

func TestWalkAnnotatorFailure(t *testing.T) {
	e := testEngine(t, AllCategories(), &fakeAnnotator{err: errors.New("down")})

	_, err := e.Walk(context.Background(), map[string]any{"a": []any{"Juha"}})
	if !errors.Is(err, ErrAnnotation) {
		t.Errorf("Expected ErrAnnotation, got %v", err)
	}
}

func TestWalkJSONDocument(t *testing.T) {
	p := testPseudonymizer(t)
	e := testEngine(t, AllCategories(), nil)

	roundTrip := func(t *testing.T, input string) (map[string]any, *WalkResult) {
		t.Helper()
		doc, err := document.Decode("doc.json", document.FormatJSON, []byte(input))
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		res, err := e.Walk(context.Background(), doc)
		if err != nil {
			t.Fatalf("Walk failed: %v", err)
		}
		codec, err := document.ForFormat(document.FormatJSON)
		if err != nil {
			t.Fatalf("ForFormat failed: %v", err)
		}
		out, err := codec.Encode(res.Document)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		decoded, err := codec.Decode(out)
		if err != nil {
			t.Fatalf("Re-decode failed: %v", err)
		}
		return decoded.(map[string]any), res
	}

	t.Run("StringLeafRewritten", func(t *testing.T) {
		got, res := roundTrip(t, `{"email": "ab@bc.com", "n": 5}`)

		want := "email-" + p.Pseudonymize("ab", 6) + "@bc.com"
		if got["email"] != want {
			t.Errorf("Expected email %q, got %v", want, got["email"])
		}
		if got["n"] != json.Number("5") {
			t.Errorf("Expected n to stay the number 5, got %#v", got["n"])
		}
		if !reflect.DeepEqual(res.Findings, []Finding{{Category: CategoryEmail, Count: 1}}) {
			t.Errorf("Unexpected findings %v", res.Findings)
		}
	})

	// Local parts and domain labels shorter than two characters are not
	// addresses under the email pattern.
	t.Run("SingleCharacterPartsUntouched", func(t *testing.T) {
		got, res := roundTrip(t, `{"email": "a@b.com", "n": 5}`)

		if got["email"] != "a@b.com" {
			t.Errorf("Expected a@b.com unchanged, got %v", got["email"])
		}
		if got["n"] != json.Number("5") {
			t.Errorf("Expected n to stay the number 5, got %#v", got["n"])
		}
		if len(res.Findings) != 0 {
			t.Errorf("Expected no findings, got %v", res.Findings)
		}
	})
}
