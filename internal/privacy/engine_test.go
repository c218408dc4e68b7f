package privacy

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/pseudonym"
)

type fakeAnnotator struct {
	entities func(text string) []Entity
	err      error
	calls    int
}

func (f *fakeAnnotator) Annotate(_ context.Context, text string) ([]Entity, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.entities == nil {
		return nil, nil
	}
	return f.entities(text), nil
}

func spanOf(text, sub string, kind EntityKind) Entity {
	i := strings.Index(text, sub)
	return Entity{Kind: kind, Start: i, End: i + len(sub)}
}

func testPseudonymizer(t *testing.T) *pseudonym.Pseudonymizer {
	t.Helper()
	salt, err := pseudonym.SaltFromString("abc123")
	if err != nil {
		t.Fatalf("Failed to create salt: %v", err)
	}
	p, err := pseudonym.New(salt)
	if err != nil {
		t.Fatalf("Failed to create pseudonymizer: %v", err)
	}
	return p
}

func testEngine(t *testing.T, categories CategorySet, annotator Annotator) *Engine {
	t.Helper()
	e, err := NewEngine(testPseudonymizer(t), categories, annotator, logger.NewNop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return e
}

func process(t *testing.T, e *Engine, text string) *ProcessResult {
	t.Helper()
	res, err := e.ProcessText(context.Background(), text)
	if err != nil {
		t.Fatalf("ProcessText failed: %v", err)
	}
	return res
}

func TestProcessText(t *testing.T) {
	p := testPseudonymizer(t)
	e := testEngine(t, AllCategories(), nil)

	tests := []struct {
		name     string
		input    string
		want     string
		findings []Finding
	}{
		{
			name:     "Emails",
			input:    "user@example.com or admin@uk.eu or 21789@gmail.com",
			want:     "email-6a9841@example.com or email-67d73c@uk.eu or email-dd0169@gmail.com",
			findings: []Finding{{Category: CategoryEmail, Count: 3}},
		},
		{
			name:     "Cards",
			input:    "My card numbers are 4111 1111 1111 1111 and 5500-0000-0000-0004. Invalid: 4111 1111 1111 1112.",
			want:     "My card numbers are card-3aeedea8fef2 and card-3b49ffea0e53. Invalid: 4111 1111 1111 1112.",
			findings: []Finding{{Category: CategoryCard, Count: 2}},
		},
		{
			name:  "IPv4",
			input: "Private 10.0.0.0/8 and 172.16.0.0/12 and 192.168.0.0/16. 46.19.38.63. 8.8.8.8.",
			want: "Private 10.0.0.0/8 and 172.16.0.0/12 and 192.168.0.0/16. ipv4-8e8df7ce. ipv4-" +
				p.Pseudonymize("8.8.8.8", 8) + ".",
			findings: []Finding{{Category: CategoryIPv4, Count: 2}},
		},
		{
			name: "IPv6",
			input: `2266:0025:0:0:0:0012:0000:ad12
        2266:0025::0012:0000:ad12
        2266:25:0:0:0:12:0000:ad12
        2266:25:0:0:0:12:0:ad12
        2266:25::12:0:ad12
        2266:25::12::ad12`,
			want: `ipv6-c6d19508c6af
        ipv6-` + p.Pseudonymize("2266:0025::0012:0000:ad12", 12) + `
        ipv6-10c8cf4f89ec
        ipv6-864ff4f6d642
        ipv6-` + p.Pseudonymize("2266:25::12:0:ad12", 12) + `
        2266:25::12::ad12`,
			findings: []Finding{{Category: CategoryIPv6, Count: 5}},
		},
		{
			name:     "IBAN",
			input:    "My IBAN is DE89370400440532013000.",
			want:     "My IBAN is iban-" + p.Pseudonymize("DE89370400440532013000", 12) + ".",
			findings: []Finding{{Category: CategoryIBAN, Count: 1}},
		},
		{
			name:     "Nothing",
			input:    "Nothing sensitive here at 12:30.",
			want:     "Nothing sensitive here at 12:30.",
			findings: []Finding{},
		},
		{
			name:     "Empty",
			input:    "",
			want:     "",
			findings: []Finding{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := process(t, e, tt.input)
			if res.MaskedText != tt.want {
				t.Errorf("Expected\n%s\ngot\n%s", tt.want, res.MaskedText)
			}
			if !reflect.DeepEqual(res.Findings, tt.findings) {
				t.Errorf("Expected findings %v, got %v", tt.findings, res.Findings)
			}
		})
	}
}

func TestProcessTextConsistency(t *testing.T) {
	e := testEngine(t, AllCategories(), nil)

	res := process(t, e, "Contact user@example.com. Again: user@example.com, and 8.8.8.8 or 8.8.8.8")
	if strings.Contains(res.MaskedText, "user@") || strings.Contains(res.MaskedText, "8.8.8.8") {
		t.Fatalf("Expected every occurrence replaced, got %s", res.MaskedText)
	}
	if strings.Count(res.MaskedText, "email-6a9841@example.com") != 2 {
		t.Errorf("Expected the same email token twice, got %s", res.MaskedText)
	}

	want := []Finding{{Category: CategoryEmail, Count: 2}, {Category: CategoryIPv4, Count: 2}}
	if !reflect.DeepEqual(res.Findings, want) {
		t.Errorf("Expected findings %v, got %v", want, res.Findings)
	}
}

// Replace-all is literal: a shorter address is also replaced inside a longer
// one that contains it, even where the detector would not match on its own.
func TestProcessTextReplaceAllIsLiteral(t *testing.T) {
	p := testPseudonymizer(t)
	e := testEngine(t, NewCategorySet(CategoryIPv4), nil)

	res := process(t, e, "8.8.8.8 and 18.8.8.8")

	token := "ipv4-" + p.Pseudonymize("8.8.8.8", 8)
	if want := token + " and 1" + token; res.MaskedText != want {
		t.Errorf("Expected %q, got %q", want, res.MaskedText)
	}
	want := []Finding{{Category: CategoryIPv4, Count: 2}}
	if !reflect.DeepEqual(res.Findings, want) {
		t.Errorf("Expected findings %v, got %v", want, res.Findings)
	}
}

func TestProcessTextIdempotent(t *testing.T) {
	e := testEngine(t, AllCategories(), nil)

	first := process(t, e, "user@example.com from 46.19.38.63 paid with 4111 1111 1111 1111 "+
		"to DE89370400440532013000 via 2266:25::12:0:ad12")
	second := process(t, e, first.MaskedText)

	if second.MaskedText != first.MaskedText {
		t.Errorf("Expected output to be stable, got\n%s\nthen\n%s", first.MaskedText, second.MaskedText)
	}
	if len(second.Findings) != 0 {
		t.Errorf("Expected no findings on processed text, got %v", second.Findings)
	}
}

func TestProcessTextCategorySubset(t *testing.T) {
	e := testEngine(t, NewCategorySet(CategoryCard), nil)

	res := process(t, e, "user@example.com paid with 4111 1111 1111 1111")
	if !strings.HasPrefix(res.MaskedText, "user@example.com paid with card-") {
		t.Errorf("Expected only the card replaced, got %s", res.MaskedText)
	}
}

func TestProcessTextEntities(t *testing.T) {
	p := testPseudonymizer(t)

	t.Run("Names", func(t *testing.T) {
		text := "Juha Nurmi, Constantinos Patsakis, David Arroyo, ..."
		ann := &fakeAnnotator{entities: func(s string) []Entity {
			return []Entity{
				spanOf(s, "Juha Nurmi", EntityPerson),
				spanOf(s, "Constantinos Patsakis", EntityPerson),
				spanOf(s, "David Arroyo", EntityPerson),
			}
		}}
		e := testEngine(t, NewCategorySet(CategoryName), ann)

		res := process(t, e, text)
		want := "name-" + p.Pseudonymize("Juha Nurmi", 12) +
			", name-" + p.Pseudonymize("Constantinos Patsakis", 12) +
			", name-" + p.Pseudonymize("David Arroyo", 12) + ", ..."
		if res.MaskedText != want {
			t.Errorf("Expected %s, got %s", want, res.MaskedText)
		}
		if ann.calls != 1 {
			t.Errorf("Expected 1 annotator call, got %d", ann.calls)
		}
	})

	t.Run("Locations", func(t *testing.T) {
		text := "Lappland is in Finland. San Francisco is in California, USA."
		ann := &fakeAnnotator{entities: func(s string) []Entity {
			return []Entity{
				spanOf(s, "Lappland", EntityLOC),
				spanOf(s, "Finland", EntityGPE),
				spanOf(s, "San Francisco", EntityGPE),
				spanOf(s, "California", EntityGPE),
				spanOf(s, "USA", EntityGPE),
			}
		}}
		e := testEngine(t, AllCategories(), ann)

		res := process(t, e, text)
		loc := func(v string) string { return "location-" + p.Pseudonymize(v, 12) }
		want := loc("Lappland") + " is in " + loc("Finland") + ". " +
			loc("San Francisco") + " is in " + loc("California") + ", " + loc("USA") + "."
		if res.MaskedText != want {
			t.Errorf("Expected %s, got %s", want, res.MaskedText)
		}
		if !reflect.DeepEqual(res.Findings, []Finding{{Category: CategoryLocation, Count: 5}}) {
			t.Errorf("Unexpected findings %v", res.Findings)
		}
	})

	t.Run("OffsetsIntoOriginalText", func(t *testing.T) {
		text := "mail user@example.com to Juha Nurmi"
		ann := &fakeAnnotator{entities: func(s string) []Entity {
			return []Entity{spanOf(s, "Juha Nurmi", EntityPerson)}
		}}
		e := testEngine(t, AllCategories(), ann)

		res := process(t, e, text)
		want := "mail email-6a9841@example.com to name-" + p.Pseudonymize("Juha Nurmi", 12)
		if res.MaskedText != want {
			t.Errorf("Expected %s, got %s", want, res.MaskedText)
		}
	})

	t.Run("NotCalledWhenDisabled", func(t *testing.T) {
		ann := &fakeAnnotator{}
		e := testEngine(t, NewCategorySet(CategoryEmail, CategoryIPv4), ann)

		process(t, e, "Juha Nurmi at user@example.com")
		if ann.calls != 0 {
			t.Errorf("Expected annotator not to be called, got %d calls", ann.calls)
		}
	})

	t.Run("AnnotatorFailure", func(t *testing.T) {
		boom := errors.New("boom")
		e := testEngine(t, AllCategories(), &fakeAnnotator{err: boom})

		_, err := e.ProcessText(context.Background(), "Juha Nurmi")
		if !errors.Is(err, ErrAnnotation) {
			t.Errorf("Expected ErrAnnotation, got %v", err)
		}
		if !errors.Is(err, boom) {
			t.Errorf("Expected the annotator error to be wrapped, got %v", err)
		}
	})

	t.Run("NoAnnotator", func(t *testing.T) {
		e := testEngine(t, NewCategorySet(CategoryName), nil)

		res := process(t, e, "Juha Nurmi")
		if res.MaskedText != "Juha Nurmi" {
			t.Errorf("Expected text unchanged without annotator, got %s", res.MaskedText)
		}
	})
}

func TestNewEngine(t *testing.T) {
	if _, err := NewEngine(nil, AllCategories(), nil, nil); err == nil {
		t.Error("Expected error for missing pseudonymizer")
	}
	if _, err := NewEngine(testPseudonymizer(t), NewCategorySet(), nil, nil); err == nil {
		t.Error("Expected error for empty category set")
	}

	e := testEngine(t, AllCategories(), nil)
	narrowed, err := e.WithCategories(NewCategorySet(CategoryEmail))
	if err != nil {
		t.Fatalf("WithCategories failed: %v", err)
	}
	if narrowed.Categories().Len() != 1 || e.Categories().Len() != len(Categories()) {
		t.Error("WithCategories should not change the original engine")
	}
}
