package textnorm_test

import (
	"testing"

	"github.com/keywatch/keywatch/internal/textnorm"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	n := textnorm.New("russian")

	tests := []struct {
		name   string
		tokens []string
	}{
		{
			name:   "russian inflections collapse",
			tokens: []string{"продажа", "продажи", "продажу"},
		},
		{
			name:   "english inflections collapse",
			tokens: []string{"running", "runs"},
		},
		{
			name:   "case insensitive",
			tokens: []string{"Продажа", "ПРОДАЖА", "продажа"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			want := n.Normalize(tt.tokens[0])
			for _, tok := range tt.tokens[1:] {
				if got := n.Normalize(tok); got != want {
					t.Errorf("Normalize(%q) = %q, want %q (same key as %q)", tok, got, want, tt.tokens[0])
				}
			}
		})
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	t.Parallel()

	n := textnorm.New("russian")
	for _, tok := range []string{"квартиры", "apartments", "12345", "___", ""} {
		first := n.Normalize(tok)
		for i := 0; i < 3; i++ {
			if got := n.Normalize(tok); got != first {
				t.Fatalf("Normalize(%q) not deterministic: %q then %q", tok, first, got)
			}
		}
	}
}

func TestNormalizeUnknownInputFallsBackToLowercase(t *testing.T) {
	t.Parallel()

	n := textnorm.New("russian")
	if got := n.Normalize("XYZZY123"); got != n.Normalize("xyzzy123") {
		t.Errorf("fallback not case-folded: %q", got)
	}
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	n := textnorm.New("russian")

	got := n.Tokenize("Куплю КВАРТИРУ, срочно! tel: +7-999")
	want := []string{"куплю", "квартиру", "срочно", "tel", "7", "999"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCanonicalKeys(t *testing.T) {
	t.Parallel()

	n := textnorm.New("russian")

	keys := n.CanonicalKeys("Продаю квартиру и продаём дом")
	if _, ok := keys[n.Normalize("квартира")]; !ok {
		t.Error("expected inflected form to share the canonical key of its base")
	}
}
