package match

import (
	"math"
	"testing"
)

func TestNormalize_CollapseWhitespace(t *testing.T) {
	// WHAT: Runs of whitespace collapse to a single space and edges are trimmed.
	// WHY: Scraped titles carry arbitrary indentation and newlines from HTML.
	got := Normalize("  Tutunamayanlar \n\t Oğuz   Atay  ")
	if got != "tutunamayanlar oğuz atay" {
		t.Errorf("got %q", got)
	}
}

func TestNormalize_StripsParentheticals(t *testing.T) {
	// WHAT: Parenthetical asides like edition notes are removed entirely.
	// WHY: "(2. Baskı)" or "(Ciltli)" must not lower the title similarity.
	got := Normalize("Kürk Mantolu Madonna (2. Baskı)")
	if got != "kürk mantolu madonna" {
		t.Errorf("got %q", got)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	// WHAT: Applying Normalize twice yields the same result as applying it once.
	// WHY: Callers normalize at different layers; double application must be safe.
	inputs := []string{
		"  Saatleri Ayarlama Enstitüsü  ",
		"Tutunamayanlar (Özel Baskı)",
		"a (b) c",
		"",
		"İnce Memed",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize(%q): once %q, twice %q", in, once, twice)
		}
	}
}

func TestNormalize_Empty(t *testing.T) {
	// WHAT: Empty input yields empty output.
	if got := Normalize(""); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestSimilarity_Identical(t *testing.T) {
	// WHAT: Identical strings score 1.0 regardless of case.
	if got := Similarity("Beyaz Kale", "beyaz kale"); got != 1.0 {
		t.Errorf("got %v, want 1.0", got)
	}
}

func TestSimilarity_BothEmpty(t *testing.T) {
	// WHAT: Two empty strings are defined as identical.
	// WHY: Avoids a 0/0 division and matches the sequence-ratio convention.
	if got := Similarity("", ""); got != 1.0 {
		t.Errorf("got %v, want 1.0", got)
	}
}

func TestSimilarity_OneEmpty(t *testing.T) {
	// WHAT: A non-empty string against an empty one scores 0.
	if got := Similarity("kitap", ""); got != 0.0 {
		t.Errorf("got %v, want 0", got)
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	// WHAT: Similarity(a, b) equals Similarity(b, a).
	// WHY: The score must not depend on which side is the listing.
	pairs := [][2]string{
		{"tutunamayanlar", "tutunamayanlar oğuz atay"},
		{"ince memed", "ınce memed 1"},
		{"sefiller", "suç ve ceza"},
	}
	for _, p := range pairs {
		ab := Similarity(p[0], p[1])
		ba := Similarity(p[1], p[0])
		if math.Abs(ab-ba) > 1e-12 {
			t.Errorf("Similarity(%q,%q)=%v but reversed=%v", p[0], p[1], ab, ba)
		}
	}
}

func TestSimilarity_KnownRatio(t *testing.T) {
	// WHAT: The ratio is 2*M/T over matching blocks. "abcd" vs "bcde" share
	// the block "bcd" (M=3, T=8), giving 0.75.
	if got := Similarity("abcd", "bcde"); math.Abs(got-0.75) > 1e-12 {
		t.Errorf("got %v, want 0.75", got)
	}
}

func TestSimilarity_Disjoint(t *testing.T) {
	// WHAT: Strings with no common runes score 0.
	if got := Similarity("abc", "xyz"); got != 0.0 {
		t.Errorf("got %v, want 0", got)
	}
}

func TestScore_ExactTitleAndAuthor(t *testing.T) {
	// WHAT: A listing carrying the exact title and the author verbatim
	// scores 0.7*1.0 + 0.3*0.8 = 0.94: the substring branch caps the
	// author component at 0.8 even for a perfect author hit.
	res := Score("Tutunamayanlar Oğuz Atay", "Tutunamayanlar Oğuz Atay", "Oğuz Atay", 0)
	if !res.IsMatch {
		t.Error("expected match")
	}
	if math.Abs(res.Score-0.94) > 1e-9 {
		t.Errorf("score = %v, want 0.94", res.Score)
	}
}

func TestScore_AuthorSubstringBoost(t *testing.T) {
	// WHAT: When the author appears verbatim in the listing, the author
	// component is at least 0.8.
	// WHY: Exact author presence is strong evidence even when the title is
	// padded with edition noise.
	res := Score("Kürk Mantolu Madonna Sabahattin Ali", "Kürk Mantolu Madonna", "Sabahattin Ali", 0)
	// title similarity < 1 because the listing carries the author too, but
	// the author component contributes its full 0.3 weight share.
	if !res.IsMatch {
		t.Errorf("expected match, score = %v", res.Score)
	}
	if res.Score <= 0.6 {
		t.Errorf("score = %v, want > 0.6", res.Score)
	}
}

func TestScore_ShortAuthorPartsIgnored(t *testing.T) {
	// WHAT: Author name parts of 2 runes or fewer never contribute.
	// WHY: Initials and particles like "A." match almost any listing and
	// would inflate scores.
	with := Score("Deneme Kitabı", "Deneme Kitabı", "A. B.", 0)
	without := Score("Deneme Kitabı", "Deneme Kitabı", "", 0)
	if with.Score != without.Score {
		t.Errorf("short author parts changed score: %v vs %v", with.Score, without.Score)
	}
}

func TestScore_UnrelatedListing(t *testing.T) {
	// WHAT: An unrelated listing stays below the match threshold.
	res := Score("Matematik Ders Kitabı", "Tutunamayanlar", "Oğuz Atay", 0)
	if res.IsMatch {
		t.Errorf("unexpected match, score = %v", res.Score)
	}
}

func TestScore_ThresholdFallback(t *testing.T) {
	// WHAT: A non-positive threshold falls back to DefaultThreshold.
	strict := Score("Tutunamayanlar", "Tutunamayanlar", "", 0.99)
	fallback := Score("Tutunamayanlar", "Tutunamayanlar", "", 0)
	// Exact title with no author: score is 0.7.
	if strict.IsMatch {
		t.Error("score 0.7 should not pass threshold 0.99")
	}
	if !fallback.IsMatch {
		t.Errorf("score %v should pass default threshold", fallback.Score)
	}
}

func TestScore_TitleOnlyWeight(t *testing.T) {
	// WHAT: With no author given, a perfect title match yields exactly 0.7.
	// WHY: The 0.7/0.3 split is the contract the notify tier depends on.
	res := Score("İnce Memed", "İnce Memed", "", 0)
	if math.Abs(res.Score-0.7) > 1e-9 {
		t.Errorf("score = %v, want 0.7", res.Score)
	}
}

func TestScore_EditionNoiseStillMatches(t *testing.T) {
	// WHAT: Parenthetical edition noise on the listing does not break the match.
	res := Score("Saatleri Ayarlama Enstitüsü (İthaki, 3. Baskı)", "Saatleri Ayarlama Enstitüsü", "Ahmet Hamdi Tanpınar", 0)
	if !res.IsMatch {
		t.Errorf("expected match, score = %v", res.Score)
	}
}
