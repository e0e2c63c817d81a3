package query

import "testing"

func collect(s *Strategies) []Strategy {
	var out []Strategy
	for {
		st, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, st)
	}
}

func TestStrategies_FullSequence(t *testing.T) {
	// WHAT: The sequence is title+author, title, author, then title keywords.
	// WHY: Stronger strategies first keeps precision high and request counts low.
	got := collect(New("Kürk Mantolu Madonna", "Sabahattin Ali"))
	want := []Strategy{
		{"title+author", "Kürk Mantolu Madonna Sabahattin Ali"},
		{"title", "Kürk Mantolu Madonna"},
		{"author", "Sabahattin Ali"},
		{"keyword", "Kürk"},
		{"keyword", "Mantolu"},
		{"keyword", "Madonna"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d strategies, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("strategy %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestStrategies_NoAuthor(t *testing.T) {
	// WHAT: With an empty author the author stage is skipped entirely.
	got := collect(New("Saatleri Ayarlama Enstitüsü", ""))
	for _, st := range got {
		if st.Label == "author" {
			t.Errorf("unexpected author strategy: %+v", st)
		}
	}
	if got[0].Term != "Saatleri Ayarlama Enstitüsü" {
		t.Errorf("first term = %q", got[0].Term)
	}
}

func TestStrategies_SingleWordTitle_NoKeywords(t *testing.T) {
	// WHAT: A single-word title produces no keyword strategies.
	// WHY: The title-only stage already searched that exact word.
	got := collect(New("Tutunamayanlar", "Oğuz Atay"))
	for _, st := range got {
		if st.Label == "keyword" {
			t.Errorf("unexpected keyword strategy: %+v", st)
		}
	}
}

func TestStrategies_KeywordLengthFilter(t *testing.T) {
	// WHAT: Only title words longer than three runes become keywords, capped
	// at three, in original order.
	got := collect(New("Ali ile Veli Uzun Yolculukta Bir Gün", "X"))
	var kws []string
	for _, st := range got {
		if st.Label == "keyword" {
			kws = append(kws, st.Term)
		}
	}
	want := []string{"Veli", "Uzun", "Yolculukta"}
	if len(kws) != len(want) {
		t.Fatalf("keywords = %v, want %v", kws, want)
	}
	for i := range want {
		if kws[i] != want[i] {
			t.Errorf("keyword %d = %q, want %q", i, kws[i], want[i])
		}
	}
}

func TestStrategies_Lazy(t *testing.T) {
	// WHAT: Pulling only the first strategy never computes the keyword list.
	// WHY: Unused strategies must not cost anything; the consumer stops as
	// soon as it has enough candidates.
	s := New("İnce Memed", "Yaşar Kemal")
	st, ok := s.Next()
	if !ok || st.Label != "title+author" {
		t.Fatalf("first = %+v, ok=%v", st, ok)
	}
	if s.keywords != nil {
		t.Error("keyword list computed before keyword stage was reached")
	}
}

func TestStrategies_Empty(t *testing.T) {
	// WHAT: An empty title and author yield no strategies at all.
	if got := collect(New("", "")); len(got) != 0 {
		t.Errorf("got %v, want none", got)
	}
}
