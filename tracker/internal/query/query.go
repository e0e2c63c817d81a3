// Package query generates the ordered sequence of search terms tried
// against a bookshop for one tracked book.
//
// The sequence is pull-based: the consumer asks for the next term only when
// the previous ones did not surface enough candidates, so later (weaker)
// strategies never turn into outbound requests unless they are needed.
package query

import "strings"

// EnoughCandidates is the accepted-candidate count at which the consumer
// should stop pulling further strategies.
const EnoughCandidates = 3

const maxKeywords = 3

// Strategy is one search attempt: a term plus a label for logging.
type Strategy struct {
	Label string
	Term  string
}

// Strategies iterates the search-term variants for a (title, author) pair:
// full "title author", then title alone, then author alone, then up to
// three title keywords longer than three runes, in original order.
type Strategies struct {
	title    string
	author   string
	stage    int
	keywords []string
	kwNext   int
}

// New returns a fresh strategy sequence for the given book.
func New(title, author string) *Strategies {
	return &Strategies{title: title, author: author}
}

// Next returns the next strategy in order. ok is false once the sequence
// is exhausted.
func (s *Strategies) Next() (st Strategy, ok bool) {
	for {
		switch s.stage {
		case 0:
			s.stage++
			term := strings.TrimSpace(s.title + " " + s.author)
			if term == "" {
				continue
			}
			return Strategy{Label: "title+author", Term: term}, true
		case 1:
			s.stage++
			if s.title == "" {
				continue
			}
			return Strategy{Label: "title", Term: s.title}, true
		case 2:
			s.stage++
			if s.author == "" {
				continue
			}
			return Strategy{Label: "author", Term: s.author}, true
		case 3:
			s.stage++
			s.keywords = titleKeywords(s.title)
		case 4:
			if s.kwNext >= len(s.keywords) {
				return Strategy{}, false
			}
			kw := s.keywords[s.kwNext]
			s.kwNext++
			return Strategy{Label: "keyword", Term: kw}, true
		default:
			return Strategy{}, false
		}
	}
}

// titleKeywords picks the significant title words. A single-word title has
// no keyword fallback: the title-only strategy already covered it.
func titleKeywords(title string) []string {
	words := strings.Fields(title)
	if len(words) < 2 {
		return nil
	}
	var kw []string
	for _, w := range words {
		if len([]rune(w)) > 3 {
			kw = append(kw, w)
			if len(kw) == maxKeywords {
				break
			}
		}
	}
	return kw
}
