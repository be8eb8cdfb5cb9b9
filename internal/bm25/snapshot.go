package bm25

// posting is one (docID, term frequency) pair in a term's postings list.
type posting struct {
	docID string
	freq  int
}

// Snapshot is the immutable, copy-on-write index state readers share,
// per spec.md §4.2/§9's prescribed design.
type Snapshot struct {
	postings   map[string][]posting
	docLengths map[string]int
	docSources map[string]string
	avgdl      float64
	watermark  int64 // unix-nano of the newest indexed chunk's CreatedAt
	tombstones map[string]bool
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		postings:   make(map[string][]posting),
		docLengths: make(map[string]int),
		docSources: make(map[string]string),
		tombstones: make(map[string]bool),
	}
}

// clone makes a shallow-independent copy suitable as the base for a
// Refresh: maps are copied (so the old Snapshot seen by in-flight
// readers is untouched) but posting slices are only reallocated for
// terms that change.
func (s *Snapshot) clone() *Snapshot {
	c := &Snapshot{
		postings:   make(map[string][]posting, len(s.postings)),
		docLengths: make(map[string]int, len(s.docLengths)),
		docSources: make(map[string]string, len(s.docSources)),
		avgdl:      s.avgdl,
		watermark:  s.watermark,
		tombstones: make(map[string]bool, len(s.tombstones)),
	}
	for term, list := range s.postings {
		c.postings[term] = append([]posting(nil), list...)
	}
	for id, n := range s.docLengths {
		c.docLengths[id] = n
	}
	for id, src := range s.docSources {
		c.docSources[id] = src
	}
	for id := range s.tombstones {
		c.tombstones[id] = true
	}
	return c
}

// addDoc tokenizes content and merges its postings into the snapshot,
// overwriting any prior entry for docID (so re-indexing is idempotent).
func (s *Snapshot) addDoc(docID, source, content string) {
	s.addDocTokens(docID, source, Tokenize(content))
}

// addDocTokens merges pre-tokenized content into the snapshot, letting
// callers tokenize off the single-writer critical section.
func (s *Snapshot) addDocTokens(docID, source string, tokens []string) {
	s.removeDoc(docID)

	if len(tokens) == 0 {
		return
	}

	freqs := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freqs[t]++
	}
	for term, freq := range freqs {
		s.postings[term] = append(s.postings[term], posting{docID: docID, freq: freq})
	}
	s.docLengths[docID] = len(tokens)
	s.docSources[docID] = source
	delete(s.tombstones, docID)
	s.recomputeAvgdl()
}

// removeDoc strips docID out of every postings list it appears in.
func (s *Snapshot) removeDoc(docID string) {
	if _, ok := s.docLengths[docID]; !ok {
		return
	}
	for term, list := range s.postings {
		filtered := list[:0]
		for _, p := range list {
			if p.docID != docID {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) == 0 {
			delete(s.postings, term)
		} else {
			s.postings[term] = filtered
		}
	}
	delete(s.docLengths, docID)
	delete(s.docSources, docID)
	s.recomputeAvgdl()
}

func (s *Snapshot) recomputeAvgdl() {
	if len(s.docLengths) == 0 {
		s.avgdl = 0
		return
	}
	var total int
	for _, n := range s.docLengths {
		total += n
	}
	s.avgdl = float64(total) / float64(len(s.docLengths))
}

// sweepTombstones permanently removes any document marked tombstoned,
// run by the periodic full rebuild per SPEC_FULL.md §10's lazy-deletion
// decision.
func (s *Snapshot) sweepTombstones() {
	for docID := range s.tombstones {
		s.removeDoc(docID)
	}
	s.tombstones = make(map[string]bool)
}
