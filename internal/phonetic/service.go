package phonetic

import (
	"sort"
	"strings"
	"sync"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
	lexiconrepo "github.com/clara-platform/clara-backend/internal/data/repos/lexicon"
	types "github.com/clara-platform/clara-backend/internal/domain"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
)

// importLocks serialises bulk imports per language. A second importer for the
// same language is rejected, not queued.
type importLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *importLocks) acquire(language string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[language] {
		return clerror.New(clerror.Concurrency, "a lexicon import for %s is already running", language)
	}
	l.held[language] = true
	return nil
}

func (l *importLocks) release(language string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, language)
}

type Service struct {
	repo  lexiconrepo.LexiconRepo
	locks *importLocks
	log   *logger.Logger
}

func NewService(repo lexiconrepo.LexiconRepo, baseLog *logger.Logger) *Service {
	return &Service{
		repo:  repo,
		locks: &importLocks{held: make(map[string]bool)},
		log:   baseLog.With("service", "PhoneticService"),
	}
}

// ImportPlain bulk-imports a plain lexicon upload. New entries enter the
// generated state for later review.
func (s *Service) ImportPlain(dbc dbctx.Context, language string, data []byte) (int, error) {
	parsed, err := ParsePlainLexicon(data)
	if err != nil {
		return 0, err
	}
	if err := s.locks.acquire(language); err != nil {
		return 0, err
	}
	defer s.locks.release(language)

	entries := make([]*types.PlainLexiconEntry, len(parsed))
	for i, p := range parsed {
		entries[i] = &types.PlainLexiconEntry{
			Language: language,
			Word:     p.Word,
			Phonemes: p.Phonemes,
			Status:   types.LexiconStatusGenerated,
		}
	}
	if err := s.repo.UpsertPlain(dbc, entries); err != nil {
		return 0, err
	}
	s.log.Info("imported plain lexicon", "language", language, "entries", len(entries))
	return len(entries), nil
}

// ImportAligned bulk-imports an aligned lexicon upload. Every row has already
// passed the concatenation invariant during parsing.
func (s *Service) ImportAligned(dbc dbctx.Context, language string, data []byte) (int, error) {
	parsed, err := ParseAlignedLexicon(data)
	if err != nil {
		return 0, err
	}
	if err := s.locks.acquire(language); err != nil {
		return 0, err
	}
	defer s.locks.release(language)

	entries := make([]*types.AlignedLexiconEntry, len(parsed))
	for i, p := range parsed {
		entries[i] = &types.AlignedLexiconEntry{
			Language:         language,
			Word:             p.Word,
			Phonemes:         p.Phonemes,
			AlignedGraphemes: p.AlignedGraphemes,
			AlignedPhonemes:  p.AlignedPhonemes,
			Status:           types.LexiconStatusGenerated,
		}
	}
	if err := s.repo.UpsertAligned(dbc, entries); err != nil {
		return 0, err
	}
	s.log.Info("imported aligned lexicon", "language", language, "entries", len(entries))
	return len(entries), nil
}

// Review lists the entries awaiting a language master's approval.
func (s *Service) PendingPlain(dbc dbctx.Context, language string) ([]*types.PlainLexiconEntry, error) {
	return s.repo.ListPlainByStatus(dbc, language, types.LexiconStatusGenerated)
}

func (s *Service) PendingAligned(dbc dbctx.Context, language string) ([]*types.AlignedLexiconEntry, error) {
	return s.repo.ListAlignedByStatus(dbc, language, types.LexiconStatusGenerated)
}

// ApprovePlain moves a batch of generated entries to reviewed.
func (s *Service) ApprovePlain(dbc dbctx.Context, language string, words []string) error {
	return s.repo.ApprovePlain(dbc, language, words)
}

func (s *Service) ApproveAligned(dbc dbctx.Context, language string, words []string) error {
	return s.repo.ApproveAligned(dbc, language, words)
}

func (s *Service) DeletePlain(dbc dbctx.Context, language, word string) error {
	return s.repo.DeletePlain(dbc, language, word)
}

func (s *Service) DeleteAligned(dbc dbctx.Context, language, word string) error {
	return s.repo.DeleteAligned(dbc, language, word)
}

// Orthography is a language's structured orthography: grapheme to phoneme
// rules plus accent characters that attach to the preceding grapheme.
type Orthography struct {
	// Rules maps a grapheme to its phoneme alternatives; the first
	// alternative is canonical.
	Rules   map[string][]string
	Accents map[string]bool
}

// SaveOrthography replaces a language's structured orthography and derives
// aligned entries for every plain entry the rules can segment.
func (s *Service) SaveOrthography(dbc dbctx.Context, language string, orth Orthography) (int, error) {
	var g2p []*types.GraphemePhonemeEntry
	for grapheme, phonemes := range orth.Rules {
		g2p = append(g2p, &types.GraphemePhonemeEntry{
			Grapheme: grapheme,
			Phonemes: strings.Join(phonemes, ","),
		})
	}
	sort.Slice(g2p, func(i, j int) bool { return g2p[i].Grapheme < g2p[j].Grapheme })
	if err := s.repo.ReplaceGraphemePhonemes(dbc, language, g2p); err != nil {
		return 0, err
	}
	var accents []*types.AccentEntry
	for char := range orth.Accents {
		accents = append(accents, &types.AccentEntry{Char: char})
	}
	sort.Slice(accents, func(i, j int) bool { return accents[i].Char < accents[j].Char })
	if err := s.repo.ReplaceAccents(dbc, language, accents); err != nil {
		return 0, err
	}
	return s.deriveAlignedFromOrthography(dbc, language, orth)
}

// LoadOrthography reads a language's stored orthography back into rule form.
func (s *Service) LoadOrthography(dbc dbctx.Context, language string) (Orthography, error) {
	orth := Orthography{Rules: make(map[string][]string), Accents: make(map[string]bool)}
	g2p, err := s.repo.ListGraphemePhonemes(dbc, language)
	if err != nil {
		return orth, err
	}
	for _, e := range g2p {
		orth.Rules[e.Grapheme] = strings.Split(e.Phonemes, ",")
	}
	accents, err := s.repo.ListAccents(dbc, language)
	if err != nil {
		return orth, err
	}
	for _, e := range accents {
		orth.Accents[e.Char] = true
	}
	return orth, nil
}

// deriveAlignedFromOrthography derives aligned entries for every plain entry
// whose word the rules can segment. Words the rules cannot cover are left
// alone.
func (s *Service) deriveAlignedFromOrthography(dbc dbctx.Context, language string, orth Orthography) (int, error) {
	plain, err := s.repo.ListPlainByStatus(dbc, language, "")
	if err != nil {
		return 0, err
	}
	var derived []*types.AlignedLexiconEntry
	for _, p := range plain {
		graphemes, phonemes, ok := SegmentWord(p.Word, orth)
		if !ok {
			continue
		}
		derived = append(derived, &types.AlignedLexiconEntry{
			Language:         language,
			Word:             p.Word,
			Phonemes:         strings.Join(phonemes, ""),
			AlignedGraphemes: strings.Join(graphemes, "|"),
			AlignedPhonemes:  strings.Join(phonemes, "|"),
			Status:           types.LexiconStatusGenerated,
		})
	}
	if err := s.repo.UpsertAligned(dbc, derived); err != nil {
		return 0, err
	}
	s.log.Info("derived aligned entries from orthography",
		"language", language, "plain", len(plain), "derived", len(derived))
	return len(derived), nil
}

// SegmentWord splits a word into grapheme segments by greedy longest match
// against the orthography rules, pairing each segment with its canonical
// phoneme. Accent characters attach to the preceding segment without adding a
// phoneme. Returns ok=false when some character is covered by neither rules
// nor accents.
func SegmentWord(word string, orth Orthography) (graphemes, phonemes []string, ok bool) {
	maxLen := 0
	for g := range orth.Rules {
		if n := len([]rune(g)); n > maxLen {
			maxLen = n
		}
	}
	runes := []rune(strings.ToLower(word))
	for i := 0; i < len(runes); {
		if orth.Accents[string(runes[i])] && len(graphemes) > 0 {
			graphemes[len(graphemes)-1] += string(runes[i])
			i++
			continue
		}
		matched := false
		for n := min(maxLen, len(runes)-i); n >= 1; n-- {
			candidate := string(runes[i : i+n])
			if alts, found := orth.Rules[candidate]; found && len(alts) > 0 {
				graphemes = append(graphemes, candidate)
				phonemes = append(phonemes, alts[0])
				i += n
				matched = true
				break
			}
		}
		if !matched {
			return nil, nil, false
		}
	}
	return graphemes, phonemes, len(graphemes) > 0
}

// Transcribe returns the phonetic form of a word: the aligned entry if one
// exists, else the plain entry, else a grapheme-by-grapheme fallback from the
// orthography. The fallback maps unknown characters to themselves so the
// rendering never drops a word.
func (s *Service) Transcribe(dbc dbctx.Context, language, word string, orth Orthography) (string, error) {
	if aligned, err := s.repo.GetAligned(dbc, language, word); err != nil {
		return "", err
	} else if aligned != nil {
		return aligned.Phonemes, nil
	}
	if plain, err := s.repo.GetPlain(dbc, language, word); err != nil {
		return "", err
	} else if plain != nil {
		return plain.Phonemes, nil
	}
	if _, phonemes, ok := SegmentWord(word, orth); ok {
		return strings.Join(phonemes, ""), nil
	}
	return word, nil
}
