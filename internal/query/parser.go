package query

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/movie-rec/backend/internal/metrics"
	"github.com/movie-rec/backend/internal/recommend"
	"github.com/movie-rec/backend/pkg/logger"
)

const (
	ParserHeuristic = "heuristic"
	ParserModel     = "model"
	// ParserFallback marks a model parse that failed and was answered by the
	// heuristic parser instead.
	ParserFallback = "heuristic-fallback"
	// ParserProvided marks a filter supplied directly by the caller.
	ParserProvided = "provided"

	defaultShortRuntime = 120
	maxKeywordTokens    = 3
)

type ParseResult struct {
	Filter recommend.StructuredFilter
	Parser string
}

// Parser turns free text into a structured filter.
type Parser interface {
	Parse(ctx context.Context, text string) (ParseResult, error)
}

// FilterExtractor asks a language model for the raw JSON filter.
type FilterExtractor interface {
	ExtractFilter(ctx context.Context, query string) (string, error)
}

type genreRule struct {
	name    string
	pattern *regexp.Regexp
}

// MovieLens genres in catalog spelling, with the everyday words people use
// for them.
var genreRules = []genreRule{
	{"action", regexp.MustCompile(`\baction\b`)},
	{"adventure", regexp.MustCompile(`\badventures?\b`)},
	{"animation", regexp.MustCompile(`\b(animation|animated|cartoons?)\b`)},
	{"children", regexp.MustCompile(`\b(children|childrens|kids?|family)\b`)},
	{"comedy", regexp.MustCompile(`\b(comedy|comedies|funny)\b`)},
	{"crime", regexp.MustCompile(`\bcrimes?\b`)},
	{"documentary", regexp.MustCompile(`\b(documentary|documentaries)\b`)},
	{"drama", regexp.MustCompile(`\bdramas?\b`)},
	{"fantasy", regexp.MustCompile(`\b(fantasy|fantasies)\b`)},
	{"film-noir", regexp.MustCompile(`\b(film-noir|film noir|noir)\b`)},
	{"horror", regexp.MustCompile(`\b(horror|scary)\b`)},
	{"musical", regexp.MustCompile(`\bmusicals?\b`)},
	{"mystery", regexp.MustCompile(`\b(mystery|mysteries)\b`)},
	{"romance", regexp.MustCompile(`\b(romance|romantic|romances)\b`)},
	{"sci-fi", regexp.MustCompile(`\b(sci-fi|scifi|science fiction)\b`)},
	{"thriller", regexp.MustCompile(`\bthrillers?\b`)},
	{"war", regexp.MustCompile(`\bwar\b`)},
	{"western", regexp.MustCompile(`\bwesterns?\b`)},
}

var (
	negationPattern = regexp.MustCompile(`\b(?:not|no|without|nothing|avoid)\s+(?:too\s+|very\s+|a\s+|any\s+)?((?:science fiction|film noir|[a-z][a-z-]*))`)
	decadePattern   = regexp.MustCompile(`\b(?:(19|20)(\d)0|'?([2-9])0)s\b`)
	yearPattern     = regexp.MustCompile(`\b(?:(after|since|from|before|until|pre)\s+)?((?:19|20)\d{2})\b`)
	runtimePattern  = regexp.MustCompile(`(?:under|<|less than|shorter than)\s*(\d{2,3})\s*min`)
	shortPattern    = regexp.MustCompile(`\b(short|under)\b`)
	topicTriggers   = map[string]bool{"about": true, "featuring": true, "involving": true}
)

// HeuristicParser extracts genres, years, runtime, exclusions and topic
// keywords with patterns and part-of-speech tags. It never fails.
type HeuristicParser struct{}

func NewHeuristicParser() *HeuristicParser {
	return &HeuristicParser{}
}

func (p *HeuristicParser) Parse(ctx context.Context, text string) (ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return ParseResult{}, err
	}
	return ParseResult{Filter: p.parse(text), Parser: ParserHeuristic}, nil
}

func (p *HeuristicParser) parse(text string) recommend.StructuredFilter {
	t := strings.ToLower(text)
	var f recommend.StructuredFilter

	excluded := map[string]bool{}
	positive := negationPattern.ReplaceAllStringFunc(t, func(span string) string {
		m := negationPattern.FindStringSubmatch(span)
		if g := matchGenre(m[1]); g != "" {
			excluded[g] = true
		}
		return strings.Repeat(" ", len(span))
	})

	for _, rule := range genreRules {
		if excluded[rule.name] {
			f.ExcludeKeywords = append(f.ExcludeKeywords, rule.name)
			continue
		}
		if rule.pattern.MatchString(positive) {
			f.Genres = append(f.Genres, rule.name)
		}
	}

	f.MinYear, f.MaxYear = parseYears(t)
	f.MaxRuntime = parseRuntime(t)
	f.IncludeKeywords = topicKeywords(text)

	return f.Normalize()
}

func matchGenre(word string) string {
	for _, rule := range genreRules {
		if rule.pattern.MatchString(word) {
			return rule.name
		}
	}
	return ""
}

// parseYears combines explicit years and decades into one range. Plain years
// and decades bound both sides; an "after" style prefix bounds only the low
// side and a "before" style prefix only the high side. A side stays open only
// when nothing bounded it.
func parseYears(t string) (*int, *int) {
	var minYear, maxYear *int
	lower := func(y int) {
		if minYear == nil || y < *minYear {
			minYear = &y
		}
	}
	upper := func(y int) {
		if maxYear == nil || y > *maxYear {
			maxYear = &y
		}
	}

	for _, m := range decadePattern.FindAllStringSubmatch(t, -1) {
		var start int
		if m[1] != "" {
			start, _ = strconv.Atoi(m[1] + m[2] + "0")
		} else {
			d, _ := strconv.Atoi(m[3])
			start = 1900 + d*10
		}
		lower(start)
		upper(start + 9)
	}

	for _, m := range yearPattern.FindAllStringSubmatch(t, -1) {
		y, _ := strconv.Atoi(m[2])
		switch m[1] {
		case "after", "since", "from":
			lower(y)
		case "before", "until", "pre":
			upper(y)
		default:
			lower(y)
			upper(y)
		}
	}

	return minYear, maxYear
}

func parseRuntime(t string) *int {
	if m := runtimePattern.FindStringSubmatch(t); m != nil {
		n, _ := strconv.Atoi(m[1])
		return &n
	}
	if shortPattern.MatchString(t) {
		n := defaultShortRuntime
		return &n
	}
	return nil
}

// topicKeywords collects the short noun phrases that follow "about",
// "featuring" or "involving". Conjunctions split phrases; prepositions,
// verbs and punctuation end them.
func topicKeywords(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		logger.Warn("Failed to tag query text", zap.Error(err))
		return nil
	}

	var (
		keywords []string
		phrase   []string
		active   bool
	)
	flush := func() {
		if len(phrase) > 0 {
			keywords = append(keywords, strings.Join(phrase, " "))
		}
		phrase = phrase[:0]
	}

	for _, tok := range doc.Tokens() {
		word := strings.ToLower(tok.Text)
		if topicTriggers[word] {
			flush()
			active = true
			continue
		}
		if !active {
			continue
		}

		switch {
		case tok.Tag == "CC" || tok.Text == ",":
			flush()
		case tok.Tag == "DT" || tok.Tag == "PRP$":
		case isPhraseTag(tok.Tag) && len(phrase) < maxKeywordTokens:
			phrase = append(phrase, word)
		default:
			flush()
			active = false
		}
	}
	flush()

	return keywords
}

func isPhraseTag(tag string) bool {
	return strings.HasPrefix(tag, "NN") || strings.HasPrefix(tag, "JJ") || tag == "VBG"
}

// ModelParser asks a language model for the filter and falls back to the
// heuristic parser when the call fails or the answer does not decode.
type ModelParser struct {
	llm      FilterExtractor
	fallback *HeuristicParser
}

func NewModelParser(llm FilterExtractor) *ModelParser {
	return &ModelParser{llm: llm, fallback: NewHeuristicParser()}
}

func (p *ModelParser) Parse(ctx context.Context, text string) (ParseResult, error) {
	raw, err := p.llm.ExtractFilter(ctx, text)
	if err == nil {
		f, decodeErr := DecodeFilter([]byte(raw))
		if decodeErr == nil {
			return ParseResult{Filter: f, Parser: ParserModel}, nil
		}
		err = decodeErr
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ParseResult{}, ctxErr
	}

	metrics.ParserFallbacks.WithLabelValues("parse").Inc()
	logger.Warn("Model parse failed, using heuristic parser", zap.Error(err))

	res, err := p.fallback.Parse(ctx, text)
	if err != nil {
		return ParseResult{}, err
	}
	res.Parser = ParserFallback
	return res, nil
}

// NewParser picks the model parser when an extractor is configured.
func NewParser(llm FilterExtractor) Parser {
	if llm == nil {
		return NewHeuristicParser()
	}
	return NewModelParser(llm)
}
