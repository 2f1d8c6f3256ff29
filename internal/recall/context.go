package recall

import (
	"context"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/Aman-CERP/sessionrecall/internal/search"
)

const (
	// DefaultRecallLimit is the number of sessions SmartRecall returns.
	DefaultRecallLimit = 3
	// DefaultRecallMinRelevance is the floor SmartRecall applies.
	DefaultRecallMinRelevance = 0.3
	// DefaultMaxKeywords bounds ExtractKeywords in AnalyzeContext.
	DefaultMaxKeywords = 10

	minKeywordLength = 3
	inferTimeout     = 2 * time.Second
)

// Confidence levels shown next to a recalled session.
const (
	ConfidenceHigh   = "HIGH"
	ConfidenceMedium = "MEDIUM"
	ConfidenceLow    = "LOW"
)

var stopWords = toSet(
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
	"of", "with", "by", "from", "as", "is", "was", "are", "were", "been",
	"be", "have", "has", "had", "do", "does", "did", "will", "would",
	"could", "should", "may", "might", "can", "this", "that", "these",
	"those", "i", "you", "he", "she", "it", "we", "they", "what", "which",
	"who", "when", "where", "why", "how", "all", "each", "every", "both",
	"few", "more", "most", "some", "such", "no", "nor", "not", "only",
	"own", "same", "so", "than", "too", "very", "just", "now", "get",
	"make", "go", "see", "know", "take", "use", "find", "give", "tell",
	"work", "call", "try", "ask", "need", "feel", "become", "leave",
	"put", "mean", "keep", "let", "begin", "seem", "help", "talk",
	"turn", "start", "show", "move", "like", "live", "believe",
	"happen", "write", "sit", "stand", "lose", "pay", "meet", "run",
	"im", "ive", "id", "ill", "youre", "youve", "youd", "youll",
	"hes", "shes", "its", "theyre", "theyve", "theyd",
	"dont", "doesnt", "didnt", "wont", "wouldnt", "couldnt", "shouldnt",
	"cant", "cannot", "isnt", "arent", "wasnt", "werent", "hasnt", "havent",
)

var (
	wordPattern    = regexp.MustCompile(`\b[a-z]+\b`)
	acronymPattern = regexp.MustCompile(`\b[A-Z]{2,5}\b`)
	camelPattern   = regexp.MustCompile(`\b[a-z]+[A-Z][a-zA-Z]*\b|\b[A-Z][a-z]+[A-Z][a-zA-Z]*\b`)
	snakePattern   = regexp.MustCompile(`\b[a-z]+_[a-z_]+\b`)
	kebabPattern   = regexp.MustCompile(`\b[a-z]+-[a-z-]+\b`)

	techPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:python|javascript|typescript|react|vue|angular|django|flask|fastapi|node|npm|pip|docker|kubernetes|aws|azure|gcp)\b`),
		regexp.MustCompile(`\b(?:api|rest|graphql|sql|nosql|database|redis|mongodb|postgres|mysql)\b`),
		regexp.MustCompile(`\b(?:git|github|gitlab|ci|cd|devops|testing|pytest|jest|unit|integration)\b`),
		regexp.MustCompile(`\b(?:frontend|backend|fullstack|microservice|serverless|cloud)\b`),
		regexp.MustCompile(`\b(?:security|authentication|authorization|oauth|jwt|encryption)\b`),
		regexp.MustCompile(`\b(?:performance|optimization|scaling|caching|monitoring)\b`),
	}
)

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// ExtractKeywords returns up to max non-stop-words of at least three
// letters, most frequent first. Ties keep first-appearance order.
func ExtractKeywords(text string, max int) []string {
	if max <= 0 {
		return []string{}
	}

	counts := make(map[string]int)
	var order []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len(w) < minKeywordLength {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}

	// Insertion sort keeps equal counts in first-appearance order.
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && counts[order[j]] > counts[order[j-1]]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	if len(order) > max {
		order = order[:max]
	}
	if order == nil {
		return []string{}
	}
	return order
}

// ExtractTechnicalTerms finds acronyms, camelCase, snake_case and
// kebab-case identifiers and well-known technology words. Acronyms and
// camelCase terms are lowercased. The result is deduplicated in discovery
// order.
func ExtractTechnicalTerms(text string) []string {
	seen := make(map[string]struct{})
	terms := []string{}
	add := func(matches []string, lower bool) {
		for _, m := range matches {
			if lower {
				m = strings.ToLower(m)
			}
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			terms = append(terms, m)
		}
	}

	add(acronymPattern.FindAllString(text, -1), true)
	add(camelPattern.FindAllString(text, -1), true)
	add(snakePattern.FindAllString(text, -1), false)
	add(kebabPattern.FindAllString(text, -1), false)

	lowered := strings.ToLower(text)
	for _, p := range techPatterns {
		add(p.FindAllString(lowered, -1), false)
	}
	return terms
}

// ContextAnalysis is the search query derived from free-form context.
type ContextAnalysis struct {
	Keywords       []string `json:"keywords"`
	TechnicalTerms []string `json:"technical_terms"`
	Query          string   `json:"query"`
}

// AnalyzeContext extracts keywords and technical terms from text. The
// query is the first three technical terms followed by the top two
// keywords.
func AnalyzeContext(text string) ContextAnalysis {
	a := ContextAnalysis{
		Keywords:       ExtractKeywords(text, DefaultMaxKeywords),
		TechnicalTerms: ExtractTechnicalTerms(text),
	}
	terms := make([]string, 0, 5)
	terms = append(terms, a.TechnicalTerms[:min(3, len(a.TechnicalTerms))]...)
	terms = append(terms, a.Keywords[:min(2, len(a.Keywords))]...)
	a.Query = strings.Join(terms, " ")
	return a
}

// Confidence labels a relevance score.
func Confidence(relevance float64) string {
	switch {
	case relevance > 0.7:
		return ConfidenceHigh
	case relevance > 0.4:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// ContextRecall is the outcome of SmartRecall.
type ContextRecall struct {
	Analysis ContextAnalysis `json:"analysis"`
	Hits     []Hit           `json:"results"`

	// Retrieved counts results before the floor was applied.
	Retrieved int `json:"retrieved"`
}

// SmartRecall turns free-form context into a query and returns the most
// relevant sessions. It fetches twice the limit, keeps results at or above
// minRelevance, then caps to limit. limit <= 0 and a nil minRelevance use
// the defaults.
func (s *Service) SmartRecall(ctx context.Context, text string, limit int, minRelevance *float64) (*ContextRecall, error) {
	if limit <= 0 {
		limit = DefaultRecallLimit
	}
	floor := DefaultRecallMinRelevance
	if minRelevance != nil {
		floor = *minRelevance
	}
	if err := search.ValidateThreshold(floor); err != nil {
		return nil, err
	}

	out := &ContextRecall{Hits: []Hit{}}
	if strings.TrimSpace(text) == "" {
		out.Analysis = ContextAnalysis{Keywords: []string{}, TechnicalTerms: []string{}}
		return out, nil
	}
	out.Analysis = AnalyzeContext(text)
	if out.Analysis.Query == "" {
		return out, nil
	}

	zero := 0.0
	hits, err := s.Search(ctx, SearchRequest{
		Query:        out.Analysis.Query,
		Limit:        limit * 2,
		MinRelevance: &zero,
		Mode:         search.ModeAuto,
	})
	if err != nil {
		return nil, err
	}
	out.Retrieved = len(hits)
	for _, h := range hits {
		if h.Relevance < floor {
			continue
		}
		out.Hits = append(out.Hits, h)
		if len(out.Hits) == limit {
			break
		}
	}
	return out, nil
}

// InferContext gathers context from the repository at dir: open beads
// issues, the last five commit subjects and the current branch. Commands
// that fail or are missing are skipped.
func InferContext(ctx context.Context, dir string) string {
	commands := [][]string{
		{"bd", "list", "--status=open", "--status=in_progress"},
		{"git", "log", "-5", "--oneline"},
		{"git", "branch", "--show-current"},
	}

	var parts []string
	for _, argv := range commands {
		cctx, cancel := context.WithTimeout(ctx, inferTimeout)
		cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
		cmd.Dir = dir
		out, err := cmd.Output()
		cancel()
		if err != nil {
			continue
		}
		if text := strings.TrimSpace(string(out)); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}
