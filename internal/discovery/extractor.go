package discovery

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/report-discovery/internal/metrics"
)

// yearPlaceholder is expanded in guessed patterns and URL templates.
const yearPlaceholder = "{year}"

// minNameMatchLen guards the "template key contains entity name" direction so
// very short names do not match every template.
const minNameMatchLen = 3

// URLTemplate lists candidate URLs for one previously observed entity.
type URLTemplate struct {
	// Name is matched as a case-insensitive substring against entity names.
	Name string `yaml:"name" mapstructure:"name"`
	// Hosts are matched as substrings against the host of a visited page.
	Hosts []string `yaml:"hosts,omitempty" mapstructure:"hosts"`
	// URLs may contain {year}, expanded for the current and prior year.
	URLs []string `yaml:"urls" mapstructure:"urls"`
}

// ExtractorConfig holds the signals the extractor looks for.
type ExtractorConfig struct {
	ReportKeywords  []string
	DownloadText    *regexp.Regexp
	DownloadClass   *regexp.Regexp
	DownloadAttrs   []string
	GuessedPatterns []string
	Templates       []URLTemplate
}

// DefaultExtractorConfig returns the stock keyword sets and filename patterns.
// Templates are loaded from configuration.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		ReportKeywords: []string{
			"annual report", "annual-report", "financial report", "financial-report",
			"annual financial", "jahresbericht", "yearly report", "yearly-report", "annual results",
		},
		DownloadText:  regexp.MustCompile(`(?i)download|herunterladen|télécharger`),
		DownloadClass: regexp.MustCompile(`(?i)download|btn-download`),
		DownloadAttrs: []string{"data-url", "data-href", "data-download"},
		GuessedPatterns: []string{
			"annual-report-{year}.pdf",
			"annual_report_{year}.pdf",
			"financial-report-{year}.pdf",
		},
	}
}

// Extractor finds candidate document references on a fetched page.
type Extractor struct {
	cfg    ExtractorConfig
	scorer *Scorer
	prober Prober
	clock  Clock
	logger *zap.Logger
}

// NewExtractor wires an extractor. A nil prober disables the probing steps.
func NewExtractor(cfg ExtractorConfig, scorer *Scorer, prober Prober, clock Clock, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, scorer: scorer, prober: prober, clock: clock, logger: logger}
}

// WithProber returns a copy of the extractor that probes through p.
func (x *Extractor) WithProber(p Prober) *Extractor {
	cp := *x
	cp.prober = p
	return &cp
}

// Extract runs the extraction steps against one page. Download controls are
// only inspected when no direct link qualified, and guessed patterns only
// when neither produced anything. Known templates are always tried.
func (x *Extractor) Extract(ctx context.Context, body []byte, pageURL, entityName string) []Candidate {
	base, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil || base.Host == "" {
		x.logger.Warn("unusable page url", zap.String("url", pageURL), zap.Error(err))
		base = nil
	}

	var out []Candidate
	if base != nil {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			x.logger.Warn("failed to parse page", zap.String("url", pageURL), zap.Error(err))
		} else {
			out = x.directLinks(doc, base)
			if len(out) == 0 {
				out = x.downloadControls(doc, base)
			}
		}
		if len(out) == 0 {
			out = x.guessedPatterns(ctx, base)
		}
	}

	host := ""
	if base != nil {
		host = strings.ToLower(base.Hostname())
	}
	out = append(out, x.probeTemplates(ctx, entityName, host, pageURL)...)
	x.logger.Debug("extracted candidates",
		zap.String("url", pageURL),
		zap.String("entity", entityName),
		zap.Int("count", len(out)),
	)
	return out
}

// ProbeTemplates probes the templates keyed by entity name without a page.
func (x *Extractor) ProbeTemplates(ctx context.Context, entityName string) []Candidate {
	return x.probeTemplates(ctx, entityName, "", "")
}

func (x *Extractor) directLinks(doc *goquery.Document, base *url.URL) []Candidate {
	var out []Candidate
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		abs, ok := resolveHref(base, href)
		if !ok || !x.scorer.IsDocument(abs) {
			return
		}
		text := visibleText(sel)
		if !containsAny(strings.ToLower(text+" "+abs), x.cfg.ReportKeywords) {
			return
		}
		out = append(out, x.scored(abs, text, StepDirectLink, base.String()))
	})
	metrics.ObserveCandidates(string(StepDirectLink), len(out))
	return out
}

func (x *Extractor) downloadControls(doc *goquery.Document, base *url.URL) []Candidate {
	var out []Candidate
	doc.Find("a, button").Each(func(_ int, sel *goquery.Selection) {
		text := visibleText(sel)
		class, _ := sel.Attr("class")
		if !matches(x.cfg.DownloadText, text) && !matches(x.cfg.DownloadClass, class) {
			return
		}
		abs, ok := resolveHref(base, x.controlHref(sel))
		if !ok {
			return
		}
		c := x.scored(abs, text, StepDownloadControl, base.String())
		if c.Score <= 0 {
			return
		}
		out = append(out, c)
	})
	metrics.ObserveCandidates(string(StepDownloadControl), len(out))
	return out
}

// controlHref prefers the control's own href, then a nested anchor, then a
// data attribute.
func (x *Extractor) controlHref(sel *goquery.Selection) string {
	if goquery.NodeName(sel) == "a" {
		if href, ok := sel.Attr("href"); ok && strings.TrimSpace(href) != "" {
			return href
		}
	} else if href, ok := sel.Find("a[href]").First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		return href
	}
	for _, attr := range x.cfg.DownloadAttrs {
		if v, ok := sel.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func (x *Extractor) guessedPatterns(ctx context.Context, base *url.URL) []Candidate {
	if x.prober == nil || len(x.cfg.GuessedPatterns) == 0 {
		return nil
	}
	dir := patternBase(base)
	var out []Candidate
	for _, pattern := range x.cfg.GuessedPatterns {
		for _, year := range x.years() {
			name := strings.ReplaceAll(pattern, yearPlaceholder, strconv.Itoa(year))
			candidateURL := dir + "/" + strings.TrimLeft(name, "/")
			if !x.prober.Probe(ctx, candidateURL) {
				continue
			}
			out = append(out, Candidate{
				URL:         candidateURL,
				DisplayText: "Annual Report " + strconv.Itoa(year),
				Year:        strconv.Itoa(year),
				IsDocument:  x.scorer.IsDocument(candidateURL),
				Score:       ConfirmedScore,
				Step:        StepGuessedPattern,
				Source:      base.String(),
			})
		}
	}
	metrics.ObserveCandidates(string(StepGuessedPattern), len(out))
	return out
}

func (x *Extractor) probeTemplates(ctx context.Context, entityName, host, source string) []Candidate {
	if x.prober == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []Candidate
	for _, tmpl := range x.cfg.Templates {
		if !tmpl.matchesName(entityName) && !tmpl.matchesHost(host) {
			continue
		}
		for _, candidateURL := range x.expandTemplate(tmpl) {
			if _, ok := seen[candidateURL]; ok {
				continue
			}
			seen[candidateURL] = struct{}{}
			if !x.prober.Probe(ctx, candidateURL) {
				continue
			}
			year := ExtractYear(candidateURL)
			out = append(out, Candidate{
				URL:         candidateURL,
				DisplayText: strings.TrimSpace(tmpl.Name + " Annual Report " + year),
				Year:        year,
				IsDocument:  x.scorer.IsDocument(candidateURL),
				Score:       ConfirmedScore,
				Step:        StepKnownTemplate,
				Source:      source,
			})
		}
	}
	metrics.ObserveCandidates(string(StepKnownTemplate), len(out))
	return out
}

func (x *Extractor) expandTemplate(tmpl URLTemplate) []string {
	var out []string
	for _, raw := range tmpl.URLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, yearPlaceholder) {
			out = append(out, raw)
			continue
		}
		for _, year := range x.years() {
			out = append(out, strings.ReplaceAll(raw, yearPlaceholder, strconv.Itoa(year)))
		}
	}
	return out
}

// years returns the current and prior year.
func (x *Extractor) years() []int {
	current := x.clock.Now().Year()
	return []int{current, current - 1}
}

func (x *Extractor) scored(abs, text string, step Step, source string) Candidate {
	c := Candidate{
		URL:         abs,
		DisplayText: text,
		Year:        CandidateYear(text, abs),
		IsDocument:  x.scorer.IsDocument(abs),
		Step:        step,
		Source:      source,
	}
	c.Score = x.scorer.Score(c)
	return c
}

func (t URLTemplate) matchesName(entityName string) bool {
	name := strings.ToUpper(strings.TrimSpace(entityName))
	key := strings.ToUpper(strings.TrimSpace(t.Name))
	if name == "" || key == "" {
		return false
	}
	if strings.Contains(name, key) {
		return true
	}
	return utf8.RuneCountInString(name) >= minNameMatchLen && strings.Contains(key, name)
}

func (t URLTemplate) matchesHost(host string) bool {
	if host == "" {
		return false
	}
	for _, h := range t.Hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" && strings.Contains(host, h) {
			return true
		}
	}
	return false
}

// resolveHref makes href absolute against base. Only http(s) targets survive.
func resolveHref(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}

// patternBase is the directory guessed filenames are appended to. A trailing
// file segment (one containing a dot) is dropped along with query and fragment.
func patternBase(u *url.URL) string {
	b := *u
	b.RawQuery = ""
	b.Fragment = ""
	b.RawPath = ""
	p := b.Path
	if i := strings.LastIndex(p, "/"); i >= 0 && strings.Contains(p[i+1:], ".") {
		p = p[:i]
	}
	b.Path = strings.TrimRight(p, "/")
	return b.String()
}

func visibleText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

func matches(re *regexp.Regexp, s string) bool {
	return re != nil && s != "" && re.MatchString(s)
}

// memoProber remembers probe outcomes so one entity never probes a URL twice.
type memoProber struct {
	next Prober
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoProber(next Prober) *memoProber {
	return &memoProber{next: next, seen: make(map[string]bool)}
}

func (m *memoProber) Probe(ctx context.Context, rawURL string) bool {
	m.mu.Lock()
	live, ok := m.seen[rawURL]
	m.mu.Unlock()
	if ok {
		return live
	}
	live = m.next.Probe(ctx, rawURL)
	if ctx.Err() != nil {
		return live
	}
	m.mu.Lock()
	m.seen[rawURL] = live
	m.mu.Unlock()
	return live
}
