// -----------------------------------------------------------------------
// Crawler adapter - bounded BFS over a university admissions site plus an
// LLM pruning pass over the discovered node tree.
// -----------------------------------------------------------------------

package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nyushi/internal/common"
	"github.com/ternarybob/nyushi/internal/interfaces"
)

var fileExtensionRE = regexp.MustCompile(`(?i)\.(pdf|docx?|xlsx?)$`)

// Adapter implements interfaces.Crawler over net/http + goquery. Pages are
// fetched and parsed for links and title; files (matched by extension) are
// recorded as leaf nodes and never fetched for link discovery. One Claude
// call per task prunes the discovered tree before it's persisted.
type Adapter struct {
	logger        arbor.ILogger
	httpClient    *http.Client
	linkExtractor *LinkExtractor
	rateLimiter   *RateLimiter
	retryPolicy   *RetryPolicy
	llm           interfaces.LLMService
	config        common.CrawlConfig
	mdConverter   *md.Converter
}

// NewAdapter builds a Crawler. llm may be nil, in which case the pruning
// pass is skipped and every discovered node is retained (fail-open).
func NewAdapter(logger arbor.ILogger, config common.CrawlConfig, llm interfaces.LLMService) *Adapter {
	timeout := 30 * time.Second
	if d, err := time.ParseDuration(config.RequestTimeout); err == nil && d > 0 {
		timeout = d
	}

	return &Adapter{
		logger:        logger,
		httpClient:    &http.Client{Timeout: timeout},
		linkExtractor: NewLinkExtractor(logger),
		rateLimiter:   NewRateLimiter(500 * time.Millisecond),
		retryPolicy:   NewRetryPolicy(),
		llm:           llm,
		config:        config,
		mdConverter:   md.NewConverter("", true, nil),
	}
}

var _ interfaces.Crawler = (*Adapter)(nil)

// frontierItem is one pending BFS entry.
type frontierItem struct {
	url         string
	parentIndex int
	depth       int
	parentTitle string
	breadcrumb  string
}

// crawledNode is the adapter's internal working copy of a node, carrying
// the markdown summary used only for the pruning prompt.
type crawledNode struct {
	interfaces.CrawlNode
	Summary string
}

// Crawl performs a same-host bounded BFS from seedURL up to depth levels,
// then asks the LLM which nodes to keep. kindTag is accepted for interface
// symmetry with other seed kinds but does not change crawl behavior here.
func (a *Adapter) Crawl(ctx context.Context, seedURL string, depth int, kindTag string) (*interfaces.CrawlResult, error) {
	seedHost, err := hostOf(seedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid seed url: %w", err)
	}

	maxPages := a.config.MaxPages
	if maxPages <= 0 {
		maxPages = 500
	}

	visited := map[string]bool{seedURL: true}
	queue := []frontierItem{{url: seedURL, parentIndex: -1, depth: 0}}
	var nodes []crawledNode

	for len(queue) > 0 && len(nodes) < maxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item := queue[0]
		queue = queue[1:]

		index := len(nodes)
		ext, isFile := classifyExtension(item.url)

		if isFile {
			nodes = append(nodes, crawledNode{CrawlNode: interfaces.CrawlNode{
				NodeIndex:     index,
				ParentIndex:   item.parentIndex,
				Depth:         item.depth,
				Title:         path.Base(item.url),
				Breadcrumb:    item.breadcrumb,
				URL:           item.url,
				ParentTitle:   item.parentTitle,
				IsFile:        true,
				FileExtension: ext,
			}})
			continue
		}

		if err := a.rateLimiter.Wait(ctx, item.url); err != nil {
			return nil, err
		}

		body, fetchErr := a.fetch(ctx, item.url)
		if fetchErr != nil {
			a.logger.Warn().Err(fetchErr).Str("url", item.url).Msg("crawl fetch failed, recording node without children")
			nodes = append(nodes, crawledNode{CrawlNode: interfaces.CrawlNode{
				NodeIndex:   index,
				ParentIndex: item.parentIndex,
				Depth:       item.depth,
				Title:       item.url,
				Breadcrumb:  item.breadcrumb,
				URL:         item.url,
				ParentTitle: item.parentTitle,
			}})
			continue
		}

		doc, parseErr := goquery.NewDocumentFromReader(strings.NewReader(body))
		if parseErr != nil {
			a.logger.Warn().Err(parseErr).Str("url", item.url).Msg("failed to parse page for crawl")
			nodes = append(nodes, crawledNode{CrawlNode: interfaces.CrawlNode{
				NodeIndex:   index,
				ParentIndex: item.parentIndex,
				Depth:       item.depth,
				Title:       item.url,
				Breadcrumb:  item.breadcrumb,
				URL:         item.url,
				ParentTitle: item.parentTitle,
			}})
			continue
		}

		title := pageTitle(doc, item.url)
		breadcrumb := item.breadcrumb
		if breadcrumb == "" {
			breadcrumb = title
		} else {
			breadcrumb = breadcrumb + " > " + title
		}

		nodes = append(nodes, crawledNode{
			CrawlNode: interfaces.CrawlNode{
				NodeIndex:   index,
				ParentIndex: item.parentIndex,
				Depth:       item.depth,
				Title:       title,
				Breadcrumb:  breadcrumb,
				URL:         item.url,
				ParentTitle: item.parentTitle,
			},
			Summary: a.summarize(doc),
		})

		if item.depth >= depth {
			continue
		}

		links, linkErr := a.linkExtractor.ExtractLinks(body, item.url)
		if linkErr != nil {
			continue
		}

		for _, link := range links {
			if visited[link] {
				continue
			}
			host, err := hostOf(link)
			if err != nil || host != seedHost {
				continue
			}
			visited[link] = true
			queue = append(queue, frontierItem{
				url:         link,
				parentIndex: index,
				depth:       item.depth + 1,
				parentTitle: title,
				breadcrumb:  breadcrumb,
			})
		}
	}

	keep := a.prune(ctx, nodes)

	result := &interfaces.CrawlResult{
		Nodes:      make([]interfaces.CrawlNode, len(nodes)),
		RawHTML:    renderTreeHTML(nodes, nil),
		PrunedHTML: renderTreeHTML(nodes, keep),
	}
	for i, n := range nodes {
		result.Nodes[i] = n.CrawlNode
		if !keep[i] {
			result.PrunedIndices = append(result.PrunedIndices, i)
		}
	}

	return result, nil
}

func (a *Adapter) fetch(ctx context.Context, rawURL string) (string, error) {
	var body string

	_, err := a.retryPolicy.ExecuteWithRetry(ctx, a.logger, func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return 0, err
		}
		if a.config.UserAgent != "" {
			req.Header.Set("User-Agent", a.config.UserAgent)
		}

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return resp.StatusCode, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return resp.StatusCode, err
		}
		body = string(data)
		return resp.StatusCode, nil
	})

	return body, err
}

// summarize converts the page body to markdown and truncates it to a size
// suitable for inclusion in the pruning prompt's per-node context.
func (a *Adapter) summarize(doc *goquery.Document) string {
	html, err := doc.Find("body").Html()
	if err != nil || html == "" {
		return ""
	}

	text, err := a.mdConverter.ConvertString(html)
	if err != nil {
		return ""
	}

	text = strings.TrimSpace(text)
	const maxLen = 400
	if len(text) > maxLen {
		text = text[:maxLen]
	}
	return text
}

// prune asks the LLM which node indices are relevant to admissions
// information and returns the keep set. Nil llm or any failure in the call
// or response parsing retains every node (fail-open) rather than unwinding
// the whole crawl over a single pruning error.
func (a *Adapter) prune(ctx context.Context, nodes []crawledNode) map[int]bool {
	keep := make(map[int]bool, len(nodes))
	for i := range nodes {
		keep[i] = true
	}

	if a.llm == nil || len(nodes) == 0 {
		return keep
	}

	var b strings.Builder
	for _, n := range nodes {
		fmt.Fprintf(&b, "[%d] title=%q breadcrumb=%q url=%q", n.NodeIndex, n.Title, n.Breadcrumb, n.URL)
		if n.Summary != "" {
			fmt.Fprintf(&b, " summary=%q", n.Summary)
		}
		b.WriteString("\n")
	}

	messages := []interfaces.Message{
		{Role: "system", Content: "You review a university website's crawled page tree and decide which pages are relevant to prospective students researching admissions (departments, majors, courses, application procedures, schedules, documents). Respond with a JSON object: {\"keep\": [list of integer node indices to retain]}. Always include index 0 (the seed page). Respond with JSON only."},
		{Role: "user", Content: b.String()},
	}

	resp, err := a.llm.Chat(ctx, messages)
	if err != nil {
		a.logger.Warn().Err(err).Msg("pruning llm call failed, retaining all nodes")
		return keep
	}

	indices := gjson.Get(resp, "keep")
	if !indices.Exists() || !indices.IsArray() {
		a.logger.Warn().Str("response", resp).Msg("pruning response missing keep array, retaining all nodes")
		return keep
	}

	pruned := make(map[int]bool, len(nodes))
	indices.ForEach(func(_, v gjson.Result) bool {
		pruned[int(v.Int())] = true
		return true
	})
	if len(pruned) == 0 {
		return keep
	}

	return pruned
}

func classifyExtension(rawURL string) (ext string, isFile bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	m := fileExtensionRE.FindStringSubmatch(u.Path)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return strings.ToLower(u.Hostname()), nil
}

func pageTitle(doc *goquery.Document, fallback string) string {
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	return fallback
}

// renderTreeHTML renders the node list as a nested <ul> for the task's
// visualization artifact. When keep is non-nil, nodes absent from it are
// omitted (the pruned view); a nil keep renders every node (the raw view).
func renderTreeHTML(nodes []crawledNode, keep map[int]bool) string {
	var b strings.Builder
	b.WriteString("<ul>\n")
	for _, n := range nodes {
		if keep != nil && !keep[n.NodeIndex] {
			continue
		}
		indent := strings.Repeat("  ", n.Depth+1)
		kind := "page"
		if n.IsFile {
			kind = "file:" + n.FileExtension
		}
		fmt.Fprintf(&b, "%s<li data-index=\"%s\" data-kind=\"%s\"><a href=\"%s\">%s</a></li>\n",
			indent, strconv.Itoa(n.NodeIndex), kind, htmlEscape(n.URL), htmlEscape(n.Title))
	}
	b.WriteString("</ul>\n")
	return b.String()
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
