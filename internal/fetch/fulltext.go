package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const defaultPMCBase = "https://pmc.ncbi.nlm.nih.gov"

// PMCClient fetches open-access full text from PubMed Central article pages.
// When a page offers only a PDF, the client reports the PDF location so the
// pipeline can hand it to OCR instead.
type PMCClient struct {
	baseURL string
	http    *http.Client
}

var (
	_ FullTextFetcher = (*PMCClient)(nil)
	_ PdfFetcher      = (*PMCClient)(nil)
)

// NewPMCClient builds a client; a nil HTTP client gets a 30s timeout.
func NewPMCClient(baseURL string, client *http.Client) *PMCClient {
	if baseURL == "" {
		baseURL = defaultPMCBase
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &PMCClient{baseURL: baseURL, http: client}
}

// FetchFullText retrieves the article page for a PMID and extracts its body
// text. A page with no usable body but a PDF link yields a PDF result.
func (c *PMCClient) FetchFullText(ctx context.Context, pmid string) (*FullTextResult, error) {
	pageURL := c.baseURL + "/articles/pmid/" + pmid + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, Permanent("fulltext", fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", "pubpipe/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, Transient("fulltext", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("fulltext", resp)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, Permanent("fulltext", fmt.Errorf("parse page: %w", err))
	}

	text := extractBodyText(doc)
	if text != "" {
		return &FullTextResult{Text: text}, nil
	}

	if pdf := findPDFLink(doc, resp.Request.URL); pdf != "" {
		return &FullTextResult{PDFURL: pdf}, nil
	}
	return nil, Permanent("fulltext", fmt.Errorf("pmid %s: no full text or pdf on page", pmid))
}

// extractBodyText pulls paragraph text from the article body, skipping
// navigation, references, and scripts.
func extractBodyText(doc *goquery.Document) string {
	doc.Find("script, style, nav, header, footer, .ref-list").Remove()

	var parts []string
	sel := doc.Find("article p, .article p, .tsec p, main p")
	sel.Each(func(i int, p *goquery.Selection) {
		t := strings.TrimSpace(p.Text())
		if len(t) > 40 { // drop captions and boilerplate fragments
			parts = append(parts, t)
		}
	})

	text := strings.Join(parts, "\n\n")
	if len(text) < 500 { // too short to be a real article body
		return ""
	}
	return text
}

// findPDFLink returns the first PDF href on the page resolved against the
// page URL, or "".
func findPDFLink(doc *goquery.Document, page *url.URL) string {
	var pdf string
	doc.Find("a[href]").EachWithBreak(func(i int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if !strings.HasSuffix(strings.ToLower(strings.Split(href, "?")[0]), ".pdf") {
			return true
		}
		u, err := url.Parse(href)
		if err != nil {
			return true
		}
		if page != nil {
			u = page.ResolveReference(u)
		}
		pdf = u.String()
		return false
	})
	return pdf
}

// FetchPDF downloads PDF bytes from a location found by FetchFullText.
func (c *PMCClient) FetchPDF(ctx context.Context, pdfURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, Permanent("pdf", fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", "pubpipe/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, Transient("pdf", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("pdf", resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, Transient("pdf", fmt.Errorf("read pdf: %w", err))
	}
	if !strings.HasPrefix(string(data[:min(len(data), 5)]), "%PDF-") {
		return nil, Permanent("pdf", fmt.Errorf("response is not a pdf"))
	}
	return data, nil
}
