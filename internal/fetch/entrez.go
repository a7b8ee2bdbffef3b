package fetch

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/f8ai/pubpipe/internal/article"
)

const defaultEntrezBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"

// EntrezClient talks to the NCBI Entrez API (ESearch for discovery, EFetch
// for metadata and abstracts).
type EntrezClient struct {
	baseURL   string
	email     string
	apiKey    string
	startYear int
	endYear   int
	http      *http.Client
}

var (
	_ Searcher        = (*EntrezClient)(nil)
	_ MetadataFetcher = (*EntrezClient)(nil)
	_ AbstractFetcher = (*EntrezClient)(nil)
)

// EntrezOpts configures an EntrezClient.
type EntrezOpts struct {
	BaseURL   string
	Email     string
	APIKey    string
	StartYear int
	EndYear   int
	Client    *http.Client
}

// NewEntrezClient builds a client; a nil HTTP client gets a 20s timeout.
func NewEntrezClient(opts EntrezOpts) *EntrezClient {
	base := opts.BaseURL
	if base == "" {
		base = defaultEntrezBase
	}
	httpClient := opts.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &EntrezClient{
		baseURL:   base,
		email:     opts.Email,
		apiKey:    opts.APIKey,
		startYear: opts.StartYear,
		endYear:   opts.EndYear,
		http:      httpClient,
	}
}

// buildQuery wraps a search term with publication-date, article-type, and
// language filters the way the upstream database expects them.
func (c *EntrezClient) buildQuery(term string) string {
	parts := []string{fmt.Sprintf("%q[Title/Abstract]", term)}
	if c.startYear > 0 && c.endYear > 0 {
		parts = append(parts, fmt.Sprintf("(%q[Date - Publication] : %q[Date - Publication])",
			fmt.Sprint(c.startYear), fmt.Sprint(c.endYear)))
	}
	parts = append(parts,
		`("Journal Article"[Publication Type] OR "Review"[Publication Type] OR "Clinical Trial"[Publication Type])`,
		`"English"[Language]`)
	return strings.Join(parts, " AND ")
}

// Search returns up to max PMIDs matching the term, relevance sorted.
func (c *EntrezClient) Search(ctx context.Context, term string, max int) ([]string, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", c.buildQuery(term))
	params.Set("retmax", fmt.Sprint(max))
	params.Set("retmode", "json")
	params.Set("sort", "relevance")
	if c.email != "" {
		params.Set("email", c.email)
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	body, err := c.get(ctx, "esearch.fcgi", params, "search")
	if err != nil {
		return nil, err
	}

	var result struct {
		ESearchResult struct {
			IDList []string `json:"idlist"`
		} `json:"esearchresult"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, Permanent("search", fmt.Errorf("decode esearch response: %w", err))
	}
	return result.ESearchResult.IDList, nil
}

// FetchMetadata returns the structured record for a PMID.
func (c *EntrezClient) FetchMetadata(ctx context.Context, pmid string) (*article.Metadata, error) {
	rec, err := c.efetch(ctx, pmid, "metadata")
	if err != nil {
		return nil, err
	}

	md := &article.Metadata{
		Title:           strings.TrimSpace(rec.Citation.Article.Title),
		Journal:         strings.TrimSpace(rec.Citation.Article.Journal.Title),
		PublicationDate: rec.Citation.Article.Journal.Issue.PubDate.String(),
		Keywords:        trimAll(rec.Citation.Keywords),
		MeshTerms:       trimAll(rec.Citation.MeshTerms),
		URL:             "https://pubmed.ncbi.nlm.nih.gov/" + pmid + "/",
	}
	for _, a := range rec.Citation.Article.Authors {
		name := strings.TrimSpace(a.ForeName + " " + a.LastName)
		if name != "" {
			md.Authors = append(md.Authors, name)
		}
	}
	for _, loc := range rec.Citation.Article.ELocationIDs {
		if loc.Type == "doi" {
			md.DOI = strings.TrimSpace(loc.Value)
		}
	}
	if md.Title == "" {
		return nil, Permanent("metadata", fmt.Errorf("pmid %s: record has no title", pmid))
	}
	return md, nil
}

// FetchAbstract returns the abstract text for a PMID. A record with no
// abstract is a definitive miss, not a retryable error.
func (c *EntrezClient) FetchAbstract(ctx context.Context, pmid string) (string, error) {
	rec, err := c.efetch(ctx, pmid, "abstract")
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(strings.Join(rec.Citation.Article.Abstract.Sections, "\n\n"))
	if text == "" {
		return "", Permanent("abstract", fmt.Errorf("pmid %s: no abstract available", pmid))
	}
	return text, nil
}

// pubmedRecord mirrors the slice of the EFetch XML payload we consume.
type pubmedRecord struct {
	Citation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title    string `xml:"ArticleTitle"`
			Abstract struct {
				Sections []string `xml:"AbstractText"`
			} `xml:"Abstract"`
			Authors []struct {
				LastName string `xml:"LastName"`
				ForeName string `xml:"ForeName"`
			} `xml:"AuthorList>Author"`
			Journal struct {
				Title string `xml:"Title"`
				Issue struct {
					PubDate pubDate `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
			ELocationIDs []struct {
				Type  string `xml:"EIdType,attr"`
				Value string `xml:",chardata"`
			} `xml:"ELocationID"`
		} `xml:"Article"`
		Keywords  []string `xml:"KeywordList>Keyword"`
		MeshTerms []string `xml:"MeshHeadingList>MeshHeading>DescriptorName"`
	} `xml:"MedlineCitation"`
}

type pubDate struct {
	Year  string `xml:"Year"`
	Month string `xml:"Month"`
	Day   string `xml:"Day"`
}

func (d pubDate) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{d.Year, d.Month, d.Day} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func (c *EntrezClient) efetch(ctx context.Context, pmid, op string) (*pubmedRecord, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", pmid)
	params.Set("retmode", "xml")
	if c.email != "" {
		params.Set("email", c.email)
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	body, err := c.get(ctx, "efetch.fcgi", params, op)
	if err != nil {
		return nil, err
	}

	var set struct {
		Articles []pubmedRecord `xml:"PubmedArticle"`
	}
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, Permanent(op, fmt.Errorf("decode efetch response: %w", err))
	}
	if len(set.Articles) == 0 {
		return nil, Permanent(op, fmt.Errorf("pmid %s: not found", pmid))
	}
	return &set.Articles[0], nil
}

func (c *EntrezClient) get(ctx context.Context, endpoint string, params url.Values, op string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, Permanent(op, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", "pubpipe/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, Transient(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(op, resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, Transient(op, fmt.Errorf("read response: %w", err))
	}
	return body, nil
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
