package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFailureClassification(t *testing.T) {
	base := errors.New("boom")

	if IsPermanent(Transient("search", base)) {
		t.Error("transient failure classified permanent")
	}
	if !IsPermanent(Permanent("search", base)) {
		t.Error("permanent failure not classified permanent")
	}
	// Unclassified errors default to transient.
	if IsPermanent(base) {
		t.Error("bare error classified permanent")
	}
	if IsPermanent(fmt.Errorf("wrap: %w", Transient("op", base))) {
		t.Error("wrapped transient classified permanent")
	}
	if !IsPermanent(fmt.Errorf("wrap: %w", Permanent("op", base))) {
		t.Error("wrapped permanent lost its classification")
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code          int
		wantPermanent bool
	}{
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
		{http.StatusBadGateway, false},
		{http.StatusNotFound, true},
		{http.StatusBadRequest, true},
		{http.StatusForbidden, true},
	}
	for _, tt := range tests {
		resp := &http.Response{StatusCode: tt.code, Status: fmt.Sprintf("%d x", tt.code)}
		err := classifyStatus("op", resp)
		if IsPermanent(err) != tt.wantPermanent {
			t.Errorf("status %d: IsPermanent = %v, want %v", tt.code, IsPermanent(err), tt.wantPermanent)
		}
	}
}

const esearchJSON = `{"esearchresult":{"idlist":["39781554","39781555"]}}`

const efetchXML = `<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID>39781554</PMID>
      <Article>
        <Journal>
          <JournalIssue><PubDate><Year>2025</Year><Month>Jan</Month></PubDate></JournalIssue>
          <Title>Journal of Cannabis Research</Title>
        </Journal>
        <ArticleTitle>Predictors of Response to Cannabis Formulations</ArticleTitle>
        <ELocationID EIdType="doi">10.1000/jcr.2025.1</ELocationID>
        <Abstract>
          <AbstractText>Background text.</AbstractText>
          <AbstractText>Results text.</AbstractText>
        </Abstract>
        <AuthorList>
          <Author><LastName>Doe</LastName><ForeName>Jane</ForeName></Author>
        </AuthorList>
      </Article>
      <KeywordList><Keyword>cannabis</Keyword><Keyword> terpene </Keyword></KeywordList>
      <MeshHeadingList>
        <MeshHeading><DescriptorName>Cannabinoids</DescriptorName></MeshHeading>
      </MeshHeadingList>
    </MedlineCitation>
  </PubmedArticle>
</PubmedArticleSet>`

func newEntrezServer(t *testing.T) (*httptest.Server, *EntrezClient) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/esearch.fcgi"):
			fmt.Fprint(w, esearchJSON)
		case strings.HasPrefix(r.URL.Path, "/efetch.fcgi"):
			if r.URL.Query().Get("id") == "0" {
				fmt.Fprint(w, `<PubmedArticleSet></PubmedArticleSet>`)
				return
			}
			fmt.Fprint(w, efetchXML)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	client := NewEntrezClient(EntrezOpts{
		BaseURL:   srv.URL + "/",
		Email:     "ops@example.org",
		StartYear: 2020,
		EndYear:   2026,
		Client:    srv.Client(),
	})
	return srv, client
}

func TestEntrezSearch(t *testing.T) {
	_, client := newEntrezServer(t)

	pmids, err := client.Search(context.Background(), "cannabis formulation", 100)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(pmids) != 2 || pmids[0] != "39781554" {
		t.Errorf("pmids = %v, want [39781554 39781555]", pmids)
	}
}

func TestEntrezFetchMetadata(t *testing.T) {
	_, client := newEntrezServer(t)

	md, err := client.FetchMetadata(context.Background(), "39781554")
	if err != nil {
		t.Fatalf("FetchMetadata: %v", err)
	}
	if md.Title != "Predictors of Response to Cannabis Formulations" {
		t.Errorf("Title = %q", md.Title)
	}
	if md.Journal != "Journal of Cannabis Research" {
		t.Errorf("Journal = %q", md.Journal)
	}
	if md.DOI != "10.1000/jcr.2025.1" {
		t.Errorf("DOI = %q", md.DOI)
	}
	if md.PublicationDate != "2025 Jan" {
		t.Errorf("PublicationDate = %q", md.PublicationDate)
	}
	if len(md.Authors) != 1 || md.Authors[0] != "Jane Doe" {
		t.Errorf("Authors = %v", md.Authors)
	}
	if len(md.Keywords) != 2 || md.Keywords[1] != "terpene" {
		t.Errorf("Keywords = %v, want trimmed [cannabis terpene]", md.Keywords)
	}
	if len(md.MeshTerms) != 1 || md.MeshTerms[0] != "Cannabinoids" {
		t.Errorf("MeshTerms = %v", md.MeshTerms)
	}
}

func TestEntrezFetchAbstract(t *testing.T) {
	_, client := newEntrezServer(t)

	text, err := client.FetchAbstract(context.Background(), "39781554")
	if err != nil {
		t.Fatalf("FetchAbstract: %v", err)
	}
	want := "Background text.\n\nResults text."
	if text != want {
		t.Errorf("abstract = %q, want %q", text, want)
	}
}

func TestEntrezMissingRecordIsPermanent(t *testing.T) {
	_, client := newEntrezServer(t)

	_, err := client.FetchMetadata(context.Background(), "0")
	if !IsPermanent(err) {
		t.Errorf("missing record error = %v, want permanent", err)
	}
}

func TestEntrezServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	client := NewEntrezClient(EntrezOpts{BaseURL: srv.URL + "/", Client: srv.Client()})

	_, err := client.Search(context.Background(), "x", 10)
	if err == nil || IsPermanent(err) {
		t.Errorf("error = %v, want transient", err)
	}
}

func articleHTML(body string) string {
	return `<html><head><script>var x=1;</script></head><body>
<nav><p>This navigation paragraph is long enough to be mistaken for body text.</p></nav>
<article>` + body + `</article>
</body></html>`
}

func TestPMCFetchFullTextExtractsBody(t *testing.T) {
	para := "<p>" + strings.Repeat("Cannabinoid stability findings are described in detail here. ", 4) + "</p>"
	page := articleHTML(strings.Repeat(para, 5))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	t.Cleanup(srv.Close)
	client := NewPMCClient(srv.URL, srv.Client())

	res, err := client.FetchFullText(context.Background(), "39781554")
	if err != nil {
		t.Fatalf("FetchFullText: %v", err)
	}
	if res.Text == "" {
		t.Fatal("expected extracted text")
	}
	if res.PDFURL != "" {
		t.Errorf("PDFURL = %q, want empty when text extracted", res.PDFURL)
	}
	if strings.Contains(res.Text, "navigation paragraph") {
		t.Error("navigation text leaked into body")
	}
	if strings.Contains(res.Text, "var x=1") {
		t.Error("script text leaked into body")
	}
}

func TestPMCFetchFullTextFallsBackToPDF(t *testing.T) {
	page := articleHTML(`<p>Short teaser.</p><a href="/pdf/main.pdf">Download PDF</a>`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	t.Cleanup(srv.Close)
	client := NewPMCClient(srv.URL, srv.Client())

	res, err := client.FetchFullText(context.Background(), "39781554")
	if err != nil {
		t.Fatalf("FetchFullText: %v", err)
	}
	if res.Text != "" {
		t.Errorf("Text = %q, want empty for pdf-only page", res.Text)
	}
	if !strings.HasSuffix(res.PDFURL, "/pdf/main.pdf") {
		t.Errorf("PDFURL = %q, want resolved /pdf/main.pdf", res.PDFURL)
	}
}

func TestPMCFetchFullTextNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(http.NotFound))
	t.Cleanup(srv.Close)
	client := NewPMCClient(srv.URL, srv.Client())

	_, err := client.FetchFullText(context.Background(), "1")
	if !IsPermanent(err) {
		t.Errorf("404 error = %v, want permanent", err)
	}
}

func TestPMCFetchPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/good.pdf" {
			fmt.Fprint(w, "%PDF-1.7 payload")
			return
		}
		fmt.Fprint(w, "<html>not a pdf</html>")
	}))
	t.Cleanup(srv.Close)
	client := NewPMCClient(srv.URL, srv.Client())
	ctx := context.Background()

	data, err := client.FetchPDF(ctx, srv.URL+"/good.pdf")
	if err != nil {
		t.Fatalf("FetchPDF: %v", err)
	}
	if !strings.HasPrefix(string(data), "%PDF-") {
		t.Errorf("pdf bytes = %q", data[:8])
	}

	if _, err := client.FetchPDF(ctx, srv.URL+"/fake.pdf"); !IsPermanent(err) {
		t.Errorf("non-pdf payload error = %v, want permanent", err)
	}
}

func TestOcrExtractText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/pdf" {
			http.Error(w, "bad content type", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"text":"extracted body"}`)
	}))
	t.Cleanup(srv.Close)
	client := NewOcrClient(srv.URL, "", srv.Client())

	text, err := client.ExtractText(context.Background(), []byte("%PDF-1.7"))
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if text != "extracted body" {
		t.Errorf("text = %q", text)
	}
}

func TestOcrUnconfiguredIsPermanent(t *testing.T) {
	client := NewOcrClient("", "", nil)

	_, err := client.ExtractText(context.Background(), []byte("%PDF-"))
	if !IsPermanent(err) {
		t.Errorf("error = %v, want permanent", err)
	}
}
