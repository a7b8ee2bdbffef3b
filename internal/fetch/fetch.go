// Package fetch defines the external capabilities the pipeline engine
// invokes, the failure taxonomy it classifies their errors into, and HTTP
// adapters for PubMed's Entrez API, PMC full text, and an OCR service.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/f8ai/pubpipe/internal/article"
)

// Searcher discovers article identifiers for a search term.
type Searcher interface {
	Search(ctx context.Context, term string, max int) ([]string, error)
}

// MetadataFetcher fetches the structured metadata record for a PMID.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, pmid string) (*article.Metadata, error)
}

// AbstractFetcher fetches the abstract text for a PMID.
type AbstractFetcher interface {
	FetchAbstract(ctx context.Context, pmid string) (string, error)
}

// FullTextResult is the outcome of a full-text fetch: either extracted text,
// or a PDF location that needs optical extraction.
type FullTextResult struct {
	Text   string
	PDFURL string
}

// FullTextFetcher fetches full text for a PMID.
type FullTextFetcher interface {
	FetchFullText(ctx context.Context, pmid string) (*FullTextResult, error)
}

// PdfFetcher downloads PDF bytes from a location reported by a prior stage.
type PdfFetcher interface {
	FetchPDF(ctx context.Context, url string) ([]byte, error)
}

// OcrExtractor extracts text from PDF bytes.
type OcrExtractor interface {
	ExtractText(ctx context.Context, pdf []byte) (string, error)
}

// Failure kinds. A transient failure is worth retrying on a later tick; a
// permanent one is not.
const (
	KindTransient = "transient"
	KindPermanent = "permanent"
)

// Failure is a classified fetch error.
type Failure struct {
	Kind string
	Op   string
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s: %v", f.Op, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Transient wraps err as a retryable failure.
func Transient(op string, err error) error {
	return &Failure{Kind: KindTransient, Op: op, Err: err}
}

// Permanent wraps err as a definitive failure.
func Permanent(op string, err error) error {
	return &Failure{Kind: KindPermanent, Op: op, Err: err}
}

// IsPermanent reports whether err is classified permanent. Unclassified
// errors count as transient: network-level failures with no HTTP status are
// exactly the ones worth retrying.
func IsPermanent(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == KindPermanent
}

// classifyStatus maps an HTTP response status to a Failure. Rate limits and
// server errors are transient; everything else in the 4xx range is
// permanent.
func classifyStatus(op string, resp *http.Response) error {
	err := fmt.Errorf("unexpected status %s", resp.Status)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Transient(op, err)
	case resp.StatusCode >= 500:
		return Transient(op, err)
	case resp.StatusCode == http.StatusNotFound:
		return Permanent(op, fmt.Errorf("not found"))
	default:
		return Permanent(op, err)
	}
}
