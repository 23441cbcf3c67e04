// Package indexer is the client for the external document-QA service. It wraps
// the two remote calls this system depends on, indexing a PDF and answering a
// question against an indexed PDF, and turns every failure into an IndexError
// or QueryError.
//
// The client holds no state besides its configuration and *http.Client; it is
// safe for concurrent use.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Default budgets. Indexing extracts and embeds a whole document and is much
// slower than answering one question.
const (
	DefaultIndexTimeout = 120 * time.Second
	DefaultQueryTimeout = 60 * time.Second

	// maxResponseBytes caps how much of an upstream body is read.
	maxResponseBytes = 8 << 20
)

// Config describes where the indexer lives and how it names things.
type Config struct {
	BaseURL      string        // e.g. http://indexer:8000
	IndexPath    string        // default /process-pdf
	QueryPath    string        // default /query
	IDField      string        // response/form field carrying the document id; default pdf_id
	IndexTimeout time.Duration // default 120s
	QueryTimeout time.Duration // default 60s
}

// IndexResult is a successful indexing response.
type IndexResult struct {
	DocumentID string
	// Raw is the full response body, kept for diagnostics. Nil when the body
	// was not JSON.
	Raw json.RawMessage
}

// Client talks to the indexer over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
}

// New returns a Client with defaults applied to cfg. A nil hc uses a plain
// *http.Client; per-call deadlines come from the configured timeouts.
func New(cfg Config, hc *http.Client) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.IndexPath == "" {
		cfg.IndexPath = "/process-pdf"
	}
	if cfg.QueryPath == "" {
		cfg.QueryPath = "/query"
	}
	if cfg.IDField == "" {
		cfg.IDField = "pdf_id"
	}
	if cfg.IndexTimeout <= 0 {
		cfg.IndexTimeout = DefaultIndexTimeout
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{cfg: cfg, http: hc}
}

// Index streams file to the service as multipart field "file" and returns the
// identifier the service minted for it. The body is encoded while it is sent,
// so file is read at most once and never buffered whole. A 2xx response
// without a non-empty identifier is an IndexError wrapping
// ErrContractViolation.
func (c *Client) Index(ctx context.Context, file io.Reader, filename string) (res IndexResult, err error) {
	ctx, span := otel.Tracer("indexer/Client").Start(ctx, "Index",
		trace.WithAttributes(attribute.String("file.name", filename)),
	)
	defer func() { finishSpan(span, err) }()
	defer observe(opIndex, time.Now(), &err)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.IndexTimeout)
	defer cancel()

	body, contentType := multipartPDF(file, filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.cfg.IndexPath, body)
	if err != nil {
		_ = body.Close()
		return IndexResult{}, &IndexError{Message: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	status, payload, err := c.do(req, c.cfg.IndexTimeout)
	if err != nil {
		return IndexResult{}, &IndexError{Status: status, Message: err.Error(), Err: err}
	}
	if status < 200 || status > 299 {
		msg := upstreamMessage(payload, status)
		return IndexResult{}, &IndexError{Status: status, Message: msg, Err: errors.New(msg)}
	}

	id := gjson.GetBytes(payload, c.cfg.IDField)
	if !gjson.ValidBytes(payload) || !id.Exists() || strings.TrimSpace(id.String()) == "" {
		return IndexResult{}, &IndexError{
			Status:  status,
			Message: fmt.Sprintf("%s: missing %q in response", ErrContractViolation, c.cfg.IDField),
			Err:     ErrContractViolation,
		}
	}

	span.SetAttributes(attribute.String("document.id", id.String()))
	return IndexResult{
		DocumentID: strings.TrimSpace(id.String()),
		Raw:        json.RawMessage(payload),
	}, nil
}

// Query asks a question about an indexed document and returns the normalized
// answer text.
func (c *Client) Query(ctx context.Context, documentID, question string) (answer string, err error) {
	ctx, span := otel.Tracer("indexer/Client").Start(ctx, "Query",
		trace.WithAttributes(attribute.String("document.id", documentID)),
	)
	defer func() { finishSpan(span, err) }()
	defer observe(opQuery, time.Now(), &err)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	form := url.Values{}
	form.Set(c.cfg.IDField, documentID)
	form.Set("question", question)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.cfg.QueryPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &QueryError{Message: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	status, payload, err := c.do(req, c.cfg.QueryTimeout)
	if err != nil {
		return "", &QueryError{Status: status, Message: err.Error(), Err: err}
	}
	if status < 200 || status > 299 {
		msg := upstreamMessage(payload, status)
		return "", &QueryError{Status: status, Message: msg, Err: errors.New(msg)}
	}
	return Normalize(payload), nil
}

// do executes req and reads a bounded body. Deadline errors are reworded so
// the caller sees which budget ran out. The current trace context travels
// with the request.
func (c *Client) do(req *http.Request, budget time.Duration) (int, []byte, error) {
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, nil, fmt.Errorf("indexer did not respond within %s: %w", budget, err)
		}
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read indexer response: %w", err)
	}
	return resp.StatusCode, payload, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// multipartPDF encodes file as a single "file" part typed application/pdf.
// The encoder writes into a pipe from its own goroutine; it stops when the
// file is exhausted or when the transport closes the returned reader.
func multipartPDF(file io.Reader, filename string) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)

	go func() {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
		h.Set("Content-Type", "application/pdf")

		part, err := w.CreatePart(h)
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = w.Close()
		}
		_ = pw.CloseWithError(err)
	}()
	return pr, w.FormDataContentType()
}

// upstreamMessage pulls the service's own error text out of a failure body,
// checking detail, error and message in that order. Plain-text bodies are used
// verbatim; an empty body falls back to the status line.
func upstreamMessage(body []byte, status int) string {
	if gjson.ValidBytes(body) {
		for _, key := range []string{"detail", "error", "message"} {
			if v := gjson.GetBytes(body, key); present(v) {
				if s := strings.TrimSpace(text(v)); s != "" {
					return s
				}
			}
		}
	} else if s := strings.TrimSpace(string(body)); s != "" {
		if len(s) > 512 {
			s = s[:512] + "…"
		}
		return s
	}
	return fmt.Sprintf("indexer returned %d %s", status, http.StatusText(status))
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
