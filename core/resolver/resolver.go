// Package resolver hides backend multiplicity behind one call per logical operation: every
// candidate URL is tried in order until one returns a structurally valid response.
package resolver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/ulearn/core"
)

const maxBodySize = 4 << 20

// Failure kinds of a single candidate attempt.
const (
	KindTransport = "transport"
	KindStatus    = "status"
	KindShape     = "shape"
)

type (
	// Extractor decodes the payload of a response body.
	// ok is false when the body does not match any known shape of the operation.
	Extractor[T any] func(body []byte) (payload T, ok bool)

	// Call describes one logical operation against a list of candidate URLs.
	Call struct {
		Op     string // name used in logs, e.g. "list courses"
		Method string // defaults to GET
		URLs   []string
		Body   []byte
		// Decorate merges identity and per-operation context headers into every attempt.
		Decorate func(req *http.Request)
	}

	// AttemptError describes why a candidate was skipped.
	AttemptError struct {
		URL  string
		Kind string
		Err  error
	}

	Resolver struct {
		client  *http.Client
		timeout time.Duration
		logger  core.Logger
	}
)

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s error on %s: %v", e.Kind, e.URL, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// New returns a Resolver issuing requests with `client` under a per-call `timeout`.
func New(client *http.Client, timeout time.Duration, logger core.Logger) (*Resolver, error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(client, "client"),
		vala.IsNotNil(logger, "logger"),
		vala.GreaterThan(int(timeout), 0, "timeout"),
	).Check(); err != nil {
		return nil, core.NewArgumentError(err.Error())
	}
	return &Resolver{client: client, timeout: timeout, logger: logger}, nil
}

// Resolve tries every candidate of `call` in order and returns the payload of the first
// response with a 2xx status that `extract` accepts. When every candidate fails it returns
// the zero value of T and false; candidate failures are logged, never returned.
func Resolve[T any](ctx context.Context, r *Resolver, call Call, extract Extractor[T]) (T, bool) {
	var zero T
	for _, u := range call.URLs {
		if ctx.Err() != nil {
			r.logger.Debug(fmt.Sprintf("%s: cancelled before %s", call.Op, u))
			return zero, false
		}
		payload, err := attempt(ctx, r, call, u, extract)
		if err == nil {
			r.logger.Debug(fmt.Sprintf("%s: resolved by %s", call.Op, u))
			return payload, true
		}
		r.logger.Debug(fmt.Sprintf("%s: %v", call.Op, err))
	}
	r.logger.Warn(fmt.Sprintf("%s: all %d candidates failed", call.Op, len(call.URLs)))
	return zero, false
}

func attempt[T any](ctx context.Context, r *Resolver, call Call, u string, extract Extractor[T]) (T, error) {
	var zero T
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	method := call.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if call.Body != nil {
		body = bytes.NewReader(call.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return zero, &AttemptError{URL: u, Kind: KindTransport, Err: errors.Wrap(err, "creating request")}
	}
	if call.Decorate != nil {
		call.Decorate(req)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return zero, &AttemptError{URL: u, Kind: KindTransport, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return zero, &AttemptError{URL: u, Kind: KindTransport, Err: errors.Wrap(err, "reading body")}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return zero, &AttemptError{URL: u, Kind: KindStatus, Err: errors.Errorf("unexpected status code %d", resp.StatusCode)}
	}

	payload, ok := extract(data)
	if !ok {
		return zero, &AttemptError{URL: u, Kind: KindShape, Err: errors.New(describeBody(resp.Header.Get("Content-Type"), data))}
	}
	return payload, nil
}

// describeBody summarizes an unexpected body. HTML pages (login or error pages served in place
// of JSON) are reduced to their title.
func describeBody(contentType string, data []byte) string {
	if strings.Contains(contentType, "html") || bytes.HasPrefix(bytes.TrimSpace(data), []byte("<")) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
		if err == nil {
			if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
				return fmt.Sprintf("unexpected HTML page %q", title)
			}
		}
		return "unexpected HTML page"
	}
	const max = 120
	snippet := string(data)
	if len(snippet) > max {
		snippet = snippet[:max] + "..."
	}
	return fmt.Sprintf("unexpected response shape: %s", snippet)
}
