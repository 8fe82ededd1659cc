// Package processor drives one conference: key decoding, provider lookup,
// reduction to a normalized invoice and persistence of the confirmed rows.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rezonia/nfe-conferencia/internal/accesskey"
	"github.com/rezonia/nfe-conferencia/internal/cache"
	"github.com/rezonia/nfe-conferencia/internal/format"
	"github.com/rezonia/nfe-conferencia/internal/meudanfe"
	"github.com/rezonia/nfe-conferencia/internal/model"
	"github.com/rezonia/nfe-conferencia/internal/normalizer"
	xmlparser "github.com/rezonia/nfe-conferencia/internal/parser/xml"
	"github.com/rezonia/nfe-conferencia/internal/report"
	"github.com/rezonia/nfe-conferencia/internal/signature"
	"github.com/rezonia/nfe-conferencia/internal/store"
)

// Method indicates how the line items were obtained
type Method string

const (
	MethodXML  Method = "xml"
	MethodJSON Method = "json"
	MethodNone Method = "none"
)

// Errors returned by Save and History
var (
	ErrNoInvoice        = errors.New("no queried invoice to save")
	ErrLookupFailed     = errors.New("lookup failed, nothing to save")
	ErrUnknownOperation = errors.New("unknown operation")
	ErrNoStore          = errors.New("no store configured")
)

// Lookuper performs the provider lookup
type Lookuper interface {
	Lookup(ctx context.Context, key string, cfg meudanfe.Config) *meudanfe.Result
}

// Cache keeps successful lookups
type Cache interface {
	GetLookup(ctx context.Context, accessKey string) (*cache.Entry, error)
	SetLookup(ctx context.Context, accessKey string, e *cache.Entry) error
}

// Verifier inspects the signature of fetched XML
type Verifier interface {
	Verify(data []byte, accessKey string) (*signature.VerificationResult, error)
}

// Result contains the outcome of a query
type Result struct {
	Header    model.InvoiceHeader           `json:"header"`
	Items     []model.LineItem              `json:"items"`
	Method    Method                        `json:"method"`
	Cached    bool                          `json:"cached,omitempty"`
	Warnings  []string                      `json:"warnings,omitempty"`
	Trace     []meudanfe.TraceEntry         `json:"trace,omitempty"`
	Signature *signature.VerificationResult `json:"signature,omitempty"`
	Error     error                         `json:"-"`
}

// Queried reports whether the result carries a decoded invoice that can be saved.
// A failed lookup is never saveable: its only item is a placeholder.
func (r *Result) Queried() bool {
	return r != nil && r.Error == nil && r.Header.AccessKey != "" && len(r.Items) > 0
}

// History is a filtered listing of a polo's rows. Stats cover all rows.
type History struct {
	Rows       []model.Row  `json:"rows"`
	Stats      report.Stats `json:"stats"`
	Operations []string     `json:"operations"`
}

// Pipeline orchestrates the conference flow
type Pipeline struct {
	lookup   Lookuper
	cache    Cache
	store    store.Store
	verifier Verifier
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures the pipeline
type Option func(*Pipeline)

// WithLookup sets the provider client
func WithLookup(l Lookuper) Option {
	return func(p *Pipeline) {
		p.lookup = l
	}
}

// WithCache enables the lookup cache
func WithCache(c Cache) Option {
	return func(p *Pipeline) {
		p.cache = c
	}
}

// WithStore sets the row store
func WithStore(s store.Store) Option {
	return func(p *Pipeline) {
		p.store = s
	}
}

// WithVerifier enables signature inspection of fetched XML
func WithVerifier(v Verifier) Option {
	return func(p *Pipeline) {
		p.verifier = v
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithClock sets the time source used for conference dates
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// NewPipeline creates a new pipeline
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.lookup == nil {
		p.lookup = meudanfe.NewClient(meudanfe.WithLogger(p.logger))
	}
	return p
}

// Query decodes the key and looks it up at the provider.
// Input errors end the query before any remote call. Lookup failures keep the
// decoded header and yield one placeholder item.
func (p *Pipeline) Query(ctx context.Context, sess model.Session, cfg meudanfe.Config, rawKey string) *Result {
	key := accesskey.Clean(rawKey)
	if err := accesskey.Validate(key); err != nil {
		return &Result{Method: MethodNone, Error: err}
	}

	header := accesskey.Decode(key)
	log := p.logger.With(zap.String("key", key), zap.String("polo", sess.Polo), zap.String("operator", sess.Operator))

	if res := p.fromCache(ctx, key, log); res != nil {
		return res
	}

	lr := p.lookup.Lookup(ctx, key, cfg)
	res := &Result{Header: header, Trace: lr.Trace}

	if !lr.Success() {
		log.Warn("lookup failed", zap.String("kind", string(lr.Err.Kind)), zap.String("message", lr.Err.Message))
		res.Header.Status = model.StatusFailed
		res.Items = []model.LineItem{model.PlaceholderItem(model.QueryFailedLabel + ": " + lr.Err.Message)}
		res.Method = MethodNone
		res.Error = lr.Err
		return res
	}

	p.reduce(res, key, lr)
	log.Info("lookup reduced",
		zap.String("method", string(res.Method)),
		zap.Int("items", len(res.Items)),
		zap.Int("warnings", len(res.Warnings)),
	)

	if p.cache != nil {
		entry := &cache.Entry{
			Header:   res.Header,
			Items:    res.Items,
			Method:   string(res.Method),
			Warnings: res.Warnings,
			StoredAt: p.now(),
		}
		if err := p.cache.SetLookup(ctx, key, entry); err != nil {
			log.Warn("cache write failed", zap.Error(err))
		}
	}
	return res
}

func (p *Pipeline) fromCache(ctx context.Context, key string, log *zap.Logger) *Result {
	if p.cache == nil {
		return nil
	}
	entry, err := p.cache.GetLookup(ctx, key)
	if err != nil {
		log.Warn("cache read failed", zap.Error(err))
		return nil
	}
	if entry == nil || len(entry.Items) == 0 {
		return nil
	}
	log.Debug("lookup served from cache", zap.Time("stored_at", entry.StoredAt))
	return &Result{
		Header:   entry.Header,
		Items:    entry.Items,
		Method:   Method(entry.Method),
		Cached:   true,
		Warnings: entry.Warnings,
	}
}

// reduce turns a successful lookup into header and items.
// Parsed XML wins; otherwise the provider JSON is normalized.
func (p *Pipeline) reduce(res *Result, key string, lr *meudanfe.Result) {
	res.Header.Status = model.StatusQueried

	doc := lr.XML
	if doc != nil && doc.ParseError != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("xml: %v", doc.ParseError))
	}

	if doc.Parsed() && doc.Invoice.Empty() {
		res.Warnings = append(res.Warnings, "xml: document has no infNFe")
	}

	if doc.Parsed() && !doc.Invoice.Empty() {
		res.Header.Merge(doc.Invoice)
		res.Header.Status = model.StatusXMLParsed
		p.verify(res, []byte(doc.Raw), key)

		if len(doc.Invoice.Items) > 0 {
			res.Items = doc.Invoice.Items
			res.Method = MethodXML
			return
		}
		res.Warnings = append(res.Warnings, "xml: document has no det/prod items")
	}

	res.Items = normalizer.Normalize(lr.Payload)
	res.Method = MethodJSON
}

func (p *Pipeline) verify(res *Result, data []byte, key string) {
	if p.verifier == nil {
		return
	}
	vr, err := p.verifier.Verify(data, key)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("assinatura: %v", err))
		return
	}
	res.Signature = vr
	res.Warnings = append(res.Warnings, vr.Notes()...)
}

// ParseDocument reduces an uploaded NFe XML or provider JSON document without a remote call
func (p *Pipeline) ParseDocument(_ context.Context, data []byte) *Result {
	switch format.DetectFormat(data) {
	case format.FormatXML:
		inv, err := xmlparser.ParseBytes(data)
		if err != nil {
			return &Result{Method: MethodNone, Error: err}
		}
		res := &Result{Method: MethodXML}
		if accesskey.Validate(inv.AccessKey) == nil {
			res.Header = accesskey.Decode(inv.AccessKey)
		} else {
			res.Warnings = append(res.Warnings, "xml: infNFe Id carries no valid access key")
		}
		res.Header.Merge(inv)
		res.Header.Status = model.StatusXMLParsed
		p.verify(res, data, inv.AccessKey)
		res.Items = normalizer.Degrade(inv.Items, nil)
		return res

	case format.FormatJSON:
		return &Result{
			Method: MethodJSON,
			Items:  normalizer.Normalize(model.NewProviderPayload(data)),
		}

	default:
		return &Result{
			Method: MethodNone,
			Error:  model.NewParseError("document", "unsupported format: expected NFe XML or JSON", nil),
		}
	}
}

// Save expands the result into one row per item and appends them to the polo table.
// The conference id is generated when conf.ID is empty.
func (p *Pipeline) Save(ctx context.Context, sess model.Session, res *Result, conf model.Conference) ([]model.Row, error) {
	if p.store == nil {
		return nil, ErrNoStore
	}
	if res != nil && res.Error != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, res.Error)
	}
	if !res.Queried() {
		return nil, ErrNoInvoice
	}
	if !knownOperation(conf.Operation) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, conf.Operation)
	}
	if conf.ID == "" {
		conf.ID = uuid.NewString()
	}

	rows := model.BuildRows(sess, res.Header, res.Items, conf, p.now())
	if err := p.store.Append(ctx, sess.Polo, rows); err != nil {
		return nil, fmt.Errorf("save conference %s: %w", conf.ID, err)
	}
	p.logger.Info("conference saved",
		zap.String("id", conf.ID),
		zap.String("key", res.Header.AccessKey),
		zap.String("polo", sess.Polo),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

// History loads the rows of a polo and applies the filter
func (p *Pipeline) History(ctx context.Context, polo string, filter report.Filter) (*History, error) {
	if p.store == nil {
		return nil, ErrNoStore
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	rows, err := p.store.LoadAll(ctx, polo)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", polo, err)
	}
	return &History{
		Rows:       filter.Apply(rows),
		Stats:      report.Summarize(rows),
		Operations: report.Operations(rows),
	}, nil
}

func knownOperation(op string) bool {
	for _, known := range model.Operations {
		if op == known {
			return true
		}
	}
	return false
}
