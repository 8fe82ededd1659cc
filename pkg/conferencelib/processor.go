package conferencelib

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rezonia/nfe-conferencia/internal/meudanfe"
	"github.com/rezonia/nfe-conferencia/internal/model"
	"github.com/rezonia/nfe-conferencia/internal/processor"
	"github.com/rezonia/nfe-conferencia/internal/signature"
	"github.com/rezonia/nfe-conferencia/internal/store"
)

// Result is the reduced outcome of a lookup or parse
type Result = processor.Result

// Store keeps conference rows per polo
type Store = store.Store

// NewMemoryStore returns an in-process Store
func NewMemoryStore() Store {
	return store.NewMemory()
}

// Options configures a Processor
type Options struct {
	// Provider
	ProviderURL   string // MeuDanfe base URL (env: MEUDANFE_API_URL)
	ProviderToken string // Bearer token (env: MEUDANFE_API_TOKEN)
	HTTPClient    *http.Client

	RegisterTimeout time.Duration
	FetchTimeout    time.Duration

	// Store receives saved conferences. Nil keeps rows in memory.
	Store Store

	// VerifySignatures reports XMLDSig problems as warnings
	VerifySignatures bool

	Logger *zap.Logger
}

// DefaultOptions returns default processor options
func DefaultOptions() Options {
	return Options{
		ProviderURL:      meudanfe.DefaultBaseURL,
		RegisterTimeout:  meudanfe.RegisterTimeout,
		FetchTimeout:     meudanfe.FetchTimeout,
		VerifySignatures: true,
	}
}

// Processor runs lookups, parses and saves through the conference pipeline
type Processor struct {
	pipeline *processor.Pipeline
	provider meudanfe.Config
}

// NewProcessor creates a processor with the given options
func NewProcessor(opts Options) *Processor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOpts := []meudanfe.ClientOption{meudanfe.WithLogger(logger)}
	if opts.RegisterTimeout > 0 && opts.FetchTimeout > 0 {
		clientOpts = append(clientOpts, meudanfe.WithTimeouts(opts.RegisterTimeout, opts.FetchTimeout))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, meudanfe.WithHTTPClient(opts.HTTPClient))
	}

	st := opts.Store
	if st == nil {
		st = store.NewMemory()
	}

	pipelineOpts := []processor.Option{
		processor.WithLookup(meudanfe.NewClient(clientOpts...)),
		processor.WithStore(st),
		processor.WithLogger(logger),
	}
	if opts.VerifySignatures {
		pipelineOpts = append(pipelineOpts, processor.WithVerifier(signature.NewVerifier()))
	}

	url := opts.ProviderURL
	if url == "" {
		url = meudanfe.DefaultBaseURL
	}
	return &Processor{
		pipeline: processor.NewPipeline(pipelineOpts...),
		provider: meudanfe.Config{BaseURL: url, Token: opts.ProviderToken},
	}
}

// NewDefaultProcessor creates a processor with default options
func NewDefaultProcessor() *Processor {
	return NewProcessor(DefaultOptions())
}

// Lookup queries one key at the provider. Result.Error is set on failure.
func (p *Processor) Lookup(ctx context.Context, key string) *Result {
	return p.pipeline.Query(ctx, Session{}, p.provider, key)
}

// LookupBatch queries keys concurrently. Results keep the input order.
func (p *Processor) LookupBatch(ctx context.Context, keys []string) []*Result {
	results := make([]*Result, len(keys))
	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(idx int, k string) {
			defer wg.Done()
			results[idx] = p.Lookup(ctx, k)
		}(i, key)
	}
	wg.Wait()
	return results
}

// Parse reduces an NFe XML or provider JSON document without a remote call
func (p *Processor) Parse(ctx context.Context, r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewParseError("document", "failed to read input", err)
	}
	res := p.pipeline.ParseDocument(ctx, data)
	if res.Error != nil {
		return res, res.Error
	}
	return res, nil
}

// Save records a looked-up invoice as one row per item in the session's polo
func (p *Processor) Save(ctx context.Context, sess Session, res *Result, conf Conference) ([]Row, error) {
	return p.pipeline.Save(ctx, sess, res, conf)
}
