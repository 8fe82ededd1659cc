package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"cloud.google.com/go/firestore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rezonia/nfe-conferencia/internal/auth"
	"github.com/rezonia/nfe-conferencia/internal/cache"
	"github.com/rezonia/nfe-conferencia/internal/meudanfe"
	"github.com/rezonia/nfe-conferencia/internal/processor"
	"github.com/rezonia/nfe-conferencia/internal/signature"
	"github.com/rezonia/nfe-conferencia/internal/signature/trust"
	"github.com/rezonia/nfe-conferencia/internal/store"
)

var (
	storeBackend    string
	spreadsheetID   string
	credentialsFile string
	mongoURI        string
	mongoDatabase   string
	firestoreProj   string
	firestoreDB     string
	redisAddr       string
	trustFile       string
	checkOCSP       bool
)

func addStoreFlags(c *cobra.Command) {
	c.Flags().StringVar(&storeBackend, "store", "", "Row store: memory, sheets, mongo, firestore (env: CONFERENCIA_STORE)")
	c.Flags().StringVar(&spreadsheetID, "spreadsheet-id", "", "Google Sheets spreadsheet id (env: SHEETS_SPREADSHEET_ID)")
	c.Flags().StringVar(&credentialsFile, "credentials", "", "Service account JSON file (env: GOOGLE_APPLICATION_CREDENTIALS)")
	c.Flags().StringVar(&mongoURI, "mongo-uri", "", "MongoDB connection URI (env: MONGO_URI)")
	c.Flags().StringVar(&mongoDatabase, "mongo-db", "", "MongoDB database (env: MONGO_DATABASE)")
	c.Flags().StringVar(&firestoreProj, "firestore-project", "", "Firestore project id (env: FIRESTORE_PROJECT)")
	c.Flags().StringVar(&firestoreDB, "firestore-db", "", "Firestore database id (env: FIRESTORE_DATABASE)")
}

func addLookupFlags(c *cobra.Command) {
	c.Flags().StringVar(&redisAddr, "redis", "", "Redis address for the lookup cache (env: REDIS_ADDR)")
	addTrustFlags(c)
}

func addTrustFlags(c *cobra.Command) {
	c.Flags().StringVar(&trustFile, "trust-file", "", "PEM bundle of trusted ICP-Brasil roots (env: NFE_TRUST_FILE)")
	c.Flags().BoolVar(&checkOCSP, "ocsp", false, "Ask the issuer's OCSP responder about signer certificates (needs --trust-file)")
}

func openStore(ctx context.Context) (store.Store, error) {
	cfg := store.Config{
		Backend:           envOr(storeBackend, "CONFERENCIA_STORE"),
		SpreadsheetID:     envOr(spreadsheetID, "SHEETS_SPREADSHEET_ID"),
		CredentialsFile:   envOr(credentialsFile, "GOOGLE_APPLICATION_CREDENTIALS"),
		MongoURI:          envOr(mongoURI, "MONGO_URI"),
		MongoDatabase:     envOr(mongoDatabase, "MONGO_DATABASE"),
		FirestoreProject:  envOr(firestoreProj, "FIRESTORE_PROJECT"),
		FirestoreDatabase: envOr(firestoreDB, "FIRESTORE_DATABASE"),
	}
	printVerbose("Store backend: %q\n", cfg.Backend)
	return store.Open(ctx, cfg)
}

// openCache returns nil when no Redis address is configured
func openCache(ctx context.Context) (*cache.Client, error) {
	addr := envOr(redisAddr, "REDIS_ADDR")
	if addr == "" {
		return nil, nil
	}
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB %q: %w", v, err)
		}
		db = n
	}
	c := cache.New(addr, os.Getenv("REDIS_PASSWORD"), db)
	if err := c.Ping(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	printVerbose("Lookup cache enabled at %s\n", addr)
	return c, nil
}

func newVerifier() (*signature.Verifier, error) {
	path := envOr(trustFile, "NFE_TRUST_FILE")
	if path == "" {
		return signature.NewVerifier(), nil
	}
	ts, err := trust.LoadFile(path)
	if err != nil {
		return nil, err
	}
	opts := []signature.Option{signature.WithTrustStore(ts)}
	if checkOCSP || os.Getenv("NFE_OCSP") == "true" {
		opts = append(opts, signature.WithRevocation(trust.NewRevocationChecker()))
		printVerbose("OCSP revocation check enabled\n")
	}
	return signature.NewVerifier(opts...), nil
}

// stack holds the opened dependencies of a command
type stack struct {
	pipeline *processor.Pipeline
	store    store.Store
	cache    *cache.Client
}

func (s *stack) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			logger.Warn("store close failed", zap.Error(err))
		}
	}
}

// buildStack opens the store, cache and verifier. withStore=false skips the store.
func buildStack(ctx context.Context, withStore bool) (*stack, error) {
	s := &stack{}
	opts := []processor.Option{
		processor.WithLogger(logger),
		processor.WithLookup(meudanfe.NewClient(meudanfe.WithLogger(logger))),
	}

	if withStore {
		st, err := openStore(ctx)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		s.store = st
		opts = append(opts, processor.WithStore(st))
	}

	c, err := openCache(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	if c != nil {
		s.cache = c
		opts = append(opts, processor.WithCache(c))
	}

	v, err := newVerifier()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("load trust store: %w", err)
	}
	opts = append(opts, processor.WithVerifier(v))

	s.pipeline = processor.NewPipeline(opts...)
	return s, nil
}

// newAuth enables login when JWT_SECRET is set. Operators come from
// CONFERENCIA_OPERATORS, or from the Firestore "operadores" collection.
func newAuth(ctx context.Context) (*auth.Service, func(), error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, func() {}, nil
	}

	if list := os.Getenv("CONFERENCIA_OPERATORS"); list != "" {
		dir, err := auth.ParseOperators(list)
		if err != nil {
			return nil, nil, err
		}
		svc, err := auth.NewService(dir, []byte(secret))
		return svc, func() {}, err
	}

	project := envOr(firestoreProj, "FIRESTORE_PROJECT")
	if project == "" {
		return nil, nil, fmt.Errorf("JWT_SECRET is set but no operators are configured (CONFERENCIA_OPERATORS or FIRESTORE_PROJECT)")
	}
	client, err := firestore.NewClient(ctx, project)
	if err != nil {
		return nil, nil, fmt.Errorf("firestore operators: %w", err)
	}
	svc, err := auth.NewService(auth.NewFirestoreDirectory(client), []byte(secret))
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return svc, func() { client.Close() }, nil
}
