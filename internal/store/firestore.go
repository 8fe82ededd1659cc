package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/rezonia/nfe-conferencia/internal/model"
)

// Firestore stores rows as documents of one collection.
// Document ids sort in append order.
type Firestore struct {
	client *firestore.Client
	rows   *firestore.CollectionRef
	now    func() time.Time
}

// NewFirestore opens a client for projectID. An empty databaseID selects the default database.
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("store: firestore project id is required")
	}

	var (
		client *firestore.Client
		err    error
	)
	if databaseID == "" {
		client, err = firestore.NewClient(ctx, projectID)
	} else {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: firestore client: %w", err)
	}
	return NewFirestoreWithClient(client), nil
}

// NewFirestoreWithClient wraps an existing client
func NewFirestoreWithClient(client *firestore.Client) *Firestore {
	return &Firestore{
		client: client,
		rows:   client.Collection(rowsCollection),
		now:    time.Now,
	}
}

// Append writes rows through a bulk writer and waits for all of them
func (f *Firestore) Append(ctx context.Context, polo string, rows []model.Row) error {
	if polo == "" {
		return ErrNoPolo
	}
	if len(rows) == 0 {
		return nil
	}

	stamp := f.now().UnixNano()
	bw := f.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(rows))
	for i, r := range rows {
		r.Polo = polo
		doc := f.rows.Doc(fmt.Sprintf("%019d-%04d", stamp, i))
		job, err := bw.Create(doc, r)
		if err != nil {
			bw.End()
			return fmt.Errorf("store: firestore enqueue: %w", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("store: firestore write: %w", err)
		}
	}
	return nil
}

// LoadAll returns the rows of polo in document id order
func (f *Firestore) LoadAll(ctx context.Context, polo string) ([]model.Row, error) {
	if polo == "" {
		return nil, ErrNoPolo
	}

	iter := f.rows.Where("polo", "==", polo).Documents(ctx)
	defer iter.Stop()

	type keyed struct {
		id  string
		row model.Row
	}
	var docs []keyed
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("store: firestore query: %w", err)
		}
		var row model.Row
		if err := doc.DataTo(&row); err != nil {
			return nil, fmt.Errorf("store: firestore decode %s: %w", doc.Ref.ID, err)
		}
		docs = append(docs, keyed{id: doc.Ref.ID, row: row})
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].id < docs[j].id })
	rows := make([]model.Row, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, d.row)
	}
	return rows, nil
}

// Close releases the client
func (f *Firestore) Close() error {
	return f.client.Close()
}
