// Package auth gates the conference tool to known operators per polo.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// AnyPolo grants access to every polo
const AnyPolo = "*"

// ErrUnknownOperator is returned by directories when the username is not registered
var ErrUnknownOperator = errors.New("operador não encontrado")

// Operator is a registered user of the tool
type Operator struct {
	Username     string   `firestore:"username"`
	PasswordHash string   `firestore:"passwordHash"`
	Polos        []string `firestore:"polos"`
}

// Allows reports whether the operator may work for polo
func (o Operator) Allows(polo string) bool {
	for _, p := range o.Polos {
		if p == AnyPolo || strings.EqualFold(p, polo) {
			return true
		}
	}
	return false
}

// Directory finds operators by username
type Directory interface {
	Find(ctx context.Context, username string) (*Operator, error)
}

// StaticDirectory is an in-memory operator list
type StaticDirectory map[string]Operator

// Find looks the username up
func (d StaticDirectory) Find(_ context.Context, username string) (*Operator, error) {
	op, ok := d[username]
	if !ok {
		return nil, ErrUnknownOperator
	}
	return &op, nil
}

// ParseOperators reads a list like "ana:<bcrypt hash>:Recife|Natal,bruno:<bcrypt hash>:*".
// Polos are separated by '|'; "*" grants every polo.
func ParseOperators(list string) (StaticDirectory, error) {
	dir := make(StaticDirectory)
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, fmt.Errorf("invalid operator entry %q: expected user:hash:polos", entry)
		}
		if _, dup := dir[parts[0]]; dup {
			return nil, fmt.Errorf("operator %q listed twice", parts[0])
		}
		var polos []string
		for _, p := range strings.Split(parts[2], "|") {
			if p = strings.TrimSpace(p); p != "" {
				polos = append(polos, p)
			}
		}
		dir[parts[0]] = Operator{Username: parts[0], PasswordHash: parts[1], Polos: polos}
	}
	return dir, nil
}

// FirestoreDirectory reads operators from the "operadores" collection
type FirestoreDirectory struct {
	db *firestore.Client
}

// NewFirestoreDirectory wraps a Firestore client
func NewFirestoreDirectory(db *firestore.Client) *FirestoreDirectory {
	return &FirestoreDirectory{db: db}
}

// Find queries the operator document by username
func (d *FirestoreDirectory) Find(ctx context.Context, username string) (*Operator, error) {
	query := d.db.Collection("operadores").Where("username", "==", username).Limit(1).Documents(ctx)
	defer query.Stop()

	doc, err := query.Next()
	if err == iterator.Done {
		return nil, ErrUnknownOperator
	}
	if err != nil {
		return nil, fmt.Errorf("query operator: %w", err)
	}

	var op Operator
	if err := doc.DataTo(&op); err != nil {
		return nil, fmt.Errorf("decode operator: %w", err)
	}
	return &op, nil
}
