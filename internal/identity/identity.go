// Package identity maps team member emails to the user IDs the app signs
// users in with.
package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/seatwise/seatctl/internal/model"
)

// Resolver returns the user ID for email, or "" when the email is unknown.
type Resolver interface {
	UIDForEmail(ctx context.Context, email string) (string, error)
}

// Directory resolves against user documents, whose IDs are the auth UIDs.
type Directory map[string]model.User

func NewDirectory(users []model.User) Directory {
	snap := model.Snapshot{Users: users}
	return Directory(snap.UsersByEmail())
}

func (d Directory) UIDForEmail(_ context.Context, email string) (string, error) {
	return d[model.NormalizeEmail(email)].ID, nil
}

// userLookup is the part of the Firebase auth client we use.
type userLookup interface {
	GetUserByEmail(ctx context.Context, email string) (*auth.UserRecord, error)
}

// FirebaseAuth resolves against Firebase Authentication.
type FirebaseAuth struct {
	client userLookup
}

func NewFirebaseAuth(ctx context.Context, projectID, credentialsFile string) (*FirebaseAuth, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to init firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init firebase auth: %w", err)
	}
	return &FirebaseAuth{client: client}, nil
}

func (f *FirebaseAuth) UIDForEmail(ctx context.Context, email string) (string, error) {
	rec, err := f.client.GetUserByEmail(ctx, email)
	if auth.IsUserNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("auth lookup %s: %w", email, err)
	}
	return rec.UID, nil
}

// Chain asks each resolver in turn and returns the first non-empty answer.
type Chain []Resolver

func (c Chain) UIDForEmail(ctx context.Context, email string) (string, error) {
	for _, r := range c {
		uid, err := r.UIDForEmail(ctx, email)
		if err != nil {
			return "", err
		}
		if uid != "" {
			return uid, nil
		}
	}
	return "", nil
}

const resolveConcurrency = 8

// ResolveAll resolves emails concurrently. Unknown emails are absent from
// the result.
func ResolveAll(ctx context.Context, r Resolver, emails []string) (map[string]string, error) {
	uniq := make(map[string]bool, len(emails))
	for _, e := range emails {
		if e = model.NormalizeEmail(e); e != "" {
			uniq[e] = true
		}
	}
	sorted := make([]string, 0, len(uniq))
	for e := range uniq {
		sorted = append(sorted, e)
	}
	sort.Strings(sorted)

	var mu sync.Mutex
	out := make(map[string]string, len(sorted))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for _, email := range sorted {
		g.Go(func() error {
			uid, err := r.UIDForEmail(gctx, email)
			if err != nil {
				return err
			}
			if uid != "" {
				mu.Lock()
				out[email] = uid
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
