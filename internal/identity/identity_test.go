package identity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatwise/seatctl/internal/model"
)

type staticResolver struct {
	uids  map[string]string
	err   error
	calls atomic.Int32
}

func (s *staticResolver) UIDForEmail(_ context.Context, email string) (string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return s.uids[email], nil
}

func TestDirectory(t *testing.T) {
	d := NewDirectory([]model.User{
		{ID: "uid_2", Email: "A@acme.io"},
		{ID: "uid_1", Email: "a@acme.io"},
		{ID: "uid_3", Email: "b@acme.io"},
	})

	uid, err := d.UIDForEmail(context.Background(), " A@ACME.io")
	require.NoError(t, err)
	assert.Equal(t, "uid_1", uid)

	uid, err = d.UIDForEmail(context.Background(), "nobody@acme.io")
	require.NoError(t, err)
	assert.Empty(t, uid)
}

func TestChain(t *testing.T) {
	first := &staticResolver{uids: map[string]string{"a@acme.io": "auth_a"}}
	second := &staticResolver{uids: map[string]string{"a@acme.io": "doc_a", "b@acme.io": "doc_b"}}
	c := Chain{first, second}

	uid, err := c.UIDForEmail(context.Background(), "a@acme.io")
	require.NoError(t, err)
	assert.Equal(t, "auth_a", uid)

	uid, err = c.UIDForEmail(context.Background(), "b@acme.io")
	require.NoError(t, err)
	assert.Equal(t, "doc_b", uid)

	uid, err = c.UIDForEmail(context.Background(), "c@acme.io")
	require.NoError(t, err)
	assert.Empty(t, uid)
}

func TestChainStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	second := &staticResolver{uids: map[string]string{"a@acme.io": "doc_a"}}
	c := Chain{&staticResolver{err: boom}, second}

	_, err := c.UIDForEmail(context.Background(), "a@acme.io")
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, second.calls.Load())
}

func TestResolveAll(t *testing.T) {
	r := &staticResolver{uids: map[string]string{"a@acme.io": "uid_a", "b@acme.io": "uid_b"}}

	got, err := ResolveAll(context.Background(), r, []string{"a@acme.io", " A@acme.io", "b@acme.io", "c@acme.io", ""})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a@acme.io": "uid_a", "b@acme.io": "uid_b"}, got)
	assert.Equal(t, int32(3), r.calls.Load(), "each distinct email is looked up once")
}

func TestResolveAllError(t *testing.T) {
	boom := errors.New("boom")
	_, err := ResolveAll(context.Background(), &staticResolver{err: boom}, []string{"a@acme.io"})
	assert.ErrorIs(t, err, boom)
}

type fakeLookup struct {
	users map[string]string
	err   error
}

func (f fakeLookup) GetUserByEmail(_ context.Context, email string) (*auth.UserRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	uid, ok := f.users[email]
	if !ok {
		return &auth.UserRecord{UserInfo: &auth.UserInfo{}}, nil
	}
	return &auth.UserRecord{UserInfo: &auth.UserInfo{UID: uid, Email: email}}, nil
}

func TestFirebaseAuth(t *testing.T) {
	f := &FirebaseAuth{client: fakeLookup{users: map[string]string{"a@acme.io": "auth_a"}}}

	uid, err := f.UIDForEmail(context.Background(), "a@acme.io")
	require.NoError(t, err)
	assert.Equal(t, "auth_a", uid)

	uid, err = f.UIDForEmail(context.Background(), "b@acme.io")
	require.NoError(t, err)
	assert.Empty(t, uid)
}

func TestFirebaseAuthError(t *testing.T) {
	boom := errors.New("unavailable")
	f := &FirebaseAuth{client: fakeLookup{err: boom}}

	_, err := f.UIDForEmail(context.Background(), "a@acme.io")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "a@acme.io")
}
