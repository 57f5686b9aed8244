package refdata

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"tradebook-core/pkg/cache"
	"tradebook-core/pkg/db"
)

// Lookup is a reference that has not been resolved yet: a name, an id, or neither.
// A non-empty name wins over the id.
type Lookup struct {
	ID   int64
	Name string
}

// ByName builds a name lookup.
func ByName(name string) Lookup { return Lookup{Name: name} }

// ByID builds an id lookup.
func ByID(id int64) Lookup { return Lookup{ID: id} }

// IsZero reports whether neither a name nor an id was supplied.
func (l Lookup) IsZero() bool { return strings.TrimSpace(l.Name) == "" && l.ID == 0 }

// Source is the store surface the resolver reads from.
type Source interface {
	FindRefByName(ctx context.Context, kind, name string) (*db.RefEntity, error)
	FindRefByID(ctx context.Context, kind string, id int64) (*db.RefEntity, error)
	UserByLogin(ctx context.Context, loginID string) (*db.User, error)
	UserByID(ctx context.Context, id int64) (*db.User, error)
	UserByFirstName(ctx context.Context, firstName string) (*db.User, error)
}

// Resolver turns Lookups into stored entities, caching hits.
// Misses are not cached so rows added later become visible.
type Resolver struct {
	src   Source
	refs  *cache.Sharded[db.RefEntity]
	users *cache.Sharded[db.User]
}

// NewResolver builds a resolver; ttl bounds how long cached rows are trusted.
func NewResolver(src Source, ttl time.Duration) *Resolver {
	return &Resolver{
		src:   src,
		refs:  cache.NewSharded[db.RefEntity](ttl),
		users: cache.NewSharded[db.User](ttl),
	}
}

// Invalidate drops every cached row.
func (r *Resolver) Invalidate() {
	r.refs.Clear()
	r.users.Clear()
}

// Resolve finds the reference row for kind, or nil when the lookup is empty
// or matches nothing.
func (r *Resolver) Resolve(ctx context.Context, kind string, l Lookup) (*db.RefEntity, error) {
	name := strings.TrimSpace(l.Name)
	switch {
	case name != "":
		return r.cachedRef(kind+"|n|"+strings.ToUpper(name), func() (*db.RefEntity, error) {
			return r.src.FindRefByName(ctx, kind, name)
		})
	case l.ID != 0:
		return r.cachedRef(kind+"|i|"+strconv.FormatInt(l.ID, 10), func() (*db.RefEntity, error) {
			return r.src.FindRefByID(ctx, kind, l.ID)
		})
	default:
		return nil, nil
	}
}

// ResolveRef is Resolve flattened to a db.Ref; unresolved lookups give the zero Ref.
func (r *Resolver) ResolveRef(ctx context.Context, kind string, l Lookup) (db.Ref, error) {
	e, err := r.Resolve(ctx, kind, l)
	if err != nil || e == nil {
		return db.Ref{}, err
	}
	return db.Ref{ID: e.ID, Name: e.Name}, nil
}

// ResolveName returns the canonical name for a lookup, or "" when unresolved.
func (r *Resolver) ResolveName(ctx context.Context, kind string, l Lookup) (string, error) {
	ref, err := r.ResolveRef(ctx, kind, l)
	return ref.Name, err
}

// ResolveUser finds a user. Names are tried as "First [Last]" by first name,
// then as a login id.
func (r *Resolver) ResolveUser(ctx context.Context, l Lookup) (*db.User, error) {
	name := strings.TrimSpace(l.Name)
	switch {
	case name != "":
		first := strings.Fields(name)[0]
		u, err := r.cachedUser("f|"+strings.ToUpper(first), func() (*db.User, error) {
			return r.src.UserByFirstName(ctx, first)
		})
		if err != nil || u != nil {
			return u, err
		}
		return r.UserByLogin(ctx, name)
	case l.ID != 0:
		return r.cachedUser("i|"+strconv.FormatInt(l.ID, 10), func() (*db.User, error) {
			return r.src.UserByID(ctx, l.ID)
		})
	default:
		return nil, nil
	}
}

// UserByLogin finds a user by login id (case-insensitive).
func (r *Resolver) UserByLogin(ctx context.Context, loginID string) (*db.User, error) {
	login := strings.ToLower(strings.TrimSpace(loginID))
	if login == "" {
		return nil, nil
	}
	return r.cachedUser("l|"+login, func() (*db.User, error) {
		return r.src.UserByLogin(ctx, login)
	})
}

var errMiss = errors.New("refdata: no match")

func (r *Resolver) cachedRef(key string, load func() (*db.RefEntity, error)) (*db.RefEntity, error) {
	e, err := r.refs.GetOrLoad(key, func() (db.RefEntity, error) {
		found, err := load()
		if err != nil {
			return db.RefEntity{}, err
		}
		if found == nil {
			return db.RefEntity{}, errMiss
		}
		return *found, nil
	})
	if errors.Is(err, errMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Resolver) cachedUser(key string, load func() (*db.User, error)) (*db.User, error) {
	u, err := r.users.GetOrLoad(key, func() (db.User, error) {
		found, err := load()
		if err != nil {
			return db.User{}, err
		}
		if found == nil {
			return db.User{}, errMiss
		}
		return *found, nil
	})
	if errors.Is(err, errMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
