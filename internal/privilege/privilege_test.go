package privilege

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebook-core/pkg/db"
)

type fakeUsers map[string]*db.User

func (f fakeUsers) UserByLogin(_ context.Context, login string) (*db.User, error) {
	if login == "broken" {
		return nil, errors.New("db down")
	}
	return f[strings.ToLower(login)], nil
}

func users() fakeUsers {
	return fakeUsers{
		"alice": {LoginID: "alice", Profile: "TRADER_SALES", Active: true},
		"bob":   {LoginID: "bob", Profile: "mo", Active: true},
		"carol": {LoginID: "carol", Profile: "SUPPORT", Active: true},
		"simon": {LoginID: "simon", Profile: "SUPERUSER", Active: true},
		"adam":  {LoginID: "adam", Profile: "ADMIN", Active: true},
		"erin":  {LoginID: "erin", Profile: "TRADER_SALES", Active: false},
		"nadia": {LoginID: "nadia", Profile: "", Active: true},
	}
}

func TestAuthorizeMatrix(t *testing.T) {
	e := NewEngine(users())
	ctx := context.Background()

	cases := []struct {
		login string
		allow []Operation
	}{
		{"alice", []Operation{Create, Amend, Terminate, Cancel, View}},
		{"bob", []Operation{Amend, View}},
		{"carol", []Operation{View}},
		{"simon", []Operation{Create, Amend, Terminate, Cancel, View}},
		{"adam", nil},
		{"erin", nil},
		{"nadia", nil},
		{"ghost", nil},
	}
	for _, tc := range cases {
		t.Run(tc.login, func(t *testing.T) {
			allowed := map[Operation]bool{}
			for _, op := range tc.allow {
				allowed[op] = true
			}
			for _, op := range allOperations {
				ok, err := e.Authorize(ctx, tc.login, strings.ToLower(string(op)))
				require.NoError(t, err)
				assert.Equal(t, allowed[op], ok, "%s %s", tc.login, op)
			}
		})
	}
}

func TestAuthorizeFailsClosed(t *testing.T) {
	e := NewEngine(users())
	ctx := context.Background()

	ok, err := e.Authorize(ctx, "alice", "DELETE_EVERYTHING")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.Authorize(ctx, "", "VIEW")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.Authorize(ctx, "broken", "VIEW")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestHasAnyRole(t *testing.T) {
	e := NewEngine(users())
	ctx := context.Background()

	ok, err := e.HasAnyRole(ctx, "alice", "trader_sales")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.HasAnyRole(ctx, "bob", ProfileTraderSales, ProfileSuperuser)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.HasAnyRole(ctx, "erin", ProfileTraderSales)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOperationsForProfile(t *testing.T) {
	e := NewEngine(users())
	assert.Equal(t, []Operation{Amend, View}, e.Operations("MO"))
	assert.Empty(t, e.Operations("ADMIN"))
}
