package alerting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultwatch/faultwatch/internal/conf"
	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
	"github.com/faultwatch/faultwatch/internal/datastore/v2/repository"
	"github.com/faultwatch/faultwatch/internal/errors"
	"github.com/faultwatch/faultwatch/internal/faults"
)

// fakeDirectory is an in-memory DirectoryRepository.
type fakeDirectory struct {
	sysContacts map[uint]string
	owners      []entities.User
	roleUsers   map[string][]entities.User
	err         error

	ownedQueries []repository.Owned
	roleQueries  [][]string
}

func (f *fakeDirectory) SysContact(_ context.Context, deviceID uint) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	c, ok := f.sysContacts[deviceID]
	if !ok {
		return "", repository.ErrDeviceNotFound
	}
	return c, nil
}

func (f *fakeDirectory) Owners(_ context.Context, owned repository.Owned) ([]entities.User, error) {
	f.ownedQueries = append(f.ownedQueries, owned)
	if f.err != nil {
		return nil, f.err
	}
	return f.owners, nil
}

func (f *fakeDirectory) UsersWithRoles(_ context.Context, roles ...string) ([]entities.User, error) {
	f.roleQueries = append(f.roleQueries, roles)
	if f.err != nil {
		return nil, f.err
	}
	var users []entities.User
	for _, role := range roles {
		users = append(users, f.roleUsers[role]...)
	}
	return users, nil
}

var deviceRows = faults.Set{
	faults.RowOf("device_id", 1, "port_id", 10),
	faults.RowOf("device_id", 2, "port_id", 0, "bill_id", 5),
	faults.RowOf("device_id", 1, "port_id", 11),
}

func TestContactResolver_EmptyRows(t *testing.T) {
	dir := &fakeDirectory{}
	r := NewContactResolver(dir, conf.AlertSettings{SysContact: true, DefaultMail: "noc@example.com", DefaultIfNone: true}, testLogger())

	got, err := r.Resolve(t.Context(), faults.Set{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestContactResolver_DefaultOnly(t *testing.T) {
	dir := &fakeDirectory{sysContacts: map[uint]string{1: "ops@example.com"}}

	r := NewContactResolver(dir, conf.AlertSettings{DefaultOnly: true, SysContact: true, DefaultMail: "noc@example.com"}, testLogger())
	got, err := r.Resolve(t.Context(), deviceRows)
	require.NoError(t, err)
	assert.Equal(t, entities.Contacts{"noc@example.com": ""}, got)

	r = NewContactResolver(dir, conf.AlertSettings{DefaultOnly: true, SysContact: true}, testLogger())
	got, err = r.Resolve(t.Context(), deviceRows)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestContactResolver_SysContact(t *testing.T) {
	dir := &fakeDirectory{sysContacts: map[uint]string{
		1: "ops@example.com, net@example.com\tnot-an-address",
		2: "Jane Doe <jane@example.com>",
	}}
	r := NewContactResolver(dir, conf.AlertSettings{SysContact: true}, testLogger())

	got, err := r.Resolve(t.Context(), deviceRows)
	require.NoError(t, err)
	assert.Equal(t, entities.Contacts{"ops@example.com": "", "net@example.com": ""}, got)
}

func TestContactResolver_UnknownDeviceIsSkipped(t *testing.T) {
	dir := &fakeDirectory{sysContacts: map[uint]string{2: "two@example.com"}}
	r := NewContactResolver(dir, conf.AlertSettings{SysContact: true}, testLogger())

	got, err := r.Resolve(t.Context(), deviceRows)
	require.NoError(t, err)
	assert.Equal(t, entities.Contacts{"two@example.com": ""}, got)
}

func TestContactResolver_OwnersAndRoles(t *testing.T) {
	dir := &fakeDirectory{
		sysContacts: map[uint]string{1: "alice@example.com", 2: ""},
		owners: []entities.User{
			{UserID: 1, Username: "alice", Realname: "Alice Owner", Email: "alice@example.com"},
			{UserID: 2, Username: "bob", Realname: "Bob", Email: "bob@example.com"},
		},
		roleUsers: map[string][]entities.User{
			entities.RoleAdmin:      {{UserID: 3, Realname: "Admin", Email: "admin@example.com"}, {UserID: 2, Realname: "Robert", Email: "bob@example.com"}},
			entities.RoleGlobalRead: {{UserID: 4, Realname: "Reader", Email: "reader@example.com"}},
		},
	}
	r := NewContactResolver(dir, conf.AlertSettings{SysContact: true, Users: true, Globals: true, Admins: true}, testLogger())

	got, err := r.Resolve(t.Context(), deviceRows)
	require.NoError(t, err)
	assert.Equal(t, entities.Contacts{
		"alice@example.com":  "",
		"bob@example.com":    "Bob",
		"admin@example.com":  "Admin",
		"reader@example.com": "Reader",
	}, got, "the first display name seen for an address wins")

	require.Len(t, dir.ownedQueries, 1)
	assert.Equal(t, repository.Owned{
		DeviceIDs: []uint{1, 2, 1},
		PortIDs:   []uint{10, 11},
		BillIDs:   []uint{5},
	}, dir.ownedQueries[0])
	require.Len(t, dir.roleQueries, 1)
	assert.Equal(t, []string{entities.RoleAdmin, entities.RoleGlobalRead}, dir.roleQueries[0])
}

func TestContactResolver_AdminsOnly(t *testing.T) {
	dir := &fakeDirectory{roleUsers: map[string][]entities.User{
		entities.RoleAdmin: {{Realname: "Admin", Email: "admin@example.com"}},
	}}
	r := NewContactResolver(dir, conf.AlertSettings{Admins: true}, testLogger())

	got, err := r.Resolve(t.Context(), deviceRows)
	require.NoError(t, err)
	assert.Equal(t, entities.Contacts{"admin@example.com": "Admin"}, got)
	assert.Equal(t, [][]string{{entities.RoleAdmin}}, dir.roleQueries)
}

func TestContactResolver_DefaultPolicies(t *testing.T) {
	tests := []struct {
		name     string
		contacts map[uint]string
		policy   conf.AlertSettings
		want     entities.Contacts
	}{
		{
			name:     "default copy",
			contacts: map[uint]string{1: "ops@example.com"},
			policy:   conf.AlertSettings{SysContact: true, DefaultMail: "noc@example.com", DefaultCopy: true},
			want:     entities.Contacts{"ops@example.com": "", "noc@example.com": ""},
		},
		{
			name:     "default if none",
			contacts: map[uint]string{1: "broken"},
			policy:   conf.AlertSettings{SysContact: true, DefaultMail: "noc@example.com", DefaultIfNone: true},
			want:     entities.Contacts{"noc@example.com": ""},
		},
		{
			name:     "default if none with contacts found",
			contacts: map[uint]string{1: "ops@example.com"},
			policy:   conf.AlertSettings{SysContact: true, DefaultMail: "noc@example.com", DefaultIfNone: true},
			want:     entities.Contacts{"ops@example.com": ""},
		},
		{
			name:     "no default mail configured",
			contacts: map[uint]string{1: "broken"},
			policy:   conf.AlertSettings{SysContact: true, DefaultCopy: true, DefaultIfNone: true},
			want:     entities.Contacts{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewContactResolver(&fakeDirectory{sysContacts: tt.contacts}, tt.policy, testLogger())
			got, err := r.Resolve(t.Context(), faults.Set{faults.RowOf("device_id", 1)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContactResolver_DirectoryError(t *testing.T) {
	dir := &fakeDirectory{err: errors.NewStd("database is locked")}
	r := NewContactResolver(dir, conf.AlertSettings{Users: true}, testLogger())

	_, err := r.Resolve(t.Context(), deviceRows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Equal(t, errors.CategoryDatabase, errors.CategoryOf(err))
}

func TestValidAddress(t *testing.T) {
	assert.True(t, validAddress("a.b+tag@example.co.uk"))
	assert.False(t, validAddress("Jane <jane@example.com>"))
	assert.False(t, validAddress("<jane@example.com>"))
	assert.False(t, validAddress("no-at-sign"))
	assert.False(t, validAddress(""))
}
