package alerting

import (
	"context"
	"net/mail"
	"strings"
	"unicode"

	"github.com/faultwatch/faultwatch/internal/conf"
	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
	"github.com/faultwatch/faultwatch/internal/datastore/v2/repository"
	"github.com/faultwatch/faultwatch/internal/errors"
	"github.com/faultwatch/faultwatch/internal/faults"
	"github.com/faultwatch/faultwatch/internal/logger"
)

// ContactSource resolves who should hear about a set of fault rows.
type ContactSource interface {
	Resolve(ctx context.Context, rows faults.Set) (entities.Contacts, error)
}

// ContactResolver applies the configured contact policy to fault rows.
type ContactResolver struct {
	dir    repository.DirectoryRepository
	policy conf.AlertSettings
	log    logger.Logger
}

// NewContactResolver creates a ContactResolver.
func NewContactResolver(dir repository.DirectoryRepository, policy conf.AlertSettings, log logger.Logger) *ContactResolver {
	return &ContactResolver{dir: dir, policy: policy, log: log}
}

// contactList keeps candidates in discovery order; the first display name
// seen for an address wins.
type contactList struct {
	order []string
	names map[string]string
}

func (l *contactList) add(address, name string) {
	if address == "" {
		return
	}
	if _, seen := l.names[address]; seen {
		return
	}
	l.order = append(l.order, address)
	l.names[address] = name
}

// Resolve returns address to display name for rows. Empty rows have no
// contacts.
func (r *ContactResolver) Resolve(ctx context.Context, rows faults.Set) (entities.Contacts, error) {
	contacts := entities.Contacts{}
	if len(rows) == 0 {
		return contacts, nil
	}
	if r.policy.DefaultOnly {
		if r.policy.DefaultMail != "" {
			contacts[r.policy.DefaultMail] = ""
		}
		return contacts, nil
	}

	found := &contactList{names: make(map[string]string)}
	if r.policy.SysContact {
		if err := r.addSysContacts(ctx, rows, found); err != nil {
			return nil, err
		}
	}
	if r.policy.Users {
		owners, err := r.dir.Owners(ctx, ownedBy(rows))
		if err != nil {
			return nil, contactError(err)
		}
		for _, u := range owners {
			found.add(u.Email, u.Realname)
		}
	}
	if roles := r.roles(); len(roles) > 0 {
		users, err := r.dir.UsersWithRoles(ctx, roles...)
		if err != nil {
			return nil, contactError(err)
		}
		for _, u := range users {
			found.add(u.Email, u.Realname)
		}
	}

	for _, candidate := range found.order {
		name := found.names[candidate]
		for _, address := range splitAddresses(candidate) {
			if _, seen := contacts[address]; seen || !validAddress(address) {
				continue
			}
			contacts[address] = name
		}
	}

	if def := r.policy.DefaultMail; def != "" {
		if _, ok := contacts[def]; !ok && r.policy.DefaultCopy {
			contacts[def] = ""
		}
		if len(contacts) == 0 && r.policy.DefaultIfNone {
			contacts[def] = ""
		}
	}
	return contacts, nil
}

func (r *ContactResolver) roles() []string {
	switch {
	case r.policy.Globals:
		return []string{entities.RoleAdmin, entities.RoleGlobalRead}
	case r.policy.Admins:
		return []string{entities.RoleAdmin}
	default:
		return nil
	}
}

func (r *ContactResolver) addSysContacts(ctx context.Context, rows faults.Set, found *contactList) error {
	for _, id := range rows.DeviceIDs() {
		if id <= 0 {
			continue
		}
		contact, err := r.dir.SysContact(ctx, uint(id))
		if errors.Is(err, repository.ErrDeviceNotFound) {
			r.log.Debug("fault row references unknown device", logger.Int64("device_id", id))
			continue
		}
		if err != nil {
			return contactError(err)
		}
		found.add(strings.TrimSpace(contact), "")
	}
	return nil
}

// ownedBy collects the positive device, port and bill ids of rows.
func ownedBy(rows faults.Set) repository.Owned {
	var owned repository.Owned
	collect := func(row faults.Row, column string, into *[]uint) {
		if id, ok := row.Int64(column); ok && id > 0 {
			*into = append(*into, uint(id))
		}
	}
	for _, row := range rows {
		collect(row, "device_id", &owned.DeviceIDs)
		collect(row, "port_id", &owned.PortIDs)
		collect(row, "bill_id", &owned.BillIDs)
	}
	return owned
}

// splitAddresses splits a contact string holding several addresses
// separated by commas or whitespace.
func splitAddresses(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// validAddress accepts only a bare RFC 5322 address, not a display-name form.
func validAddress(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func contactError(err error) error {
	return errors.Newf("failed to resolve alert contacts: %w", err).
		Component(componentName).
		Category(errors.CategoryDatabase).
		Build()
}
