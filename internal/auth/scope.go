package auth

import (
	"gorm.io/gorm"

	"github.com/larkin1301/hvcm/internal/store"
)

// ScopeKind tags the variants of DeviceScope.
type ScopeKind int

const (
	// ScopeAllDevices grants every device (admin).
	ScopeAllDevices ScopeKind = iota
	// ScopeOrganisationDevices grants the union of devices assigned to
	// any user in one organisation (account_manager).
	ScopeOrganisationDevices
	// ScopeOwnDevices grants only directly assigned devices (user).
	ScopeOwnDevices
)

// DeviceScope describes the set of device IDs an identity may read. It
// is a description, not a query result: the query layer translates it
// into a SQL predicate via Apply.
type DeviceScope struct {
	Kind           ScopeKind
	OrganisationID uint
	UserID         uint
}

// ResolveScope derives the device scope for an identity. It is pure:
// identity in, scope description out, no storage access. Callers with
// no authenticated identity get Unauthorized; authenticated callers
// whose role is outside the allowed set get Forbidden.
func ResolveScope(identity *Identity) (DeviceScope, error) {
	if identity == nil || identity.UserID == 0 {
		return DeviceScope{}, ErrUnauthorized("no authenticated identity")
	}

	switch identity.Role {
	case store.RoleAdmin:
		return DeviceScope{Kind: ScopeAllDevices}, nil

	case store.RoleAccountManager:
		if identity.OrganisationID == nil {
			return DeviceScope{}, ErrForbidden("account manager has no organisation")
		}
		return DeviceScope{
			Kind:           ScopeOrganisationDevices,
			OrganisationID: *identity.OrganisationID,
		}, nil

	case store.RoleUser:
		return DeviceScope{Kind: ScopeOwnDevices, UserID: identity.UserID}, nil

	default:
		return DeviceScope{}, ErrForbidden("role not permitted")
	}
}

// Apply constrains db to rows whose device column falls inside the
// scope. This is the single place scope turns into SQL; every query
// path goes through it. column is the qualified device id column of the
// outer query (e.g. "gps_reports.device_id").
func (s DeviceScope) Apply(db *gorm.DB, column string) *gorm.DB {
	switch s.Kind {
	case ScopeOrganisationDevices:
		return db.Where(
			column+" IN (?)",
			db.Session(&gorm.Session{NewDB: true}).
				Model(&store.UserDevice{}).
				Select("device_id").
				Where("user_id IN (?)",
					db.Session(&gorm.Session{NewDB: true}).
						Model(&store.User{}).
						Select("id").
						Where("organisation_id = ?", s.OrganisationID),
				),
		)

	case ScopeOwnDevices:
		return db.Where(
			column+" IN (?)",
			db.Session(&gorm.Session{NewDB: true}).
				Model(&store.UserDevice{}).
				Select("device_id").
				Where("user_id = ?", s.UserID),
		)

	default:
		// AllDevices: no predicate.
		return db
	}
}
