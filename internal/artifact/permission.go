package artifact

import "time"

// EffectiveAccess is the resolved access a user has to an asset, grounded on
// every signal the store can cheaply provide: a direct grant, a collection
// overlay, dashboard membership (metrics only), or a public link fallback.
// Resolve is pure — the store is responsible for gathering the inputs; this
// function only computes the max role in the lattice.
type EffectiveAccess struct {
	Role    Role
	ViaPublicLink bool
}

// ResolveInput bundles every signal needed to compute a user's effective
// role on one asset.
type ResolveInput struct {
	// Direct is the role granted directly to the user on the asset, or
	// RoleNone if no direct grant exists.
	Direct Role

	// CollectionOverlay is the strongest role the user holds via any
	// collection that the asset is (non-deleted) a member of. RoleNone if
	// none apply.
	CollectionOverlay Role

	// DashboardMember is true when the asset is a metric that is a member of
	// at least one dashboard the user can access at any role. Per §4.4 this
	// grants at least can_view.
	DashboardMember bool

	// Public access fields, read off the asset itself.
	PubliclyAccessible bool
	PublicExpiry       *time.Time
	PublicPassword     string

	// ProvidedPublicPassword is the password the caller supplied, if any,
	// when attempting public-link access.
	ProvidedPublicPassword string

	// Now lets tests control the expiry check deterministically.
	Now time.Time
}

// Resolve computes the user's effective role per §4.4's resolution order:
// direct grant, collection overlay, dashboard membership (at least
// can_view), take the max, and fall back to a public link grant only when
// no role was found through any of the above.
func Resolve(in ResolveInput) EffectiveAccess {
	role := in.Direct
	role = Max(role, in.CollectionOverlay)
	if in.DashboardMember {
		role = Max(role, RoleCanView)
	}
	if role != RoleNone {
		return EffectiveAccess{Role: role}
	}

	if !in.PubliclyAccessible {
		return EffectiveAccess{Role: RoleNone}
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	if in.PublicExpiry != nil && now.After(*in.PublicExpiry) {
		return EffectiveAccess{Role: RoleNone}
	}
	if in.PublicPassword != "" && in.PublicPassword != in.ProvidedPublicPassword {
		return EffectiveAccess{Role: RoleNone}
	}
	return EffectiveAccess{Role: RoleCanView, ViaPublicLink: true}
}
