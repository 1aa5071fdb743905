package accesscontrol

import (
	"sort"

	jrdomain "github.com/smallbiznis/nexusguard/internal/joinrequest/domain"
	orgdomain "github.com/smallbiznis/nexusguard/internal/organization/domain"
	"github.com/smallbiznis/nexusguard/internal/privilege"
)

// View is everything one identity can see of one organization. Admin-only
// sections stay nil for everyone else.
type View struct {
	Organization    orgdomain.Organization `json:"organization"`
	IdentityID      string                 `json:"identity_id"`
	IsMember        bool                   `json:"is_member"`
	IsAdministrator bool                   `json:"is_administrator"`
	Role            string                 `json:"role,omitempty"`
	Privileges      privilege.Set          `json:"privileges"`
	VisibleFolders  []orgdomain.Folder     `json:"folders"`
	Databases       []orgdomain.Database   `json:"databases"`
	Roles           []orgdomain.Role       `json:"roles,omitempty"`
	Members         []orgdomain.Member     `json:"members,omitempty"`
	PendingRequests []jrdomain.JoinRequest `json:"pending_requests,omitempty"`
	PendingCount    int                    `json:"pending_count"`
}

// PendingFor filters requests down to the pending ones targeting eid, oldest
// first.
func PendingFor(requests []jrdomain.JoinRequest, eid string) []jrdomain.JoinRequest {
	out := make([]jrdomain.JoinRequest, 0)
	for _, req := range requests {
		if req.TargetEID == eid && req.Status == jrdomain.StatusPending {
			out = append(out, req)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

// Derive recomputes the full view from the latest snapshots. It is safe to
// call on every change notification; equal inputs give equal outputs.
func Derive(snap orgdomain.Snapshot, requests []jrdomain.JoinRequest, identityID string) View {
	admin := IsAdministrator(snap, identityID)
	view := View{
		Organization:    snap.Organization,
		IdentityID:      identityID,
		IsMember:        IsMember(snap, identityID),
		IsAdministrator: admin,
		Privileges:      EffectivePrivileges(snap, identityID),
		VisibleFolders:  VisibleFolders(snap, identityID),
		Databases:       []orgdomain.Database{},
	}
	if member, ok := snap.Member(identityID); ok {
		view.Role = member.RoleName
	}
	for _, database := range snap.Databases {
		if CanAccess(snap, identityID, DatabaseResource(database.ID)) {
			view.Databases = append(view.Databases, database)
		}
	}

	pending := PendingFor(requests, snap.Organization.EID)
	if admin {
		view.Roles = append([]orgdomain.Role{}, snap.Roles...)
		view.Members = append([]orgdomain.Member{}, snap.Members...)
		view.PendingRequests = pending
		view.PendingCount = len(pending)
	}
	return view
}
