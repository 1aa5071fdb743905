// Package accesscontrol evaluates who may see and act on what inside an
// organization. Every function here is pure: it reads a domain.Snapshot and
// returns a decision. Nothing is cached, so a decision can never be staler
// than the snapshot it was computed from.
//
// Two derivation strategies coexist on purpose and are kept separately named:
//
//   - SnapshotPrivileges (copy-on-assignment): a member's privileges are the
//     copy taken when the role was assigned. Later edits of the role do not
//     change them.
//   - LivePrivileges (compute-on-read): folder gating reads the role table as
//     it is now, so role edits change folder visibility immediately.
package accesscontrol

import (
	orgdomain "github.com/smallbiznis/nexusguard/internal/organization/domain"
	"github.com/smallbiznis/nexusguard/internal/privilege"
)

type ResourceKind string

const (
	KindFolder   ResourceKind = "folder"
	KindDatabase ResourceKind = "database"
)

// Resource addresses a folder or database inside the snapshot's organization.
type Resource struct {
	Kind ResourceKind
	ID   string
}

func FolderResource(id string) Resource   { return Resource{Kind: KindFolder, ID: id} }
func DatabaseResource(id string) Resource { return Resource{Kind: KindDatabase, ID: id} }

// IsAdministrator reports whether identityID is the organization's creator or
// holds a role flagged administrative. The role table contents are irrelevant
// for the creator.
func IsAdministrator(snap orgdomain.Snapshot, identityID string) bool {
	if identityID == "" {
		return false
	}
	if identityID == snap.Organization.CreatorID {
		return true
	}
	member, ok := snap.Member(identityID)
	if !ok {
		return false
	}
	role, ok := snap.Role(member.RoleName)
	return ok && role.IsAdministrative
}

// SnapshotPrivileges is the copy-on-assignment strategy.
func SnapshotPrivileges(member orgdomain.Member) privilege.Set {
	return member.Privileges.Clone()
}

// LivePrivileges is the compute-on-read strategy: the union of the current
// privileges of every named role. Unknown role names contribute nothing.
func LivePrivileges(snap orgdomain.Snapshot, roleNames []string) privilege.Set {
	out := privilege.Set{}
	for _, name := range roleNames {
		role, ok := snap.Role(name)
		if !ok {
			continue
		}
		out = out.Union(role.Privileges)
	}
	return out
}

// EffectivePrivileges never fails: administrators get the full catalog,
// members their snapshot, and unknown identities the minimal READ set so a
// partially synced client still renders.
func EffectivePrivileges(snap orgdomain.Snapshot, identityID string) privilege.Set {
	if IsAdministrator(snap, identityID) {
		return privilege.Catalog()
	}
	if member, ok := snap.Member(identityID); ok {
		return SnapshotPrivileges(member)
	}
	return privilege.Minimal()
}

// IsMember reports whether identityID has a membership row or is the creator.
func IsMember(snap orgdomain.Snapshot, identityID string) bool {
	if identityID == "" {
		return false
	}
	if identityID == snap.Organization.CreatorID {
		return true
	}
	_, ok := snap.Member(identityID)
	return ok
}

// FolderVisible applies the folder gate for a single folder.
func FolderVisible(snap orgdomain.Snapshot, identityID string, folder orgdomain.Folder) bool {
	if folder.IsPublic {
		return true
	}
	if IsAdministrator(snap, identityID) {
		return true
	}
	privs := EffectivePrivileges(snap, identityID)
	if privs.Contains(privilege.Admin) {
		return true
	}
	return privs.Intersects(LivePrivileges(snap, folder.AllowedRoles))
}

// VisibleFolders returns the folders identityID may see, in creation order.
func VisibleFolders(snap orgdomain.Snapshot, identityID string) []orgdomain.Folder {
	out := make([]orgdomain.Folder, 0, len(snap.Folders))
	for _, folder := range snap.Folders {
		if FolderVisible(snap, identityID, folder) {
			out = append(out, folder)
		}
	}
	return out
}

// CanAccess is the single authorization query for resources. Databases are
// descriptive and open to any member; folders use the folder gate. Unknown
// resources are denied.
func CanAccess(snap orgdomain.Snapshot, identityID string, res Resource) bool {
	switch res.Kind {
	case KindFolder:
		folder, ok := snap.Folder(res.ID)
		if !ok {
			return false
		}
		return FolderVisible(snap, identityID, folder)
	case KindDatabase:
		if _, ok := snap.Database(res.ID); !ok {
			return false
		}
		return IsAdministrator(snap, identityID) || IsMember(snap, identityID)
	default:
		return false
	}
}
