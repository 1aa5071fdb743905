package domain

// Snapshot is an immutable view of one organization and everything it owns,
// as read from the store at a single point in time. Derived authorization
// state is always recomputed from a Snapshot, never cached.
type Snapshot struct {
	Organization Organization
	Roles        []Role
	Members      []Member
	Folders      []Folder
	Databases    []Database
}

// Role looks up a role by name.
func (s Snapshot) Role(name string) (Role, bool) {
	for _, role := range s.Roles {
		if role.Name == name {
			return role, true
		}
	}
	return Role{}, false
}

// Member looks up the membership of identityID.
func (s Snapshot) Member(identityID string) (Member, bool) {
	for _, member := range s.Members {
		if member.IdentityID == identityID {
			return member, true
		}
	}
	return Member{}, false
}

func (s Snapshot) Folder(id string) (Folder, bool) {
	for _, folder := range s.Folders {
		if folder.ID == id {
			return folder, true
		}
	}
	return Folder{}, false
}

func (s Snapshot) Database(id string) (Database, bool) {
	for _, database := range s.Databases {
		if database.ID == id {
			return database, true
		}
	}
	return Database{}, false
}

func (s Snapshot) RoleNames() []string {
	names := make([]string, 0, len(s.Roles))
	for _, role := range s.Roles {
		names = append(names, role.Name)
	}
	return names
}
