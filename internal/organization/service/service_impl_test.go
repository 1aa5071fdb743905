package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nexusguard/internal/authorization"
	"github.com/smallbiznis/nexusguard/internal/clock"
	"github.com/smallbiznis/nexusguard/internal/config"
	"github.com/smallbiznis/nexusguard/internal/eid"
	"github.com/smallbiznis/nexusguard/internal/organization/domain"
	"github.com/smallbiznis/nexusguard/internal/organization/repository"
	"github.com/smallbiznis/nexusguard/internal/privilege"
	"github.com/smallbiznis/nexusguard/internal/realtime"
	"github.com/smallbiznis/nexusguard/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	svc    domain.Service
	db     *gorm.DB
	broker *realtime.MemoryBroker
}

func newHarness(t *testing.T, codes ...string) harness {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(domain.Models()...))

	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	var gen eid.Generator = eid.NewGenerator(eid.DefaultPrefix)
	if len(codes) > 0 {
		gen = eid.NewSequence(codes...)
	}
	broker := realtime.NewMemoryBroker()
	t.Cleanup(func() { _ = broker.Close() })

	svc := NewService(Params{
		DB:        conn,
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)),
		Config:    config.Config{EIDMaxAttempts: 3},
		Repo:      repository.NewRepository(conn),
		GenID:     node,
		EIDs:      gen,
		Authz:     authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
		Publisher: broker,
	})
	return harness{svc: svc, db: conn, broker: broker}
}

func TestCreateProvisionsOwner(t *testing.T) {
	h := newHarness(t, "NX-1234-A")
	ctx := context.Background()

	snap, err := h.svc.Create(ctx, "u1", domain.CreateOrganizationRequest{Name: "Acme Labs"})
	require.NoError(t, err)
	assert.Equal(t, "NX-1234-A", snap.Organization.EID)
	assert.Equal(t, "acme-labs", snap.Organization.Slug)
	require.Len(t, snap.Roles, 1)
	assert.Equal(t, domain.RoleOwner, snap.Roles[0].Name)
	assert.True(t, snap.Roles[0].IsAdministrative)

	stored, err := h.svc.Snapshot(ctx, "nx-1234-a")
	require.NoError(t, err)
	require.Len(t, stored.Members, 1)
	assert.Equal(t, "u1", stored.Members[0].IdentityID)
	assert.Equal(t, domain.CreatorName, stored.Members[0].DisplayName)
	assert.True(t, stored.Members[0].Privileges.Equal(privilege.Catalog()))
}

func TestCreateValidates(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Create(context.Background(), " ", domain.CreateOrganizationRequest{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
	_, err = h.svc.Create(context.Background(), "u1", domain.CreateOrganizationRequest{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestCreateRetriesOnCollision(t *testing.T) {
	h := newHarness(t, "NX-1111-A", "NX-1111-A", "NX-2222-B")
	ctx := context.Background()

	_, err := h.svc.Create(ctx, "u1", domain.CreateOrganizationRequest{Name: "First"})
	require.NoError(t, err)
	second, err := h.svc.Create(ctx, "u2", domain.CreateOrganizationRequest{Name: "Second"})
	require.NoError(t, err)
	assert.Equal(t, "NX-2222-B", second.Organization.EID)
}

func TestCreateExhaustsAttempts(t *testing.T) {
	h := newHarness(t, "NX-1111-A")
	ctx := context.Background()

	_, err := h.svc.Create(ctx, "u1", domain.CreateOrganizationRequest{Name: "First"})
	require.NoError(t, err)
	_, err = h.svc.Create(ctx, "u2", domain.CreateOrganizationRequest{Name: "Second"})
	assert.ErrorIs(t, err, domain.ErrEIDExhausted)
}

func TestSnapshotUnknown(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Snapshot(context.Background(), "NX-0000-Z")
	assert.ErrorIs(t, err, domain.ErrUnknownTarget)
}

func TestSearch(t *testing.T) {
	h := newHarness(t, "NX-1234-A", "NX-5678-B")
	ctx := context.Background()
	_, err := h.svc.Create(ctx, "u1", domain.CreateOrganizationRequest{Name: "Acme Labs"})
	require.NoError(t, err)
	_, err = h.svc.Create(ctx, "u1", domain.CreateOrganizationRequest{Name: "Globex"})
	require.NoError(t, err)

	res, err := h.svc.Search(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, res)

	res, err = h.svc.Search(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "NX-1234-A", res[0].EID)

	res, err = h.svc.Search(ctx, "nx-56")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Globex", res[0].Name)
}

func TestSearchTreatsInputLiterally(t *testing.T) {
	h := newHarness(t, "NX-1234-A", "NX-5678-B")
	ctx := context.Background()
	_, err := h.svc.Create(ctx, "u1", domain.CreateOrganizationRequest{Name: "Acme Labs"})
	require.NoError(t, err)
	_, err = h.svc.Create(ctx, "u1", domain.CreateOrganizationRequest{Name: "Globex"})
	require.NoError(t, err)

	for _, query := range []string{"!!", "__", "%%", "%_"} {
		res, err := h.svc.Search(ctx, query)
		require.NoError(t, err)
		assert.Empty(t, res, "query %q", query)
	}

	res, err := h.svc.Search(ctx, "5678")
	require.NoError(t, err)
	require.Len(t, res, 1, "eids match anywhere, not only as a prefix")
	assert.Equal(t, "NX-5678-B", res[0].EID)
}

func TestCreateRole(t *testing.T) {
	h := newHarness(t, "NX-1234-A")
	ctx := context.Background()
	_, err := h.svc.Create(ctx, "u1", domain.CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	role, err := h.svc.CreateRole(ctx, "u1", "NX-1234-A", domain.CreateRoleRequest{Name: "Standard User", Privileges: []string{"READ"}})
	require.NoError(t, err)
	assert.False(t, role.IsAdministrative)
	assert.Equal(t, 1, role.Position)

	_, err = h.svc.CreateRole(ctx, "u1", "NX-1234-A", domain.CreateRoleRequest{Name: "Standard User", Privileges: []string{"READ"}})
	assert.ErrorIs(t, err, domain.ErrDuplicateRole)
	_, err = h.svc.CreateRole(ctx, "u1", "NX-1234-A", domain.CreateRoleRequest{Name: "Empty"})
	assert.ErrorIs(t, err, domain.ErrEmptyDefinition)
	_, err = h.svc.CreateRole(ctx, "u1", "NX-1234-A", domain.CreateRoleRequest{Name: "Bad", Privileges: []string{"FLY"}})
	assert.ErrorIs(t, err, domain.ErrUnknownPrivilege)
	_, err = h.svc.CreateRole(ctx, "u9", "NX-1234-A", domain.CreateRoleRequest{Name: "Sneaky", Privileges: []string{"READ"}})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestRolePrivilegeEditsDoNotReachMembers(t *testing.T) {
	h := newHarness(t, "NX-1234-A")
	ctx := context.Background()
	_, err := h.svc.Create(ctx, "u1", domain.CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)
	_, err = h.svc.CreateRole(ctx, "u1", "NX-1234-A", domain.CreateRoleRequest{Name: "Ops", Privileges: []string{"READ"}})
	require.NoError(t, err)
	_, err = h.svc.AddMember(ctx, "u1", "NX-1234-A", domain.AddMemberRequest{IdentityID: "u2", RoleName: "Ops"})
	require.NoError(t, err)

	role, err := h.svc.TogglePrivilege(ctx, "u1", "NX-1234-A", "Ops", "WRITE")
	require.NoError(t, err)
	assert.Equal(t, []string{"READ", "WRITE"}, role.Privileges.Strings())

	role, err = h.svc.SetRolePrivileges(ctx, "u1", "NX-1234-A", "Ops", []string{})
	require.NoError(t, err)
	assert.Empty(t, role.Privileges)

	snap, err := h.svc.Snapshot(ctx, "NX-1234-A")
	require.NoError(t, err)
	member, ok := snap.Member("u2")
	require.True(t, ok)
	assert.Equal(t, []string{"READ"}, member.Privileges.Strings())

	_, err = h.svc.TogglePrivilege(ctx, "u1", "NX-1234-A", "Ghost", "READ")
	assert.ErrorIs(t, err, domain.ErrUnknownRole)
	_, err = h.svc.TogglePrivilege(ctx, "u1", "NX-1234-A", "Ops", "NOPE")
	assert.ErrorIs(t, err, domain.ErrUnknownPrivilege)
}

func TestAddMember(t *testing.T) {
	h := newHarness(t, "NX-1234-A")
	ctx := context.Background()
	_, err := h.svc.Create(ctx, "u1", domain.CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	_, err = h.svc.AddMember(ctx, "u1", "NX-1234-A", domain.AddMemberRequest{IdentityID: "u2", RoleName: "Viewer"})
	assert.ErrorIs(t, err, domain.ErrUnknownRole)

	explicit := privilege.NewSet(privilege.Billing)
	member, err := h.svc.AddMember(ctx, "u1", "NX-1234-A", domain.AddMemberRequest{IdentityID: "u2", RoleName: "Owner", Privileges: &explicit})
	require.NoError(t, err)
	assert.Equal(t, "u2", member.DisplayName)
	assert.Equal(t, []string{"BILLING"}, member.Privileges.Strings())

	_, err = h.svc.AddMember(ctx, "u1", "NX-1234-A", domain.AddMemberRequest{IdentityID: "u2", RoleName: "Owner"})
	assert.ErrorIs(t, err, domain.ErrDuplicateMember)
	_, err = h.svc.AddMember(ctx, "u1", "NX-1234-A", domain.AddMemberRequest{RoleName: "Owner"})
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)

	members, err := h.svc.ListMembers(ctx, "u1", "NX-1234-A")
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestResources(t *testing.T) {
	h := newHarness(t, "NX-1234-A")
	ctx := context.Background()
	_, err := h.svc.Create(ctx, "u1", domain.CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)
	_, err = h.svc.CreateRole(ctx, "u1", "NX-1234-A", domain.CreateRoleRequest{Name: "Standard User", Privileges: []string{"READ"}})
	require.NoError(t, err)

	_, err = h.svc.AddFolder(ctx, "u1", "NX-1234-A", domain.AddFolderRequest{Name: "Ghost", AllowedRoles: []string{"Nobody"}})
	assert.ErrorIs(t, err, domain.ErrUnknownRole)
	_, err = h.svc.AddFolder(ctx, "u1", "NX-1234-A", domain.AddFolderRequest{Name: " "})
	assert.ErrorIs(t, err, domain.ErrEmptyDefinition)

	folder, err := h.svc.AddFolder(ctx, "u1", "NX-1234-A", domain.AddFolderRequest{
		Name:         "Payroll",
		AllowedRoles: []string{"Owner", "Owner"},
	})
	require.NoError(t, err)
	assert.Regexp(t, `^fol\d+$`, folder.ID)
	assert.Equal(t, []string{"Owner"}, []string(folder.AllowedRoles))

	database, err := h.svc.AddDatabase(ctx, "u1", "NX-1234-A", domain.AddDatabaseRequest{Name: "ledger"})
	require.NoError(t, err)
	assert.Regexp(t, `^db\d+$`, database.ID)
	assert.Equal(t, domain.DefaultEngine, database.EngineType)
	assert.Equal(t, domain.DefaultStatus, database.Status)
	assert.Equal(t, domain.DefaultTraffic, database.TrafficMetric)

	_, err = h.svc.AddDatabase(ctx, "u2", "NX-1234-A", domain.AddDatabaseRequest{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	visible, err := h.svc.VisibleFolders(ctx, "u1", "NX-1234-A")
	require.NoError(t, err)
	assert.Len(t, visible, 1)

	// An outsider holds only READ, which Owner also grants.
	visible, err = h.svc.VisibleFolders(ctx, "stranger", "NX-1234-A")
	require.NoError(t, err)
	assert.Len(t, visible, 1)
}

func TestWritesPublishChanges(t *testing.T) {
	h := newHarness(t, "NX-1234-A")
	ctx := context.Background()
	_, err := h.svc.Create(ctx, "u1", domain.CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	sub, err := h.broker.Subscribe(ctx, realtime.OrgChannel("NX-1234-A"))
	require.NoError(t, err)
	defer sub.Close()

	_, err = h.svc.CreateRole(ctx, "u1", "NX-1234-A", domain.CreateRoleRequest{Name: "Ops", Privileges: []string{"READ"}})
	require.NoError(t, err)

	select {
	case event := <-sub.Events():
		assert.Equal(t, realtime.KindRoleCreated, event.Kind)
		assert.Equal(t, "NX-1234-A", event.EID)
	case <-time.After(time.Second):
		t.Fatal("expected role.created event")
	}
}

func TestFailedProvisionLeavesNothing(t *testing.T) {
	h := newHarness(t, "NX-1234-A")
	injected := errors.New("injected")
	require.NoError(t, h.db.Callback().Create().Before("gorm:create").Register("test:fail_members", func(tx *gorm.DB) {
		if tx.Statement.Table == "organization_members" {
			_ = tx.AddError(injected)
		}
	}))

	_, err := h.svc.Create(context.Background(), "u1", domain.CreateOrganizationRequest{Name: "Acme"})
	require.ErrorIs(t, err, injected)

	var count int64
	require.NoError(t, h.db.Model(&domain.Organization{}).Count(&count).Error)
	assert.Zero(t, count)
}
