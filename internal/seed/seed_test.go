package seed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/nexusguard/internal/accesscontrol"
	"github.com/smallbiznis/nexusguard/internal/clock"
	"github.com/smallbiznis/nexusguard/internal/config"
	orgdomain "github.com/smallbiznis/nexusguard/internal/organization/domain"
	orgrepository "github.com/smallbiznis/nexusguard/internal/organization/repository"
	"github.com/smallbiznis/nexusguard/internal/ratelimit"
	"github.com/smallbiznis/nexusguard/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSeeder(t *testing.T, locker *ratelimit.Locker) (*Seeder, orgdomain.Repository) {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(orgdomain.Models()...))
	repo := orgrepository.NewRepository(conn)
	return NewSeeder(Params{
		DB:     conn,
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		Repo:   repo,
		Locker: locker,
	}), repo
}

func TestSeedDefaultFixture(t *testing.T) {
	seeder, repo := newSeeder(t, nil)
	ctx := context.Background()
	require.NoError(t, seeder.EnsureBootstrapOrganization(ctx, config.DefaultBootstrapConfig()))

	snap, err := repo.LoadSnapshot(ctx, "NX-8820-A")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.True(t, snap.Organization.IsPopulated)
	assert.Equal(t, []string{"Super Admin", "Manager", "Standard User"}, snap.RoleNames())
	assert.True(t, accesscontrol.IsAdministrator(*snap, "system"))

	visible := accesscontrol.VisibleFolders(*snap, "visitor")
	require.Len(t, visible, 2)
	assert.Equal(t, "f1", visible[0].ID)
	assert.Equal(t, "f2", visible[1].ID)
	assert.True(t, accesscontrol.CanAccess(*snap, "system", accesscontrol.DatabaseResource("db1")))
}

func TestSeedIsIdempotentAndAdditive(t *testing.T) {
	seeder, repo := newSeeder(t, nil)
	ctx := context.Background()
	cfg := config.DefaultBootstrapConfig()
	require.NoError(t, seeder.EnsureBootstrapOrganization(ctx, cfg))
	require.NoError(t, seeder.EnsureBootstrapOrganization(ctx, cfg))

	cfg.Members = append(cfg.Members, config.BootstrapMember{IdentityID: "ops", DisplayName: "Ops", Role: "Manager"})
	cfg.Folders = append(cfg.Folders, config.BootstrapFolder{ID: "f3", Name: "Runbooks", AllowedRoles: []string{"Manager"}})
	require.NoError(t, seeder.EnsureBootstrapOrganization(ctx, cfg))

	snap, err := repo.LoadSnapshot(ctx, "NX-8820-A")
	require.NoError(t, err)
	assert.Len(t, snap.Roles, 3)
	assert.Len(t, snap.Members, 2)
	assert.Len(t, snap.Folders, 3)
	assert.Len(t, snap.Databases, 1)

	ops, ok := snap.Member("ops")
	require.True(t, ok)
	assert.Equal(t, []string{"READ", "WRITE", "BILLING"}, ops.Privileges.Strings())
}

func TestSeedRejectsUnknownPrivilege(t *testing.T) {
	seeder, repo := newSeeder(t, nil)
	cfg := config.DefaultBootstrapConfig()
	cfg.Roles[1].Privileges = []string{"TELEPORT"}

	err := seeder.EnsureBootstrapOrganization(context.Background(), cfg)
	require.ErrorIs(t, err, orgdomain.ErrUnknownPrivilege)

	snap, err := repo.LoadSnapshot(context.Background(), "NX-8820-A")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSeedSkipsWhileLocked(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := ratelimit.NewLocker(client)

	seeder, repo := newSeeder(t, locker)
	require.NoError(t, srv.Set(lockKey, "someone-else"))

	require.NoError(t, seeder.EnsureBootstrapOrganization(context.Background(), config.DefaultBootstrapConfig()))
	snap, err := repo.LoadSnapshot(context.Background(), "NX-8820-A")
	require.NoError(t, err)
	assert.Nil(t, snap)

	srv.Del(lockKey)
	require.NoError(t, seeder.EnsureBootstrapOrganization(context.Background(), config.DefaultBootstrapConfig()))
	snap, err = repo.LoadSnapshot(context.Background(), "NX-8820-A")
	require.NoError(t, err)
	assert.NotNil(t, snap)
}
