package boothkit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncErrors "github.com/boothkit/boothkit/errors"
	"github.com/boothkit/boothkit/lead"
	"github.com/boothkit/boothkit/remote"
)

func (f *fixture) addUser(t *testing.T, name, passcode string) lead.User {
	t.Helper()
	u, err := f.booth.AddUser(context.Background(), name, passcode)
	require.NoError(t, err)
	return u
}

func TestAddUserRejectsBadInput(t *testing.T) {
	f := newFixture(t, true)
	f.selectShow(t, "show-1")

	cases := []struct {
		name     string
		passcode string
	}{
		{"", "1234"},     // name required
		{"Dana", "12a4"}, // digits only
		{"Dana", "123"},  // four digits exactly
		{"Dana", "12345"},
	}
	for _, tc := range cases {
		_, err := f.booth.AddUser(context.Background(), tc.name, tc.passcode)
		require.Error(t, err, "name=%q passcode=%q", tc.name, tc.passcode)
		assert.True(t, syncErrors.IsKind(err, syncErrors.KindValidation))
	}

	// Validation happens before the write ever reaches the remote.
	for _, call := range f.remote.Calls() {
		assert.NotContains(t, call, "create users")
	}

	u := f.addUser(t, "Dana", "1234")
	_, err := f.booth.UpdateUser(context.Background(), u.ID, "", "98x7")
	require.Error(t, err)
	assert.True(t, syncErrors.IsKind(err, syncErrors.KindValidation))
}

func TestDeleteLastUserRefused(t *testing.T) {
	f := newFixture(t, true)
	f.selectShow(t, "show-1")
	ana := f.addUser(t, "Ana", "1234")

	err := f.booth.DeleteUser(context.Background(), ana.ID)
	require.Error(t, err)
	assert.True(t, syncErrors.IsKind(err, syncErrors.KindValidation))
	assert.ErrorContains(t, err, "last user")

	_, ok := f.remote.Get(remote.TableUsers, ana.ID)
	assert.True(t, ok, "refused delete must not reach the remote")
	assert.Len(t, f.booth.Users(), 1)
}

func TestDeleteLoggedInUserRefused(t *testing.T) {
	f := newFixture(t, true)
	f.selectShow(t, "show-1")
	ana := f.addUser(t, "Ana", "1234")
	ben := f.addUser(t, "Ben", "5678")

	require.NoError(t, f.booth.Login(ana.ID, "1234"))

	err := f.booth.DeleteUser(context.Background(), ana.ID)
	require.Error(t, err)
	assert.True(t, syncErrors.IsKind(err, syncErrors.KindValidation))
	_, ok := f.remote.Get(remote.TableUsers, ana.ID)
	assert.True(t, ok)

	// Any other user can still go.
	require.NoError(t, f.booth.DeleteUser(context.Background(), ben.ID))
	_, ok = f.remote.Get(remote.TableUsers, ben.ID)
	assert.False(t, ok)
	require.Eventually(t, func() bool { return len(f.booth.Users()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestLoginVerifiesPasscode(t *testing.T) {
	f := newFixture(t, true)
	f.selectShow(t, "show-1")
	ana := f.addUser(t, "Ana", "1234")

	assert.False(t, f.booth.VerifyPasscode(ana.ID, "9999"))
	assert.True(t, f.booth.VerifyPasscode(ana.ID, "1234"))

	err := f.booth.Login(ana.ID, "9999")
	require.Error(t, err)
	assert.True(t, syncErrors.IsKind(err, syncErrors.KindValidation))
	_, ok := f.booth.CurrentUser()
	assert.False(t, ok, "a failed login must not start a session")

	err = f.booth.Login("nobody", "1234")
	require.Error(t, err)
	assert.True(t, syncErrors.IsKind(err, syncErrors.KindNotFound))

	require.NoError(t, f.booth.Login(ana.ID, "1234"))
	current, ok := f.booth.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, ana.ID, current.ID)

	f.booth.Logout()
	_, ok = f.booth.CurrentUser()
	assert.False(t, ok)
}

func TestReloadUsersClearsRemovedSession(t *testing.T) {
	f := newFixture(t, true)
	f.selectShow(t, "show-1")
	ana := f.addUser(t, "Ana", "1234")
	f.addUser(t, "Ben", "5678")

	require.NoError(t, f.booth.Login(ana.ID, "1234"))

	// Another client removes the signed-in user remotely.
	require.NoError(t, f.remote.Delete(context.Background(), remote.TableUsers, ana.ID))

	require.NoError(t, f.booth.ReloadUsers(context.Background()))
	_, ok := f.booth.CurrentUser()
	assert.False(t, ok, "the session cannot outlive its user")
	require.Eventually(t, func() bool { return len(f.booth.Users()) == 1 }, time.Second, 5*time.Millisecond)
}
