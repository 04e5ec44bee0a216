package keybroker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dociq/searchindex/keybroker"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestSecret() keybroker.InstanceSecret {
	var s keybroker.InstanceSecret
	for i := range s {
		s[i] = byte(i)
	}
	return s
}

func TestIssueAndCheckAdminKeyRoundTrips(t *testing.T) {
	kb := keybroker.New("instance-a", newTestSecret())

	key, err := kb.IssueAdminKey("member-1")
	require.NoError(t, err)

	identity, err := kb.CheckAdminKey(key)
	require.NoError(t, err)
	require.Equal(t, keybroker.AdminIdentity{InstanceName: "instance-a", MemberID: "member-1"}, identity)
}

func TestCheckAdminKeyRejectsWrongInstance(t *testing.T) {
	issuer := keybroker.New("instance-a", newTestSecret())
	checker := keybroker.New("instance-b", newTestSecret())

	key, err := issuer.IssueAdminKey("member-1")
	require.NoError(t, err)

	_, err = checker.CheckAdminKey(key)
	require.Error(t, err)
}

func TestIssueSystemKeyYieldsSystemIdentity(t *testing.T) {
	kb := keybroker.New("instance-a", newTestSecret())

	key, err := kb.IssueSystemKey()
	require.NoError(t, err)

	identity, err := kb.CheckAdminKey(key)
	require.NoError(t, err)
	require.Equal(t, keybroker.SystemIdentity{}, identity)
}

func TestIssueStoreFileAuthorizationRejectsStaleIssuedTime(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	kb := keybroker.New("instance-a", newTestSecret()).WithClock(fixedClock{now})

	_, err := kb.IssueStoreFileAuthorization(now.Add(-20 * time.Second))
	require.Error(t, err)
}

func TestStoreFileAuthorizationExpiresAfterValidityWindow(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	kb := keybroker.New("instance-a", newTestSecret()).WithClock(fixedClock{now})

	token, err := kb.IssueStoreFileAuthorization(now)
	require.NoError(t, err)
	require.NoError(t, kb.CheckStoreFileAuthorization(token, time.Minute))

	laterKB := keybroker.New("instance-a", newTestSecret()).WithClock(fixedClock{now.Add(2 * time.Minute)})
	err = laterKB.CheckStoreFileAuthorization(token, time.Minute)
	require.Error(t, err)
}

func TestEncryptDecryptCursorRoundTrips(t *testing.T) {
	kb := keybroker.New("instance-a", newTestSecret())

	cursor := keybroker.Cursor{After: []byte{1, 2, 3}, QueryFingerprint: []byte("fp")}
	token, err := kb.EncryptCursor(cursor, 0)
	require.NoError(t, err)

	decoded, err := kb.DecryptCursor(token, 0)
	require.NoError(t, err)
	require.Equal(t, cursor, decoded)
}

func TestActionTokenRoundTrips(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	kb := keybroker.New("instance-a", newTestSecret()).WithClock(fixedClock{now})

	token, err := kb.IssueActionToken()
	require.NoError(t, err)

	issuedAt, err := kb.CheckActionToken(token)
	require.NoError(t, err)
	require.Equal(t, now.Unix(), issuedAt.Unix())
}
