package hwaccess

import (
	"os"
	"testing"
)

// TestResolveTermuxOwnerFallsBackWithoutTermux exercises the non-Android
// path: termuxAppDir doesn't exist on this test host, so ResolveTermuxOwner
// must fall back to the caller's own uid/gid rather than erroring or
// returning zeros (which would silently rebind the bridge to root:root,
// the bug this function exists to fix).
func TestResolveTermuxOwnerFallsBackWithoutTermux(t *testing.T) {
	if _, err := os.Stat(termuxAppDir); err == nil {
		t.Skip("termuxAppDir exists on this host, fallback path not exercised")
	}

	uid, gid, err := ResolveTermuxOwner()
	if err != nil {
		t.Fatalf("ResolveTermuxOwner: %v", err)
	}

	wantUID, wantGID := safecastOrZero(os.Getuid()), safecastOrZero(os.Getgid())
	if uid != wantUID {
		t.Errorf("uid = %d, want caller's uid %d", uid, wantUID)
	}
	if gid != wantGID {
		t.Errorf("gid = %d, want caller's gid %d", gid, wantGID)
	}
}
