package login_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/wbctl/internal/login"
	"github.com/systmms/wbctl/tests/fakes"
)

func TestDialogStack_DismissUnwindsToOpeningLevel(t *testing.T) {
	t.Parallel()

	p := &fakes.FakePresenter{}
	var s login.DialogStack

	a, err := s.Open(p, login.Form{Template: "a"})
	require.NoError(t, err)
	b, err := s.Open(p, login.Form{Template: "b"})
	require.NoError(t, err)
	c, err := s.Open(p, login.Form{Template: "c"})
	require.NoError(t, err)

	assert.Equal(t, 0, a.Level())
	assert.Equal(t, 1, b.Level())
	assert.Equal(t, 2, c.Level())
	assert.Equal(t, 3, s.Depth())

	b.Dismiss()
	assert.Equal(t, 1, s.Depth())
	assert.False(t, p.Frames[0].IsClosed())
	assert.True(t, p.Frames[1].IsClosed())
	assert.True(t, p.Frames[2].IsClosed())

	// Already dismissed by b.
	c.Dismiss()
	assert.Equal(t, 1, s.Depth())

	a.Dismiss()
	a.Dismiss()
	assert.Equal(t, 0, s.Depth())
	assert.True(t, p.Frames[0].IsClosed())
}

func TestDialogStack_ReopenAfterDismiss(t *testing.T) {
	t.Parallel()

	p := &fakes.FakePresenter{}
	var s login.DialogStack

	first, err := s.Open(p, login.Form{Template: "password"})
	require.NoError(t, err)
	first.Dismiss()

	second, err := s.Open(p, login.Form{Template: "owner-only-consumer"})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Level())

	// A stale handle must not close the dialog that replaced it.
	first.Dismiss()
	assert.Equal(t, 1, s.Depth())
	assert.False(t, p.Frames[1].IsClosed())
}

func TestDialogStack_PresentError(t *testing.T) {
	t.Parallel()

	p := &fakes.FakePresenter{PresentErr: errors.New("no terminal")}
	var s login.DialogStack

	_, err := s.Open(p, login.Form{})
	require.Error(t, err)
	assert.Equal(t, 0, s.Depth())
}

func TestEventKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "submit", login.EventSubmit.String())
	assert.Equal(t, "cancel", login.EventCancel.String())
	assert.Equal(t, "secondary", login.EventSecondary.String())
	assert.Equal(t, "logout", login.EventLogout.String())
	assert.Equal(t, "unknown", login.EventKind(42).String())
}
