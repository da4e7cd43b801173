package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/domeme-scraper/internal/browser"
	"github.com/maltedev/domeme-scraper/internal/browser/browsertest"
	"github.com/maltedev/domeme-scraper/internal/marketplace"
)

const (
	loginForm = `<html><body><form>
		<input type="text" name="user_id">
		<input type="password" name="password">
		<button type="submit">로그인</button>
	</form></body></html>`
	loginFormNoButton = `<html><body><form>
		<input type="text" name="user_id">
		<input type="password" name="password">
	</form></body></html>`
	homeURL  = "https://domemedb.domeggook.com/index/?mainChannel=aihome"
	otherURL = "https://domeggook.com/main/index.php"
)

var creds = Credentials{Username: "seller01", Password: "secret"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T, page string, opts Options) (*browsertest.Driver, *Authenticator, *marketplace.Profile) {
	t.Helper()
	p := marketplace.Domeggook()
	d := browsertest.New().AddPage(p.LoginURL(), page)
	return d, New(d, p, browser.Waits{}, opts, nil, testLogger()), p
}

func submitTo(url string) func(*browsertest.Driver) error {
	return func(d *browsertest.Driver) error {
		d.Load(url)
		return nil
	}
}

func TestLogin_VerifiedByURL(t *testing.T) {
	d, a, p := setup(t, loginForm, Options{})
	d.OnClick("button[type='submit']", submitTo(homeURL))

	out, err := a.Login(context.Background(), creds)
	require.NoError(t, err)
	assert.True(t, out.Verified())
	assert.Equal(t, EvidenceURL, out.Evidence)
	assert.False(t, out.Ambiguous)

	assert.Equal(t, []string{p.LoginURL()}, d.Navigations())
}

func TestLogin_FillsCredentials(t *testing.T) {
	d, a, _ := setup(t, loginForm, Options{})
	var user, pass string
	d.OnClick("button[type='submit']", func(d *browsertest.Driver) error {
		user = d.Find("input[name='user_id']").AttrOr("value", "")
		pass = d.Find("input[name='password']").AttrOr("value", "")
		d.Load(homeURL)
		return nil
	})

	_, err := a.Login(context.Background(), creds)
	require.NoError(t, err)
	assert.Equal(t, "seller01", user)
	assert.Equal(t, "secret", pass)
}

func TestLogin_VerifiedByAccountLink(t *testing.T) {
	d, a, _ := setup(t, loginForm, Options{})
	d.AddPage(otherURL, `<html><body><a href="/ssl/member/logout.php">로그아웃</a></body></html>`)
	d.OnClick("button[type='submit']", submitTo(otherURL))

	out, err := a.Login(context.Background(), creds)
	require.NoError(t, err)
	assert.Equal(t, EvidenceAccountLink, out.Evidence)
}

func TestLogin_SubmitWithEnter(t *testing.T) {
	d, a, _ := setup(t, loginFormNoButton, Options{})
	var pressed string
	d.OnPress("input[name='password']", func(d *browsertest.Driver, key string) error {
		pressed = key
		d.Load(homeURL)
		return nil
	})

	out, err := a.Login(context.Background(), creds)
	require.NoError(t, err)
	assert.True(t, out.Verified())
	assert.Equal(t, "Enter", pressed)
}

func TestLogin_Rejected(t *testing.T) {
	t.Run("error message on page", func(t *testing.T) {
		d, a, _ := setup(t, loginForm, Options{Ambiguous: AmbiguousAccept})
		d.OnClick("button[type='submit']", func(d *browsertest.Driver) error {
			d.Append("body", `<p class="msg-error">아이디 또는 비밀번호가 일치하지 않습니다</p>`)
			return nil
		})

		out, err := a.Login(context.Background(), creds)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAuthenticationFailed)
		assert.ErrorIs(t, err, ErrRejected)
		assert.Equal(t, StateFailed, out.State)
		assert.Equal(t, EvidenceErrorMessage, out.Evidence)
		assert.Equal(t, "아이디 또는 비밀번호가 일치하지 않습니다", out.Reason)

		var authErr *Error
		require.True(t, errors.As(err, &authErr))
		assert.Equal(t, StateSubmitted, authErr.State)
		assert.Equal(t, "auth", authErr.Kind())
	})

	t.Run("dialog after submit", func(t *testing.T) {
		d, a, _ := setup(t, loginForm, Options{Ambiguous: AmbiguousAccept})
		d.OnClick("button[type='submit']", func(d *browsertest.Driver) error {
			d.RaiseDialog("비밀번호를 확인해 주세요")
			return nil
		})

		out, err := a.Login(context.Background(), creds)
		assert.ErrorIs(t, err, ErrRejected)
		assert.Equal(t, EvidenceDialog, out.Evidence)
		assert.Equal(t, "비밀번호를 확인해 주세요", out.Reason)
		assert.Zero(t, d.PendingDialogs())
	})
}

func TestLogin_StaleDialogIgnored(t *testing.T) {
	tests := []struct {
		name         string
		afterSubmit  func(*browsertest.Driver) error
		wantErr      error
		wantEvidence Evidence
		wantReason   string
	}{
		{
			name:         "verified login",
			afterSubmit:  submitTo(homeURL),
			wantEvidence: EvidenceURL,
		},
		{
			name:         "no signal after submit",
			afterSubmit:  submitTo(otherURL),
			wantErr:      ErrAmbiguous,
			wantEvidence: EvidenceNone,
			wantReason:   ErrAmbiguous.Error(),
		},
		{
			name: "fresh dialog after submit",
			afterSubmit: func(d *browsertest.Driver) error {
				d.RaiseDialog("비밀번호를 확인해 주세요")
				return nil
			},
			wantErr:      ErrRejected,
			wantEvidence: EvidenceDialog,
			wantReason:   "비밀번호를 확인해 주세요",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, a, _ := setup(t, loginForm, Options{})
			d.OnFill("input[type='password']", func(d *browsertest.Driver, _ string) error {
				d.RaiseDialog("캡스락이 켜져 있습니다")
				return nil
			})
			d.OnClick("button[type='submit']", tt.afterSubmit)

			out, err := a.Login(context.Background(), creds)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.True(t, out.Verified())
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.wantReason, out.Reason)
			}
			assert.Equal(t, tt.wantEvidence, out.Evidence)
			assert.NotEqual(t, "캡스락이 켜져 있습니다", out.Reason)
			assert.Zero(t, d.PendingDialogs())
		})
	}
}

func TestLogin_Ambiguous(t *testing.T) {
	tests := []struct {
		name     string
		policy   AmbiguousPolicy
		wantErr  bool
		verified bool
	}{
		{"default policy fails", "", true, false},
		{"fail policy", AmbiguousFail, true, false},
		{"accept policy", AmbiguousAccept, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, a, _ := setup(t, loginForm, Options{Ambiguous: tt.policy})
			d.OnClick("button[type='submit']", submitTo(otherURL))

			out, err := a.Login(context.Background(), creds)
			assert.True(t, out.Ambiguous)
			assert.Equal(t, EvidenceNone, out.Evidence)
			assert.Equal(t, tt.verified, out.Verified())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrAmbiguous)
				assert.ErrorIs(t, err, ErrAuthenticationFailed)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLogin_FormNotFound(t *testing.T) {
	_, a, _ := setup(t, `<html><body><p>점검 중입니다</p></body></html>`, Options{})

	out, err := a.Login(context.Background(), creds)
	assert.ErrorIs(t, err, ErrFormNotFound)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, "form not found", out.Reason)
}

func TestLogin_MissingCredentials(t *testing.T) {
	d, a, _ := setup(t, loginForm, Options{})

	out, err := a.Login(context.Background(), Credentials{Username: "seller01"})
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Equal(t, StateNotStarted, out.State)
	assert.Empty(t, d.Navigations())
}

func TestLogin_PageUnreachable(t *testing.T) {
	d, a, p := setup(t, loginForm, Options{})
	d.FailNavigation(p.LoginURL(), errors.New("net::ERR_NAME_NOT_RESOLVED"))

	_, err := a.Login(context.Background(), creds)
	var authErr *Error
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, StateNotStarted, authErr.State)
	assert.Equal(t, "login page unreachable", authErr.Reason)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "credentials_entered", StateCredentialsEntered.String())
	assert.Equal(t, "unknown", State(42).String())
}
