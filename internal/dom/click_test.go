package dom

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/domeme-scraper/internal/browser/browsertest"
)

func TestClick_Escalation(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		fail    []string
		want    Tier
		wantErr bool
	}{
		{
			name: "native",
			html: `<button id="b" onclick="go()">x</button>`,
			want: TierNative,
		},
		{
			name: "hidden element falls back to script",
			html: `<button id="b" onclick="go()" style="display:none">x</button>`,
			want: TierScript,
		},
		{
			name: "handler when script click is blocked",
			html: `<button id="b" onclick="go()">x</button>`,
			fail: []string{browsertest.TierNative, browsertest.TierScript},
			want: TierHandler,
		},
		{
			name:    "every tier fails",
			html:    `<button id="b">x</button>`,
			fail:    []string{browsertest.TierNative, browsertest.TierScript},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := load(t, tt.html)
			d.FailTier("#b", tt.fail...)
			clicked := 0
			d.OnClick("#b", func(*browsertest.Driver) error { clicked++; return nil })

			el := Resolve(d, Candidates{"#b"})
			require.True(t, el.Found())

			tier, err := Click(el.Element)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Zero(t, clicked)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, tier)
			assert.Equal(t, 1, clicked)
		})
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		fail    []string
		force   bool
		want    Tier
		wantErr error
	}{
		{
			name: "already checked is left alone",
			html: `<input type="checkbox" id="c" checked>`,
			want: TierAlready,
		},
		{
			name: "label first",
			html: `<input type="checkbox" id="c"><label for="c">pick</label>`,
			want: TierLabel,
		},
		{
			name: "native without label",
			html: `<input type="checkbox" id="c">`,
			want: TierNative,
		},
		{
			name: "script when hidden",
			html: `<input type="checkbox" id="c" style="display:none">`,
			want: TierScript,
		},
		{
			name:  "force as last resort",
			html:  `<input type="checkbox" id="c">`,
			fail:  []string{browsertest.TierNative, browsertest.TierScript},
			force: true,
			want:  TierForce,
		},
		{
			name:    "no force leaves it unchecked",
			html:    `<input type="checkbox" id="c">`,
			fail:    []string{browsertest.TierNative, browsertest.TierScript},
			wantErr: ErrNotChecked,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := load(t, tt.html)
			d.FailTier("#c", tt.fail...)

			el := Resolve(d, Candidates{"#c"})
			require.True(t, el.Found())

			tier, err := Check(context.Background(), d, el.Element, tt.force, 0)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 0, d.Find("#c[checked]").Length())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, tier)
			assert.Equal(t, 1, d.Find("#c[checked]").Length())
		})
	}
}

func TestCheck_Idempotent(t *testing.T) {
	d := load(t, `<input type="checkbox" id="c">`)
	el := Resolve(d, Candidates{"#c"}).Element

	_, err := Check(context.Background(), d, el, false, 0)
	require.NoError(t, err)
	tier, err := Check(context.Background(), d, el, false, 0)
	require.NoError(t, err)
	assert.Equal(t, TierAlready, tier)
	assert.Equal(t, 1, d.Find("#c[checked]").Length())
	assert.Len(t, d.Clicks(), 1)
}
