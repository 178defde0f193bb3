package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		want int
	}{
		{name: "equal", a: "1.2.3", b: "v1.2.3", want: 0},
		{name: "patch newer", a: "1.2.4", b: "1.2.3", want: 1},
		{name: "minor older", a: "1.1.9", b: "1.2.0", want: -1},
		{name: "major newer", a: "v2.0.0", b: "1.99.99", want: 1},
		{name: "missing patch", a: "1.2", b: "1.2.0", want: 0},
		{name: "suffix ignored", a: "1.2.3-rc1", b: "1.2.3", want: 0},
		{name: "dev older than release", a: "dev", b: "0.0.1", want: -1},
		{name: "release newer than commit", a: "0.1.0", b: "abc1234", want: 1},
		{name: "two dev builds", a: "", b: "dev", want: 0},
		{name: "numeric is not a hash", a: "2024010100", b: "1.0.0", want: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Compare(tc.a, tc.b))
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1.2.3", Normalize(" v1.2.3-rc1 "))
	assert.Equal(t, "1.2.3", Normalize("vv1.2.3+build"))
	assert.Equal(t, "dev", Normalize("dev"))
}

func TestIsCommitHash(t *testing.T) {
	t.Parallel()

	assert.True(t, isCommitHash("abc1234"))
	assert.True(t, isCommitHash("ABC1234-dirty"))
	assert.False(t, isCommitHash("1234567"))
	assert.False(t, isCommitHash("abc12"))
	assert.False(t, isCommitHash("xyz1234"))
}

func TestClient_Check(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/mrz1836/hdscan/releases/latest", r.URL.Path)
		assert.Contains(t, r.Header.Get("User-Agent"), "hdscan")
		_, _ = w.Write([]byte(`{"tag_name":"v1.4.0","html_url":"https://example.com/r"}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(WithBaseURL(srv.URL + "/"))

	st, err := c.Check(context.Background(), "v1.3.2")
	require.NoError(t, err)
	assert.Equal(t, "v1.4.0", st.Latest)
	assert.Equal(t, "https://example.com/r", st.URL)
	assert.True(t, st.IsNewer)

	st, err = c.Check(context.Background(), "1.4.0")
	require.NoError(t, err)
	assert.False(t, st.IsNewer)
}

func TestClient_Errors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(WithBaseURL(srv.URL)).LatestRelease(context.Background())
	require.ErrorIs(t, err, ErrReleaseLookup)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "rate limited")

	_, err = NewClient(WithBaseURL(srv.URL), WithRepository("bad owner", "x")).LatestRelease(context.Background())
	require.ErrorIs(t, err, ErrInvalidRepo)

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{"))
	}))
	t.Cleanup(bad.Close)

	_, err = NewClient(WithBaseURL(bad.URL), WithHTTPClient(bad.Client())).LatestRelease(context.Background())
	require.ErrorIs(t, err, ErrReleaseLookup)
}
