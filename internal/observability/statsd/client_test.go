package statsd

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		" auth/local ":  "auth_local",
		"token..issued": "token.issued",
		".delegation.":  "delegation",
		"two  words":    "two__words",
		"a/b/c":         "a_b_c",
		"":              "",
	}
	for in, want := range cases {
		assert.Equal(t, want, cleanName(in), "cleanName(%q)", in)
	}
}

func TestAppendTagsMergeAndOrder(t *testing.T) {
	t.Parallel()

	global := map[string]string{"env": "prod", " service ": " userapi "}
	local := map[string]string{"result": " ok ", "": "dropped", "env": "stage"}

	var b strings.Builder
	appendTags(&b, global, local)
	assert.Equal(t, "|#env:stage,result:ok,service:userapi", b.String())

	b.Reset()
	appendTags(&b, nil, nil)
	assert.Empty(t, b.String())
}

func TestCopyTagsIsIndependent(t *testing.T) {
	t.Parallel()

	src := map[string]string{"env": "prod", "": "dropped"}
	cp := copyTags(src)
	cp["env"] = "stage"

	assert.Equal(t, "prod", src["env"])
	assert.NotContains(t, cp, "")
}

func TestCountEmitsLine(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	client, err := NewClient(Config{
		Enabled: true,
		Address: pc.LocalAddr().String(),
		Prefix:  "userapi.",
	})
	require.NoError(t, err)
	defer client.Close()

	client.Count("auth.local.ok", 1, map[string]string{"tenant": "default"})

	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 512)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "userapi.auth.local.ok:1|c|#tenant:default", string(buf[:n]))
}

func TestEnabledAndClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{enabled: true, conn: clientConn}
	assert.True(t, client.Enabled())

	require.NoError(t, client.Close())
	assert.False(t, client.Enabled())
	require.NoError(t, client.Close())

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	assert.NoError(t, nilClient.Close())
	nilClient.Count("ignored", 1, nil)
}

func TestNewClientStaysDisabledWithoutAddress(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{Enabled: true, Address: "   "})
	require.NoError(t, err)
	assert.False(t, client.Enabled())

	// Disabled clients swallow calls instead of panicking.
	client.Count("auth.local.ok", 1, nil)
	client.Gauge("sessions.live", 3, nil)
	client.Timing("token.issue", 12*time.Millisecond, nil)
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statsd dial")
}
