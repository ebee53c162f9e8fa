package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestJSONCodecRegistered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)
	assert.Equal(t, CodecName, c.Name())

	in := &MeResponse{UserID: "u", Email: "a@example.com", CreatedAt: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)}
	b, err := c.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"user_id":"u"`)

	out := &MeResponse{}
	require.NoError(t, c.Unmarshal(b, out))
	assert.Equal(t, in, out)
}

func TestServiceDescCoversServer(t *testing.T) {
	names := make(map[string]bool)
	for _, m := range SessionServiceDesc.Methods {
		names[m.MethodName] = true
	}
	for _, want := range []string{"Register", "Login", "Refresh", "Logout", "Me", "Ping"} {
		assert.True(t, names[want], want)
	}
}
