package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_Verify(t *testing.T) {
	p := NewStatic(map[string]string{"tok-1": "u-alice"})
	ctx := context.Background()

	subject, err := p.Verify(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "u-alice", subject)

	_, err = p.Verify(ctx, "unknown")
	assert.Error(t, err)

	p.Add("tok-2", "u-bob")
	subject, err = p.Verify(ctx, "tok-2")
	require.NoError(t, err)
	assert.Equal(t, "u-bob", subject)
}

func TestSigned_RoundTrip(t *testing.T) {
	p := NewSigned([]byte("secret"))
	ctx := context.Background()

	token := p.Token("u-alice")
	subject, err := p.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "u-alice", subject)
}

func TestSigned_RejectsTampering(t *testing.T) {
	p := NewSigned([]byte("secret"))
	ctx := context.Background()

	token := p.Token("u-alice")

	// Swapping the subject invalidates the signature.
	forged := "u-bob" + token[len("u-alice"):]
	_, err := p.Verify(ctx, forged)
	assert.Error(t, err)

	// A token minted under another secret fails too.
	other := NewSigned([]byte("different")).Token("u-alice")
	_, err = p.Verify(ctx, other)
	assert.Error(t, err)
}

func TestSigned_MalformedTokens(t *testing.T) {
	p := NewSigned([]byte("secret"))
	ctx := context.Background()

	for _, token := range []string{"", "nodot", ".leading", "trailing."} {
		_, err := p.Verify(ctx, token)
		assert.Error(t, err, "token %q", token)
	}
}

// Subjects containing dots stay verifiable; the signature always
// follows the last separator.
func TestSigned_SubjectWithDots(t *testing.T) {
	p := NewSigned([]byte("secret"))

	token := p.Token("user.with.dots")
	subject, err := p.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user.with.dots", subject)
}
