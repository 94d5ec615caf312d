package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/shardproxy/xerrors"
)

func TestSerializers(t *testing.T) {
	for _, typ := range []string{"", JSON, MsgPack} {
		t.Run(typ, func(t *testing.T) {
			s, err := New(typ)
			require.NoError(t, err)

			data, err := s.Marshal([]string{"db.a", "db.b"})
			require.NoError(t, err)

			var got []string
			require.NoError(t, s.Unmarshal(data, &got))
			assert.Equal(t, []string{"db.a", "db.b"}, got)
		})
	}
}

func TestUnsupported(t *testing.T) {
	_, err := New("xml")
	assert.ErrorIs(t, err, ErrUnsupportedSerializer)
	assert.True(t, xerrors.Is(err, xerrors.ErrUnsupported))
}
