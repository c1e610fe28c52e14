package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reservedPayload struct {
	Ref string `json:"ref"`
}

func TestEnvelopeDecode(t *testing.T) {
	env := NewEnvelope("StockReserved", "inventory", "cart_1", "trace-9", reservedPayload{Ref: "cart_1"})
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, envelopeVersion, env.EventVersion)

	got, err := DecodeEnvelope(MustMarshal(env))
	require.NoError(t, err)
	assert.Equal(t, env.EventID, got.EventID)
	assert.Equal(t, "trace-9", got.TraceID)

	p, err := UnwrapPayload[reservedPayload](got.Payload)
	require.NoError(t, err)
	assert.Equal(t, "cart_1", p.Ref)

	h := env.Headers()
	require.Len(t, h, 2)
	assert.Equal(t, "x-event-type", h[0].Key)
	assert.Equal(t, []byte("StockReserved"), h[0].Value)
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := DecodeEnvelope([]byte("{"))
	assert.Error(t, err)

	_, err = UnwrapPayload[reservedPayload]([]byte(`"nope"`))
	assert.Error(t, err)
}
