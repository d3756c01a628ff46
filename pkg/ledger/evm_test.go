package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapsage-bridge/pkg/htlc"
)

func TestComputeLockIDDeterministic(t *testing.T) {
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	recipient := common.HexToAddress("0x2222222222222222222222222222222222222222")
	token := common.Address{}
	amount := big.NewInt(1_000_000)
	_, hashlock, err := htlc.GenerateSecret()
	require.NoError(t, err)
	timelock := int64(1767225600)

	a := ComputeLockID(sender, recipient, token, amount, hashlock, timelock)
	b := ComputeLockID(sender, recipient, token, amount, hashlock, timelock)
	assert.Equal(t, a, b, "identical parameters must derive the same id")

	// Each parameter participates in the id.
	assert.NotEqual(t, a, ComputeLockID(recipient, sender, token, amount, hashlock, timelock))
	assert.NotEqual(t, a, ComputeLockID(sender, recipient, token, big.NewInt(1_000_001), hashlock, timelock))
	assert.NotEqual(t, a, ComputeLockID(sender, recipient, token, amount, hashlock, timelock+1))

	_, other, err := htlc.GenerateSecret()
	require.NoError(t, err)
	assert.NotEqual(t, a, ComputeLockID(sender, recipient, token, amount, other, timelock))
}

func TestEVMValidateAddress(t *testing.T) {
	e := &EVMAdapter{}

	assert.NoError(t, e.ValidateAddress("0x1111111111111111111111111111111111111111"))
	assert.NoError(t, e.ValidateAddress("1111111111111111111111111111111111111111"))

	for _, bad := range []string{
		"",
		"0x123",
		"GABCDEFGHIJKLMNOPQRSTUVWXYZ234567",
		"0xZZ11111111111111111111111111111111111111",
	} {
		err := e.ValidateAddress(bad)
		assert.ErrorIs(t, err, htlc.ErrInvalidRequest, "address %q", bad)
	}
}

func TestDecodeLockID(t *testing.T) {
	id := "0xabcd00112233445566778899aabbccddeeff00112233445566778899aabbccdd"
	h, err := DecodeLockID(id)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash(id), h)

	_, err = DecodeLockID("0xdeadbeef")
	assert.Error(t, err)
	_, err = DecodeLockID("not-hex")
	assert.Error(t, err)
}
