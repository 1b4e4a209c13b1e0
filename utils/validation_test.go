package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransactionHash(t *testing.T) {
	assert.NoError(t, ValidateTransactionHash("0x"+strings.Repeat("ab", 32)))
	assert.Error(t, ValidateTransactionHash(""))
	assert.Error(t, ValidateTransactionHash("0xABCunique"))
	assert.Error(t, ValidateTransactionHash(strings.Repeat("ab", 33)))
}

func TestAddresses(t *testing.T) {
	const addr = "0x1f0184dc26a675008383f6c4c50CE53fB0473645"
	assert.True(t, ValidateAddress(addr))
	assert.False(t, ValidateAddress("0x1234"))
	assert.True(t, SameAddress(addr, strings.ToLower(addr)))
	assert.False(t, SameAddress(addr, "0x0000000000000000000000000000000000000001"))
}

func TestParseBigInt(t *testing.T) {
	n, err := ParseBigInt("5000000000000")
	require.NoError(t, err)
	assert.Equal(t, "5000000000000", n.String())

	for _, in := range []string{"", "1.5", "-1", "abc"} {
		_, err := ParseBigInt(in)
		assert.Error(t, err, in)
	}
}

func TestPrivateKeyFromHex(t *testing.T) {
	// Well-known development key.
	key, err := PrivateKeyFromHex("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", AddressFromPrivateKey(key).Hex())

	_, err = PrivateKeyFromHex("")
	assert.Error(t, err)
	_, err = PrivateKeyFromHex("zz")
	assert.Error(t, err)
}
