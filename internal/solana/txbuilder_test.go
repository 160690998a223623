package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SynergiaOS/SolanaSniper/internal/wallet"
)

func testKeypair(t *testing.T) *wallet.Keypair {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	kp, err := wallet.FromBase58(base58.Encode(priv))
	require.NoError(t, err)
	return kp
}

func TestBuildTransferTransaction(t *testing.T) {
	kp := testKeypair(t)
	toPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	to := base58.Encode(toPub)

	blockhashRaw := make([]byte, 32)
	_, err = rand.Read(blockhashRaw)
	require.NoError(t, err)
	blockhash := base58.Encode(blockhashRaw)

	encoded, err := BuildTransferTransaction(kp, to, 50_000, blockhash)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	// One signature, then the message.
	require.Equal(t, byte(1), raw[0])
	signature := raw[1:65]
	msg := raw[65:]

	// The payer's signature over the message must verify.
	assert.True(t, ed25519.Verify(kp.PublicKey(), msg, signature))

	// Header: 1 required signature, 1 readonly unsigned account.
	assert.Equal(t, byte(1), msg[0])
	assert.Equal(t, byte(0), msg[1])
	assert.Equal(t, byte(1), msg[2])

	// Three account keys: payer, destination, system program.
	require.Equal(t, byte(3), msg[3])
	assert.Equal(t, []byte(kp.PublicKey()), msg[4:36])
	assert.Equal(t, []byte(toPub), msg[36:68])

	systemProgram, err := base58.Decode(systemProgramID)
	require.NoError(t, err)
	assert.Equal(t, systemProgram, msg[68:100])

	// Blockhash follows the keys.
	assert.Equal(t, blockhashRaw, msg[100:132])

	// One instruction: program index 2, accounts [0,1], 12 data bytes.
	instr := msg[132:]
	require.Equal(t, byte(1), instr[0])
	assert.Equal(t, byte(2), instr[1])
	assert.Equal(t, byte(2), instr[2])
	assert.Equal(t, []byte{0, 1}, instr[3:5])
	require.Equal(t, byte(12), instr[5])

	data := instr[6:18]
	assert.Equal(t, uint32(systemTransferIndex), binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, uint64(50_000), binary.LittleEndian.Uint64(data[4:12]))
}

func TestBuildTransferTransaction_BadInputs(t *testing.T) {
	kp := testKeypair(t)

	_, err := BuildTransferTransaction(kp, "short", 1, base58.Encode(make([]byte, 32)))
	assert.Error(t, err)

	toPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_, err = BuildTransferTransaction(kp, base58.Encode(toPub), 1, "bad-hash")
	assert.Error(t, err)
}

func TestAppendShortvecLen(t *testing.T) {
	assert.Equal(t, []byte{0x05}, appendShortvecLen(nil, 5))
	assert.Equal(t, []byte{0x80, 0x01}, appendShortvecLen(nil, 128))
	assert.Equal(t, []byte{0xff, 0x01}, appendShortvecLen(nil, 255))
}
