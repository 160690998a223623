package solana

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/SynergiaOS/SolanaSniper/internal/wallet"
)

// System program owns native transfers.
const systemProgramID = "11111111111111111111111111111111"

// System program instruction index for Transfer.
const systemTransferIndex = 2

// BuildTransferTransaction assembles and signs a legacy transaction moving
// lamports from the keypair to a destination account. Used for relay tip
// payments.
func BuildTransferTransaction(kp *wallet.Keypair, to string, lamports uint64, recentBlockhash string) (string, error) {
	toKey, err := base58.Decode(to)
	if err != nil || len(toKey) != 32 {
		return "", fmt.Errorf("invalid destination %q", to)
	}
	programKey, err := base58.Decode(systemProgramID)
	if err != nil {
		return "", fmt.Errorf("decode system program: %w", err)
	}
	blockhash, err := base58.Decode(recentBlockhash)
	if err != nil || len(blockhash) != 32 {
		return "", fmt.Errorf("invalid blockhash %q", recentBlockhash)
	}

	// Message: header, account keys, blockhash, instructions.
	var msg []byte

	// numRequiredSignatures, numReadonlySigned, numReadonlyUnsigned
	msg = append(msg, 1, 0, 1)

	// Account keys: payer (writable signer), destination (writable),
	// system program (readonly).
	msg = appendShortvecLen(msg, 3)
	msg = append(msg, kp.PublicKey()...)
	msg = append(msg, toKey...)
	msg = append(msg, programKey...)

	msg = append(msg, blockhash...)

	// One instruction: system transfer.
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], systemTransferIndex)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	msg = appendShortvecLen(msg, 1)
	msg = append(msg, 2)              // program id index
	msg = appendShortvecLen(msg, 2)   // account index count
	msg = append(msg, 0, 1)           // from, to
	msg = appendShortvecLen(msg, 12)  // data length
	msg = append(msg, data...)

	signature := kp.Sign(msg)

	var tx []byte
	tx = appendShortvecLen(tx, 1)
	tx = append(tx, signature...)
	tx = append(tx, msg...)

	return base64.StdEncoding.EncodeToString(tx), nil
}

// appendShortvecLen appends a compact-u16 length prefix.
func appendShortvecLen(buf []byte, n int) []byte {
	for {
		if n < 0x80 {
			return append(buf, byte(n))
		}
		buf = append(buf, byte(n&0x7f)|0x80)
		n >>= 7
	}
}
