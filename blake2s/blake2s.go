// Package blake2s implements the BLAKE2s secure hashing algorithm with
// support for keying, salting and personalization. BLAKE2s is optimized for
// 8- to 32-bit platforms and produces digests of any size between 1 and 32
// bytes.
package blake2s

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// The constant values will be different for other BLAKE2 variants. These are
// appropriate for BLAKE2s.
const (
	// The maximum length of the key field.
	KeyLength = 32
	// The maximum number of bytes to produce.
	MaxOutput = 32
	// Max size of the salt, in bytes
	SaltLength = 8
	// Max size of the personalization string, in bytes
	SeparatorLength = 8
	// Number of G function rounds for BLAKE2s.
	RoundCount = 10
	// Size of a block buffer in bytes
	BlockBytes = 64

	// Initialization vector for BLAKE2s
	IV0 uint32 = 0x6a09e667
	IV1 uint32 = 0xbb67ae85
	IV2 uint32 = 0x3c6ef372
	IV3 uint32 = 0xa54ff53a
	IV4 uint32 = 0x510e527f
	IV5 uint32 = 0x9b05688c
	IV6 uint32 = 0x1f83d9ab
	IV7 uint32 = 0x5be0cd19
)

// ErrInvalidParam is returned, wrapped with a specific message, when a digest
// is configured with an out-of-range output, key, salt, or personalization
// length. Match it with errors.Is.
var ErrInvalidParam = errors.New("blake2s: invalid parameter")

// These are the user-visible parameters of a BLAKE2 hash instance. The
// parameter block is XOR'd with the IV at the beginning of the hash.
// Currently we only support sequential mode, so many of these values will be
// hardcoded to a default. They are nevertheless defined for clarity.
type parameterBlock struct {
	DigestSize      byte   // 0
	KeyLength       byte   // 1
	fanout          byte   // 2
	depth           byte   // 3
	leafLength      uint32 // 4-7
	nodeOffset      uint32 // 8-11
	xofLength       uint16 // 12-13
	nodeDepth       byte   // 14
	innerLength     byte   // 15
	Salt            []byte // 16-23
	Personalization []byte // 24-31
}

// Packs a BLAKE2 parameter block.
func (p *parameterBlock) Marshal() []byte {
	buf := make([]byte, 32)
	buf[0] = p.DigestSize
	buf[1] = p.KeyLength
	buf[2] = p.fanout
	buf[3] = p.depth
	putU32LE(buf[4:], p.leafLength)
	putU32LE(buf[8:], p.nodeOffset)
	binary.LittleEndian.PutUint16(buf[12:], p.xofLength)
	buf[14] = p.nodeDepth
	buf[15] = p.innerLength
	copy(buf[16:], p.Salt)
	copy(buf[24:], p.Personalization)
	return buf
}

// Digest represents the internal state of the BLAKE2s algorithm.
type Digest struct {
	h      [8]uint32
	t0, t1 uint32
	f0, f1 uint32

	// The buffer holds up to two blocks and always lags one full block
	// behind the compressions performed by Write: a block that could turn
	// out to be the last one must not be compressed until Final has set the
	// finalization flag.
	buf    [2 * BlockBytes]byte
	buflen int

	// size is defined in hash.Hash, and returns the number of bytes Sum will
	// return. Since BLAKE2 output length is dynamic, so is this.
	size int

	// keyed digests cannot be reset; the padded key block is burned as soon
	// as it has been absorbed.
	keyed bool

	// lastNode marks the rightmost node of a layer in tree hashing.
	// Sequential hashing leaves it false.
	lastNode bool

	// chain value right after parameter initialization, kept for Reset
	ih [8]uint32
}

// After this function is called, the ParameterBlock can be discarded.
func initFromParams(p *parameterBlock) *Digest {
	paramBytes := p.Marshal()

	h0 := IV0 ^ u32LE(paramBytes[0:4])
	h1 := IV1 ^ u32LE(paramBytes[4:8])
	h2 := IV2 ^ u32LE(paramBytes[8:12])
	h3 := IV3 ^ u32LE(paramBytes[12:16])
	h4 := IV4 ^ u32LE(paramBytes[16:20])
	h5 := IV5 ^ u32LE(paramBytes[20:24])
	h6 := IV6 ^ u32LE(paramBytes[24:28])
	h7 := IV7 ^ u32LE(paramBytes[28:32])

	d := &Digest{
		h:    [8]uint32{h0, h1, h2, h3, h4, h5, h6, h7},
		size: int(p.DigestSize),
	}
	d.ih = d.h

	return d
}

// NewDigest constructs a new instance of a BLAKE2s hash with the provided
// configuration. A nil key yields an unkeyed hash; a key of 1 to 32 bytes is
// absorbed as a prefix-MAC key per the BLAKE2 specification.
func NewDigest(key, salt, personalization []byte, outputBytes int) (*Digest, error) {
	params := &parameterBlock{
		fanout: 1, // sequential mode
		depth:  1, // sequential mode
	}

	if outputBytes <= 0 {
		return nil, fmt.Errorf("%w: asked for negative or zero output", ErrInvalidParam)
	}
	if outputBytes > MaxOutput {
		return nil, fmt.Errorf("%w: asked for too much output", ErrInvalidParam)
	}
	params.DigestSize = byte(outputBytes & 0xFF)

	if key != nil {
		if len(key) > KeyLength {
			return nil, fmt.Errorf("%w: key too large", ErrInvalidParam)
		}
		params.KeyLength = byte(len(key) & 0xFF)
	}

	params.Salt = make([]byte, SaltLength)
	if salt != nil {
		if len(salt) > SaltLength {
			return nil, fmt.Errorf("%w: salt too large", ErrInvalidParam)
		}
		// If salt is too short, this will implicitly right-pad with zero.
		copy(params.Salt, salt)
	}

	params.Personalization = make([]byte, SeparatorLength)
	if personalization != nil {
		if len(personalization) > SeparatorLength {
			return nil, fmt.Errorf("%w: personalization string too large", ErrInvalidParam)
		}
		// If personalization string is short, this will implicitly right-pad with zero.
		copy(params.Personalization, personalization)
	}

	// Initialize the internal state
	digest := initFromParams(params)

	if len(key) > 0 {
		// The key, zero-padded to a full block, is absorbed as the first
		// message block. Burn the padded copy once it has been buffered.
		var keyBlock [BlockBytes]byte
		copy(keyBlock[:], key)
		digest.Write(keyBlock[:])
		burn(keyBlock[:])
		digest.keyed = true
	}

	return digest, nil
}

// Write adds more data to the running hash.
func (d *Digest) Write(input []byte) (n int, err error) {
	bytesWritten := 0

	// If the input fits in the double buffer, just copy and wait for more.
	// Otherwise fill the buffer to capacity, compress its first block, and
	// shift the untouched second block to the front.
	for bytesWritten < len(input) {
		freeBytes := len(d.buf) - d.buflen
		inputLeft := len(input) - bytesWritten

		if inputLeft <= freeBytes {
			copy(d.buf[d.buflen:], input[bytesWritten:])
			d.buflen += inputLeft
			return bytesWritten + inputLeft, nil
		}

		copy(d.buf[d.buflen:], input[bytesWritten:bytesWritten+freeBytes])
		d.buflen = len(d.buf)

		// increment counter, preserving overflow behavior
		d.incrementCounter(BlockBytes)

		d.compress(d.buf[:BlockBytes])

		copy(d.buf[:BlockBytes], d.buf[BlockBytes:])
		d.buflen -= BlockBytes

		// advance pointers
		bytesWritten += freeBytes

		// loop until the remaining input fits in the buffer
	}

	return bytesWritten, nil
}

func (d *Digest) incrementCounter(inc uint32) {
	d.t0 += inc
	if d.t0 < inc {
		d.t1++
	}
}

func (d *Digest) compress(block []byte) {
	// Create the internal round state. Copy the current hash state to the top,
	// then the tweaked IVs to the bottom. Use local variables to avoid
	// allocating another slice.
	v0, v1, v2, v3 := d.h[0], d.h[1], d.h[2], d.h[3]
	v4, v5, v6, v7 := d.h[4], d.h[5], d.h[6], d.h[7]
	v8, v9, v10, v11 := IV0, IV1, IV2, IV3
	v12 := IV4 ^ d.t0
	v13 := IV5 ^ d.t1
	v14 := IV6 ^ d.f0
	v15 := IV7 ^ d.f1

	// This round structure is several steps removed from the BLAKE2
	// specification and reference implementation. We unrolled the loops and calculated the
	// offsets from the permutation table entry for each round, then directly
	// mapped it to the correct word of the input block. This is a tradeoff:
	// the doubly-indirect lookups were horrible for performance, but it's not
	// at all obvious what this code is doing anymore.
	//
	// We also split the message block into 16x32-bit words (m0..m15) as late
	// as possible before they're needed. The small decrease in liveness scope
	// matters ever-so-slightly.

	// Round 0 w/ precomputed permutation offsets
	m0 := u32LE(block[0:4])
	m1 := u32LE(block[4:8])
	v0, v4, v8, v12 = g(v0+v4+m0, v4, v8, v12, m1)
	m2 := u32LE(block[8:12])
	m3 := u32LE(block[12:16])
	v1, v5, v9, v13 = g(v1+v5+m2, v5, v9, v13, m3)
	m4 := u32LE(block[16:20])
	m5 := u32LE(block[20:24])
	v2, v6, v10, v14 = g(v2+v6+m4, v6, v10, v14, m5)
	m6 := u32LE(block[24:28])
	m7 := u32LE(block[28:32])
	v3, v7, v11, v15 = g(v3+v7+m6, v7, v11, v15, m7)
	m8 := u32LE(block[32:36])
	m9 := u32LE(block[36:40])
	v0, v5, v10, v15 = g(v0+v5+m8, v5, v10, v15, m9)
	m10 := u32LE(block[40:44])
	m11 := u32LE(block[44:48])
	v1, v6, v11, v12 = g(v1+v6+m10, v6, v11, v12, m11)
	m12 := u32LE(block[48:52])
	m13 := u32LE(block[52:56])
	v2, v7, v8, v13 = g(v2+v7+m12, v7, v8, v13, m13)
	m14 := u32LE(block[56:60])
	m15 := u32LE(block[60:64])
	v3, v4, v9, v14 = g(v3+v4+m14, v4, v9, v14, m15)

	// Round 1
	v0, v4, v8, v12 = g(v0+v4+m14, v4, v8, v12, m10)
	v1, v5, v9, v13 = g(v1+v5+m4, v5, v9, v13, m8)
	v2, v6, v10, v14 = g(v2+v6+m9, v6, v10, v14, m15)
	v3, v7, v11, v15 = g(v3+v7+m13, v7, v11, v15, m6)

	v0, v5, v10, v15 = g(v0+v5+m1, v5, v10, v15, m12)
	v1, v6, v11, v12 = g(v1+v6+m0, v6, v11, v12, m2)
	v2, v7, v8, v13 = g(v2+v7+m11, v7, v8, v13, m7)
	v3, v4, v9, v14 = g(v3+v4+m5, v4, v9, v14, m3)

	// Round 2
	v0, v4, v8, v12 = g(v0+v4+m11, v4, v8, v12, m8)
	v1, v5, v9, v13 = g(v1+v5+m12, v5, v9, v13, m0)
	v2, v6, v10, v14 = g(v2+v6+m5, v6, v10, v14, m2)
	v3, v7, v11, v15 = g(v3+v7+m15, v7, v11, v15, m13)

	v0, v5, v10, v15 = g(v0+v5+m10, v5, v10, v15, m14)
	v1, v6, v11, v12 = g(v1+v6+m3, v6, v11, v12, m6)
	v2, v7, v8, v13 = g(v2+v7+m7, v7, v8, v13, m1)
	v3, v4, v9, v14 = g(v3+v4+m9, v4, v9, v14, m4)

	// Round 3
	v0, v4, v8, v12 = g(v0+v4+m7, v4, v8, v12, m9)
	v1, v5, v9, v13 = g(v1+v5+m3, v5, v9, v13, m1)
	v2, v6, v10, v14 = g(v2+v6+m13, v6, v10, v14, m12)
	v3, v7, v11, v15 = g(v3+v7+m11, v7, v11, v15, m14)

	v0, v5, v10, v15 = g(v0+v5+m2, v5, v10, v15, m6)
	v1, v6, v11, v12 = g(v1+v6+m5, v6, v11, v12, m10)
	v2, v7, v8, v13 = g(v2+v7+m4, v7, v8, v13, m0)
	v3, v4, v9, v14 = g(v3+v4+m15, v4, v9, v14, m8)

	// Round 4
	v0, v4, v8, v12 = g(v0+v4+m9, v4, v8, v12, m0)
	v1, v5, v9, v13 = g(v1+v5+m5, v5, v9, v13, m7)
	v2, v6, v10, v14 = g(v2+v6+m2, v6, v10, v14, m4)
	v3, v7, v11, v15 = g(v3+v7+m10, v7, v11, v15, m15)

	v0, v5, v10, v15 = g(v0+v5+m14, v5, v10, v15, m1)
	v1, v6, v11, v12 = g(v1+v6+m11, v6, v11, v12, m12)
	v2, v7, v8, v13 = g(v2+v7+m6, v7, v8, v13, m8)
	v3, v4, v9, v14 = g(v3+v4+m3, v4, v9, v14, m13)

	// Round 5
	v0, v4, v8, v12 = g(v0+v4+m2, v4, v8, v12, m12)
	v1, v5, v9, v13 = g(v1+v5+m6, v5, v9, v13, m10)
	v2, v6, v10, v14 = g(v2+v6+m0, v6, v10, v14, m11)
	v3, v7, v11, v15 = g(v3+v7+m8, v7, v11, v15, m3)

	v0, v5, v10, v15 = g(v0+v5+m4, v5, v10, v15, m13)
	v1, v6, v11, v12 = g(v1+v6+m7, v6, v11, v12, m5)
	v2, v7, v8, v13 = g(v2+v7+m15, v7, v8, v13, m14)
	v3, v4, v9, v14 = g(v3+v4+m1, v4, v9, v14, m9)

	// Round 6
	v0, v4, v8, v12 = g(v0+v4+m12, v4, v8, v12, m5)
	v1, v5, v9, v13 = g(v1+v5+m1, v5, v9, v13, m15)
	v2, v6, v10, v14 = g(v2+v6+m14, v6, v10, v14, m13)
	v3, v7, v11, v15 = g(v3+v7+m4, v7, v11, v15, m10)

	v0, v5, v10, v15 = g(v0+v5+m0, v5, v10, v15, m7)
	v1, v6, v11, v12 = g(v1+v6+m6, v6, v11, v12, m3)
	v2, v7, v8, v13 = g(v2+v7+m9, v7, v8, v13, m2)
	v3, v4, v9, v14 = g(v3+v4+m8, v4, v9, v14, m11)

	// Round 7
	v0, v4, v8, v12 = g(v0+v4+m13, v4, v8, v12, m11)
	v1, v5, v9, v13 = g(v1+v5+m7, v5, v9, v13, m14)
	v2, v6, v10, v14 = g(v2+v6+m12, v6, v10, v14, m1)
	v3, v7, v11, v15 = g(v3+v7+m3, v7, v11, v15, m9)

	v0, v5, v10, v15 = g(v0+v5+m5, v5, v10, v15, m0)
	v1, v6, v11, v12 = g(v1+v6+m15, v6, v11, v12, m4)
	v2, v7, v8, v13 = g(v2+v7+m8, v7, v8, v13, m6)
	v3, v4, v9, v14 = g(v3+v4+m2, v4, v9, v14, m10)

	// Round 8
	v0, v4, v8, v12 = g(v0+v4+m6, v4, v8, v12, m15)
	v1, v5, v9, v13 = g(v1+v5+m14, v5, v9, v13, m9)
	v2, v6, v10, v14 = g(v2+v6+m11, v6, v10, v14, m3)
	v3, v7, v11, v15 = g(v3+v7+m0, v7, v11, v15, m8)

	v0, v5, v10, v15 = g(v0+v5+m12, v5, v10, v15, m2)
	v1, v6, v11, v12 = g(v1+v6+m13, v6, v11, v12, m7)
	v2, v7, v8, v13 = g(v2+v7+m1, v7, v8, v13, m4)
	v3, v4, v9, v14 = g(v3+v4+m10, v4, v9, v14, m5)

	// Round 9
	v0, v4, v8, v12 = g(v0+v4+m10, v4, v8, v12, m2)
	v1, v5, v9, v13 = g(v1+v5+m8, v5, v9, v13, m4)
	v2, v6, v10, v14 = g(v2+v6+m7, v6, v10, v14, m6)
	v3, v7, v11, v15 = g(v3+v7+m1, v7, v11, v15, m5)

	v0, v5, v10, v15 = g(v0+v5+m15, v5, v10, v15, m11)
	v1, v6, v11, v12 = g(v1+v6+m9, v6, v11, v12, m14)
	v2, v7, v8, v13 = g(v2+v7+m3, v7, v8, v13, m12)
	v3, v4, v9, v14 = g(v3+v4+m13, v4, v9, v14, m0)

	d.h[0] = d.h[0] ^ v0 ^ v8
	d.h[1] = d.h[1] ^ v1 ^ v9
	d.h[2] = d.h[2] ^ v2 ^ v10
	d.h[3] = d.h[3] ^ v3 ^ v11
	d.h[4] = d.h[4] ^ v4 ^ v12
	d.h[5] = d.h[5] ^ v5 ^ v13
	d.h[6] = d.h[6] ^ v6 ^ v14
	d.h[7] = d.h[7] ^ v7 ^ v15
}

// The internal BLAKE2s round function.
func g(a, b, c, d, m1 uint32) (uint32, uint32, uint32, uint32) {
	// We lift the table lookups and the initial triple addition into the
	// caller so this function has a better chance of inlining.

	// a = a + b + m0
	d = ((d ^ a) >> 16) | ((d ^ a) << (32 - 16))
	c = c + d
	b = ((b ^ c) >> 12) | ((b ^ c) << (32 - 12))
	a = a + b + m1
	d = ((d ^ a) >> 8) | ((d ^ a) << (32 - 8))
	c = c + d
	b = ((b ^ c) >> 7) | ((b ^ c) << (32 - 7))

	return a, b, c, d
}

// finalize pads and compresses whatever the buffer still holds and writes the
// digest into out, which must be exactly d.size bytes. It mutates d.
func (d *Digest) finalize(out []byte) error {
	if d.f0 != 0 {
		return errors.New("blake2s: tried to finalize but last flag already set")
	}

	// The lag buffer may still hold a full block ahead of the true final
	// remainder. Compress and drop it first.
	if d.buflen > BlockBytes {
		d.incrementCounter(BlockBytes)
		d.compress(d.buf[:BlockBytes])
		copy(d.buf[:BlockBytes], d.buf[BlockBytes:])
		d.buflen -= BlockBytes
	}

	// increment counter by size of pending input before padding
	d.incrementCounter(uint32(d.buflen))

	// set last block flag, and last node flag when tree hashing
	if d.lastNode {
		d.f1 = 0xFFFFFFFF
	}
	d.f0 = 0xFFFFFFFF

	// Zero the unused portion of the final block.
	memclrBuf := d.buf[d.buflen:BlockBytes]
	for i := range memclrBuf {
		memclrBuf[i] = 0
	}

	d.compress(d.buf[:BlockBytes])

	var sum [MaxOutput]byte
	for i := 0; i < 8; i++ {
		putU32LE(sum[i*4:], d.h[i])
	}
	copy(out, sum[:d.size])

	return nil
}

// Final produces the digest and consumes the state: the Digest must not be
// written to afterwards, and a second Final reports an error. out must have
// room for Size() bytes.
func (d *Digest) Final(out []byte) error {
	if len(out) < d.size {
		return fmt.Errorf("%w: output shorter than configured digest size", ErrInvalidParam)
	}
	return d.finalize(out[:d.size])
}

// Sum appends the current hash to b and returns the resulting slice.
// It does not change the underlying hash state.
func (d *Digest) Sum(b []byte) (out []byte) {
	// if there's space, reuse the b slice
	if n := len(b) + d.size; cap(b) >= n {
		out = b[:n]
	} else {
		out = make([]byte, n)
		copy(out, b)
	}

	// Finalize a copy so the caller can keep writing and summing.
	dCopy := *d
	if err := dCopy.finalize(out[len(b):]); err != nil {
		return out[:len(b)]
	}

	return out
}

// Reset restores an unkeyed Digest to its initial state. Keyed digests cannot
// be reset because the key block is burned during construction; build a new
// one instead.
func (d *Digest) Reset() {
	if d.keyed {
		panic("blake2s: cannot reset a keyed digest")
	}
	d.h = d.ih
	d.t0, d.t1 = 0, 0
	d.f0, d.f1 = 0, 0
	d.buflen = 0
}

// Size returns the digest output size in bytes.
func (d *Digest) Size() int { return d.size }

// BlockSize returns the hash's underlying block size. The Write method must be
// able to accept any amount of data, but it may operate more efficiently if
// all writes are a multiple of the block size.
func (d *Digest) BlockSize() int { return BlockBytes }

// Hash computes the BLAKE2s digest of in and writes it to out. The digest
// length is len(out), which must be between 1 and MaxOutput. A nil or empty
// key yields the unkeyed hash; otherwise the key must be at most KeyLength
// bytes.
func Hash(out, in, key []byte) error {
	if len(key) == 0 {
		// An absent key downgrades to the unkeyed hash.
		key = nil
	}

	d, err := NewDigest(key, nil, nil, len(out))
	if err != nil {
		return err
	}
	d.Write(in)
	return d.Final(out)
}

// Sum256 returns the 32-byte unkeyed BLAKE2s digest of data.
func Sum256(data []byte) [MaxOutput]byte {
	var out [MaxOutput]byte
	d, _ := NewDigest(nil, nil, nil, MaxOutput)
	d.Write(data)
	d.Final(out[:])
	return out
}

// burn overwrites b with zeros so key material does not linger in dead
// buffers. Kept in its own function so the clearing writes are not folded
// away with the buffer's last use.
func burn(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func u32LE(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

func putU32LE(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}
