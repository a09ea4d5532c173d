package blake2s

import (
	"testing"

	"github.com/stretchr/testify/require"
	ref "golang.org/x/crypto/blake2s"
)

// testPattern returns n bytes of deterministic, non-repeating-ish filler.
func testPattern(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i*7 + 3)
	}
	return buf
}

func TestIncrementalMatchesOneShot(t *testing.T) {
	msg := testPattern(1000)

	want := make([]byte, 32)
	require.NoError(t, Hash(want, msg, nil))

	// Split at single bytes, mid-block offsets, and block boundaries.
	for _, chunk := range []int{1, 7, 32, 63, 64, 65, 128, 129, 256, 1000} {
		d, err := NewDigest(nil, nil, nil, 32)
		require.NoError(t, err)

		for off := 0; off < len(msg); off += chunk {
			end := off + chunk
			if end > len(msg) {
				end = len(msg)
			}
			n, err := d.Write(msg[off:end])
			require.NoError(t, err)
			require.Equal(t, end-off, n)
		}

		got := make([]byte, 32)
		require.NoError(t, d.Final(got))
		require.Equal(t, want, got, "chunk size %d", chunk)
	}
}

// The requested digest length is baked into the parameter block, so every
// output length is its own hash function: a shorter digest is not a prefix of
// a longer one. Each length must still be deterministic and agree across the
// one-shot, incremental, and Sum paths.
func TestOutputLengths(t *testing.T) {
	key := testPattern(32)

	for _, msg := range [][]byte{nil, []byte("output length probe")} {
		for _, k := range [][]byte{nil, key} {
			for outlen := 1; outlen <= MaxOutput; outlen++ {
				oneShot := make([]byte, outlen)
				require.NoError(t, Hash(oneShot, msg, k))

				again := make([]byte, outlen)
				require.NoError(t, Hash(again, msg, k))
				require.Equal(t, oneShot, again, "outlen %d not deterministic", outlen)

				d, err := NewDigest(k, nil, nil, outlen)
				require.NoError(t, err)
				d.Write(msg)
				require.Equal(t, oneShot, d.Sum(nil), "outlen %d: Sum disagrees with one-shot", outlen)

				incremental := make([]byte, outlen)
				require.NoError(t, d.Final(incremental))
				require.Equal(t, oneShot, incremental, "outlen %d: Final disagrees with one-shot", outlen)
			}
		}
	}
}

// The digest-length parameter separates the hash domains: the 1-byte digest
// of the empty message is 0xa1, not the leading 0x69 of its 32-byte digest.
func TestTruncatedLengthIsNotAPrefix(t *testing.T) {
	full := make([]byte, 32)
	require.NoError(t, Hash(full, nil, nil))
	require.Equal(t, byte(0x69), full[0])

	short := make([]byte, 1)
	require.NoError(t, Hash(short, nil, nil))
	require.Equal(t, byte(0xa1), short[0])
	require.NotEqual(t, full[:1], short)
}

func TestKeyedDiffersFromUnkeyed(t *testing.T) {
	msg := []byte("the same message either way")
	key := []byte{0x01}

	unkeyed := make([]byte, 32)
	require.NoError(t, Hash(unkeyed, msg, nil))
	keyed := make([]byte, 32)
	require.NoError(t, Hash(keyed, msg, key))

	require.NotEqual(t, unkeyed, keyed)

	// A present but zero-length key means unkeyed.
	emptyKeyed := make([]byte, 32)
	require.NoError(t, Hash(emptyKeyed, msg, []byte{}))
	require.Equal(t, unkeyed, emptyKeyed)
}

// The counter at finalization equals the total message length, which pins
// down how many compressions the lag buffer performed along the way.
func TestBoundaryBuffering(t *testing.T) {
	cases := []struct {
		inlen     int
		wantT0    uint32 // counter after Write
		wantBuf   int    // buffered bytes after Write
		wantFinal uint32 // counter after Final
	}{
		{inlen: 63, wantT0: 0, wantBuf: 63, wantFinal: 63},
		{inlen: 64, wantT0: 0, wantBuf: 64, wantFinal: 64},
		{inlen: 128, wantT0: 0, wantBuf: 128, wantFinal: 128},
		{inlen: 129, wantT0: 64, wantBuf: 65, wantFinal: 129},
		{inlen: 256, wantT0: 128, wantBuf: 128, wantFinal: 256},
	}

	for _, tc := range cases {
		msg := testPattern(tc.inlen)

		d, err := NewDigest(nil, nil, nil, 32)
		require.NoError(t, err)
		d.Write(msg)
		require.Equal(t, tc.wantT0, d.t0, "counter after writing %d bytes", tc.inlen)
		require.Equal(t, tc.wantBuf, d.buflen, "buffered bytes after writing %d bytes", tc.inlen)

		got := make([]byte, 32)
		require.NoError(t, d.Final(got))
		require.Equal(t, tc.wantFinal, d.t0, "counter after finalizing %d bytes", tc.inlen)
		require.Equal(t, uint32(0xFFFFFFFF), d.f0)

		want := ref.Sum256(msg)
		require.Equal(t, want[:], got, "digest for %d-byte input", tc.inlen)
	}
}

func TestZeroLengthWriteIsNoOp(t *testing.T) {
	d, err := NewDigest(nil, nil, nil, 32)
	require.NoError(t, err)

	d.Write(nil)
	d.Write([]byte{})
	require.Equal(t, 0, d.buflen)
	require.Equal(t, uint32(0), d.t0)

	want := ref.Sum256(nil)
	require.Equal(t, want[:], d.Sum(nil))
}

func TestCrossImplementation(t *testing.T) {
	for _, n := range []int{0, 1, 3, 31, 63, 64, 65, 127, 128, 129, 1000, 4096} {
		msg := testPattern(n)

		ours := Sum256(msg)
		theirs := ref.Sum256(msg)
		require.Equal(t, theirs[:], ours[:], "unkeyed, %d-byte input", n)
	}
}

func TestCrossImplementationKeyed(t *testing.T) {
	key := testPattern(32)

	for _, n := range []int{0, 1, 64, 128, 129, 1000} {
		msg := testPattern(n)

		h, err := ref.New256(key)
		require.NoError(t, err)
		h.Write(msg)
		theirs := h.Sum(nil)

		ours := make([]byte, 32)
		require.NoError(t, Hash(ours, msg, key))
		require.Equal(t, theirs, ours, "keyed, %d-byte input", n)
	}
}
