// Package blake2 implements the BLAKE2s secure hashing algorithm with
// support for keying, salting and personalization. BLAKE2s is optimized for
// 8- to 32-bit platforms and produces digests of any size between 1 and 32
// bytes.
package blake2
