package wire

import (
	"fmt"

	"github.com/arloliu/msgpax/errs"
)

// Reserved extension type codes for the optional large-payload compression
// extension: a str/bin payload whose size crosses the writer's configured
// threshold is emitted as an extension token wrapping
// [algorithm byte][compressed bytes] instead of the raw token. Chosen from
// the user-assignable range (0-127) alongside ExtRefBackreference.
const (
	ExtCompressedBin int8 = 101
	ExtCompressedStr int8 = 102
)

// PayloadCodec compresses and decompresses large str/bin payloads.
// Satisfied by payload.Codec; declared here so the wire layer stays free of
// a dependency on any particular compression stack.
type PayloadCodec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// CodecResolver maps the algorithm byte carried in a compressed-payload
// extension token back to the codec that can decompress it.
type CodecResolver func(algorithm byte) (PayloadCodec, error)

// SetCompression enables compressed-payload emission on the writer for
// string/binary payloads of at least threshold bytes. A threshold of 0
// disables it (the default), keeping canonical wire output.
func (w *Writer) SetCompression(threshold int, algorithm byte, codec PayloadCodec) {
	w.compressThreshold = threshold
	w.compressAlgorithm = algorithm
	w.compressCodec = codec
}

// SetCodecResolver installs the decompression lookup used when a compressed-
// payload extension token is encountered by ReadString/ReadBin. Without a
// resolver those tokens surface as InvalidCode.
func (r *Reader) SetCodecResolver(resolve CodecResolver) {
	r.resolveCodec = resolve
}

func (w *Writer) shouldCompress(byteLen int) bool {
	return w.compressCodec != nil && w.compressThreshold > 0 && byteLen >= w.compressThreshold
}

func (w *Writer) writeCompressed(extType int8, data []byte) error {
	compressed, err := w.compressCodec.Compress(data)
	if err != nil {
		return err
	}
	if err := w.WriteExtHeader(extType, 1+len(compressed)); err != nil {
		return err
	}
	if err := w.WriteRaw([]byte{w.compressAlgorithm}); err != nil {
		return err
	}
	return w.WriteRaw(compressed)
}

// WriteString writes s as a str token, or as a compressed-payload extension
// when compression is configured and s crosses the threshold.
func (w *Writer) WriteString(s string) error {
	if w.shouldCompress(len(s)) {
		return w.writeCompressed(ExtCompressedStr, []byte(s))
	}
	if err := w.WriteStringHeader(len(s)); err != nil {
		return err
	}
	return w.WriteRaw([]byte(s))
}

// WriteBin writes data as a bin token, or as a compressed-payload extension
// when compression is configured and data crosses the threshold.
func (w *Writer) WriteBin(data []byte) error {
	if w.shouldCompress(len(data)) {
		return w.writeCompressed(ExtCompressedBin, data)
	}
	if err := w.WriteBinHeader(len(data)); err != nil {
		return err
	}
	return w.WriteRaw(data)
}

// readCompressed consumes a compressed-payload extension token whose header
// has already been read, returning the decompressed bytes.
func (r *Reader) readCompressed(length int) ([]byte, error) {
	if length < 1 {
		return nil, errs.New(errs.KindInvalidCode, fmt.Errorf("compressed payload missing algorithm byte"))
	}
	payload, err := r.ReadRaw(length)
	if err != nil {
		return nil, err
	}
	if r.resolveCodec == nil {
		return nil, errs.New(errs.KindInvalidCode, fmt.Errorf("compressed payload with no codec resolver installed"))
	}
	codec, err := r.resolveCodec(payload[0])
	if err != nil {
		return nil, errs.New(errs.KindInvalidCode, err)
	}
	return codec.Decompress(payload[1:])
}

// ReadString reads a str token (or a compressed-str extension) and returns
// its UTF-8 contents.
func (r *Reader) ReadString() (string, error) {
	code, err := r.PeekCode()
	if err != nil {
		return "", err
	}
	if IsExtFamily(code) {
		typeCode, length, err := r.ReadExtensionHeader()
		if err != nil {
			return "", err
		}
		if typeCode != ExtCompressedStr {
			return "", errs.New(errs.KindTokenMismatch, nil)
		}
		data, err := r.readCompressed(length)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	byteLen, err := r.ReadStringHeader()
	if err != nil {
		return "", err
	}
	data, err := r.ReadRaw(byteLen)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadBin reads a bin token (or a compressed-bin extension) and returns a
// copy of its payload, safe to retain.
func (r *Reader) ReadBin() ([]byte, error) {
	code, err := r.PeekCode()
	if err != nil {
		return nil, err
	}
	if IsExtFamily(code) {
		typeCode, length, err := r.ReadExtensionHeader()
		if err != nil {
			return nil, err
		}
		if typeCode != ExtCompressedBin {
			return nil, errs.New(errs.KindTokenMismatch, nil)
		}
		return r.readCompressed(length)
	}

	byteLen, err := r.ReadBinHeader()
	if err != nil {
		return nil, err
	}
	data, err := r.ReadRaw(byteLen)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
