package nvs

import (
	"encoding/binary"
	"fmt"
)

// Entry type codes, as stored in the first byte of every value. The
// numbering follows the NVS item types.
const (
	typeI8  byte = 0x11
	typeU16 byte = 0x02
	typeI32 byte = 0x14
	typeU32 byte = 0x04
	typeStr byte = 0x21
)

type handle struct {
	store     *kvStore
	namespace string
	mode      Mode
	pending   map[string][]byte
	erase     bool
	closed    bool
}

func (h *handle) checkKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > h.store.maxKeyLen {
		return fmt.Errorf("%w: %q (%d > %d)", ErrKeyTooLong, key, len(key), h.store.maxKeyLen)
	}
	return nil
}

// lookup returns the raw entry, honoring uncommitted writes of this handle.
func (h *handle) lookup(key string, typ byte) ([]byte, error) {
	if h.closed {
		return nil, ErrClosed
	}
	if err := h.checkKey(key); err != nil {
		return nil, err
	}

	raw, ok := h.pending[key]
	if !ok {
		if h.erase {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		var err error
		raw, err = h.store.eng.get(h.namespace, key)
		if err != nil {
			return nil, err
		}
	}
	if len(raw) == 0 || raw[0] != typ {
		return nil, fmt.Errorf("%w: %s", ErrTypeMismatch, key)
	}
	return raw[1:], nil
}

func (h *handle) put(key string, typ byte, payload []byte) error {
	if h.closed {
		return ErrClosed
	}
	if h.mode != ReadWrite {
		return ErrReadOnly
	}
	if err := h.checkKey(key); err != nil {
		return err
	}
	raw := make([]byte, 1+len(payload))
	raw[0] = typ
	copy(raw[1:], payload)
	h.pending[key] = raw
	return nil
}

func (h *handle) GetI8(key string) (int8, error) {
	b, err := h.lookup(key, typeI8)
	if err != nil {
		return 0, err
	}
	if len(b) != 1 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidLength, key)
	}
	return int8(b[0]), nil
}

func (h *handle) GetI32(key string) (int32, error) {
	b, err := h.lookup(key, typeI32)
	if err != nil {
		return 0, err
	}
	if len(b) != 4 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidLength, key)
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (h *handle) GetU16(key string) (uint16, error) {
	b, err := h.lookup(key, typeU16)
	if err != nil {
		return 0, err
	}
	if len(b) != 2 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidLength, key)
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (h *handle) GetU32(key string) (uint32, error) {
	b, err := h.lookup(key, typeU32)
	if err != nil {
		return 0, err
	}
	if len(b) != 4 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidLength, key)
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (h *handle) GetStr(key string, capacity int) (string, error) {
	b, err := h.lookup(key, typeStr)
	if err != nil {
		return "", err
	}
	if len(b) > capacity {
		return "", fmt.Errorf("%w: %s holds %d bytes, capacity %d", ErrInvalidLength, key, len(b), capacity)
	}
	return string(b), nil
}

func (h *handle) SetI8(key string, v int8) error {
	return h.put(key, typeI8, []byte{byte(v)})
}

func (h *handle) SetI32(key string, v int32) error {
	return h.put(key, typeI32, binary.LittleEndian.AppendUint32(nil, uint32(v)))
}

func (h *handle) SetU16(key string, v uint16) error {
	return h.put(key, typeU16, binary.LittleEndian.AppendUint16(nil, v))
}

func (h *handle) SetU32(key string, v uint32) error {
	return h.put(key, typeU32, binary.LittleEndian.AppendUint32(nil, v))
}

func (h *handle) SetStr(key string, v string) error {
	if len(v) > MaxStrLen {
		return fmt.Errorf("%w: %s is %d bytes", ErrInvalidLength, key, len(v))
	}
	return h.put(key, typeStr, []byte(v))
}

func (h *handle) EraseAll() error {
	if h.closed {
		return ErrClosed
	}
	if h.mode != ReadWrite {
		return ErrReadOnly
	}
	h.erase = true
	h.pending = make(map[string][]byte)
	return nil
}

func (h *handle) Commit() error {
	if h.closed {
		return ErrClosed
	}
	if h.mode != ReadWrite {
		return ErrReadOnly
	}
	if err := h.store.eng.apply(h.namespace, h.pending, h.erase); err != nil {
		return fmt.Errorf("nvs: commit %s: %w", h.namespace, err)
	}
	h.pending = make(map[string][]byte)
	h.erase = false
	return nil
}

func (h *handle) Close() error {
	if h.closed {
		return ErrClosed
	}
	h.closed = true
	h.pending = nil
	return nil
}
