package blockdev

import "sync"

var _ Device = (*Memory)(nil)

// Memory is a Device backed by a byte slice. It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemory returns a zeroed device of the given number of blocks.
func NewMemory(blocks uint32) *Memory {
	return &Memory{data: make([]byte, int(blocks)*BlockSize)}
}

// NewMemoryFrom uses image as backing storage. Trailing bytes which do not
// fill a whole block are ignored.
func NewMemoryFrom(image []byte) *Memory {
	return &Memory{data: image[:len(image)/BlockSize*BlockSize]}
}

func (m *Memory) ReadBlock(lba uint32, dst []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := checkAccess(lba, dst, m.count()); err != nil {
		return err
	}
	off := int(lba) * BlockSize
	copy(dst, m.data[off:off+BlockSize])
	return nil
}

func (m *Memory) WriteBlock(lba uint32, src []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkAccess(lba, src, m.count()); err != nil {
		return err
	}
	off := int(lba) * BlockSize
	copy(m.data[off:off+BlockSize], src)
	return nil
}

func (m *Memory) BlockCount() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count()
}

// Bytes returns the backing storage. Callers must not write to it while the
// device is in use.
func (m *Memory) Bytes() []byte {
	return m.data
}

func (m *Memory) count() uint32 {
	return uint32(len(m.data) / BlockSize)
}
