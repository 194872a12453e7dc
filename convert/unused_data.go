package convert

// UnusedData is a per-instance capture of msgpack elements an object's
// shape does not recognize, retained so a later re-serialization of the
// same (narrower) type reproduces them byte-for-byte.
//
// An object has at most one unused-data property; that property's Go value
// is this type. Map-mode objects populate ByName
// (property-name -> raw encoded value bytes); array-mode objects populate
// ByIndex (uncovered index -> raw encoded value bytes). Only one side is
// ever populated for a given object, matching which mode that object's
// converter was built in.
type UnusedData struct {
	names   []string
	byName  map[string][]byte
	indices []int
	byIndex map[int][]byte
}

// NewUnusedData returns an empty packet, ready for capture during decode.
func NewUnusedData() *UnusedData {
	return &UnusedData{}
}

// CaptureByName records the raw bytes of an unrecognized map-mode member,
// preserving first-seen order for replay.
func (u *UnusedData) CaptureByName(name string, raw []byte) {
	if u.byName == nil {
		u.byName = make(map[string][]byte)
	}
	if _, exists := u.byName[name]; !exists {
		u.names = append(u.names, name)
	}
	u.byName[name] = raw
}

// CaptureByIndex records the raw bytes of an uncovered array-mode index.
func (u *UnusedData) CaptureByIndex(idx int, raw []byte) {
	if u.byIndex == nil {
		u.byIndex = make(map[int][]byte)
	}
	if _, exists := u.byIndex[idx]; !exists {
		u.indices = append(u.indices, idx)
	}
	u.byIndex[idx] = raw
}

// Count returns the total number of captured entries (either side), used by
// map-mode Write to size the map header.
func (u *UnusedData) Count() int {
	if u == nil {
		return 0
	}
	return len(u.names) + len(u.indices)
}

// Names returns the captured map-mode property names, in capture order.
func (u *UnusedData) Names() []string {
	if u == nil {
		return nil
	}
	return u.names
}

// RawByName returns the captured raw bytes for name.
func (u *UnusedData) RawByName(name string) ([]byte, bool) {
	if u == nil {
		return nil, false
	}
	raw, ok := u.byName[name]
	return raw, ok
}

// MaxIndex returns the highest captured array-mode index, or -1 if none were
// captured, used by array-mode Write to size the array header.
func (u *UnusedData) MaxIndex() int {
	if u == nil {
		return -1
	}
	max := -1
	for _, idx := range u.indices {
		if idx > max {
			max = idx
		}
	}
	return max
}

// RawByIndex returns the captured raw bytes for idx.
func (u *UnusedData) RawByIndex(idx int) ([]byte, bool) {
	if u == nil {
		return nil, false
	}
	raw, ok := u.byIndex[idx]
	return raw, ok
}
