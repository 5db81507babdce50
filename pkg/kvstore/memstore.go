package kvstore

// Mem is an in-memory backend for tests. It honors the full contract,
// including the SetFile-before-Init ordering, without touching disk.
type Mem struct {
	path string
	open bool
	data map[string][]byte
}

// NewMem returns an unopened in-memory backend.
func NewMem() *Mem {
	return &Mem{}
}

func (s *Mem) SetFile(path string) error {
	if s.open {
		return ErrAlreadyInit
	}
	s.path = path
	return nil
}

func (s *Mem) Init() error {
	if s.open {
		return ErrAlreadyInit
	}
	s.data = make(map[string][]byte)
	s.open = true
	return nil
}

func (s *Mem) Close() error {
	s.open = false
	s.data = nil
	return nil
}

func (s *Mem) Optimize() error { return nil }

func (s *Mem) SetSync(sync bool) {}

func (s *Mem) Get(key []byte, rt RecordType) ([]byte, error) {
	if !s.open {
		return nil, ErrNoFile
	}
	v, ok := s.data[string(CompositeKey(key, rt))]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (s *Mem) Put(key, data []byte, rt RecordType) error {
	if !s.open {
		return ErrNoFile
	}
	s.data[string(CompositeKey(key, rt))] = append([]byte(nil), data...)
	return nil
}

func (s *Mem) Del(key []byte, rt RecordType) error {
	if !s.open {
		return ErrNoFile
	}
	delete(s.data, string(CompositeKey(key, rt)))
	return nil
}
