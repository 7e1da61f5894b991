package codec

type storeCodec struct{}

func (storeCodec) Method() Method         { return None }
func (storeCodec) Name() string           { return "none" }
func (storeCodec) DefaultLevel() int      { return 0 }
func (storeCodec) CompressBound(n int) int { return n }

func (storeCodec) NewCompressor() Compressor { return &storeCompressor{} }

func (storeCodec) NewDecompressor(Config) Decompressor { return storeDecompressor{} }

type storeCompressor struct {
	started bool
}

func (*storeCompressor) Compress(dst, src []byte, _ int) (int, error) {
	if len(src) > len(dst) {
		return 0, ErrBufferTooSmall
	}
	return copy(dst, src), nil
}

func (c *storeCompressor) Begin(int) error {
	c.started = true
	return nil
}

func (c *storeCompressor) Update(dst, src []byte) (int, int, error) {
	if !c.started {
		return 0, 0, ErrNotStarted
	}
	n := copy(dst, src)
	return n, n, nil
}

func (c *storeCompressor) End([]byte) (int, bool, error) {
	if !c.started {
		return 0, false, ErrNotStarted
	}
	c.started = false
	return 0, true, nil
}

func (c *storeCompressor) Reset()     { c.started = false }
func (*storeCompressor) Close() error { return nil }

type storeDecompressor struct{}

func (storeDecompressor) Decompress(dst, src []byte) (int, error) {
	if len(src) > len(dst) {
		return 0, ErrBufferTooSmall
	}
	return copy(dst, src), nil
}

func (storeDecompressor) Update(dst, src []byte, _ bool) (int, int, error) {
	n := copy(dst, src)
	return n, n, nil
}

func (storeDecompressor) Reset()       {}
func (storeDecompressor) Close() error { return nil }
