package zpack

import (
	"errors"
	"fmt"

	"github.com/meigma/zpack/codec"
)

// codecContexts holds one lazily created compressor and decompressor per
// method for a single handle. Contexts are reset after codec errors and
// closed with the handle.
type codecContexts struct {
	cfg   codec.Config
	comps map[Method]codec.Compressor
	decs  map[Method]codec.Decompressor
}

func lookupCodec(m Method) (codec.Codec, error) {
	c, ok := codec.Lookup(m)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrMethodInvalid, uint8(m))
	}
	return c, nil
}

func (c *codecContexts) compressor(m Method) (codec.Codec, codec.Compressor, error) {
	cd, err := lookupCodec(m)
	if err != nil {
		return nil, nil, err
	}
	if comp, ok := c.comps[m]; ok {
		return cd, comp, nil
	}
	if c.comps == nil {
		c.comps = make(map[Method]codec.Compressor)
	}
	comp := cd.NewCompressor()
	c.comps[m] = comp
	return cd, comp, nil
}

func (c *codecContexts) decompressor(m Method) (codec.Codec, codec.Decompressor, error) {
	cd, err := lookupCodec(m)
	if err != nil {
		return nil, nil, err
	}
	if dec, ok := c.decs[m]; ok {
		return cd, dec, nil
	}
	if c.decs == nil {
		c.decs = make(map[Method]codec.Decompressor)
	}
	dec := cd.NewDecompressor(c.cfg)
	c.decs[m] = dec
	return cd, dec, nil
}

func (c *codecContexts) close() error {
	var errs []error
	for _, comp := range c.comps {
		errs = append(errs, comp.Close())
	}
	for _, dec := range c.decs {
		errs = append(errs, dec.Close())
	}
	c.comps, c.decs = nil, nil
	return errors.Join(errs...)
}
