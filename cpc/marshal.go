package cpc

import "github.com/lytics/datasketches/internal"

// MarshalBinary returns Serialize(), which also makes a *Sketch gob-encodable. The seed is not
// part of the image: UnmarshalBinary restores sketches built with DefaultSeed, and callers using
// another seed go through Deserialize.
func (s *Sketch) MarshalBinary() ([]byte, error) {
	return s.Serialize(), nil
}

func (s *Sketch) UnmarshalBinary(buf []byte) error {
	rt, err := Deserialize(buf, DefaultSeed)
	if err != nil {
		return err
	}
	*s = *rt
	return nil
}

// MarshalJSON encodes the image as a snappy-compressed, URL-safe base64 string.
func (s *Sketch) MarshalJSON() ([]byte, error) {
	return internal.QuotedSnappyB64(s.Serialize()), nil
}

func (s *Sketch) UnmarshalJSON(buf []byte) error {
	image, err := internal.UnquoteSnappyB64(buf)
	if err != nil {
		return err
	}
	return s.UnmarshalBinary(image)
}
