package hll

import "github.com/lytics/datasketches/internal"

// MarshalBinary returns the updatable image, which also makes a *Sketch gob-encodable.
func (s *Sketch) MarshalBinary() ([]byte, error) {
	return s.SerializeUpdatable(), nil
}

func (s *Sketch) UnmarshalBinary(buf []byte) error {
	rt, err := Deserialize(buf)
	if err != nil {
		return err
	}
	*s = *rt
	return nil
}

// MarshalJSON encodes the compact image as a snappy-compressed, URL-safe base64 string.
func (s *Sketch) MarshalJSON() ([]byte, error) {
	return internal.QuotedSnappyB64(s.SerializeCompact(0)), nil
}

func (s *Sketch) UnmarshalJSON(buf []byte) error {
	image, err := internal.UnquoteSnappyB64(buf)
	if err != nil {
		return err
	}
	return s.UnmarshalBinary(image)
}
