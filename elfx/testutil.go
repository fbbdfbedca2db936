package elfx

// NewImageForTest assembles an Image directly from its constituent fields,
// bypassing debug/elf parsing entirely, so other packages' tests can
// exercise code that takes a *Image without shipping a binary fixture.
func NewImageForTest(raw []byte, loads []Seg, dataRelRoLo, dataRelRoHi uint64, relaDyn []RelaEntry) *Image {
	return &Image{
		raw:         raw,
		loads:       loads,
		dataRelRoLo: dataRelRoLo,
		dataRelRoHi: dataRelRoHi,
		relaDyn:     relaDyn,
	}
}
