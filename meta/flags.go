package meta

// Flags is an ordered collection of response flags, preserving wire order.
type Flags []Flag

// Has reports whether a flag of the given type is present.
func (f Flags) Has(flagType FlagType) bool {
	for _, flag := range f {
		if flag.Type == flagType {
			return true
		}
	}
	return false
}

// Get returns the token bytes for the first flag of the given type.
// ok is false if the flag is not present. A present flag with no token
// returns a non-nil empty slice.
func (f Flags) Get(flagType FlagType) (token []byte, ok bool) {
	for _, flag := range f {
		if flag.Type == flagType {
			return []byte(flag.Token), true
		}
	}
	return nil, false
}
