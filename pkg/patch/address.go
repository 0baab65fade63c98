package patch

// ResolvedAddress names an index's storage location. Its Name is used
// verbatim as the kvstore bucket key, and as the borrow-tracking key in a
// Fork's working patch.
type ResolvedAddress struct {
	Name string
}

// Address builds a ResolvedAddress from an index name.
func Address(name string) ResolvedAddress {
	return ResolvedAddress{Name: name}
}

// Bytes returns the byte-string form used to address the kvstore backend.
func (a ResolvedAddress) Bytes() []byte {
	return []byte(a.Name)
}
